package main

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/kwv/tilenav/nav"
)

// trailTolerance is the Douglas-Peucker tolerance (cm) for exported trails
const trailTolerance = 0.5

// newHTTPServer creates an HTTP server with all endpoints
func newHTTPServer(stateTracker *nav.StateTracker, m *nav.Map) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] /health request from %s", r.RemoteAddr)
		_, _, hasPose := stateTracker.Pose()
		status := struct {
			Status    string    `json:"status"`
			Timestamp time.Time `json:"timestamp"`
			HasPose   bool      `json:"hasPose"`
			Localized bool      `json:"localized"`
		}{
			Status:    "ok",
			Timestamp: time.Now(),
			HasPose:   hasPose,
			Localized: stateTracker.Result() != nil,
		}
		writeJSON(w, status)
	})

	mux.HandleFunc("/pose", func(w http.ResponseWriter, r *http.Request) {
		pose, at, ok := stateTracker.Pose()
		if !ok {
			http.Error(w, "No pose available", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, nav.PosePayload{
			X:         pose.X,
			Y:         pose.Y,
			Heading:   pose.HeadingDeg(),
			Timestamp: at.Unix(),
		})
	})

	mux.HandleFunc("/result", func(w http.ResponseWriter, r *http.Request) {
		res := stateTracker.Result()
		if res == nil {
			http.Error(w, "Not localized yet", http.StatusNotFound)
			return
		}
		writeJSON(w, res)
	})

	mux.HandleFunc("/steps", func(w http.ResponseWriter, r *http.Request) {
		steps := stateTracker.Steps()
		if steps == nil {
			steps = []nav.Step{}
		}
		writeJSON(w, steps)
	})

	mux.HandleFunc("/map.png", func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		if err := nav.NewRasterRenderer(m, stateTracker).WritePNG(&buf); err != nil {
			log.Printf("[HTTP] Error encoding map PNG: %v", err)
			http.Error(w, "Failed to render map", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		if _, err := w.Write(buf.Bytes()); err != nil {
			log.Printf("[HTTP] Error writing map PNG: %v", err)
		}
	})

	mux.HandleFunc("/map.svg", func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		if err := nav.NewVectorRenderer(m, stateTracker).RenderToSVG(&buf); err != nil {
			log.Printf("[HTTP] Error rendering map SVG: %v", err)
			http.Error(w, "Failed to render map", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "no-cache")
		if _, err := w.Write(buf.Bytes()); err != nil {
			log.Printf("[HTTP] Error writing map SVG: %v", err)
		}
	})

	mux.HandleFunc("/map.geojson", func(w http.ResponseWriter, r *http.Request) {
		fc := nav.StateToFeatureCollection(m, stateTracker, trailTolerance)
		w.Header().Set("Content-Type", "application/geo+json")
		if err := json.NewEncoder(w).Encode(fc); err != nil {
			log.Printf("[HTTP] Error encoding GeoJSON: %v", err)
		}
	})

	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[HTTP] Error encoding response: %v", err)
	}
}
