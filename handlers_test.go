package main

import (
	"bytes"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kwv/tilenav/nav"
	"github.com/paulmach/orb/geojson"
)

func emptyTracker() *nav.StateTracker {
	return nav.NewStateTracker()
}

func localizedTracker() *nav.StateTracker {
	st := nav.NewStateTracker()
	st.ReportStep(nav.Step{RunID: "run-1", Iteration: 1, Remaining: 22,
		Observation: nav.Observation{Blocked: true}})
	st.ReportStep(nav.Step{RunID: "run-1", Iteration: 2, Remaining: 9,
		Observation: nav.Observation{Orientation: nav.West}})
	st.ReportPose(nav.Pose{X: 76.15, Y: 15.23})
	st.ReportResult(nav.Result{
		RunID:        "run-1",
		Start:        nav.Hypothesis{X: 3, Y: 1, Orientation: nav.North, Blocked: true},
		Observations: 4,
		Pose:         nav.Pose{X: 15.23, Y: 15.23, Heading: 4.71},
	})
	return st
}

func serve(h http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// ---------------------------------------------------------------------------
// /health
// ---------------------------------------------------------------------------

func TestHealth_NotLocalized(t *testing.T) {
	w := serve(newHTTPServer(emptyTracker(), nav.ReferenceMap()), "/health")

	if w.Code != http.StatusOK {
		t.Fatalf("/health status = %d, want %d", w.Code, http.StatusOK)
	}

	var body struct {
		Status    string `json:"status"`
		HasPose   bool   `json:"hasPose"`
		Localized bool   `json:"localized"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode /health response: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want %q", body.Status, "ok")
	}
	if body.HasPose || body.Localized {
		t.Errorf("empty tracker reported %+v", body)
	}
}

func TestHealth_Localized(t *testing.T) {
	w := serve(newHTTPServer(localizedTracker(), nav.ReferenceMap()), "/health")

	var body struct {
		HasPose   bool `json:"hasPose"`
		Localized bool `json:"localized"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode /health response: %v", err)
	}
	if !body.HasPose || !body.Localized {
		t.Errorf("localized tracker reported %+v", body)
	}
}

// ---------------------------------------------------------------------------
// /pose, /result, /steps
// ---------------------------------------------------------------------------

func TestPose(t *testing.T) {
	if w := serve(newHTTPServer(emptyTracker(), nav.ReferenceMap()), "/pose"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("/pose without pose = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}

	w := serve(newHTTPServer(localizedTracker(), nav.ReferenceMap()), "/pose")
	if w.Code != http.StatusOK {
		t.Fatalf("/pose status = %d", w.Code)
	}
	var p nav.PosePayload
	if err := json.NewDecoder(w.Body).Decode(&p); err != nil {
		t.Fatalf("decode /pose: %v", err)
	}
	if p.X != 76.15 || p.Y != 15.23 {
		t.Errorf("/pose = %+v", p)
	}
	if p.Timestamp == 0 {
		t.Error("/pose timestamp should be set")
	}
}

func TestResult(t *testing.T) {
	if w := serve(newHTTPServer(emptyTracker(), nav.ReferenceMap()), "/result"); w.Code != http.StatusNotFound {
		t.Errorf("/result before localization = %d, want %d", w.Code, http.StatusNotFound)
	}

	w := serve(newHTTPServer(localizedTracker(), nav.ReferenceMap()), "/result")
	var res nav.Result
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatalf("decode /result: %v", err)
	}
	if res.Start != (nav.Hypothesis{X: 3, Y: 1, Orientation: nav.North, Blocked: true}) {
		t.Errorf("/result start = %v", res.Start)
	}
	if res.Observations != 4 {
		t.Errorf("/result observations = %d, want 4", res.Observations)
	}
	if w.Header().Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %q", w.Header().Get("Content-Type"))
	}
}

func TestSteps(t *testing.T) {
	w := serve(newHTTPServer(emptyTracker(), nav.ReferenceMap()), "/steps")
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("/steps with no run = %q, want []", w.Body.String())
	}

	w = serve(newHTTPServer(localizedTracker(), nav.ReferenceMap()), "/steps")
	var steps []nav.Step
	if err := json.NewDecoder(w.Body).Decode(&steps); err != nil {
		t.Fatalf("decode /steps: %v", err)
	}
	if len(steps) != 2 || steps[1].Remaining != 9 || steps[1].Observation.Orientation != nav.West {
		t.Errorf("/steps = %+v", steps)
	}
}

// ---------------------------------------------------------------------------
// Map renderings
// ---------------------------------------------------------------------------

func TestMapPNG(t *testing.T) {
	for _, st := range []*nav.StateTracker{emptyTracker(), localizedTracker()} {
		w := serve(newHTTPServer(st, nav.ReferenceMap()), "/map.png")
		if w.Code != http.StatusOK {
			t.Fatalf("/map.png status = %d", w.Code)
		}
		if ct := w.Header().Get("Content-Type"); ct != "image/png" {
			t.Errorf("Content-Type = %q, want image/png", ct)
		}
		if _, err := png.Decode(bytes.NewReader(w.Body.Bytes())); err != nil {
			t.Errorf("/map.png is not a PNG: %v", err)
		}
	}
}

func TestMapSVG(t *testing.T) {
	w := serve(newHTTPServer(localizedTracker(), nav.ReferenceMap()), "/map.svg")
	if w.Code != http.StatusOK {
		t.Fatalf("/map.svg status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/svg+xml" {
		t.Errorf("Content-Type = %q, want image/svg+xml", ct)
	}
	if !strings.Contains(w.Body.String(), "<svg") {
		t.Error("/map.svg should contain an svg element")
	}
}

func TestMapGeoJSON(t *testing.T) {
	w := serve(newHTTPServer(localizedTracker(), nav.ReferenceMap()), "/map.geojson")
	if w.Code != http.StatusOK {
		t.Fatalf("/map.geojson status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/geo+json" {
		t.Errorf("Content-Type = %q, want application/geo+json", ct)
	}

	fc, err := geojson.UnmarshalFeatureCollection(w.Body.Bytes())
	if err != nil {
		t.Fatalf("decode /map.geojson: %v", err)
	}
	kinds := make(map[string]int)
	for _, f := range fc.Features {
		kinds[f.Properties.MustString("kind", "")]++
	}
	if kinds["tile"] != 12 || kinds["pose"] != 1 || kinds["candidate"] != 1 {
		t.Errorf("feature kinds = %v", kinds)
	}
	if fc.ExtraMembers["runId"] != "run-1" {
		t.Errorf("runId member = %v", fc.ExtraMembers["runId"])
	}
}
