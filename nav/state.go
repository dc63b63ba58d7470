package nav

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/simplify"
)

// Trail recording limits
const (
	DefaultTrailSpacing = 1.0 // cm between recorded points
	DefaultTrailLimit   = 5000
)

// StateTracker keeps the latest display state for the HTTP endpoints. It is a
// Reporter and only ever receives updates.
type StateTracker struct {
	mu         sync.RWMutex
	pose       Pose
	poseTime   time.Time
	hasPose    bool
	steps      []Step
	candidates []Hypothesis
	result     *Result
	trail      orb.LineString
	cachePath  string // path to the result cache; empty disables persistence
}

// NewStateTracker creates an empty tracker
func NewStateTracker() *StateTracker {
	return &StateTracker{}
}

// NewStateTrackerWithCache creates a tracker that persists results to
// cachePath and restores the last one if the file exists.
func NewStateTrackerWithCache(cachePath string) *StateTracker {
	st := &StateTracker{cachePath: cachePath}
	if cachePath != "" {
		if r, err := LoadResult(cachePath); err == nil {
			st.result = r
			log.Printf("[STATE] Restored result of run %s from %s", r.RunID, cachePath)
		}
	}
	return st
}

// ReportPose records the pose and extends the trail
func (st *StateTracker) ReportPose(p Pose) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.pose = p
	st.poseTime = time.Now()
	st.hasPose = true

	pt := orb.Point{p.X, p.Y}
	if n := len(st.trail); n > 0 && planar.Distance(st.trail[n-1], pt) < DefaultTrailSpacing {
		return
	}
	st.trail = append(st.trail, pt)
	if len(st.trail) > DefaultTrailLimit {
		st.trail = st.trail[len(st.trail)-DefaultTrailLimit:]
	}
}

// ReportStep records a localization step. Iteration 1 starts a new run.
func (st *StateTracker) ReportStep(s Step) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if s.Iteration == 1 {
		st.steps = nil
		st.candidates = nil
	}
	st.steps = append(st.steps, s)
}

// ReportResult stores the result and writes the cache when configured
func (st *StateTracker) ReportResult(r Result) {
	st.mu.Lock()
	st.result = &r
	st.candidates = []Hypothesis{r.Start}
	cachePath := st.cachePath
	st.mu.Unlock()

	if cachePath != "" {
		if err := SaveResult(&r, cachePath); err != nil {
			log.Printf("[STATE] Warning: failed to save result cache: %v", err)
		}
	}
}

// SetCandidates records the hypotheses still alive
func (st *StateTracker) SetCandidates(c []Hypothesis) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.candidates = append([]Hypothesis(nil), c...)
}

// Pose returns the last reported pose and when it arrived
func (st *StateTracker) Pose() (Pose, time.Time, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.pose, st.poseTime, st.hasPose
}

// Result returns a copy of the last result, or nil
func (st *StateTracker) Result() *Result {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.result == nil {
		return nil
	}
	r := *st.result
	return &r
}

// Steps returns the steps of the current run
func (st *StateTracker) Steps() []Step {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return append([]Step(nil), st.steps...)
}

// Candidates returns the surviving hypotheses
func (st *StateTracker) Candidates() []Hypothesis {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return append([]Hypothesis(nil), st.candidates...)
}

// Trail returns a copy of the recorded trail
func (st *StateTracker) Trail() orb.LineString {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.trail.Clone()
}

// SimplifiedTrail returns the trail reduced with Douglas-Peucker
func (st *StateTracker) SimplifiedTrail(tolerance float64) orb.LineString {
	trail := st.Trail()
	if len(trail) < 3 || tolerance <= 0 {
		return trail
	}
	simplified, ok := simplify.DouglasPeucker(tolerance).Simplify(trail).(orb.LineString)
	if !ok {
		return trail
	}
	return simplified
}

// ClearTrail drops the recorded trail, typically after a pose correction
func (st *StateTracker) ClearTrail() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.trail = nil
}

// SaveResult writes a Result to disk as JSON.
func SaveResult(r *Result, path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write result cache: %w", err)
	}
	return nil
}

// LoadResult reads a Result from a JSON file on disk.
func LoadResult(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read result cache: %w", err)
	}
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("unmarshal result cache: %w", err)
	}
	return &r, nil
}
