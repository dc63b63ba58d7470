package nav

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxSteps bounds a configured localization run. Some starts on a
// partially symmetric map never converge under the deterministic policy.
const DefaultMaxSteps = 200

// DistanceReader yields a filtered distance to the nearest obstacle ahead
type DistanceReader interface {
	Distance() (float64, error)
}

// PoseEstimator is the part of the odometer the localizer needs
type PoseEstimator interface {
	Corrector
	Snapshot() Pose
}

// ProgressFunc receives every sensing step of a localization run
type ProgressFunc func(Step)

// Localizer determines the starting tile and orientation of the robot by
// eliminating candidate hypotheses that disagree with its wall observations.
type Localizer struct {
	m        *Map
	ranger   DistanceReader
	act      Actuator
	odo      PoseEstimator
	policy   Policy
	rng      *rand.Rand
	maxSteps int
	progress ProgressFunc
	runID    string

	candidates []Hypothesis
	history    []Observation
}

// LocalizerOption configures a Localizer
type LocalizerOption func(*Localizer)

// WithPolicy selects the exploration policy
func WithPolicy(p Policy) LocalizerOption {
	return func(l *Localizer) { l.policy = p }
}

// WithSeed seeds the coin used by the stochastic policy
func WithSeed(seed int64) LocalizerOption {
	return func(l *Localizer) { l.rng = rand.New(rand.NewSource(seed)) }
}

// WithMaxSteps bounds the number of sensing iterations; 0 means unbounded
func WithMaxSteps(n int) LocalizerOption {
	return func(l *Localizer) { l.maxSteps = n }
}

// WithProgress registers a callback for each sensing step
func WithProgress(fn ProgressFunc) LocalizerOption {
	return func(l *Localizer) { l.progress = fn }
}

// WithRunID overrides the generated run identifier
func WithRunID(id string) LocalizerOption {
	return func(l *Localizer) { l.runID = id }
}

// NewLocalizer seeds one hypothesis per present tile and orientation
func NewLocalizer(m *Map, ranger DistanceReader, act Actuator, odo PoseEstimator, opts ...LocalizerOption) *Localizer {
	l := &Localizer{
		m:      m,
		ranger: ranger,
		act:    act,
		odo:    odo,
		policy: Deterministic,
		runID:  uuid.NewString(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.rng == nil {
		l.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	l.candidates = InitialHypotheses(m)
	return l
}

// InitialHypotheses returns every (present tile, orientation) pair with the
// wall flag seen from there.
func InitialHypotheses(m *Map) []Hypothesis {
	var out []Hypothesis
	for _, xy := range m.PresentTiles() {
		for _, o := range Orientations {
			walled, _ := m.IsWalled(xy[0], xy[1], o)
			out = append(out, Hypothesis{X: xy[0], Y: xy[1], Orientation: o, Blocked: walled})
		}
	}
	return out
}

// Consistent reports whether hypothesis h explains observation obs on m. An
// observation that maps off the grid or onto an absent tile is inconsistent.
func Consistent(m *Map, h Hypothesis, obs Observation) bool {
	x, y, o := RelativeToAbsolute(h, obs)
	walled, err := m.IsWalled(x, y, o)
	if err != nil {
		return false
	}
	return walled == obs.Blocked
}

// Eliminate returns the hypotheses consistent with every observation in
// history. The result is always a subset of candidates.
func Eliminate(m *Map, candidates []Hypothesis, history []Observation) []Hypothesis {
	kept := candidates[:0:0]
	for _, h := range candidates {
		ok := true
		for _, obs := range history {
			if !Consistent(m, h, obs) {
				ok = false
				break
			}
		}
		if ok {
			kept = append(kept, h)
		}
	}
	return kept
}

// RunID returns the identifier of this localization run
func (l *Localizer) RunID() string {
	return l.runID
}

// Candidates returns a copy of the surviving hypotheses
func (l *Localizer) Candidates() []Hypothesis {
	out := make([]Hypothesis, len(l.candidates))
	copy(out, l.candidates)
	return out
}

// History returns a copy of the recorded observations
func (l *Localizer) History() []Observation {
	out := make([]Observation, len(l.history))
	copy(out, l.history)
	return out
}

// senseBlocked reports whether a wall is closer than one tile. A sensor
// timeout is treated as clear.
func (l *Localizer) senseBlocked() bool {
	d, err := l.ranger.Distance()
	if err != nil {
		log.Printf("[LOC] Warning: %v, treating as not blocked", err)
		return false
	}
	return d < l.m.TileSize()
}

// halt stops the motors before a fatal error propagates
func (l *Localizer) halt(cause error) error {
	if err := l.act.Stop(); err != nil {
		log.Printf("[LOC] Warning: stop failed: %v", err)
	}
	return cause
}

// Localize explores until exactly one hypothesis remains, then rebases the
// odometer onto the map. It returns ErrLocalizationExhausted if the
// observations rule out every hypothesis.
func (l *Localizer) Localize(ctx context.Context) (Result, error) {
	if len(l.candidates) == 0 {
		return Result{}, l.halt(fmt.Errorf("%w: map has no present tiles", ErrLocalizationExhausted))
	}

	// Current pose in the travel frame
	var x, y int
	heading := North
	iterations := 0

	log.Printf("[LOC] Run %s: %s localization over %d hypotheses",
		l.runID, l.policy, len(l.candidates))

	for {
		if err := ctx.Err(); err != nil {
			return Result{}, l.halt(err)
		}
		if l.maxSteps > 0 && iterations >= l.maxSteps {
			return Result{}, l.halt(fmt.Errorf("%w after %d observations (%d candidates left)",
				ErrStepLimit, iterations, len(l.candidates)))
		}

		obs := Observation{X: x, Y: y, Orientation: heading, Blocked: l.senseBlocked()}
		iterations++
		l.history = append(l.history, obs)
		l.candidates = Eliminate(l.m, l.candidates, l.history)

		if l.progress != nil {
			l.progress(Step{
				RunID:       l.runID,
				Iteration:   iterations,
				Observation: obs,
				Remaining:   len(l.candidates),
			})
		}

		if len(l.candidates) == 0 {
			return Result{}, l.halt(fmt.Errorf("%w after %d observations", ErrLocalizationExhausted, iterations))
		}
		if len(l.candidates) == 1 {
			break
		}

		turn := obs.Blocked
		if !turn && l.policy == Stochastic {
			turn = l.rng.Intn(2) == 0
		}

		if turn {
			if err := l.act.Turn(-90); err != nil {
				return Result{}, l.halt(fmt.Errorf("turning left: %w", err))
			}
			heading = RotateLeft(heading)
		} else {
			if err := l.act.DriveForward(l.m.TileSize()); err != nil {
				return Result{}, l.halt(fmt.Errorf("driving forward: %w", err))
			}
			dx, dy := heading.Delta()
			x += dx
			y += dy
		}
	}

	start := l.candidates[0]
	if err := l.odo.ApplyCorrection(float64(start.X), float64(start.Y), start.Orientation); err != nil {
		return Result{}, l.halt(fmt.Errorf("applying correction: %w", err))
	}

	log.Printf("[LOC] Run %s: started at %s after %d observations", l.runID, start, iterations)

	return Result{
		RunID:        l.runID,
		Policy:       l.policy,
		Start:        start,
		Observations: iterations,
		Pose:         l.odo.Snapshot(),
		Timestamp:    time.Now().Unix(),
	}, nil
}
