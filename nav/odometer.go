package nav

import (
	"context"
	"log"
	"math"
	"sync"
	"time"
)

// DefaultOdometerPeriod is the sampling period of the pose integrator
const DefaultOdometerPeriod = 15 * time.Millisecond

// OdometerState is the lifecycle state of an Odometer
type OdometerState int

const (
	OdometerIdle OdometerState = iota
	OdometerRunning
	OdometerCorrected
)

func (s OdometerState) String() string {
	switch s {
	case OdometerRunning:
		return "running"
	case OdometerCorrected:
		return "corrected"
	default:
		return "idle"
	}
}

// Corrector rebases a pose estimate onto the tile grid
type Corrector interface {
	ApplyCorrection(tileX, tileY float64, o Orientation) error
}

// Odometer integrates wheel rotation into a continuous pose on a background
// goroutine. Every read and write of the pose goes through mu, so Snapshot
// never observes a partially applied sample or correction.
type Odometer struct {
	enc      EncoderSource
	geom     RobotGeometry
	period   time.Duration
	tileSize float64

	mu        sync.RWMutex
	pose      Pose
	normalize bool
	state     OdometerState
	corrected bool

	// sampler-owned; only touched by update
	prevLeft, prevRight int
	primed              bool

	cancel  context.CancelFunc
	stopped chan struct{}
}

// OdometerOption configures an Odometer
type OdometerOption func(*Odometer)

// WithPeriod sets the sampling period
func WithPeriod(d time.Duration) OdometerOption {
	return func(o *Odometer) {
		if d > 0 {
			o.period = d
		}
	}
}

// WithTileSize sets the tile size used by ApplyCorrection
func WithTileSize(size float64) OdometerOption {
	return func(o *Odometer) {
		if size > 0 {
			o.tileSize = size
		}
	}
}

// WithHeadingNormalization controls whether heading is kept in [0, 2π)
func WithHeadingNormalization(enabled bool) OdometerOption {
	return func(o *Odometer) {
		o.normalize = enabled
	}
}

// NewOdometer creates an odometer reading from enc. The pose starts at the
// origin facing North.
func NewOdometer(enc EncoderSource, geom RobotGeometry, opts ...OdometerOption) *Odometer {
	if geom.WheelRadius <= 0 {
		geom.WheelRadius = DefaultWheelRadius
	}
	if geom.WheelBase <= 0 {
		geom.WheelBase = DefaultWheelBase
	}
	o := &Odometer{
		enc:       enc,
		geom:      geom,
		period:    DefaultOdometerPeriod,
		tileSize:  DefaultTileSize,
		normalize: true,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Start launches the periodic sampler. The sampler runs until ctx is done or
// Stop is called.
func (o *Odometer) Start(ctx context.Context) {
	o.mu.Lock()
	if o.state != OdometerIdle {
		o.mu.Unlock()
		return
	}
	o.state = OdometerRunning
	ctx, o.cancel = context.WithCancel(ctx)
	o.stopped = make(chan struct{})
	o.mu.Unlock()

	// Baseline the tachometers so motion before Start is ignored.
	o.update()

	go o.run(ctx)
}

// Stop cancels the sampler and waits for it to exit
func (o *Odometer) Stop() error {
	o.mu.Lock()
	cancel, stopped := o.cancel, o.stopped
	o.cancel = nil
	o.mu.Unlock()

	if cancel == nil {
		return ErrNotRunning
	}
	cancel()
	<-stopped
	return nil
}

// run samples once per period. A ticker drops ticks rather than queueing
// them, so a slow sample delays the next one without drifting the schedule.
func (o *Odometer) run(ctx context.Context) {
	defer close(o.stopped)

	ticker := time.NewTicker(o.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.update()
		}
	}
}

// update takes one sample and integrates it into the pose
func (o *Odometer) update() {
	left, right, err := o.enc.TachoCounts()
	if err != nil {
		log.Printf("[ODO] Warning: tacho read failed: %v", err)
		return
	}
	if !o.primed {
		o.prevLeft, o.prevRight = left, right
		o.primed = true
		return
	}

	leftDist := math.Pi * o.geom.WheelRadius * float64(left-o.prevLeft) / 180
	rightDist := math.Pi * o.geom.WheelRadius * float64(right-o.prevRight) / 180
	o.prevLeft, o.prevRight = left, right

	deltaDist := 0.5 * (leftDist + rightDist)
	deltaHeading := (leftDist - rightDist) / o.geom.WheelBase

	o.mu.Lock()
	defer o.mu.Unlock()

	heading := o.pose.Heading + deltaHeading
	if o.normalize {
		heading = NormalizeRadians(heading)
	}
	o.pose.Heading = heading
	o.pose.X += deltaDist * math.Sin(heading)
	o.pose.Y += deltaDist * math.Cos(heading)
}

// Snapshot returns the pose as of a single sampling instant
func (o *Odometer) Snapshot() Pose {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.pose
}

// Sampling reports whether the sampler goroutine is still integrating.
// State stays Corrected after the sampler exits, so planners check this too.
func (o *Odometer) Sampling() bool {
	o.mu.RLock()
	stopped := o.stopped
	o.mu.RUnlock()
	if stopped == nil {
		return false
	}
	select {
	case <-stopped:
		return false
	default:
		return true
	}
}

// State returns the lifecycle state
func (o *Odometer) State() OdometerState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// SetPose overwrites the pose
func (o *Odometer) SetPose(p Pose) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.normalize {
		p.Heading = NormalizeRadians(p.Heading)
	}
	o.pose = p
}

// SetHeadingNormalization toggles heading normalization and folds the
// current heading into [0, 2π) when enabling it.
func (o *Odometer) SetHeadingNormalization(enabled bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.normalize = enabled
	if enabled {
		o.pose.Heading = NormalizeRadians(o.pose.Heading)
	}
}

// ApplyCorrection rebases the dead-reckoning pose onto the map. The robot
// started on tile (tileX, tileY) facing o, so the travel frame is rotated by o
// relative to the map frame. It may be applied once.
func (o *Odometer) ApplyCorrection(tileX, tileY float64, orientation Orientation) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.corrected {
		return ErrAlreadyCorrected
	}

	rx, ry := RotateVector(o.pose.X, o.pose.Y, orientation)
	o.pose.X = (tileX-0.5)*o.tileSize + rx
	o.pose.Y = (tileY-0.5)*o.tileSize + ry

	heading := o.pose.Heading - orientation.Radians()
	if o.normalize {
		heading = NormalizeRadians(heading)
	}
	o.pose.Heading = heading

	o.corrected = true
	if o.state == OdometerRunning {
		o.state = OdometerCorrected
	}
	return nil
}
