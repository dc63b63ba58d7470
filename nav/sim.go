package nav

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"
)

// simMaxEcho is the largest distance the simulated sensor reports, matching
// the 255 cm ceiling of the ultrasonic sensor it stands in for.
const simMaxEcho = 255.0

const (
	simRayStep   = 0.25
	simArcSlices = 64
)

// SimRobot is a simulated differential-drive robot on a grid map. It exposes
// two Motors for a Driver and acts as the RangeSensor. Wheel rotations are
// queued per motor and executed together when a blocking rotation is issued,
// the way both regulated motors run at once on the real brick.
type SimRobot struct {
	m    *Map
	geom RobotGeometry

	mu      sync.Mutex
	pose    Pose // true pose in the map frame
	tacho   [2]int
	pending [2]int
	speed   [2]int

	rng         *rand.Rand
	rangeNoise  float64
	dropRate    float64
	motionDelay time.Duration
}

// SimOption configures a SimRobot
type SimOption func(*SimRobot)

// WithRangeNoise adds zero-mean Gaussian noise with the given standard
// deviation (cm) to every range reading.
func WithRangeNoise(sigma float64) SimOption {
	return func(r *SimRobot) { r.rangeNoise = sigma }
}

// WithDropRate makes the given fraction of range reads fail
func WithDropRate(rate float64) SimOption {
	return func(r *SimRobot) { r.dropRate = rate }
}

// WithMotionDelay makes every blocking rotation return only after d has
// passed, so a periodic sampler sees each motion on its own.
func WithMotionDelay(d time.Duration) SimOption {
	return func(r *SimRobot) { r.motionDelay = d }
}

// WithSimSeed seeds the noise source
func WithSimSeed(seed int64) SimOption {
	return func(r *SimRobot) { r.rng = rand.New(rand.NewSource(seed)) }
}

// NewSimRobot places a robot at the center of tile (x, y) facing o
func NewSimRobot(m *Map, geom RobotGeometry, x, y int, o Orientation, opts ...SimOption) (*SimRobot, error) {
	if !m.Present(x, y) {
		return nil, fmt.Errorf("simulated start (%d, %d): %w", x, y, ErrOutOfBounds)
	}
	if geom.WheelRadius <= 0 {
		geom.WheelRadius = DefaultWheelRadius
	}
	if geom.WheelBase <= 0 {
		geom.WheelBase = DefaultWheelBase
	}
	cx, cy := m.TileCenter(x, y)
	r := &SimRobot{
		m:    m,
		geom: geom,
		pose: Pose{X: cx, Y: cy, Heading: NormalizeRadians(-o.Radians())},
		rng:  rand.New(rand.NewSource(1)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Left returns the left drive motor
func (r *SimRobot) Left() Motor { return &simMotor{robot: r, id: LeftMotor} }

// Right returns the right drive motor
func (r *SimRobot) Right() Motor { return &simMotor{robot: r, id: RightMotor} }

// TruePose returns the simulated ground-truth pose
func (r *SimRobot) TruePose() Pose {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pose
}

// settle executes queued wheel rotations as one simultaneous motion. The arc
// is integrated in slices so mixed turns and drives land where the real robot
// would. Caller holds mu.
func (r *SimRobot) settle() {
	left := math.Pi * r.geom.WheelRadius * float64(r.pending[LeftMotor]) / 180
	right := math.Pi * r.geom.WheelRadius * float64(r.pending[RightMotor]) / 180

	for i := 0; i < simArcSlices; i++ {
		dl := left / simArcSlices
		dr := right / simArcSlices
		r.pose.Heading = NormalizeRadians(r.pose.Heading + (dl-dr)/r.geom.WheelBase)
		d := 0.5 * (dl + dr)
		r.pose.X += d * math.Sin(r.pose.Heading)
		r.pose.Y += d * math.Cos(r.pose.Heading)
	}

	r.tacho[LeftMotor] += r.pending[LeftMotor]
	r.tacho[RightMotor] += r.pending[RightMotor]
	r.pending = [2]int{}
}

// Ping is a no-op; the simulated echo is computed on Read
func (r *SimRobot) Ping() error {
	return nil
}

// Read returns the distance from the robot to the first wall straight ahead
func (r *SimRobot) Read() (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.dropRate > 0 && r.rng.Float64() < r.dropRate {
		return 0, fmt.Errorf("simulated echo lost")
	}

	d := r.castRay()
	if r.rangeNoise > 0 {
		d += r.rng.NormFloat64() * r.rangeNoise
	}
	return math.Max(0, math.Min(d, simMaxEcho)), nil
}

// castRay marches along the heading until it crosses a walled edge or leaves
// the present tiles. Caller holds mu.
func (r *SimRobot) castRay() float64 {
	sin, cos := math.Sin(r.pose.Heading), math.Cos(r.pose.Heading)
	px, py := r.pose.X, r.pose.Y
	tx, ty := r.m.TileAt(px, py)

	for d := simRayStep; d <= simMaxEcho; d += simRayStep {
		nx, ny := r.m.TileAt(px+d*sin, py+d*cos)
		if nx == tx && ny == ty {
			continue
		}
		if !r.m.Present(nx, ny) || r.crossesWall(tx, ty, nx, ny) {
			return d
		}
		tx, ty = nx, ny
	}
	return simMaxEcho
}

func (r *SimRobot) crossesWall(tx, ty, nx, ny int) bool {
	var sides []Orientation
	switch {
	case nx > tx:
		sides = append(sides, East)
	case nx < tx:
		sides = append(sides, West)
	}
	switch {
	case ny > ty:
		sides = append(sides, North)
	case ny < ty:
		sides = append(sides, South)
	}
	for _, s := range sides {
		if walled, err := r.m.IsWalled(tx, ty, s); err != nil || walled {
			return true
		}
	}
	return false
}

// simMotor is one wheel of a SimRobot
type simMotor struct {
	robot *SimRobot
	id    MotorID
}

func (m *simMotor) SetSpeed(degPerSec int) error {
	m.robot.mu.Lock()
	defer m.robot.mu.Unlock()
	m.robot.speed[m.id] = degPerSec
	return nil
}

func (m *simMotor) Rotate(deg int, immediateReturn bool) error {
	m.robot.mu.Lock()
	m.robot.pending[m.id] += deg
	if immediateReturn {
		m.robot.mu.Unlock()
		return nil
	}
	m.robot.settle()
	delay := m.robot.motionDelay
	m.robot.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	return nil
}

func (m *simMotor) TachoCount() (int, error) {
	m.robot.mu.Lock()
	defer m.robot.mu.Unlock()
	return m.robot.tacho[m.id], nil
}

func (m *simMotor) Stop() error {
	m.robot.mu.Lock()
	defer m.robot.mu.Unlock()
	m.robot.pending[m.id] = 0
	m.robot.speed[m.id] = 0
	return nil
}
