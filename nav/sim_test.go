package nav

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSimDriver(t *testing.T, geom RobotGeometry, x, y int, o Orientation, opts ...SimOption) (*SimRobot, *Driver) {
	t.Helper()
	sim, err := NewSimRobot(ReferenceMap(), geom, x, y, o, opts...)
	require.NoError(t, err)
	return sim, NewDriver(sim.Left(), sim.Right(), RobotConfig{RobotGeometry: geom})
}

// syncedActuator integrates each motion into the odometer as soon as it
// completes, so tests do not race the sampler.
type syncedActuator struct {
	*Driver
	odo *Odometer
}

func (a syncedActuator) Turn(angleDeg float64) error {
	defer a.odo.update()
	return a.Driver.Turn(angleDeg)
}

func (a syncedActuator) DriveForward(distance float64) error {
	defer a.odo.update()
	return a.Driver.DriveForward(distance)
}

func TestNewSimRobot_AbsentTile(t *testing.T) {
	_, err := NewSimRobot(ReferenceMap(), RobotGeometry{}, 1, 0, North)
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestSimRobot_StartPose(t *testing.T) {
	sim, _ := newSimDriver(t, RobotGeometry{}, 2, 0, West)
	m := ReferenceMap()
	cx, cy := m.TileCenter(2, 0)
	p := sim.TruePose()
	assert.InDelta(t, cx, p.X, 1e-9)
	assert.InDelta(t, cy, p.Y, 1e-9)
	assert.InDelta(t, 3*math.Pi/2, p.Heading, 1e-9)
}

func TestSimRobot_Range(t *testing.T) {
	T := DefaultTileSize
	tests := []struct {
		name string
		x, y int
		o    Orientation
		want float64
	}{
		{"wall on the grid edge", 3, 1, East, T / 2},
		{"absent tile ahead", 3, 1, North, T / 2},
		{"long corridor", 3, 1, West, 3.5 * T},
		{"one tile to the wall", 2, 0, North, 1.5 * T},
		{"column to the grid edge", 1, 1, North, 2.5 * T},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim, _ := newSimDriver(t, RobotGeometry{}, tt.x, tt.y, tt.o)
			require.NoError(t, sim.Ping())
			d, err := sim.Read()
			require.NoError(t, err)
			assert.InDelta(t, tt.want, d, simRayStep+1e-9)
		})
	}
}

func TestSimRobot_DropRate(t *testing.T) {
	sim, _ := newSimDriver(t, RobotGeometry{}, 3, 1, North, WithDropRate(1))
	_, err := sim.Read()
	assert.Error(t, err)
}

func TestSimRobot_DriveAndTurn(t *testing.T) {
	sim, d := newSimDriver(t, RobotGeometry{}, 3, 1, West)
	m := ReferenceMap()

	require.NoError(t, d.DriveForward(m.TileSize()))
	cx, cy := m.TileCenter(2, 1)
	p := sim.TruePose()
	assert.InDelta(t, cx, p.X, 0.1)
	assert.InDelta(t, cy, p.Y, 0.1)

	// A left turn from West faces South
	require.NoError(t, d.Turn(-90))
	assert.InDelta(t, math.Pi, sim.TruePose().Heading, 0.01)

	l, r, err := d.TachoCounts()
	require.NoError(t, err)
	assert.Equal(t, 807-322, l)
	assert.Equal(t, 807+322, r)
}

func TestSimRobot_MotionDelay(t *testing.T) {
	_, d := newSimDriver(t, RobotGeometry{}, 3, 1, West, WithMotionDelay(20*time.Millisecond))
	start := time.Now()
	require.NoError(t, d.Turn(-90))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestLocalize_SimulatedRobot(t *testing.T) {
	tests := []struct {
		name   string
		start  Hypothesis
		policy Policy
	}{
		{"deterministic", Hypothesis{X: 3, Y: 1, Orientation: North}, Deterministic},
		{"deterministic long", Hypothesis{X: 1, Y: 1, Orientation: East}, Deterministic},
		{"stochastic", Hypothesis{X: 2, Y: 3, Orientation: West}, Stochastic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := ReferenceMap()
			// A wheel base that turns a quarter in whole wheel degrees keeps
			// long stochastic runs on the tile centers.
			geom := RobotGeometry{WheelRadius: 2, WheelBase: 16.01}
			sim, driver := newSimDriver(t, geom, tt.start.X, tt.start.Y, tt.start.Orientation,
				WithRangeNoise(0.5), WithSimSeed(3))

			ranger := NewFilteredRange(sim, SensorConfig{})
			ranger.sleep = nil

			odo := NewOdometer(driver, geom, WithTileSize(m.TileSize()))
			odo.update()

			l := NewLocalizer(m, ranger, syncedActuator{driver, odo}, odo,
				WithPolicy(tt.policy), WithSeed(11), WithMaxSteps(500))
			res, err := l.Localize(context.Background())
			require.NoError(t, err)

			walled, _ := m.IsWalled(tt.start.X, tt.start.Y, tt.start.Orientation)
			tt.start.Blocked = walled
			assert.Equal(t, tt.start, res.Start)

			// The corrected estimate matches the true pose in the map frame
			est, truth := odo.Snapshot(), sim.TruePose()
			assert.InDelta(t, truth.X, est.X, 1.0)
			assert.InDelta(t, truth.Y, est.Y, 1.0)
			assert.InDelta(t, 0, math.Sin(truth.Heading-est.Heading), 0.01)
			assert.Equal(t, est, res.Pose)
		})
	}
}
