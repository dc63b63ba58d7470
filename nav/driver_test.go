package nav

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rotateCall struct {
	deg       int
	immediate bool
}

// fakeMotor records commands sent to one wheel
type fakeMotor struct {
	speed     int
	rotations []rotateCall
	tacho     int
	stopped   bool
	err       error
}

func (m *fakeMotor) SetSpeed(degPerSec int) error {
	m.speed = degPerSec
	return m.err
}

func (m *fakeMotor) Rotate(deg int, immediateReturn bool) error {
	m.rotations = append(m.rotations, rotateCall{deg, immediateReturn})
	m.tacho += deg
	return m.err
}

func (m *fakeMotor) TachoCount() (int, error) {
	return m.tacho, m.err
}

func (m *fakeMotor) Stop() error {
	m.stopped = true
	return m.err
}

func TestConvertDistanceAndAngle(t *testing.T) {
	assert.Equal(t, 807, ConvertDistance(DefaultWheelRadius, DefaultTileSize))
	assert.Equal(t, 322, ConvertAngle(DefaultWheelRadius, DefaultWheelBase, 90))
	assert.Equal(t, -322, ConvertAngle(DefaultWheelRadius, DefaultWheelBase, -90))
}

func TestNewDriver_Defaults(t *testing.T) {
	d := NewDriver(&fakeMotor{}, &fakeMotor{}, RobotConfig{})
	assert.Equal(t, RobotGeometry{WheelRadius: DefaultWheelRadius, WheelBase: DefaultWheelBase}, d.Geometry())
	assert.Equal(t, DefaultForwardSpeed, d.forwardSpeed)
	assert.Equal(t, DefaultTurnSpeed, d.turnSpeed)
}

func TestDriver_DriveForward(t *testing.T) {
	left, right := &fakeMotor{}, &fakeMotor{}
	d := NewDriver(left, right, RobotConfig{})

	require.NoError(t, d.DriveForward(DefaultTileSize))

	assert.Equal(t, DefaultForwardSpeed, left.speed)
	assert.Equal(t, DefaultForwardSpeed, right.speed)
	// Left returns immediately so both wheels run together; right blocks
	assert.Equal(t, []rotateCall{{807, true}}, left.rotations)
	assert.Equal(t, []rotateCall{{807, false}}, right.rotations)
}

func TestDriver_TurnDirection(t *testing.T) {
	tests := []struct {
		name     string
		angle    float64
		leftDeg  int
		rightDeg int
	}{
		{"clockwise", 90, 322, -322},
		{"counter-clockwise", -90, -322, 322},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			left, right := &fakeMotor{}, &fakeMotor{}
			d := NewDriver(left, right, RobotConfig{TurnSpeed: 80})
			require.NoError(t, d.Turn(tt.angle))
			assert.Equal(t, 80, left.speed)
			assert.Equal(t, []rotateCall{{tt.leftDeg, true}}, left.rotations)
			assert.Equal(t, []rotateCall{{tt.rightDeg, false}}, right.rotations)
		})
	}
}

func TestDriver_StopAndTacho(t *testing.T) {
	left, right := &fakeMotor{tacho: 12}, &fakeMotor{tacho: -4}
	d := NewDriver(left, right, RobotConfig{})

	l, r, err := d.TachoCounts()
	require.NoError(t, err)
	assert.Equal(t, 12, l)
	assert.Equal(t, -4, r)

	require.NoError(t, d.Stop())
	assert.True(t, left.stopped)
	assert.True(t, right.stopped)
}

func TestDriver_Errors(t *testing.T) {
	boom := errors.New("brick unplugged")
	left, right := &fakeMotor{}, &fakeMotor{err: boom}
	d := NewDriver(left, right, RobotConfig{})

	assert.ErrorIs(t, d.DriveForward(10), boom)
	assert.ErrorIs(t, d.Stop(), boom)
	assert.True(t, left.stopped, "left motor is stopped even if right fails")

	_, _, err := d.TachoCounts()
	assert.ErrorIs(t, err, boom)
}
