package nav

import (
	"fmt"
	"math"
)

// Motor speeds in wheel degrees per second
const (
	DefaultForwardSpeed = 250
	DefaultTurnSpeed    = 100
)

// Default drive-train dimensions in centimeters
const (
	DefaultWheelRadius = 2.16
	DefaultWheelBase   = 15.5
)

// MotorID selects one of the two drive motors
type MotorID int

const (
	LeftMotor MotorID = iota
	RightMotor
)

func (id MotorID) String() string {
	if id == RightMotor {
		return "B"
	}
	return "A"
}

// Motor is a single regulated drive motor with a tachometer
type Motor interface {
	SetSpeed(degPerSec int) error
	// Rotate turns the wheel by deg degrees. When immediateReturn is false the
	// call blocks until the rotation completes.
	Rotate(deg int, immediateReturn bool) error
	TachoCount() (int, error)
	Stop() error
}

// Actuator performs blocking motion commands. Positive turns are clockwise.
type Actuator interface {
	SetSpeed(motor MotorID, speed int) error
	Turn(angleDeg float64) error
	DriveForward(distance float64) error
	Stop() error
}

// EncoderSource reports accumulated wheel rotation in degrees
type EncoderSource interface {
	TachoCounts() (left, right int, err error)
}

// RangeSensor is a distance sensor. Ping triggers a measurement; Read returns
// the latest distance in centimeters.
type RangeSensor interface {
	Ping() error
	Read() (float64, error)
}

// ConvertDistance returns the wheel rotation in degrees needed to travel
// distance with a wheel of the given radius.
func ConvertDistance(radius, distance float64) int {
	return int((180.0 * distance) / (math.Pi * radius))
}

// ConvertAngle returns the wheel rotation in degrees needed to spin the robot
// in place by angle degrees.
func ConvertAngle(radius, width, angle float64) int {
	return ConvertDistance(radius, math.Pi*width*angle/360.0)
}

// Driver implements Actuator and EncoderSource on top of two motors
type Driver struct {
	left, right  Motor
	geom         RobotGeometry
	forwardSpeed int
	turnSpeed    int
}

// NewDriver creates a driver for a differential-drive robot
func NewDriver(left, right Motor, cfg RobotConfig) *Driver {
	d := &Driver{
		left:         left,
		right:        right,
		geom:         cfg.RobotGeometry,
		forwardSpeed: cfg.ForwardSpeed,
		turnSpeed:    cfg.TurnSpeed,
	}
	if d.geom.WheelRadius <= 0 {
		d.geom.WheelRadius = DefaultWheelRadius
	}
	if d.geom.WheelBase <= 0 {
		d.geom.WheelBase = DefaultWheelBase
	}
	if d.forwardSpeed <= 0 {
		d.forwardSpeed = DefaultForwardSpeed
	}
	if d.turnSpeed <= 0 {
		d.turnSpeed = DefaultTurnSpeed
	}
	return d
}

// Geometry returns the drive-train dimensions
func (d *Driver) Geometry() RobotGeometry {
	return d.geom
}

func (d *Driver) motor(id MotorID) Motor {
	if id == RightMotor {
		return d.right
	}
	return d.left
}

// SetSpeed sets the speed of one motor
func (d *Driver) SetSpeed(id MotorID, speed int) error {
	if err := d.motor(id).SetSpeed(speed); err != nil {
		return fmt.Errorf("motor %s set speed: %w", id, err)
	}
	return nil
}

func (d *Driver) setBothSpeeds(speed int) error {
	if err := d.SetSpeed(LeftMotor, speed); err != nil {
		return err
	}
	return d.SetSpeed(RightMotor, speed)
}

// DriveForward drives straight for distance centimeters and blocks until done
func (d *Driver) DriveForward(distance float64) error {
	if err := d.setBothSpeeds(d.forwardSpeed); err != nil {
		return err
	}
	deg := ConvertDistance(d.geom.WheelRadius, distance)
	if err := d.left.Rotate(deg, true); err != nil {
		return fmt.Errorf("drive forward: %w", err)
	}
	if err := d.right.Rotate(deg, false); err != nil {
		return fmt.Errorf("drive forward: %w", err)
	}
	return nil
}

// Turn spins in place by angleDeg degrees (clockwise positive) and blocks
// until done.
func (d *Driver) Turn(angleDeg float64) error {
	if err := d.setBothSpeeds(d.turnSpeed); err != nil {
		return err
	}
	deg := ConvertAngle(d.geom.WheelRadius, d.geom.WheelBase, angleDeg)
	if err := d.left.Rotate(deg, true); err != nil {
		return fmt.Errorf("turn: %w", err)
	}
	if err := d.right.Rotate(-deg, false); err != nil {
		return fmt.Errorf("turn: %w", err)
	}
	return nil
}

// Stop halts both motors
func (d *Driver) Stop() error {
	errL := d.left.Stop()
	errR := d.right.Stop()
	if errL != nil {
		return fmt.Errorf("stop left motor: %w", errL)
	}
	if errR != nil {
		return fmt.Errorf("stop right motor: %w", errR)
	}
	return nil
}

// TachoCounts reads both tachometers
func (d *Driver) TachoCounts() (int, int, error) {
	l, err := d.left.TachoCount()
	if err != nil {
		return 0, 0, fmt.Errorf("left tacho: %w", err)
	}
	r, err := d.right.TachoCount()
	if err != nil {
		return 0, 0, fmt.Errorf("right tacho: %w", err)
	}
	return l, r, nil
}
