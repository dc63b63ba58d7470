package nav

import "math"

// RotateLeft turns an orientation one quarter turn counter-clockwise
func RotateLeft(o Orientation) Orientation {
	return (o + 1).normalize()
}

// RotateRight turns an orientation one quarter turn clockwise
func RotateRight(o Orientation) Orientation {
	return (o + 3).normalize()
}

// Rotate turns an orientation by n left turns (negative n turns right)
func Rotate(o Orientation, n int) Orientation {
	return (o + Orientation(n%4)).normalize()
}

func (o Orientation) normalize() Orientation {
	o %= 4
	if o < 0 {
		o += 4
	}
	return o
}

// Delta returns the unit tile step taken when driving forward in this orientation
func (o Orientation) Delta() (dx, dy int) {
	switch o.normalize() {
	case North:
		return 0, 1
	case West:
		return -1, 0
	case South:
		return 0, -1
	default:
		return 1, 0
	}
}

// Radians returns the counter-clockwise rotation from North in radians
func (o Orientation) Radians() float64 {
	return float64(o.normalize()) * math.Pi / 2
}

// rotateTile rotates an integer displacement left by o quarter turns
func rotateTile(x, y int, o Orientation) (int, int) {
	switch o.normalize() {
	case West:
		return -y, x
	case South:
		return -x, -y
	case East:
		return y, -x
	default:
		return x, y
	}
}

// RotateVector rotates a continuous displacement left by o quarter turns.
// It maps a vector measured in a frame whose forward axis is o into the
// North-aligned frame.
func RotateVector(x, y float64, o Orientation) (float64, float64) {
	switch o.normalize() {
	case West:
		return -y, x
	case South:
		return -x, -y
	case East:
		return y, -x
	default:
		return x, y
	}
}

// RelativeToAbsolute maps an observation taken in the travel frame of origin
// into absolute tile coordinates and orientation. The relative displacement is
// rotated by the origin's orientation before translating by its tile.
func RelativeToAbsolute(origin Hypothesis, obs Observation) (x, y int, o Orientation) {
	dx, dy := rotateTile(obs.X, obs.Y, origin.Orientation)
	return origin.X + dx, origin.Y + dy, Rotate(origin.Orientation, int(obs.Orientation))
}

// AbsoluteToRelative is the inverse of RelativeToAbsolute
func AbsoluteToRelative(origin Hypothesis, x, y int, o Orientation) (rx, ry int, ro Orientation) {
	inverse := Rotate(North, -int(origin.Orientation))
	rx, ry = rotateTile(x-origin.X, y-origin.Y, inverse)
	return rx, ry, Rotate(o, -int(origin.Orientation))
}

// NormalizeRadians normalizes an angle to the range [0, 2π)
func NormalizeRadians(rad float64) float64 {
	rad = math.Mod(rad, 2*math.Pi)
	if rad < 0 {
		rad += 2 * math.Pi
	}
	return rad
}

// NormalizeAngle normalizes an angle in degrees to the range [0, 360).
func NormalizeAngle(degrees float64) float64 {
	degrees = math.Mod(degrees, 360)
	if degrees < 0 {
		degrees += 360
	}
	return degrees
}

// NormalizeTurn folds a turn angle in degrees into (-180, 180] so the robot
// always takes the shorter rotation.
func NormalizeTurn(degrees float64) float64 {
	for degrees <= -180 {
		degrees += 360
	}
	for degrees > 180 {
		degrees -= 360
	}
	return degrees
}

// Degrees converts radians to degrees
func Degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

// Radians converts degrees to radians
func Radians(deg float64) float64 {
	return deg * math.Pi / 180
}
