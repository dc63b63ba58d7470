package nav

import "errors"

var (
	// ErrOutOfBounds is returned for coordinates outside the grid or on an absent tile.
	ErrOutOfBounds = errors.New("position out of bounds")

	// ErrSensorTimeout is returned when no range sample could be read.
	ErrSensorTimeout = errors.New("range sensor timeout")

	// ErrLocalizationExhausted means every hypothesis was eliminated; the
	// observations are inconsistent with the map.
	ErrLocalizationExhausted = errors.New("localization exhausted: no consistent starting position")

	// ErrStepLimit means exploration ran out of steps before converging.
	ErrStepLimit = errors.New("localization step limit reached")

	// ErrAlreadyCorrected is returned by a second ApplyCorrection.
	ErrAlreadyCorrected = errors.New("odometer already corrected")

	// ErrNotRunning is returned when stopping an odometer that was never started.
	ErrNotRunning = errors.New("odometer not running")
)
