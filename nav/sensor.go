package nav

import (
	"fmt"
	"log"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Sensor filtering defaults
const (
	DefaultMaxRange      = 50.0
	DefaultSettleDelay   = 50 * time.Millisecond
	DefaultSensorSamples = 5
	DefaultSensorRetries = 3
)

// FilteredRange debounces a RangeSensor: it takes a burst of readings, caps
// each at MaxRange, and reports the median.
type FilteredRange struct {
	Sensor   RangeSensor
	MaxRange float64
	Settle   time.Duration
	Samples  int
	Retries  int

	// sleep is swapped out in tests
	sleep func(time.Duration)
}

// NewFilteredRange wraps sensor using the given settings, falling back to
// defaults for zero values.
func NewFilteredRange(sensor RangeSensor, cfg SensorConfig) *FilteredRange {
	f := &FilteredRange{
		Sensor:   sensor,
		MaxRange: cfg.MaxRange,
		Settle:   time.Duration(cfg.SettleMs) * time.Millisecond,
		Samples:  cfg.Samples,
		Retries:  cfg.Retries,
		sleep:    time.Sleep,
	}
	if f.MaxRange <= 0 {
		f.MaxRange = DefaultMaxRange
	}
	if cfg.SettleMs <= 0 {
		f.Settle = DefaultSettleDelay
	}
	if f.Samples <= 0 {
		f.Samples = DefaultSensorSamples
	}
	if f.Retries < 0 {
		f.Retries = 0
	}
	return f
}

// readOnce pings, waits for the echo and reads one capped sample
func (f *FilteredRange) readOnce() (float64, error) {
	if err := f.Sensor.Ping(); err != nil {
		return 0, err
	}
	if f.Settle > 0 && f.sleep != nil {
		f.sleep(f.Settle)
	}
	d, err := f.Sensor.Read()
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid range reading %.1f", d)
	}
	if d > f.MaxRange {
		d = f.MaxRange
	}
	return d, nil
}

// Distance returns the median of a burst of readings. Each failed reading is
// retried up to Retries times; if no reading in the burst succeeds,
// ErrSensorTimeout is returned.
func (f *FilteredRange) Distance() (float64, error) {
	samples := make([]float64, 0, f.Samples)
	var lastErr error

	for i := 0; i < f.Samples; i++ {
		for attempt := 0; attempt <= f.Retries; attempt++ {
			d, err := f.readOnce()
			if err == nil {
				samples = append(samples, d)
				break
			}
			lastErr = err
		}
	}

	if len(samples) == 0 {
		return f.MaxRange, fmt.Errorf("%w: %v", ErrSensorTimeout, lastErr)
	}
	if len(samples) < f.Samples {
		log.Printf("[SENSOR] Warning: %d of %d range readings failed (last error: %v)",
			f.Samples-len(samples), f.Samples, lastErr)
	}

	sort.Float64s(samples)
	return stat.Quantile(0.5, stat.Empirical, samples, nil), nil
}
