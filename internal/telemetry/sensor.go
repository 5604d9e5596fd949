package telemetry

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// SensorWindow is the half-width of the sample window around a surfacing.
const SensorWindow = 5 * time.Minute

type SensorSample struct {
	TS    time.Time
	Value float64
}

// Threshold classifies a sensor value. Values at or below FailThreshold fail;
// values strictly inside SuspectSpan are suspect.
type Threshold struct {
	FailThreshold float64
	SuspectSpan   [2]float64
}

// Thresholds maps a sensor name (e.g. m_battery) to its threshold.
type Thresholds map[string]Threshold

func (t Threshold) Classify(v float64) Status {
	if v <= t.FailThreshold {
		return StatusFail
	}
	if t.SuspectSpan[0] < v && v < t.SuspectSpan[1] {
		return StatusSuspect
	}
	return StatusOK
}

// SensorReading is the aggregated value for one sensor; Value is nil when no
// samples fell inside the window.
type SensorReading struct {
	Value  *float64 `json:"value"`
	Status Status   `json:"status"`
}

// UnknownSensorError is returned when samples exist for a sensor that has no
// configured threshold.
type UnknownSensorError struct {
	Sensor string
}

func (e *UnknownSensorError) Error() string {
	return fmt.Sprintf("no threshold configured for sensor %q", e.Sensor)
}

// AggregateSensor takes the median of samples within ±SensorWindow of center
// (bounds inclusive), rounded to 2 places, and classifies it against the
// sensor's threshold. An empty window is reported as (nil, SUSPECT) without
// consulting thresholds.
func AggregateSensor(samples []SensorSample, sensor string, center time.Time, thresholds Thresholds) (SensorReading, error) {
	lo := center.Add(-SensorWindow)
	hi := center.Add(SensorWindow)

	values := make([]float64, 0, len(samples))
	for _, s := range samples {
		if s.TS.Before(lo) || s.TS.After(hi) {
			continue
		}
		values = append(values, s.Value)
	}
	if len(values) == 0 {
		return SensorReading{Status: StatusSuspect}, nil
	}

	th, ok := thresholds[sensor]
	if !ok {
		return SensorReading{}, &UnknownSensorError{Sensor: sensor}
	}

	v := Round2(median(values))
	return SensorReading{Value: &v, Status: th.Classify(v)}, nil
}

// median sorts values in place.
func median(values []float64) float64 {
	sort.Float64s(values)
	n := len(values)
	if n%2 == 1 {
		return values[n/2]
	}
	return (values[n/2-1] + values[n/2]) / 2
}

// Round2 rounds to 2 decimal places, ties to even.
func Round2(v float64) float64 {
	return RoundPlaces(v, 2)
}

func RoundPlaces(v float64, places int32) float64 {
	out, _ := decimal.NewFromFloat(v).RoundBank(places).Float64()
	return out
}
