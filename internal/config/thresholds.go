package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"gliderkmz/internal/telemetry"
)

type thresholdEntry struct {
	FailThreshold *float64  `yaml:"fail_threshold"`
	SuspectSpan   []float64 `yaml:"suspect_span"`
}

// LoadThresholds reads the sensor threshold table:
//
//	m_battery:
//	  fail_threshold: 10.0
//	  suspect_span: [10.0, 12.0]
func LoadThresholds(path string) (telemetry.Thresholds, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseThresholds(b)
}

func ParseThresholds(b []byte) (telemetry.Thresholds, error) {
	var raw map[string]thresholdEntry
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("thresholds: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("thresholds: no sensors defined")
	}

	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(telemetry.Thresholds, len(raw))
	for _, name := range names {
		e := raw[name]
		if e.FailThreshold == nil {
			return nil, fmt.Errorf("thresholds.%s.fail_threshold is required", name)
		}
		if len(e.SuspectSpan) != 2 {
			return nil, fmt.Errorf("thresholds.%s.suspect_span must have 2 values", name)
		}
		if e.SuspectSpan[0] > e.SuspectSpan[1] {
			return nil, fmt.Errorf("thresholds.%s.suspect_span low must be <= high", name)
		}
		out[name] = telemetry.Threshold{
			FailThreshold: *e.FailThreshold,
			SuspectSpan:   [2]float64{e.SuspectSpan[0], e.SuspectSpan[1]},
		}
	}
	return out, nil
}

// CheckSensors reports the first configured sensor without a threshold.
func CheckSensors(sensors []string, th telemetry.Thresholds) error {
	for _, s := range sensors {
		if _, ok := th[s]; !ok {
			return fmt.Errorf("sensor %q has no entry in thresholds", s)
		}
	}
	return nil
}
