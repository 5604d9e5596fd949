package telemetry

import (
	"errors"
	"math/rand"
	"testing"
	"time"
)

var batteryThresholds = Thresholds{
	"m_battery": {FailThreshold: 10.0, SuspectSpan: [2]float64{10.0, 12.0}},
	"m_vacuum":  {FailThreshold: 5.0, SuspectSpan: [2]float64{5.0, 6.0}},
}

func TestAggregateSensor_BatteryFailScenario(t *testing.T) {
	center := time.Date(2024, 3, 12, 14, 30, 0, 0, time.UTC)
	samples := []SensorSample{
		{TS: center.Add(-4 * time.Minute), Value: 9.5},
		{TS: center.Add(-1 * time.Minute), Value: 9.7},
		{TS: center.Add(2 * time.Minute), Value: 9.6},
	}
	got, err := AggregateSensor(samples, "m_battery", center, batteryThresholds)
	if err != nil {
		t.Fatalf("AggregateSensor() error: %v", err)
	}
	if got.Value == nil || *got.Value != 9.6 {
		t.Fatalf("value=%v want 9.6", got.Value)
	}
	if got.Status != StatusFail {
		t.Fatalf("status=%s want FAIL", got.Status)
	}
}

func TestAggregateSensor_Classification(t *testing.T) {
	center := time.Date(2024, 3, 12, 14, 30, 0, 0, time.UTC)
	cases := []struct {
		name  string
		value float64
		want  Status
	}{
		{name: "below fail", value: 9.99, want: StatusFail},
		{name: "equal fail", value: 10.0, want: StatusFail},
		{name: "inside span", value: 11.0, want: StatusSuspect},
		{name: "equal span high", value: 12.0, want: StatusOK},
		{name: "above span", value: 14.2, want: StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			samples := []SensorSample{{TS: center, Value: tc.value}}
			got, err := AggregateSensor(samples, "m_battery", center, batteryThresholds)
			if err != nil {
				t.Fatalf("AggregateSensor() error: %v", err)
			}
			if got.Status != tc.want {
				t.Fatalf("status=%s want %s", got.Status, tc.want)
			}
		})
	}
}

func TestAggregateSensor_EmptyWindowIsSuspect(t *testing.T) {
	center := time.Date(2024, 3, 12, 14, 30, 0, 0, time.UTC)
	far := []SensorSample{
		{TS: center.Add(-6 * time.Minute), Value: 14},
		{TS: center.Add(5*time.Minute + time.Second), Value: 14},
	}
	for _, th := range []Thresholds{nil, {}, batteryThresholds} {
		for _, samples := range [][]SensorSample{nil, far} {
			got, err := AggregateSensor(samples, "m_battery", center, th)
			if err != nil {
				t.Fatalf("AggregateSensor() error: %v", err)
			}
			if got.Value != nil {
				t.Fatalf("value=%v want nil", *got.Value)
			}
			if got.Status != StatusSuspect {
				t.Fatalf("status=%s want SUSPECT", got.Status)
			}
		}
	}
}

func TestAggregateSensor_WindowBoundsInclusive(t *testing.T) {
	center := time.Date(2024, 3, 12, 14, 30, 0, 0, time.UTC)
	samples := []SensorSample{
		{TS: center.Add(-5 * time.Minute), Value: 13},
		{TS: center.Add(5 * time.Minute), Value: 15},
		{TS: center.Add(5*time.Minute + time.Millisecond), Value: 1},
	}
	got, err := AggregateSensor(samples, "m_battery", center, batteryThresholds)
	if err != nil {
		t.Fatalf("AggregateSensor() error: %v", err)
	}
	if got.Value == nil || *got.Value != 14 {
		t.Fatalf("value=%v want 14 (median of the two boundary samples)", got.Value)
	}
	if got.Status != StatusOK {
		t.Fatalf("status=%s want OK", got.Status)
	}
}

func TestAggregateSensor_MedianResistsOutlier(t *testing.T) {
	center := time.Date(2024, 3, 12, 14, 30, 0, 0, time.UTC)
	samples := []SensorSample{
		{TS: center.Add(-3 * time.Minute), Value: 12.5},
		{TS: center.Add(-2 * time.Minute), Value: 12.6},
		{TS: center.Add(-1 * time.Minute), Value: 0.1},
		{TS: center, Value: 12.4},
		{TS: center.Add(time.Minute), Value: 12.5},
	}
	got, err := AggregateSensor(samples, "m_battery", center, batteryThresholds)
	if err != nil {
		t.Fatalf("AggregateSensor() error: %v", err)
	}
	if got.Value == nil || *got.Value != 12.5 || got.Status != StatusOK {
		t.Fatalf("got %+v want 12.5 OK", got)
	}
}

func TestAggregateSensor_OrderIndependent(t *testing.T) {
	center := time.Date(2024, 3, 12, 14, 30, 0, 0, time.UTC)
	base := make([]SensorSample, 0, 20)
	for i := 0; i < 20; i++ {
		base = append(base, SensorSample{
			TS:    center.Add(time.Duration(i-10) * 20 * time.Second),
			Value: 10.5 + float64(i%7)*0.137,
		})
	}
	want, err := AggregateSensor(base, "m_battery", center, batteryThresholds)
	if err != nil {
		t.Fatalf("AggregateSensor() error: %v", err)
	}

	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 25; round++ {
		shuffled := append([]SensorSample(nil), base...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		got, err := AggregateSensor(shuffled, "m_battery", center, batteryThresholds)
		if err != nil {
			t.Fatalf("AggregateSensor() error: %v", err)
		}
		if *got.Value != *want.Value || got.Status != want.Status {
			t.Fatalf("round %d: got %v/%s want %v/%s", round, *got.Value, got.Status, *want.Value, want.Status)
		}
	}
}

func TestAggregateSensor_DoesNotReorderInput(t *testing.T) {
	center := time.Date(2024, 3, 12, 14, 30, 0, 0, time.UTC)
	samples := []SensorSample{
		{TS: center, Value: 3},
		{TS: center, Value: 1},
		{TS: center, Value: 2},
	}
	if _, err := AggregateSensor(samples, "m_battery", center, batteryThresholds); err != nil {
		t.Fatalf("AggregateSensor() error: %v", err)
	}
	if samples[0].Value != 3 || samples[1].Value != 1 || samples[2].Value != 2 {
		t.Fatalf("input reordered: %+v", samples)
	}
}

func TestAggregateSensor_UnknownSensor(t *testing.T) {
	center := time.Date(2024, 3, 12, 14, 30, 0, 0, time.UTC)
	_, err := AggregateSensor([]SensorSample{{TS: center, Value: 1}}, "m_depth", center, batteryThresholds)
	var unk *UnknownSensorError
	if !errors.As(err, &unk) {
		t.Fatalf("err=%v want *UnknownSensorError", err)
	}
	if unk.Sensor != "m_depth" {
		t.Fatalf("sensor=%q want m_depth", unk.Sensor)
	}
}

func TestRound2_TiesToEven(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{0.125, 0.12},
		{0.135, 0.14},
		{2.5, 2.5},
		{-1.005, -1.0},
		{12.3456, 12.35},
	}
	for _, tc := range cases {
		if got := Round2(tc.in); got != tc.want {
			t.Fatalf("Round2(%v)=%v want %v", tc.in, got, tc.want)
		}
	}
}

func TestMedian_EvenCountAverages(t *testing.T) {
	if got := median([]float64{4, 1, 3, 2}); got != 2.5 {
		t.Fatalf("median=%v want 2.5", got)
	}
}
