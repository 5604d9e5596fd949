package gliderapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sort"
	"strings"
	"time"

	"gliderkmz/internal/telemetry"
)

type dataEnvelope struct {
	Data []telemetry.Record `json:"data"`
}

// Deployment is one entry of deployments/?active.
type Deployment struct {
	GliderName      string
	DeploymentName  string
	DistanceFlownKm *float64
	StartEpoch      int64
	EndEpoch        *int64
	LastSurfacing   telemetry.Record
}

func ParseDeployment(r telemetry.Record) (Deployment, error) {
	var d Deployment
	var err error
	if d.GliderName, err = r.String("glider_name"); err != nil {
		return Deployment{}, err
	}
	if d.DeploymentName, err = r.String("deployment_name"); err != nil {
		return Deployment{}, err
	}
	if d.StartEpoch, err = r.Int("start_date_epoch"); err != nil {
		return Deployment{}, fmt.Errorf("deployment %s: %w", d.DeploymentName, err)
	}
	d.EndEpoch = r.OptionalInt("end_date_epoch")
	d.DistanceFlownKm = r.OptionalFloat("distance_flown_km")

	raw, ok := r["last_surfacing"]
	if !ok || raw == nil {
		return Deployment{}, fmt.Errorf("deployment %s: %w", d.DeploymentName, &telemetry.MissingFieldError{Field: "last_surfacing"})
	}
	ls, ok := raw.(map[string]any)
	if !ok {
		return Deployment{}, fmt.Errorf("deployment %s: %w", d.DeploymentName, &telemetry.InvalidFieldError{Field: "last_surfacing", Value: raw})
	}
	d.LastSurfacing = telemetry.Record(ls)
	return d, nil
}

// ActiveDeployments lists deployments that are currently in the water.
// Entries with missing or malformed fields are logged and left out; skipped
// is how many were dropped.
func (c *Client) ActiveDeployments(ctx context.Context) (deps []Deployment, skipped int, err error) {
	var env dataEnvelope
	// The API keys on the presence of "active", not its value.
	if err := c.getRaw(ctx, "deployments/", "active", &env); err != nil {
		return nil, 0, err
	}
	deps = make([]Deployment, 0, len(env.Data))
	for i, r := range env.Data {
		d, err := ParseDeployment(r)
		if err != nil {
			if !isRecordError(err) {
				return nil, 0, fmt.Errorf("gliderapi: deployments[%d]: %w", i, err)
			}
			skipped++
			name, _ := r.String("deployment_name")
			log.Printf("gliderapi: deployments[%d] deployment=%s skipped: %v", i, name, err)
			continue
		}
		deps = append(deps, d)
	}
	return deps, skipped, nil
}

func isRecordError(err error) bool {
	var missing *telemetry.MissingFieldError
	var invalid *telemetry.InvalidFieldError
	return errors.As(err, &missing) || errors.As(err, &invalid)
}

func (c *Client) getRaw(ctx context.Context, path, rawQuery string, out any) error {
	q, err := url.ParseQuery(rawQuery)
	if err != nil {
		return err
	}
	return c.get(ctx, path, q, out)
}

// Surfacings returns every surfacing record for a deployment in API order.
func (c *Client) Surfacings(ctx context.Context, deployment string) ([]telemetry.Record, error) {
	var env dataEnvelope
	if err := c.get(ctx, "surfacings/", url.Values{"deployment": {deployment}}, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

var sensorTSLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	time.RFC3339,
}

// Sensor returns one sensor's samples for a deployment, ordered by time.
// Samples with a null value are dropped.
func (c *Client) Sensor(ctx context.Context, deployment, sensor string) ([]telemetry.SensorSample, error) {
	var env dataEnvelope
	q := url.Values{"deployment": {deployment}, "sensor": {sensor}}
	if err := c.get(ctx, "sensors/", q, &env); err != nil {
		return nil, err
	}

	out := make([]telemetry.SensorSample, 0, len(env.Data))
	for i, r := range env.Data {
		v := r.OptionalFloat("value")
		if v == nil {
			continue
		}
		ts, err := sampleTime(r)
		if err != nil {
			return nil, fmt.Errorf("gliderapi: sensor %s %s [%d]: %w", deployment, sensor, i, err)
		}
		out = append(out, telemetry.SensorSample{TS: ts, Value: *v})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TS.Before(out[j].TS) })
	return out, nil
}

func sampleTime(r telemetry.Record) (time.Time, error) {
	if sec := r.OptionalInt("epoch_seconds"); sec != nil {
		return telemetry.EpochTime(*sec), nil
	}
	s, err := r.String("ts")
	if err != nil {
		return time.Time{}, err
	}
	s = strings.TrimSpace(s)
	for _, layout := range sensorTSLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised ts %q", s)
}

// TrackPoint is one GPS fix from the tracks endpoint.
type TrackPoint struct {
	GPSEpoch    int64
	Lon         float64
	Lat         float64
	SurfacingID int64
}

type featureCollection struct {
	Features []feature `json:"features"`
}

type feature struct {
	Geometry struct {
		Type        string          `json:"type"`
		Coordinates json.RawMessage `json:"coordinates"`
	} `json:"geometry"`
	Properties struct {
		GPSEpoch json.Number `json:"gps_epoch"`
		SID      json.Number `json:"sid"`
	} `json:"properties"`
}

// Track returns the Point features of a deployment's track GeoJSON. Line
// features are skipped. Points are returned in API order.
func (c *Client) Track(ctx context.Context, deployment string) ([]TrackPoint, error) {
	var fc featureCollection
	if err := c.get(ctx, "tracks/", url.Values{"deployment": {deployment}}, &fc); err != nil {
		return nil, err
	}
	out := make([]TrackPoint, 0, len(fc.Features))
	for i, f := range fc.Features {
		if f.Geometry.Type != "Point" {
			continue
		}
		var coords []float64
		if err := json.Unmarshal(f.Geometry.Coordinates, &coords); err != nil {
			return nil, fmt.Errorf("gliderapi: track %s feature %d: coordinates: %w", deployment, i, err)
		}
		if len(coords) < 2 {
			return nil, fmt.Errorf("gliderapi: track %s feature %d: short coordinates", deployment, i)
		}
		epoch, err := f.Properties.GPSEpoch.Int64()
		if err != nil {
			return nil, fmt.Errorf("gliderapi: track %s feature %d: gps_epoch: %w", deployment, i, err)
		}
		sid, err := f.Properties.SID.Int64()
		if err != nil {
			return nil, fmt.Errorf("gliderapi: track %s feature %d: sid: %w", deployment, i, err)
		}
		out = append(out, TrackPoint{GPSEpoch: epoch, Lon: coords[0], Lat: coords[1], SurfacingID: sid})
	}
	return out, nil
}
