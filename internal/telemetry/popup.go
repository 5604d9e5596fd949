package telemetry

import (
	"fmt"
	"math"
	"time"
)

// EWO is an errors/warnings/oddities count triple.
type EWO struct {
	Errors   int64
	Warnings int64
	Oddities int64
}

func (c EWO) String() string {
	return fmt.Sprintf("%d/%d/%d", c.Errors, c.Warnings, c.Oddities)
}

// SurfaceEvent is the typed view of a surfacing record. Pointer fields are
// optional upstream and stay nil when absent.
type SurfaceEvent struct {
	ConnectEpoch    int64
	DisconnectEpoch int64
	GPSEpoch        int64

	SurfaceReason string
	Mission       string
	Filename      string
	Filename8x3   *string
	DSVRLog       *string

	Segment      EWO
	MissionTotal EWO
	Total        EWO

	// NMEA-encoded.
	GPSLat *float64
	GPSLon *float64
	// Decimal degrees as computed by the API.
	GPSLatDegrees *float64
	GPSLonDegrees *float64

	WaypointLat            *float64
	WaypointLon            *float64
	WaypointRangeMeters    *float64
	WaypointBearingDegrees *float64

	SurfacingID       *int64
	DiveTimeSeconds   *float64
	SegmentDistanceM  *float64
	CallLengthSeconds *float64
}

// ParseSurfaceEvent checks required fields in a fixed order and returns the
// first *MissingFieldError (or *InvalidFieldError) it meets.
func ParseSurfaceEvent(r Record) (SurfaceEvent, error) {
	var ev SurfaceEvent
	var err error

	ints := []struct {
		key string
		dst *int64
	}{
		{"connect_time_epoch", &ev.ConnectEpoch},
		{"disconnect_time_epoch", &ev.DisconnectEpoch},
		{"gps_timestamp_epoch", &ev.GPSEpoch},
	}
	for _, f := range ints {
		if *f.dst, err = r.Int(f.key); err != nil {
			return SurfaceEvent{}, err
		}
	}

	strs := []struct {
		key string
		dst *string
	}{
		{"surface_reason", &ev.SurfaceReason},
		{"mission", &ev.Mission},
		{"filename", &ev.Filename},
	}
	for _, f := range strs {
		if *f.dst, err = r.String(f.key); err != nil {
			return SurfaceEvent{}, err
		}
	}

	counts := []struct {
		prefix string
		dst    *EWO
	}{
		{"segment", &ev.Segment},
		{"mission", &ev.MissionTotal},
		{"total", &ev.Total},
	}
	for _, c := range counts {
		if c.dst.Errors, err = r.Int(c.prefix + "_errors"); err != nil {
			return SurfaceEvent{}, err
		}
		if c.dst.Warnings, err = r.Int(c.prefix + "_warnings"); err != nil {
			return SurfaceEvent{}, err
		}
		if c.dst.Oddities, err = r.Int(c.prefix + "_oddities"); err != nil {
			return SurfaceEvent{}, err
		}
	}

	ev.Filename8x3 = r.OptionalString("the8x3_filename")
	ev.DSVRLog = r.OptionalString("dsvr_log_name")
	ev.GPSLat = r.OptionalFloat("gps_lat")
	ev.GPSLon = r.OptionalFloat("gps_lon")
	ev.GPSLatDegrees = r.OptionalFloat("gps_lat_degrees")
	ev.GPSLonDegrees = r.OptionalFloat("gps_lon_degrees")
	ev.WaypointLat = r.OptionalFloat("waypoint_lat")
	ev.WaypointLon = r.OptionalFloat("waypoint_lon")
	ev.WaypointRangeMeters = r.OptionalFloat("waypoint_range_meters")
	ev.WaypointBearingDegrees = r.OptionalFloat("waypoint_bearing_degrees")
	ev.SurfacingID = r.OptionalInt("surfacing_id")
	ev.DiveTimeSeconds = r.OptionalFloat("dive_time_seconds")
	ev.SegmentDistanceM = r.OptionalFloat("segment_distance_m")
	ev.CallLengthSeconds = r.OptionalFloat("call_length_seconds")
	return ev, nil
}

// DiveInfo holds the dive time/distance/speed cells of a popup. NotApplicable
// marks the deployment surfacing, where there is no previous dive.
type DiveInfo struct {
	NotApplicable bool `json:"not_applicable,omitempty"`

	TimeMinutes *int64   `json:"dive_time"`
	DistanceKm  *float64 `json:"dive_dist"`

	// Speeds are m/s; no source computes them yet.
	TotalSpeed          *float64 `json:"total_speed"`
	TotalSpeedBearing   *float64 `json:"total_speed_bearing"`
	CurrentSpeed        *float64 `json:"current_speed"`
	CurrentSpeedBearing *float64 `json:"current_speed_bearing"`
	GlideSpeed          *float64 `json:"glide_speed"`
	GlideSpeedBearing   *float64 `json:"glide_speed_bearing"`
}

// LastSurfacingDive fills dive minutes and segment distance (km) from the
// record.
func LastSurfacingDive(ev SurfaceEvent) DiveInfo {
	var d DiveInfo
	if ev.DiveTimeSeconds != nil {
		m := int64(math.RoundToEven(*ev.DiveTimeSeconds / 60))
		d.TimeMinutes = &m
	}
	if ev.SegmentDistanceM != nil {
		km := Round2(*ev.SegmentDistanceM / 1000)
		d.DistanceKm = &km
	}
	return d
}

// UnknownDive is used for surfacings other than the last one.
func UnknownDive() DiveInfo {
	return DiveInfo{}
}

func NotApplicableDive() DiveInfo {
	return DiveInfo{NotApplicable: true}
}

// PopupFields is the display-ready content of a surfacing popup.
type PopupFields struct {
	ConnectTS    string `json:"connect_ts"`
	DisconnectTS string `json:"disconnect_ts"`
	GPSConnectTS string `json:"gps_connect_ts"`

	GPSLat    *float64 `json:"gps_lat"`
	GPSLon    *float64 `json:"gps_lon"`
	GPSStatus Status   `json:"gps_status"`

	Reason      string  `json:"reason"`
	Mission     string  `json:"mission"`
	Filename    string  `json:"filename"`
	Filename8x3 *string `json:"filename_8x3"`
	DSVRLog     *string `json:"dsvr_log"`

	SegmentEWO string `json:"segment_ewo"`
	MissionEWO string `json:"mission_ewo"`
	TotalEWO   string `json:"total_ewo"`

	WaypointLat     *float64 `json:"waypoint_lat"`
	WaypointLon     *float64 `json:"waypoint_lon"`
	WaypointRange   *float64 `json:"waypoint_range"`
	WaypointBearing *float64 `json:"waypoint_bearing"`

	Sensors map[string]SensorReading `json:"sensors"`
	Dive    DiveInfo                 `json:"dive"`

	sensorCenter time.Time
}

// BuildPopup parses r and assembles its popup fields.
func BuildPopup(r Record) (PopupFields, error) {
	ev, err := ParseSurfaceEvent(r)
	if err != nil {
		return PopupFields{}, err
	}
	return NewPopup(ev), nil
}

func NewPopup(ev SurfaceEvent) PopupFields {
	p := PopupFields{
		ConnectTS:       FormatEpoch(ev.ConnectEpoch),
		DisconnectTS:    FormatEpoch(ev.DisconnectEpoch),
		GPSConnectTS:    FormatEpoch(ev.GPSEpoch),
		GPSLat:          round2Ptr(NMEAToDecimal(ev.GPSLat)),
		GPSLon:          round2Ptr(NMEAToDecimal(ev.GPSLon)),
		GPSStatus:       ClassifyGPSDelay(ev.ConnectEpoch, ev.GPSEpoch),
		Reason:          ev.SurfaceReason,
		Mission:         ev.Mission,
		Filename:        ev.Filename,
		Filename8x3:     ev.Filename8x3,
		DSVRLog:         ev.DSVRLog,
		SegmentEWO:      ev.Segment.String(),
		MissionEWO:      ev.MissionTotal.String(),
		TotalEWO:        ev.Total.String(),
		WaypointLat:     NMEAToDecimal(ev.WaypointLat),
		WaypointLon:     NMEAToDecimal(ev.WaypointLon),
		WaypointBearing: ev.WaypointBearingDegrees,
		Sensors:         map[string]SensorReading{},
		// The popup shows disconnect at minute resolution and sensors are
		// centred on that displayed time.
		sensorCenter: EpochTime(ev.DisconnectEpoch).Truncate(time.Minute),
	}
	if ev.WaypointRangeMeters != nil {
		km := *ev.WaypointRangeMeters / 1000
		p.WaypointRange = &km
	}
	return p
}

// AddSensors aggregates each named sensor around the surfacing disconnect
// time. Sensors with no samples at all still get a (nil, SUSPECT) reading.
func (p *PopupFields) AddSensors(data map[string][]SensorSample, sensors []string, thresholds Thresholds) error {
	if p.Sensors == nil {
		p.Sensors = map[string]SensorReading{}
	}
	for _, name := range sensors {
		reading, err := AggregateSensor(data[name], name, p.sensorCenter, thresholds)
		if err != nil {
			return err
		}
		p.Sensors[name] = reading
	}
	return nil
}

var notApplicableKeys = []string{
	"dive_time", "dive_dist",
	"total_speed", "total_speed_bearing",
	"glide_speed", "glide_speed_bearing",
}

// Fields flattens the popup into the key/value form used by templates. Every
// key is always present; optional values are nil.
func (p PopupFields) Fields() map[string]any {
	m := map[string]any{
		"connect_ts":       p.ConnectTS,
		"disconnect_ts":    p.DisconnectTS,
		"gps_connect_ts":   p.GPSConnectTS,
		"gps_lat":          deref(p.GPSLat),
		"gps_lon":          deref(p.GPSLon),
		"gps_bgcolor":      p.GPSStatus.Color(),
		"reason":           p.Reason,
		"mission":          p.Mission,
		"filename":         p.Filename,
		"filename_8x3":     derefString(p.Filename8x3),
		"dsvr_log":         derefString(p.DSVRLog),
		"segment_ewo":      p.SegmentEWO,
		"mission_ewo":      p.MissionEWO,
		"total_ewo":        p.TotalEWO,
		"waypoint_lat":     deref(p.WaypointLat),
		"waypoint_lon":     deref(p.WaypointLon),
		"waypoint_range":   deref(p.WaypointRange),
		"waypoint_bearing": deref(p.WaypointBearing),

		"dive_time":             nil,
		"dive_dist":             deref(p.Dive.DistanceKm),
		"total_speed":           deref(p.Dive.TotalSpeed),
		"total_speed_bearing":   deref(p.Dive.TotalSpeedBearing),
		"current_speed":         deref(p.Dive.CurrentSpeed),
		"current_speed_bearing": deref(p.Dive.CurrentSpeedBearing),
		"glide_speed":           deref(p.Dive.GlideSpeed),
		"glide_speed_bearing":   deref(p.Dive.GlideSpeedBearing),
	}
	if p.Dive.TimeMinutes != nil {
		m["dive_time"] = *p.Dive.TimeMinutes
	}
	if p.Dive.NotApplicable {
		for _, k := range notApplicableKeys {
			m[k] = "N/A"
		}
	}
	for name, r := range p.Sensors {
		m[name] = deref(r.Value)
		m[name+"_bgcolor"] = r.Status.Color()
	}
	return m
}

func round2Ptr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := Round2(*v)
	return &r
}

func deref(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func derefString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}
