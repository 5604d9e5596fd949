// Package kml assembles fetched glider data into a document model and renders
// it to KML or KMZ.
package kml

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"gliderkmz/internal/gliderapi"
	"gliderkmz/internal/telemetry"
)

// Document is everything the templates need for one output file.
type Document struct {
	Name        string
	TSNow       string
	Deployments []Deployment

	// SkippedRecords counts surfacing records dropped because they were
	// malformed.
	SkippedRecords int
}

type Deployment struct {
	Name       string
	GliderName string
	GliderTail string
	Color      string

	DistanceFlownKm *float64
	DaysDeployed    float64
	IridiumMinutes  int64

	LastSurfacing       Surfacing
	DeploymentSurfacing *Surfacing
	Waypoint            Waypoint

	Track            Track
	SurfacingFolders []SurfacingFolder
}

// Surfacing is a placemark at a surfacing position with its popup.
type Surfacing struct {
	ConnectTS  string
	ConnectTSZ string
	Lat        *float64
	Lon        *float64
	Style      string
	Popup      telemetry.PopupFields
}

// HasPosition reports whether the placemark can be drawn.
func (s Surfacing) HasPosition() bool {
	return s.Lat != nil && s.Lon != nil
}

// Waypoint is the glider's current target as of the last surfacing.
type Waypoint struct {
	Since   string
	LatNMEA *float64
	LonNMEA *float64
	Lat     *float64
	Lon     *float64
}

func (w Waypoint) HasPosition() bool {
	return w.Lat != nil && w.Lon != nil
}

type Coord struct {
	Lon float64
	Lat float64
}

// trackHeight is the altitude written with untimed track coordinates.
const trackHeight = 4.999999999999999

// Track holds either a single line (Line) or time-stamped segments
// (Segments), depending on TimeStamped.
type Track struct {
	TimeStamped bool
	Height      float64
	Line        []Coord
	Segments    []Segment
}

type Segment struct {
	Begin string
	End   string
	From  Coord
	To    Coord
}

type SurfacingFolder struct {
	Name   string
	Events []Surfacing
}

// DeploymentData is the raw API data for one deployment.
type DeploymentData struct {
	Deployment gliderapi.Deployment
	Sensors    map[string][]telemetry.SensorSample
	Track      []gliderapi.TrackPoint
	Surfacings []telemetry.Record
}

// Track rendering modes.
const (
	TypeDeployed   = "deployed"
	TypeDeployedTS = "deployed_ts"
)

const (
	StyleSurfacing       = "Surfacing"
	StyleRecentSurfacing = "RecentSurfacing"
)

// Builder turns DeploymentData into a Document.
type Builder struct {
	Sensors      []string
	Thresholds   telemetry.Thresholds
	KMLType      string
	GliderTails  string
	Colors       []string
	RecentWindow time.Duration

	// Logf receives one line per skipped record. Optional.
	Logf func(format string, args ...any)
}

func (b Builder) logf(format string, args ...any) {
	if b.Logf != nil {
		b.Logf(format, args...)
	}
}

// Build assembles the document. Malformed surfacing records are skipped and
// logged; a deployment whose last surfacing is malformed is skipped entirely.
// Configuration problems (e.g. a sensor without thresholds) are returned.
func (b Builder) Build(now time.Time, data []DeploymentData) (Document, error) {
	if len(b.Colors) == 0 {
		return Document{}, fmt.Errorf("kml: no colors configured")
	}
	if b.KMLType != TypeDeployed && b.KMLType != TypeDeployedTS {
		return Document{}, fmt.Errorf("kml: unsupported type %q", b.KMLType)
	}
	now = now.UTC().Truncate(time.Minute)
	doc := Document{
		Name:  "Active Deployments",
		TSNow: now.Format("01/02/06 15:04"),
	}

	for i, d := range data {
		dep, skipped, err := b.buildDeployment(now, i, d)
		doc.SkippedRecords += skipped
		if err != nil {
			if isRecordError(err) {
				doc.SkippedRecords++
				b.logf("kml: deployment=%s skipped: %v", d.Deployment.DeploymentName, err)
				continue
			}
			return Document{}, fmt.Errorf("kml: deployment %s: %w", d.Deployment.DeploymentName, err)
		}
		doc.Deployments = append(doc.Deployments, dep)
	}
	return doc, nil
}

func isRecordError(err error) bool {
	var missing *telemetry.MissingFieldError
	var invalid *telemetry.InvalidFieldError
	return errors.As(err, &missing) || errors.As(err, &invalid)
}

func (b Builder) buildDeployment(now time.Time, idx int, d DeploymentData) (Deployment, int, error) {
	api := d.Deployment
	out := Deployment{
		Name:            api.DeploymentName,
		GliderName:      api.GliderName,
		GliderTail:      b.GliderTails + api.GliderName + ".png",
		Color:           b.Colors[idx%len(b.Colors)],
		DistanceFlownKm: api.DistanceFlownKm,
		DaysDeployed:    daysDeployed(now, api.StartEpoch, api.EndEpoch),
	}

	ls, err := telemetry.ParseSurfaceEvent(api.LastSurfacing)
	if err != nil {
		return Deployment{}, 0, fmt.Errorf("last_surfacing: %w", err)
	}
	lsPopup := telemetry.NewPopup(ls)
	if err := lsPopup.AddSensors(d.Sensors, b.Sensors, b.Thresholds); err != nil {
		return Deployment{}, 0, err
	}
	lsPopup.Dive = telemetry.LastSurfacingDive(ls)
	out.LastSurfacing = Surfacing{
		ConnectTS:  lsPopup.ConnectTS,
		ConnectTSZ: telemetry.FormatEpochZ(ls.ConnectEpoch),
		Lat:        ls.GPSLatDegrees,
		Lon:        ls.GPSLonDegrees,
		Popup:      lsPopup,
	}
	out.Waypoint = Waypoint{
		Since:   lsPopup.DisconnectTS,
		LatNMEA: ls.WaypointLat,
		LonNMEA: ls.WaypointLon,
		Lat:     telemetry.NMEAToDecimal(ls.WaypointLat),
		Lon:     telemetry.NMEAToDecimal(ls.WaypointLon),
	}

	points := trackPoints(d.Track, ls)
	var deploymentSID *int64
	if len(points) > 0 {
		sid := points[0].SurfacingID
		deploymentSID = &sid
	}
	out.Track = buildTrack(points, b.KMLType == TypeDeployedTS)

	recentLabel := recentFolderName(b.RecentWindow)
	recentSince := now.Add(-b.RecentWindow)
	folders := map[string]*SurfacingFolder{}
	var callSeconds float64
	skipped := 0

	for i, rec := range d.Surfacings {
		ev, err := telemetry.ParseSurfaceEvent(rec)
		if err != nil {
			skipped++
			b.logf("kml: deployment=%s surfacing[%d] skipped: %v", api.DeploymentName, i, err)
			continue
		}
		if ev.CallLengthSeconds != nil {
			callSeconds += *ev.CallLengthSeconds
		}

		popup := telemetry.NewPopup(ev)
		popup.Dive = telemetry.UnknownDive()
		if err := popup.AddSensors(d.Sensors, b.Sensors, b.Thresholds); err != nil {
			return Deployment{}, skipped, err
		}

		connect := telemetry.EpochTime(ev.ConnectEpoch).Truncate(time.Minute)
		folderName, style := connect.Format("2006-01-02"), StyleSurfacing
		if !connect.Before(recentSince) {
			folderName, style = recentLabel, StyleRecentSurfacing
		}
		f, ok := folders[folderName]
		if !ok {
			f = &SurfacingFolder{Name: folderName}
			folders[folderName] = f
		}
		f.Events = append(f.Events, Surfacing{
			ConnectTS:  popup.ConnectTS,
			ConnectTSZ: telemetry.FormatEpochZ(ev.ConnectEpoch),
			Lat:        ev.GPSLatDegrees,
			Lon:        ev.GPSLonDegrees,
			Style:      style,
			Popup:      popup,
		})

		if deploymentSID != nil && ev.SurfacingID != nil && *ev.SurfacingID == *deploymentSID {
			dp := popup
			dp.Sensors = copyReadings(popup.Sensors)
			dp.Dive = telemetry.NotApplicableDive()
			out.DeploymentSurfacing = &Surfacing{
				ConnectTS:  dp.ConnectTS,
				ConnectTSZ: telemetry.FormatEpochZ(ev.ConnectEpoch),
				Lat:        ev.GPSLatDegrees,
				Lon:        ev.GPSLonDegrees,
				Popup:      dp,
			}
		}
	}

	out.IridiumMinutes = int64(math.RoundToEven(callSeconds / 60))
	out.SurfacingFolders = orderFolders(folders, recentLabel)
	return out, skipped, nil
}

// trackPoints returns the API track plus the last surfacing, sorted by GPS
// time.
func trackPoints(api []gliderapi.TrackPoint, ls telemetry.SurfaceEvent) []gliderapi.TrackPoint {
	points := append([]gliderapi.TrackPoint(nil), api...)
	if ls.GPSLatDegrees != nil && ls.GPSLonDegrees != nil {
		var sid int64
		if ls.SurfacingID != nil {
			sid = *ls.SurfacingID
		}
		points = append(points, gliderapi.TrackPoint{
			GPSEpoch:    ls.ConnectEpoch,
			Lon:         *ls.GPSLonDegrees,
			Lat:         *ls.GPSLatDegrees,
			SurfacingID: sid,
		})
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].GPSEpoch < points[j].GPSEpoch })
	return points
}

func buildTrack(points []gliderapi.TrackPoint, timeStamped bool) Track {
	t := Track{TimeStamped: timeStamped, Height: trackHeight}
	if !timeStamped {
		t.Line = make([]Coord, 0, len(points))
		for _, p := range points {
			t.Line = append(t.Line, Coord{Lon: p.Lon, Lat: p.Lat})
		}
		return t
	}
	for i := 1; i < len(points); i++ {
		prev, cur := points[i-1], points[i]
		t.Segments = append(t.Segments, Segment{
			Begin: telemetry.FormatEpochZ(prev.GPSEpoch),
			End:   telemetry.FormatEpochZ(cur.GPSEpoch),
			From:  Coord{Lon: prev.Lon, Lat: prev.Lat},
			To:    Coord{Lon: cur.Lon, Lat: cur.Lat},
		})
	}
	return t
}

// daysDeployed is the deployment age in days, 2 places. Open deployments run
// until now.
func daysDeployed(now time.Time, start int64, end *int64) float64 {
	stop := now.Unix()
	if end != nil {
		stop = *end
	}
	return telemetry.Round2(float64(stop-start) / 86400)
}

func recentFolderName(window time.Duration) string {
	return fmt.Sprintf("Last %g Hours", window.Hours())
}

// orderFolders puts the recent folder first, then day folders newest first.
func orderFolders(folders map[string]*SurfacingFolder, recent string) []SurfacingFolder {
	names := make([]string, 0, len(folders))
	for name := range folders {
		if name != recent {
			names = append(names, name)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	out := make([]SurfacingFolder, 0, len(folders))
	if f, ok := folders[recent]; ok {
		out = append(out, *f)
	}
	for _, name := range names {
		out = append(out, *folders[name])
	}
	return out
}

func copyReadings(in map[string]telemetry.SensorReading) map[string]telemetry.SensorReading {
	out := make(map[string]telemetry.SensorReading, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
