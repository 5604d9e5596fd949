// Package telemetry turns raw glider API records into display-ready values.
//
// Nothing here does I/O or keeps state; callers fetch records and pass the
// results on to the KML renderer.
//
//   - NMEA ddmm.mmmm coordinates to decimal degrees
//   - epoch seconds to the popup and KML timestamp formats
//   - median of sensor samples around a surfacing, classified against thresholds
//   - GPS fix staleness at surface connect
//   - popup field assembly for a surfacing record
package telemetry
