package telemetry

const (
	gpsDelaySuspectSec = 600  // 10 minutes
	gpsDelayFailSec    = 3600 // 1 hour
)

// ClassifyGPSDelay grades the age of the GPS fix at surface connect.
//
//	delta >= 3600s      FAIL
//	600s < delta < 3600 SUSPECT
//	delta <= 600s       OK
//
// A negative delta (fix after connect) is treated as fresh rather than
// wrapped to a day-relative offset, which would grade it FAIL.
func ClassifyGPSDelay(connectEpoch, gpsEpoch int64) Status {
	delta := connectEpoch - gpsEpoch
	switch {
	case delta >= gpsDelayFailSec:
		return StatusFail
	case delta > gpsDelaySuspectSec:
		return StatusSuspect
	default:
		return StatusOK
	}
}
