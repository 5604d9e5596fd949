package telemetry

import "time"

const (
	popupLayout = "2006-01-02 15:04"
	zuluLayout  = "2006-01-02T15:04:05Z"
)

// EpochTime returns the UTC time for UNIX seconds.
func EpochTime(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

// FormatEpoch formats UNIX seconds as "YYYY-MM-DD HH:MM" (UTC).
func FormatEpoch(sec int64) string {
	return EpochTime(sec).Format(popupLayout)
}

// FormatEpochZ formats UNIX seconds as a KML timestamp, "YYYY-MM-DDTHH:MM:SSZ".
func FormatEpochZ(sec int64) string {
	return EpochTime(sec).Format(zuluLayout)
}
