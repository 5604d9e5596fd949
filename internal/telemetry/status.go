package telemetry

import "fmt"

// Status is the traffic-light classification shown in popups.
type Status int

const (
	StatusOK Status = iota
	StatusSuspect
	StatusFail
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusSuspect:
		return "SUSPECT"
	case StatusFail:
		return "FAIL"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Color is the popup cell background for the status.
func (s Status) Color() string {
	switch s {
	case StatusFail:
		return "darkred"
	case StatusSuspect:
		return "BEA60E"
	default:
		return "green"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
