package telemetry

import "math"

// NMEAToDecimal converts a signed NMEA ddmm.mmmm (or dddmm.mmmm) value to
// decimal degrees. The sign carries the hemisphere. A nil input, or one that is
// not a finite number, yields nil.
func NMEAToDecimal(x *float64) *float64 {
	if x == nil || math.IsNaN(*x) || math.IsInf(*x, 0) {
		return nil
	}
	v := nmeaDegrees(*x)
	return &v
}

func nmeaDegrees(x float64) float64 {
	abs := math.Abs(x)
	dec := math.Floor(abs/100) + math.Mod(abs, 100)/60.0
	switch {
	case x < 0:
		return -dec
	case x == 0:
		return 0
	default:
		return dec
	}
}
