package tank

// Status is the coarse fill band shown to operators.
type Status string

const (
	StatusLow          Status = "low level"
	StatusNormal       Status = "normal"
	StatusCriticalHigh Status = "critical high"
)

// StatusFor maps a fill percentage onto its band.
func StatusFor(percentage float64) Status {
	switch {
	case percentage > 90:
		return StatusCriticalHigh
	case percentage < 20:
		return StatusLow
	default:
		return StatusNormal
	}
}

// Volume converts a fill percentage into litres for a tank of the given size.
func Volume(percentage, litres float64) float64 {
	return ClampPercentage(percentage) / MaxPercentage * litres
}
