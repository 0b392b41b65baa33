package controller

import "math"

const (
	rumbleLowHz  = 160.0
	rumbleHighHz = 320.0
)

// rumbleMagnitudes splits a (frequency, amplitude) request across the
// force-feedback strong (low band) and weak (high band) motors. Frequencies
// at or below 160 Hz drive only the strong motor, at or above 320 Hz only the
// weak one, and anything in between is blended linearly.
func rumbleMagnitudes(frequency, amplitude float64) (strong, weak uint16) {
	amp := math.Max(0, math.Min(1, amplitude))
	t := (frequency - rumbleLowHz) / (rumbleHighHz - rumbleLowHz)
	t = math.Max(0, math.Min(1, t))
	strong = uint16(math.Round(amp * (1 - t) * math.MaxUint16))
	weak = uint16(math.Round(amp * t * math.MaxUint16))
	return strong, weak
}
