package training

import "math"

// Curve shapes a raw gain by how close the stat already is to its cap.
// Implementations must not increase the gain and must be non-increasing in current.
type Curve interface {
	Scale(gain, current, cap float64) float64
}

// SoftCapCurve passes gains through untouched until the stat reaches
// Ratio*cap, then tapers them by ((cap-current)/(cap-soft))^Exponent.
type SoftCapCurve struct {
	Ratio    float64
	Exponent float64
}

func (c SoftCapCurve) Scale(gain, current, cap float64) float64 {
	if gain <= 0 || cap <= 0 {
		return 0
	}
	soft := cap * c.Ratio
	if current <= soft || soft >= cap {
		return gain
	}
	frac := (cap - current) / (cap - soft)
	if frac <= 0 {
		return 0
	}
	return gain * math.Pow(frac, c.Exponent)
}

// FlatCurve applies no diminishing returns; the cap is still enforced by the engine.
type FlatCurve struct{}

func (FlatCurve) Scale(gain, _, _ float64) float64 {
	if gain < 0 {
		return 0
	}
	return gain
}
