package env

import (
	"fmt"
	"math"
)

// ActionScaler maps bounded [-1, 1] policy outputs to per-dimension
// environment ranges with the affine transform (u+1)/2*(hi-lo)+lo.
type ActionScaler struct {
	Lo []float64
	Hi []float64
}

// DefaultScaler covers the go-to-goal action space: linear velocity in
// [0, 0.2] and angular velocity in [-pi/4, pi/4].
func DefaultScaler() ActionScaler {
	return ActionScaler{
		Lo: []float64{0, -math.Pi / 4},
		Hi: []float64{0.2, math.Pi / 4},
	}
}

func (s ActionScaler) Scale(u []float64) ([]float64, error) {
	if len(u) != len(s.Lo) || len(s.Lo) != len(s.Hi) {
		return nil, fmt.Errorf("action scaler wants %d dims, got %d", len(s.Lo), len(u))
	}
	out := make([]float64, len(u))
	for i, v := range u {
		out[i] = (v+1)/2*(s.Hi[i]-s.Lo[i]) + s.Lo[i]
	}
	return out, nil
}
