// Package scaler implements reversible min-max normalization of a price
// column into [0, 1].
package scaler

import (
	"fmt"
	"math"

	"stockwave/apperrors"
)

// State holds the bounds fitted on one series. The same State must be used
// at inference time as at training time.
type State struct {
	Feature string  `json:"feature"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
}

// Fit computes the bounds over values. A constant series has no usable
// range and fails with a degenerate series error.
func Fit(feature string, values []float64) (State, error) {
	if len(values) == 0 {
		return State{}, apperrors.New(apperrors.CodeInsufficientHistory, "scaler: empty series")
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return State{}, apperrors.New(apperrors.CodeDataUnavailable,
				fmt.Sprintf("scaler: non-finite %s value at index %d", feature, i))
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	if hi == lo {
		return State{}, apperrors.New(apperrors.CodeDegenerateSeries,
			fmt.Sprintf("scaler: %s is constant at %g", feature, lo))
	}

	return State{Feature: feature, Min: lo, Max: hi}, nil
}

// Validate reports whether the state can be applied.
func (s State) Validate() error {
	if math.IsNaN(s.Min) || math.IsNaN(s.Max) || s.Max <= s.Min {
		return apperrors.New(apperrors.CodeStateMismatch,
			fmt.Sprintf("scaler: invalid bounds [%g, %g]", s.Min, s.Max))
	}
	return nil
}

// Scale maps x into the fitted range. Values outside the fitted bounds map
// outside [0, 1].
func (s State) Scale(x float64) float64 {
	return (x - s.Min) / (s.Max - s.Min)
}

// Inverse maps a scaled value back to price units.
func (s State) Inverse(y float64) float64 {
	return y*(s.Max-s.Min) + s.Min
}

// Transform applies a previously fitted state to values without refitting.
func Transform(s State, values []float64) ([]float64, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = s.Scale(v)
	}
	return out, nil
}

// InverseTransform maps scaled values back to price units.
func InverseTransform(s State, scaled []float64) []float64 {
	out := make([]float64, len(scaled))
	for i, v := range scaled {
		out[i] = s.Inverse(v)
	}
	return out
}

// FitTransform fits on values and returns the state with the scaled values.
func FitTransform(feature string, values []float64) (State, []float64, error) {
	s, err := Fit(feature, values)
	if err != nil {
		return State{}, nil, err
	}
	scaled, err := Transform(s, values)
	if err != nil {
		return State{}, nil, err
	}
	return s, scaled, nil
}
