package lstm

import (
	"fmt"

	"stockwave/apperrors"
)

// Sample is one supervised pair: Window consecutive scaled closes and the
// Horizon scaled closes that follow them.
type Sample struct {
	Input  []float64
	Target []float64
}

// BuildTrainingPairs slides a stride-1 window over scaled. For every i in
// [window, len-horizon) the input is scaled[i-window:i] and the target is
// scaled[i:i+horizon], giving len-window-horizon samples.
func BuildTrainingPairs(scaled []float64, window, horizon int) ([]Sample, error) {
	if window <= 0 || horizon <= 0 {
		return nil, apperrors.New(apperrors.CodeInvalidRequest,
			fmt.Sprintf("lstm: window and horizon must be positive, got %d and %d", window, horizon))
	}
	if len(scaled) < window+horizon {
		return nil, apperrors.New(apperrors.CodeInsufficientHistory,
			fmt.Sprintf("lstm: need at least %d points, have %d", window+horizon, len(scaled)))
	}

	n := len(scaled) - window - horizon
	samples := make([]Sample, 0, n)
	for i := window; i < len(scaled)-horizon; i++ {
		samples = append(samples, Sample{
			Input:  scaled[i-window : i : i],
			Target: scaled[i : i+horizon : i+horizon],
		})
	}
	return samples, nil
}
