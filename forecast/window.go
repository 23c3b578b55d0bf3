package forecast

import (
	"fmt"

	"stockwave/apperrors"
)

// Window is a fixed-capacity ring of the most recent scaled values. Its
// length never changes after construction.
type Window struct {
	buf  []float64
	next int
}

// NewWindow copies seed (oldest first) into a window of len(seed).
func NewWindow(seed []float64) *Window {
	buf := make([]float64, len(seed))
	copy(buf, seed)
	return &Window{buf: buf}
}

func (w *Window) Len() int { return len(w.buf) }

// Push overwrites the oldest value.
func (w *Window) Push(v float64) {
	w.buf[w.next] = v
	w.next = (w.next + 1) % len(w.buf)
}

// Values writes the window into dst oldest first and returns it.
func (w *Window) Values(dst []float64) []float64 {
	dst = dst[:0]
	dst = append(dst, w.buf[w.next:]...)
	return append(dst, w.buf[:w.next]...)
}

// Predictor is a single forward pass over a window of scaled values.
type Predictor interface {
	Window() int
	PredictWindow(window []float64) ([]float64, error)
}

// Rollout runs p recursively n times starting from seed, feeding each first
// output back into the window. It returns the n scaled predictions.
func Rollout(p Predictor, seed []float64, n int) ([]float64, error) {
	if len(seed) != p.Window() {
		return nil, apperrors.New(apperrors.CodeStateMismatch,
			fmt.Sprintf("seed of %d values for a model with window %d", len(seed), p.Window()))
	}

	w := NewWindow(seed)
	view := make([]float64, 0, w.Len())
	out := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		y, err := p.PredictWindow(w.Values(view))
		if err != nil {
			return nil, err
		}
		if len(y) == 0 {
			return nil, apperrors.New(apperrors.CodeStateMismatch, "model produced no output")
		}
		out = append(out, y[0])
		w.Push(y[0])
	}
	return out, nil
}
