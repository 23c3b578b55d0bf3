// Package lstm implements the windowed sequence model: two stacked LSTM
// layers feeding a dense projection to the forecast horizon, trained on
// mean squared error.
package lstm

import (
	"fmt"
	"math/rand"

	"stockwave/apperrors"
)

const (
	DefaultWindow       = 60
	DefaultHidden       = 50
	DefaultBatchSize    = 32
	DefaultLearningRate = 0.001
)

// Config describes the architecture and optimizer settings of a model.
type Config struct {
	Window       int     `json:"window"`
	Horizon      int     `json:"horizon"`
	Hidden       int     `json:"hidden"`
	BatchSize    int     `json:"batch_size"`
	LearningRate float64 `json:"learning_rate"`
	Seed         int64   `json:"seed"`
}

func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.Hidden <= 0 {
		c.Hidden = DefaultHidden
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.LearningRate <= 0 {
		c.LearningRate = DefaultLearningRate
	}
	return c
}

// Dense is the output projection, W is Horizon x Hidden row-major.
type Dense struct {
	In  int       `json:"in"`
	Out int       `json:"out"`
	W   []float64 `json:"w"`
	B   []float64 `json:"b"`
}

// Model is a trained (or trainable) network. It is safe for concurrent
// PredictWindow calls once training has finished.
type Model struct {
	Config Config   `json:"config"`
	Layers []*Layer `json:"layers"`
	Dense  *Dense   `json:"dense"`
}

// New builds an untrained model with seeded Glorot initialization.
func New(cfg Config) (*Model, error) {
	cfg = cfg.withDefaults()
	if cfg.Horizon <= 0 {
		return nil, apperrors.New(apperrors.CodeInvalidRequest,
			fmt.Sprintf("lstm: horizon must be positive, got %d", cfg.Horizon))
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	m := &Model{
		Config: cfg,
		Layers: []*Layer{
			newLayer(1, cfg.Hidden, rng),
			newLayer(cfg.Hidden, cfg.Hidden, rng),
		},
		Dense: &Dense{
			In:  cfg.Hidden,
			Out: cfg.Horizon,
			W:   glorot(rng, cfg.Horizon*cfg.Hidden, cfg.Hidden, cfg.Horizon),
			B:   make([]float64, cfg.Horizon),
		},
	}
	return m, nil
}

// Window is the input length the model expects.
func (m *Model) Window() int { return m.Config.Window }

// Horizon is the number of values one forward pass produces.
func (m *Model) Horizon() int { return m.Config.Horizon }

// Validate checks that the weights are consistent with the config, which
// guards against truncated or hand-edited artifacts.
func (m *Model) Validate() error {
	bad := func(what string) error {
		return apperrors.New(apperrors.CodeStateMismatch, "lstm: invalid model: "+what)
	}
	if m == nil || m.Dense == nil || len(m.Layers) != 2 {
		return bad("missing layers")
	}
	c := m.Config
	if c.Window <= 0 || c.Horizon <= 0 || c.Hidden <= 0 {
		return bad("config")
	}
	if !m.Layers[0].valid() || m.Layers[0].In != 1 || m.Layers[0].Hidden != c.Hidden {
		return bad("first layer shape")
	}
	if !m.Layers[1].valid() || m.Layers[1].In != c.Hidden || m.Layers[1].Hidden != c.Hidden {
		return bad("second layer shape")
	}
	d := m.Dense
	if d.In != c.Hidden || d.Out != c.Horizon || len(d.W) != d.In*d.Out || len(d.B) != d.Out {
		return bad("dense shape")
	}
	return nil
}

// PredictWindow runs a single forward pass over window (scaled values,
// oldest first) and returns Horizon scaled predictions. No state is carried
// between calls.
func (m *Model) PredictWindow(window []float64) ([]float64, error) {
	if len(window) != m.Config.Window {
		return nil, apperrors.New(apperrors.CodeInvalidRequest,
			fmt.Sprintf("lstm: expected window of %d values, got %d", m.Config.Window, len(window)))
	}
	y, _ := m.forward(window, false)
	return y, nil
}

// trace holds what backward needs from a forward pass.
type trace struct {
	steps1 []step
	steps2 []step
	last   []float64
}

func (m *Model) forward(window []float64, record bool) ([]float64, *trace) {
	xs := make([][]float64, len(window))
	for t, v := range window {
		xs[t] = []float64{v}
	}

	var tr *trace
	var s1, s2 *[]step
	if record {
		tr = &trace{
			steps1: make([]step, 0, len(window)),
			steps2: make([]step, 0, len(window)),
		}
		s1, s2 = &tr.steps1, &tr.steps2
	}

	h1 := m.Layers[0].forward(xs, s1)
	h2 := m.Layers[1].forward(h1, s2)
	last := h2[len(h2)-1]

	d := m.Dense
	y := make([]float64, d.Out)
	for o := 0; o < d.Out; o++ {
		sum := d.B[o]
		row := d.W[o*d.In : (o+1)*d.In]
		for k, hv := range last {
			sum += row[k] * hv
		}
		y[o] = sum
	}

	if tr != nil {
		tr.last = last
	}
	return y, tr
}

// gradients mirrors the trainable parameters of a model.
type gradients struct {
	layers []*Layer
	dense  *Dense
}

func (m *Model) newGradients() *gradients {
	return &gradients{
		layers: []*Layer{zeroLike(m.Layers[0]), zeroLike(m.Layers[1])},
		dense: &Dense{
			In:  m.Dense.In,
			Out: m.Dense.Out,
			W:   make([]float64, len(m.Dense.W)),
			B:   make([]float64, len(m.Dense.B)),
		},
	}
}

func (g *gradients) zero() {
	for _, p := range g.params() {
		for i := range p {
			p[i] = 0
		}
	}
}

func (g *gradients) params() [][]float64 {
	return [][]float64{
		g.layers[0].Wx, g.layers[0].Wh, g.layers[0].B,
		g.layers[1].Wx, g.layers[1].Wh, g.layers[1].B,
		g.dense.W, g.dense.B,
	}
}

func (m *Model) params() [][]float64 {
	return [][]float64{
		m.Layers[0].Wx, m.Layers[0].Wh, m.Layers[0].B,
		m.Layers[1].Wx, m.Layers[1].Wh, m.Layers[1].B,
		m.Dense.W, m.Dense.B,
	}
}

// accumulate adds scale times the MSE gradient of one sample into g and
// returns the sample loss.
func (m *Model) accumulate(s Sample, g *gradients, scale float64) float64 {
	y, tr := m.forward(s.Input, true)

	h := float64(len(y))
	loss := 0.0
	dy := make([]float64, len(y))
	for o := range y {
		diff := y[o] - s.Target[o]
		loss += diff * diff
		dy[o] = 2 * diff / h * scale
	}
	loss /= h

	d := m.Dense
	dLast := make([]float64, d.In)
	for o := 0; o < d.Out; o++ {
		g.dense.B[o] += dy[o]
		row := d.W[o*d.In : (o+1)*d.In]
		gRow := g.dense.W[o*d.In : (o+1)*d.In]
		for k, hv := range tr.last {
			gRow[k] += dy[o] * hv
			dLast[k] += dy[o] * row[k]
		}
	}

	dh2 := make([][]float64, len(tr.steps2))
	dh2[len(dh2)-1] = dLast
	dh1 := m.Layers[1].backward(tr.steps2, dh2, g.layers[1], true)
	m.Layers[0].backward(tr.steps1, dh1, g.layers[0], false)

	return loss
}
