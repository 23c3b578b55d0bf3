package lstm

import (
	"math"
	"math/rand"
)

// Layer is one LSTM layer. Gate rows are stacked in the order input, forget,
// cell candidate, output; Wx is 4H x In and Wh is 4H x H, both row-major.
type Layer struct {
	In     int       `json:"in"`
	Hidden int       `json:"hidden"`
	Wx     []float64 `json:"wx"`
	Wh     []float64 `json:"wh"`
	B      []float64 `json:"b"`
}

// step caches the activations of one timestep for backpropagation.
type step struct {
	x     []float64
	hPrev []float64
	cPrev []float64
	gates []float64 // i, f, g, o after activation
	tanhC []float64
}

func newLayer(in, hidden int, rng *rand.Rand) *Layer {
	l := &Layer{
		In:     in,
		Hidden: hidden,
		Wx:     glorot(rng, 4*hidden*in, in, 4*hidden),
		Wh:     glorot(rng, 4*hidden*hidden, hidden, 4*hidden),
		B:      make([]float64, 4*hidden),
	}
	// unit forget bias
	for j := hidden; j < 2*hidden; j++ {
		l.B[j] = 1
	}
	return l
}

func zeroLike(l *Layer) *Layer {
	return &Layer{
		In:     l.In,
		Hidden: l.Hidden,
		Wx:     make([]float64, len(l.Wx)),
		Wh:     make([]float64, len(l.Wh)),
		B:      make([]float64, len(l.B)),
	}
}

func (l *Layer) valid() bool {
	return l != nil && l.In > 0 && l.Hidden > 0 &&
		len(l.Wx) == 4*l.Hidden*l.In &&
		len(l.Wh) == 4*l.Hidden*l.Hidden &&
		len(l.B) == 4*l.Hidden
}

// forward runs the layer over xs and returns the hidden state of every
// timestep. When steps is non-nil the activations are recorded into it.
func (l *Layer) forward(xs [][]float64, steps *[]step) [][]float64 {
	n := l.Hidden
	h := make([]float64, n)
	c := make([]float64, n)
	hs := make([][]float64, len(xs))
	z := make([]float64, 4*n)

	for t, x := range xs {
		for r := 0; r < 4*n; r++ {
			sum := l.B[r]
			row := l.Wx[r*l.In : (r+1)*l.In]
			for k, xv := range x {
				sum += row[k] * xv
			}
			rowH := l.Wh[r*n : (r+1)*n]
			for k, hv := range h {
				sum += rowH[k] * hv
			}
			z[r] = sum
		}

		gates := make([]float64, 4*n)
		nextC := make([]float64, n)
		nextH := make([]float64, n)
		tanhC := make([]float64, n)
		for j := 0; j < n; j++ {
			i := sigmoid(z[j])
			f := sigmoid(z[n+j])
			g := math.Tanh(z[2*n+j])
			o := sigmoid(z[3*n+j])
			gates[j], gates[n+j], gates[2*n+j], gates[3*n+j] = i, f, g, o

			nextC[j] = f*c[j] + i*g
			tanhC[j] = math.Tanh(nextC[j])
			nextH[j] = o * tanhC[j]
		}

		if steps != nil {
			*steps = append(*steps, step{x: x, hPrev: h, cPrev: c, gates: gates, tanhC: tanhC})
		}
		h, c = nextH, nextC
		hs[t] = h
	}
	return hs
}

// backward propagates dhs (the loss gradient w.r.t. each emitted hidden
// state, nil entries meaning zero) through time, accumulating parameter
// gradients into grad. When needDx is set it returns the gradient w.r.t.
// each input.
func (l *Layer) backward(steps []step, dhs [][]float64, grad *Layer, needDx bool) [][]float64 {
	n := l.Hidden
	dhNext := make([]float64, n)
	dcNext := make([]float64, n)
	dz := make([]float64, 4*n)

	var dxs [][]float64
	if needDx {
		dxs = make([][]float64, len(steps))
	}

	for t := len(steps) - 1; t >= 0; t-- {
		st := steps[t]
		for j := 0; j < n; j++ {
			dh := dhNext[j]
			if dhs[t] != nil {
				dh += dhs[t][j]
			}
			i, f, g, o := st.gates[j], st.gates[n+j], st.gates[2*n+j], st.gates[3*n+j]
			tc := st.tanhC[j]

			dc := dcNext[j] + dh*o*(1-tc*tc)
			dz[j] = dc * g * i * (1 - i)
			dz[n+j] = dc * st.cPrev[j] * f * (1 - f)
			dz[2*n+j] = dc * i * (1 - g*g)
			dz[3*n+j] = dh * tc * o * (1 - o)
			dcNext[j] = dc * f
		}

		for j := range dhNext {
			dhNext[j] = 0
		}
		var dx []float64
		if needDx {
			dx = make([]float64, l.In)
		}

		for r := 0; r < 4*n; r++ {
			d := dz[r]
			if d == 0 {
				continue
			}
			grad.B[r] += d

			row := l.Wx[r*l.In : (r+1)*l.In]
			gRow := grad.Wx[r*l.In : (r+1)*l.In]
			for k, xv := range st.x {
				gRow[k] += d * xv
				if needDx {
					dx[k] += d * row[k]
				}
			}

			rowH := l.Wh[r*n : (r+1)*n]
			gRowH := grad.Wh[r*n : (r+1)*n]
			for k, hv := range st.hPrev {
				gRowH[k] += d * hv
				dhNext[k] += d * rowH[k]
			}
		}

		if needDx {
			dxs[t] = dx
		}
	}
	return dxs
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// glorot draws size weights from the Glorot uniform distribution.
func glorot(rng *rand.Rand, size, fanIn, fanOut int) []float64 {
	limit := math.Sqrt(6 / float64(fanIn+fanOut))
	w := make([]float64, size)
	for i := range w {
		w[i] = (rng.Float64()*2 - 1) * limit
	}
	return w
}
