package lstm

import "math"

const (
	adamBeta1   = 0.9
	adamBeta2   = 0.999
	adamEpsilon = 1e-7
	clipNorm    = 5.0
)

// adam is the Adam optimizer with one moment pair per parameter slice.
type adam struct {
	lr   float64
	t    int
	m, v [][]float64
}

func newAdam(lr float64, params [][]float64) *adam {
	a := &adam{lr: lr}
	for _, p := range params {
		a.m = append(a.m, make([]float64, len(p)))
		a.v = append(a.v, make([]float64, len(p)))
	}
	return a
}

func (a *adam) step(params, grads [][]float64) {
	a.t++
	c1 := 1 - math.Pow(adamBeta1, float64(a.t))
	c2 := 1 - math.Pow(adamBeta2, float64(a.t))

	for i, p := range params {
		g, m, v := grads[i], a.m[i], a.v[i]
		for k := range p {
			m[k] = adamBeta1*m[k] + (1-adamBeta1)*g[k]
			v[k] = adamBeta2*v[k] + (1-adamBeta2)*g[k]*g[k]
			p[k] -= a.lr * (m[k] / c1) / (math.Sqrt(v[k]/c2) + adamEpsilon)
		}
	}
}

// clipGradients rescales grads in place so their global L2 norm is at most
// maxNorm.
func clipGradients(grads [][]float64, maxNorm float64) {
	sum := 0.0
	for _, g := range grads {
		for _, v := range g {
			sum += v * v
		}
	}
	norm := math.Sqrt(sum)
	if norm <= maxNorm || norm == 0 {
		return
	}
	scale := maxNorm / norm
	for _, g := range grads {
		for k := range g {
			g[k] *= scale
		}
	}
}
