package fit

import "math"

// Adam moves a point in the unit cube of fitted parameters against the NLLF
// gradient. Each coordinate keeps a running mean m and mean square v of its
// gradient; both are bias-corrected by 1-β^t, and the step taken is
// lr·m̂/(√v̂+ε). Coordinates whose gradient is exactly zero keep their
// moments, so a parameter pinned flat does not drift.
type Adam struct {
	lr           float64
	beta1, beta2 float64
	eps          float64
	m, v         []float64
	step         int
}

// NewAdam returns an optimizer for n unit coordinates stepping at lr, with
// β1 = 0.9, β2 = 0.999 and ε = 1e-8.
func NewAdam(n int, lr float64) *Adam {
	return &Adam{
		lr:    lr,
		beta1: 0.9,
		beta2: 0.999,
		eps:   1e-8,
		m:     make([]float64, n),
		v:     make([]float64, n),
	}
}

// Update moves x one step against grad. The caller clamps x back into the
// unit cube. It panics if x or grad do not have n entries.
func (a *Adam) Update(x, grad []float64) {
	if len(x) != len(a.m) || len(grad) != len(a.m) {
		panic("fit: adam update length mismatch")
	}
	a.step++
	t := float64(a.step)
	mCorr := 1 / (1 - math.Pow(a.beta1, t))
	vCorr := 1 / (1 - math.Pow(a.beta2, t))
	for i, g := range grad {
		if g == 0 {
			continue
		}
		m := a.beta1*a.m[i] + (1-a.beta1)*g
		v := a.beta2*a.v[i] + (1-a.beta2)*g*g
		a.m[i], a.v[i] = m, v
		x[i] -= a.lr * m * mCorr / (math.Sqrt(v*vCorr) + a.eps)
	}
}

// SetLR replaces the step size.
func (a *Adam) SetLR(lr float64) { a.lr = lr }

// CosineAnnealing shrinks the step size from lrMax at the first fit step
// to zero at step tMax along half a cosine, so late steps refine the best
// point instead of jumping past it. A non-positive tMax keeps lrMax.
type CosineAnnealing struct {
	lrMax float64
	tMax  int
	t     int
}

// NewCosineAnnealing returns a schedule spanning tMax fit steps.
func NewCosineAnnealing(lrMax float64, tMax int) *CosineAnnealing {
	return &CosineAnnealing{lrMax: lrMax, tMax: tMax}
}

// LR is the step size for the current fit step.
func (ca *CosineAnnealing) LR() float64 {
	if ca.tMax <= 0 {
		return ca.lrMax
	}
	progress := float64(ca.t) / float64(ca.tMax)
	return ca.lrMax * (1 + math.Cos(math.Pi*progress)) / 2
}

// Step moves to the next fit step and returns its step size.
func (ca *CosineAnnealing) Step() float64 {
	ca.t++
	return ca.LR()
}
