package fit

import (
	"fmt"

	"github.com/sky-flux/refl"
)

// objective evaluates a model's NLLF at points given in unit coordinates,
// where 0 and 1 are a parameter's lower and upper bound.
type objective struct {
	model  refl.Model
	params []*refl.Parameter
	lower  []float64
	span   []float64
	evals  int
}

func newObjective(m refl.Model, params []*refl.Parameter) *objective {
	o := &objective{
		model:  m,
		params: params,
		lower:  make([]float64, len(params)),
		span:   make([]float64, len(params)),
	}
	for i, p := range params {
		lo, hi := p.Bounds()
		o.lower[i], o.span[i] = lo, hi-lo
	}
	return o
}

// unit returns the current parameter values in unit coordinates.
func (o *objective) unit() []float64 {
	u := make([]float64, len(o.params))
	for i, p := range o.params {
		if o.span[i] > 0 {
			u[i] = (p.Value() - o.lower[i]) / o.span[i]
		}
	}
	return u
}

// set assigns the parameters from unit coordinates and invalidates the model.
func (o *objective) set(u []float64) {
	for i, p := range o.params {
		p.Set(o.lower[i] + u[i]*o.span[i])
	}
	o.model.Update()
}

func (o *objective) eval(u []float64) (float64, error) {
	o.set(u)
	o.evals++
	v, err := o.model.NLLF()
	if err != nil {
		return 0, fmt.Errorf("fit: evaluating %v: %w", o.params, err)
	}
	return v, nil
}

// gradient estimates ∂NLLF/∂u by central differences with step h, using
// one-sided points where u±h would leave [0, 1].
func (o *objective) gradient(u []float64, h float64) ([]float64, error) {
	grad := make([]float64, len(u))
	x := append([]float64(nil), u...)
	for i := range u {
		if o.span[i] == 0 {
			continue
		}
		hi, lo := clamp(u[i]+h), clamp(u[i]-h)
		x[i] = hi
		fHi, err := o.eval(x)
		if err != nil {
			return nil, err
		}
		x[i] = lo
		fLo, err := o.eval(x)
		if err != nil {
			return nil, err
		}
		x[i] = u[i]
		grad[i] = (fHi - fLo) / (hi - lo)
	}
	return grad, nil
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
