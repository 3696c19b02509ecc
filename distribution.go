package refl

import (
	"fmt"
	"math"
	"strconv"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// CDF is a cumulative distribution function with location, scale and
// shape arguments.
type CDF func(x, loc, scale float64, args []float64) float64

// pointMass is the CDF of a distribution with zero width.
func pointMass(x, loc float64) float64 {
	if x < loc {
		return 0
	}
	return 1
}

// NormalCDF is the Gaussian with mean loc and standard deviation scale.
func NormalCDF(x, loc, scale float64, _ []float64) float64 {
	if scale <= 0 {
		return pointMass(x, loc)
	}
	return distuv.Normal{Mu: loc, Sigma: scale}.CDF(x)
}

// HalfNormalCDF is the right half of a Gaussian centred on loc.
func HalfNormalCDF(x, loc, scale float64, _ []float64) float64 {
	if scale <= 0 {
		return pointMass(x, loc)
	}
	if x < loc {
		return 0
	}
	return 2*distuv.UnitNormal.CDF((x-loc)/scale) - 1
}

// UniformCDF is flat from loc to loc+scale.
func UniformCDF(x, loc, scale float64, _ []float64) float64 {
	if scale <= 0 {
		return pointMass(x, loc)
	}
	return distuv.Uniform{Min: loc, Max: loc + scale}.CDF(x)
}

// TriangleCDF rises from loc to a peak at loc+args[0]·scale and falls to
// zero at loc+scale. args[0] defaults to 0.5 and is clamped to [0, 1].
func TriangleCDF(x, loc, scale float64, args []float64) float64 {
	if scale <= 0 {
		return pointMass(x, loc)
	}
	c := 0.5
	if len(args) > 0 {
		c = math.Min(math.Max(args[0], 0), 1)
	}
	return distuv.NewTriangle(loc, loc+scale, loc+c*scale, nil).CDF(x)
}

// Bin is one value of a binned distribution and its probability.
type Bin struct {
	Value  float64
	Weight float64
}

// Weights bins a parameterised distribution.
//
// The probability of bin i is CDF(Edges[i+1]) - CDF(Edges[i]). When
// Truncated, mass outside the edges is discarded and the rest renormalised;
// otherwise the tails are folded into the end bins.
type Weights struct {
	Edges     []float64
	CDF       CDF
	Loc       *Parameter
	Scale     *Parameter
	Args      []*Parameter
	Truncated bool
}

// NewWeights returns a distribution over the bins between edges, which must
// be strictly increasing.
func NewWeights(edges []float64, cdf CDF, loc, scale float64, args []float64, truncated bool) (*Weights, error) {
	if len(edges) < 2 {
		return nil, fmt.Errorf("%w: need at least two bin edges, got %d", ErrConfiguration, len(edges))
	}
	for i := 1; i < len(edges); i++ {
		if !(edges[i] > edges[i-1]) {
			return nil, fmt.Errorf("%w: bin edges not increasing at %d", ErrConfiguration, i)
		}
	}
	if cdf == nil {
		return nil, fmt.Errorf("%w: weights need a CDF", ErrConfiguration)
	}
	w := &Weights{
		Edges:     append([]float64(nil), edges...),
		CDF:       cdf,
		Loc:       NewParameter("loc", loc),
		Scale:     NewParameter("scale", scale).Range(0, math.Inf(1)),
		Truncated: truncated,
	}
	for i, a := range args {
		w.Args = append(w.Args, NewParameter("args["+strconv.Itoa(i)+"]", a))
	}
	return w, nil
}

// Parameters implements Parameterized.
func (w *Weights) Parameters() map[string]any {
	args := make([]any, len(w.Args))
	for i, a := range w.Args {
		args[i] = a
	}
	return map[string]any{"loc": w.Loc, "scale": w.Scale, "args": args}
}

// Bins returns the bin centres with normalised weights. Bins of zero weight
// are dropped; a distribution with no mass inside the edges yields nil.
func (w *Weights) Bins() []Bin {
	args := make([]float64, len(w.Args))
	for i, a := range w.Args {
		args[i] = a.Value()
	}
	loc, scale := w.Loc.Value(), w.Scale.Value()
	cum := make([]float64, len(w.Edges))
	for i, x := range w.Edges {
		cum[i] = w.CDF(x, loc, scale, args)
	}
	if !w.Truncated {
		cum[0], cum[len(cum)-1] = 0, 1
	}
	rel := make([]float64, len(cum)-1)
	floats.SubTo(rel, cum[1:], cum[:len(cum)-1])
	total := floats.Sum(rel)
	if total <= 0 || math.IsNaN(total) {
		return nil
	}
	var out []Bin
	for i, r := range rel {
		if wt := r / total; wt > 0 {
			out = append(out, Bin{Value: (w.Edges[i] + w.Edges[i+1]) / 2, Weight: wt})
		}
	}
	return out
}

// DistributionExperiment averages an experiment over a distribution of
// values of one of its parameters, P.
//
// P should not be fitted itself; the rest of the experiment and the
// distribution parameters can be.
type DistributionExperiment struct {
	experiment   *Experiment
	p            *Parameter
	distribution *Weights
}

var _ Model = (*DistributionExperiment)(nil)

// NewDistributionExperiment evaluates e once per bin of w with p set to
// the bin centre.
func NewDistributionExperiment(e *Experiment, p *Parameter, w *Weights) (*DistributionExperiment, error) {
	if e == nil || p == nil || w == nil {
		return nil, fmt.Errorf("%w: distribution needs an experiment, a parameter and weights", ErrConfiguration)
	}
	return &DistributionExperiment{experiment: e, p: p, distribution: w}, nil
}

// Experiment returns the wrapped experiment.
func (d *DistributionExperiment) Experiment() *Experiment { return d.experiment }

// Weights returns the distribution.
func (d *DistributionExperiment) Weights() *Weights { return d.distribution }

// Parameters implements Parameterized.
func (d *DistributionExperiment) Parameters() map[string]any {
	return map[string]any{
		"distribution": d.distribution.Parameters(),
		"experiment":   d.experiment.Parameters(),
	}
}

// Update invalidates the wrapped experiment.
func (d *DistributionExperiment) Update() { d.experiment.Update() }

// set assigns P and invalidates the wrapped experiment.
func (d *DistributionExperiment) set(v float64) {
	d.p.Set(v)
	d.experiment.Update()
}

// at runs fn with P = v and restores P afterwards.
func (d *DistributionExperiment) at(v float64, fn func() error) error {
	defer d.set(d.p.Value())
	d.set(v)
	return fn()
}

// Reflectivity returns Σ wᵢ R(Pᵢ) over the bins. A distribution with no
// mass yields a zero curve on the requested grid.
func (d *DistributionExperiment) Reflectivity(resolution, beam bool) (Curve, error) {
	bins := d.distribution.Bins()
	if len(bins) == 0 {
		q := d.experiment.probe.CalcQ()
		if resolution {
			q = d.experiment.probe.Q()
		}
		return Curve{Q: q, R: make([]float64, len(q))}, nil
	}
	defer d.set(d.p.Value())
	var out Curve
	for _, b := range bins {
		d.set(b.Value)
		c, err := d.experiment.Reflectivity(resolution, beam)
		if err != nil {
			return Curve{}, fmt.Errorf("%s = %g: %w", d.p.Name(), b.Value, err)
		}
		if out.R == nil {
			out = Curve{Q: c.Q, R: make([]float64, len(c.R))}
		}
		floats.AddScaled(out.R, b.Weight, c.R)
	}
	return out, nil
}

// SmoothProfile returns the wrapped experiment's smooth profile with P = v.
func (d *DistributionExperiment) SmoothProfile(v, dz float64) (Profile, error) {
	var p Profile
	err := d.at(v, func() (err error) {
		p, err = d.experiment.SmoothProfile(dz)
		return err
	})
	return p, err
}

// StepProfile returns the wrapped experiment's step profile with P = v.
func (d *DistributionExperiment) StepProfile(v float64) (Profile, error) {
	var p Profile
	err := d.at(v, func() (err error) {
		p, err = d.experiment.StepProfile()
		return err
	})
	return p, err
}

// Residuals returns (R - theory)/dR for the averaged curve.
func (d *DistributionExperiment) Residuals() ([]float64, error) {
	probe := d.experiment.probe
	r, dr := probe.R(), probe.DR()
	if r == nil || dr == nil {
		return nil, fmt.Errorf("%w: probe has no R or dR", ErrMissingData)
	}
	c, err := d.Reflectivity(true, true)
	if err != nil {
		return nil, err
	}
	return residuals(r, dr, c.R), nil
}

// NLLF returns ½Σ residual².
func (d *DistributionExperiment) NLLF() (float64, error) {
	res, err := d.Residuals()
	if err != nil {
		return 0, err
	}
	return nllf(res), nil
}
