package refl

import (
	"fmt"
	"math"
	"strconv"

	"gonum.org/v1/gonum/floats"
)

// CompositeExperiment adds the reflectivity of several samples measured
// with one probe incoherently, weighted by fittable ratios.
//
// Use it for samples with laterally separated regions, such as a polymer
// brush that stands upright in one area and lies flat in another.
type CompositeExperiment struct {
	parts []*Experiment
	ratio []*Parameter
	probe Probe
}

var _ Model = (*CompositeExperiment)(nil)

// NewCompositeExperiment wraps each sample in its own Experiment on probe.
// ratio holds one relative weight per sample; weights are normalised at
// evaluation time.
func NewCompositeExperiment(samples []Layer, ratio []float64, probe Probe, cfg ExperimentConfig) (*CompositeExperiment, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: composite has no samples", ErrConfiguration)
	}
	if len(ratio) != len(samples) {
		return nil, fmt.Errorf("%w: %d ratios for %d samples", ErrConfiguration, len(ratio), len(samples))
	}
	c := &CompositeExperiment{probe: probe}
	for i, s := range samples {
		e, err := NewExperiment(s, probe, cfg)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		if ratio[i] < 0 || math.IsNaN(ratio[i]) {
			return nil, fmt.Errorf("%w: ratio[%d] = %g", ErrConfiguration, i, ratio[i])
		}
		c.parts = append(c.parts, e)
		c.ratio = append(c.ratio, NewParameter("ratio "+strconv.Itoa(i), ratio[i]).Range(0, math.Inf(1)))
	}
	return c, nil
}

// Parts returns the per-sample experiments.
func (c *CompositeExperiment) Parts() []*Experiment { return append([]*Experiment(nil), c.parts...) }

// Ratio returns the weight parameters, one per sample.
func (c *CompositeExperiment) Ratio() []*Parameter { return append([]*Parameter(nil), c.ratio...) }

// Probe returns the shared probe.
func (c *CompositeExperiment) Probe() Probe { return c.probe }

// Parameters implements Parameterized.
func (c *CompositeExperiment) Parameters() map[string]any {
	samples := make([]any, len(c.parts))
	ratio := make([]any, len(c.ratio))
	for i, p := range c.parts {
		samples[i] = p.sample.Parameters()
		ratio[i] = c.ratio[i]
	}
	return map[string]any{
		"samples": samples,
		"ratio":   ratio,
		"probe":   c.probe.Parameters(),
	}
}

// Update invalidates every part.
func (c *CompositeExperiment) Update() {
	for _, p := range c.parts {
		p.Update()
	}
}

// Reflectivity returns Σ fᵢRᵢ / Σ fᵢ over the parts. If every ratio is zero
// the result is a zero curve.
func (c *CompositeExperiment) Reflectivity(resolution, beam bool) (Curve, error) {
	f := make([]float64, len(c.ratio))
	for i, p := range c.ratio {
		f[i] = p.Value()
	}
	total := floats.Sum(f)
	var out Curve
	for i, p := range c.parts {
		curve, err := p.Reflectivity(resolution, beam)
		if err != nil {
			return Curve{}, fmt.Errorf("sample %d: %w", i, err)
		}
		if out.R == nil {
			out = Curve{Q: curve.Q, R: make([]float64, len(curve.R))}
		}
		if total != 0 {
			floats.AddScaled(out.R, f[i]/total, curve.R)
		}
	}
	return out, nil
}

// Residuals returns (R - theory)/dR for the mixture.
func (c *CompositeExperiment) Residuals() ([]float64, error) {
	r, dr := c.probe.R(), c.probe.DR()
	if r == nil || dr == nil {
		return nil, fmt.Errorf("%w: probe has no R or dR", ErrMissingData)
	}
	curve, err := c.Reflectivity(true, true)
	if err != nil {
		return nil, err
	}
	return residuals(r, dr, curve.R), nil
}

// NLLF returns ½Σ residual².
func (c *CompositeExperiment) NLLF() (float64, error) {
	res, err := c.Residuals()
	if err != nil {
		return 0, err
	}
	return nllf(res), nil
}
