package refl

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/stat/distuv"
)

// Probe describes the measurement: the Q points, their 1-σ resolution,
// optional measured data and the calculation grid used for the physics.
//
// Slices returned by a Probe are shared and must not be modified.
type Probe interface {
	Parameterized

	Q() []float64
	DQ() []float64
	// R and DR return nil when no data is attached.
	R() []float64
	DR() []float64
	// CalcQ is the sorted grid on which theory is computed before
	// Resolution projects it back onto Q.
	CalcQ() []float64
	Resolution(calc []float64) []float64
	BeamParameters(r []float64) []float64
}

// resolutionWidth is the half-width of the resolution window in units of σ.
const resolutionWidth = 3

// QProbeConfig configures a QProbe.
// Zero values produce sensible defaults; see field comments.
type QProbeConfig struct {
	Q          []float64 `json:"q"`          // required, finite
	DQ         []float64 `json:"dq"`         // nil → no resolution; length 1 broadcasts
	R          []float64 `json:"r"`          // nil → no data
	DR         []float64 `json:"dr"`         // nil → no data; entries must be > 0
	Intensity  float64   `json:"intensity"`  // zero → 1
	Background float64   `json:"background"` // zero → no background
	Oversample int       `json:"oversample"` // zero → 11 points per σ window
}

// QProbe is a Probe over explicit Q points with Gaussian resolution.
type QProbe struct {
	q, dq, r, dr []float64
	calcQ        []float64

	Intensity  *Parameter
	Background *Parameter
}

var _ Probe = (*QProbe)(nil)

// NewQProbe creates a QProbe from the given config.
// Zero-value fields are filled with defaults; invalid values return an error.
func NewQProbe(cfg QProbeConfig) (*QProbe, error) {
	n := len(cfg.Q)
	if n == 0 {
		return nil, fmt.Errorf("%w: probe has no Q points", ErrConfiguration)
	}
	if err := finite("q", cfg.Q); err != nil {
		return nil, err
	}

	dq := make([]float64, n)
	switch len(cfg.DQ) {
	case 0:
	case 1:
		for i := range dq {
			dq[i] = cfg.DQ[0]
		}
	case n:
		copy(dq, cfg.DQ)
	default:
		return nil, fmt.Errorf("%w: %d dq values for %d Q points", ErrConfiguration, len(cfg.DQ), n)
	}
	if err := finite("dq", dq); err != nil {
		return nil, err
	}
	for i, v := range dq {
		if v < 0 {
			return nil, fmt.Errorf("%w: dq[%d] = %g is negative", ErrConfiguration, i, v)
		}
	}

	r, err := optionalColumn("r", cfg.R, n)
	if err != nil {
		return nil, err
	}
	dr, err := optionalColumn("dr", cfg.DR, n)
	if err != nil {
		return nil, err
	}
	for i, v := range dr {
		if v <= 0 {
			return nil, fmt.Errorf("%w: dr[%d] = %g must be positive", ErrConfiguration, i, v)
		}
	}

	oversample := cfg.Oversample
	if oversample == 0 {
		oversample = 11
	}
	if oversample < 2 {
		return nil, fmt.Errorf("%w: oversample %d must be at least 2", ErrConfiguration, oversample)
	}

	intensity := cfg.Intensity
	if intensity == 0 {
		intensity = 1
	}

	q := append([]float64(nil), cfg.Q...)
	return &QProbe{
		q:          q,
		dq:         dq,
		r:          r,
		dr:         dr,
		calcQ:      calcGrid(q, dq, oversample),
		Intensity:  NewParameter("intensity", intensity).Range(0, math.Inf(1)),
		Background: NewParameter("background", cfg.Background).Range(0, math.Inf(1)),
	}, nil
}

func optionalColumn(name string, v []float64, n int) ([]float64, error) {
	if v == nil {
		return nil, nil
	}
	if len(v) != n {
		return nil, fmt.Errorf("%w: %d %s values for %d Q points", ErrConfiguration, len(v), name, n)
	}
	if err := finite(name, v); err != nil {
		return nil, err
	}
	return append([]float64(nil), v...), nil
}

func finite(name string, v []float64) error {
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("%w: %s[%d] = %v", ErrConfiguration, name, i, x)
		}
	}
	return nil
}

// calcGrid returns Q plus oversample points spread over ±3σ of every point
// with nonzero resolution, sorted with duplicates removed. Points that
// would change the sign of Q are left out.
func calcGrid(q, dq []float64, oversample int) []float64 {
	grid := append([]float64(nil), q...)
	window := make([]float64, oversample)
	for i, qi := range q {
		s := dq[i]
		if s == 0 {
			continue
		}
		floats.Span(window, qi-resolutionWidth*s, qi+resolutionWidth*s)
		for _, x := range window {
			if (x < 0) == (qi < 0) {
				grid = append(grid, x)
			}
		}
	}
	sort.Float64s(grid)
	out := grid[:1]
	for _, x := range grid[1:] {
		if x != out[len(out)-1] {
			out = append(out, x)
		}
	}
	return out
}

// Len returns the number of measured points.
func (p *QProbe) Len() int { return len(p.q) }

func (p *QProbe) Q() []float64     { return p.q }
func (p *QProbe) DQ() []float64    { return p.dq }
func (p *QProbe) R() []float64     { return p.r }
func (p *QProbe) DR() []float64    { return p.dr }
func (p *QProbe) CalcQ() []float64 { return p.calcQ }

// Parameters implements Parameterized.
func (p *QProbe) Parameters() map[string]any {
	return map[string]any{"intensity": p.Intensity, "background": p.Background}
}

// Resolution projects a curve on CalcQ onto Q.
//
// Each output point is the Gaussian-weighted average of the piecewise-linear
// calc curve over ±3σ, integrated with the trapezoid rule and normalised by
// the weight actually covered. Points with σ = 0 are interpolated.
// It panics if len(calc) != len(CalcQ()).
func (p *QProbe) Resolution(calc []float64) []float64 {
	if len(calc) != len(p.calcQ) {
		panic(fmt.Sprintf("refl: resolution of %d values on a %d point grid", len(calc), len(p.calcQ)))
	}
	out := make([]float64, len(p.q))
	if len(p.calcQ) == 1 {
		for i := range out {
			out[i] = calc[0]
		}
		return out
	}
	var pl interp.PiecewiseLinear
	if err := pl.Fit(p.calcQ, calc); err != nil {
		panic(fmt.Sprintf("refl: calculation grid not increasing: %v", err))
	}
	var xs, ys, ws []float64
	for i, q := range p.q {
		s := p.dq[i]
		if s == 0 {
			out[i] = pl.Predict(q)
			continue
		}
		lo := sort.SearchFloat64s(p.calcQ, q-resolutionWidth*s)
		hi := sort.Search(len(p.calcQ), func(k int) bool { return p.calcQ[k] > q+resolutionWidth*s })
		if hi-lo < 2 {
			out[i] = pl.Predict(q)
			continue
		}
		g := distuv.Normal{Mu: q, Sigma: s}
		xs = p.calcQ[lo:hi]
		ys, ws = ys[:0], ws[:0]
		for k, x := range xs {
			w := g.Prob(x)
			ws = append(ws, w)
			ys = append(ys, w*calc[lo+k])
		}
		out[i] = integrate.Trapezoidal(xs, ys) / integrate.Trapezoidal(xs, ws)
	}
	return out
}

// BeamParameters applies intensity scaling and background: R·I + B.
func (p *QProbe) BeamParameters(r []float64) []float64 {
	out := make([]float64, len(r))
	scale, bg := p.Intensity.Value(), p.Background.Value()
	for i, v := range r {
		out[i] = v*scale + bg
	}
	return out
}
