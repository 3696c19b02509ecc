package refl

import (
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/sky-flux/refl/abeles"
)

// ExperimentConfig configures an Experiment.
// Zero values produce sensible defaults; see field comments.
type ExperimentConfig struct {
	RoughnessLimit float64        `json:"roughness_limit"` // zero → 2.5; negative → no limit
	DZ             float64        `json:"dz"`              // zero → Nice(2π/Qmax/20), at most 5 Å
	Backend        abeles.Backend `json:"backend"`         // zero → abeles.Vectorized
	Logger         *slog.Logger   `json:"-"`               // nil → discard
}

// Curve is a reflectivity curve.
type Curve struct {
	Q []float64
	R []float64
}

// SlabTable lists the rendered slabs, substrate first. Roughness is that of
// the bottom of each slab, so the substrate entry is always zero.
type SlabTable struct {
	Thickness []float64
	Roughness []float64
	Rho       []float64
	IRho      []float64
}

// Experiment pairs a sample with a probe and memoizes everything derived
// from them.
//
// Cached values stay valid until Update, which must be called after any
// parameter reachable from the sample or probe changes. Slices returned by
// an Experiment are shared with its cache and must not be modified.
// An Experiment is not safe for concurrent use.
type Experiment struct {
	sample         Layer
	probe          Probe
	roughnessLimit float64
	dz             float64
	backend        abeles.Backend
	kernel         abeles.Kernel
	logger         *slog.Logger

	slabs *Microslabs
	gen   uint64

	rendered  slot[struct{}]
	calcR     slot[[]complex128]
	amplitude slot[[]complex128]
	refl      [2][2]slot[Curve] // [resolution][beam]
	smooth    keyedSlot[float64, Profile]
	step      slot[Profile]
	residuals slot[[]float64]
}

var _ Model = (*Experiment)(nil)

// NewExperiment creates an Experiment from the given config.
// Zero-value fields are filled with defaults; invalid values return an error.
func NewExperiment(sample Layer, probe Probe, cfg ExperimentConfig) (*Experiment, error) {
	if sample == nil {
		return nil, fmt.Errorf("%w: experiment has no sample", ErrConfiguration)
	}
	if probe == nil {
		return nil, fmt.Errorf("%w: experiment has no probe", ErrConfiguration)
	}

	limit := cfg.RoughnessLimit
	if math.IsNaN(limit) {
		return nil, fmt.Errorf("%w: roughness limit is NaN", ErrConfiguration)
	}
	if limit == 0 {
		limit = DefaultRoughnessLimit
	}

	backend := cfg.Backend
	if backend == 0 {
		backend = abeles.Vectorized
	}
	if !backend.IsValid() {
		return nil, fmt.Errorf("%w: %w: %d", ErrConfiguration, abeles.ErrInvalidBackend, int(backend))
	}

	dz := cfg.DZ
	if dz < 0 || math.IsNaN(dz) || math.IsInf(dz, 0) {
		return nil, fmt.Errorf("%w: dz %g must be positive", ErrConfiguration, dz)
	}
	if dz == 0 {
		dz = defaultDZ(probe.Q())
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Experiment{
		sample:         sample,
		probe:          probe,
		roughnessLimit: limit,
		dz:             dz,
		backend:        backend,
		kernel:         backend.Kernel(),
		logger:         logger,
		slabs:          NewMicroslabs(len(probe.CalcQ()), dz),
		gen:            1,
	}, nil
}

// defaultDZ is d/20 for d = 2π/Qmax, rounded to two digits and capped at 5 Å.
func defaultDZ(q []float64) float64 {
	qmax := math.Max(floats.Max(q), -floats.Min(q))
	if qmax == 0 {
		return 5
	}
	return math.Min(Nice(2*math.Pi/qmax/20, 2), 5)
}

// Config returns the effective configuration.
func (e *Experiment) Config() ExperimentConfig {
	return ExperimentConfig{
		RoughnessLimit: e.roughnessLimit,
		DZ:             e.dz,
		Backend:        e.backend,
		Logger:         e.logger,
	}
}

// Sample returns the sample tree.
func (e *Experiment) Sample() Layer { return e.sample }

// Probe returns the probe.
func (e *Experiment) Probe() Probe { return e.probe }

// Update invalidates every cached value.
func (e *Experiment) Update() { e.gen++ }

// Generation returns the cache generation, which Update increments.
func (e *Experiment) Generation() uint64 { return e.gen }

// Parameters implements Parameterized.
func (e *Experiment) Parameters() map[string]any {
	return map[string]any{
		"sample": e.sample.Parameters(),
		"probe":  e.probe.Parameters(),
	}
}

// cached returns the value in s if it belongs to the current generation and
// otherwise computes and stores it. Failed computations are not stored.
func cached[T any](e *Experiment, s *slot[T], name cacheSlot, compute func() (T, error)) (T, error) {
	if v, ok := s.get(e.gen); ok {
		return v, nil
	}
	e.logger.Debug("cache miss", "slot", name, "generation", e.gen)
	v, err := compute()
	if err != nil {
		var zero T
		return zero, err
	}
	s.set(e.gen, v)
	return v, nil
}

func (e *Experiment) render() (*Microslabs, error) {
	_, err := cached(e, &e.rendered, slotRendered, func() (struct{}, error) {
		e.slabs.Clear()
		return struct{}{}, e.sample.Render(e.probe, e.slabs)
	})
	if err != nil {
		return nil, err
	}
	return e.slabs, nil
}

// calcAmplitude is the complex amplitude on the calculation grid.
func (e *Experiment) calcAmplitude() ([]complex128, error) {
	return cached(e, &e.calcR, slotCalcR, func() ([]complex128, error) {
		slabs, err := e.render()
		if err != nil {
			return nil, err
		}
		q := e.probe.CalcQ()
		kz := make([]float64, len(q))
		for i, v := range q {
			kz[i] = -v / 2
		}
		r, err := e.kernel.Amplitude(kz, slabs.kernelSlabs())
		if err != nil {
			return nil, kernelError(err)
		}
		return r, nil
	})
}

// Amplitude returns the complex reflection amplitude on Q, with resolution
// applied to the real and imaginary parts separately.
func (e *Experiment) Amplitude() ([]complex128, error) {
	return cached(e, &e.amplitude, slotAmplitude, func() ([]complex128, error) {
		calc, err := e.calcAmplitude()
		if err != nil {
			return nil, err
		}
		re := make([]float64, len(calc))
		im := make([]float64, len(calc))
		for i, v := range calc {
			re[i], im[i] = real(v), imag(v)
		}
		re, im = e.probe.Resolution(re), e.probe.Resolution(im)
		out := make([]complex128, len(re))
		for i := range out {
			out[i] = complex(re[i], im[i])
		}
		return out, nil
	})
}

// Reflectivity returns the predicted reflectivity. With resolution the curve
// is on Q, otherwise on the calculation grid. With beam the probe's
// intensity and background are applied.
func (e *Experiment) Reflectivity(resolution, beam bool) (Curve, error) {
	s := &e.refl[index(resolution)][index(beam)]
	return cached(e, s, slotReflectivity, func() (Curve, error) {
		calc, err := e.calcAmplitude()
		if err != nil {
			return Curve{}, err
		}
		q, r := e.probe.CalcQ(), abeles.Reflectivity(calc)
		if resolution {
			q, r = e.probe.Q(), e.probe.Resolution(r)
		}
		if beam {
			r = e.probe.BeamParameters(r)
		}
		if err := checkCurve(r); err != nil {
			return Curve{}, err
		}
		return Curve{Q: q, R: r}, nil
	})
}

func index(b bool) int {
	if b {
		return 1
	}
	return 0
}

func checkCurve(r []float64) error {
	for i, v := range r {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: reflectivity[%d] = %v", ErrNumerical, i, v)
		}
	}
	return nil
}

// Fresnel returns the reflectivity on Q of the bare interface between the
// substrate and the incident medium, with the substrate roughness.
func (e *Experiment) Fresnel() ([]float64, error) {
	slabs, err := e.render()
	if err != nil {
		return nil, err
	}
	n := slabs.Len()
	if n < 2 {
		return nil, fmt.Errorf("%w: fresnel needs two media, sample has %d slabs", ErrConfiguration, n)
	}
	q := e.probe.Q()
	kz := make([]float64, len(q))
	for i, v := range q {
		kz[i] = -v / 2
	}
	rho, irho := slabs.Rho(), slabs.IRho()
	f, err := abeles.Fresnel(kz, rho[0][0], irho[0][0], rho[n-1][0], irho[n-1][0], slabs.Sigma()[0])
	if err != nil {
		return nil, kernelError(err)
	}
	return f, nil
}

// SmoothProfile returns the depth profile sampled every dz Å with limited
// Gaussian interfaces. A dz <= 0 uses the experiment's step; a NaN or
// infinite dz is an ErrConfiguration.
func (e *Experiment) SmoothProfile(dz float64) (Profile, error) {
	if math.IsNaN(dz) || math.IsInf(dz, 0) {
		return Profile{}, fmt.Errorf("%w: profile step %g", ErrConfiguration, dz)
	}
	if dz <= 0 {
		dz = e.dz
	}
	if p, ok := e.smooth.get(e.gen, dz); ok {
		return p, nil
	}
	e.logger.Debug("cache miss", "slot", slotSmoothProfile, "generation", e.gen, "dz", dz)
	slabs, err := e.render()
	if err != nil {
		return Profile{}, err
	}
	p := slabs.SmoothProfile(dz, e.roughnessLimit)
	e.smooth.set(e.gen, dz, p)
	return p, nil
}

// StepProfile returns the piecewise-constant depth profile.
func (e *Experiment) StepProfile() (Profile, error) {
	return cached(e, &e.step, slotStepProfile, func() (Profile, error) {
		slabs, err := e.render()
		if err != nil {
			return Profile{}, err
		}
		return slabs.StepProfile(), nil
	})
}

// Slabs returns a copy of the rendered slab table.
func (e *Experiment) Slabs() (SlabTable, error) {
	slabs, err := e.render()
	if err != nil {
		return SlabTable{}, err
	}
	n := slabs.Len()
	t := SlabTable{
		Thickness: append([]float64(nil), slabs.W()...),
		Roughness: make([]float64, n),
		Rho:       make([]float64, n),
		IRho:      make([]float64, n),
	}
	if n > 0 {
		copy(t.Roughness[1:], slabs.Sigma())
	}
	for j := 0; j < n; j++ {
		t.Rho[j], t.IRho[j] = slabs.Rho()[j][0], slabs.IRho()[j][0]
	}
	return t, nil
}

// Residuals returns (R - theory)/dR on Q. It fails with ErrMissingData
// before computing anything if the probe carries no R or dR.
func (e *Experiment) Residuals() ([]float64, error) {
	r, dr := e.probe.R(), e.probe.DR()
	if r == nil || dr == nil {
		return nil, fmt.Errorf("%w: probe has no R or dR", ErrMissingData)
	}
	return cached(e, &e.residuals, slotResiduals, func() ([]float64, error) {
		c, err := e.Reflectivity(true, true)
		if err != nil {
			return nil, err
		}
		return residuals(r, dr, c.R), nil
	})
}

// NLLF returns the negative log likelihood ½Σ residual².
func (e *Experiment) NLLF() (float64, error) {
	res, err := e.Residuals()
	if err != nil {
		return 0, err
	}
	return nllf(res), nil
}
