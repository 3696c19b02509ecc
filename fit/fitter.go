package fit

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/sky-flux/refl"
	"github.com/sky-flux/refl/internal/ctxlog"
)

var (
	// ErrNoParameters is returned when Fit is given nothing to adjust.
	ErrNoParameters = errors.New("fit: no parameters to fit")

	// ErrUnbounded is returned when a fitted parameter lacks finite bounds.
	ErrUnbounded = errors.New("fit: parameter has no finite bounds")

	// ErrInvalidConfig is returned by NewFitter for negative or non-finite settings.
	ErrInvalidConfig = errors.New("fit: invalid configuration")
)

// Config configures a Fitter.
// Zero values are replaced with sensible defaults.
type Config struct {
	Steps        int     `json:"steps"`         // default 200
	LearningRate float64 `json:"learning_rate"` // default 0.05, in unit coordinates
	GradStep     float64 `json:"grad_step"`     // default 1e-4, in unit coordinates
}

// Result summarises a fit.
type Result struct {
	NLLF    float64   // at the best point
	Initial float64   // at the starting point
	Values  []float64 // best parameter values, in the order given to Fit
	Steps   int       // optimizer steps taken
	Evals   int       // NLLF evaluations
}

// Fitter minimises Model.NLLF over bounded parameters.
type Fitter struct {
	steps    int
	lr       float64
	gradStep float64
}

// NewFitter creates a Fitter with the given config.
// Zero-valued fields receive defaults: Steps=200, LearningRate=0.05,
// GradStep=1e-4.
func NewFitter(cfg Config) (*Fitter, error) {
	f := &Fitter{steps: cfg.Steps, lr: cfg.LearningRate, gradStep: cfg.GradStep}
	if f.steps == 0 {
		f.steps = 200
	}
	if f.lr == 0 {
		f.lr = 0.05
	}
	if f.gradStep == 0 {
		f.gradStep = 1e-4
	}
	if f.steps < 0 || !(f.lr > 0) || math.IsInf(f.lr, 0) || !(f.gradStep > 0 && f.gradStep < 0.5) {
		return nil, fmt.Errorf("%w: %+v", ErrInvalidConfig, cfg)
	}
	return f, nil
}

// Config returns the effective configuration.
func (f *Fitter) Config() Config {
	return Config{Steps: f.steps, LearningRate: f.lr, GradStep: f.gradStep}
}

// Fit adjusts params to minimise m.NLLF. Every parameter must be bounded
// and lie within its bounds.
//
// On return the parameters hold the best point seen and m has been updated.
// If ctx is cancelled the best point so far is applied and ctx.Err() is
// returned along with the partial result. The logger is taken from ctx.
func (f *Fitter) Fit(ctx context.Context, m refl.Model, params []*refl.Parameter) (Result, error) {
	if len(params) == 0 {
		return Result{}, ErrNoParameters
	}
	for _, p := range params {
		if !p.Bounded() {
			return Result{}, fmt.Errorf("%w: %s", ErrUnbounded, p.Name())
		}
	}
	if err := refl.ValidateParameters(params...); err != nil {
		return Result{}, err
	}

	logger := ctxlog.FromContext(ctx)
	obj := newObjective(m, params)
	u := obj.unit()
	initial, err := obj.eval(u)
	if err != nil {
		return Result{}, err
	}
	logger.Info("fit started", "parameters", len(params), "steps", f.steps, "nllf", initial)

	best := initial
	bestU := append([]float64(nil), u...)
	adam := NewAdam(len(u), f.lr)
	ca := NewCosineAnnealing(f.lr, f.steps)

	finish := func(steps int, err error) (Result, error) {
		obj.set(bestU)
		values := make([]float64, len(params))
		for i, p := range params {
			values[i] = p.Value()
		}
		res := Result{NLLF: best, Initial: initial, Values: values, Steps: steps, Evals: obj.evals}
		if err != nil {
			logger.Warn("fit stopped", "step", steps, "nllf", best, "error", err)
		} else {
			logger.Info("fit finished", "steps", steps, "evals", obj.evals, "nllf", best)
		}
		return res, err
	}

	for step := 0; step < f.steps; step++ {
		if err := ctx.Err(); err != nil {
			return finish(step, err)
		}

		grad, err := obj.gradient(u, f.gradStep)
		if err != nil {
			return finish(step, err)
		}
		adam.SetLR(ca.LR())
		adam.Update(u, grad)
		for i := range u {
			u[i] = clamp(u[i])
		}
		ca.Step()

		loss, err := obj.eval(u)
		if err != nil {
			return finish(step+1, err)
		}
		if loss < best {
			best = loss
			copy(bestU, u)
		}
		logger.Debug("fit step", "step", step+1, "nllf", loss, "best", best)
	}

	return finish(f.steps, nil)
}
