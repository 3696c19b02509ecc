// Package fit adjusts model parameters to minimise a refl.Model's negative
// log likelihood against its measured data.
//
// [Fitter.Fit] runs the [Adam] optimizer with a [CosineAnnealing] learning
// rate schedule. Each parameter is mapped onto [0, 1] through its bounds, so
// every fitted parameter must be bounded. Gradients are computed by central
// differences on Model.NLLF.
//
// # Usage
//
//	thickness := film.Thickness.Range(80, 120)
//	f, err := fit.NewFitter(fit.Config{})
//	res, err := f.Fit(ctx, experiment, []*refl.Parameter{thickness})
//
// The fitter leaves the parameters at the best point found and calls
// Update on the model before returning, including when the context is
// cancelled.
package fit
