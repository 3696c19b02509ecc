package refl

import "gonum.org/v1/gonum/floats"

// Model is a reflectivity model that can be scored against data.
// Experiment, CompositeExperiment and DistributionExperiment implement it.
type Model interface {
	Parameterized
	Reflectivity(resolution, beam bool) (Curve, error)
	Residuals() ([]float64, error)
	NLLF() (float64, error)
	Update()
}

func residuals(r, dr, theory []float64) []float64 {
	out := make([]float64, len(r))
	for i := range out {
		out[i] = (r[i] - theory[i]) / dr[i]
	}
	return out
}

// nllf assumes independent Gaussian errors and drops the constant
// normalisation term.
func nllf(res []float64) float64 {
	return floats.Dot(res, res) / 2
}
