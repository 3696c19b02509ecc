// Package refl computes specular X-ray and neutron reflectivity of layered
// samples and scores it against measured data.
//
// A sample is a tree of layers ([Slab], [Stack], [Repeat]) built with
// [StackOf], [NewRepeat], [WithThickness] and [WithInterface]. An
// [Experiment] renders the tree into [Microslabs], runs the Abeles
// recursion from the refl/abeles subpackage on the probe's calculation
// grid, applies resolution and beam corrections and memoizes every result
// until [Experiment.Update] is called. [CompositeExperiment] and
// [DistributionExperiment] combine experiments incoherently.
//
// Basic usage:
//
//	si, film, air := refl.NewSLD("Si", 2.07, 0), refl.NewSLD("film", 4.5, 0), refl.NewSLD("air", 0, 0)
//	sample, err := refl.StackOf(refl.NewSlab(si, 0, 3), refl.NewSlab(film, 100, 3), air)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	probe, err := refl.NewQProbe(refl.QProbeConfig{Q: q, DQ: []float64{0.001}})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	e, err := refl.NewExperiment(sample, probe, refl.ExperimentConfig{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	curve, err := e.Reflectivity(true, true)
package refl
