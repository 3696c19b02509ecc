// Package sampledef loads reflectometry models from HCL definition files.
//
// A definition names its materials, describes the probe, lists the sample
// from the substrate up and optionally tunes the experiment:
//
//	material "si" {
//	  rho = 2.07
//	}
//	material "ni" {
//	  rho  = 9.41
//	  irho = 0.001
//	}
//	material "ti" {
//	  rho = -1.95
//	}
//	material "air" {
//	  rho = 0
//	}
//
//	probe {
//	  q  = linspace(0.01, 0.3, 200)
//	  dq = 0.001
//	}
//
//	sample {
//	  slab "si" {
//	    interface = 3
//	  }
//	  repeat {
//	    count = 10
//	    slab "ni" {
//	      thickness       = 50
//	      interface       = 5
//	      thickness_range = [40, 60]
//	    }
//	    slab "ti" {
//	      thickness = 30
//	      interface = 5
//	    }
//	  }
//	  slab "air" {}
//	}
//
//	experiment {
//	  backend = "pointwise"
//	}
//
// A probe may read its Q, dQ, R and dR columns from a table instead:
// data = "run.dat", resolved relative to the definition file.
//
// Omitted attributes take the refl defaults: intensity 1, no background,
// roughness_limit 2.5 and a dz derived from the largest Q. dz = 0 also
// selects the derived step. roughness_limit = 0 (or any negative value)
// turns the smooth-profile roughness cap off, and intensity must be
// positive when given.
//
// Any attribute with a matching <name>_range = [lo, hi] is bounded to that
// interval and reported in [Definition.Fitted], ready for the fit package.
package sampledef
