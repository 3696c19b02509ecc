// Package abeles computes specular reflection amplitudes of stratified
// media with the Abeles transfer-matrix recursion.
//
// A sample is a flat sequence of slabs, each with a thickness and a complex
// scattering length density (SLD, in units of 1e-6/Å²), separated by
// Gaussian-rough interfaces. Slabs are ordered from substrate (index 0) to
// incident medium (last index) when kz < 0, which is how the refl package
// calls the kernel (kz = -Q/2). For positive kz the beam enters from slab 0.
// The thicknesses of the two outermost slabs are ignored.
//
// Interface roughness is applied exactly with the Nevot–Croce factor
//
//	F'ᵢ = Fᵢ · exp(-2 kᵢ kᵢ₊₁ σᵢ²)
//
// where Fᵢ = (kᵢ - kᵢ₊₁)/(kᵢ + kᵢ₊₁) is the Fresnel coefficient of the
// sharp interface.
//
// Two kernels are provided and selected explicitly through [Backend]:
// [Vectorized] runs the recursion one slab at a time across every kz, and
// [Pointwise] runs the full recursion for one kz at a time. They produce the
// same amplitudes.
//
// # Usage
//
//	kernel := abeles.Vectorized.Kernel()
//	r, err := kernel.Amplitude(kz, abeles.Slabs{
//	    Depth: []float64{0, 100, 0},
//	    Rho:   [][]float64{{2.07}, {4.5}, {0}},
//	    IRho:  [][]float64{{0}, {0}, {0}},
//	    Sigma: []float64{3, 3},
//	})
package abeles
