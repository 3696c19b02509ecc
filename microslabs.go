package refl

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/sky-flux/refl/abeles"
)

// DefaultRoughnessLimit caps interface widths in smooth profiles at
// 1/2.5 of the thinner adjoining slab.
const DefaultRoughnessLimit = 2.5

// Microslabs is the append-only slab buffer layers render into.
//
// Slabs are ordered from substrate (index 0) to incident medium. Each slab
// holds its thickness, its SLD as one value or one value per calculation
// point, and the roughness of its top interface. The top interface of the
// last slab has no physical meaning and is never reported.
type Microslabs struct {
	channels int
	dz       float64

	w     []float64
	sigma []float64
	rho   [][]float64
	irho  [][]float64
}

// NewMicroslabs returns an empty buffer for SLD arrays of length 1 or
// channels, with profile step dz.
func NewMicroslabs(channels int, dz float64) *Microslabs {
	return &Microslabs{channels: channels, dz: dz}
}

// Len returns the number of slabs.
func (s *Microslabs) Len() int { return len(s.w) }

// DZ returns the default profile step.
func (s *Microslabs) DZ() float64 { return s.dz }

// Clear empties the buffer, keeping its storage.
func (s *Microslabs) Clear() {
	s.w = s.w[:0]
	s.sigma = s.sigma[:0]
	s.rho = s.rho[:0]
	s.irho = s.irho[:0]
}

// Extend appends one slab of thickness w and top roughness sigma.
// rho and irho must have length 1 or the buffer's channel count; a nil
// irho means no absorption.
func (s *Microslabs) Extend(w, sigma float64, rho, irho []float64) error {
	if err := s.checkChannel("rho", rho); err != nil {
		return err
	}
	if irho == nil {
		irho = []float64{0}
	}
	if err := s.checkChannel("irho", irho); err != nil {
		return err
	}
	s.w = append(s.w, w)
	s.sigma = append(s.sigma, sigma)
	s.rho = append(s.rho, rho)
	s.irho = append(s.irho, irho)
	return nil
}

func (s *Microslabs) checkChannel(name string, v []float64) error {
	if len(v) != 1 && len(v) != s.channels {
		return fmt.Errorf("%w: %s has %d values, want 1 or %d", ErrConfiguration, name, len(v), s.channels)
	}
	return nil
}

// Repeat appends count further copies of the slabs from mark to the end.
func (s *Microslabs) Repeat(mark, count int) {
	if count <= 0 || mark < 0 || mark >= len(s.w) {
		return
	}
	end := len(s.w)
	for range count {
		s.w = append(s.w, s.w[mark:end]...)
		s.sigma = append(s.sigma, s.sigma[mark:end]...)
		s.rho = append(s.rho, s.rho[mark:end]...)
		s.irho = append(s.irho, s.irho[mark:end]...)
	}
}

// Interface sets the roughness above the last slab, which is the boundary
// preceding the next appended slab. It does nothing on an empty buffer.
func (s *Microslabs) Interface(sigma float64) {
	if n := len(s.sigma); n > 0 {
		s.sigma[n-1] = sigma
	}
}

// W returns the slab thicknesses.
func (s *Microslabs) W() []float64 { return s.w }

// Rho returns the real SLD of each slab.
func (s *Microslabs) Rho() [][]float64 { return s.rho }

// IRho returns the imaginary SLD of each slab.
func (s *Microslabs) IRho() [][]float64 { return s.irho }

// Sigma returns the Len()-1 interface roughnesses; Sigma()[i] lies between
// slab i and slab i+1.
func (s *Microslabs) Sigma() []float64 {
	if len(s.sigma) == 0 {
		return nil
	}
	return s.sigma[:len(s.sigma)-1]
}

func (s *Microslabs) kernelSlabs() abeles.Slabs {
	return abeles.Slabs{Depth: s.w, Rho: s.rho, IRho: s.irho, Sigma: s.Sigma()}
}

// LimitedSigma returns Sigma with each interface capped at the thinner of
// its two slabs divided by limit. The outer slabs count as infinitely
// thick. A limit <= 0 leaves the roughness unchanged.
func (s *Microslabs) LimitedSigma(limit float64) []float64 {
	sigma := append([]float64(nil), s.Sigma()...)
	if limit <= 0 {
		return sigma
	}
	last := len(s.w) - 1
	thick := func(j int) float64 {
		if j == 0 || j == last {
			return math.Inf(1)
		}
		return s.w[j]
	}
	for i := range sigma {
		if c := math.Min(thick(i), thick(i+1)) / limit; sigma[i] > c {
			sigma[i] = c
		}
	}
	return sigma
}

// Profile is an SLD depth profile. Z increases from the substrate
// interface (z = 0) towards the incident medium.
type Profile struct {
	Z    []float64
	Rho  []float64
	IRho []float64
}

// boundaries returns the depth of each interface.
func (s *Microslabs) boundaries() []float64 {
	n := len(s.w)
	if n < 2 {
		return nil
	}
	z := make([]float64, n-1)
	for i := 1; i < n-1; i++ {
		z[i] = z[i-1] + s.w[i]
	}
	return z
}

// margin is how far the outer media extend past the outermost interfaces.
func (s *Microslabs) margin(sigma []float64) float64 {
	m := 5.0
	if len(sigma) > 0 {
		m = math.Max(m, resolutionWidth*floats.Max(sigma))
	}
	return m
}

// StepProfile returns the piecewise-constant profile with two points per
// slab, one at each of its boundaries.
func (s *Microslabs) StepProfile() Profile {
	n := len(s.w)
	if n == 0 {
		return Profile{}
	}
	b := s.boundaries()
	m := s.margin(s.Sigma())
	p := Profile{
		Z:    make([]float64, 0, 2*n),
		Rho:  make([]float64, 0, 2*n),
		IRho: make([]float64, 0, 2*n),
	}
	for j := 0; j < n; j++ {
		var lo, hi float64
		switch {
		case n == 1:
			lo, hi = -m, m
		case j == 0:
			lo, hi = -m, 0
		case j == n-1:
			lo, hi = b[n-2], b[n-2]+m
		default:
			lo, hi = b[j-1], b[j]
		}
		r, ir := s.rho[j][0], s.irho[j][0]
		p.Z = append(p.Z, lo, hi)
		p.Rho = append(p.Rho, r, r)
		p.IRho = append(p.IRho, ir, ir)
	}
	return p
}

// SmoothProfile samples the profile at step dz with each interface
// blurred by a Gaussian of its limited roughness (see LimitedSigma).
// A dz <= 0 uses the buffer's default step.
func (s *Microslabs) SmoothProfile(dz, roughnessLimit float64) Profile {
	n := len(s.w)
	if n == 0 {
		return Profile{}
	}
	if dz <= 0 {
		dz = s.dz
	}
	sigma := s.LimitedSigma(roughnessLimit)
	b := s.boundaries()
	m := s.margin(sigma)
	top := 0.0
	if len(b) > 0 {
		top = b[len(b)-1]
	}
	lo, hi := -m, top+m
	count := int(math.Floor((hi-lo)/dz)) + 1
	if count < 2 {
		count = 2
	}
	z := make([]float64, count)
	floats.Span(z, lo, lo+dz*float64(count-1))

	p := Profile{Z: z, Rho: make([]float64, count), IRho: make([]float64, count)}
	for k, zk := range z {
		r, ir := s.rho[0][0], s.irho[0][0]
		for i, bi := range b {
			f := blend(zk-bi, sigma[i])
			r += f * (s.rho[i+1][0] - s.rho[i][0])
			ir += f * (s.irho[i+1][0] - s.irho[i][0])
		}
		p.Rho[k], p.IRho[k] = r, ir
	}
	return p
}

// blend is the fraction of the upper slab at distance d above an interface
// of roughness sigma.
func blend(d, sigma float64) float64 {
	if sigma > 0 {
		return distuv.UnitNormal.CDF(d / sigma)
	}
	switch {
	case d > 0:
		return 1
	case d < 0:
		return 0
	default:
		return 0.5
	}
}
