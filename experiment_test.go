package refl

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/sky-flux/refl/abeles"
)

// filmSample is a 100 Å film of SLD 4.5 with a 3 Å top interface on silicon.
func filmSample(t *testing.T) (*Stack, *Slab) {
	t.Helper()
	film := NewSlab(NewSLD("film", 4.5, 0), 100, 3)
	s, err := StackOf(NewSlab(NewSLD("Si", 2.07, 0), 0, 0), film, NewSLD("air", 0, 0))
	if err != nil {
		t.Fatal(err)
	}
	return s, film
}

func newProbe(t *testing.T, cfg QProbeConfig) *QProbe {
	t.Helper()
	p, err := NewQProbe(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func newExperiment(t *testing.T, sample Layer, probe Probe, cfg ExperimentConfig) *Experiment {
	t.Helper()
	e, err := NewExperiment(sample, probe, cfg)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestExperimentDefaults(t *testing.T) {
	s, _ := filmSample(t)
	e := newExperiment(t, s, newProbe(t, QProbeConfig{Q: linspace(0.01, 0.3, 50)}), ExperimentConfig{})
	cfg := e.Config()
	if cfg.RoughnessLimit != 2.5 {
		t.Errorf("RoughnessLimit = %g, want 2.5", cfg.RoughnessLimit)
	}
	if cfg.Backend != abeles.Vectorized {
		t.Errorf("Backend = %v, want vectorized", cfg.Backend)
	}
	if math.Abs(cfg.DZ-1.0) > 1e-12 {
		t.Errorf("DZ = %g, want 1", cfg.DZ)
	}
	if e.Generation() != 1 {
		t.Errorf("Generation() = %d, want 1", e.Generation())
	}
}

func TestExperimentDZCappedAtFive(t *testing.T) {
	s, _ := filmSample(t)
	e := newExperiment(t, s, newProbe(t, QProbeConfig{Q: []float64{0.005, 0.01}}), ExperimentConfig{})
	if got := e.Config().DZ; got != 5 {
		t.Errorf("DZ = %g, want 5", got)
	}
}

func TestExperimentConfigJSON(t *testing.T) {
	s, _ := filmSample(t)
	e := newExperiment(t, s, newProbe(t, QProbeConfig{Q: []float64{0.1}}),
		ExperimentConfig{Backend: abeles.Pointwise, DZ: 0.5, RoughnessLimit: -1})
	data, err := json.Marshal(e.Config())
	if err != nil {
		t.Fatal(err)
	}
	want := `{"roughness_limit":-1,"dz":0.5,"backend":"pointwise"}`
	if string(data) != want {
		t.Errorf("json = %s, want %s", data, want)
	}
	var back ExperimentConfig
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back.Backend != abeles.Pointwise || back.DZ != 0.5 || back.RoughnessLimit != -1 {
		t.Errorf("round trip = %+v", back)
	}
}

func TestNewExperimentRejects(t *testing.T) {
	s, _ := filmSample(t)
	p := newProbe(t, QProbeConfig{Q: []float64{0.1}})
	tests := []struct {
		name   string
		sample Layer
		probe  Probe
		cfg    ExperimentConfig
	}{
		{"no sample", nil, p, ExperimentConfig{}},
		{"no probe", s, nil, ExperimentConfig{}},
		{"bad backend", s, p, ExperimentConfig{Backend: abeles.Backend(9)}},
		{"negative dz", s, p, ExperimentConfig{DZ: -1}},
		{"nan limit", s, p, ExperimentConfig{RoughnessLimit: math.NaN()}},
	}
	for _, tt := range tests {
		if _, err := NewExperiment(tt.sample, tt.probe, tt.cfg); !errors.Is(err, ErrConfiguration) {
			t.Errorf("%s: err = %v, want ErrConfiguration", tt.name, err)
		}
	}
	_, err := NewExperiment(s, p, ExperimentConfig{Backend: abeles.Backend(9)})
	if !errors.Is(err, abeles.ErrInvalidBackend) {
		t.Errorf("bad backend: err = %v, want abeles.ErrInvalidBackend in chain", err)
	}
}

func TestFilmReflectivityScenario(t *testing.T) {
	s, _ := filmSample(t)
	q := linspace(0.01, 0.3, 600)
	e := newExperiment(t, s, newProbe(t, QProbeConfig{Q: append(q, 0.1)}), ExperimentConfig{})
	c, err := e.Reflectivity(false, false)
	if err != nil {
		t.Fatal(err)
	}
	at := func(x float64) float64 {
		for i, v := range c.Q {
			if v == x {
				return c.R[i]
			}
		}
		t.Fatalf("Q = %g not on the grid", x)
		return 0
	}
	if r := at(0.1); !(r > 0 && r < 1) {
		t.Errorf("R(0.1) = %g, want in (0, 1)", r)
	}

	// Average over one Kiessig period (2π/100 Å) to remove the fringes.
	period := 2 * math.Pi / 100
	prev := math.Inf(1)
	for lo := 0.02; lo+period <= 0.3; lo += period {
		var sum float64
		var n int
		for i, v := range c.Q {
			if v >= lo && v < lo+period {
				sum += c.R[i]
				n++
			}
		}
		mean := sum / float64(n)
		if !(mean < prev) {
			t.Errorf("mean R over [%.3f, %.3f) = %g, not below previous %g", lo, lo+period, mean, prev)
		}
		prev = mean
	}
}

func TestReflectivityCached(t *testing.T) {
	s, _ := filmSample(t)
	e := newExperiment(t, s, newProbe(t, QProbeConfig{Q: linspace(0.01, 0.2, 40), DQ: []float64{0.002}}), ExperimentConfig{})
	for _, res := range []bool{false, true} {
		for _, beam := range []bool{false, true} {
			a, err := e.Reflectivity(res, beam)
			if err != nil {
				t.Fatal(err)
			}
			b, err := e.Reflectivity(res, beam)
			if err != nil {
				t.Fatal(err)
			}
			if &a.R[0] != &b.R[0] {
				t.Errorf("Reflectivity(%v, %v) recomputed on a cache hit", res, beam)
			}
			if diff := cmp.Diff(a, b); diff != "" {
				t.Errorf("cached curve differs (-first +second):\n%s", diff)
			}
		}
	}
	if e.Generation() != 1 {
		t.Errorf("queries changed the generation to %d", e.Generation())
	}
}

func TestUpdateInvalidatesEverything(t *testing.T) {
	s, film := filmSample(t)
	e := newExperiment(t, s, newProbe(t, QProbeConfig{Q: linspace(0.01, 0.2, 40)}), ExperimentConfig{})
	before, err := e.Reflectivity(true, true)
	if err != nil {
		t.Fatal(err)
	}
	stepBefore, err := e.StepProfile()
	if err != nil {
		t.Fatal(err)
	}
	smoothBefore, err := e.SmoothProfile(1)
	if err != nil {
		t.Fatal(err)
	}

	film.Thickness.Set(150)
	stale, err := e.Reflectivity(true, true)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(before, stale); diff != "" {
		t.Errorf("curve changed without Update (-before +after):\n%s", diff)
	}

	e.Update()
	if e.Generation() != 2 {
		t.Errorf("Generation() = %d after Update, want 2", e.Generation())
	}
	after, err := e.Reflectivity(true, true)
	if err != nil {
		t.Fatal(err)
	}
	if cmp.Equal(before.R, after.R) {
		t.Error("Reflectivity did not reflect the new thickness after Update")
	}
	stepAfter, err := e.StepProfile()
	if err != nil {
		t.Fatal(err)
	}
	if cmp.Equal(stepBefore, stepAfter) {
		t.Error("StepProfile not recomputed after Update")
	}
	smoothAfter, err := e.SmoothProfile(1)
	if err != nil {
		t.Fatal(err)
	}
	if cmp.Equal(smoothBefore, smoothAfter) {
		t.Error("SmoothProfile not recomputed after Update")
	}
}

func TestBackendsAgree(t *testing.T) {
	s, _ := filmSample(t)
	p := newProbe(t, QProbeConfig{Q: linspace(0.005, 0.3, 120), DQ: []float64{0.003}})
	v := newExperiment(t, s, p, ExperimentConfig{Backend: abeles.Vectorized})
	w := newExperiment(t, s, p, ExperimentConfig{Backend: abeles.Pointwise})
	a, err := v.Reflectivity(true, true)
	if err != nil {
		t.Fatal(err)
	}
	b, err := w.Reflectivity(true, true)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(a.R, b.R, cmpopts.EquateApprox(1e-10, 1e-14)); diff != "" {
		t.Errorf("backends disagree (-vectorized +pointwise):\n%s", diff)
	}
}

func TestResolutionFlagSelectsGrid(t *testing.T) {
	s, _ := filmSample(t)
	p := newProbe(t, QProbeConfig{Q: linspace(0.01, 0.2, 30), DQ: []float64{0.002}})
	e := newExperiment(t, s, p, ExperimentConfig{})
	raw, err := e.Reflectivity(false, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(raw.Q) != len(p.CalcQ()) {
		t.Errorf("unresolved curve has %d points, want calc grid %d", len(raw.Q), len(p.CalcQ()))
	}
	smeared, err := e.Reflectivity(true, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(smeared.Q) != p.Len() {
		t.Errorf("resolved curve has %d points, want %d", len(smeared.Q), p.Len())
	}
}

func TestBeamCorrection(t *testing.T) {
	s, _ := filmSample(t)
	p := newProbe(t, QProbeConfig{Q: linspace(0.01, 0.2, 30), Intensity: 2, Background: 1e-6})
	e := newExperiment(t, s, p, ExperimentConfig{})
	bare, err := e.Reflectivity(true, false)
	if err != nil {
		t.Fatal(err)
	}
	beam, err := e.Reflectivity(true, true)
	if err != nil {
		t.Fatal(err)
	}
	for i := range bare.R {
		if want := 2*bare.R[i] + 1e-6; math.Abs(beam.R[i]-want) > 1e-15 {
			t.Errorf("beam R[%d] = %g, want %g", i, beam.R[i], want)
		}
	}
}

func TestAmplitudeMatchesReflectivity(t *testing.T) {
	s, _ := filmSample(t)
	e := newExperiment(t, s, newProbe(t, QProbeConfig{Q: linspace(0.01, 0.2, 30)}), ExperimentConfig{})
	r, err := e.Amplitude()
	if err != nil {
		t.Fatal(err)
	}
	c, err := e.Reflectivity(true, false)
	if err != nil {
		t.Fatal(err)
	}
	for i := range r {
		if got := real(r[i])*real(r[i]) + imag(r[i])*imag(r[i]); math.Abs(got-c.R[i]) > 1e-12 {
			t.Errorf("|r|²[%d] = %g, R = %g", i, got, c.R[i])
		}
	}
}

func TestFresnelOfBareSubstrate(t *testing.T) {
	s, err := StackOf(NewSlab(NewSLD("Si", 2.07, 0), 0, 4), NewSLD("air", 0, 0))
	if err != nil {
		t.Fatal(err)
	}
	e := newExperiment(t, s, newProbe(t, QProbeConfig{Q: linspace(0.005, 0.25, 50)}), ExperimentConfig{})
	f, err := e.Fresnel()
	if err != nil {
		t.Fatal(err)
	}
	c, err := e.Reflectivity(true, false)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(c.R, f, cmpopts.EquateApprox(1e-12, 0)); diff != "" {
		t.Errorf("Fresnel differs from the bare substrate (-refl +fresnel):\n%s", diff)
	}
}

func TestFresnelNeedsTwoMedia(t *testing.T) {
	s, err := StackOf(NewSlab(NewSLD("Si", 2.07, 0), 0, 0))
	if err != nil {
		t.Fatal(err)
	}
	e := newExperiment(t, s, newProbe(t, QProbeConfig{Q: []float64{0.1}}), ExperimentConfig{})
	if _, err := e.Fresnel(); !errors.Is(err, ErrConfiguration) {
		t.Errorf("err = %v, want ErrConfiguration", err)
	}
}

func TestSlabsTable(t *testing.T) {
	s, _ := filmSample(t)
	e := newExperiment(t, s, newProbe(t, QProbeConfig{Q: []float64{0.1}}), ExperimentConfig{})
	got, err := e.Slabs()
	if err != nil {
		t.Fatal(err)
	}
	want := SlabTable{
		Thickness: []float64{0, 100, 0},
		Roughness: []float64{0, 0, 3},
		Rho:       []float64{2.07, 4.5, 0},
		IRho:      []float64{0, 0, 0},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Slabs mismatch (-want +got):\n%s", diff)
	}
}

func TestSmoothProfileCachedByDZ(t *testing.T) {
	s, _ := filmSample(t)
	e := newExperiment(t, s, newProbe(t, QProbeConfig{Q: linspace(0.01, 0.3, 20)}), ExperimentConfig{})
	a, err := e.SmoothProfile(1)
	if err != nil {
		t.Fatal(err)
	}
	b, err := e.SmoothProfile(0.5)
	if err != nil {
		t.Fatal(err)
	}
	if len(b.Z) <= len(a.Z) {
		t.Errorf("dz 0.5 has %d points, dz 1 has %d", len(b.Z), len(a.Z))
	}
	again, err := e.SmoothProfile(1)
	if err != nil {
		t.Fatal(err)
	}
	if &again.Z[0] != &a.Z[0] {
		t.Error("SmoothProfile(1) recomputed on a cache hit")
	}
	def, err := e.SmoothProfile(0)
	if err != nil {
		t.Fatal(err)
	}
	if &def.Z[0] != &a.Z[0] {
		t.Error("SmoothProfile(0) should reuse the default dz entry")
	}
}

func TestResidualsWithoutData(t *testing.T) {
	// The spline layer cannot render, so any attempt to compute would
	// surface ErrNotImplemented instead.
	s, err := StackOf(NewSlab(NewSLD("Si", 2.07, 0), 0, 0), NewBspline("b", 10, []float64{1}, nil))
	if err != nil {
		t.Fatal(err)
	}
	e := newExperiment(t, s, newProbe(t, QProbeConfig{Q: []float64{0.05, 0.1}}), ExperimentConfig{})
	if _, err := e.Residuals(); !errors.Is(err, ErrMissingData) {
		t.Errorf("Residuals: err = %v, want ErrMissingData", err)
	}
	if _, err := e.NLLF(); !errors.Is(err, ErrMissingData) {
		t.Errorf("NLLF: err = %v, want ErrMissingData", err)
	}
	if _, err := e.Reflectivity(true, true); !errors.Is(err, ErrNotImplemented) {
		t.Errorf("Reflectivity: err = %v, want ErrNotImplemented", err)
	}
}

func TestResidualsWithoutUncertainty(t *testing.T) {
	s, film := filmSample(t)
	q := []float64{0.05, 0.1}
	probe := newProbe(t, QProbeConfig{Q: q, R: []float64{0.01, 0.001}})
	e := newExperiment(t, s, probe, ExperimentConfig{})
	comp, err := NewCompositeExperiment([]Layer{s, s}, []float64{1, 1}, probe, ExperimentConfig{})
	if err != nil {
		t.Fatal(err)
	}
	w, err := NewWeights([]float64{90, 100, 110}, NormalCDF, 100, 5, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	dist, err := NewDistributionExperiment(e, film.Thickness, w)
	if err != nil {
		t.Fatal(err)
	}

	for _, tt := range []struct {
		name string
		m    Model
	}{
		{"experiment", e},
		{"composite", comp},
		{"distribution", dist},
	} {
		if _, err := tt.m.Residuals(); !errors.Is(err, ErrMissingData) {
			t.Errorf("%s Residuals: err = %v, want ErrMissingData", tt.name, err)
		}
		if _, err := tt.m.NLLF(); !errors.Is(err, ErrMissingData) {
			t.Errorf("%s NLLF: err = %v, want ErrMissingData", tt.name, err)
		}
	}
}

func TestResidualsAndNLLF(t *testing.T) {
	s, _ := filmSample(t)
	q := linspace(0.01, 0.2, 25)
	sim := newExperiment(t, s, newProbe(t, QProbeConfig{Q: q}), ExperimentConfig{})
	truth, err := sim.Reflectivity(true, true)
	if err != nil {
		t.Fatal(err)
	}

	data := make([]float64, len(q))
	dr := make([]float64, len(q))
	for i, r := range truth.R {
		data[i] = 1.1 * r
		dr[i] = 0.05 * r
	}
	e := newExperiment(t, s, newProbe(t, QProbeConfig{Q: q, R: data, DR: dr}), ExperimentConfig{})
	res, err := e.Residuals()
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range res {
		if math.Abs(v-2) > 1e-9 {
			t.Errorf("residual[%d] = %g, want 2", i, v)
		}
	}
	got, err := e.NLLF()
	if err != nil {
		t.Fatal(err)
	}
	if want := 0.5 * 4 * float64(len(q)); math.Abs(got-want) > 1e-6 {
		t.Errorf("NLLF = %g, want %g", got, want)
	}
}

func TestNonFiniteSLDIsNumericalError(t *testing.T) {
	film := NewSLD("film", math.NaN(), 0)
	s, err := StackOf(NewSlab(NewSLD("Si", 2.07, 0), 0, 0), NewSlab(film, 50, 0), NewSLD("air", 0, 0))
	if err != nil {
		t.Fatal(err)
	}
	e := newExperiment(t, s, newProbe(t, QProbeConfig{Q: linspace(0.01, 0.1, 10)}), ExperimentConfig{})
	_, err = e.Reflectivity(true, true)
	if !errors.Is(err, ErrNumerical) || !errors.Is(err, abeles.ErrNonFinite) {
		t.Fatalf("err = %v, want ErrNumerical wrapping abeles.ErrNonFinite", err)
	}
	film.Rho.Set(4)
	e.Update()
	c, err := e.Reflectivity(true, true)
	if err != nil {
		t.Fatalf("after fixing the SLD: %v", err)
	}
	for i, r := range c.R {
		if math.IsNaN(r) {
			t.Errorf("R[%d] is NaN", i)
		}
	}
}

func TestFailedComputationIsNotCached(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	film := NewSLD("film", math.NaN(), 0)
	s, err := StackOf(NewSlab(NewSLD("Si", 2.07, 0), 0, 0), NewSlab(film, 50, 0), NewSLD("air", 0, 0))
	if err != nil {
		t.Fatal(err)
	}
	e := newExperiment(t, s, newProbe(t, QProbeConfig{Q: linspace(0.01, 0.1, 10)}), ExperimentConfig{Logger: logger})
	for i := 0; i < 2; i++ {
		if _, err := e.Reflectivity(true, true); !errors.Is(err, ErrNumerical) {
			t.Fatalf("call %d: err = %v, want ErrNumerical", i+1, err)
		}
	}
	out := buf.String()
	if got := strings.Count(out, "slot=calc_r"); got != 2 {
		t.Errorf("calc_r misses = %d, want 2:\n%s", got, out)
	}
	if got := strings.Count(out, "slot=reflectivity"); got != 2 {
		t.Errorf("reflectivity misses = %d, want 2:\n%s", got, out)
	}
	// Rendering itself succeeded, so it stays cached.
	if got := strings.Count(out, "slot=rendered"); got != 1 {
		t.Errorf("rendered misses = %d, want 1:\n%s", got, out)
	}
	if e.Generation() != 1 {
		t.Errorf("Generation() = %d, want 1", e.Generation())
	}
}

func TestSmoothProfileRejectsNonFiniteStep(t *testing.T) {
	s, _ := filmSample(t)
	e := newExperiment(t, s, newProbe(t, QProbeConfig{Q: []float64{0.05, 0.1}}), ExperimentConfig{})
	for _, dz := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if _, err := e.SmoothProfile(dz); !errors.Is(err, ErrConfiguration) {
			t.Errorf("SmoothProfile(%g): err = %v, want ErrConfiguration", dz, err)
		}
	}
	if len(e.smooth.vals) != 0 {
		t.Errorf("rejected steps left %d cache entries", len(e.smooth.vals))
	}
}

func TestNonFiniteBeamIsNumericalError(t *testing.T) {
	s, _ := filmSample(t)
	p := newProbe(t, QProbeConfig{Q: linspace(0.01, 0.1, 10)})
	p.Intensity.Set(math.Inf(1))
	e := newExperiment(t, s, p, ExperimentConfig{})
	if _, err := e.Reflectivity(true, true); !errors.Is(err, ErrNumerical) {
		t.Errorf("err = %v, want ErrNumerical", err)
	}
}

func TestCacheMissesAreLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s, _ := filmSample(t)
	e := newExperiment(t, s, newProbe(t, QProbeConfig{Q: []float64{0.05, 0.1}}), ExperimentConfig{Logger: logger})
	if _, err := e.Reflectivity(true, true); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, slot := range []string{"slot=reflectivity", "slot=calc_r", "slot=rendered"} {
		if !strings.Contains(out, slot) {
			t.Errorf("log missing %q:\n%s", slot, out)
		}
	}
	buf.Reset()
	if _, err := e.Reflectivity(true, true); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 0 {
		t.Errorf("cache hit logged:\n%s", buf.String())
	}
}

func TestExperimentParameters(t *testing.T) {
	s, film := filmSample(t)
	e := newExperiment(t, s, newProbe(t, QProbeConfig{Q: []float64{0.1}}), ExperimentConfig{})
	params := FlattenParameters(e.Parameters())
	// 3 slabs × (thickness, interface, rho, irho) + intensity + background
	if len(params) != 14 {
		t.Errorf("got %d parameters, want 14", len(params))
	}
	found := false
	for _, p := range params {
		if p == film.Thickness {
			found = true
		}
	}
	if !found {
		t.Error("film thickness missing from the parameter tree")
	}
}
