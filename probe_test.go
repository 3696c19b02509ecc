package refl

import (
	"errors"
	"math"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func linspace(lo, hi float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = lo + (hi-lo)*float64(i)/float64(n-1)
	}
	return out
}

func TestNewQProbeRejects(t *testing.T) {
	q := []float64{0.01, 0.02, 0.03}
	tests := []struct {
		name string
		cfg  QProbeConfig
	}{
		{"no q", QProbeConfig{}},
		{"nan q", QProbeConfig{Q: []float64{0.01, math.NaN()}}},
		{"dq length", QProbeConfig{Q: q, DQ: []float64{0.001, 0.001}}},
		{"negative dq", QProbeConfig{Q: q, DQ: []float64{-0.001}}},
		{"r length", QProbeConfig{Q: q, R: []float64{1}}},
		{"zero dr", QProbeConfig{Q: q, R: []float64{1, 1, 1}, DR: []float64{0.1, 0, 0.1}}},
		{"inf r", QProbeConfig{Q: q, R: []float64{1, math.Inf(1), 1}}},
		{"oversample", QProbeConfig{Q: q, Oversample: 1}},
	}
	for _, tt := range tests {
		if _, err := NewQProbe(tt.cfg); !errors.Is(err, ErrConfiguration) {
			t.Errorf("%s: err = %v, want ErrConfiguration", tt.name, err)
		}
	}
}

func TestQProbeDefaults(t *testing.T) {
	p, err := NewQProbe(QProbeConfig{Q: []float64{0.01, 0.02}})
	if err != nil {
		t.Fatal(err)
	}
	if p.R() != nil || p.DR() != nil {
		t.Error("probe without data reports R or dR")
	}
	if p.Intensity.Value() != 1 {
		t.Errorf("intensity = %g, want 1", p.Intensity.Value())
	}
	if p.Background.Value() != 0 {
		t.Errorf("background = %g, want 0", p.Background.Value())
	}
	if diff := cmp.Diff([]float64{0, 0}, p.DQ()); diff != "" {
		t.Errorf("DQ mismatch (-want +got):\n%s", diff)
	}
	if got := FlattenParameters(p.Parameters()); len(got) != 2 {
		t.Errorf("probe has %d parameters, want 2", len(got))
	}
}

func TestQProbeDQBroadcast(t *testing.T) {
	p, err := NewQProbe(QProbeConfig{Q: []float64{0.01, 0.02, 0.03}, DQ: []float64{0.001}})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float64{0.001, 0.001, 0.001}, p.DQ()); diff != "" {
		t.Errorf("DQ mismatch (-want +got):\n%s", diff)
	}
}

func TestCalcGridWithoutResolutionIsQ(t *testing.T) {
	q := linspace(0.01, 0.2, 20)
	p, err := NewQProbe(QProbeConfig{Q: q})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(q, p.CalcQ()); diff != "" {
		t.Errorf("CalcQ mismatch (-want +got):\n%s", diff)
	}
}

func TestCalcGridOversampled(t *testing.T) {
	q := linspace(0.01, 0.2, 20)
	p, err := NewQProbe(QProbeConfig{Q: q, DQ: []float64{0.002}, Oversample: 5})
	if err != nil {
		t.Fatal(err)
	}
	grid := p.CalcQ()
	if len(grid) <= len(q) || len(grid) > len(q)*6 {
		t.Errorf("len(CalcQ) = %d for %d points", len(grid), len(q))
	}
	for i := 1; i < len(grid); i++ {
		if !(grid[i] > grid[i-1]) {
			t.Fatalf("CalcQ not strictly increasing at %d: %g, %g", i, grid[i-1], grid[i])
		}
	}
	for _, v := range q {
		if k := sort.SearchFloat64s(grid, v); k == len(grid) || grid[k] != v {
			t.Errorf("CalcQ is missing Q = %g", v)
		}
	}
	if grid[0] < 0 {
		t.Errorf("CalcQ crosses zero: %g", grid[0])
	}
}

func TestResolutionConstantCurve(t *testing.T) {
	p, err := NewQProbe(QProbeConfig{Q: linspace(0.01, 0.2, 30), DQ: []float64{0.003}})
	if err != nil {
		t.Fatal(err)
	}
	calc := make([]float64, len(p.CalcQ()))
	for i := range calc {
		calc[i] = 0.25
	}
	got := p.Resolution(calc)
	want := make([]float64, p.Len())
	for i := range want {
		want[i] = 0.25
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("Resolution mismatch (-want +got):\n%s", diff)
	}
}

func TestResolutionLinearCurveSymmetricWindow(t *testing.T) {
	p, err := NewQProbe(QProbeConfig{Q: []float64{0.1}, DQ: []float64{0.01}})
	if err != nil {
		t.Fatal(err)
	}
	grid := p.CalcQ()
	calc := make([]float64, len(grid))
	for i, x := range grid {
		calc[i] = 3 - 5*x
	}
	got := p.Resolution(calc)
	if math.Abs(got[0]-(3-5*0.1)) > 1e-9 {
		t.Errorf("Resolution = %.12g, want %.12g", got[0], 3-5*0.1)
	}
}

func TestResolutionSmoothsPeak(t *testing.T) {
	p, err := NewQProbe(QProbeConfig{Q: []float64{0.1}, DQ: []float64{0.01}})
	if err != nil {
		t.Fatal(err)
	}
	grid := p.CalcQ()
	calc := make([]float64, len(grid))
	for i, x := range grid {
		if x == 0.1 {
			calc[i] = 1
		}
	}
	got := p.Resolution(calc)
	if !(got[0] > 0 && got[0] < 1) {
		t.Errorf("Resolution of a spike = %g, want in (0, 1)", got[0])
	}
}

func TestResolutionWithoutDQInterpolates(t *testing.T) {
	q := []float64{0.05, 0.1, 0.15}
	p, err := NewQProbe(QProbeConfig{Q: q})
	if err != nil {
		t.Fatal(err)
	}
	calc := []float64{1, 2, 3}
	if diff := cmp.Diff(calc, p.Resolution(calc)); diff != "" {
		t.Errorf("Resolution mismatch (-want +got):\n%s", diff)
	}
}

func TestResolutionSinglePoint(t *testing.T) {
	p, err := NewQProbe(QProbeConfig{Q: []float64{0.1}})
	if err != nil {
		t.Fatal(err)
	}
	if got := p.Resolution([]float64{0.7}); got[0] != 0.7 {
		t.Errorf("Resolution = %g, want 0.7", got[0])
	}
}

func TestResolutionPanicsOnWrongLength(t *testing.T) {
	p, err := NewQProbe(QProbeConfig{Q: []float64{0.1, 0.2}})
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if recover() == nil {
			t.Error("Resolution did not panic on a short curve")
		}
	}()
	p.Resolution([]float64{1})
}

func TestBeamParameters(t *testing.T) {
	p, err := NewQProbe(QProbeConfig{Q: []float64{0.1, 0.2}, Intensity: 2, Background: 0.1})
	if err != nil {
		t.Fatal(err)
	}
	got := p.BeamParameters([]float64{0.5, 0.25})
	want := []float64{1.1, 0.6}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-15)); diff != "" {
		t.Errorf("BeamParameters mismatch (-want +got):\n%s", diff)
	}
}
