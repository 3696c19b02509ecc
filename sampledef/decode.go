package sampledef

import (
	"fmt"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/sky-flux/refl"
	"github.com/sky-flux/refl/abeles"
)

func (l *loader) material(b *hcl.Block) hcl.Diagnostics {
	name := b.Labels[0]
	if _, dup := l.materials[name]; dup {
		return hcl.Diagnostics{errorAt(b.LabelRanges[0], "Duplicate material",
			fmt.Sprintf("Material %q is already defined.", name))}
	}
	var body materialBody
	diags := gohcl.DecodeBody(b.Body, l.ctx, &body)
	if diags.HasErrors() {
		return diags
	}
	m := refl.NewSLD(name, body.Rho, body.IRho)
	diags = append(diags, l.fit(m.Rho, body.RhoRange, b.DefRange)...)
	diags = append(diags, l.fit(m.IRho, body.IRhoRange, b.DefRange)...)
	l.materials[name] = m
	return diags
}

func (l *loader) probe(b *hcl.Block) (*refl.QProbe, hcl.Diagnostics) {
	var body probeBody
	diags := gohcl.DecodeBody(b.Body, l.ctx, &body)
	if diags.HasErrors() {
		return nil, diags
	}
	dq, d := l.numbers(body.DQ)
	diags = append(diags, d...)
	if diags.HasErrors() {
		return nil, diags
	}

	cfg := refl.QProbeConfig{
		Q:          body.Q,
		DQ:         dq,
		Background: body.Background,
		Oversample: body.Oversample,
	}
	if body.Intensity != nil {
		if !(*body.Intensity > 0) {
			return nil, append(diags, errorAt(b.DefRange, "Invalid intensity",
				fmt.Sprintf("intensity must be positive, got %g.", *body.Intensity)))
		}
		cfg.Intensity = *body.Intensity
	}
	if body.Data != nil {
		if cfg.Q != nil || cfg.DQ != nil {
			return nil, append(diags, errorAt(b.DefRange, "Conflicting probe data",
				"A probe reads q and dq from its data file; do not also set them."))
		}
		path := *body.Data
		if !filepath.IsAbs(path) {
			path = filepath.Join(l.dir, path)
		}
		data, err := refl.ReadReflectivityFile(path)
		if err != nil {
			return nil, append(diags, errorAt(b.DefRange, "Unreadable probe data", err.Error()))
		}
		cfg.Q, cfg.DQ, cfg.R, cfg.DR = data.Q, data.DQ, data.R, data.DR
	}

	p, err := refl.NewQProbe(cfg)
	if err != nil {
		return nil, append(diags, errorAt(b.DefRange, "Invalid probe", err.Error()))
	}
	diags = append(diags, l.fit(p.Intensity, body.IntensityRange, b.DefRange)...)
	diags = append(diags, l.fit(p.Background, body.BackgroundRange, b.DefRange)...)
	return p, diags
}

// numbers evaluates a number or a list of numbers. An absent attribute
// yields nil.
func (l *loader) numbers(expr hcl.Expression) ([]float64, hcl.Diagnostics) {
	if expr == nil {
		return nil, nil
	}
	v, diags := expr.Value(l.ctx)
	if diags.HasErrors() || v.IsNull() {
		return nil, diags
	}
	if v.Type() == cty.Number {
		var x float64
		if err := gocty.FromCtyValue(v, &x); err != nil {
			return nil, append(diags, errorAt(expr.Range(), "Invalid number", err.Error()))
		}
		return []float64{x}, diags
	}
	var xs []float64
	if err := gocty.FromCtyValue(v, &xs); err != nil {
		return nil, append(diags, errorAt(expr.Range(), "Invalid number list",
			"Expected a number or a list of numbers: "+err.Error()))
	}
	return xs, diags
}

func (l *loader) sample(b *hcl.Block) (*refl.Stack, hcl.Diagnostics) {
	content, diags := b.Body.Content(sampleSchema)
	if diags.HasErrors() {
		return nil, diags
	}
	layers, d := l.layers(content.Blocks)
	diags = append(diags, d...)
	if diags.HasErrors() {
		return nil, diags
	}
	s, err := refl.StackOf(layers...)
	if err != nil {
		return nil, append(diags, errorAt(b.DefRange, "Invalid sample", err.Error()))
	}
	if s.Len() == 0 {
		return nil, append(diags, errorAt(b.DefRange, "Empty sample",
			"A sample needs at least a substrate and an incident medium."))
	}
	return s, diags
}

// layers converts slab and repeat blocks, keeping source order.
func (l *loader) layers(blocks hcl.Blocks) ([]any, hcl.Diagnostics) {
	var out []any
	var diags hcl.Diagnostics
	for _, b := range blocks {
		var layer refl.Layer
		var d hcl.Diagnostics
		switch b.Type {
		case "slab":
			layer, d = l.slab(b)
		case "repeat":
			layer, d = l.repeat(b)
		}
		diags = append(diags, d...)
		if layer != nil {
			out = append(out, layer)
		}
	}
	return out, diags
}

func (l *loader) slab(b *hcl.Block) (refl.Layer, hcl.Diagnostics) {
	name := b.Labels[0]
	m, ok := l.materials[name]
	if !ok {
		return nil, hcl.Diagnostics{errorAt(b.LabelRanges[0], "Unknown material",
			fmt.Sprintf("No material %q is defined.", name))}
	}
	var body slabBody
	diags := gohcl.DecodeBody(b.Body, l.ctx, &body)
	if diags.HasErrors() {
		return nil, diags
	}
	if body.Thickness < 0 || body.Interface < 0 {
		return nil, append(diags, errorAt(b.DefRange, "Invalid slab",
			"Thickness and interface must not be negative."))
	}
	s := refl.NewSlab(m, body.Thickness, body.Interface)
	diags = append(diags, l.fit(s.Thickness, body.ThicknessRange, b.DefRange)...)
	diags = append(diags, l.fit(s.Interface, body.InterfaceRange, b.DefRange)...)
	return s, diags
}

func (l *loader) repeat(b *hcl.Block) (refl.Layer, hcl.Diagnostics) {
	content, diags := b.Body.Content(repeatSchema)
	if diags.HasErrors() {
		return nil, diags
	}
	var count int
	diags = append(diags, gohcl.DecodeExpression(content.Attributes["count"].Expr, l.ctx, &count)...)
	layers, d := l.layers(content.Blocks)
	diags = append(diags, d...)
	if diags.HasErrors() {
		return nil, diags
	}
	stack, err := refl.StackOf(layers...)
	if err != nil {
		return nil, append(diags, errorAt(b.DefRange, "Invalid repeat", err.Error()))
	}
	r, err := refl.NewRepeat(stack, count)
	if err != nil {
		return nil, append(diags, errorAt(content.Attributes["count"].Range, "Invalid repeat", err.Error()))
	}
	countRange, d := l.rangeAttr(content.Attributes["count_range"])
	diags = append(diags, d...)
	diags = append(diags, l.fit(r.Count, countRange, b.DefRange)...)

	if attr, ok := content.Attributes["interface"]; ok {
		var sigma float64
		if d := gohcl.DecodeExpression(attr.Expr, l.ctx, &sigma); d.HasErrors() {
			return nil, append(diags, d...)
		}
		capped, err := refl.WithInterface(r, sigma)
		if err != nil {
			return nil, append(diags, errorAt(attr.Range, "Invalid repeat interface", err.Error()))
		}
		r = capped.(*refl.Repeat)
		ifaceRange, d := l.rangeAttr(content.Attributes["interface_range"])
		diags = append(diags, d...)
		diags = append(diags, l.fit(r.Interface, ifaceRange, b.DefRange)...)
	} else if attr, ok := content.Attributes["interface_range"]; ok {
		diags = append(diags, errorAt(attr.Range, "Range without value",
			"interface_range needs an interface attribute on the same repeat."))
	}
	return r, diags
}

func (l *loader) rangeAttr(attr *hcl.Attribute) ([]float64, hcl.Diagnostics) {
	if attr == nil {
		return nil, nil
	}
	var rng []float64
	diags := gohcl.DecodeExpression(attr.Expr, l.ctx, &rng)
	return rng, diags
}

func (l *loader) experiment(b *hcl.Block) (refl.ExperimentConfig, hcl.Diagnostics) {
	var cfg refl.ExperimentConfig
	if b == nil {
		return cfg, nil
	}
	var body experimentBody
	diags := gohcl.DecodeBody(b.Body, l.ctx, &body)
	if diags.HasErrors() {
		return cfg, diags
	}
	if body.DZ < 0 {
		return cfg, append(diags, errorAt(b.DefRange, "Invalid experiment",
			"dz must not be negative."))
	}
	cfg.DZ = body.DZ
	if lim := body.RoughnessLimit; lim != nil {
		// An explicit zero or negative limit disables the cap.
		cfg.RoughnessLimit = *lim
		if *lim <= 0 {
			cfg.RoughnessLimit = -1
		}
	}
	if body.Backend != nil {
		if err := cfg.Backend.UnmarshalText([]byte(*body.Backend)); err != nil {
			return cfg, append(diags, errorAt(b.DefRange, "Unknown backend",
				fmt.Sprintf("%v; use %q or %q.", err, abeles.Vectorized, abeles.Pointwise)))
		}
	}
	return cfg, diags
}
