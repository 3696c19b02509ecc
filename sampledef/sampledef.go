package sampledef

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/sky-flux/refl"
	"github.com/sky-flux/refl/internal/ctxlog"
)

// ErrDefinition is returned for definitions that do not describe a model.
// The wrapped error carries the HCL diagnostics.
var ErrDefinition = errors.New("sampledef: invalid definition")

// Definition is a loaded model.
type Definition struct {
	Experiment *refl.Experiment
	Sample     *refl.Stack
	Probe      *refl.QProbe
	// Fitted lists the parameters given a _range, in source order.
	Fitted    []*refl.Parameter
	Materials map[string]*refl.SLD
}

// Load reads and parses the definition file at path.
func Load(ctx context.Context, path string) (*Definition, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sampledef: %w", err)
	}
	return Parse(ctx, src, path)
}

// Parse parses a definition. filename is used in diagnostics and to
// resolve probe data files. The experiment logs to the logger in ctx.
func Parse(ctx context.Context, src []byte, filename string) (*Definition, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Parsing sample definition.", "file", filename)

	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: failed to parse %s: %w", ErrDefinition, filename, diags)
	}
	l := &loader{
		dir:       filepath.Dir(filename),
		ctx:       evalContext(),
		materials: make(map[string]*refl.SLD),
		seen:      make(map[uint64]bool),
	}
	def, diags := l.load(file.Body, logger)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: failed to decode %s: %w", ErrDefinition, filename, diags)
	}

	logger.Debug("Loaded sample definition.", "file", filename,
		"layers", def.Sample.Len(), "fitted", len(def.Fitted))
	return def, nil
}

type loader struct {
	dir       string
	ctx       *hcl.EvalContext
	materials map[string]*refl.SLD
	fitted    []*refl.Parameter
	seen      map[uint64]bool
}

func (l *loader) load(body hcl.Body, logger *slog.Logger) (*Definition, hcl.Diagnostics) {
	content, diags := body.Content(fileSchema)
	if diags.HasErrors() {
		return nil, diags
	}

	for _, b := range content.Blocks.OfType("material") {
		diags = append(diags, l.material(b)...)
	}
	probeBlock, d := uniqueBlock(content.Blocks, "probe")
	diags = append(diags, d...)
	sampleBlock, d := uniqueBlock(content.Blocks, "sample")
	diags = append(diags, d...)
	expBlock, d := uniqueBlock(content.Blocks, "experiment")
	diags = append(diags, d...)
	if probeBlock == nil {
		diags = append(diags, errorAt(body.MissingItemRange(), "Missing probe block",
			"A definition needs one \"probe\" block."))
	}
	if sampleBlock == nil {
		diags = append(diags, errorAt(body.MissingItemRange(), "Missing sample block",
			"A definition needs one \"sample\" block."))
	}
	if diags.HasErrors() {
		return nil, diags
	}

	probe, d := l.probe(probeBlock)
	diags = append(diags, d...)
	sample, d := l.sample(sampleBlock)
	diags = append(diags, d...)
	cfg, d := l.experiment(expBlock)
	diags = append(diags, d...)
	if diags.HasErrors() {
		return nil, diags
	}

	cfg.Logger = logger
	e, err := refl.NewExperiment(sample, probe, cfg)
	if err != nil {
		rng := sampleBlock.DefRange
		if expBlock != nil {
			rng = expBlock.DefRange
		}
		return nil, append(diags, errorAt(rng, "Invalid experiment", err.Error()))
	}
	return &Definition{
		Experiment: e,
		Sample:     sample,
		Probe:      probe,
		Fitted:     l.fitted,
		Materials:  l.materials,
	}, diags
}

// fit bounds p to rng when a range was given and records it as fitted.
func (l *loader) fit(p *refl.Parameter, rng []float64, subject hcl.Range) hcl.Diagnostics {
	if rng == nil {
		return nil
	}
	if len(rng) != 2 || !(rng[0] <= rng[1]) {
		return hcl.Diagnostics{errorAt(subject, "Invalid range",
			fmt.Sprintf("The range for %q must be [lo, hi] with lo <= hi.", p.Name()))}
	}
	p.Range(rng[0], rng[1])
	if !l.seen[p.ID()] {
		l.seen[p.ID()] = true
		l.fitted = append(l.fitted, p)
	}
	return nil
}
