package sampledef

import (
	"github.com/hashicorp/hcl/v2"
)

var fileSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "material", LabelNames: []string{"name"}},
		{Type: "probe"},
		{Type: "sample"},
		{Type: "experiment"},
	},
}

// layerBlocks are the blocks allowed inside sample and repeat.
var layerBlocks = []hcl.BlockHeaderSchema{
	{Type: "slab", LabelNames: []string{"material"}},
	{Type: "repeat"},
}

var sampleSchema = &hcl.BodySchema{Blocks: layerBlocks}

var repeatSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "count", Required: true},
		{Name: "count_range"},
		{Name: "interface"},
		{Name: "interface_range"},
	},
	Blocks: layerBlocks,
}

type materialBody struct {
	Rho       float64   `hcl:"rho"`
	IRho      float64   `hcl:"irho,optional"`
	RhoRange  []float64 `hcl:"rho_range,optional"`
	IRhoRange []float64 `hcl:"irho_range,optional"`
}

type slabBody struct {
	Thickness      float64   `hcl:"thickness,optional"`
	Interface      float64   `hcl:"interface,optional"`
	ThicknessRange []float64 `hcl:"thickness_range,optional"`
	InterfaceRange []float64 `hcl:"interface_range,optional"`
}

type probeBody struct {
	Q               []float64      `hcl:"q,optional"`
	DQ              hcl.Expression `hcl:"dq,optional"` // number or list
	Data            *string        `hcl:"data,optional"`
	Intensity       *float64       `hcl:"intensity,optional"`
	Background      float64        `hcl:"background,optional"`
	Oversample      int            `hcl:"oversample,optional"`
	IntensityRange  []float64      `hcl:"intensity_range,optional"`
	BackgroundRange []float64      `hcl:"background_range,optional"`
}

type experimentBody struct {
	RoughnessLimit *float64 `hcl:"roughness_limit,optional"`
	DZ             float64  `hcl:"dz,optional"`
	Backend        *string  `hcl:"backend,optional"`
}

// uniqueBlock returns the single block of type name, or nil without one.
func uniqueBlock(blocks hcl.Blocks, name string) (*hcl.Block, hcl.Diagnostics) {
	var found *hcl.Block
	var diags hcl.Diagnostics
	for _, b := range blocks.OfType(name) {
		if found != nil {
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Duplicate \"" + name + "\" block",
				Detail:   "Only one \"" + name + "\" block is allowed.",
				Subject:  &b.DefRange,
			})
			continue
		}
		found = b
	}
	return found, diags
}

func errorAt(rng hcl.Range, summary, detail string) *hcl.Diagnostic {
	return &hcl.Diagnostic{
		Severity: hcl.DiagError,
		Summary:  summary,
		Detail:   detail,
		Subject:  rng.Ptr(),
	}
}
