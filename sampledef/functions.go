package sampledef

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/gocty"
	"gonum.org/v1/gonum/floats"
)

// linspaceFunc returns n evenly spaced values from start to stop inclusive.
var linspaceFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "start", Type: cty.Number},
		{Name: "stop", Type: cty.Number},
		{Name: "n", Type: cty.Number},
	},
	Type: function.StaticReturnType(cty.List(cty.Number)),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		var start, stop float64
		var n int
		if err := gocty.FromCtyValue(args[0], &start); err != nil {
			return cty.NilVal, function.NewArgError(0, err)
		}
		if err := gocty.FromCtyValue(args[1], &stop); err != nil {
			return cty.NilVal, function.NewArgError(1, err)
		}
		if err := gocty.FromCtyValue(args[2], &n); err != nil {
			return cty.NilVal, function.NewArgError(2, err)
		}
		if n < 2 {
			return cty.NilVal, function.NewArgError(2, fmt.Errorf("need at least 2 points, got %d", n))
		}
		vals := make([]cty.Value, n)
		for i, v := range floats.Span(make([]float64, n), start, stop) {
			vals[i] = cty.NumberFloatVal(v)
		}
		return cty.ListVal(vals), nil
	},
})

func evalContext() *hcl.EvalContext {
	return &hcl.EvalContext{
		Functions: map[string]function.Function{
			"linspace": linspaceFunc,
		},
	}
}
