package music_gan

import (
	"math"
	"testing"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Test whether two values are equal up to a tolerance.
func almostEqual(a, b float64) bool {
	const tol = 1.0e-06
	if b == 0 {
		return math.Abs(a) < tol
	}
	return math.Abs(a-b)/math.Abs(b) < tol
}

// runGraph Evaluates whole graph once
func runGraph(t *testing.T, g *gorgonia.ExprGraph) {
	tm := gorgonia.NewTapeMachine(g)
	defer tm.Close()
	if err := tm.RunAll(); err != nil {
		t.Fatal(err)
	}
}

func nodeValues(t *testing.T, n *gorgonia.Node) []float64 {
	v, ok := n.Value().(tensor.Tensor)
	if !ok {
		if f, ok := n.Value().Data().(float64); ok {
			return []float64{f}
		}
		t.Fatalf("Node '%s' holds %T", n.Name(), n.Value())
	}
	data, ok := v.Data().([]float64)
	if !ok {
		if f, ok := v.Data().(float64); ok {
			return []float64{f}
		}
		t.Fatalf("Node '%s' holds %T", n.Name(), v.Data())
	}
	return data
}

func denseNode(g *gorgonia.ExprGraph, name string, data []float64, shape ...int) *gorgonia.Node {
	value := tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data))
	return gorgonia.NewTensor(g, gorgonia.Float64, len(shape), gorgonia.WithShape(shape...), gorgonia.WithName(name), gorgonia.WithValue(value))
}
