package music_gan

import (
	"fmt"
	"sort"

	"gorgonia.org/gorgonia"
)

// ActivationFunc Just an alias to Gorgonia'a api_gen.go - https://github.com/gorgonia/gorgonia/blob/master/api_gen.go#L1
type ActivationFunc func(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error)

// Options Struct for holding options for certain activation functions.
type Options struct {
	Axis []int
}

func NoActivation(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error) { return a, nil }
func Abs(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error)          { return gorgonia.Abs(a) }
func Exp(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error)          { return gorgonia.Exp(a) }
func Log(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error)          { return gorgonia.Log(a) }
func Neg(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error)          { return gorgonia.Neg(a) }
func Square(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error)       { return gorgonia.Square(a) }
func Tanh(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error)         { return gorgonia.Tanh(a) }
func Sigmoid(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error)      { return gorgonia.Sigmoid(a) }
func Softplus(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error)     { return gorgonia.Softplus(a) }
func Rectify(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error)      { return gorgonia.Rectify(a) }
func Softmax(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error) {
	for i := range opts {
		// First i-th option with provided field 'Axis' would be considered for use.
		if len(opts[i].Axis) > 0 {
			return gorgonia.SoftMax(a, opts[i].Axis...)
		}
	}
	return gorgonia.SoftMax(a)
}

var activationsByName = map[string]ActivationFunc{
	"linear":   NoActivation,
	"abs":      Abs,
	"exp":      Exp,
	"log":      Log,
	"neg":      Neg,
	"square":   Square,
	"tanh":     Tanh,
	"sigmoid":  Sigmoid,
	"softplus": Softplus,
	"relu":     Rectify,
	"softmax":  Softmax,
}

// ActivationByName Returns activation function registered under provided name (e.g. "tanh", "relu")
func ActivationByName(name string) (ActivationFunc, error) {
	fn, ok := activationsByName[name]
	if !ok {
		return nil, fmt.Errorf("Activation '%s' is not handled. Available: %v", name, ActivationNames())
	}
	return fn, nil
}

// ActivationNames Returns sorted list of registered activation names
func ActivationNames() []string {
	names := make([]string, 0, len(activationsByName))
	for name := range activationsByName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
