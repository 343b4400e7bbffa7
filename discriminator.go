package music_gan

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// DiscriminatorNet Abstraction for discriminator part of GAN. It's simple neural network actually.
//
// Output is either single sigmoid-activated "realness" score per sample
// or pair of logits [fake, real] per sample (see WithLogits).
//
type DiscriminatorNet struct {
	private *Network
	logits  bool
}

// Discriminator Constructor for DiscriminatorNet
func Discriminator(Layers ...*Layer) *DiscriminatorNet {
	return &DiscriminatorNet{private: &Network{
		Name:   "discriminator",
		Layers: Layers,
	}}
}

// WithLogits Marks discriminator's output as two-class logits [fake, real]
func (net *DiscriminatorNet) WithLogits() *DiscriminatorNet {
	net.logits = true
	return net
}

// Logits Returns true when output is two-class logits
func (net *DiscriminatorNet) Logits() bool {
	return net.logits
}

// Out Returns reference to output node
func (net *DiscriminatorNet) Out() *gorgonia.Node {
	return net.private.out
}

// Learnables Returns learnables nodes
func (net *DiscriminatorNet) Learnables() gorgonia.Nodes {
	return net.private.Learnables()
}

// Fwd Initializates feedforward for provided input
//
// input - Input node (real or generated tiles)
// batchSize - batch size
//
func (net *DiscriminatorNet) Fwd(input *gorgonia.Node, batchSize int) error {
	if err := net.private.Fwd(input, batchSize); err != nil {
		return errors.Wrap(err, "[Discriminator]")
	}
	return nil
}

// RealProbabilities Converts value of discriminator's output into probabilities of samples being real
func (net *DiscriminatorNet) RealProbabilities(out gorgonia.Value) ([]float64, error) {
	t, ok := out.(tensor.Tensor)
	if !ok {
		return nil, fmt.Errorf("Discriminator's output must be tensor, but got %T", out)
	}
	data, ok := t.Data().([]float64)
	if !ok {
		return nil, fmt.Errorf("Discriminator's output must hold float64 values, but got %T", t.Data())
	}
	if !net.logits {
		probs := make([]float64, len(data))
		copy(probs, data)
		return probs, nil
	}
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("Discriminator's logits must come in pairs, but got %d values", len(data))
	}
	probs := make([]float64, len(data)/2)
	for i := range probs {
		// softmax(l)[1] for two classes
		probs[i] = 1.0 / (1.0 + math.Exp(data[2*i]-data[2*i+1]))
	}
	return probs, nil
}
