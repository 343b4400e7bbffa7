package music_gan

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
)

// GAN Generator stacked with discriminator.
//
// generatorPart - reference to Generator
// discriminatorPart - reference to Discriminator
// modifiedDiscriminator - copy of Discriminator defined on Generator's graph. Its nodes share tensor values
// with Discriminator's learnables, so both of them always score samples under identical parameters.
// Copied learnables are never passed to solver of GAN.
//
type GAN struct {
	generatorPart     *GeneratorNet
	discriminatorPart *DiscriminatorNet

	modifiedDiscriminator *DiscriminatorNet
}

// NewGAN Creates copy of discriminator on the graph where generator is defined
//
// g - graph where definedGenerator lives
// definedDiscriminator must be already initialized (its weights must have values)
//
func NewGAN(g *gorgonia.ExprGraph, definedGenerator *GeneratorNet, definedDiscriminator *DiscriminatorNet) (*GAN, error) {
	definedGAN := GAN{
		generatorPart:     definedGenerator,
		discriminatorPart: definedDiscriminator,
		modifiedDiscriminator: &DiscriminatorNet{
			private: &Network{
				Name:   "gan_discriminator",
				Layers: make([]*Layer, len(definedDiscriminator.private.Layers)),
			},
			logits: definedDiscriminator.logits,
		},
	}
	for i, l := range definedDiscriminator.private.Layers {
		if l == nil {
			return nil, fmt.Errorf("Discriminator's Layer %d is nil", i)
		}
		if l.WeightNode == nil && !noWeightsAllowed(l.Type) {
			return nil, fmt.Errorf("Discriminator's Layer %d has nil weight node", i)
		}
		copied := &Layer{
			Activation:   l.Activation,
			Type:         l.Type,
			KernelHeight: l.KernelHeight,
			KernelWidth:  l.KernelWidth,
			Padding:      l.Padding,
			Stride:       l.Stride,
			Dilation:     l.Dilation,
			ReshapeDims:  l.ReshapeDims,
		}
		var err error
		if l.WeightNode != nil {
			copied.WeightNode, err = sharedCopy(g, l.WeightNode)
			if err != nil {
				return nil, errors.Wrapf(err, "Can't copy weights of Discriminator's Layer %d", i)
			}
		}
		if l.BiasNode != nil {
			copied.BiasNode, err = sharedCopy(g, l.BiasNode)
			if err != nil {
				return nil, errors.Wrapf(err, "Can't copy bias of Discriminator's Layer %d", i)
			}
		}
		definedGAN.modifiedDiscriminator.private.Layers[i] = copied
	}
	return &definedGAN, nil
}

// sharedCopy Defines node on graph g which is bound to the same value as provided node
func sharedCopy(g *gorgonia.ExprGraph, n *gorgonia.Node) (*gorgonia.Node, error) {
	if n.Value() == nil {
		return nil, fmt.Errorf("Node '%s' has no value", n.Name())
	}
	return gorgonia.NewTensor(g, n.Dtype(), n.Dims(), gorgonia.WithShape(n.Shape()...), gorgonia.WithName(n.Name()+"_gan"), gorgonia.WithValue(n.Value())), nil
}

// Out Returns reference to output node
func (net *GAN) Out() *gorgonia.Node {
	return net.modifiedDiscriminator.Out()
}

// GeneratorOut Returns reference to output node of generator part
func (net *GAN) GeneratorOut() *gorgonia.Node {
	return net.generatorPart.Out()
}

// Discriminator Returns reference to discriminator part (the one defined on its own graph)
func (net *GAN) Discriminator() *DiscriminatorNet {
	return net.discriminatorPart
}

// StackedDiscriminator Returns reference to the copy of discriminator which scores generator's output
func (net *GAN) StackedDiscriminator() *DiscriminatorNet {
	return net.modifiedDiscriminator
}

// GeneratorLearnables Returns learnables nodes of generator part
func (net *GAN) GeneratorLearnables() gorgonia.Nodes {
	return net.generatorPart.Learnables()
}

// Fwd Initializates feedforward for discriminator part of GAN
//
// batchSize - batch size
// Note: input node is not needed since input for Discriminator is just Generator's output
//
func (net *GAN) Fwd(batchSize int) error {
	if net.generatorPart.Out() == nil {
		return fmt.Errorf("Generator's feedforward must be initialized before GAN's one")
	}
	if err := net.modifiedDiscriminator.Fwd(net.generatorPart.Out(), batchSize); err != nil {
		return errors.Wrap(err, "[GAN]")
	}
	return nil
}
