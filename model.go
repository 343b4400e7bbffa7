package music_gan

import (
	"fmt"
	"math/rand"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Variant Kind of GAN architecture
type Variant uint16

const (
	// VariantGAN Fully-connected generator and discriminator
	VariantGAN = Variant(iota)
	// VariantDCGAN Dense projection + transposed convolutions in generator, convolutions + pooling in discriminator
	VariantDCGAN
)

func (v Variant) String() string {
	switch v {
	case VariantGAN:
		return "GAN"
	case VariantDCGAN:
		return "DCGAN"
	default:
		return fmt.Sprintf("Variant(%d)", uint16(v))
	}
}

// ParseVariant Parses "gan" or "dcgan" (case sensitive)
func ParseVariant(s string) (Variant, error) {
	switch s {
	case "gan":
		return VariantGAN, nil
	case "dcgan":
		return VariantDCGAN, nil
	default:
		return 0, fmt.Errorf("Unknown variant '%s'. Use 'gan' or 'dcgan'", s)
	}
}

// ModelConfig Architecture of generator and discriminator
type ModelConfig struct {
	Variant Variant
	// Tile geometry
	Rows    int
	Columns int
	// Size of noise vector
	NoiseDim int

	// [GAN] generator's hidden units, activation of that hidden layer and discriminator's hidden units
	GeneratorHidden     int
	HiddenActivation    string
	DiscriminatorHidden int

	// [DCGAN] depth of generator's dense projection, filters of first upsampling stage,
	// filters of two discriminator's convolutions and kernel size of them. DiscriminatorHidden is units of dense layer
	ProjectionDepth      int
	UpsampleFilters      int
	DiscriminatorFilters [2]int
	DiscriminatorKernel  int
}

// DefaultGANConfig Fully-connected GAN: noise(100) => 256 => rows*columns and rows*columns => 256 => 1
func DefaultGANConfig(rows, columns int) ModelConfig {
	return ModelConfig{
		Variant:             VariantGAN,
		Rows:                rows,
		Columns:             columns,
		NoiseDim:            100,
		GeneratorHidden:     256,
		HiddenActivation:    "tanh",
		DiscriminatorHidden: 256,
	}
}

// DefaultDCGANConfig Convolutional GAN:
// noise(200) => dense(h0*w0*128) => reshape(128,h0,w0) => deconv(64,4x4,/2) => deconv(1,kh x kw,/2)
// and conv(64,5x5) => avgpool(2) => conv(128,5x5) => avgpool(2) => dense(1024) => dense(2)
func DefaultDCGANConfig(rows, columns int) ModelConfig {
	return ModelConfig{
		Variant:              VariantDCGAN,
		Rows:                 rows,
		Columns:              columns,
		NoiseDim:             200,
		DiscriminatorHidden:  1024,
		ProjectionDepth:      128,
		UpsampleFilters:      64,
		DiscriminatorFilters: [2]int{64, 128},
		DiscriminatorKernel:  5,
	}
}

// TileSize Returns number of values in single tile
func (conf ModelConfig) TileSize() int {
	return conf.Rows * conf.Columns
}

// TileShape Returns shape of batch of tiles as networks consume it:
// [batch, rows*columns] for GAN and [batch, 1, rows, columns] for DCGAN
func (conf ModelConfig) TileShape(batchSize int) tensor.Shape {
	if conf.Variant == VariantDCGAN {
		return tensor.Shape{batchSize, 1, conf.Rows, conf.Columns}
	}
	return tensor.Shape{batchSize, conf.TileSize()}
}

// ProjectionSize Returns spatial size [h0, w0] of generator's projection: floor(n/4)-1 for both dimensions
func (conf ModelConfig) ProjectionSize() (int, int) {
	return conf.Rows/4 - 1, conf.Columns/4 - 1
}

// OutputKernel Returns kernel of last upsampling stage chosen to hit exact tile geometry:
// rows = (2*(2*h0+2)-2) + k => k = rows%4 + 2 (65x64 tile gives 3x2 kernel)
func (conf ModelConfig) OutputKernel() (int, int) {
	return conf.Rows%4 + 2, conf.Columns%4 + 2
}

// discriminatorFeatureSize Returns spatial size of discriminator's features after both conv+pool stages
func (conf ModelConfig) discriminatorFeatureSize() (int, int) {
	h, w := conf.Rows, conf.Columns
	for i := 0; i < 2; i++ {
		h = ConvOutputSize(ConvOutputSize(h, conf.DiscriminatorKernel, 0, 1, 1), 2, 0, 2, 1)
		w = ConvOutputSize(ConvOutputSize(w, conf.DiscriminatorKernel, 0, 1, 1), 2, 0, 2, 1)
	}
	return h, w
}

// Validate Checks that configuration describes buildable networks
func (conf ModelConfig) Validate() error {
	if conf.Rows < 1 || conf.Columns < 1 {
		return fmt.Errorf("Tile geometry must be positive, but got %dx%d", conf.Rows, conf.Columns)
	}
	if conf.NoiseDim < 1 {
		return fmt.Errorf("Noise dimension must be positive, but got %d", conf.NoiseDim)
	}
	if conf.DiscriminatorHidden < 1 {
		return fmt.Errorf("Discriminator's hidden units must be positive, but got %d", conf.DiscriminatorHidden)
	}
	switch conf.Variant {
	case VariantGAN:
		if conf.GeneratorHidden < 1 {
			return fmt.Errorf("Generator's hidden units must be positive, but got %d", conf.GeneratorHidden)
		}
		if _, err := ActivationByName(conf.HiddenActivation); err != nil {
			return err
		}
	case VariantDCGAN:
		if h0, w0 := conf.ProjectionSize(); h0 < 1 || w0 < 1 {
			return fmt.Errorf("DCGAN needs tiles of 8x8 atleast, but got %dx%d", conf.Rows, conf.Columns)
		}
		if conf.ProjectionDepth < 1 || conf.UpsampleFilters < 1 || conf.DiscriminatorFilters[0] < 1 || conf.DiscriminatorFilters[1] < 1 {
			return fmt.Errorf("Number of filters must be positive")
		}
		if conf.DiscriminatorKernel < 1 {
			return fmt.Errorf("Discriminator's kernel must be positive, but got %d", conf.DiscriminatorKernel)
		}
		if h, w := conf.discriminatorFeatureSize(); h < 1 || w < 1 {
			return fmt.Errorf("Tile %dx%d is too small for discriminator's convolutions", conf.Rows, conf.Columns)
		}
	default:
		return fmt.Errorf("Variant '%s' is not handled", conf.Variant)
	}
	return nil
}

// DefineGenerator Defines generator's learnables on graph g
//
// batchSize - needed to reshape dense projection into feature maps [DCGAN]
// rnd - source of randomness for weights initialization
//
func DefineGenerator(g *gorgonia.ExprGraph, conf ModelConfig, batchSize int, rnd *rand.Rand) (*GeneratorNet, error) {
	if err := conf.Validate(); err != nil {
		return nil, errors.Wrap(err, "Bad model configuration")
	}
	switch conf.Variant {
	case VariantGAN:
		hiddenActivation, _ := ActivationByName(conf.HiddenActivation)
		gen_w0 := gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(conf.GeneratorHidden, conf.NoiseDim), gorgonia.WithName("generator_w0"), gorgonia.WithInit(GlorotInit(rnd)))
		gen_b0 := gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(1, conf.GeneratorHidden), gorgonia.WithName("generator_b0"), gorgonia.WithInit(gorgonia.Zeroes()))
		gen_w1 := gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(conf.TileSize(), conf.GeneratorHidden), gorgonia.WithName("generator_w1"), gorgonia.WithInit(GlorotInit(rnd)))
		gen_b1 := gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(1, conf.TileSize()), gorgonia.WithName("generator_b1"), gorgonia.WithInit(gorgonia.Zeroes()))
		return Generator(
			[]*Layer{
				{
					WeightNode: gen_w0,
					BiasNode:   gen_b0,
					Type:       LayerLinear,
					Activation: hiddenActivation,
				},
				{
					WeightNode: gen_w1,
					BiasNode:   gen_b1,
					Type:       LayerLinear,
					Activation: Sigmoid,
				},
			}...,
		), nil
	case VariantDCGAN:
		/*
			noise => linear(h0*w0*depth) => reshape(depth,h0,w0) => deconv(filters,4x4,/2) => (2*h0+2, 2*w0+2)
			      => deconv(1,kh x kw,/2) => (rows, columns)
		*/
		h0, w0 := conf.ProjectionSize()
		kh, kw := conf.OutputKernel()
		projection := h0 * w0 * conf.ProjectionDepth
		gen_w0 := gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(projection, conf.NoiseDim), gorgonia.WithName("generator_w0"), gorgonia.WithInit(GlorotUniformInit(rnd)))
		gen_b0 := gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(1, projection), gorgonia.WithName("generator_b0"), gorgonia.WithInit(gorgonia.Zeroes()))
		gen_w1 := gorgonia.NewTensor(g, gorgonia.Float64, 4, gorgonia.WithShape(conf.UpsampleFilters, conf.ProjectionDepth, 4, 4), gorgonia.WithName("generator_w1"), gorgonia.WithInit(GlorotUniformInit(rnd)))
		gen_b1 := gorgonia.NewTensor(g, gorgonia.Float64, 4, gorgonia.WithShape(1, conf.UpsampleFilters, 1, 1), gorgonia.WithName("generator_b1"), gorgonia.WithInit(gorgonia.Zeroes()))
		gen_w2 := gorgonia.NewTensor(g, gorgonia.Float64, 4, gorgonia.WithShape(1, conf.UpsampleFilters, kh, kw), gorgonia.WithName("generator_w2"), gorgonia.WithInit(GlorotUniformInit(rnd)))
		gen_b2 := gorgonia.NewTensor(g, gorgonia.Float64, 4, gorgonia.WithShape(1, 1, 1, 1), gorgonia.WithName("generator_b2"), gorgonia.WithInit(gorgonia.Zeroes()))
		return Generator(
			[]*Layer{
				{
					WeightNode: gen_w0,
					BiasNode:   gen_b0,
					Type:       LayerLinear,
					Activation: Tanh,
				},
				{
					Type:        LayerReshape,
					ReshapeDims: []int{batchSize, conf.ProjectionDepth, h0, w0},
				},
				{
					WeightNode:   gen_w1,
					BiasNode:     gen_b1,
					Type:         LayerTransposedConvolutional,
					KernelHeight: 4,
					KernelWidth:  4,
					Stride:       []int{2, 2},
				},
				{
					WeightNode:   gen_w2,
					BiasNode:     gen_b2,
					Type:         LayerTransposedConvolutional,
					Activation:   Sigmoid,
					KernelHeight: kh,
					KernelWidth:  kw,
					Stride:       []int{2, 2},
				},
			}...,
		), nil
	default:
		return nil, fmt.Errorf("Variant '%s' is not handled", conf.Variant)
	}
}

// DefineDiscriminator Defines discriminator's learnables on graph g
//
// rnd - source of randomness for weights initialization
//
func DefineDiscriminator(g *gorgonia.ExprGraph, conf ModelConfig, rnd *rand.Rand) (*DiscriminatorNet, error) {
	if err := conf.Validate(); err != nil {
		return nil, errors.Wrap(err, "Bad model configuration")
	}
	switch conf.Variant {
	case VariantGAN:
		dis_w0 := gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(conf.DiscriminatorHidden, conf.TileSize()), gorgonia.WithName("discriminator_w0"), gorgonia.WithInit(GlorotInit(rnd)))
		dis_b0 := gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(1, conf.DiscriminatorHidden), gorgonia.WithName("discriminator_b0"), gorgonia.WithInit(gorgonia.Zeroes()))
		dis_w1 := gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(1, conf.DiscriminatorHidden), gorgonia.WithName("discriminator_w1"), gorgonia.WithInit(GlorotInit(rnd)))
		dis_b1 := gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(1, 1), gorgonia.WithName("discriminator_b1"), gorgonia.WithInit(gorgonia.Zeroes()))
		return Discriminator(
			[]*Layer{
				{
					WeightNode: dis_w0,
					BiasNode:   dis_b0,
					Type:       LayerLinear,
					Activation: Rectify,
				},
				{
					WeightNode: dis_w1,
					BiasNode:   dis_b1,
					Type:       LayerLinear,
					Activation: Sigmoid,
				},
			}...,
		), nil
	case VariantDCGAN:
		/*
			input(rows,columns) => conv(f0,k x k) => avgpool(2) => conv(f1,k x k) => avgpool(2)
			                    => flatten => linear(hidden) => linear(2)
		*/
		k := conf.DiscriminatorKernel
		f0, f1 := conf.DiscriminatorFilters[0], conf.DiscriminatorFilters[1]
		h, w := conf.discriminatorFeatureSize()
		dis_w0 := gorgonia.NewTensor(g, gorgonia.Float64, 4, gorgonia.WithShape(f0, 1, k, k), gorgonia.WithName("discriminator_w0"), gorgonia.WithInit(GlorotUniformInit(rnd)))
		dis_b0 := gorgonia.NewTensor(g, gorgonia.Float64, 4, gorgonia.WithShape(1, f0, 1, 1), gorgonia.WithName("discriminator_b0"), gorgonia.WithInit(gorgonia.Zeroes()))
		dis_w1 := gorgonia.NewTensor(g, gorgonia.Float64, 4, gorgonia.WithShape(f1, f0, k, k), gorgonia.WithName("discriminator_w1"), gorgonia.WithInit(GlorotUniformInit(rnd)))
		dis_b1 := gorgonia.NewTensor(g, gorgonia.Float64, 4, gorgonia.WithShape(1, f1, 1, 1), gorgonia.WithName("discriminator_b1"), gorgonia.WithInit(gorgonia.Zeroes()))
		dis_w2 := gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(conf.DiscriminatorHidden, f1*h*w), gorgonia.WithName("discriminator_w2"), gorgonia.WithInit(GlorotUniformInit(rnd)))
		dis_b2 := gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(1, conf.DiscriminatorHidden), gorgonia.WithName("discriminator_b2"), gorgonia.WithInit(gorgonia.Zeroes()))
		dis_w3 := gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(2, conf.DiscriminatorHidden), gorgonia.WithName("discriminator_w3"), gorgonia.WithInit(GlorotUniformInit(rnd)))
		dis_b3 := gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(1, 2), gorgonia.WithName("discriminator_b3"), gorgonia.WithInit(gorgonia.Zeroes()))
		return Discriminator(
			[]*Layer{
				{
					WeightNode:   dis_w0,
					BiasNode:     dis_b0,
					Type:         LayerConvolutional,
					Activation:   Tanh,
					KernelHeight: k,
					KernelWidth:  k,
					Padding:      []int{0, 0},
					Stride:       []int{1, 1},
					Dilation:     []int{1, 1},
				},
				{
					Type:         LayerAvgpool,
					KernelHeight: 2,
					KernelWidth:  2,
					Padding:      []int{0, 0},
					Stride:       []int{2, 2},
				},
				{
					WeightNode:   dis_w1,
					BiasNode:     dis_b1,
					Type:         LayerConvolutional,
					Activation:   Tanh,
					KernelHeight: k,
					KernelWidth:  k,
					Padding:      []int{0, 0},
					Stride:       []int{1, 1},
					Dilation:     []int{1, 1},
				},
				{
					Type:         LayerAvgpool,
					KernelHeight: 2,
					KernelWidth:  2,
					Padding:      []int{0, 0},
					Stride:       []int{2, 2},
				},
				{
					Type: LayerFlatten,
				},
				{
					WeightNode: dis_w2,
					BiasNode:   dis_b2,
					Type:       LayerLinear,
					Activation: Tanh,
				},
				{
					WeightNode: dis_w3,
					BiasNode:   dis_b3,
					Type:       LayerLinear,
				},
			}...,
		).WithLogits(), nil
	default:
		return nil, fmt.Errorf("Variant '%s' is not handled", conf.Variant)
	}
}

// Labels Returns discriminator's targets for n samples which are all real (or all fake):
// [n, 1] of ones (zeros) for GAN and one-hot [n, 2] for DCGAN
func (conf ModelConfig) Labels(n int, real bool) *tensor.Dense {
	if conf.Variant == VariantDCGAN {
		data := make([]float64, 2*n)
		idx := 0
		if real {
			idx = 1
		}
		for i := 0; i < n; i++ {
			data[2*i+idx] = 1
		}
		return tensor.New(tensor.WithShape(n, 2), tensor.WithBacking(data))
	}
	data := make([]float64, n)
	if real {
		for i := range data {
			data[i] = 1
		}
	}
	return tensor.New(tensor.WithShape(n, 1), tensor.WithBacking(data))
}

// labelsShape Returns shape of discriminator's output (and targets) for n samples
func (conf ModelConfig) labelsShape(n int) tensor.Shape {
	if conf.Variant == VariantDCGAN {
		return tensor.Shape{n, 2}
	}
	return tensor.Shape{n, 1}
}

// GeneratorCost Builds generator's cost: generator wants discriminator to label its samples as real.
// GAN: -mean(log(D(G(z)))); DCGAN: mean softmax cross-entropy with 'real' targets
func (conf ModelConfig) GeneratorCost(out, target *gorgonia.Node) (*gorgonia.Node, error) {
	if conf.Variant == VariantDCGAN {
		return SoftmaxCrossEntropyLoss(out, target)
	}
	return BinaryCrossEntropyLoss(out, target)
}

// DiscriminatorCost Builds discriminator's cost for batch of concatenated [real; fake] samples.
// GAN: -mean(log(D(x)) + log(1-D(G(z)))) which is sum of binary cross-entropy divided by half of batch;
// DCGAN: mean softmax cross-entropy over whole batch
func (conf ModelConfig) DiscriminatorCost(out, target *gorgonia.Node, batchSize int) (*gorgonia.Node, error) {
	if conf.Variant == VariantDCGAN {
		return SoftmaxCrossEntropyLoss(out, target)
	}
	sum, err := BinaryCrossEntropyLoss(out, target, LossReductionSum)
	if err != nil {
		return nil, err
	}
	return gorgonia.Div(sum, gorgonia.NewConstant(float64(batchSize)))
}
