package music_gan

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Layer Just an alias to Weight+Bias+ActivationFunction combo
//
// For LayerLinear weights have shape [outputs, inputs] and bias has shape [1, outputs].
// For LayerConvolutional and LayerTransposedConvolutional weights have shape [filters, channels, KernelHeight, KernelWidth]
// and bias has shape [1, filters, 1, 1].
//
type Layer struct {
	WeightNode *gorgonia.Node
	BiasNode   *gorgonia.Node
	Activation ActivationFunc
	Type       LayerType

	KernelHeight int
	KernelWidth  int
	Padding      []int
	Stride       []int
	Dilation     []int
	ReshapeDims  []int
}

type LayerType uint16

const (
	LayerLinear = LayerType(iota)
	LayerFlatten
	LayerConvolutional
	LayerMaxpool
	LayerReshape
	LayerTransposedConvolutional
	LayerAvgpool
)

func (lt LayerType) String() string {
	switch lt {
	case LayerLinear:
		return "linear"
	case LayerFlatten:
		return "flatten"
	case LayerConvolutional:
		return "conv2d"
	case LayerMaxpool:
		return "maxpool2d"
	case LayerReshape:
		return "reshape"
	case LayerTransposedConvolutional:
		return "conv2d_transpose"
	case LayerAvgpool:
		return "avgpool2d"
	default:
		return fmt.Sprintf("LayerType(%d)", uint16(lt))
	}
}

var (
	allowedNoWeights = []LayerType{LayerMaxpool, LayerAvgpool, LayerFlatten, LayerReshape}
)

func noWeightsAllowed(checkType LayerType) bool {
	return checkLayerType(checkType, allowedNoWeights...)
}

func checkLayerType(checkType LayerType, t ...LayerType) bool {
	for _, typeOf := range t {
		if checkType == typeOf {
			return true
		}
	}
	return false
}

// Fwd Builds non-activated output of the layer for provided input
//
// input - Input node
// batchSize - batch size. Used by LayerFlatten to keep the first dimension
//
func (l *Layer) Fwd(input *gorgonia.Node, batchSize int) (*gorgonia.Node, error) {
	if l.WeightNode == nil && !noWeightsAllowed(l.Type) {
		return nil, fmt.Errorf("WeightNode is nil for layer of type '%s'", l.Type)
	}
	var out *gorgonia.Node
	var err error
	switch l.Type {
	case LayerLinear:
		tOp, err := gorgonia.Transpose(l.WeightNode)
		if err != nil {
			return nil, errors.Wrap(err, "Can't transpose weights")
		}
		out, err = gorgonia.Mul(input, tOp)
		if err != nil {
			return nil, errors.Wrap(err, "Can't multiply input and weights")
		}
	case LayerConvolutional:
		out, err = gorgonia.Conv2d(input, l.WeightNode, tensor.Shape{l.KernelHeight, l.KernelWidth}, l.Padding, l.Stride, l.Dilation)
		if err != nil {
			return nil, errors.Wrap(err, "Can't convolve[2D] input by kernel")
		}
	case LayerTransposedConvolutional:
		out, err = transposedConv2d(input, l.WeightNode, l.KernelHeight, l.KernelWidth, l.Stride)
		if err != nil {
			return nil, errors.Wrap(err, "Can't do transposed convolution[2D] of input by kernel")
		}
	case LayerMaxpool:
		out, err = gorgonia.MaxPool2D(input, tensor.Shape{l.KernelHeight, l.KernelWidth}, l.Padding, l.Stride)
		if err != nil {
			return nil, errors.Wrap(err, "Can't maxpool[2D] input by kernel")
		}
	case LayerAvgpool:
		out, err = avgPool2d(input, l.KernelHeight, l.KernelWidth, l.Stride)
		if err != nil {
			return nil, errors.Wrap(err, "Can't avgpool[2D] input by kernel")
		}
	case LayerFlatten:
		out, err = gorgonia.Reshape(input, tensor.Shape{batchSize, input.Shape().TotalSize() / batchSize})
		if err != nil {
			return nil, errors.Wrap(err, "Can't flatten input")
		}
	case LayerReshape:
		out, err = gorgonia.Reshape(input, l.ReshapeDims)
		if err != nil {
			return nil, errors.Wrap(err, "Can't reshape input")
		}
	default:
		return nil, fmt.Errorf("Layer type '%d' (uint16) is not handled", l.Type)
	}
	if l.BiasNode == nil {
		return out, nil
	}
	out, err = addBias(out, l.BiasNode)
	if err != nil {
		return nil, errors.Wrap(err, "Can't add bias to non-activated output")
	}
	return out, nil
}

// Activate Applies layer's activation function. Nil activation means identity
func (l *Layer) Activate(input *gorgonia.Node) (*gorgonia.Node, error) {
	if l.Activation == nil {
		return input, nil
	}
	return l.Activation(input)
}

// addBias Adds bias to non-activated output. Every axis where bias has size 1 and output has not is broadcasted.
func addBias(out, bias *gorgonia.Node) (*gorgonia.Node, error) {
	outShape := out.Shape()
	biasShape := bias.Shape()
	if len(outShape) != len(biasShape) {
		return nil, fmt.Errorf("Bias must have %d dimensions, but got %d", len(outShape), len(biasShape))
	}
	pattern := make([]byte, 0, len(outShape))
	for i := range outShape {
		if biasShape[i] == outShape[i] {
			continue
		}
		if biasShape[i] != 1 {
			return nil, fmt.Errorf("Bias shape %v can't be broadcasted to %v", biasShape, outShape)
		}
		pattern = append(pattern, byte(i))
	}
	if len(pattern) == 0 {
		return gorgonia.Add(out, bias)
	}
	return gorgonia.BroadcastAdd(out, bias, nil, pattern)
}

// ConvOutputSize Returns spatial size after convolution or pooling with provided parameters
func ConvOutputSize(input, kernel, padding, stride, dilation int) int {
	return (input+2*padding-dilation*(kernel-1)-1)/stride + 1
}

// TransposedConvOutputSize Returns spatial size after transposed convolution without padding ('valid' mode)
func TransposedConvOutputSize(input, kernel, stride int) int {
	return (input-1)*stride + kernel
}

// transposedConv2d Gorgonia has no transposed convolution, so it is expressed as
// zero insertion (stride-1 zeros between input pixels plus kernel-1 zeros around)
// followed by ordinary 'valid' convolution.
//
// Zero insertion is done by multiplying rows and columns with constant spreading matrices:
// [B, C, H, W] -> [B*C*H, W] x [W, W'] -> [B*C, W', H] -> [B*C*W', H] x [H, H'] -> [B, C, H', W']
//
func transposedConv2d(input, kernel *gorgonia.Node, kernelHeight, kernelWidth int, stride []int) (*gorgonia.Node, error) {
	shp := input.Shape()
	if len(shp) != 4 {
		return nil, fmt.Errorf("Input must have 4 dimensions [batch, channels, height, width], but got %v", shp)
	}
	strideH, strideW := 1, 1
	if len(stride) > 0 {
		strideH, strideW = stride[0], stride[0]
	}
	if len(stride) > 1 {
		strideW = stride[1]
	}
	batch, channels, height, width := shp[0], shp[1], shp[2], shp[3]
	upHeight := (height-1)*strideH + 1 + 2*(kernelHeight-1)
	upWidth := (width-1)*strideW + 1 + 2*(kernelWidth-1)

	g := input.Graph()
	spreadW := gorgonia.NewMatrix(g, input.Dtype(), gorgonia.WithShape(width, upWidth), gorgonia.WithName(fmt.Sprintf("spread_%d_%d_%d_%d", width, upWidth, strideW, kernelWidth)), gorgonia.WithValue(spreadMatrix(width, upWidth, strideW, kernelWidth-1)))
	spreadH := gorgonia.NewMatrix(g, input.Dtype(), gorgonia.WithShape(height, upHeight), gorgonia.WithName(fmt.Sprintf("spread_%d_%d_%d_%d", height, upHeight, strideH, kernelHeight)), gorgonia.WithValue(spreadMatrix(height, upHeight, strideH, kernelHeight-1)))

	rowsView, err := gorgonia.Reshape(input, tensor.Shape{batch * channels * height, width})
	if err != nil {
		return nil, errors.Wrap(err, "Can't reshape input to rows")
	}
	spreadCols, err := gorgonia.Mul(rowsView, spreadW)
	if err != nil {
		return nil, errors.Wrap(err, "Can't spread columns")
	}
	cube, err := gorgonia.Reshape(spreadCols, tensor.Shape{batch * channels, height, upWidth})
	if err != nil {
		return nil, errors.Wrap(err, "Can't reshape spread columns")
	}
	swapped, err := gorgonia.Transpose(cube, 0, 2, 1)
	if err != nil {
		return nil, errors.Wrap(err, "Can't swap height and width")
	}
	colsView, err := gorgonia.Reshape(swapped, tensor.Shape{batch * channels * upWidth, height})
	if err != nil {
		return nil, errors.Wrap(err, "Can't reshape input to columns")
	}
	spreadRows, err := gorgonia.Mul(colsView, spreadH)
	if err != nil {
		return nil, errors.Wrap(err, "Can't spread rows")
	}
	cube, err = gorgonia.Reshape(spreadRows, tensor.Shape{batch * channels, upWidth, upHeight})
	if err != nil {
		return nil, errors.Wrap(err, "Can't reshape spread rows")
	}
	swapped, err = gorgonia.Transpose(cube, 0, 2, 1)
	if err != nil {
		return nil, errors.Wrap(err, "Can't swap width and height back")
	}
	upsampled, err := gorgonia.Reshape(swapped, tensor.Shape{batch, channels, upHeight, upWidth})
	if err != nil {
		return nil, errors.Wrap(err, "Can't reshape upsampled input")
	}
	return gorgonia.Conv2d(upsampled, kernel, tensor.Shape{kernelHeight, kernelWidth}, []int{0, 0}, []int{1, 1}, []int{1, 1})
}

// avgPool2d Gorgonia has no average pooling, so it is expressed as 'valid' convolution
// with constant kernel [C, C, kh, kw] which holds 1/(kh*kw) on its channel diagonal.
// Trailing rows and columns which don't fill the window are dropped.
func avgPool2d(input *gorgonia.Node, kernelHeight, kernelWidth int, stride []int) (*gorgonia.Node, error) {
	shp := input.Shape()
	if len(shp) != 4 {
		return nil, fmt.Errorf("Input must have 4 dimensions [batch, channels, height, width], but got %v", shp)
	}
	strideH, strideW := kernelHeight, kernelWidth
	if len(stride) > 0 {
		strideH, strideW = stride[0], stride[0]
	}
	if len(stride) > 1 {
		strideW = stride[1]
	}
	channels := shp[1]
	window := kernelHeight * kernelWidth
	data := make([]float64, channels*channels*window)
	for c := 0; c < channels; c++ {
		diag := (c*channels + c) * window
		for i := 0; i < window; i++ {
			data[diag+i] = 1.0 / float64(window)
		}
	}
	kernelValue := tensor.New(tensor.WithShape(channels, channels, kernelHeight, kernelWidth), tensor.WithBacking(data))
	kernel := gorgonia.NewTensor(input.Graph(), input.Dtype(), 4, gorgonia.WithShape(channels, channels, kernelHeight, kernelWidth), gorgonia.WithName(fmt.Sprintf("avgpool_%d_%d_%d", channels, kernelHeight, kernelWidth)), gorgonia.WithValue(kernelValue))
	return gorgonia.Conv2d(input, kernel, tensor.Shape{kernelHeight, kernelWidth}, []int{0, 0}, []int{strideH, strideW}, []int{1, 1})
}

// spreadMatrix Returns [n, m] matrix which moves i-th element to position offset+i*stride
func spreadMatrix(n, m, stride, offset int) *tensor.Dense {
	data := make([]float64, n*m)
	for i := 0; i < n; i++ {
		data[i*m+offset+i*stride] = 1
	}
	return tensor.New(tensor.WithShape(n, m), tensor.WithBacking(data))
}
