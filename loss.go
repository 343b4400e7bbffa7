package music_gan

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
)

type LossReduction uint16

const (
	LossReductionSum = LossReduction(iota)
	LossReductionMean
)

// logEpsilon is added before taking logarithm of probabilities, so saturated sigmoid/softmax gives finite loss
const logEpsilon = 1e-12

func reduce(x *gorgonia.Node, reduction []LossReduction) (*gorgonia.Node, error) {
	reductionDefault := LossReductionMean
	if len(reduction) != 0 {
		reductionDefault = reduction[0]
	}
	switch reductionDefault {
	case LossReductionSum:
		return gorgonia.Sum(x)
	case LossReductionMean:
		return gorgonia.Mean(x)
	default:
		return nil, fmt.Errorf("Reduction type %d is not supported", reductionDefault)
	}
}

// safeLog Returns log(a+eps)
func safeLog(a *gorgonia.Node) (*gorgonia.Node, error) {
	eps := gorgonia.NewConstant(logEpsilon)
	shifted, err := gorgonia.Add(a, eps)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (A+eps)")
	}
	return gorgonia.Log(shifted)
}

// MSELoss See ref. https://en.wikipedia.org/wiki/Mean_squared_error
// Default reduction is 'mean'
func MSELoss(a, b *gorgonia.Node, reduction ...LossReduction) (*gorgonia.Node, error) {
	sub, err := gorgonia.Sub(a, b)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (A-B)")
	}
	sqr, err := gorgonia.Square(sub)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x^2)")
	}
	return reduce(sqr, reduction)
}

// L1Loss See ref. https://en.wikipedia.org/wiki/Least_absolute_deviations
// Default reduction is 'mean'
func L1Loss(a, b *gorgonia.Node, reduction ...LossReduction) (*gorgonia.Node, error) {
	sub, err := gorgonia.Sub(a, b)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (A-B)")
	}
	abs, err := gorgonia.Abs(sub)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do |x|")
	}
	return reduce(abs, reduction)
}

// CrossEntropyLoss See ref. https://en.wikipedia.org/wiki/Cross_entropy#Cross-entropy_loss_function_and_logistic_regression
// a - probabilities, b - target distribution
// Default reduction is 'mean'
func CrossEntropyLoss(a, b *gorgonia.Node, reduction ...LossReduction) (*gorgonia.Node, error) {
	log, err := safeLog(a)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do log(A)")
	}
	neg, err := gorgonia.Neg(log)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do -1*x")
	}
	hprod, err := gorgonia.HadamardProd(neg, b)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x.*B)")
	}
	return reduce(hprod, reduction)
}

// BinaryCrossEntropyLoss See ref. https://en.wikipedia.org/wiki/Cross_entropy#Cross-entropy_loss_function_and_logistic_regression
// Pretty the same as CrossEntropyLoss. BUT for C=2, where C - number of classes
// loss{i} = -(b{i}*log(a{i}) + (1-b{i})*log(1-a{i}))
// Default reduction is 'mean'
func BinaryCrossEntropyLoss(a, b *gorgonia.Node, reduction ...LossReduction) (*gorgonia.Node, error) {
	logMain, err := safeLog(a)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do log(A)")
	}
	hprodMain, err := gorgonia.HadamardProd(logMain, b)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x.*B)")
	}

	one := gorgonia.NewConstant(1.0)
	oneMinusA, err := gorgonia.Sub(one, a)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (1-A)")
	}
	logBin, err := safeLog(oneMinusA)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do log(1-A)")
	}
	oneMinusB, err := gorgonia.Sub(one, b)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (1-B)")
	}
	hprodBin, err := gorgonia.HadamardProd(logBin, oneMinusB)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x.*(1-B))")
	}
	sum, err := gorgonia.Add(hprodMain, hprodBin)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x+y)")
	}
	neg, err := gorgonia.Neg(sum)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do -1*x")
	}
	return reduce(neg, reduction)
}

// SoftmaxCrossEntropyLoss Cross entropy between softmax(logits) taken along last axis and one-hot encoded targets.
// Reduction is applied to per-sample losses: for [N, C] logits 'mean' gives sum / N.
// Default reduction is 'mean'
func SoftmaxCrossEntropyLoss(logits, onehot *gorgonia.Node, reduction ...LossReduction) (*gorgonia.Node, error) {
	if logits.Dims() != 2 {
		return nil, fmt.Errorf("Logits must have 2 dimensions [samples, classes], but got %d", logits.Dims())
	}
	probs, err := gorgonia.SoftMax(logits)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do softmax(logits)")
	}
	log, err := safeLog(probs)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do log(softmax(logits))")
	}
	hprod, err := gorgonia.HadamardProd(log, onehot)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x.*B)")
	}
	perSample, err := gorgonia.Sum(hprod, 1)
	if err != nil {
		return nil, errors.Wrap(err, "Can't sum over classes")
	}
	neg, err := gorgonia.Neg(perSample)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do -1*x")
	}
	return reduce(neg, reduction)
}

// HuberLoss See ref. https://en.wikipedia.org/wiki/Huber_loss
// This is actually Pseudo Huber Loss - see ref. https://en.wikipedia.org/wiki/Huber_loss#Pseudo-Huber_loss_function
// Default reduction is 'mean'
func HuberLoss(a, b *gorgonia.Node, delta float64, reduction ...LossReduction) (*gorgonia.Node, error) {
	deltaScalar := gorgonia.NewConstant(delta)
	sqrDelta := gorgonia.NewConstant(delta * delta)
	oneScalar := gorgonia.NewConstant(1.0)

	sub, err := gorgonia.Sub(a, b)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (A-B)")
	}
	div, err := gorgonia.Div(sub, deltaScalar)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (X/delta)")
	}
	sqr, err := gorgonia.Square(div)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x^2)")
	}
	addOneScalar, err := gorgonia.Add(oneScalar, sqr)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (1.+X)")
	}
	sqrt, err := gorgonia.Sqrt(addOneScalar)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do sqrt(x)")
	}
	subOneScalar, err := gorgonia.Sub(sqrt, oneScalar)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (X.-1)")
	}
	scaled, err := gorgonia.Mul(sqrDelta, subOneScalar)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (delta^2*x)")
	}
	return reduce(scaled, reduction)
}
