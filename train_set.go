package music_gan

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// TrainSet Batch for discriminator's training step: real samples followed by generated ones
type TrainSet struct {
	TrainData  *tensor.Dense
	TrainLabel *tensor.Dense
}

// NewDiscriminatorSet Concatenates real and generated samples along first axis and labels them as real=1, fake=0
func NewDiscriminatorSet(conf ModelConfig, real, fake tensor.Tensor) (*TrainSet, error) {
	realShape, fakeShape := real.Shape(), fake.Shape()
	if !realShape.Eq(fakeShape) {
		return nil, fmt.Errorf("Real and generated samples must have same shape, but got %v and %v", realShape, fakeShape)
	}
	n := realShape[0]
	data, err := tensor.Concat(0, real, fake)
	if err != nil {
		return nil, errors.Wrap(err, "Can't concat real and generated samples")
	}
	labels, err := tensor.Concat(0, conf.Labels(n, true), conf.Labels(n, false))
	if err != nil {
		return nil, errors.Wrap(err, "Can't concat real and generated labels")
	}
	return &TrainSet{
		TrainData:  data.(*tensor.Dense),
		TrainLabel: labels.(*tensor.Dense),
	}, nil
}
