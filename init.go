package music_gan

import (
	"math"
	"math/rand"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// GlorotInit Normally distributed weights with stddev = 1/sqrt(fan_in/2).
// Weights are expected to have shape [outputs, inputs, ...], so fan_in is product of all dimensions but first one.
// See ref. http://proceedings.mlr.press/v9/glorot10a/glorot10a.pdf
func GlorotInit(rnd *rand.Rand) gorgonia.InitWFn {
	return func(dt tensor.Dtype, s ...int) interface{} {
		size := 1
		for _, d := range s {
			size *= d
		}
		fanIn := 1
		if len(s) > 1 {
			fanIn = size / s[0]
		}
		stddev := 1.0 / math.Sqrt(float64(fanIn)/2.0)
		switch dt {
		case tensor.Float32:
			data := make([]float32, size)
			for i := range data {
				data[i] = float32(rnd.NormFloat64() * stddev)
			}
			return data
		default:
			data := make([]float64, size)
			for i := range data {
				data[i] = rnd.NormFloat64() * stddev
			}
			return data
		}
	}
}

// GlorotUniformInit Uniformly distributed weights in [-limit, limit], limit = sqrt(6/(fan_in+fan_out)).
// Weights are expected to have shape [outputs, inputs, kernel...]; receptive field size multiplies both fans.
func GlorotUniformInit(rnd *rand.Rand) gorgonia.InitWFn {
	return func(dt tensor.Dtype, s ...int) interface{} {
		size := 1
		for _, d := range s {
			size *= d
		}
		fanIn, fanOut := size, size
		if len(s) > 1 {
			receptive := size / (s[0] * s[1])
			fanIn = s[1] * receptive
			fanOut = s[0] * receptive
		}
		limit := math.Sqrt(6.0 / float64(fanIn+fanOut))
		switch dt {
		case tensor.Float32:
			data := make([]float32, size)
			for i := range data {
				data[i] = float32((2*rnd.Float64() - 1) * limit)
			}
			return data
		default:
			data := make([]float64, size)
			for i := range data {
				data[i] = (2*rnd.Float64() - 1) * limit
			}
			return data
		}
	}
}
