package music_gan

import (
	"math"
	"math/rand"
	"testing"
)

func TestUniformRandDense(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	dense := UniformRandDense(rnd, 16, 100, -1, 1)
	shp := dense.Shape()
	if shp[0] != 16 || shp[1] != 100 {
		t.Errorf("Shape should be (16, 100), but got %v", shp)
	}
	for _, v := range dense.Data().([]float64) {
		if v < -1 || v >= 1 {
			t.Errorf("Value %f is out of [-1, 1)", v)
			break
		}
	}
}

func TestNormRandDense(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	values := NormRandDense(rnd, 100, 100).Data().([]float64)
	sum, sqr := 0.0, 0.0
	for _, v := range values {
		sum += v
		sqr += v * v
	}
	mean := sum / float64(len(values))
	stddev := math.Sqrt(sqr/float64(len(values)) - mean*mean)
	if math.Abs(mean) > 0.05 || math.Abs(stddev-1) > 0.05 {
		t.Errorf("Values should have mean 0 and stddev 1, but got %f and %f", mean, stddev)
	}
}
