package dataset

import (
	"fmt"
	"math/rand"

	"gorgonia.org/tensor"
)

// Segments Collection of fixed-length vectors. Each vector is flattened tile of Rows x Columns
type Segments struct {
	// [N, Rows*Columns]
	Data    *tensor.Dense
	Rows    int
	Columns int
}

// NewSegments Wraps flattened tiles. Length of data must be multiple of rows*columns
func NewSegments(data []float64, rows, columns int) (*Segments, error) {
	if rows < 1 || columns < 1 {
		return nil, fmt.Errorf("Tile geometry must be positive, but got %dx%d", rows, columns)
	}
	tileSize := rows * columns
	if len(data) == 0 || len(data)%tileSize != 0 {
		return nil, fmt.Errorf("Can't split %d values into tiles of %dx%d", len(data), rows, columns)
	}
	return &Segments{
		Data:    tensor.New(tensor.WithShape(len(data)/tileSize, tileSize), tensor.WithBacking(data)),
		Rows:    rows,
		Columns: columns,
	}, nil
}

// Len Returns number of tiles
func (s *Segments) Len() int {
	return s.Data.Shape()[0]
}

// TileSize Returns number of values in single tile
func (s *Segments) TileSize() int {
	return s.Rows * s.Columns
}

func (s *Segments) values() []float64 {
	return s.Data.Data().([]float64)
}

// Tile Returns copy of i-th flattened tile
func (s *Segments) Tile(i int) []float64 {
	size := s.TileSize()
	tile := make([]float64, size)
	copy(tile, s.values()[i*size:(i+1)*size])
	return tile
}

// Clone Returns deep copy
func (s *Segments) Clone() *Segments {
	return &Segments{
		Data:    s.Data.Clone().(*tensor.Dense),
		Rows:    s.Rows,
		Columns: s.Columns,
	}
}

// Shuffle Permutes tiles in place
func (s *Segments) Shuffle(rnd *rand.Rand) {
	size := s.TileSize()
	values := s.values()
	buf := make([]float64, size)
	rnd.Shuffle(s.Len(), func(i, j int) {
		a, b := values[i*size:(i+1)*size], values[j*size:(j+1)*size]
		copy(buf, a)
		copy(a, b)
		copy(b, buf)
	})
}

// SplitConfig Parameters of round-robin train/test partition
type SplitConfig struct {
	TrainSize int
	TestSize  int
	// Every TestEvery-th group of tiles goes to test
	TestEvery int
}

// DefaultSplitConfig Training batches of 128 tiles, every 10th group is test batch of 4 tiles
func DefaultSplitConfig() SplitConfig {
	return SplitConfig{
		TrainSize: 128,
		TestSize:  4,
		TestEvery: 10,
	}
}

// Batches Disjoint contiguous batches of tiles. Each batch has shape [batch_size, rows*columns]
type Batches struct {
	Train []*tensor.Dense
	Test  []*tensor.Dense
}

// Split Partitions tiles by position: groups are numbered from 1, every TestEvery-th group
// takes TestSize tiles into test batches, any other group takes TrainSize tiles into training batches.
// Partition stops at the first group which doesn't fit entirely, so every batch is full.
func (s *Segments) Split(conf SplitConfig) (*Batches, error) {
	if conf.TrainSize < 1 || conf.TestSize < 1 || conf.TestEvery < 1 {
		return nil, fmt.Errorf("Bad split configuration %+v", conf)
	}
	batches := &Batches{}
	n := s.Len()
	start := 0
	for counter := 1; ; counter++ {
		size := conf.TrainSize
		isTest := counter%conf.TestEvery == 0
		if isTest {
			size = conf.TestSize
		}
		if start+size > n {
			break
		}
		batch := s.slice(start, size)
		if isTest {
			batches.Test = append(batches.Test, batch)
		} else {
			batches.Train = append(batches.Train, batch)
		}
		start += size
	}
	if len(batches.Train) == 0 {
		return nil, fmt.Errorf("%d tiles are not enough for single training batch of %d", n, conf.TrainSize)
	}
	return batches, nil
}

// slice Copies count tiles starting from start into new dense [count, rows*columns]
func (s *Segments) slice(start, count int) *tensor.Dense {
	size := s.TileSize()
	data := make([]float64, count*size)
	copy(data, s.values()[start*size:(start+count)*size])
	return tensor.New(tensor.WithShape(count, size), tensor.WithBacking(data))
}

// Reshape Copies batch [N, rows*columns] into [N, 1, rows, columns] for convolutional networks
func Reshape(batch *tensor.Dense, rows, columns int) (*tensor.Dense, error) {
	shape := batch.Shape()
	if len(shape) != 2 || shape[1] != rows*columns {
		return nil, fmt.Errorf("Can't reshape %v into tiles of %dx%d", shape, rows, columns)
	}
	out := batch.Clone().(*tensor.Dense)
	if err := out.Reshape(shape[0], 1, rows, columns); err != nil {
		return nil, err
	}
	return out, nil
}
