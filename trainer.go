package music_gan

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/LdDl/music-gan/dataset"
	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// TrainerConfig Parameters of adversarial training
type TrainerConfig struct {
	BatchSize int
	// Learning rate of both Adam solvers
	LearnRate float64
	// Fixed number of steps. There is no other convergence criterion
	Steps int
	// Loss is logged (and recorded into history) on first step and every LogEvery steps
	LogEvery int
	// Noise is sampled uniformly in [NoiseLow, NoiseHigh)
	NoiseLow  float64
	NoiseHigh float64
	// Sample noise from standard normal distribution instead (NoiseLow and NoiseHigh are ignored)
	NormalNoise bool
}

// DefaultTrainerConfig Returns training parameters for provided variant:
// GAN - 100000 steps with learning rate 0.0002, DCGAN - 20000 steps with learning rate 0.001. Batch size is 128 for both.
func DefaultTrainerConfig(v Variant) TrainerConfig {
	conf := TrainerConfig{
		BatchSize: 128,
		NoiseLow:  -1.0,
		NoiseHigh: 1.0,
	}
	switch v {
	case VariantDCGAN:
		conf.LearnRate = 0.001
		conf.Steps = 20000
		conf.LogEvery = 100
	default:
		conf.LearnRate = 0.0002
		conf.Steps = 100000
		conf.LogEvery = 1000
	}
	return conf
}

// Validate Checks training parameters
func (conf TrainerConfig) Validate() error {
	if conf.BatchSize < 1 {
		return fmt.Errorf("Batch size must be positive, but got %d", conf.BatchSize)
	}
	if conf.LearnRate <= 0 {
		return fmt.Errorf("Learning rate must be positive, but got %f", conf.LearnRate)
	}
	if conf.Steps < 0 {
		return fmt.Errorf("Number of steps can't be negative, but got %d", conf.Steps)
	}
	if conf.LogEvery < 1 {
		return fmt.Errorf("Logging period must be positive, but got %d", conf.LogEvery)
	}
	if !conf.NormalNoise && conf.NoiseHigh <= conf.NoiseLow {
		return fmt.Errorf("Noise range [%f, %f) is empty", conf.NoiseLow, conf.NoiseHigh)
	}
	return nil
}

// StepResult Losses evaluated during single training step
type StepResult struct {
	Step              int
	GeneratorLoss     float64
	DiscriminatorLoss float64
}

// History Losses recorded during training
type History []StepResult

// Trainer Adversarial trainer.
//
// Two evaluation graphs are used:
// GAN graph - generator followed by copy of discriminator; solver updates generator's learnables only
// Discriminator graph - discriminator fed by concatenated real and generated samples; solver updates discriminator's learnables only
//
type Trainer struct {
	model ModelConfig
	conf  TrainerConfig
	rnd   *rand.Rand

	ganGraph           *gorgonia.ExprGraph
	discriminatorGraph *gorgonia.ExprGraph

	generator     *GeneratorNet
	discriminator *DiscriminatorNet
	gan           *GAN

	inputGenerator           *gorgonia.Node
	inputDiscriminator       *gorgonia.Node
	targetGAN                *gorgonia.Node
	targetDiscriminatorTrain *gorgonia.Node

	generatedSamples     gorgonia.Value
	outputDiscriminator  gorgonia.Value
	costValGAN           gorgonia.Value
	costValDiscriminator gorgonia.Value

	// forward only machines (compiled before gradients were defined)
	tmGenerator     gorgonia.VM
	tmDiscriminator gorgonia.VM
	// training machines
	tmGAN      gorgonia.VM
	tmDisTrain gorgonia.VM

	solverGAN           gorgonia.Solver
	solverDiscriminator gorgonia.Solver
}

// NewTrainer Defines both networks, their costs and gradients, prepares tape machines and solvers
//
// rnd - source of randomness for weights initialization and noise sampling
//
func NewTrainer(model ModelConfig, conf TrainerConfig, rnd *rand.Rand) (*Trainer, error) {
	if err := model.Validate(); err != nil {
		return nil, errors.Wrap(err, "Bad model configuration")
	}
	if err := conf.Validate(); err != nil {
		return nil, errors.Wrap(err, "Bad trainer configuration")
	}
	t := &Trainer{
		model:              model,
		conf:               conf,
		rnd:                rnd,
		ganGraph:           gorgonia.NewGraph(),
		discriminatorGraph: gorgonia.NewGraph(),
	}
	batchSize := conf.BatchSize
	var err error

	// Define Generator on GAN's evaluation graph
	t.generator, err = DefineGenerator(t.ganGraph, model, batchSize, rnd)
	if err != nil {
		return nil, errors.Wrap(err, "Can't define generator")
	}
	t.inputGenerator = gorgonia.NewMatrix(t.ganGraph, gorgonia.Float64, gorgonia.WithShape(batchSize, model.NoiseDim), gorgonia.WithName("generator_input"))
	if err = t.generator.Fwd(t.inputGenerator, batchSize); err != nil {
		return nil, err
	}
	if !t.generator.Out().Shape().Eq(model.TileShape(batchSize)) {
		return nil, fmt.Errorf("Generator's output has shape %v, but tiles have shape %v", t.generator.Out().Shape(), model.TileShape(batchSize))
	}

	// Define Discriminator on its own evaluation graph. It consumes real and generated samples at once
	t.discriminator, err = DefineDiscriminator(t.discriminatorGraph, model, rnd)
	if err != nil {
		return nil, errors.Wrap(err, "Can't define discriminator")
	}
	tileShape := model.TileShape(2 * batchSize)
	t.inputDiscriminator = gorgonia.NewTensor(t.discriminatorGraph, gorgonia.Float64, tileShape.Dims(), gorgonia.WithShape(tileShape...), gorgonia.WithName("discriminator_train_input"))
	if err = t.discriminator.Fwd(t.inputDiscriminator, 2*batchSize); err != nil {
		return nil, err
	}

	// Define GAN on the same evaluation graph as Generator has been defined
	t.gan, err = NewGAN(t.ganGraph, t.generator, t.discriminator)
	if err != nil {
		return nil, errors.Wrap(err, "Can't define GAN")
	}
	if err = t.gan.Fwd(batchSize); err != nil {
		return nil, err
	}

	gorgonia.Read(t.gan.GeneratorOut(), &t.generatedSamples)
	gorgonia.Read(t.discriminator.Out(), &t.outputDiscriminator)

	// Forward only machines must be compiled before gradients appear on graphs
	t.tmGenerator = gorgonia.NewTapeMachine(t.ganGraph)
	t.tmDiscriminator = gorgonia.NewTapeMachine(t.discriminatorGraph)

	// Generator's cost
	ganOutShape := model.labelsShape(batchSize)
	t.targetGAN = gorgonia.NewMatrix(t.ganGraph, gorgonia.Float64, gorgonia.WithShape(ganOutShape...), gorgonia.WithName("gan_discriminator_target"))
	cost, err := model.GeneratorCost(t.gan.Out(), t.targetGAN)
	if err != nil {
		t.Close()
		return nil, errors.Wrap(err, "Can't define generator's cost")
	}
	gorgonia.WithName("gan_discriminator_loss")(cost)
	if _, err = gorgonia.Grad(cost, t.gan.GeneratorLearnables()...); err != nil {
		t.Close()
		return nil, errors.Wrap(err, "Can't define generator's gradients")
	}

	// Discriminator's cost
	disOutShape := model.labelsShape(2 * batchSize)
	t.targetDiscriminatorTrain = gorgonia.NewMatrix(t.discriminatorGraph, gorgonia.Float64, gorgonia.WithShape(disOutShape...), gorgonia.WithName("discriminator_target"))
	costDiscriminatorTrain, err := model.DiscriminatorCost(t.discriminator.Out(), t.targetDiscriminatorTrain, batchSize)
	if err != nil {
		t.Close()
		return nil, errors.Wrap(err, "Can't define discriminator's cost")
	}
	gorgonia.WithName("discriminator_loss")(costDiscriminatorTrain)
	if _, err = gorgonia.Grad(costDiscriminatorTrain, t.discriminator.Learnables()...); err != nil {
		t.Close()
		return nil, errors.Wrap(err, "Can't define discriminator's gradients")
	}

	gorgonia.Read(cost, &t.costValGAN)
	gorgonia.Read(costDiscriminatorTrain, &t.costValDiscriminator)

	t.tmGAN = gorgonia.NewTapeMachine(t.ganGraph, gorgonia.BindDualValues(t.gan.GeneratorLearnables()...))
	t.tmDisTrain = gorgonia.NewTapeMachine(t.discriminatorGraph, gorgonia.BindDualValues(t.discriminator.Learnables()...))
	t.solverGAN = gorgonia.NewAdamSolver(gorgonia.WithLearnRate(conf.LearnRate))
	t.solverDiscriminator = gorgonia.NewAdamSolver(gorgonia.WithLearnRate(conf.LearnRate))
	return t, nil
}

// Close Releases tape machines
func (t *Trainer) Close() {
	for _, vm := range []gorgonia.VM{t.tmGenerator, t.tmDiscriminator, t.tmGAN, t.tmDisTrain} {
		if vm != nil {
			vm.Close()
		}
	}
}

// Model Returns architecture configuration
func (t *Trainer) Model() ModelConfig {
	return t.model
}

// GAN Returns stacked generator and discriminator
func (t *Trainer) GAN() *GAN {
	return t.gan
}

func (t *Trainer) noise() *tensor.Dense {
	if t.conf.NormalNoise {
		return NormRandDense(t.rnd, t.conf.BatchSize, t.model.NoiseDim)
	}
	return UniformRandDense(t.rnd, t.conf.BatchSize, t.model.NoiseDim, t.conf.NoiseLow, t.conf.NoiseHigh)
}

// tiles Copies batch of flattened tiles [batch, rows*columns] into shape networks consume
func (t *Trainer) tiles(batch *tensor.Dense, batchSize int) (*tensor.Dense, error) {
	shp := batch.Shape()
	if shp.TotalSize() != batchSize*t.model.TileSize() {
		return nil, fmt.Errorf("Batch must hold %d tiles of %d values, but has shape %v", batchSize, t.model.TileSize(), shp)
	}
	if t.model.Variant == VariantDCGAN && len(shp) == 2 {
		return dataset.Reshape(batch, t.model.Rows, t.model.Columns)
	}
	tiles := batch.Clone().(*tensor.Dense)
	if err := tiles.Reshape(t.model.TileShape(batchSize)...); err != nil {
		return nil, errors.Wrap(err, "Can't reshape batch into tiles")
	}
	return tiles, nil
}

// Step Does single adversarial step on provided batch of real tiles [batch_size, rows*columns].
//
// Both phases use the same noise and the same real batch, and both gradients are evaluated under
// the same parameters before any of solvers is applied:
// 1. GAN graph: generate samples and evaluate generator's gradients (discriminator should label generated samples as real)
// 2. Discriminator graph: evaluate gradients on [real; generated] labeled as [1; 0]
// 3. Apply Discriminator's solver to discriminator's learnables and GAN's solver to generator's learnables
//
func (t *Trainer) Step(real *tensor.Dense) (StepResult, error) {
	batchSize := t.conf.BatchSize
	realTiles, err := t.tiles(real, batchSize)
	if err != nil {
		return StepResult{}, err
	}
	if err = gorgonia.Let(t.inputGenerator, t.noise()); err != nil {
		return StepResult{}, errors.Wrap(err, "Can't init generator's input")
	}
	if err = gorgonia.Let(t.targetGAN, t.model.Labels(batchSize, true)); err != nil {
		return StepResult{}, errors.Wrap(err, "Can't init GAN's target")
	}
	defer t.tmGAN.Reset()
	if err = t.tmGAN.RunAll(); err != nil {
		return StepResult{}, errors.Wrap(err, "Can't run GAN's machine")
	}
	generated, ok := t.generatedSamples.(tensor.Tensor)
	if !ok {
		return StepResult{}, fmt.Errorf("Generator's output must be tensor, but got %T", t.generatedSamples)
	}
	set, err := NewDiscriminatorSet(t.model, realTiles, generated)
	if err != nil {
		return StepResult{}, err
	}
	if err = gorgonia.Let(t.inputDiscriminator, set.TrainData); err != nil {
		return StepResult{}, errors.Wrap(err, "Can't init discriminator's input")
	}
	if err = gorgonia.Let(t.targetDiscriminatorTrain, set.TrainLabel); err != nil {
		return StepResult{}, errors.Wrap(err, "Can't init discriminator's target")
	}
	defer t.tmDisTrain.Reset()
	if err = t.tmDisTrain.RunAll(); err != nil {
		return StepResult{}, errors.Wrap(err, "Can't run discriminator's machine")
	}
	if err = t.solverDiscriminator.Step(gorgonia.NodesToValueGrads(t.discriminator.Learnables())); err != nil {
		return StepResult{}, errors.Wrap(err, "Can't do discriminator's solver step")
	}
	if err = t.solverGAN.Step(gorgonia.NodesToValueGrads(t.gan.GeneratorLearnables())); err != nil {
		return StepResult{}, errors.Wrap(err, "Can't do generator's solver step")
	}
	genLoss, err := scalarValue(t.costValGAN)
	if err != nil {
		return StepResult{}, errors.Wrap(err, "Can't read generator's loss")
	}
	disLoss, err := scalarValue(t.costValDiscriminator)
	if err != nil {
		return StepResult{}, errors.Wrap(err, "Can't read discriminator's loss")
	}
	return StepResult{GeneratorLoss: genLoss, DiscriminatorLoss: disLoss}, nil
}

func scalarValue(v gorgonia.Value) (float64, error) {
	if v == nil {
		return 0, fmt.Errorf("Value has not been evaluated")
	}
	switch data := v.Data().(type) {
	case float64:
		return data, nil
	case float32:
		return float64(data), nil
	case []float64:
		if len(data) == 1 {
			return data[0], nil
		}
	}
	return 0, fmt.Errorf("Value %v is not a scalar", v)
}

// Train Runs fixed number of steps cycling through training batches.
// Cancellation of ctx is checked between steps. Returns history of logged losses.
func (t *Trainer) Train(ctx context.Context, batches []*tensor.Dense) (History, error) {
	if len(batches) == 0 {
		return nil, fmt.Errorf("There are no training batches")
	}
	log.Printf("[%s] Train started: %d steps over %d batches", t.model.Variant, t.conf.Steps, len(batches))
	history := make(History, 0, t.conf.Steps/t.conf.LogEvery+1)
	st := time.Now()
	batchIdx := 0
	for step := 1; step <= t.conf.Steps; step++ {
		select {
		case <-ctx.Done():
			return history, ctx.Err()
		default:
		}
		res, err := t.Step(batches[batchIdx])
		if err != nil {
			return history, errors.Wrapf(err, "Step %d", step)
		}
		batchIdx = (batchIdx + 1) % len(batches)
		res.Step = step
		if step == 1 || step%t.conf.LogEvery == 0 {
			history = append(history, res)
			log.Printf("[%s] Step %d: Generator Loss: %f, Discriminator Loss: %f (taken time: %v)", t.model.Variant, step, res.GeneratorLoss, res.DiscriminatorLoss, time.Since(st))
			st = time.Now()
		}
	}
	log.Printf("[%s] Train finished", t.model.Variant)
	return history, nil
}

// Sample Generates n tiles from noise. Resulting dense has shape [n, rows, columns] and values in [0, 1]
func (t *Trainer) Sample(n int) (*tensor.Dense, error) {
	tileSize := t.model.TileSize()
	data := make([]float64, 0, n*tileSize)
	for len(data) < n*tileSize {
		if err := gorgonia.Let(t.inputGenerator, t.noise()); err != nil {
			return nil, errors.Wrap(err, "Can't init generator's input")
		}
		err := t.tmGenerator.RunAll()
		t.tmGenerator.Reset()
		if err != nil {
			return nil, errors.Wrap(err, "Can't run generator's machine")
		}
		generated, ok := t.generatedSamples.(tensor.Tensor)
		if !ok {
			return nil, fmt.Errorf("Generator's output must be tensor, but got %T", t.generatedSamples)
		}
		values, ok := generated.Data().([]float64)
		if !ok {
			return nil, fmt.Errorf("Generator's output must hold float64 values, but got %T", generated.Data())
		}
		need := n*tileSize - len(data)
		if need > len(values) {
			need = len(values)
		}
		data = append(data, values[:need]...)
	}
	return tensor.New(tensor.WithShape(n, t.model.Rows, t.model.Columns), tensor.WithBacking(data)), nil
}

// Score Returns mean probability (according to discriminator) that tiles of provided batches are real.
// Batches may have any number of tiles; they are packed into discriminator's input and padded with zeros.
func (t *Trainer) Score(batches []*tensor.Dense) (float64, error) {
	tileSize := t.model.TileSize()
	capacity := 2 * t.conf.BatchSize
	var pending []float64
	for _, b := range batches {
		values, ok := b.Data().([]float64)
		if !ok {
			return 0, fmt.Errorf("Batch must hold float64 values, but got %T", b.Data())
		}
		if len(values)%tileSize != 0 {
			return 0, fmt.Errorf("Batch of %d values can't be split into tiles of %d values", len(values), tileSize)
		}
		pending = append(pending, values...)
	}
	total := len(pending) / tileSize
	if total == 0 {
		return 0, fmt.Errorf("There are no tiles to score")
	}
	sum := 0.0
	for start := 0; start < total; start += capacity {
		count := capacity
		if start+count > total {
			count = total - start
		}
		chunk := make([]float64, capacity*tileSize)
		copy(chunk, pending[start*tileSize:(start+count)*tileSize])
		input := tensor.New(tensor.WithShape(t.model.TileShape(capacity)...), tensor.WithBacking(chunk))
		if err := gorgonia.Let(t.inputDiscriminator, input); err != nil {
			return 0, errors.Wrap(err, "Can't init discriminator's input")
		}
		err := t.tmDiscriminator.RunAll()
		t.tmDiscriminator.Reset()
		if err != nil {
			return 0, errors.Wrap(err, "Can't run discriminator's machine")
		}
		probs, err := t.discriminator.RealProbabilities(t.outputDiscriminator)
		if err != nil {
			return 0, err
		}
		for _, p := range probs[:count] {
			sum += p
		}
	}
	return sum / float64(total), nil
}
