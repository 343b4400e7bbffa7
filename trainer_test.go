package music_gan

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

func tinyGANTrainer(t *testing.T, batchSize int) *Trainer {
	model := DefaultGANConfig(4, 4)
	model.NoiseDim = 8
	model.GeneratorHidden = 16
	model.DiscriminatorHidden = 16
	conf := DefaultTrainerConfig(VariantGAN)
	conf.BatchSize = batchSize
	conf.LearnRate = 0.01
	conf.Steps = 5
	conf.LogEvery = 2
	trainer, err := NewTrainer(model, conf, rand.New(rand.NewSource(3)))
	if err != nil {
		t.Fatal(err)
	}
	return trainer
}

func tinyDCGANTrainer(t *testing.T, batchSize int) *Trainer {
	model := DefaultDCGANConfig(17, 16)
	model.NoiseDim = 8
	model.ProjectionDepth = 3
	model.UpsampleFilters = 2
	model.DiscriminatorFilters = [2]int{2, 3}
	model.DiscriminatorHidden = 8
	conf := DefaultTrainerConfig(VariantDCGAN)
	conf.BatchSize = batchSize
	conf.Steps = 2
	conf.LogEvery = 1
	trainer, err := NewTrainer(model, conf, rand.New(rand.NewSource(5)))
	if err != nil {
		t.Fatal(err)
	}
	return trainer
}

// realBatches Returns batches of binary tiles [batchSize, rows*columns]
func realBatches(model ModelConfig, batchSize, n int, rnd *rand.Rand) []*tensor.Dense {
	batches := make([]*tensor.Dense, n)
	for i := range batches {
		data := make([]float64, batchSize*model.TileSize())
		for j := range data {
			if rnd.Float64() < 0.2 {
				data[j] = 1
			}
		}
		batches[i] = tensor.New(tensor.WithShape(batchSize, model.TileSize()), tensor.WithBacking(data))
	}
	return batches
}

func copyValues(t *testing.T, trainer *Trainer) [][]float64 {
	var values [][]float64
	for _, n := range trainer.GAN().GeneratorLearnables() {
		values = append(values, append([]float64{}, nodeValues(t, n)...))
	}
	for _, n := range trainer.GAN().Discriminator().Learnables() {
		values = append(values, append([]float64{}, nodeValues(t, n)...))
	}
	return values
}

func changed(a, b []float64) bool {
	for i := range a {
		if a[i] != b[i] {
			return true
		}
	}
	return false
}

func checkFinite(t *testing.T, res StepResult) {
	for _, loss := range []float64{res.GeneratorLoss, res.DiscriminatorLoss} {
		if math.IsNaN(loss) || math.IsInf(loss, 0) || loss < 0 {
			t.Errorf("Losses should be finite and non-negative, but got %+v", res)
			return
		}
	}
}

func TestTrainerStepGAN(t *testing.T) {
	batchSize := 8
	trainer := tinyGANTrainer(t, batchSize)
	defer trainer.Close()
	batches := realBatches(trainer.Model(), batchSize, 1, rand.New(rand.NewSource(11)))

	before := copyValues(t, trainer)
	res, err := trainer.Step(batches[0])
	if err != nil {
		t.Error(err)
		return
	}
	checkFinite(t, res)
	after := copyValues(t, trainer)
	for i := range before {
		if !changed(before[i], after[i]) {
			t.Errorf("Learnable %d has not been updated", i)
		}
	}

	// Stacked copy of discriminator must see updates of the original one
	original := trainer.GAN().Discriminator().Learnables()
	stacked := trainer.GAN().StackedDiscriminator().Learnables()
	if len(original) != len(stacked) {
		t.Errorf("Stacked discriminator should have %d learnables, but got %d", len(original), len(stacked))
		return
	}
	for i := range original {
		a, b := nodeValues(t, original[i]), nodeValues(t, stacked[i])
		if changed(a, b) {
			t.Errorf("Learnable %d of stacked discriminator differs from original one", i)
		}
	}

	if _, err := trainer.Step(batches[0]); err != nil {
		t.Error(err)
	}
	wrong := tensor.New(tensor.WithShape(batchSize-1, 16), tensor.WithBacking(make([]float64, (batchSize-1)*16)))
	if _, err := trainer.Step(wrong); err == nil {
		t.Error("Batch of wrong size should give error")
	}
}

func learnableValues(t *testing.T, nodes gorgonia.Nodes) [][]float64 {
	values := make([][]float64, len(nodes))
	for i, n := range nodes {
		values[i] = append([]float64{}, nodeValues(t, n)...)
	}
	return values
}

// checkSinglePhase Freezes one of solvers and does two steps on the same batch with the same noise.
// Frozen learnables must stay untouched, trained ones must move and lower their own loss.
func checkSinglePhase(t *testing.T, trainer *Trainer, batch *tensor.Dense, freezeDiscriminator bool) {
	frozen := gorgonia.NewAdamSolver(gorgonia.WithLearnRate(0))
	active := gorgonia.NewAdamSolver(gorgonia.WithLearnRate(0.001))
	gan := trainer.GAN()
	var frozenNodes, activeNodes gorgonia.Nodes
	if freezeDiscriminator {
		trainer.solverDiscriminator, trainer.solverGAN = frozen, active
		frozenNodes = append(append(frozenNodes, gan.Discriminator().Learnables()...), gan.StackedDiscriminator().Learnables()...)
		activeNodes = gan.GeneratorLearnables()
	} else {
		trainer.solverGAN, trainer.solverDiscriminator = frozen, active
		frozenNodes = gan.GeneratorLearnables()
		activeNodes = gan.Discriminator().Learnables()
	}
	frozenBefore, activeBefore := learnableValues(t, frozenNodes), learnableValues(t, activeNodes)

	results := make([]StepResult, 2)
	for i := range results {
		trainer.rnd = rand.New(rand.NewSource(23))
		res, err := trainer.Step(batch)
		if err != nil {
			t.Error(err)
			return
		}
		checkFinite(t, res)
		results[i] = res
	}

	frozenAfter, activeAfter := learnableValues(t, frozenNodes), learnableValues(t, activeNodes)
	for i := range frozenBefore {
		if changed(frozenBefore[i], frozenAfter[i]) {
			t.Errorf("Frozen learnable '%s' has been updated", frozenNodes[i].Name())
		}
	}
	for i := range activeBefore {
		if !changed(activeBefore[i], activeAfter[i]) {
			t.Errorf("Learnable '%s' has not been updated", activeNodes[i].Name())
		}
	}
	if freezeDiscriminator {
		if results[1].GeneratorLoss >= results[0].GeneratorLoss {
			t.Errorf("Generator's loss should decrease with frozen discriminator, but got %f then %f", results[0].GeneratorLoss, results[1].GeneratorLoss)
		}
		if results[1].DiscriminatorLoss == results[0].DiscriminatorLoss {
			t.Errorf("Discriminator's loss should follow updated generator, but stays %f", results[0].DiscriminatorLoss)
		}
	} else {
		if results[1].DiscriminatorLoss >= results[0].DiscriminatorLoss {
			t.Errorf("Discriminator's loss should decrease with frozen generator, but got %f then %f", results[0].DiscriminatorLoss, results[1].DiscriminatorLoss)
		}
	}
}

func TestTrainerFrozenDiscriminator(t *testing.T) {
	trainer := tinyGANTrainer(t, 8)
	defer trainer.Close()
	batches := realBatches(trainer.Model(), 8, 1, rand.New(rand.NewSource(29)))
	checkSinglePhase(t, trainer, batches[0], true)
}

func TestTrainerFrozenGenerator(t *testing.T) {
	trainer := tinyGANTrainer(t, 8)
	defer trainer.Close()
	batches := realBatches(trainer.Model(), 8, 1, rand.New(rand.NewSource(29)))
	checkSinglePhase(t, trainer, batches[0], false)
}

func TestTrainerFrozenPhasesDCGAN(t *testing.T) {
	for _, freezeDiscriminator := range []bool{true, false} {
		trainer := tinyDCGANTrainer(t, 2)
		batches := realBatches(trainer.Model(), 2, 1, rand.New(rand.NewSource(31)))
		checkSinglePhase(t, trainer, batches[0], freezeDiscriminator)
		trainer.Close()
	}
}

func TestTrainerTrainGAN(t *testing.T) {
	batchSize := 8
	trainer := tinyGANTrainer(t, batchSize)
	defer trainer.Close()
	rnd := rand.New(rand.NewSource(13))
	batches := realBatches(trainer.Model(), batchSize, 3, rnd)

	history, err := trainer.Train(context.Background(), batches)
	if err != nil {
		t.Error(err)
		return
	}
	// Steps 1, 2 and 4 of 5 are recorded
	correctSteps := []int{1, 2, 4}
	if len(history) != len(correctSteps) {
		t.Errorf("History should have %d records, but got %d", len(correctSteps), len(history))
		return
	}
	for i, res := range history {
		if res.Step != correctSteps[i] {
			t.Errorf("Record %d should be for step %d, but got %d", i, correctSteps[i], res.Step)
		}
		checkFinite(t, res)
	}

	samples, err := trainer.Sample(20)
	if err != nil {
		t.Error(err)
		return
	}
	if !samples.Shape().Eq(tensor.Shape{20, 4, 4}) {
		t.Errorf("Samples should have shape (20, 4, 4), but got %v", samples.Shape())
	}
	for _, v := range samples.Data().([]float64) {
		if v < 0 || v > 1 {
			t.Errorf("Sample values should be in [0, 1], but got %f", v)
			break
		}
	}

	test := realBatches(trainer.Model(), 4, 3, rnd)
	score, err := trainer.Score(test)
	if err != nil {
		t.Error(err)
		return
	}
	if score < 0 || score > 1 {
		t.Errorf("Score should be probability, but got %f", score)
	}
	if _, err := trainer.Score(nil); err == nil {
		t.Error("Scoring nothing should give error")
	}
}

func TestTrainerCancel(t *testing.T) {
	trainer := tinyGANTrainer(t, 4)
	defer trainer.Close()
	batches := realBatches(trainer.Model(), 4, 1, rand.New(rand.NewSource(17)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	history, err := trainer.Train(ctx, batches)
	if err != context.Canceled {
		t.Errorf("Cancelled training should give context.Canceled, but got %v", err)
	}
	if len(history) != 0 {
		t.Errorf("No steps should be done, but got %d records", len(history))
	}
	if _, err := trainer.Train(context.Background(), nil); err == nil {
		t.Error("Training without batches should give error")
	}
}

func TestTrainerDCGAN(t *testing.T) {
	batchSize := 2
	trainer := tinyDCGANTrainer(t, batchSize)
	defer trainer.Close()
	rnd := rand.New(rand.NewSource(19))
	batches := realBatches(trainer.Model(), batchSize, 2, rnd)

	before := copyValues(t, trainer)
	history, err := trainer.Train(context.Background(), batches)
	if err != nil {
		t.Error(err)
		return
	}
	if len(history) != 2 {
		t.Errorf("History should have 2 records, but got %d", len(history))
	}
	for _, res := range history {
		checkFinite(t, res)
	}
	after := copyValues(t, trainer)
	for i := range before {
		if !changed(before[i], after[i]) {
			t.Errorf("Learnable %d has not been updated", i)
		}
	}

	samples, err := trainer.Sample(3)
	if err != nil {
		t.Error(err)
		return
	}
	if !samples.Shape().Eq(tensor.Shape{3, 17, 16}) {
		t.Errorf("Samples should have shape (3, 17, 16), but got %v", samples.Shape())
	}
	score, err := trainer.Score(realBatches(trainer.Model(), 1, 5, rnd))
	if err != nil {
		t.Error(err)
		return
	}
	if score < 0 || score > 1 {
		t.Errorf("Score should be probability, but got %f", score)
	}
}
