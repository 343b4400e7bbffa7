package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"path/filepath"

	music_gan "github.com/LdDl/music-gan"
	"github.com/LdDl/music-gan/dataset"
	"github.com/LdDl/music-gan/render"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

func run(ctx context.Context) error {
	variants, err := selectedVariants(config.model)
	if err != nil {
		return err
	}
	segments, err := dataset.LoadPickle(config.dataPath)
	if err != nil {
		return err
	}
	log.Printf("Loaded %d segments of %dx%d", segments.Len(), segments.Rows, segments.Columns)

	g, ctx := errgroup.WithContext(ctx)
	for _, v := range variants {
		v := v
		// Each pipeline shuffles its own copy
		data := segments.Clone()
		g.Go(func() error {
			return runPipeline(ctx, v, data)
		})
	}
	return g.Wait()
}

func selectedVariants(model string) ([]music_gan.Variant, error) {
	if model == "all" {
		return []music_gan.Variant{music_gan.VariantGAN, music_gan.VariantDCGAN}, nil
	}
	v, err := music_gan.ParseVariant(model)
	if err != nil {
		return nil, err
	}
	return []music_gan.Variant{v}, nil
}

func runPipeline(ctx context.Context, v music_gan.Variant, segments *dataset.Segments) error {
	rnd := rand.New(rand.NewSource(config.seed + int64(v)))
	segments.Shuffle(rnd)
	batches, err := segments.Split(dataset.DefaultSplitConfig())
	if err != nil {
		return errors.Wrapf(err, "[%s] Can't split dataset", v)
	}
	log.Printf("[%s] %d training batches, %d test batches", v, len(batches.Train), len(batches.Test))

	var model music_gan.ModelConfig
	switch v {
	case music_gan.VariantGAN:
		model = music_gan.DefaultGANConfig(segments.Rows, segments.Columns)
		model.HiddenActivation = config.hiddenActivation
	case music_gan.VariantDCGAN:
		model = music_gan.DefaultDCGANConfig(segments.Rows, segments.Columns)
	default:
		return fmt.Errorf("Unknown variant %d", v)
	}
	trainConf := music_gan.DefaultTrainerConfig(v)
	if config.steps > 0 {
		trainConf.Steps = config.steps
	}
	trainConf.NormalNoise = config.normalNoise
	if config.logEvery > 0 {
		trainConf.LogEvery = config.logEvery
	}

	trainer, err := music_gan.NewTrainer(model, trainConf, rnd)
	if err != nil {
		return errors.Wrapf(err, "[%s] Can't prepare trainer", v)
	}
	defer trainer.Close()

	history, err := trainer.Train(ctx, batches.Train)
	if err != nil {
		return errors.Wrapf(err, "[%s] Can't train", v)
	}
	if len(batches.Test) > 0 {
		score, err := trainer.Score(batches.Test)
		if err != nil {
			return errors.Wrapf(err, "[%s] Can't score test batches", v)
		}
		log.Printf("[%s] Mean discriminator's output on test batches: %f", v, score)
	}

	samples, err := trainer.Sample(render.DefaultGridRows * render.DefaultGridColumns)
	if err != nil {
		return errors.Wrapf(err, "[%s] Can't generate samples", v)
	}
	gridPath := filepath.Join(config.figsPath, fmt.Sprintf("%s_music.png", v))
	// Colours of fully-connected GAN's samples are reversed for better display
	if err := render.Grid(gridPath, samples, render.DefaultGridRows, render.DefaultGridColumns, v == music_gan.VariantGAN); err != nil {
		return errors.Wrapf(err, "[%s] Can't render samples", v)
	}
	log.Printf("[%s] Samples saved to %s", v, gridPath)

	lossPath := filepath.Join(config.figsPath, fmt.Sprintf("%s_loss.png", v))
	if err := render.LossCurves(lossPath, v.String(), history); err != nil {
		return errors.Wrapf(err, "[%s] Can't plot losses", v)
	}
	return nil
}
