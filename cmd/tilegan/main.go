package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
)

type Config struct {
	dataPath         string
	model            string
	steps            int
	seed             int64
	figsPath         string
	logEvery         int
	hiddenActivation string
	normalNoise      bool
}

var config Config

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	flag.StringVar(&config.dataPath, "data", "saved_data/data_tower.pickle", "Path to pickled segments")
	flag.StringVar(&config.model, "model", "all", "Pipeline to run: gan, dcgan or all")
	flag.IntVar(&config.steps, "steps", 0, "Number of training steps (0 means default of the pipeline)")
	flag.Int64Var(&config.seed, "seed", 1, "Seed for shuffling, initialization and noise")
	flag.StringVar(&config.figsPath, "figs", "figs", "Directory for sample grids and loss curves")
	flag.IntVar(&config.logEvery, "log-every", 0, "Report losses every N steps (0 means default of the pipeline)")
	flag.StringVar(&config.hiddenActivation, "hidden-activation", "tanh", "Activation of GAN generator's hidden layer: tanh or relu")
	flag.BoolVar(&config.normalNoise, "normal-noise", false, "Sample noise from standard normal distribution instead of uniform [-1, 1)")
	flag.Parse()

	log.Printf("%+v", config)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err = run(ctx)
	if err != nil {
		log.Println(err)
		stop()
		os.Exit(1)
	}
}
