package main

import (
	"context"
	"flag"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/sirupsen/logrus"

	"fpsched/internal/dvs"
	"fpsched/internal/sched"
)

func main() {
	configPath := flag.String("config", "config.yml", "YAML configuration file")
	special := flag.Bool("special", false, "run the DVS heuristics on the fixed ten-task set")
	load := flag.String("load", "", "analyze the task set stored in this file")
	analysis := flag.String("analysis", "", "analysis for -load (default Wang00_fixed)")
	search := flag.String("search", "", "search to run on the -load set: anneal, insensitivity, threads, greedy, exhaustive")
	flag.Parse()

	// Read the configuration
	cfg := sched.Load(*configPath)
	level, _ := logrus.ParseLevel(cfg.LogLevel)
	logrus.SetLevel(level)
	log := logrus.WithField("component", "fpsched")
	log.WithFields(logrus.Fields{"config": *configPath, "seed": cfg.Seed}).Debug("loaded config")

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	levels := dvs.Levels(cfg.FreqScales)
	if err := levels.Validate(); err != nil {
		log.WithError(err).Fatal("bad frequency table")
	}

	var err error
	switch {
	case *load != "":
		err = analyzeFile(cfg, rng, *load, *analysis, *search, log)
	case *special:
		err = runSpecial(ctx, cfg, levels, rng, log)
	default:
		err = runSweep(ctx, cfg, levels, seed, log)
	}
	if err != nil {
		log.WithError(err).Fatal("failed")
	}
}
