package sched

import (
	"os"

	yaml "github.com/goccy/go-yaml"
	"github.com/sirupsen/logrus"
)

// Config mirrors config.yml
type Config struct {
	MaxResp        Time             `yaml:"max_resp"`        // 100000 (by default)
	Anneal         AnnealConfig     `yaml:"anneal"`          // annealing schedule
	GreedyPatience int              `yaml:"greedy_patience"` // 20000 (by default)
	Seed           int64            `yaml:"seed"`            // 0 = seed from the clock
	LogLevel       string           `yaml:"log_level"`       // "info" (by default)
	FreqScales     []float64        `yaml:"freq_scales"`     // DVS frequency table, ascending, last is 1.0
	Experiment     ExperimentConfig `yaml:"experiment"`
}

// AnnealConfig is the schedule shared by every annealing search.
type AnnealConfig struct {
	Max       int     `yaml:"max"`        // trials past the last improvement
	InitTemp  float64 `yaml:"init_temp"`  // acceptance probability of a worse move at start
	TempScale float64 `yaml:"temp_scale"` // per-trial cooling factor
}

// ExperimentConfig drives cmd/fpsched.
type ExperimentConfig struct {
	Tasks       int     `yaml:"tasks"`
	MaxDeadline Time    `yaml:"max_deadline"`
	Multiplier  Time    `yaml:"multiplier"` // WCET and period granularity
	UtilStart   float64 `yaml:"util_start"`
	UtilEnd     float64 `yaml:"util_end"` // exclusive
	UtilStep    float64 `yaml:"util_step"`
	Trials      int     `yaml:"trials"`
	SimEnd      Time    `yaml:"sim_end"` // 0 = skip simulation
	Workers     int     `yaml:"workers"`
	OutDir      string  `yaml:"out_dir"`
}

// If the config file is not found, we use default values
func defaultConfig() Config {
	return Config{
		MaxResp: 100000,
		Anneal: AnnealConfig{
			Max:       10000,
			InitTemp:  0.03,
			TempScale: 0.99,
		},
		GreedyPatience: 20000,
		LogLevel:       "info",
		FreqScales:     []float64{0.1, 0.3, 0.5, 0.7, 0.9, 1.0},
		Experiment: ExperimentConfig{
			Tasks:       10,
			MaxDeadline: 1000,
			Multiplier:  1,
			UtilStart:   0.05,
			UtilEnd:     2.0,
			UtilStep:    0.05,
			Trials:      10,
			SimEnd:      0,
			Workers:     4,
			OutDir:      ".",
		},
	}
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config { return defaultConfig() }

// Load reads YAML and overrides defaults; empty path = defaults only
func Load(path string) Config {
	cfg := defaultConfig()

	if path == "" {
		return cfg
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		logrus.WithError(err).WithField("path", path).Warn("ignoring malformed config")
		return defaultConfig()
	}

	cfg.clamp()
	return cfg
}

// sanity clamps
func (cfg *Config) clamp() {
	def := defaultConfig()
	if cfg.MaxResp <= 0 {
		cfg.MaxResp = def.MaxResp
	}
	if cfg.Anneal.Max <= 0 {
		cfg.Anneal.Max = def.Anneal.Max
	}
	if cfg.Anneal.InitTemp < 0 || cfg.Anneal.InitTemp > 1 {
		cfg.Anneal.InitTemp = def.Anneal.InitTemp
	}
	if cfg.Anneal.TempScale <= 0 || cfg.Anneal.TempScale > 1 {
		cfg.Anneal.TempScale = def.Anneal.TempScale
	}
	if cfg.GreedyPatience <= 0 {
		cfg.GreedyPatience = def.GreedyPatience
	}
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		cfg.LogLevel = def.LogLevel
	}
	if !validScales(cfg.FreqScales) {
		cfg.FreqScales = def.FreqScales
	}

	e, de := &cfg.Experiment, def.Experiment
	if e.Tasks <= 0 {
		e.Tasks = de.Tasks
	}
	// every task needs a distinct deadline
	if e.MaxDeadline < Time(e.Tasks) {
		e.MaxDeadline = max(de.MaxDeadline, Time(e.Tasks))
	}
	if e.Multiplier <= 0 {
		e.Multiplier = de.Multiplier
	}
	if e.UtilStep <= 0 {
		e.UtilStep = de.UtilStep
	}
	if e.UtilStart <= 0 {
		e.UtilStart = de.UtilStart
	}
	if e.UtilEnd <= e.UtilStart {
		e.UtilEnd = e.UtilStart + e.UtilStep
	}
	if e.Trials <= 0 {
		e.Trials = de.Trials
	}
	if e.SimEnd < 0 {
		e.SimEnd = 0
	}
	if e.Workers <= 0 {
		e.Workers = de.Workers
	}
	if e.OutDir == "" {
		e.OutDir = de.OutDir
	}
}

// scales must be strictly increasing in (0, 1] and end at full speed
func validScales(s []float64) bool {
	if len(s) == 0 || s[len(s)-1] != 1.0 {
		return false
	}
	for i, v := range s {
		if v <= 0 || v > 1 || (i > 0 && v <= s[i-1]) {
			return false
		}
	}
	return true
}
