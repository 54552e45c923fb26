package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"fpsched/internal/dvs"
	"fpsched/internal/sched"
	"fpsched/internal/sim"
	"fpsched/internal/taskgen"
	"fpsched/internal/taskio"
)

// runSpecial runs every heuristic on the fixed reference set, prints the
// resulting frequency assignment and, when a simulation length is
// configured, writes a CSV trace of each result.
func runSpecial(ctx context.Context, cfg sched.Config, levels dvs.Levels, rng *rand.Rand, log *logrus.Entry) error {
	e := cfg.Experiment
	ts := taskgen.Special(levels, cfg.MaxResp)
	taskio.Fprint(os.Stdout, ts, levels)
	fmt.Printf("energy at full speed %f\n\n", levels.Energy(ts))

	opt := dvs.NewOptimizer(levels, log.WithField("component", "dvs"))
	for _, h := range heuristics(opt) {
		res := h.run(ts)
		fmt.Printf("%s\n", h.name)
		taskio.Fprint(os.Stdout, res, levels)
		fmt.Printf("energy %f\n", levels.AveragePower(res))

		if e.SimEnd == 0 {
			fmt.Println()
			continue
		}
		s := sim.New(res, sim.Options{
			End:    e.SimEnd,
			Scales: levels,
			Rand:   rng,
			Log:    log.WithField("component", "sim"),
		})
		if err := os.MkdirAll(e.OutDir, 0o755); err != nil {
			return errors.Wrap(err, "create output directory")
		}
		if err := s.EnableCSVLogging(filepath.Join(e.OutDir, "special_"+h.name+".csv")); err != nil {
			return err
		}
		r, err := s.Run(ctx)
		if err != nil {
			return errors.Wrapf(err, "simulate %s result", h.name)
		}
		fmt.Printf("simulated: hits %d  misses %d  preemptions %d  average power %f\n\n",
			r.Hits, r.Misses, r.Preemptions, r.AveragePower())
	}
	return nil
}

// analyzeFile loads a task set, reports its schedulability and critical
// scale, and optionally runs one of the priority searches on it.
func analyzeFile(cfg sched.Config, rng *rand.Rand, path, analysis, search string, log *logrus.Entry) error {
	p := taskio.LoadParams(cfg.MaxResp)
	if analysis != "" {
		a, err := sched.ParseAnalysis(analysis)
		if err != nil {
			return err
		}
		p.Analysis = a
	}
	ts, err := taskio.Load(path, p)
	if err != nil {
		return err
	}
	if err := ts.Analysis.Check(ts); err != nil {
		return errors.Wrapf(err, "%s cannot analyze %s", ts.Analysis, path)
	}

	report := func(ts *sched.TaskSet) {
		n := ts.Feasible(true)
		taskio.Fprint(os.Stdout, ts, nil)
		fmt.Printf("%d / %d tasks schedulable", n, ts.N())
		if n == ts.N() {
			fmt.Printf(", critical scale %f", ts.CriticalScale())
		}
		fmt.Println()
	}
	report(ts)

	pt := ts.Analysis.UsesPreemptThresholds()
	s := sched.NewSearch(cfg, rng, log.WithField("component", "search"))
	switch search {
	case "":
		return nil
	case "anneal":
		if !pt {
			return errors.Errorf("%s does not model preemption thresholds", ts.Analysis)
		}
		res, ok := s.AnnealPrioritiesAndThresholds(ts, true)
		if !ok {
			fmt.Println("annealing found no feasible assignment")
		}
		report(res)
	case "insensitivity":
		if !ts.IsFeasible() {
			return errors.New("insensitivity search needs a feasible set")
		}
		report(s.MaximizeInsensitivityByAnnealing(ts, pt, pt))
	case "threads":
		if !pt {
			return errors.Errorf("%s does not model preemption thresholds", ts.Analysis)
		}
		if !ts.IsFeasible() {
			return errors.New("thread search needs a feasible set")
		}
		r := s.MinimizeThreadsByAnnealing(ts, true)
		for k, b := range r.Best {
			if b != nil {
				fmt.Printf("%d threads: critical scale %f\n", k, r.Scale[k])
			}
		}
		if k := r.MostRobust(); k != -1 {
			report(r.Best[k])
		}
	case "greedy":
		report(s.Greedy(ts))
	case "exhaustive":
		res := s.Exhaustive(ts)
		if res == nil {
			fmt.Println("no feasible priority assignment")
			return nil
		}
		report(res)
	default:
		return errors.Errorf("unknown search %q", search)
	}
	return nil
}
