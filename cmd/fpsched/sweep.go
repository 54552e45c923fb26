package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"

	"github.com/montanaflynn/stats"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"fpsched/internal/dvs"
	"fpsched/internal/sched"
	"fpsched/internal/sim"
	"fpsched/internal/taskgen"
)

// draws per trial before a utilization point is given up on
const maxDraws = 100000

type heuristic struct {
	name string
	run  func(*sched.TaskSet) *sched.TaskSet
}

func heuristics(o *dvs.Optimizer) []heuristic {
	return []heuristic{
		{"fp_ptdvs", o.FPPTDVS},
		{"ee_fppt", o.EEFPPT},
		{"greedy", o.Greedy},
	}
}

// outcome of one trial, indexed like heuristics()
type outcome struct {
	u         float64
	energy    []float64
	simEnergy []float64
	preempts  []int
}

func runSweep(ctx context.Context, cfg sched.Config, levels dvs.Levels, seed int64, log *logrus.Entry) error {
	e := cfg.Experiment
	if err := os.MkdirAll(e.OutDir, 0o755); err != nil {
		return errors.Wrap(err, "create output directory")
	}

	opt := dvs.NewOptimizer(levels, log.WithField("component", "dvs"))
	hs := heuristics(opt)

	files := make([]*os.File, len(hs))
	for i, h := range hs {
		f, err := os.Create(filepath.Join(e.OutDir, h.name+".power"))
		if err != nil {
			return errors.Wrapf(err, "create %s output", h.name)
		}
		defer f.Close()
		files[i] = f
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"U", "Heuristic", "Sets", "Mean energy", "Median energy", "Mean sim energy", "Preemptions"})

	for k := 0; ; k++ {
		u := e.UtilStart + float64(k)*e.UtilStep
		if u >= e.UtilEnd-1e-9 {
			break
		}
		outs, err := runTrials(ctx, cfg, opt, hs, u, seed+int64(k)*int64(e.Trials), log)
		if err != nil {
			return err
		}

		for i, h := range hs {
			var energy, simEnergy []float64
			preempts := 0
			for _, o := range outs {
				if o == nil {
					continue
				}
				energy = append(energy, o.energy[i])
				simEnergy = append(simEnergy, o.simEnergy[i])
				preempts += o.preempts[i]
				fmt.Fprintf(files[i], "u = %.2f\tenergy = %f\tsim_energy = %f\tpreemptions = %d\n",
					o.u, o.energy[i], o.simEnergy[i], o.preempts[i])
			}
			if len(energy) == 0 {
				log.WithFields(logrus.Fields{"u": u, "heuristic": h.name}).Warn("no feasible sets")
				continue
			}
			mean, _ := stats.Mean(energy)
			median, _ := stats.Median(energy)
			simMean, _ := stats.Mean(simEnergy)
			table.Append([]string{
				strconv.FormatFloat(u, 'f', 2, 64),
				h.name,
				strconv.Itoa(len(energy)),
				strconv.FormatFloat(mean, 'f', 2, 64),
				strconv.FormatFloat(median, 'f', 2, 64),
				strconv.FormatFloat(simMean, 'f', 2, 64),
				strconv.Itoa(preempts),
			})
		}
		log.WithField("u", u).Info("utilization point done")
	}

	table.Render()
	return nil
}

// runTrials runs e.Trials independent trials at utilization u. Trial i uses
// its own random stream seeded with seed+i, so results do not depend on
// scheduling. Trials that never draw a feasible set come back nil.
func runTrials(ctx context.Context, cfg sched.Config, opt *dvs.Optimizer, hs []heuristic, u float64, seed int64, log *logrus.Entry) ([]*outcome, error) {
	e := cfg.Experiment
	outs := make([]*outcome, e.Trials)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.Workers)
	for i := 0; i < e.Trials; i++ {
		i := i // per-iteration copy (go directive is 1.21)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(seed + int64(i)))
			gen := taskgen.New(rng, log.WithField("component", "taskgen"))
			spec := taskgen.Spec{
				Num:         i,
				Tasks:       e.Tasks,
				MaxDeadline: e.MaxDeadline,
				Multiplier:  e.Multiplier,
				Analysis:    sched.Wang00Fixed,
				MaxResp:     cfg.MaxResp,
				Utilization: u,
				Levels:      opt.Levels,
			}
			ts, err := gen.FeasibleWithUtilization(spec, sched.DeadlineMonotonic, maxDraws)
			if err != nil {
				log.WithError(err).WithField("trial", i).Debug("skipping trial")
				return nil
			}

			out := &outcome{
				u:         ts.Utilization(),
				energy:    make([]float64, len(hs)),
				simEnergy: make([]float64, len(hs)),
				preempts:  make([]int, len(hs)),
			}
			for j, h := range hs {
				res := h.run(ts)
				out.energy[j] = opt.Levels.AveragePower(res)
				if e.SimEnd == 0 {
					continue
				}
				r, err := sim.New(res, sim.Options{
					End:    e.SimEnd,
					Scales: opt.Levels,
					Rand:   rng,
					Log:    log.WithField("component", "sim"),
				}).Run(ctx)
				if err != nil {
					return errors.Wrapf(err, "%s on %s", h.name, ts.Name)
				}
				out.simEnergy[j] = r.AveragePower()
				out.preempts[j] = r.Preemptions
			}
			outs[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrapf(err, "trials at utilization %.2f", u)
	}
	return outs, nil
}
