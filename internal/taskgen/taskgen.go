// Package taskgen builds random task sets for experiments.
package taskgen

import (
	"fmt"
	"math/rand"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"fpsched/internal/dvs"
	"fpsched/internal/sched"
)

// JitterMode selects how release jitter is sprinkled over a random set.
type JitterMode int

const (
	NoJitter JitterMode = iota
	OneTaskJitter
	RandomJitter
)

// Spec describes the sets to generate.
type Spec struct {
	Num                  int // numbers the set name
	Tasks                int
	MaxDeadline          sched.Time
	Multiplier           sched.Time // C, T, D and J are multiples of it
	Analysis             sched.AnalysisKind
	MaxResp              sched.Time
	Utilization          float64 // target for WithUtilization; 0 uses the default spread
	Jitter               JitterMode
	IndependentDeadlines bool // draw T separately instead of T = D

	// Levels, when set, makes every task a DVS task at full speed.
	Levels dvs.Levels
}

func (s Spec) check() {
	mustf(s.Tasks > 0, "need at least one task")
	mustf(s.Multiplier > 0, "multiplier must be positive")
	mustf(s.MaxDeadline >= sched.Time(s.Tasks), "cannot draw %d distinct deadlines below %d", s.Tasks, s.MaxDeadline)
	mustf(s.Utilization >= 0, "negative utilization %f", s.Utilization)
}

// Generator draws task sets from its own random stream.
type Generator struct {
	rng *rand.Rand
	log *logrus.Entry
}

// New returns a Generator. A nil log falls back to the standard logger.
func New(rng *rand.Rand, log *logrus.Entry) *Generator {
	if log == nil {
		log = logrus.WithField("component", "taskgen")
	}
	return &Generator{rng: rng, log: log}
}

func (g *Generator) params(s Spec, tclk sched.Time) sched.Params {
	return sched.Params{
		Name:        fmt.Sprintf("random_task_set_%d", s.Num),
		MaxTasks:    s.Tasks,
		MaxSems:     25,
		MaxLocks:    25,
		MaxClusters: s.Tasks,
		Tclk:        tclk,
		Analysis:    s.Analysis,
		MaxResp:     s.MaxResp,
	}
}

func (g *Generator) randTime(n sched.Time) sched.Time {
	return sched.Time(g.rng.Int63n(int64(n)))
}

// draw picks a deadline not used yet and the matching period.
func (g *Generator) draw(s Spec, used map[sched.Time]bool) (D, T sched.Time) {
	for {
		D = g.randTime(s.MaxDeadline) + s.Multiplier
		if !used[D] {
			break
		}
	}
	used[D] = true
	T = D
	if s.IndependentDeadlines {
		T = g.randTime(s.MaxDeadline) + s.Multiplier
	}
	return D, T
}

func (g *Generator) jitter(s Spec, T sched.Time) sched.Time {
	if s.Jitter == RandomJitter && g.rng.Float64() < 0.5 {
		return g.randTime(T) / 2
	}
	return 0
}

func (g *Generator) add(ts *sched.TaskSet, s Spec, C, T, D, J sched.Time, name string) {
	m := s.Multiplier
	C, T, D, J = C/m*m, T/m*m, D/m*m, J/m*m
	if s.Levels != nil {
		s.Levels.NewTask(ts, C, T, T, 1, D, J, 0, s.Levels.Max(), name)
		return
	}
	ts.NewTask(C, T, T, 1, D, J, 0, name)
}

func (g *Generator) finish(ts *sched.TaskSet, s Spec) {
	if s.Jitter != OneTaskJitter {
		return
	}
	t := g.rng.Intn(ts.N())
	if half := ts.Tasks[t].T / 2; half > 0 {
		ts.SetJitter(t, g.randTime(half))
	}
}

// Random draws per-task utilizations in [0.1/n, 2/n] and retries until the
// whole set stays below full utilization.
func (g *Generator) Random(s Spec) *sched.TaskSet {
	s.check()
	n := float64(s.Tasks)
	umin, umax := 0.1/n, 2.0/n

	for attempt := 1; ; attempt++ {
		ts := sched.NewTaskSet(g.params(s, 1000))
		used := make(map[sched.Time]bool, s.Tasks)
		for i := 0; i < s.Tasks; i++ {
			var C, T, D sched.Time
			for C < s.Multiplier {
				D, T = g.draw(s, used)
				C = sched.Time((umin + g.rng.Float64()*(umax-umin)) * float64(T))
				if C < s.Multiplier {
					delete(used, D)
				}
			}
			g.add(ts, s, C, T, D, g.jitter(s, T), fmt.Sprintf("t%d", i))
		}
		if ts.Utilization() < 1.0 {
			g.finish(ts, s)
			g.log.WithFields(logrus.Fields{"set": ts.Name, "attempts": attempt, "u": ts.Utilization()}).Debug("random task set")
			return ts
		}
	}
}

// WithUtilization spreads per-task utilizations over
// [1/MaxDeadline, 2·Utilization/n] so the expected total is about
// Utilization. A task whose WCET rounds to zero restarts the whole set.
func (g *Generator) WithUtilization(s Spec) *sched.TaskSet {
	s.check()
	n := float64(s.Tasks)
	umin := 1.0 / float64(s.MaxDeadline)
	umax := 2.0 / n
	if s.Utilization != 0 {
		umax = s.Utilization * 2 / n
	}

next:
	for {
		ts := sched.NewTaskSet(g.params(s, 10000))
		used := make(map[sched.Time]bool, s.Tasks)
		for i := 0; i < s.Tasks; i++ {
			var C, T, D sched.Time
			for C < s.Multiplier {
				D, T = g.draw(s, used)
				C = sched.Time((umin + g.rng.Float64()*(umax-umin)) * float64(T))
				if C == 0 {
					continue next
				}
				if C < s.Multiplier {
					delete(used, D)
				}
			}
			g.add(ts, s, C, T, D, g.jitter(s, T), fmt.Sprintf("t%d", i))
		}
		g.finish(ts, s)
		return ts
	}
}

// FeasibleWithUtilization draws sets with WithUtilization, gives them
// priorities in order, and returns the first one that is feasible. It gives
// up after maxAttempts draws.
func (g *Generator) FeasibleWithUtilization(s Spec, order sched.PriorityOrder, maxAttempts int) (*sched.TaskSet, error) {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ts := g.WithUtilization(s)
		ts.SetPriorities(order)
		if ts.Feasible(true) == ts.N() {
			g.log.WithFields(logrus.Fields{"set": ts.Name, "attempts": attempt, "u": ts.Utilization()}).Debug("feasible random task set")
			return ts, nil
		}
	}
	return nil, errors.Errorf("no feasible set with utilization %.2f in %d attempts", s.Utilization, maxAttempts)
}

// AddRandomCluster groups size tasks that are not in any cluster yet.
func (g *Generator) AddRandomCluster(ts *sched.TaskSet, size int) {
	free := 0
	for i := range ts.Tasks {
		if !ts.InCluster(i) {
			free++
		}
	}
	mustf(size <= free, "only %d unclustered tasks for a cluster of %d", free, size)

	c := ts.NewTaskCluster("random cluster")
	for k := 0; k < size; k++ {
		t := g.rng.Intn(ts.N())
		for ts.InCluster(t) {
			t = g.rng.Intn(ts.N())
		}
		ts.AddToTaskCluster(c, ts.Tasks[t].Name)
	}
	g.log.WithFields(logrus.Fields{"set": ts.Name, "size": size}).Debug("random cluster")
}

// AddRandomBarrier puts a barrier below a random priority.
func (g *Generator) AddRandomBarrier(ts *sched.TaskSet) {
	mustf(ts.N() > 1, "a barrier needs at least two tasks")
	ts.NewTaskBarrier(g.rng.Intn(ts.N() - 1))
}

func mustf(cond bool, format string, args ...any) {
	if !cond {
		panic(errors.Errorf("taskgen: "+format, args...))
	}
}
