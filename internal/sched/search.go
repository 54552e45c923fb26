// internal/sched/search.go

package sched

import (
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"
)

// Search runs the randomized assignment searches. Each trial works on its
// own clone; accepting a trial rebinds the current best, rejecting it drops
// the clone. A Search is not safe for concurrent use because it owns rng.
type Search struct {
	Anneal         AnnealConfig
	GreedyPatience int // consecutive non-improving greedy trials before stopping

	rng *rand.Rand
	log *logrus.Entry
}

// NewSearch builds a Search from cfg. A nil log falls back to the standard
// logger.
func NewSearch(cfg Config, rng *rand.Rand, log *logrus.Entry) *Search {
	if log == nil {
		log = logrus.WithField("component", "search")
	}
	return &Search{
		Anneal:         cfg.Anneal,
		GreedyPatience: cfg.GreedyPatience,
		rng:            rng,
		log:            log,
	}
}

// Rand exposes the generator so callers can share one stream.
func (s *Search) Rand() *rand.Rand { return s.rng }

// threshMode records how thresholds follow priorities in searches that only
// move priorities.
type threshMode int

const (
	keepThresholds threshMode = iota
	followPreemptible
	followNonPreemptible
)

func modeOf(ts *TaskSet) threshMode {
	switch {
	case ts.IsAllPreemptible():
		return followPreemptible
	case ts.IsAllNonPreemptible():
		return followNonPreemptible
	}
	return keepThresholds
}

func (ts *TaskSet) syncThresholds(m threshMode) {
	switch m {
	case followPreemptible:
		ts.MakeAllPreemptible()
	case followNonPreemptible:
		ts.MakeAllNonPreemptible()
	}
}

// lateness energy: sqrt of the summed squared deadline overshoot.
func (ts *TaskSet) latenessEnergy() Time {
	var e float64
	for i := range ts.Tasks {
		l := float64(ts.lateness(i))
		e += l * l
	}
	return Time(math.Sqrt(e))
}

func (ts *TaskSet) mustNotNeedPT() {
	mustf(ts.AreAllTasksInClusters(), "%s has unclustered tasks", ts.Name)
	mustf(!ts.RequiresRuntimePTSupport(), "%s needs run-time threshold support", ts.Name)
	mustf(ts.ConstraintsValid(), "%s breaks its constraints", ts.Name)
}

// neighbour perturbs a threshold-aware candidate.
func (s *Search) neighbour(ts *TaskSet, ptSupport bool) {
	if ptSupport {
		ts.PermutePriAndThresh(s.rng)
		ts.RespectConstraintsRandomly(s.rng)
	} else {
		ts.PermuteNPT(s.rng)
	}
}

// AnnealPrioritiesAndThresholds looks for a feasible priority and threshold
// assignment by annealing on total lateness, starting from deadline-monotonic
// priorities (or cluster order without run-time PT support). It returns the
// first zero-lateness set found, or the best set seen and false.
func (s *Search) AnnealPrioritiesAndThresholds(ts *TaskSet, ptSupport bool) (*TaskSet, bool) {
	ts.mustUsePreemptThresholds()

	best := ts.Clone()
	if ptSupport {
		best.SetPriorities(DeadlineMonotonic)
		best.MakeAllPreemptible()
		best.RespectConstraintsRandomly(s.rng)
	} else {
		mustf(best.AreAllTasksInClusters(), "%s has unclustered tasks", best.Name)
		best.SetPriorities(ByCluster)
		best.SetPreemptionThresholdsNPT()
		best.mustNotNeedPT()
	}
	best.mustBeValid()

	bestEn := best.latenessEnergy()
	if bestEn == 0 {
		best.Feasible(true)
		return best, true
	}

	temp := s.Anneal.InitTemp
	last := 0
	i := 0
	for ; i < last+s.Anneal.Max; i++ {
		cand := best.Clone()
		s.neighbour(cand, ptSupport)
		en := cand.latenessEnergy()

		if i%1000 == 0 {
			s.log.WithFields(logrus.Fields{"trial": i, "best": bestEn, "new": en, "temp": temp}).Debug("anneal priorities and thresholds")
		}

		if en == 0 {
			if !ptSupport {
				cand.mustNotNeedPT()
			}
			mustf(cand.Feasible(true) == cand.N(), "zero-lateness set %s is not feasible", cand.Name)
			s.log.WithFields(logrus.Fields{"trial": i}).Info("found feasible assignment")
			return cand, true
		}
		if en <= bestEn || s.rng.Float64() < temp {
			if en < bestEn {
				last = i
			}
			bestEn, best = en, cand
		}
		temp *= s.Anneal.TempScale
	}

	s.log.WithFields(logrus.Fields{"trials": i, "temp": temp, "energy": bestEn}).Info("annealing gave up")
	best.Feasible(true)
	return best, false
}

// MaximizeInsensitivityByAnnealing anneals on the critical scaling factor.
// With pt the search moves thresholds too (cluster-preserving moves when
// ptSupport is false); without it only priorities move and thresholds follow
// the set's all-preemptible or all-non-preemptible mode.
func (s *Search) MaximizeInsensitivityByAnnealing(ts *TaskSet, pt, ptSupport bool) *TaskSet {
	if pt {
		ts.mustUsePreemptThresholds()
	}
	ts.mustBeValid()

	best := ts.Clone()
	if ptSupport {
		best.RespectConstraintsRandomly(s.rng)
	} else {
		mustf(!pt || best.AreAllTasksInClusters(), "%s has unclustered tasks", best.Name)
	}

	mode := keepThresholds
	if !pt {
		mustf(!ptSupport, "run-time threshold support needs threshold moves")
		mode = modeOf(best)
		mustf(mode != keepThresholds, "%s mixes preemptible and non-preemptible tasks", best.Name)
	}

	bestBD := best.CriticalScale()
	temp := s.Anneal.InitTemp
	last, improvements := 0, 0
	i := 0
	for ; i < last+s.Anneal.Max; i++ {
		cand := best.Clone()
		if pt {
			s.neighbour(cand, ptSupport)
		} else {
			cand.PermutePri(s.rng)
			cand.syncThresholds(mode)
		}

		if i%1000 == 0 {
			s.log.WithFields(logrus.Fields{"trial": i, "best": bestBD, "temp": temp}).Debug("anneal insensitivity")
		}

		if cand.IsFeasible() &&
			(cand.FeasibleAtScale(bestBD) ||
				(s.rng.Float64() < temp && cand.FeasibleAtScale(1+(bestBD-1)/2))) {
			bd := cand.CriticalScale()
			if bd > bestBD {
				last = i
				improvements++
			}
			mustf(bd >= 1.0, "accepted a set with critical scale %f", bd)
			bestBD, best = bd, cand
		}
		temp *= s.Anneal.TempScale
	}

	s.log.WithFields(logrus.Fields{
		"trials":       i,
		"temp":         temp,
		"last":         last,
		"improvements": improvements,
		"scale":        bestBD,
	}).Info("insensitivity annealing done")
	return best
}

// ThreadSearchResult collects, per thread count, the most robust set seen.
type ThreadSearchResult struct {
	Best  []*TaskSet // index = thread count; nil when never seen
	Scale []float64  // critical scale of Best[k]
}

func newThreadSearchResult(n int) *ThreadSearchResult {
	return &ThreadSearchResult{Best: make([]*TaskSet, n+1), Scale: make([]float64, n+1)}
}

func (r *ThreadSearchResult) offer(threads int, cs float64, ts *TaskSet) {
	if cs > r.Scale[threads] {
		r.Scale[threads] = cs
		r.Best[threads] = ts.Clone()
	}
}

// FewestThreads returns the smallest thread count with a recorded set, or -1.
func (r *ThreadSearchResult) FewestThreads() int {
	for k := 1; k < len(r.Best); k++ {
		if r.Best[k] != nil {
			return k
		}
	}
	return -1
}

// MostRobust returns the thread count whose best set has the largest
// critical scale, or -1.
func (r *ThreadSearchResult) MostRobust() int {
	best := -1
	for k := 1; k < len(r.Best); k++ {
		if r.Best[k] != nil && (best == -1 || r.Scale[k] > r.Scale[best]) {
			best = k
		}
	}
	return best
}

// MinimizeThreadsByAnnealing anneals a feasible assignment toward fewer
// threads, remembering the most robust set for every thread count seen.
func (s *Search) MinimizeThreadsByAnnealing(ts *TaskSet, ptSupport bool) *ThreadSearchResult {
	ts.mustUsePreemptThresholds()
	ts.mustBeValid()
	if !ptSupport {
		ts.mustNotNeedPT()
	}

	res := newThreadSearchResult(ts.N())
	s.annealThreadsOrCS(ts.Clone(), -1, res, ptSupport)

	fewest := res.FewestThreads()
	mustf(fewest != -1 && res.Best[fewest].IsFeasible(), "thread search found nothing feasible")
	s.log.WithFields(logrus.Fields{
		"fewest":       fewest,
		"fewest_scale": res.Scale[fewest],
		"robust":       res.MostRobust(),
		"pt_support":   ptSupport,
	}).Info("thread minimization done")
	return res
}

// annealThreadsOrCS minimizes the thread count when target is -1, otherwise
// maximizes the critical scale among sets with exactly target threads.
func (s *Search) annealThreadsOrCS(start *TaskSet, target int, res *ThreadSearchResult, ptSupport bool) {
	bestThr := start.OptimalPartitionIntoThreads()
	mustf(target == -1 || target == bestThr, "start has %d threads, want %d", bestThr, target)
	mustf(start.IsFeasible(), "%s is not feasible", start.Name)

	best := start
	bestCS := best.CriticalScale()
	if !ptSupport {
		best.mustNotNeedPT()
	}
	res.offer(bestThr, bestCS, best)

	temp := s.Anneal.InitTemp
	last := 0
	for i := 0; i < last+s.Anneal.Max; i++ {
		cand := best.Clone()
		if i != 0 {
			s.neighbour(cand, ptSupport)
		}
		if !cand.IsFeasible() {
			temp *= s.Anneal.TempScale
			continue
		}
		if target == -1 && ptSupport {
			cand.MaximizePreemptThresholds()
		}
		thr := cand.OptimalPartitionIntoThreads()
		mustf(thr > 0 && thr <= cand.N(), "partition returned %d threads", thr)
		cs := cand.CriticalScale()
		res.offer(thr, cs, cand)

		var accept bool
		if target == -1 {
			accept = thr < bestThr || s.rng.Float64() < temp
		} else {
			accept = thr == target && (cs > bestCS || s.rng.Float64() < temp)
		}
		if accept {
			last = i
			bestThr, bestCS, best = thr, cs, cand
		}
		temp *= s.Anneal.TempScale
	}

	mustf(bestCS <= res.Scale[bestThr], "best scale not recorded")
}

// Greedy keeps random priority moves that strictly raise the critical scale
// and stops after GreedyPatience consecutive failures.
func (s *Search) Greedy(ts *TaskSet) *TaskSet {
	mode := modeOf(ts)
	best := ts.Clone()
	bestBD := best.CriticalScale()

	tested := 0
	for count := 0; count < s.GreedyPatience; {
		cand := best.Clone()
		cand.PermutePri(s.rng)
		cand.syncThresholds(mode)
		count++
		tested++
		if !cand.Analysis.Valid(cand) {
			continue
		}
		if bd := cand.CriticalScale(); bd > bestBD {
			bestBD, best, count = bd, cand, 0
		}
	}

	s.log.WithFields(logrus.Fields{"tested": tested, "scale": bestBD}).Info("greedy search done")
	return best
}

// Exhaustive returns the priority permutation with the largest critical
// scale, thresholds following the input's mode. It visits all n!
// permutations and is only meant as a reference for small sets. Returns nil
// when the analysis accepts no permutation.
func (s *Search) Exhaustive(ts *TaskSet) *TaskSet {
	mode := modeOf(ts)
	work := ts.Clone()
	n := work.N()

	var best *TaskSet
	bestBD := -1.0
	total := 0

	used := make([]bool, n)
	var pick func(t int)
	pick = func(t int) {
		for p := 0; p < n; p++ {
			if used[p] {
				continue
			}
			used[p] = true
			work.Tasks[t].P = p
			if t < n-1 {
				pick(t + 1)
			} else {
				total++
				work.syncThresholds(mode)
				if work.Analysis.Valid(work) {
					if bd := work.CriticalScale(); bd > bestBD {
						bestBD, best = bd, work.Clone()
					}
				}
			}
			used[p] = false
		}
	}
	pick(0)

	s.log.WithFields(logrus.Fields{"tested": total, "scale": bestBD}).Info("exhaustive search done")
	return best
}
