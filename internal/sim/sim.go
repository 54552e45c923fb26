// internal/sim/sim.go

package sim

import (
	"context"
	"encoding/csv"
	"math"
	"math/rand"
	"os"
	"strconv"

	"github.com/emirpasic/gods/trees/redblacktree"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"fpsched/internal/sched"
)

// ErrBoundExceeded is returned when a task set the analysis calls
// schedulable shows a longer response time in simulation.
var ErrBoundExceeded = errors.New("simulated response time exceeds analytic bound")

// phaseTimes is the expected number of phase shifts per task over a run.
const phaseTimes = 10

// Options tune a simulation run.
type Options struct {
	End     sched.Time // stop once virtual time reaches End
	Overrun float64    // every job runs C + Overrun*C
	// Scales is the frequency table used for energy accounting; task Freq
	// indexes it and the idle processor runs at Scales[0]. Nil disables
	// energy accounting.
	Scales []float64
	Trace  bool // keep every log record in Result.Trace
	Rand   *rand.Rand
	Log    *logrus.Entry
}

type runState int

const (
	expired runState = iota
	ready
	running
)

type taskState struct {
	sched.Task
	state       runState
	effP        int
	budget      sched.Time
	cur         int   // arena index of the job being served, -1 if none
	deferred    []int // released jobs waiting for cur, oldest first
	lastArrival sched.Time
	phaseProb   float64

	maxResp   sched.Time
	timeOfMax sched.Time
	maxSeen   int
}

type instance struct {
	arrival   sched.Time
	deferred  bool
	completed bool
	missed    bool
}

// TaskStats summarizes one task after a run.
type TaskStats struct {
	Name        string
	Analytic    sched.Time // worst-case response from the bound analysis
	Schedulable bool
	MaxResponse sched.Time // longest simulated response
	TimeOfMax   sched.Time // when MaxResponse was first seen, -1 if never
	MaxSeen     int        // how often MaxResponse was seen
}

// Result is what a run observed.
type Result struct {
	Tasks       []TaskStats
	Hits        int
	Misses      int
	Preemptions int
	Energy      float64
	End         sched.Time
	Events      int64
	Trace       []Record
}

// AveragePower is energy per unit of simulated time.
func (r *Result) AveragePower() float64 {
	if r.End <= 0 {
		return 0
	}
	return r.Energy / float64(r.End)
}

// Simulator runs a single-processor fixed-priority schedule with preemption
// thresholds in virtual time.
type Simulator struct {
	ts    *sched.TaskSet
	opt   Options
	rng   *rand.Rand
	log   *logrus.Entry
	clock Clock

	rbt   *redblacktree.Tree // pending events ordered by (time, seq)
	seq   uint64
	tasks []taskState
	arena []instance
	free  []int

	current        int // index of the running task, -1 when idle
	lastReschedule sched.Time
	lastRecord     sched.Time

	hits, misses, preemptions int
	energy                    float64
	trace                     []Record

	// logging-related
	csvFile   *os.File
	csvWriter *csv.Writer
}

// New prepares a simulation of a copy of ts; ts itself is never modified.
func New(ts *sched.TaskSet, opt Options) *Simulator {
	mustf(opt.End > 0, "end time %d must be positive", opt.End)
	mustf(opt.Overrun >= 0, "negative overrun %f", opt.Overrun)
	if opt.Rand == nil {
		opt.Rand = rand.New(rand.NewSource(1))
	}
	if opt.Log == nil {
		opt.Log = logrus.WithField("component", "sim")
	}
	return &Simulator{
		ts:      ts.Clone(),
		opt:     opt,
		rng:     opt.Rand,
		log:     opt.Log,
		rbt:     redblacktree.NewWith(cmp),
		current: -1,
	}
}

// EnableCSVLogging opens the given file path for CSV logging of the
// execution trace. Must be called before Run().
func (s *Simulator) EnableCSVLogging(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create sim log %s", path)
	}
	w := csv.NewWriter(f)

	// write header
	if err := w.Write([]string{"event", "task", "time", "until"}); err != nil {
		f.Close()
		return errors.Wrap(err, "write sim log header")
	}
	s.csvFile = f
	s.csvWriter = w
	return nil
}

// Run simulates until Options.End and cross-checks the observed response
// times against the bound analysis. It returns ErrBoundExceeded (wrapped)
// when a schedulable set without overrun is seen to respond later than its
// analytic bound.
func (s *Simulator) Run(ctx context.Context) (*Result, error) {
	if s.csvFile != nil {
		defer s.csvFile.Close()
	}

	n := s.ts.N()
	s.tasks = make([]taskState, n)
	for i, t := range s.ts.Tasks {
		mustf(t.P >= 0 && t.P < n, "task %s priority %d out of range", t.Name, t.P)
		mustf(t.PT >= 0 && t.PT < n, "task %s threshold %d out of range", t.Name, t.PT)
		s.tasks[i] = taskState{
			Task:      t,
			state:     expired,
			effP:      t.P,
			cur:       -1,
			timeOfMax: -1,
			phaseProb: float64(t.T) / float64(s.opt.End) * phaseTimes,
		}
		s.push(0, event{kind: EventArrive, task: i, inst: -1})
		s.emit(Record{Kind: RecordPri, Task: t.Name, Time: sched.Time(t.P)})
	}
	s.emit(Record{Kind: RecordPri, Task: "idle", Time: sched.Time(n)})

	for s.clock.Now() < s.opt.End {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		node := s.rbt.Left()
		mustf(node != nil, "event queue ran dry at %d", s.clock.Now())
		key := node.Key.(nodeKey)
		ev := node.Value.(event)
		s.rbt.Remove(key)

		s.clock.Advance(key.at)
		s.process(ev)
	}

	if s.csvWriter != nil {
		s.csvWriter.Flush()
		if err := s.csvWriter.Error(); err != nil {
			return nil, errors.Wrap(err, "write sim log")
		}
	}
	return s.report()
}

func (s *Simulator) report() (*Result, error) {
	ref := s.ts.Clone()
	ref.Feasible(true)

	res := &Result{
		Tasks:       make([]TaskStats, len(s.tasks)),
		Hits:        s.hits,
		Misses:      s.misses,
		Preemptions: s.preemptions,
		Energy:      s.energy,
		End:         s.clock.Now(),
		Events:      s.clock.Count(),
		Trace:       s.trace,
	}
	allSchedulable := true
	for i, st := range s.tasks {
		res.Tasks[i] = TaskStats{
			Name:        st.Name,
			Analytic:    ref.Tasks[i].R,
			Schedulable: ref.Tasks[i].S == 1,
			MaxResponse: st.maxResp,
			TimeOfMax:   st.timeOfMax,
			MaxSeen:     st.maxSeen,
		}
		if ref.Tasks[i].S != 1 {
			allSchedulable = false
		}
		s.log.WithFields(logrus.Fields{
			"task":     st.Name,
			"analytic": ref.Tasks[i].R,
			"sim":      st.maxResp,
			"at":       st.timeOfMax,
			"seen":     st.maxSeen,
		}).Debug("max response time")
	}

	s.log.WithFields(logrus.Fields{
		"end":         res.End,
		"hits":        res.Hits,
		"misses":      res.Misses,
		"preemptions": res.Preemptions,
		"energy":      res.Energy,
	}).Info("simulation finished")

	if allSchedulable && s.opt.Overrun == 0 {
		for _, ts := range res.Tasks {
			if ts.MaxResponse > ts.Analytic {
				return res, errors.Wrapf(ErrBoundExceeded, "%s: task %s responded in %d, bound %d",
					s.ts.Name, ts.Name, ts.MaxResponse, ts.Analytic)
			}
		}
	}
	return res, nil
}

func (s *Simulator) push(at sched.Time, ev event) {
	s.seq++
	s.rbt.Put(nodeKey{at: at, seq: s.seq}, ev)
}

func (s *Simulator) process(ev event) {
	switch ev.kind {
	case EventArrive:
		s.arrive(ev.task)
	case EventExpire:
		s.reschedule()
	case EventRelease:
		s.release(ev.task, ev.inst)
	case EventDeadline:
		s.deadline(ev.task, ev.inst)
	default:
		mustf(false, "unknown event %v", ev.kind)
	}
}

func (s *Simulator) newInstance() int {
	inst := instance{arrival: s.clock.Now()}
	if n := len(s.free); n > 0 {
		i := s.free[n-1]
		s.free = s.free[:n-1]
		s.arena[i] = inst
		return i
	}
	s.arena = append(s.arena, inst)
	return len(s.arena) - 1
}

func (s *Simulator) freeInstance(i int) { s.free = append(s.free, i) }

func (s *Simulator) scale(freq int) float64 {
	if freq >= 0 && freq < len(s.opt.Scales) {
		return s.opt.Scales[freq]
	}
	return s.opt.Scales[len(s.opt.Scales)-1]
}

// recordRuntime closes the interval since the last record and charges its
// energy to task t (-1 is the idle processor).
func (s *Simulator) recordRuntime(t int) {
	now := s.clock.Now()
	if s.lastRecord != now {
		name := "idle"
		if t >= 0 {
			name = s.tasks[t].Name
		}
		if s.opt.Scales != nil {
			f := s.opt.Scales[0]
			if t >= 0 {
				f = s.scale(s.tasks[t].Freq)
			}
			s.energy += float64(now-s.lastRecord) * math.Pow(f, 3)
		}
		s.emit(Record{Kind: RecordRun, Task: name, Time: s.lastRecord, Until: now})
	}
	s.lastRecord = now
}

func (s *Simulator) dispatch(next int) {
	if s.current != -1 {
		s.tasks[s.current].state = ready
		s.preemptions++
	}
	s.recordRuntime(s.current)
	s.current = next
	t := &s.tasks[next]
	t.state = running
	s.push(s.clock.Now()+t.budget, event{kind: EventExpire, task: next, inst: -1})
}

func (s *Simulator) runInstance(t, inst int) {
	st := &s.tasks[t]
	st.cur = inst
	st.budget = st.C + sched.Time(s.opt.Overrun*float64(st.C))
	st.state = ready
	s.emit(Record{Kind: RecordRelease, Task: st.Name, Time: s.clock.Now()})
}

// accounting charges the running task for the time since the last
// reschedule and retires its job when the budget is spent.
func (s *Simulator) accounting() {
	if s.current == -1 {
		return
	}
	now := s.clock.Now()
	c := &s.tasks[s.current]
	mustf(c.state == running, "task %s is current but not running", c.Name)
	mustf(c.cur != -1, "task %s is running without a job", c.Name)

	spent := now - s.lastReschedule
	c.budget -= spent
	mustf(c.budget >= 0, "task %s overspent its budget", c.Name)

	// a job that has started runs at its threshold
	if spent > 0 {
		c.effP = c.PT
	}
	if c.budget != 0 {
		return
	}

	resp := now - s.arena[c.cur].arrival
	if s.arena[c.cur].missed {
		s.emit(Record{Kind: RecordMissed, Task: c.Name, Time: now})
		s.freeInstance(c.cur)
	} else {
		s.emit(Record{Kind: RecordCompleted, Task: c.Name, Time: now})
		s.arena[c.cur].completed = true
	}
	c.cur = -1
	c.effP = c.P

	if resp >= c.maxResp {
		if resp == c.maxResp {
			c.maxSeen++
		} else {
			c.maxResp = resp
			c.timeOfMax = now
			c.maxSeen = 1
		}
	}

	if len(c.deferred) > 0 {
		next := c.deferred[0]
		c.deferred = c.deferred[1:]
		mustf(s.arena[next].deferred, "queued job of %s is not deferred", c.Name)
		s.arena[next].deferred = false
		s.runInstance(s.current, next)
		s.push(now, event{kind: EventExpire, task: s.current, inst: -1})
	} else {
		c.state = expired
	}
	s.recordRuntime(s.current)
	s.current = -1
}

func (s *Simulator) reschedule() {
	s.accounting()

	cand := -1
	for i := range s.tasks {
		t := &s.tasks[i]
		if t.state != ready {
			continue
		}
		if cand == -1 || t.effP < s.tasks[cand].effP {
			cand = i
			continue
		}
		// on a tie a boosted task beats an unboosted one
		c := &s.tasks[cand]
		if t.effP == c.effP && t.effP != t.P && c.effP == c.P {
			cand = i
		}
	}

	if cand != -1 && (s.current == -1 || s.tasks[cand].effP < s.tasks[s.current].effP) {
		s.dispatch(cand)
	}
	s.lastReschedule = s.clock.Now()
}

func (s *Simulator) arrive(t int) {
	now := s.clock.Now()
	st := &s.tasks[t]
	inst := s.newInstance()

	s.reschedule()

	s.push(now+st.D, event{kind: EventDeadline, task: t, inst: inst})

	var shift sched.Time
	if s.rng.Float64() < st.phaseProb {
		if s.rng.Float64() < 0.2 {
			shift = sched.Time(s.rng.Int63n(int64(st.T)))
		} else {
			shift = sched.Time(s.rng.Int63n(int64(st.T))) / 5
		}
	}
	s.push(now+st.T+shift, event{kind: EventArrive, task: t, inst: -1})

	var at sched.Time
	switch r := s.rng.Float64(); {
	case r < 0.33:
		at = now
	case r < 0.66:
		at = now + st.J
	default:
		at = now + sched.Time(s.rng.Int63n(int64(st.J)+1))
	}
	// jobs of one task are released in arrival order
	if at < st.lastArrival {
		at = st.lastArrival
	}
	st.lastArrival = at + 1
	s.push(at, event{kind: EventRelease, task: t, inst: inst})
}

func (s *Simulator) deadline(t, inst int) {
	s.emit(Record{Kind: RecordDeadline, Task: s.tasks[t].Name, Time: s.clock.Now()})
	if s.arena[inst].completed {
		s.freeInstance(inst)
		s.hits++
		return
	}
	s.arena[inst].missed = true
	s.misses++
}

func (s *Simulator) release(t, inst int) {
	st := &s.tasks[t]
	if st.cur != -1 {
		mustf(!s.arena[inst].deferred, "job of %s deferred twice", st.Name)
		s.arena[inst].deferred = true
		st.deferred = append(st.deferred, inst)
		return
	}
	s.runInstance(t, inst)
	s.reschedule()
}

func (s *Simulator) emit(r Record) {
	if s.opt.Trace {
		s.trace = append(s.trace, r)
	}
	if s.csvWriter == nil {
		return
	}
	rec := []string{r.Kind.String(), r.Task, strconv.FormatInt(int64(r.Time), 10), ""}
	if r.Kind == RecordRun {
		rec[3] = strconv.FormatInt(int64(r.Until), 10)
	}
	// errors surface through csv.Writer.Error at the end of Run
	_ = s.csvWriter.Write(rec)
}

func mustf(cond bool, format string, args ...any) {
	if !cond {
		panic(errors.Errorf("sim: "+format, args...))
	}
}
