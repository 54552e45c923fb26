package dvs

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fpsched/internal/sched"
)

func smallSet(t *testing.T) *sched.TaskSet {
	return newDVSSet(t, DefaultLevels, [2]sched.Time{10, 100}, [2]sched.Time{20, 200}, [2]sched.Time{30, 400})
}

func TestHeuristicsSaveEnergy(t *testing.T) {
	o := NewOptimizer(DefaultLevels, nil)
	runs := map[string]func(*sched.TaskSet) *sched.TaskSet{
		"FP_PTDVS": o.FPPTDVS,
		"EE_FPPT":  o.EEFPPT,
		"GREEDY":   o.Greedy,
	}
	for name, run := range runs {
		t.Run(name, func(t *testing.T) {
			ts := smallSet(t)
			require.True(t, ts.IsFeasible())
			before := ts.Clone()
			full := o.Levels.Energy(ts)

			res := run(ts)
			assert.Equal(t, res.N(), res.Feasible(true), "result must stay feasible")
			assert.Less(t, o.Levels.Energy(res), full)
			for _, task := range res.Tasks {
				assert.LessOrEqual(t, task.PT, task.P, task.Name)
				assert.Equal(t, o.Levels.WCETAt(task.Cu, task.Freq), task.C, task.Name)
			}
			if diff := cmp.Diff(before.Tasks, ts.Tasks); diff != "" {
				t.Errorf("%s modified its input (-want +got):\n%s", name, diff)
			}
		})
	}
}

func TestHeuristicsRejectInfeasibleInput(t *testing.T) {
	o := NewOptimizer(DefaultLevels, nil)
	ts := smallSet(t)
	o.Levels.SetAllLevels(ts, 0)
	require.False(t, ts.IsFeasible())

	assert.Panics(t, func() { o.FPPTDVS(ts) })
	assert.Panics(t, func() { o.EEFPPT(ts) })
	assert.Panics(t, func() { o.Greedy(ts) })
}

func TestLowestLevelForAllTasks(t *testing.T) {
	o := NewOptimizer(DefaultLevels, nil)
	ts := smallSet(t)
	o.LowestLevelForAllTasks(ts)

	f := o.Levels.LevelOf(ts)
	assert.Less(t, f, o.Levels.Max())
	assert.Equal(t, ts.N(), o.Levels.CountAt(ts, f), "all tasks share one level")
	assert.True(t, ts.IsFeasible())

	if f > o.Levels.Min() {
		slower := ts.Clone()
		o.Levels.DecAll(slower)
		assert.False(t, o.MPTA(slower), "one level lower must not be schedulable")
	}
}

func TestLowestEnergyOnSubFreq(t *testing.T) {
	o := NewOptimizer(DefaultLevels, nil)
	ts := smallSet(t)
	o.LowestLevelForAllTasks(ts)
	f := o.Levels.LevelOf(ts)
	require.Greater(t, f, o.Levels.Min())
	before := ts.Clone()

	res := o.LowestEnergyOnSubFreq(ts, f)
	assert.LessOrEqual(t, o.Levels.Energy(res), o.Levels.Energy(ts))
	assert.True(t, res.IsFeasible())
	for _, task := range res.Tasks {
		assert.Contains(t, []int{f, f - 1}, task.Freq, task.Name)
	}
	assert.Equal(t, before.Tasks, ts.Tasks)
}

func TestSpecialSet(t *testing.T) {
	if testing.Short() {
		t.Skip("knapsack over the reference set is slow")
	}
	o := NewOptimizer(DefaultLevels, nil)
	ts := specialSet(t)
	require.True(t, ts.IsFeasible())
	full := o.Levels.Energy(ts)

	for _, res := range []*sched.TaskSet{o.FPPTDVS(ts), o.EEFPPT(ts), o.Greedy(ts)} {
		assert.True(t, res.IsFeasible())
		assert.LessOrEqual(t, o.Levels.Energy(res), full)
	}
}

// specialSet mirrors the reference set built by taskgen, which imports this
// package.
func specialSet(t *testing.T) *sched.TaskSet {
	return newDVSSet(t, DefaultLevels,
		[2]sched.Time{22, 988}, [2]sched.Time{32, 253}, [2]sched.Time{14, 169}, [2]sched.Time{14, 382},
		[2]sched.Time{21, 620}, [2]sched.Time{77, 805}, [2]sched.Time{35, 472}, [2]sched.Time{14, 276},
		[2]sched.Time{86, 781}, [2]sched.Time{84, 839})
}
