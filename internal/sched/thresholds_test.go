package sched

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssignOptimalPreemptionThresholds(t *testing.T) {
	ts := newSet(t, Wang00Fixed, [2]Time{1, 4}, [2]Time{2, 6}, [2]Time{2, 12})
	require.True(t, ts.AssignOptimalPreemptionThresholds())
	for _, task := range ts.Tasks {
		assert.LessOrEqual(t, task.PT, task.P, task.Name)
	}
	assert.Equal(t, 3, ts.Feasible(true))

	assert.Panics(t, func() {
		newSet(t, Audsley92, [2]Time{1, 4}).AssignOptimalPreemptionThresholds()
	})
}

func TestMaximizePreemptThresholdsKeepsFeasibility(t *testing.T) {
	ts := newSet(t, Wang00Fixed, [2]Time{1, 4}, [2]Time{2, 6}, [2]Time{2, 12}, [2]Time{3, 40})
	require.True(t, ts.IsFeasible())
	before := ts.Clone()

	ts.MaximizePreemptThresholds()
	assert.True(t, ts.IsFeasible())
	for i := range ts.Tasks {
		assert.LessOrEqual(t, ts.Tasks[i].PT, before.Tasks[i].PT, ts.Tasks[i].Name)
		assert.Equal(t, before.Tasks[i].P, ts.Tasks[i].P)
	}
}

func TestOptimalPartitionIntoThreads(t *testing.T) {
	ts := newSet(t, Wang00Fixed, [2]Time{1, 4}, [2]Time{2, 6}, [2]Time{2, 12})
	assert.Equal(t, 3, ts.OptimalPartitionIntoThreads())

	ts.MakeAllNonPreemptible()
	assert.Equal(t, 1, ts.OptimalPartitionIntoThreads())
	for _, task := range ts.Tasks {
		assert.Equal(t, 0, task.Thread)
	}
}

func TestExhaustivePrioritiesAndThresholds(t *testing.T) {
	ts := newSet(t, Wang00Fixed, [2]Time{1, 10}, [2]Time{1, 10})
	before := ts.Clone()

	feasible, total := ts.ExhaustiveAssignOptimalPrioritiesAndThresholds()
	assert.Equal(t, 4, total)
	assert.Equal(t, 4, feasible)
	assert.Equal(t, before.Tasks, ts.Tasks)
}

func TestGreedyPrioritiesAndThresholdsWithoutRuntimeSupport(t *testing.T) {
	ts := newSet(t, Wang00Fixed, [2]Time{1, 4}, [2]Time{2, 6}, [2]Time{2, 12})
	require.True(t, ts.GreedyPrioritiesAndThresholds(false))
	assert.True(t, ts.IsPriUnique())
	assert.True(t, ts.ConstraintsValid())
	assert.False(t, ts.RequiresRuntimePTSupport())
}

func TestCriticalScale(t *testing.T) {
	full := newSet(t, Audsley92, [2]Time{10, 10})
	assert.InDelta(t, 1.1, full.CriticalScale(), 1e-4)
	assert.Equal(t, Time(10), full.Tasks[0].C)

	light := newSet(t, Audsley92, [2]Time{1, 10})
	cs, scaled := light.FindCriticalScale()
	assert.Greater(t, cs, 5.0)
	assert.InDelta(t, 11, cs, 1e-4)
	assert.Equal(t, Time(10), scaled.Tasks[0].C)
	assert.Equal(t, Time(1), light.Tasks[0].C)

	assert.True(t, light.FeasibleAtScale(cs))
	assert.False(t, light.FeasibleAtScale(cs+0.01))
}

func TestCriticalScaleOfInfeasibleSet(t *testing.T) {
	ts := newSet(t, Audsley92, [2]Time{3, 4}, [2]Time{2, 4})
	cs := ts.CriticalScale()
	assert.Less(t, cs, 1.0)
	assert.True(t, ts.FeasibleAtScale(cs))
	assert.Equal(t, []Time{3, 2}, ts.WCETs())
}

func TestMaximizeInsensitivityOptimal(t *testing.T) {
	ts := newSet(t, Audsley92, [2]Time{2, 12}, [2]Time{2, 6}, [2]Time{1, 4})
	require.True(t, ts.AssignOptimalPri())

	out := ts.MaximizeInsensitivityOptimal()
	assert.True(t, WCETEqual(ts, out))
	assert.True(t, out.IsFeasible())
	assert.GreaterOrEqual(t, out.CriticalScale(), ts.CriticalScale()-3*Thresh)
}

func TestSpecialSetThresholds(t *testing.T) {
	ts := newSet(t, Audsley92,
		[2]Time{22, 988}, [2]Time{32, 253}, [2]Time{14, 169}, [2]Time{14, 382}, [2]Time{21, 620},
		[2]Time{77, 805}, [2]Time{35, 472}, [2]Time{14, 276}, [2]Time{86, 781}, [2]Time{84, 839})
	require.True(t, ts.IsFeasible())

	ts.SetAnalysis(Wang00Fixed)
	require.True(t, ts.AssignOptimalPreemptionThresholds())
	ts.MaximizePreemptThresholds()
	assert.Equal(t, ts.N(), ts.Feasible(true))
	assert.False(t, ts.IsThreshLowerThanPri(), "no threshold may sit below its priority")
	for _, task := range ts.Tasks {
		assert.GreaterOrEqual(t, task.PT, 0, task.Name)
		assert.LessOrEqual(t, task.PT, task.P, task.Name)
	}
}
