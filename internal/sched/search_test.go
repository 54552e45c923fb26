package sched

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSearch(seed int64) *Search {
	cfg := DefaultConfig()
	cfg.Anneal.Max = 300
	cfg.GreedyPatience = 200
	return NewSearch(cfg, rand.New(rand.NewSource(seed)), nil)
}

func TestAnnealFindsFeasibleAssignment(t *testing.T) {
	ts := newSet(t, Wang00Fixed, [2]Time{2, 12}, [2]Time{1, 4}, [2]Time{2, 6})
	before := ts.Clone()

	res, ok := newTestSearch(1).AnnealPrioritiesAndThresholds(ts, true)
	require.True(t, ok)
	assert.True(t, res.IsFeasible())
	assert.Equal(t, before.Tasks, ts.Tasks, "input must not change")
}

func TestAnnealWithoutRuntimeSupport(t *testing.T) {
	ts := newSet(t, Wang00Fixed, [2]Time{2, 12}, [2]Time{1, 4}, [2]Time{2, 6})
	ts.CreateClustersForSingletons()

	res, ok := newTestSearch(2).AnnealPrioritiesAndThresholds(ts, false)
	require.True(t, ok)
	assert.True(t, res.IsFeasible())
	assert.False(t, res.RequiresRuntimePTSupport())
}

func TestAnnealGivesUpOnOverload(t *testing.T) {
	ts := newSet(t, Wang00Fixed, [2]Time{3, 4}, [2]Time{3, 6}, [2]Time{1, 12})
	res, ok := newTestSearch(3).AnnealPrioritiesAndThresholds(ts, true)
	assert.False(t, ok)
	assert.NotNil(t, res)
	assert.Less(t, res.Feasible(true), res.N())
}

func TestMaximizeInsensitivityByAnnealing(t *testing.T) {
	t.Run("priorities only", func(t *testing.T) {
		ts := newSet(t, Audsley92, [2]Time{1, 4}, [2]Time{2, 6}, [2]Time{2, 12})
		res := newTestSearch(4).MaximizeInsensitivityByAnnealing(ts, false, false)
		assert.True(t, res.IsFeasible())
		assert.True(t, res.IsAllPreemptible())
		assert.GreaterOrEqual(t, res.CriticalScale(), 1.0)
	})
	t.Run("with thresholds", func(t *testing.T) {
		ts := newSet(t, Wang00Fixed, [2]Time{1, 4}, [2]Time{2, 6}, [2]Time{2, 12})
		res := newTestSearch(5).MaximizeInsensitivityByAnnealing(ts, true, true)
		assert.True(t, res.IsFeasible())
		assert.GreaterOrEqual(t, res.CriticalScale(), 1.0)
	})
	t.Run("mixed thresholds rejected", func(t *testing.T) {
		ts := newSet(t, Audsley92, [2]Time{1, 4}, [2]Time{2, 6}, [2]Time{2, 12})
		ts.Analysis = Wang00Fixed
		ts.Tasks[2].PT = 1
		assert.Panics(t, func() { newTestSearch(6).MaximizeInsensitivityByAnnealing(ts, false, false) })
	})
}

func TestMinimizeThreadsByAnnealing(t *testing.T) {
	ts := newSet(t, Wang00Fixed, [2]Time{1, 4}, [2]Time{2, 6}, [2]Time{2, 12}, [2]Time{1, 40})
	res := newTestSearch(7).MinimizeThreadsByAnnealing(ts, true)

	k := res.FewestThreads()
	require.NotEqual(t, -1, k)
	assert.LessOrEqual(t, k, ts.N())
	assert.True(t, res.Best[k].IsFeasible())
	assert.Equal(t, k, res.Best[k].Clone().OptimalPartitionIntoThreads())

	robust := res.MostRobust()
	require.NotEqual(t, -1, robust)
	for i, b := range res.Best {
		if b != nil {
			assert.LessOrEqual(t, res.Scale[i], res.Scale[robust])
		}
	}
}

func TestThreadSearchResult(t *testing.T) {
	ts := newSet(t, Wang00Fixed, [2]Time{1, 4})
	r := newThreadSearchResult(4)
	assert.Equal(t, -1, r.FewestThreads())
	assert.Equal(t, -1, r.MostRobust())

	r.offer(3, 1.5, ts)
	r.offer(2, 1.2, ts)
	r.offer(2, 1.1, ts)
	assert.Equal(t, 2, r.FewestThreads())
	assert.Equal(t, 3, r.MostRobust())
	assert.Equal(t, 1.2, r.Scale[2])

	r.Best[2].Tasks[0].C = 99
	assert.Equal(t, Time(1), ts.Tasks[0].C, "offer stores a copy")
}

func TestGreedyNeverLosesRobustness(t *testing.T) {
	ts := newSet(t, Audsley92, [2]Time{2, 12}, [2]Time{1, 4}, [2]Time{2, 6})
	start := ts.CriticalScale()

	res := newTestSearch(8).Greedy(ts)
	assert.GreaterOrEqual(t, res.CriticalScale(), start)
	assert.True(t, res.IsPriUnique())
	assert.True(t, res.IsAllPreemptible())
}

func TestExhaustive(t *testing.T) {
	ts := newSet(t, Audsley92, [2]Time{2, 12}, [2]Time{1, 4}, [2]Time{2, 6})
	start := ts.CriticalScale()

	best := newTestSearch(9).Exhaustive(ts)
	require.NotNil(t, best)
	assert.GreaterOrEqual(t, best.CriticalScale(), start)
	assert.Equal(t, []int{0, 1, 2}, priorities(ts), "input must not change")

	dm := ts.Clone()
	dm.SetPriorities(DeadlineMonotonic)
	assert.InDelta(t, dm.CriticalScale(), best.CriticalScale(), 1e-9)

	ts.Cclk = 1
	assert.Nil(t, newTestSearch(9).Exhaustive(ts), "no permutation can be analyzed")
}
