package taskgen

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fpsched/internal/dvs"
	"fpsched/internal/sched"
)

func newGen(seed int64) *Generator {
	return New(rand.New(rand.NewSource(seed)), nil)
}

func baseSpec() Spec {
	return Spec{
		Tasks:       8,
		MaxDeadline: 1000,
		Multiplier:  1,
		Analysis:    sched.Wang00Fixed,
		MaxResp:     100000,
	}
}

func TestRandom(t *testing.T) {
	g := newGen(1)
	for i := 0; i < 20; i++ {
		s := baseSpec()
		s.Num = i
		ts := g.Random(s)

		require.Equal(t, s.Tasks, ts.N())
		assert.Less(t, ts.Utilization(), 1.0)
		assert.Equal(t, sched.Time(1000), ts.Tclk)
		deadlines := map[sched.Time]bool{}
		for _, task := range ts.Tasks {
			assert.GreaterOrEqual(t, task.C, s.Multiplier, task.Name)
			assert.Equal(t, task.D, task.T, task.Name)
			assert.Zero(t, task.J, task.Name)
			assert.False(t, deadlines[task.D], "deadline %d drawn twice", task.D)
			deadlines[task.D] = true
		}
	}
}

func TestRandomMultiplier(t *testing.T) {
	s := baseSpec()
	s.Multiplier = 10
	s.Jitter = RandomJitter
	s.IndependentDeadlines = true
	ts := newGen(2).Random(s)
	for _, task := range ts.Tasks {
		for _, v := range []sched.Time{task.C, task.T, task.D, task.J} {
			assert.Zero(t, v%10, "%s: %d is not a multiple", task.Name, v)
		}
	}
}

func TestOneTaskJitter(t *testing.T) {
	s := baseSpec()
	s.Jitter = OneTaskJitter
	ts := newGen(3).Random(s)
	jittered := 0
	for _, task := range ts.Tasks {
		if task.J > 0 {
			jittered++
			assert.Less(t, task.J, task.T/2)
		}
	}
	assert.LessOrEqual(t, jittered, 1)
}

func TestWithUtilization(t *testing.T) {
	s := baseSpec()
	s.Utilization = 0.5
	s.Levels = dvs.DefaultLevels

	var sum float64
	g := newGen(4)
	for i := 0; i < 50; i++ {
		ts := g.WithUtilization(s)
		require.Equal(t, s.Tasks, ts.N())
		assert.Equal(t, sched.Time(10000), ts.Tclk)
		for _, task := range ts.Tasks {
			assert.Equal(t, s.Levels.Max(), task.Freq, task.Name)
			assert.Equal(t, task.Cu, task.C, task.Name)
		}
		sum += ts.Utilization()
	}
	assert.InDelta(t, 0.5, sum/50, 0.15, "mean utilization tracks the target")
}

func TestFeasibleWithUtilization(t *testing.T) {
	s := baseSpec()
	s.Utilization = 0.6
	ts, err := newGen(5).FeasibleWithUtilization(s, sched.DeadlineMonotonic, 1000)
	require.NoError(t, err)
	assert.True(t, ts.IsFeasible())
	assert.True(t, ts.IsPriUnique())

	s.Utilization = 3
	_, err = newGen(6).FeasibleWithUtilization(s, sched.DeadlineMonotonic, 5)
	assert.ErrorContains(t, err, "in 5 attempts")
}

func TestSpecPreconditions(t *testing.T) {
	g := newGen(7)
	s := baseSpec()
	s.MaxDeadline = 4
	assert.Panics(t, func() { g.Random(s) })

	s = baseSpec()
	s.Multiplier = 0
	assert.Panics(t, func() { g.WithUtilization(s) })
}

func TestAddRandomCluster(t *testing.T) {
	g := newGen(8)
	ts := g.Random(baseSpec())

	g.AddRandomCluster(ts, 3)
	g.AddRandomCluster(ts, 5)
	require.Len(t, ts.Clusters, 2)
	assert.Len(t, ts.Clusters[0].Tasks, 3)
	assert.True(t, ts.AreAllTasksInClusters())

	assert.Panics(t, func() { g.AddRandomCluster(ts, 1) })
}

func TestAddRandomBarrier(t *testing.T) {
	g := newGen(9)
	ts := g.Random(baseSpec())
	g.AddRandomBarrier(ts)
	require.Len(t, ts.Barriers, 1)
	assert.GreaterOrEqual(t, ts.Barriers[0], 0)
	assert.Less(t, ts.Barriers[0], ts.N()-1)
}

func TestSpecial(t *testing.T) {
	ts := Special(dvs.DefaultLevels, 100000)
	require.Equal(t, 10, ts.N())
	assert.True(t, ts.IsFeasible())
	assert.InDelta(t, 0.7329, ts.Utilization(), 1e-3)
	for i, task := range ts.Tasks {
		assert.Equal(t, i, task.P)
		assert.Equal(t, dvs.DefaultLevels.Max(), task.Freq)
	}
}
