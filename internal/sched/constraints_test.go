package sched

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespectConstraintsRaisesThresholds(t *testing.T) {
	ts := newSet(t, Wang00Fixed, [2]Time{1, 4}, [2]Time{2, 6}, [2]Time{2, 12})
	c := ts.NewTaskCluster("pair")
	ts.AddToTaskCluster(c, "t0")
	ts.AddToTaskCluster(c, "t1")
	require.False(t, ts.ConstraintsValid())

	ts.RespectConstraints()
	assert.True(t, ts.ConstraintsValid())
	assert.Equal(t, []int{0, 1, 2}, priorities(ts))
	assert.Equal(t, 0, ts.Tasks[1].PT)
}

func TestRespectConstraintsRandomly(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 50; i++ {
		ts := newSet(t, Wang00Fixed, [2]Time{1, 4}, [2]Time{2, 6}, [2]Time{2, 12}, [2]Time{1, 20})
		c := ts.NewTaskCluster("pair")
		ts.AddToTaskCluster(c, "t1")
		ts.AddToTaskCluster(c, "t3")
		ts.RespectConstraintsRandomly(rng)
		require.True(t, ts.ConstraintsValid(), "round %d", i)
		require.True(t, ts.IsPriUnique(), "round %d", i)
	}
}

func TestBarriers(t *testing.T) {
	ts := newSet(t, Wang00Fixed, [2]Time{1, 4}, [2]Time{2, 6}, [2]Time{2, 12})
	ts.NewTaskBarrier(0)

	assert.True(t, ts.BarriersPermitPri(0, 0))
	assert.False(t, ts.BarriersPermitPri(0, 1))
	assert.False(t, ts.BarriersPermitPri(1, 0))
	assert.True(t, ts.BarriersPermitPri(2, 1))
	assert.True(t, ts.ConstraintsValid())

	ts.MakeAllNonPreemptible()
	assert.False(t, ts.ConstraintsValid(), "thresholds may not cross a barrier")
	ts.RespectConstraints()
	assert.True(t, ts.ConstraintsValid())
	assert.Equal(t, 1, ts.Tasks[2].PT)
}

func TestClusterBookkeeping(t *testing.T) {
	ts := newSet(t, Wang00Fixed, [2]Time{1, 4}, [2]Time{2, 6}, [2]Time{2, 12})
	assert.False(t, ts.HasConstraints())
	assert.True(t, ts.RequiresRuntimePTSupport())

	ts.CreateClustersForSingletons()
	assert.True(t, ts.AreAllTasksInClusters())
	assert.False(t, ts.HasTaskClusters(), "singletons constrain nothing")
	assert.False(t, ts.RequiresRuntimePTSupport())

	ts.Tasks[2].PT = 1
	assert.False(t, ts.RequiresRuntimePTSupport())

	assert.Panics(t, func() { ts.AddToTaskCluster(0, "t0") }, "already a member")
	ts.Clusters[0].Tasks = append(ts.Clusters[0].Tasks, 1)
	assert.Panics(t, func() { ts.InCluster(1) })
}

func TestPutAllTasksInOneCluster(t *testing.T) {
	ts := newSet(t, Wang00Fixed, [2]Time{1, 4}, [2]Time{2, 6}, [2]Time{2, 12})
	ts.PutAllTasksInOneCluster()
	ts.SetPreemptionThresholdsNPT()

	assert.True(t, ts.IsAllNonPreemptible())
	assert.True(t, ts.ConstraintsValid())
	assert.False(t, ts.RequiresRuntimePTSupport())
	assert.Equal(t, 1, ts.OptimalPartitionIntoThreads())
}

func TestImplementClustersUsingLocks(t *testing.T) {
	ts := newSet(t, Audsley92, [2]Time{1, 10}, [2]Time{1, 20}, [2]Time{6, 40})
	c := ts.NewTaskCluster("pair")
	ts.AddToTaskCluster(c, "t0")
	ts.AddToTaskCluster(c, "t2")
	ts.ImplementClustersUsingLocks()
	ts.CalculateBlockingPCP()

	require.Len(t, ts.Locks, 2)
	assert.Equal(t, Time(6), ts.Tasks[0].B)
	assert.Equal(t, Time(6), ts.Tasks[1].B)
	assert.Equal(t, Time(0), ts.Tasks[2].B)
}

func TestPermuteNPTNeverNeedsRuntimeSupport(t *testing.T) {
	ts := newSet(t, Wang00Fixed, [2]Time{1, 4}, [2]Time{2, 6}, [2]Time{2, 12}, [2]Time{1, 20}, [2]Time{1, 40})
	c := ts.NewTaskCluster("pair")
	ts.AddToTaskCluster(c, "t0")
	ts.AddToTaskCluster(c, "t1")
	ts.CreateClustersForSingletons()
	ts.SetPriorities(ByCluster)
	ts.SetPreemptionThresholdsNPT()
	require.False(t, ts.RequiresRuntimePTSupport())

	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 300; i++ {
		ts.PermuteNPT(rng)
		require.False(t, ts.RequiresRuntimePTSupport(), "step %d", i)
		require.True(t, ts.IsPriUnique(), "step %d", i)
	}
}
