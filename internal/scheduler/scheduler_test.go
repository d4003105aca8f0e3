package scheduler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DonAurelio/nflows/internal/costmodel"
	"github.com/DonAurelio/nflows/internal/dag"
	"github.com/DonAurelio/nflows/internal/sharedstate"
	"github.com/DonAurelio/nflows/internal/topology"
)

func twoCoreEnv(t *testing.T, graph *dag.Graph, simulation bool) Env {
	t.Helper()
	oracle := topology.NewOracle(
		[]topology.CoreTopology{{NUMAID: 0, PUIDs: []int{0}}, {NUMAID: 1, PUIDs: []int{1}}},
		topology.Config{ClockMode: topology.ClockStatic, StaticHz: 1e9, FlopsPerCycle: 32},
	)
	state := sharedstate.New([]bool{true, true})
	return Env{
		Graph:               graph,
		State:               state,
		Oracle:              oracle,
		FlopsPerCycle:       32,
		LatencyNsMatrix:     costmodel.Matrix{{10, 100}, {100, 10}},
		BandwidthGbpsMatrix: costmodel.Matrix{{50, 25}, {25, 50}},
		Params:              map[string]string{},
		Simulation:          simulation,
	}
}

func chainGraph(t *testing.T) *dag.Graph {
	t.Helper()
	g := dag.NewGraph()
	require.NoError(t, g.AddTask("A", 1e9))
	require.NoError(t, g.AddTask("B", 1e9))
	require.NoError(t, g.AddEdge("A", "B", 1e6))
	return g
}

// Scenario 1: two-task chain, MIN-MIN places B on A's NUMA node.
func TestMinMinTwoTaskChain(t *testing.T) {
	g := chainGraph(t)
	env := twoCoreEnv(t, g, false)
	sched := NewMinMin(env)
	require.NoError(t, sched.Initialize())

	require.True(t, sched.HasNext())
	task, core, _, err := sched.Next()
	require.NoError(t, err)
	require.Equal(t, "A", task.Name)
	require.NoError(t, env.Graph.MarkAssigned("A"))
	require.NoError(t, env.State.SetCoreUnavailable(core))

	// Simulate worker completion: release core, record RCW end,
	// complete outgoing edges, and the producer's write NUMA.
	env.State.CreateNumaIDsW(dag.Key("A", "B"), []int{0})
	env.State.CreateRCWOffset("A", sharedstate.TimeRangePayload{Start: 0, End: 500, Payload: 1e9})
	env.Graph.CompleteOutgoing("A")
	require.NoError(t, env.State.ReleaseCore(core, 500))

	require.True(t, sched.HasNext())
	task2, core2, eft2, err := sched.Next()
	require.NoError(t, err)
	require.Equal(t, "B", task2.Name)
	require.GreaterOrEqual(t, eft2, 500.0)
	// B should prefer A's core (same NUMA, cheaper intra-node read)
	// over the other core when both are available.
	require.Equal(t, core, core2)
}

// Scenario 2: disjoint pair with equal EFT everywhere; the first pick
// is A (lowest name) on core 0 (lowest core id).
func TestMinMinDisjointPair(t *testing.T) {
	g := dag.NewGraph()
	require.NoError(t, g.AddTask("A", 1e9))
	require.NoError(t, g.AddTask("B", 1e9))
	env := twoCoreEnv(t, g, false)
	sched := NewMinMin(env)
	require.NoError(t, sched.Initialize())

	task, core, _, err := sched.Next()
	require.NoError(t, err)
	require.Equal(t, "A", task.Name)
	require.Equal(t, 0, core)
}

// Scenario 3: HEFT ranking on a diamond DAG.
func TestHEFTDiamondRanking(t *testing.T) {
	g := dag.NewGraph()
	for _, name := range []string{"A", "B", "C", "D"} {
		require.NoError(t, g.AddTask(name, 1e9))
	}
	require.NoError(t, g.AddEdge("A", "B", 1e6))
	require.NoError(t, g.AddEdge("A", "C", 1e6))
	require.NoError(t, g.AddEdge("B", "D", 2e5))
	require.NoError(t, g.AddEdge("C", "D", 1e5))

	env := twoCoreEnv(t, g, false)
	sched := NewHEFT(env)
	require.NoError(t, sched.Initialize())

	rankA, err := sched.computeUpwardRank("A")
	require.NoError(t, err)
	rankB, err := sched.computeUpwardRank("B")
	require.NoError(t, err)
	rankC, err := sched.computeUpwardRank("C")
	require.NoError(t, err)
	rankD, err := sched.computeUpwardRank("D")
	require.NoError(t, err)

	require.Greater(t, rankA, rankB)
	require.Greater(t, rankB, rankD)
	require.Greater(t, rankB, rankC)
}

// Scenario 4: FIFO locality, prioritize-by-core-id picks NUMA 0.
func TestFIFOLocalityPrioritizeByCoreID(t *testing.T) {
	g := dag.NewGraph()
	require.NoError(t, g.AddTask("A", 1e9))
	require.NoError(t, g.AddTask("B", 1e9))
	require.NoError(t, g.AddEdge("A", "B", 10*1024*1024))

	env := twoCoreEnv(t, g, false)
	env.Params = map[string]string{"fifo_prioritize_by_core_id": "yes"}

	env.State.CreateNumaIDsW(dag.Key("A", "B"), []int{0})
	env.State.CreateRCWOffset("A", sharedstate.TimeRangePayload{Start: 0, End: 500, Payload: 1e9})
	env.Graph.CompleteOutgoing("A")
	require.NoError(t, env.Graph.MarkAssigned("A"))

	sched := NewFIFO(env)
	require.NoError(t, sched.Initialize())

	task, core, _, err := sched.Next()
	require.NoError(t, err)
	require.Equal(t, "B", task.Name)
	require.Equal(t, 0, core)
}

// Scenario 5: backoff when ready tasks exist but no core is available.
func TestMinMinBackoffNoAvailableCore(t *testing.T) {
	g := dag.NewGraph()
	require.NoError(t, g.AddTask("A", 1e9))
	env := twoCoreEnv(t, g, false)
	require.NoError(t, env.State.SetCoreUnavailable(0))
	require.NoError(t, env.State.SetCoreUnavailable(1))

	sched := NewMinMin(env)
	require.NoError(t, sched.Initialize())

	task, core, _, err := sched.Next()
	require.NoError(t, err)
	require.NotNil(t, task)
	require.Equal(t, "A", task.Name)
	require.Equal(t, -1, core)
}

func TestMinMinNoReadyTasksReturnsNilTask(t *testing.T) {
	g := dag.NewGraph()
	require.NoError(t, g.AddTask("A", 1e9))
	require.NoError(t, g.AddTask("B", 1e9))
	require.NoError(t, g.AddEdge("A", "B", 1e6))
	env := twoCoreEnv(t, g, false)
	require.NoError(t, g.MarkAssigned("A")) // A assigned, B not ready (A's edge not completed)

	sched := NewMinMin(env)
	require.NoError(t, sched.Initialize())

	task, core, _, err := sched.Next()
	require.NoError(t, err)
	require.Nil(t, task)
	require.Equal(t, -1, core)
}
