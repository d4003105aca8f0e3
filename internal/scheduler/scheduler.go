// Package scheduler implements the pluggable scheduling policies of
// §4.4: a shared ready-set/has-next base, an EFT estimator shared by
// MIN-MIN and HEFT, and the three concrete policies. Per §9, policies
// are tagged variants holding an injected cost-model handle rather
// than a class hierarchy, so the cost model stays swappable for tests.
package scheduler

import (
	"github.com/DonAurelio/nflows/internal/costmodel"
	"github.com/DonAurelio/nflows/internal/dag"
	"github.com/DonAurelio/nflows/internal/sharedstate"
	"github.com/DonAurelio/nflows/internal/topology"
)

// Scheduler is the capability set of §4.4: initialize, has-next, next.
// Next returns a nil task when no task is ready, coreID -1 when no
// core is currently available for the selected task (the driver backs
// off in both cases), and a non-nil error only for a fatal failure
// (§7: topology miss, missing key) that must propagate upward rather
// than be mistaken for an ordinary backoff.
type Scheduler interface {
	Initialize() error
	HasNext() bool
	Next() (task *dag.Task, coreID int, eftUS float64, err error)
}

// Env bundles the read-only handles every policy needs: the DAG, the
// shared state (read for availability/offsets, never mutated by a
// scheduler), the topology oracle, and the machine-wide cost-model
// constants and scheduler params of §6.
type Env struct {
	Graph         *dag.Graph
	State         *sharedstate.State
	Oracle        *topology.Oracle
	FlopsPerCycle float64
	LatencyNsMatrix costmodel.Matrix
	BandwidthGbpsMatrix costmodel.Matrix
	Params        map[string]string
	// Simulation is true when the mapper runs in simulation mode,
	// needed by FIFO's §4.4.4 step 5 tie-break.
	Simulation bool
}

// Base implements the ready-set extraction and has-next query shared
// by every policy (§4.4).
type Base struct {
	Env Env
}

// HasNext reports whether any task in the DAG is not yet assigned.
func (b *Base) HasNext() bool {
	return b.Env.Graph.HasUnassigned()
}

// readyTasksSortedByName returns the ready set sorted lexicographically
// by task name, giving every policy a deterministic iteration order
// for tie-breaking.
func (b *Base) readyTasksSortedByName() []*dag.Task {
	ready := b.Env.Graph.ReadyTasks()
	sortTasksByName(ready)
	return ready
}

func sortTasksByName(tasks []*dag.Task) {
	for i := 1; i < len(tasks); i++ {
		for j := i; j > 0 && tasks[j].Name < tasks[j-1].Name; j-- {
			tasks[j], tasks[j-1] = tasks[j-1], tasks[j]
		}
	}
}
