// Package engine implements the execution engine of §4.5: the mapper
// driver loop shared by both modes, and the bare-metal / simulation
// worker bodies. Concurrency style follows the mapper loop structure
// of the original: single-threaded scheduling interleaved with
// pinned-thread worker spawns, bounded by the active-worker barrier.
package engine

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/DonAurelio/nflows/internal/costmodel"
	"github.com/DonAurelio/nflows/internal/dag"
	"github.com/DonAurelio/nflows/internal/scheduler"
	"github.com/DonAurelio/nflows/internal/sharedstate"
	"github.com/DonAurelio/nflows/internal/topology"
)

// nowUS returns the current wall-clock time in microseconds since the
// epoch, the engine's sole source of absolute timestamps (§3).
func nowUS() float64 {
	return float64(time.Now().UnixNano()) / 1000
}

// Mode selects bare-metal vs simulation execution (§4.5).
type Mode int

const (
	ModeBareMetal Mode = iota
	ModeSimulation
)

// Mapper drives the scheduler loop of §4.5, pinning workers to cores
// in bare-metal mode or running them inline in simulation mode.
type Mapper struct {
	Graph         *dag.Graph
	State         *sharedstate.State
	Oracle        *topology.Oracle
	Scheduler     scheduler.Scheduler
	Mode          Mode
	FlopsPerCycle float64
	LatencyNsMatrix     costmodel.Matrix
	BandwidthGbpsMatrix costmodel.Matrix
	MemPolicy     topology.MemPolicy
	MemBindNUMAIDs []int
	Backoff       time.Duration
	Log           zerolog.Logger
}

// Start runs the driver loop of §4.5 until every task is assigned and
// every spawned worker has retired.
func (m *Mapper) Start() error {
	if err := m.Scheduler.Initialize(); err != nil {
		return err
	}

	for m.Scheduler.HasNext() {
		task, core, eft, err := m.Scheduler.Next()
		if err != nil {
			return err
		}
		if task == nil {
			m.Log.Debug().Msg("no ready tasks, backing off")
			time.Sleep(m.Backoff)
			continue
		}
		if core == -1 {
			m.Log.Debug().Str("task", task.Name).Msg("no available cores, backing off")
			time.Sleep(m.Backoff)
			continue
		}

		if err := m.Graph.MarkAssigned(task.Name); err != nil {
			return err
		}
		if err := m.State.SetCoreUnavailable(core); err != nil {
			return err
		}

		m.Log.Info().Str("task", task.Name).Int("core", core).Float64("eft_us", eft).Msg("assigned task")

		w := &worker{
			graph:   m.Graph,
			state:   m.State,
			oracle:  m.Oracle,
			task:    task,
			core:    core,
			flopsPerCycle: m.FlopsPerCycle,
			latency: m.LatencyNsMatrix,
			bandwidth: m.BandwidthGbpsMatrix,
			memPolicy: m.MemPolicy,
			memBindNUMAIDs: m.MemBindNUMAIDs,
			log: m.Log,
		}

		m.State.IncrementActiveWorkers()
		switch m.Mode {
		case ModeBareMetal:
			go func() {
				defer m.State.DecrementActiveWorkers()
				if err := w.runBareMetal(); err != nil {
					m.Log.Error().Err(err).Str("task", task.Name).Msg("bare-metal worker failed")
				}
			}()
		case ModeSimulation:
			if err := w.runSimulation(); err != nil {
				return err
			}
			m.State.DecrementActiveWorkers()
		}
	}

	m.State.WaitActiveWorkers()
	return nil
}

// worker bundles the per-task handles shared by both worker bodies.
type worker struct {
	graph  *dag.Graph
	state  *sharedstate.State
	oracle *topology.Oracle
	task   *dag.Task
	core   int

	flopsPerCycle float64
	latency       costmodel.Matrix
	bandwidth     costmodel.Matrix

	memPolicy      topology.MemPolicy
	memBindNUMAIDs []int

	log zerolog.Logger
}

// earliestStartTime computes §4.3.1 for this worker's (task, core).
func (w *worker) earliestStartTime() (float64, error) {
	coreUntil, err := w.state.CoreAvailUntil(w.core)
	if err != nil {
		return 0, err
	}
	preds := w.graph.Predecessors(w.task.Name)
	ends := make([]float64, 0, len(preds))
	for _, p := range preds {
		rcw, err := w.state.RCWOffset(p)
		if err != nil {
			return 0, err
		}
		ends = append(ends, rcw.End)
	}
	return costmodel.EarliestStartTime(coreUntil, ends), nil
}
