package scheduler

import (
	"math"

	"github.com/DonAurelio/nflows/internal/dag"
)

// MinMin implements §4.4.2: each call computes the EFT for every
// (ready task, available core) pair and returns the globally minimal
// one. No precomputation is required.
type MinMin struct {
	EFT
}

// NewMinMin constructs a MinMin scheduler over the given environment.
func NewMinMin(env Env) *MinMin {
	return &MinMin{EFT{Base{Env: env}}}
}

// Initialize is a no-op for MinMin; it has no precomputed state.
func (m *MinMin) Initialize() error { return nil }

// Next picks the globally minimal (task, core) EFT pair among all
// ready tasks, tie-broken by lowest task name then lowest core id.
func (m *MinMin) Next() (*dag.Task, int, float64, error) {
	ready := m.readyTasksSortedByName()
	if len(ready) == 0 {
		return nil, -1, 0, nil
	}

	var selected *dag.Task
	selectedCore := -1
	bestEFT := math.MaxFloat64

	for _, task := range ready {
		core, eft, err := m.GetBestCoreID(task)
		if err != nil {
			return nil, -1, 0, err
		}
		if core == -1 {
			continue
		}
		if eft < bestEFT {
			selected = task
			selectedCore = core
			bestEFT = eft
		}
	}

	if selected == nil {
		// Ready tasks exist but no core is available for any of them
		// (§4.4, boundary behavior): report the first ready task with
		// core_id = -1 so the driver backs off without losing it.
		return ready[0], -1, 0, nil
	}
	return selected, selectedCore, bestEFT, nil
}
