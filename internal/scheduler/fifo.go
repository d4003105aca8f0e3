package scheduler

import (
	"sort"
	"sync"

	"github.com/DonAurelio/nflows/internal/dag"
)

// FIFO implements §4.4.4: a persistent queue across calls, ordered
// optionally by data-locality score, with a core selector that can
// also be ordered by NUMA-payload preference.
type FIFO struct {
	Base

	mu    sync.Mutex
	queue []*dag.Task
	queued map[string]bool
}

// NewFIFO constructs a FIFO scheduler over the given environment.
func NewFIFO(env Env) *FIFO {
	return &FIFO{Base: Base{Env: env}, queued: make(map[string]bool)}
}

// Initialize is a no-op for FIFO; its queue builds lazily on Next.
func (f *FIFO) Initialize() error { return nil }

func (f *FIFO) paramYes(key string) bool {
	return f.Env.Params[key] == "yes"
}

// dataLocalityScore sums the incoming-edge payload bytes of a task,
// its raw DAG-declared payload (the "amount of data to be read"),
// per §4.4.4 step 1.
func (f *FIFO) dataLocalityScore(task *dag.Task) float64 {
	score := 0.0
	for _, edge := range f.Env.Graph.Incoming(task.Name) {
		score += edge.Payload
	}
	return score
}

// Next implements the six-step queue/core selection of §4.4.4.
func (f *FIFO) Next() (*dag.Task, int, float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ready := f.Env.Graph.ReadyTasks()
	if len(ready) == 0 && len(f.queue) == 0 {
		return nil, -1, 0, nil
	}

	scores := make(map[string]float64, len(ready))
	for _, task := range ready {
		scores[task.Name] = f.dataLocalityScore(task)
	}

	if f.paramYes("fifo_prioritize_by_exec_order") {
		sort.SliceStable(ready, func(i, j int) bool {
			return scores[ready[i].Name] > scores[ready[j].Name]
		})
	}

	for _, task := range ready {
		if !f.queued[task.Name] {
			f.queued[task.Name] = true
			f.queue = append(f.queue, task)
		}
	}

	if len(f.queue) == 0 {
		return nil, -1, 0, nil
	}

	head := f.queue[0]
	core, eft, err := f.bestCoreForHead(head)
	if err != nil {
		return nil, -1, 0, err
	}
	if core == -1 {
		// No core available: keep the head queued and report it so
		// the driver backs off without losing its place (§4.4
		// boundary behavior).
		return head, -1, 0, nil
	}

	f.queue = f.queue[1:]
	delete(f.queued, head.Name)

	return head, core, eft, nil
}

// bestCoreForHead implements §4.4.4 steps 4-6: score available cores
// by the NUMA-payload preference of the head task's recorded inputs,
// optionally sort by that score, then pick by mapper mode.
func (f *FIFO) bestCoreForHead(head *dag.Task) (int, float64, error) {
	oracle := f.Env.Oracle
	st := f.Env.State

	avail := st.AvailableCoreIDs()
	if len(avail) == 0 {
		return -1, 0, nil
	}

	numaToPayload := make(map[int]float64)
	for _, edge := range f.Env.Graph.Incoming(head.Name) {
		ids, err := st.NumaIDsW(edge.Key())
		if err != nil || len(ids) == 0 {
			continue
		}
		share := edge.Payload / float64(len(ids))
		for _, id := range ids {
			numaToPayload[id] += share
		}
	}

	cores := append([]int(nil), avail...)
	if f.paramYes("fifo_prioritize_by_core_id") {
		sort.SliceStable(cores, func(i, j int) bool {
			ni, _ := oracle.CoreToNUMA(cores[i])
			nj, _ := oracle.CoreToNUMA(cores[j])
			return numaToPayload[ni] > numaToPayload[nj]
		})
	}

	chosen := cores[0]
	if f.Env.Simulation {
		_, until := st.CoreAvailSnapshot()
		minUntil := until[chosen]
		for _, c := range cores {
			if until[c] < minUntil {
				minUntil = until[c]
				chosen = c
			}
		}
	}

	eftHelper := EFT{Base{Env: f.Env}}
	eft, err := eftHelper.eftForCore(head, chosen)
	if err != nil {
		return -1, 0, err
	}
	return chosen, eft, nil
}
