package scheduler

import (
	"sync"

	"github.com/DonAurelio/nflows/internal/costmodel"
	"github.com/DonAurelio/nflows/internal/dag"
)

// HEFT implements §4.4.3: a precomputed upward rank per task, highest
// rank among ready tasks is picked first, placed via the shared EFT
// core selector.
type HEFT struct {
	EFT

	rankMu sync.Mutex
	upwardRanks        map[string]float64
	avgComputeCostUs   map[string]float64
	avgCommCostUsByEdge map[string]float64
}

// NewHEFT constructs a HEFT scheduler over the given environment.
func NewHEFT(env Env) *HEFT {
	return &HEFT{
		EFT:                 EFT{Base{Env: env}},
		upwardRanks:         make(map[string]float64),
		avgComputeCostUs:    make(map[string]float64),
		avgCommCostUsByEdge: make(map[string]float64),
	}
}

// Initialize precomputes average compute/communication costs and the
// upward rank of every task, per §4.4.3.
func (h *HEFT) Initialize() error {
	if err := h.initializeCosts(); err != nil {
		return err
	}
	for _, task := range h.Env.Graph.Tasks() {
		if _, err := h.computeUpwardRank(task.Name); err != nil {
			return err
		}
	}
	return nil
}

func (h *HEFT) initializeCosts() error {
	g := h.Env.Graph
	oracle := h.Env.Oracle
	availCores := h.Env.State.AvailableCoreIDs()
	if len(availCores) == 0 {
		return nil
	}

	for _, task := range g.Tasks() {
		if task.Name == dag.SinkName {
			continue
		}
		sum := 0.0
		for _, core := range availCores {
			hz, err := oracle.ClockFrequency(core)
			if err != nil {
				return err
			}
			sum += costmodel.ComputeTime(task.Flops, h.Env.FlopsPerCycle, hz)
		}
		h.avgComputeCostUs[task.Name] = sum / float64(len(availCores))
	}

	latAvg, bwAvg := 0.0, 0.0
	pairs := 0
	for _, src := range availCores {
		for _, dst := range availCores {
			srcNUMA, err := oracle.CoreToNUMA(src)
			if err != nil {
				return err
			}
			dstNUMA, err := oracle.CoreToNUMA(dst)
			if err != nil {
				return err
			}
			lat, err := h.Env.LatencyNsMatrix.At(srcNUMA, dstNUMA)
			if err != nil {
				return err
			}
			bw, err := h.Env.BandwidthGbpsMatrix.At(srcNUMA, dstNUMA)
			if err != nil {
				return err
			}
			latAvg += lat
			bwAvg += bw
			pairs++
		}
	}
	if pairs > 0 {
		latAvg /= float64(pairs)
		bwAvg /= float64(pairs)
	}

	for _, task := range g.Tasks() {
		for _, edge := range g.Outgoing(task.Name) {
			if edge.Dst == dag.SinkName {
				continue
			}
			// §4.4.3's own formula, not costmodel.CommunicationTime: the
			// rank mixes this term directly against the µs compute cost,
			// same as the original's name_to_cost_seconds table.
			h.avgCommCostUsByEdge[edge.Key()] = (latAvg / 1e9) + (edge.Payload / bwAvg)
		}
	}
	return nil
}

// computeUpwardRank recurses over successors, memoizing results under
// a lock so concurrent callers (tests, future parallel initialize)
// never race on the shared map.
func (h *HEFT) computeUpwardRank(name string) (float64, error) {
	h.rankMu.Lock()
	if r, ok := h.upwardRanks[name]; ok {
		h.rankMu.Unlock()
		return r, nil
	}
	h.rankMu.Unlock()

	if name == dag.SinkName {
		return 0, nil
	}

	execCost := h.avgComputeCostUs[name]
	maxSuccessor := 0.0
	for _, edge := range h.Env.Graph.Outgoing(name) {
		if edge.Dst == dag.SinkName {
			continue
		}
		commCost := h.avgCommCostUsByEdge[edge.Key()]
		succRank, err := h.computeUpwardRank(edge.Dst)
		if err != nil {
			return 0, err
		}
		if v := commCost + succRank; v > maxSuccessor {
			maxSuccessor = v
		}
	}

	rank := execCost + maxSuccessor

	h.rankMu.Lock()
	h.upwardRanks[name] = rank
	h.rankMu.Unlock()

	return rank, nil
}

// Next picks the ready task with the highest upward rank (ties broken
// by smallest name), then calls the shared EFT core selector.
func (h *HEFT) Next() (*dag.Task, int, float64, error) {
	ready := h.readyTasksSortedByName()
	if len(ready) == 0 {
		return nil, -1, 0, nil
	}

	selected := ready[0]
	h.rankMu.Lock()
	bestRank := h.upwardRanks[selected.Name]
	h.rankMu.Unlock()

	for _, task := range ready[1:] {
		h.rankMu.Lock()
		rank := h.upwardRanks[task.Name]
		h.rankMu.Unlock()
		if rank > bestRank {
			selected = task
			bestRank = rank
		}
	}

	core, eft, err := h.GetBestCoreID(selected)
	if err != nil {
		return nil, -1, 0, err
	}
	return selected, core, eft, nil
}
