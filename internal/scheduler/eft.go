package scheduler

import (
	"math"

	"github.com/DonAurelio/nflows/internal/costmodel"
	"github.com/DonAurelio/nflows/internal/dag"
)

// EFT is the earliest-finish-time estimator of §4.4.1, embedded by
// value in both MinMin and HEFT.
type EFT struct {
	Base
}

// GetBestCoreID iterates every available core and returns the one
// with minimum estimated finish time, ties broken by lowest core id
// (AvailableCoreIDs is already ascending, so the first strict
// improvement wins ties).
func (e *EFT) GetBestCoreID(task *dag.Task) (coreID int, eftUS float64, err error) {
	bestCore := -1
	bestEFT := math.MaxFloat64

	for _, core := range e.Env.State.AvailableCoreIDs() {
		eft, err := e.eftForCore(task, core)
		if err != nil {
			return -1, 0, err
		}
		if eft < bestEFT {
			bestCore = core
			bestEFT = eft
		}
	}
	if bestCore == -1 {
		return -1, 0, nil
	}
	return bestCore, bestEFT, nil
}

// eftForCore computes the §4.4.1 estimate for one (task, core) pair.
func (e *EFT) eftForCore(task *dag.Task, core int) (float64, error) {
	g := e.Env.Graph
	st := e.Env.State
	oracle := e.Env.Oracle

	coreUntil, err := st.CoreAvailUntil(core)
	if err != nil {
		return 0, err
	}

	predecessors := g.Predecessors(task.Name)
	predEnds := make([]float64, 0, len(predecessors))
	for _, p := range predecessors {
		rcw, err := st.RCWOffset(p)
		if err != nil {
			return 0, err
		}
		predEnds = append(predEnds, rcw.End)
	}
	est := costmodel.EarliestStartTime(coreUntil, predEnds)

	dstNUMA, err := oracle.CoreToNUMA(core)
	if err != nil {
		return 0, err
	}

	readTime := 0.0
	for _, edge := range g.Incoming(task.Name) {
		ids, err := st.NumaIDsW(edge.Key())
		if err != nil || len(ids) == 0 {
			continue
		}
		// First element is a documented simplification when a
		// producer's output spans multiple NUMA nodes (§9).
		srcNUMA := ids[0]
		lat, err := e.Env.LatencyNsMatrix.At(srcNUMA, dstNUMA)
		if err != nil {
			return 0, err
		}
		bw, err := e.Env.BandwidthGbpsMatrix.At(srcNUMA, dstNUMA)
		if err != nil {
			return 0, err
		}
		t := costmodel.CommunicationTime(lat, bw, edge.Payload)
		if t > readTime {
			readTime = t
		}
	}

	hz, err := oracle.ClockFrequency(core)
	if err != nil {
		return 0, err
	}
	computeTime := costmodel.ComputeTime(task.Flops, e.Env.FlopsPerCycle, hz)

	writeTime := 0.0
	for _, edge := range g.Outgoing(task.Name) {
		if edge.Dst == dag.SinkName {
			continue
		}
		// First-touch assumed: source = destination = this core's NUMA.
		lat, err := e.Env.LatencyNsMatrix.At(dstNUMA, dstNUMA)
		if err != nil {
			return 0, err
		}
		bw, err := e.Env.BandwidthGbpsMatrix.At(dstNUMA, dstNUMA)
		if err != nil {
			return 0, err
		}
		t := costmodel.CommunicationTime(lat, bw, edge.Payload)
		if t > writeTime {
			writeTime = t
		}
	}

	return est + readTime + computeTime + writeTime, nil
}
