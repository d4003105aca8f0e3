package engine

import (
	"github.com/DonAurelio/nflows/internal/costmodel"
	"github.com/DonAurelio/nflows/internal/dag"
	"github.com/DonAurelio/nflows/internal/sharedstate"
)

// runSimulation implements §4.5.2: the same read/compute/write
// sequence as the bare-metal worker, but every duration comes from
// the cost model instead of a measurement, and no real buffers are
// touched. It runs inline on the orchestrator thread.
func (w *worker) runSimulation() error {
	earliestStart, err := w.earliestStartTime()
	if err != nil {
		return err
	}

	dstNUMA, err := w.oracle.CoreToNUMA(w.core)
	if err != nil {
		return err
	}

	actualRead := 0.0
	for _, edge := range w.graph.Incoming(w.task.Name) {
		srcNUMA := dstNUMA
		if ids, err := w.state.NumaIDsW(edge.Key()); err == nil && len(ids) > 0 {
			srcNUMA = ids[0]
		}
		lat, err := w.latency.At(srcNUMA, dstNUMA)
		if err != nil {
			return err
		}
		bw, err := w.bandwidth.At(srcNUMA, dstNUMA)
		if err != nil {
			return err
		}
		readTime := costmodel.CommunicationTime(lat, bw, edge.Payload)

		readStart := earliestStart
		readEnd := readStart + readTime

		w.state.CreateReadTimestamps(edge.Key(), sharedstate.TimeRangePayload{Start: readStart, End: readEnd, Payload: edge.Payload})
		w.state.CreateReadOffset(edge.Key(), sharedstate.TimeRangePayload{Start: readStart, End: readEnd, Payload: edge.Payload})
		w.state.IncrementReadsActive(edge.Key())

		if readTime > actualRead {
			actualRead = readTime
		}
	}

	hz, err := w.oracle.ClockFrequency(w.core)
	if err != nil {
		return err
	}
	computeTime := costmodel.ComputeTime(w.task.Flops, w.flopsPerCycle, hz)
	computeStart := earliestStart + actualRead
	computeEnd := computeStart + computeTime

	w.state.CreateComputeTimestamps(w.task.Name, sharedstate.TimeRangePayload{Start: computeStart, End: computeEnd, Payload: w.task.Flops})
	w.state.CreateComputeOffset(w.task.Name, sharedstate.TimeRangePayload{Start: computeStart, End: computeEnd, Payload: w.task.Flops})
	w.state.IncrementExecsActive(w.task.Name)

	actualWrite := 0.0
	writeStart := computeEnd
	for _, edge := range w.graph.Outgoing(w.task.Name) {
		if edge.Dst == dag.SinkName {
			continue
		}
		lat, err := w.latency.At(dstNUMA, dstNUMA)
		if err != nil {
			return err
		}
		bw, err := w.bandwidth.At(dstNUMA, dstNUMA)
		if err != nil {
			return err
		}
		writeTime := costmodel.CommunicationTime(lat, bw, edge.Payload)
		writeEnd := writeStart + writeTime

		w.state.CreateAddress(edge.Key(), nil) // null sentinel: no real buffer in simulation mode
		w.state.CreateNumaIDsW(edge.Key(), []int{dstNUMA})
		w.state.CreateWriteTimestamps(edge.Key(), sharedstate.TimeRangePayload{Start: writeStart, End: writeEnd, Payload: edge.Payload})
		w.state.CreateWriteOffset(edge.Key(), sharedstate.TimeRangePayload{Start: writeStart, End: writeEnd, Payload: edge.Payload})
		w.state.IncrementWritesActive(edge.Key())

		if writeTime > actualWrite {
			actualWrite = writeTime
		}
	}

	finish := earliestStart + actualRead + computeTime + actualWrite
	w.state.CreateRCWOffset(w.task.Name, sharedstate.TimeRangePayload{Start: earliestStart, End: finish, Payload: w.task.Flops})

	w.graph.CompleteOutgoing(w.task.Name)

	// The simulation's per-core clock advances to this task's finish.
	return w.state.ReleaseCore(w.core, finish)
}
