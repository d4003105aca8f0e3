// Package costmodel implements the three pure functions of §4.3 that
// every scheduler policy composes: earliest start time, communication
// time, and compute time. None of them touch shared state directly;
// callers supply the inputs read from sharedstate/topology.
package costmodel

// EarliestStartTime returns max(coreAvailUntil, max predecessor RCW
// end) in microseconds, per §4.3.1. predecessorRCWEnds may be empty.
func EarliestStartTime(coreAvailUntil float64, predecessorRCWEnds []float64) float64 {
	est := coreAvailUntil
	for _, end := range predecessorRCWEnds {
		if end > est {
			est = end
		}
	}
	return est
}

// CommunicationTime returns latency_us + payload_bytes/bandwidth_Bus,
// per §4.3.2. latencyNs and bandwidthGbps index the distance matrices
// for (srcNUMA, dstNUMA); the same node pair models an intra-node
// access and must be well-defined (diagonal entries).
func CommunicationTime(latencyNs, bandwidthGbps, payloadBytes float64) float64 {
	latencyUs := latencyNs / 1000
	bandwidthBus := bandwidthGbps * 1000
	return latencyUs + payloadBytes/bandwidthBus
}

// ComputeTime returns the compute duration in microseconds for the
// given FLOP budget, clock frequency, and flops/cycle constant, per
// §4.3.3.
func ComputeTime(flops, flopsPerCycle, clockFrequencyHz float64) float64 {
	return (flops / (flopsPerCycle * clockFrequencyHz)) * 1_000_000
}
