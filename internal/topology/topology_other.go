//go:build !linux

package topology

import (
	nferrors "github.com/DonAurelio/nflows/internal/errors"
)

// On non-Linux builds the OS-facing oracle calls are unsupported:
// affinity, memory-binding, dynamic clock and thread-locality calls
// return a TopologyMiss error, and address lookups report an empty NUMA
// set. Simulation mode (§4.5.2) never makes these calls and remains
// fully functional; bare-metal mode (§4.5.1) is Linux-only, as it
// depends on /proc and set_mempolicy(2).

func bindThreadToPUs(_ []int) error {
	return nferrors.TopologyMiss("thread affinity is only supported on linux", nil)
}

func readScalingFrequency(_ int) (float64, error) {
	return 0, nferrors.TopologyMiss("dynamic clock frequency is only supported on linux", nil)
}

func setThreadMemoryPolicy(_ MemPolicy, _ []int) error {
	return nferrors.TopologyMiss("memory policy control is only supported on linux", nil)
}

func threadLocalityNow(_ *Oracle) (ThreadLocality, error) {
	return ThreadLocality{}, nferrors.TopologyMiss("thread locality is only supported on linux", nil)
}

func numaIDsOfAddress(_ uintptr, _ uintptr) ([]int, error) {
	return []int{}, nil
}
