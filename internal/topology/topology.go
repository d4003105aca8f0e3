// Package topology implements the topology oracle of §4.1: the mapping
// between logical core ids, NUMA node ids, and OS processing units, plus
// thread affinity and memory-binding controls.
package topology

import (
	"fmt"

	nferrors "github.com/DonAurelio/nflows/internal/errors"
)

// MemPolicy is one of the thread memory-binding policies of §4.1.
type MemPolicy int

const (
	PolicyDefault MemPolicy = iota
	PolicyFirstTouch
	PolicyBind
	PolicyInterleave
	PolicyNextTouch
	PolicyMixed
)

func (p MemPolicy) String() string {
	switch p {
	case PolicyDefault:
		return "default"
	case PolicyFirstTouch:
		return "first-touch"
	case PolicyBind:
		return "bind"
	case PolicyInterleave:
		return "interleave"
	case PolicyNextTouch:
		return "next-touch"
	case PolicyMixed:
		return "mixed"
	default:
		return "unknown"
	}
}

// ParseMemPolicy parses the §6 configuration string into a MemPolicy.
func ParseMemPolicy(s string) (MemPolicy, error) {
	switch s {
	case "default", "":
		return PolicyDefault, nil
	case "first-touch":
		return PolicyFirstTouch, nil
	case "bind":
		return PolicyBind, nil
	case "interleave":
		return PolicyInterleave, nil
	case "next-touch":
		return PolicyNextTouch, nil
	case "mixed":
		return PolicyMixed, nil
	default:
		return 0, nferrors.InvalidConfig("unknown memory policy", map[string]interface{}{"policy": s})
	}
}

// ClockFrequencyMode selects how ClockFrequency resolves a core's Hz.
type ClockFrequencyMode int

const (
	ClockStatic ClockFrequencyMode = iota
	ClockArray
	ClockDynamic
)

// ParseClockFrequencyMode parses the §6 `clock_frequency_type` value.
func ParseClockFrequencyMode(s string) (ClockFrequencyMode, error) {
	switch s {
	case "static":
		return ClockStatic, nil
	case "array":
		return ClockArray, nil
	case "dynamic":
		return ClockDynamic, nil
	default:
		return 0, nferrors.InvalidConfig("unknown clock_frequency_type", map[string]interface{}{"value": s})
	}
}

// ThreadLocality captures the OS-observed placement and scheduling
// counters of the calling thread (§3: exec_name_to_thread_locality).
type ThreadLocality struct {
	NUMAID              int
	CoreID              int
	VoluntaryCS         int64
	InvoluntaryCS       int64
	CoreMigrations      int64
}

// CoreTopology maps a logical core id to its NUMA node and the OS
// processing units (PUs) that belong to it, hyperthreads coalesced to
// the first PU, mirroring the original's `hwloc_bitmap_singlify`.
type CoreTopology struct {
	NUMAID int
	PUIDs  []int
}

// Oracle is the queryable topology surface of §4.1.
type Oracle struct {
	cores             []CoreTopology
	clockMode         ClockFrequencyMode
	staticHz          float64
	arrayHz           []float64
	flopsPerCycle     float64
}

// Config configures the oracle's clock-frequency resolution mode.
type Config struct {
	ClockMode     ClockFrequencyMode
	StaticHz      float64
	ArrayHz       []float64
	FlopsPerCycle float64
}

// NewOracle builds an Oracle over the given per-core topology.
func NewOracle(cores []CoreTopology, cfg Config) *Oracle {
	return &Oracle{
		cores:         cores,
		clockMode:     cfg.ClockMode,
		staticHz:      cfg.StaticHz,
		arrayHz:       cfg.ArrayHz,
		flopsPerCycle: cfg.FlopsPerCycle,
	}
}

// NumCores returns the number of logical cores known to the oracle.
func (o *Oracle) NumCores() int { return len(o.cores) }

// CoreToNUMA maps a logical core id to its NUMA node id.
func (o *Oracle) CoreToNUMA(coreID int) (int, error) {
	if coreID < 0 || coreID >= len(o.cores) {
		return 0, nferrors.TopologyMiss("core id not present", map[string]interface{}{"core_id": coreID})
	}
	return o.cores[coreID].NUMAID, nil
}

// PUToCore maps an OS-reported processing unit id to a logical core id.
func (o *Oracle) PUToCore(osPU int) (int, error) {
	for coreID, c := range o.cores {
		for _, pu := range c.PUIDs {
			if pu == osPU {
				return coreID, nil
			}
		}
	}
	return 0, nferrors.TopologyMiss("PU not present in any core", map[string]interface{}{"pu_id": osPU})
}

// ClockFrequency resolves core clock frequency in Hz per the
// configured mode (static/array/dynamic).
func (o *Oracle) ClockFrequency(coreID int) (float64, error) {
	if coreID < 0 || coreID >= len(o.cores) {
		return 0, nferrors.TopologyMiss("core id not present", map[string]interface{}{"core_id": coreID})
	}
	switch o.clockMode {
	case ClockStatic:
		return o.staticHz, nil
	case ClockArray:
		if coreID >= len(o.arrayHz) {
			return 0, nferrors.InvalidConfig("clock_frequencies_hz missing entry for core", map[string]interface{}{"core_id": coreID})
		}
		return o.arrayHz[coreID], nil
	case ClockDynamic:
		pu := o.firstPU(coreID)
		return readScalingFrequency(pu)
	default:
		return 0, fmt.Errorf("unrecognized clock frequency mode %d", o.clockMode)
	}
}

func (o *Oracle) firstPU(coreID int) int {
	pus := o.cores[coreID].PUIDs
	if len(pus) == 0 {
		return coreID
	}
	return pus[0]
}

// BindThreadToCore pins the calling OS thread's affinity to exactly
// the given core's processing units (hyperthreads coalesced to the
// first PU), per §4.1.
func (o *Oracle) BindThreadToCore(coreID int) error {
	if coreID < 0 || coreID >= len(o.cores) {
		return nferrors.TopologyMiss("core id not present", map[string]interface{}{"core_id": coreID})
	}
	return bindThreadToPUs([]int{o.firstPU(coreID)})
}

// SetThreadMemoryPolicy sets the calling thread's NUMA memory-binding
// policy. bind/interleave carry a node set.
func (o *Oracle) SetThreadMemoryPolicy(policy MemPolicy, numaIDs []int) error {
	if (policy == PolicyBind || policy == PolicyInterleave) && len(numaIDs) == 0 {
		return nferrors.InvalidConfig("bind/interleave policy requires a node set", nil)
	}
	return setThreadMemoryPolicy(policy, numaIDs)
}

// ThreadLocalityNow captures the current thread's NUMA id, core id,
// and context-switch/migration counters from OS facilities.
func (o *Oracle) ThreadLocalityNow() (ThreadLocality, error) {
	return threadLocalityNow(o)
}

// NUMAIDsOfAddress reports which NUMA nodes contain the pages backing
// the virtual range [addr, addr+length). May return an empty set if no
// page is yet materialized (§4.1).
func (o *Oracle) NUMAIDsOfAddress(addr uintptr, length uintptr) ([]int, error) {
	return numaIDsOfAddress(addr, length)
}
