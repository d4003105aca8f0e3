//go:build linux

package topology

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"

	nferrors "github.com/DonAurelio/nflows/internal/errors"
)

// bindThreadToPUs sets the calling goroutine's OS thread affinity to
// exactly the given processing units. Callers must have already called
// runtime.LockOSThread, as the bare-metal worker does before pinning
// itself (§4.5.1).
func bindThreadToPUs(pus []int) error {
	var set unix.CPUSet
	set.Zero()
	for _, pu := range pus {
		set.Set(pu)
	}
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return nferrors.MemoryPolicy("sched_setaffinity failed", map[string]interface{}{"pus": pus, "error": err.Error()})
	}
	return nil
}

// readScalingFrequency reads the live CPU scaling frequency exposed by
// the kernel for the given OS PU, returning Hz.
func readScalingFrequency(pu int) (float64, error) {
	path := fmt.Sprintf("/sys/devices/system/cpu/cpu%d/cpufreq/scaling_cur_freq", pu)
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, nferrors.TopologyMiss("unable to read scaling frequency", map[string]interface{}{"pu": pu, "error": err.Error()})
	}
	khz, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0, nferrors.TopologyMiss("malformed scaling frequency file", map[string]interface{}{"pu": pu})
	}
	return khz * 1000, nil
}

// Linux MPOL_* constants (linux/mempolicy.h), not exported by x/sys/unix.
const (
	mpolDefault    = 0
	mpolBind       = 2
	mpolInterleave = 3
)

// setThreadMemoryPolicy issues set_mempolicy(2) via a raw syscall, as
// golang.org/x/sys/unix does not wrap it directly.
func setThreadMemoryPolicy(policy MemPolicy, numaIDs []int) error {
	var mode uintptr
	var mask uint64

	switch policy {
	case PolicyDefault, PolicyFirstTouch, PolicyNextTouch:
		mode = mpolDefault
	case PolicyBind:
		mode = mpolBind
	case PolicyInterleave, PolicyMixed:
		mode = mpolInterleave
	default:
		return nferrors.MemoryPolicy("unsupported memory policy", map[string]interface{}{"policy": policy.String()})
	}

	for _, id := range numaIDs {
		if id < 0 || id >= 64 {
			return nferrors.MemoryPolicy("numa id out of range for nodemask", map[string]interface{}{"numa_id": id})
		}
		mask |= 1 << uint(id)
	}

	_, _, errno := unix.Syscall(unix.SYS_SET_MEMPOLICY, mode, uintptr(unsafe.Pointer(&mask)), 64)
	if errno != 0 {
		return nferrors.MemoryPolicy("set_mempolicy failed", map[string]interface{}{"policy": policy.String(), "errno": errno.Error()})
	}
	return nil
}

// threadLocalityNow captures NUMA id, core id, and scheduling counters
// for the calling OS thread from /proc/thread-self.
func threadLocalityNow(o *Oracle) (ThreadLocality, error) {
	var cpu, node uint32
	_, _, errno := unix.Syscall(unix.SYS_GETCPU, uintptr(unsafe.Pointer(&cpu)), uintptr(unsafe.Pointer(&node)), 0)
	if errno != 0 {
		return ThreadLocality{}, nferrors.TopologyMiss("getcpu failed", map[string]interface{}{"errno": errno.Error()})
	}

	coreID, err := o.PUToCore(int(cpu))
	if err != nil {
		return ThreadLocality{}, err
	}

	vcs, ivcs, err := readContextSwitches()
	if err != nil {
		return ThreadLocality{}, err
	}
	migrations := readCoreMigrations()

	return ThreadLocality{
		NUMAID:         int(node),
		CoreID:         coreID,
		VoluntaryCS:    vcs,
		InvoluntaryCS:  ivcs,
		CoreMigrations: migrations,
	}, nil
}

func readContextSwitches() (voluntary, involuntary int64, err error) {
	f, ferr := os.Open("/proc/thread-self/status")
	if ferr != nil {
		return 0, 0, nferrors.TopologyMiss("cannot read thread status", map[string]interface{}{"error": ferr.Error()})
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "voluntary_ctxt_switches:"):
			voluntary = parseTrailingInt(line)
		case strings.HasPrefix(line, "nonvoluntary_ctxt_switches:"):
			involuntary = parseTrailingInt(line)
		}
	}
	return voluntary, involuntary, nil
}

func readCoreMigrations() int64 {
	f, err := os.Open("/proc/thread-self/sched")
	if err != nil {
		return -1
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, "nr_migrations") {
			fields := strings.Fields(line)
			if len(fields) > 0 {
				v, err := strconv.ParseInt(fields[len(fields)-1], 10, 64)
				if err == nil {
					return v
				}
			}
		}
	}
	return -1
}

func parseTrailingInt(line string) int64 {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return 0
	}
	v, _ := strconv.ParseInt(fields[len(fields)-1], 10, 64)
	return v
}

// numaIDsOfAddress approximates hwloc_get_area_memlocation by reading
// /proc/self/numa_maps and finding the mapping whose range contains
// addr, returning the set of NUMA node ids with pages resident there.
// Returns an empty set if no page is yet materialized, per §4.1.
func numaIDsOfAddress(addr uintptr, length uintptr) ([]int, error) {
	f, err := os.Open("/proc/self/numa_maps")
	if err != nil {
		return nil, nferrors.TopologyMiss("cannot read numa_maps", map[string]interface{}{"error": err.Error()})
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		start, err := strconv.ParseUint(fields[0], 16, 64)
		if err != nil {
			continue
		}
		if uintptr(start) > addr {
			continue
		}
		// numa_maps doesn't carry an explicit end address; a mapping
		// "owns" [start, next-start). We accept the closest preceding
		// entry as a practical approximation.
		ids := make([]int, 0, 2)
		for _, field := range fields[1:] {
			if strings.HasPrefix(field, "N") {
				rest := field[1:]
				eq := strings.IndexByte(rest, '=')
				if eq <= 0 {
					continue
				}
				id, err := strconv.Atoi(rest[:eq])
				if err == nil {
					ids = append(ids, id)
				}
			}
		}
		if len(ids) > 0 {
			return ids, nil
		}
	}
	return []int{}, nil
}
