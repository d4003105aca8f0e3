package topology

// DiscoverCoresPerNUMANode builds a CoreTopology slice assuming cores
// are laid out contiguously across numaNodes NUMA nodes (cores split as
// evenly as possible), with threadsPerCore hyperthreads per core
// grouped into one PU set (PU ids coreID + t*totalCores). This mirrors how the original tool is
// typically configured against a known, symmetric multi-socket layout
// (§6: the topology enumerator is a queryable oracle whose discovery
// internals are out of scope; we still need a concrete layout to drive
// tests and the bare-metal reference implementation).
func DiscoverCoresPerNUMANode(totalCores, numaNodes, threadsPerCore int) []CoreTopology {
	if numaNodes <= 0 {
		numaNodes = 1
	}
	if threadsPerCore <= 0 {
		threadsPerCore = 1
	}

	cores := make([]CoreTopology, totalCores)
	coresPerNode := (totalCores + numaNodes - 1) / numaNodes
	for coreID := 0; coreID < totalCores; coreID++ {
		numaID := coreID / coresPerNode
		if numaID >= numaNodes {
			numaID = numaNodes - 1
		}
		pus := make([]int, threadsPerCore)
		for t := 0; t < threadsPerCore; t++ {
			pus[t] = coreID + t*totalCores
		}
		cores[coreID] = CoreTopology{NUMAID: numaID, PUIDs: pus}
	}
	return cores
}
