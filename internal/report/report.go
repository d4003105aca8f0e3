// Package report renders the final run record of §6 as an ordered
// YAML document: user, workflow, runtime, and trace sections, built
// from a sharedstate.Snapshots the way the teacher's config loader
// builds an ordered document from viper settings. Key order is fixed
// by hand with yaml.Node rather than left to map iteration, mirroring
// the original's fixed print order (common_print_common_structure).
package report

import (
	"os"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/DonAurelio/nflows/internal/costmodel"
	nferrors "github.com/DonAurelio/nflows/internal/errors"
	"github.com/DonAurelio/nflows/internal/sharedstate"
	"github.com/DonAurelio/nflows/internal/topology"
)

// Document is the input to Write: the run's configuration echo plus
// the final state snapshot.
type Document struct {
	FlopsPerCycle      float64
	ClockFrequencyType string
	ClockFrequencyHz   float64
	ClockFrequenciesHz []float64
	LatencyNsMatrix     costmodel.Matrix
	BandwidthGbpsMatrix costmodel.Matrix

	TaskCount int
	EdgeReadCount  int
	EdgeWriteCount int

	Snapshot sharedstate.Snapshots
}

// Write renders doc to path as YAML, matching the four §6 top-level
// sections in the original's fixed order.
func Write(path string, doc Document) error {
	root := &yaml.Node{Kind: yaml.MappingNode}
	root.Content = append(root.Content,
		strNode("user"), userNode(doc),
		strNode("workflow"), workflowNode(doc),
		strNode("runtime"), runtimeNode(doc),
		strNode("trace"), traceNode(doc),
	)

	out, err := yaml.Marshal(root)
	if err != nil {
		return nferrors.FileIO("cannot marshal report", map[string]interface{}{"error": err.Error()})
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return nferrors.FileIO("cannot write report file", map[string]interface{}{"path": path, "error": err.Error()})
	}
	return nil
}

func strNode(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}

func userNode(doc Document) *yaml.Node {
	n := &yaml.Node{Kind: yaml.MappingNode}
	n.Content = append(n.Content,
		strNode("flops_per_cycle"), floatNode(doc.FlopsPerCycle),
		strNode("clock_frequency_type"), strNode(doc.ClockFrequencyType),
	)
	if len(doc.ClockFrequenciesHz) > 0 {
		freqs := &yaml.Node{Kind: yaml.MappingNode}
		for i, hz := range doc.ClockFrequenciesHz {
			freqs.Content = append(freqs.Content, strNode(itoa(i)), floatNode(hz))
		}
		n.Content = append(n.Content, strNode("clock_frequencies_hz"), freqs)
	} else {
		n.Content = append(n.Content, strNode("clock_frequency_hz"), floatNode(doc.ClockFrequencyHz))
	}

	if len(doc.LatencyNsMatrix) > 0 {
		n.Content = append(n.Content, strNode("distance_lat_ns"), matrixNode(doc.LatencyNsMatrix))
	}
	if len(doc.BandwidthGbpsMatrix) > 0 {
		n.Content = append(n.Content, strNode("distance_bw_gbps"), matrixNode(doc.BandwidthGbpsMatrix))
	}
	return n
}

func matrixNode(m costmodel.Matrix) *yaml.Node {
	n := &yaml.Node{Kind: yaml.SequenceNode}
	for _, row := range m {
		rowNode := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
		for _, v := range row {
			rowNode.Content = append(rowNode.Content, floatNode(v))
		}
		n.Content = append(n.Content, rowNode)
	}
	return n
}

func workflowNode(doc Document) *yaml.Node {
	n := &yaml.Node{Kind: yaml.MappingNode}
	n.Content = append(n.Content,
		strNode("execs_count"), intNode(doc.TaskCount),
		strNode("reads_count"), intNode(doc.EdgeReadCount),
		strNode("writes_count"), intNode(doc.EdgeWriteCount),
	)
	return n
}

func runtimeNode(doc Document) *yaml.Node {
	snap := doc.Snapshot
	n := &yaml.Node{Kind: yaml.MappingNode}
	n.Content = append(n.Content,
		strNode("threads_checksum"), uintNode(snap.Checksum),
		strNode("threads_active"), intNode(snap.ActiveWorkers),
		strNode("tasks_active_count"), intNode(sumCounts(snap.ExecsActive)),
		strNode("reads_active_count"), intNode(sumCounts(snap.ReadsActive)),
		strNode("writes_active_count"), intNode(sumCounts(snap.WritesActive)),
	)

	avail := &yaml.Node{Kind: yaml.MappingNode}
	for i, ok := range snap.CoreAvail {
		if !ok {
			continue
		}
		entry := &yaml.Node{Kind: yaml.MappingNode}
		entry.Content = append(entry.Content, strNode("avail_until"), floatNode(snap.CoreAvailUntil[i]))
		avail.Content = append(avail.Content, strNode(itoa(i)), entry)
	}
	n.Content = append(n.Content, strNode("core_availability"), avail)
	return n
}

func traceNode(doc Document) *yaml.Node {
	snap := doc.Snapshot
	n := &yaml.Node{Kind: yaml.MappingNode}

	locNode := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range sortedKeysLocality(snap.ThreadLocalities) {
		loc := snap.ThreadLocalities[k]
		entry := &yaml.Node{Kind: yaml.MappingNode, Style: yaml.FlowStyle}
		entry.Content = append(entry.Content,
			strNode("numa_id"), intNode(loc.NUMAID),
			strNode("core_id"), intNode(loc.CoreID),
			strNode("voluntary_cs"), intNode(int(loc.VoluntaryCS)),
			strNode("involuntary_cs"), intNode(int(loc.InvoluntaryCS)),
			strNode("core_migrations"), intNode(int(loc.CoreMigrations)),
		)
		locNode.Content = append(locNode.Content, strNode(k), entry)
	}
	n.Content = append(n.Content, strNode("name_to_thread_locality"), locNode)

	n.Content = append(n.Content, strNode("numa_mappings_write"), numaIDsNode(snap.NumaIDsW))
	n.Content = append(n.Content, strNode("numa_mappings_read"), numaIDsNode(snap.NumaIDsR))

	n.Content = append(n.Content, strNode("comm_name_read_timestamps"), trpNode(snap.ReadTimestamps))
	n.Content = append(n.Content, strNode("comm_name_write_timestamps"), trpNode(snap.WriteTimestamps))
	n.Content = append(n.Content, strNode("exec_name_compute_timestamps"), trpNode(snap.ComputeTimestamps))
	n.Content = append(n.Content, strNode("comm_name_read_offsets"), trpNode(snap.ReadOffsets))
	n.Content = append(n.Content, strNode("comm_name_write_offsets"), trpNode(snap.WriteOffsets))
	n.Content = append(n.Content, strNode("exec_name_compute_offsets"), trpNode(snap.ComputeOffsets))
	n.Content = append(n.Content, strNode("exec_name_total_offsets"), trpNode(snap.RCWOffsets))

	return n
}

func numaIDsNode(m map[string][]int) *yaml.Node {
	n := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range sortedKeysInt(m) {
		entry := &yaml.Node{Kind: yaml.MappingNode, Style: yaml.FlowStyle}
		ids := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
		for _, id := range m[k] {
			ids.Content = append(ids.Content, intNode(id))
		}
		entry.Content = append(entry.Content, strNode("numa_ids"), ids)
		n.Content = append(n.Content, strNode(k), entry)
	}
	return n
}

func trpNode(m map[string]sharedstate.TimeRangePayload) *yaml.Node {
	n := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range sortedKeysTRP(m) {
		v := m[k]
		entry := &yaml.Node{Kind: yaml.MappingNode, Style: yaml.FlowStyle}
		entry.Content = append(entry.Content,
			strNode("start"), floatNode(v.Start),
			strNode("end"), floatNode(v.End),
			strNode("payload"), floatNode(v.Payload),
		)
		n.Content = append(n.Content, strNode(k), entry)
	}
	return n
}

func sumCounts(m map[string]int) int {
	total := 0
	for _, v := range m {
		total += v
	}
	return total
}

func sortedKeysInt(m map[string][]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedKeysTRP(m map[string]sharedstate.TimeRangePayload) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedKeysLocality(m map[string]topology.ThreadLocality) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func itoa(i int) string { return strconv.Itoa(i) }

func intNode(i int) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(i)}
}

func uintNode(u uint64) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.FormatUint(u, 10)}
}

func floatNode(f float64) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: strconv.FormatFloat(f, 'f', -1, 64)}
}
