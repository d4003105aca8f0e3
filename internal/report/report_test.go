package report

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/DonAurelio/nflows/internal/costmodel"
	"github.com/DonAurelio/nflows/internal/sharedstate"
	"github.com/DonAurelio/nflows/internal/topology"
)

func TestWriteProducesOrderedTopLevelSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.yaml")

	doc := Document{
		FlopsPerCycle:      32,
		ClockFrequencyType: "static",
		ClockFrequencyHz:   2.4e9,
		LatencyNsMatrix:     costmodel.Matrix{{0, 10}, {10, 0}},
		BandwidthGbpsMatrix: costmodel.Matrix{{50, 20}, {20, 50}},
		TaskCount:           2,
		EdgeReadCount:       1,
		EdgeWriteCount:      1,
		Snapshot: sharedstate.Snapshots{
			CoreAvail:      []bool{true, false},
			CoreAvailUntil: []float64{0, 120},
			ThreadLocalities: map[string]topology.ThreadLocality{
				"A": {NUMAID: 0, CoreID: 0, VoluntaryCS: 2, InvoluntaryCS: 1, CoreMigrations: 0},
			},
			NumaIDsW: map[string][]int{"A->B": {0}},
			NumaIDsR: map[string][]int{"A->B": {0}},
			RCWOffsets: map[string]sharedstate.TimeRangePayload{
				"A": {Start: 0, End: 100, Payload: 1000},
			},
			ExecsActive:  map[string]int{"A": 1},
			ReadsActive:  map[string]int{"A->B": 1},
			WritesActive: map[string]int{"A->B": 1},
			Checksum:     0,
		},
	}

	require.NoError(t, Write(path, doc))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var root yaml.Node
	require.NoError(t, yaml.Unmarshal(raw, &root))
	mapping := root.Content[0]
	require.Equal(t, yaml.MappingNode, mapping.Kind)

	var keys []string
	for i := 0; i < len(mapping.Content); i += 2 {
		keys = append(keys, mapping.Content[i].Value)
	}
	require.Equal(t, []string{"user", "workflow", "runtime", "trace"}, keys)
}

func TestWriteRejectsUnwritablePath(t *testing.T) {
	err := Write(filepath.Join(t.TempDir(), "missing-dir", "report.yaml"), Document{})
	require.Error(t, err)
}
