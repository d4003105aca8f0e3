package costmodel

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEarliestStartTimeNoPredecessors(t *testing.T) {
	require.Equal(t, 42.0, EarliestStartTime(42.0, nil))
}

func TestEarliestStartTimeMaxOfAvailAndPredecessors(t *testing.T) {
	require.Equal(t, 100.0, EarliestStartTime(10.0, []float64{50, 100, 30}))
	require.Equal(t, 10.0, EarliestStartTime(10.0, []float64{1, 2}))
}

func TestCommunicationTimeIntraNode(t *testing.T) {
	// latency=10ns, bandwidth=50GB/s, payload=1e6 bytes.
	got := CommunicationTime(10, 50, 1e6)
	require.InDelta(t, 10.0/1000+1e6/(50*1000), got, 1e-9)
}

func TestComputeTime(t *testing.T) {
	got := ComputeTime(1e9, 32, 1e9)
	require.InDelta(t, (1e9/(32*1e9))*1e6, got, 1e-9)
}

func TestComputeTimeZeroFlops(t *testing.T) {
	require.Equal(t, 0.0, ComputeTime(0, 32, 1e9))
}

func TestMatrixRoundTripIntegerValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "matrix.txt")

	original := Matrix{
		{10, 100},
		{100, 10},
	}
	require.NoError(t, WriteMatrix(path, original))

	got, err := LoadMatrix(path)
	require.NoError(t, err)
	require.Equal(t, original, got)
}

func TestLoadMatrixTruncatedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.txt")
	require.NoError(t, os.WriteFile(path, []byte("2\n1 2\n"), 0o644))

	_, err := LoadMatrix(path)
	require.Error(t, err)
}

func TestLoadMatrixMissingFile(t *testing.T) {
	_, err := LoadMatrix(filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
}
