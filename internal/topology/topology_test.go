package topology

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testOracle() *Oracle {
	cores := DiscoverCoresPerNUMANode(2, 2, 1)
	return NewOracle(cores, Config{
		ClockMode:     ClockStatic,
		StaticHz:      1e9,
		FlopsPerCycle: 32,
	})
}

func TestCoreToNUMA(t *testing.T) {
	o := testOracle()
	numa, err := o.CoreToNUMA(0)
	require.NoError(t, err)
	require.Equal(t, 0, numa)

	numa, err = o.CoreToNUMA(1)
	require.NoError(t, err)
	require.Equal(t, 1, numa)
}

func TestCoreToNUMAOutOfRange(t *testing.T) {
	o := testOracle()
	_, err := o.CoreToNUMA(99)
	require.Error(t, err)
}

func TestPUToCore(t *testing.T) {
	o := testOracle()
	core, err := o.PUToCore(1)
	require.NoError(t, err)
	require.Equal(t, 1, core)
}

func TestClockFrequencyStatic(t *testing.T) {
	o := testOracle()
	hz, err := o.ClockFrequency(0)
	require.NoError(t, err)
	require.Equal(t, 1e9, hz)
}

func TestClockFrequencyArrayMissingEntry(t *testing.T) {
	cores := DiscoverCoresPerNUMANode(2, 2, 1)
	o := NewOracle(cores, Config{ClockMode: ClockArray, ArrayHz: []float64{1e9}})
	_, err := o.ClockFrequency(1)
	require.Error(t, err)
}

func TestParseMemPolicy(t *testing.T) {
	p, err := ParseMemPolicy("bind")
	require.NoError(t, err)
	require.Equal(t, PolicyBind, p)

	_, err = ParseMemPolicy("nonsense")
	require.Error(t, err)
}
