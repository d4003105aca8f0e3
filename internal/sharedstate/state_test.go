package sharedstate

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DonAurelio/nflows/internal/topology"
)

func TestCoreAvailabilityTransitions(t *testing.T) {
	s := New([]bool{true, true})
	require.ElementsMatch(t, []int{0, 1}, s.AvailableCoreIDs())

	require.NoError(t, s.SetCoreUnavailable(0))
	require.ElementsMatch(t, []int{1}, s.AvailableCoreIDs())

	require.NoError(t, s.ReleaseCore(0, 123.5))
	require.ElementsMatch(t, []int{0, 1}, s.AvailableCoreIDs())

	until, err := s.CoreAvailUntil(0)
	require.NoError(t, err)
	require.Equal(t, 123.5, until)
}

func TestCoreOutOfRange(t *testing.T) {
	s := New([]bool{true})
	require.Error(t, s.SetCoreUnavailable(5))
	require.Error(t, s.ReleaseCore(5, 0))
	_, err := s.CoreAvailUntil(5)
	require.Error(t, err)
}

func TestAddressMissingKeyError(t *testing.T) {
	s := New(nil)
	_, err := s.Address("A->B")
	require.Error(t, err)
}

func TestAddressRoundTrip(t *testing.T) {
	s := New(nil)
	buf := []byte{1, 2, 3}
	s.CreateAddress("A->B", buf)

	addr, err := s.Address("A->B")
	require.NoError(t, err)
	require.NotZero(t, addr)

	got, err := s.AddressBytes("A->B")
	require.NoError(t, err)
	require.Equal(t, buf, got)

	_, err = s.AddressBytes("A->B")
	require.Error(t, err, "buffer should be consumed exactly once")
}

func TestRCWOffsetMissingKey(t *testing.T) {
	s := New(nil)
	_, err := s.RCWOffset("A")
	require.Error(t, err)
}

func TestActiveWorkersBarrier(t *testing.T) {
	s := New(nil)
	s.IncrementActiveWorkers()
	s.IncrementActiveWorkers()

	var wg sync.WaitGroup
	wg.Add(1)
	done := make(chan struct{})
	go func() {
		defer wg.Done()
		s.WaitActiveWorkers()
		close(done)
	}()

	s.DecrementActiveWorkers()
	select {
	case <-done:
		t.Fatal("wait returned before all workers retired")
	default:
	}

	s.DecrementActiveWorkers()
	wg.Wait()
}

func TestChecksumAccumulatesOrderIndependently(t *testing.T) {
	s := New(nil)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.UpdateChecksum(1)
		}()
	}
	wg.Wait()
	require.Equal(t, uint64(100), s.Checksum())
}

func TestThreadLocalitySnapshot(t *testing.T) {
	s := New(nil)
	s.CreateThreadLocality("A", topology.ThreadLocality{NUMAID: 1, CoreID: 2})
	snap := s.Snapshot()
	require.Equal(t, 1, snap.ThreadLocalities["A"].NUMAID)
}

func TestActivityCounters(t *testing.T) {
	s := New(nil)
	s.RegisterTask("A")
	s.IncrementExecsActive("A")
	snap := s.Snapshot()
	require.Equal(t, 1, snap.ExecsActive["A"])
}
