package dag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitKeyRoundTrip(t *testing.T) {
	src, dst := SplitKey("A->B")
	require.Equal(t, "A", src)
	require.Equal(t, "B", dst)
	require.Equal(t, "A->B", Key(src, dst))
}

func TestSplitKeyNoDelimiter(t *testing.T) {
	src, dst := SplitKey("nodelimiter")
	require.Empty(t, src)
	require.Empty(t, dst)
}

func TestReadyTasksInitialFrontier(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.AddTask("A", 1))
	require.NoError(t, g.AddTask("B", 1))
	require.NoError(t, g.AddEdge("A", "B", 100))

	ready := g.ReadyTasks()
	require.Len(t, ready, 1)
	require.Equal(t, "A", ready[0].Name)
}

func TestCompleteOutgoingUnlocksDependents(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.AddTask("A", 1))
	require.NoError(t, g.AddTask("B", 1))
	require.NoError(t, g.AddEdge("A", "B", 100))

	require.NoError(t, g.MarkAssigned("A"))
	require.Empty(t, g.ReadyTasks())

	g.CompleteOutgoing("A")
	ready := g.ReadyTasks()
	require.Len(t, ready, 1)
	require.Equal(t, "B", ready[0].Name)
}

func TestParseDOTAndStripSyntheticEndpoints(t *testing.T) {
	src := `digraph {
  root [size=0];
  A [size=1000000000];
  B [size=1000000000];
  end [size=0];
  root -> A [size=0];
  A -> B [size=1000000];
  B -> end [size=0];
}`
	raw, err := ParseDOT(strings.NewReader(src))
	require.NoError(t, err)
	require.Equal(t, []string{"root", "A", "B", "end"}, raw.order)

	g, err := StripSyntheticEndpoints(raw)
	require.NoError(t, err)

	ready := g.ReadyTasks()
	require.Len(t, ready, 1)
	require.Equal(t, "A", ready[0].Name)

	ok, err := g.EdgeCompleted("B", SinkName)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMissingEdgeReturnsMissingKeyError(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.AddTask("A", 1))
	_, err := g.EdgeCompleted("A", "nope")
	require.Error(t, err)
}
