package dag

import (
	"bufio"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	nferrors "github.com/DonAurelio/nflows/internal/errors"
)

// nodeLine matches `name [size=123];` style DOT node declarations.
var nodeLine = regexp.MustCompile(`^\s*"?([A-Za-z0-9_]+)"?\s*\[([^\]]*)\]\s*;?\s*$`)

// edgeLine matches `src -> dst [size=123];` style DOT edge declarations.
var edgeLine = regexp.MustCompile(`^\s*"?([A-Za-z0-9_]+)"?\s*->\s*"?([A-Za-z0-9_]+)"?\s*(\[([^\]]*)\])?\s*;?\s*$`)

var sizeAttr = regexp.MustCompile(`size\s*=\s*"?([0-9.eE+-]+)"?`)

// rawGraph is the order-preserving result of parsing a DOT file, before
// the synthetic entry/exit nodes are stripped.
type rawGraph struct {
	order []string
	flops map[string]float64
	edges []Edge
}

// ParseDOT reads a DAG from DOT-format text. Exec nodes carry a `size`
// (FLOPs) attribute; comm edges carry a `size` (bytes) attribute, per §6.
func ParseDOT(r io.Reader) (*rawGraph, error) {
	g := &rawGraph{flops: make(map[string]float64)}
	seen := make(map[string]bool)

	ensure := func(name string) {
		if !seen[name] {
			seen[name] = true
			g.order = append(g.order, name)
		}
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "//") || strings.HasPrefix(line, "digraph") || line == "{" || line == "}" {
			continue
		}
		if m := edgeLine.FindStringSubmatch(line); m != nil {
			src, dst := m[1], m[2]
			ensure(src)
			ensure(dst)
			payload := parseSize(m[4])
			g.edges = append(g.edges, Edge{Src: src, Dst: dst, Payload: payload})
			continue
		}
		if m := nodeLine.FindStringSubmatch(line); m != nil {
			name := m[1]
			ensure(name)
			if f := parseSize(m[2]); f > 0 {
				g.flops[name] = f
			}
			continue
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nferrors.FileIO("failed scanning dot file", map[string]interface{}{"error": err.Error()})
	}
	return g, nil
}

func parseSize(attrs string) float64 {
	m := sizeAttr.FindStringSubmatch(attrs)
	if m == nil {
		return 0
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	return v
}

// LoadDOT reads a DAG from a DOT file and strips the synthetic entry
// and exit tasks exactly as the original reader does: the first node
// of the parsed sequence is the entry (it and its outgoing edges are
// dropped, so its successors have no predecessor to wait on), and the last node
// is the exit (dropped outright; its incoming edges remain named
// "...->end" per §3 and are never materialized as reads/writes).
func LoadDOT(path string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nferrors.FileIO("cannot open dag file", map[string]interface{}{"path": path, "error": err.Error()})
	}
	defer f.Close()

	raw, err := ParseDOT(f)
	if err != nil {
		return nil, err
	}
	return StripSyntheticEndpoints(raw)
}

// StripSyntheticEndpoints removes the first and last node of a raw
// parsed DAG (the synthetic entry/exit), dropping the entry's outgoing
// edges so its successors become ready immediately.
func StripSyntheticEndpoints(raw *rawGraph) (*Graph, error) {
	if len(raw.order) < 2 {
		return nil, nferrors.InvalidConfig("dag must contain at least entry and exit nodes", nil)
	}

	entry := raw.order[0]
	exit := raw.order[len(raw.order)-1]
	kept := raw.order[1 : len(raw.order)-1]

	g := NewGraph()
	for _, name := range kept {
		if err := g.AddTask(name, raw.flops[name]); err != nil {
			return nil, err
		}
	}

	for _, e := range raw.edges {
		if e.Src == entry {
			// Entry edges are dropped: their destinations become
			// unconditionally ready (no predecessor to wait on).
			continue
		}
		if e.Dst == exit {
			// Exit edges are renamed to the distinguished sink so
			// they are never materialized as reads/writes (§3).
			e.Dst = SinkName
		}
		if err := g.AddEdge(e.Src, e.Dst, e.Payload); err != nil {
			return nil, err
		}
	}

	return g, nil
}
