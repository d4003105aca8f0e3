package costmodel

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	nferrors "github.com/DonAurelio/nflows/internal/errors"
)

// Matrix is a square N×N distance matrix indexed by NUMA id, read
// once at initialize and immutable thereafter (§3, §6).
type Matrix [][]float64

// At returns the value for the (src, dst) NUMA pair.
func (m Matrix) At(src, dst int) (float64, error) {
	if src < 0 || src >= len(m) || dst < 0 || dst >= len(m[src]) {
		return 0, nferrors.TopologyMiss("numa id out of range for distance matrix", map[string]interface{}{"src": src, "dst": dst})
	}
	return m[src][dst], nil
}

// LoadMatrix reads the §6 distance-matrix text format: a first line
// with integer N, then N lines of N whitespace-separated floats in
// row-major order.
func LoadMatrix(path string) (Matrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nferrors.FileIO("cannot open distance matrix file", map[string]interface{}{"path": path, "error": err.Error()})
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !scanner.Scan() {
		return nil, nferrors.FileIO("distance matrix file is empty", map[string]interface{}{"path": path})
	}
	n, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
	if err != nil || n < 0 {
		return nil, nferrors.FileIO("distance matrix file has malformed size header", map[string]interface{}{"path": path})
	}

	m := make(Matrix, n)
	for i := 0; i < n; i++ {
		if !scanner.Scan() {
			return nil, nferrors.FileIO("distance matrix file truncated", map[string]interface{}{"path": path, "row": i})
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) != n {
			return nil, nferrors.FileIO("distance matrix row has wrong column count", map[string]interface{}{"path": path, "row": i, "got": len(fields), "want": n})
		}
		row := make([]float64, n)
		for j, field := range fields {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, nferrors.FileIO("distance matrix entry is not numeric", map[string]interface{}{"path": path, "row": i, "col": j})
			}
			row[j] = v
		}
		m[i] = row
	}
	if err := scanner.Err(); err != nil {
		return nil, nferrors.FileIO("error reading distance matrix file", map[string]interface{}{"path": path, "error": err.Error()})
	}
	return m, nil
}

// WriteMatrix serializes a Matrix in the §6 text format, used by the
// round-trip property test of §8 (integer inputs reproduce bit-exactly).
func WriteMatrix(path string, m Matrix) error {
	f, err := os.Create(path)
	if err != nil {
		return nferrors.FileIO("cannot create distance matrix file", map[string]interface{}{"path": path, "error": err.Error()})
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintln(w, len(m))
	for _, row := range m {
		parts := make([]string, len(row))
		for i, v := range row {
			parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		fmt.Fprintln(w, strings.Join(parts, " "))
	}
	return w.Flush()
}
