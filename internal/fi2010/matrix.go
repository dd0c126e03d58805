package fi2010

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// maxLineBytes bounds a single input line. FI-2010 rows span a full trading
// day of events, which easily exceeds the default bufio token size.
const maxLineBytes = 64 * 1024 * 1024

// Matrix is a dense row-major 2D numeric table. Raw FI-2010 files are read
// into one Matrix per fold: rows are feature/label channels, columns are
// time steps. A Matrix is never mutated after loading.
type Matrix struct {
	rows int
	cols int
	data []float64
}

// NewMatrix allocates a zero-filled rows x cols matrix.
func NewMatrix(rows, cols int) *Matrix {
	return &Matrix{rows: rows, cols: cols, data: make([]float64, rows*cols)}
}

func (m *Matrix) Rows() int { return m.rows }
func (m *Matrix) Cols() int { return m.cols }

// At returns the element at row r, column c. Indices are not range-checked
// beyond the slice bounds themselves.
func (m *Matrix) At(r, c int) float64 { return m.data[r*m.cols+c] }

// Set stores v at row r, column c.
func (m *Matrix) Set(r, c int, v float64) { m.data[r*m.cols+c] = v }

// Row returns row r as a slice sharing the matrix backing array.
func (m *Matrix) Row(r int) []float64 {
	return m.data[r*m.cols : (r+1)*m.cols]
}

// Transpose returns a new matrix with rows and columns swapped.
func (m *Matrix) Transpose() *Matrix {
	t := NewMatrix(m.cols, m.rows)
	for r := 0; r < m.rows; r++ {
		row := m.Row(r)
		for c, v := range row {
			t.data[c*t.cols+r] = v
		}
	}
	return t
}

// ReadMatrix parses a whitespace-delimited numeric table. Each non-blank
// line becomes one row; every row must carry the same number of columns.
func ReadMatrix(r io.Reader) (*Matrix, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 1024*1024), maxLineBytes)

	var (
		data []float64
		rows int
		cols int
	)
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if rows == 0 {
			cols = len(fields)
		} else if len(fields) != cols {
			return nil, fmt.Errorf("%w: line %d has %d columns, expected %d",
				ErrInvalidShape, line, len(fields), cols)
		}
		for _, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: parsing %q: %v",
					ErrInvalidShape, line, f, err)
			}
			data = append(data, v)
		}
		rows++
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading matrix: %w", err)
	}
	if rows == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrInvalidShape)
	}
	return &Matrix{rows: rows, cols: cols, data: data}, nil
}

// LoadFile reads one fold file into a matrix.
func LoadFile(path string) (*Matrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	m, err := ReadMatrix(f)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return m, nil
}

// LoadFiles reads several fold files and concatenates them column-wise in
// the given order. Test-period folds are combined this way before use.
func LoadFiles(paths ...string) (*Matrix, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no input files", ErrInvalidShape)
	}
	ms := make([]*Matrix, 0, len(paths))
	for _, p := range paths {
		m, err := LoadFile(p)
		if err != nil {
			return nil, err
		}
		ms = append(ms, m)
	}
	return ConcatColumns(ms...)
}

// ConcatColumns joins matrices column-wise. Every input must have the same
// row count.
func ConcatColumns(ms ...*Matrix) (*Matrix, error) {
	if len(ms) == 0 {
		return nil, fmt.Errorf("%w: nothing to concatenate", ErrInvalidShape)
	}
	if len(ms) == 1 {
		return ms[0], nil
	}
	rows := ms[0].rows
	cols := 0
	for i, m := range ms {
		if m.rows != rows {
			return nil, fmt.Errorf("%w: matrix %d has %d rows, expected %d",
				ErrInvalidShape, i, m.rows, rows)
		}
		cols += m.cols
	}
	out := NewMatrix(rows, cols)
	for r := 0; r < rows; r++ {
		dst := out.Row(r)
		off := 0
		for _, m := range ms {
			off += copy(dst[off:], m.Row(r))
		}
	}
	return out, nil
}
