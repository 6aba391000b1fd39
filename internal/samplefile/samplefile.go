// Package samplefile reads and writes sample sets as CSV, one sample per
// line.
package samplefile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"gonum.org/v1/gonum/mat"
)

// ErrEmpty is returned by Read when the input holds no samples.
var ErrEmpty = errors.New("samplefile: no samples")

// Read parses comma separated samples from r into the rows of a matrix.
// Every line must have the same number of fields.
func Read(r io.Reader) (*mat.Dense, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	var (
		data []float64
		dim  int
		rows int
	)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("samplefile: %w", err)
		}
		if rows == 0 {
			dim = len(rec)
		}
		for j, f := range rec {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("samplefile: line %d field %d: %w", rows+1, j+1, err)
			}
			data = append(data, v)
		}
		rows++
	}
	if rows == 0 || dim == 0 {
		return nil, ErrEmpty
	}
	return mat.NewDense(rows, dim, data), nil
}

// Write writes the rows of x to w as comma separated samples.
func Write(w io.Writer, x mat.Matrix) error {
	cw := csv.NewWriter(w)
	r, c := x.Dims()
	rec := make([]string, c)
	for i := 0; i < r; i++ {
		for j := range rec {
			rec[j] = strconv.FormatFloat(x.At(i, j), 'g', -1, 64)
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("samplefile: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
