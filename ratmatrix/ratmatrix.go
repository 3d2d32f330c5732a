// Copyright (c) 2023 Colin McRae

// Package ratmatrix represents matrices with exact rational entries and
// the operations the SDP core needs from them: arithmetic, the packing
// between symmetric matrices and their upper-triangle vectorizations, and
// exact solution of underdetermined linear systems.
package ratmatrix

import (
	"fmt"
	"math/big"
	"strings"
)

// ErrNoSolution is wrapped by SolveUndetermined when the linear system is
// inconsistent.
var ErrNoSolution = fmt.Errorf("linear system has no solution")

type Matrix struct {
	values  []*big.Rat
	numRows int
	numCols int
}

// NewEmpty returns a numRows x numCols matrix with 0s in each value.
// Negative numRows or numCols is interpreted as 0. Matrices with zero
// columns but positive rows are legal; they arise as the space of an
// affine family with no degrees of freedom.
func NewEmpty(numRows int, numCols int) *Matrix {
	if numRows < 0 {
		numRows = 0
	}
	if numCols < 0 {
		numCols = 0
	}
	if numRows*numCols == 0 {
		return &Matrix{values: nil, numRows: numRows, numCols: numCols}
	}
	retVal := &Matrix{
		values:  make([]*big.Rat, numRows*numCols),
		numRows: numRows,
		numCols: numCols,
	}
	for i := range retVal.values {
		retVal.values[i] = new(big.Rat)
	}
	return retVal
}

// NewFromInt64Array creates a matrix with integer-valued entries from input
// with dimensions numRowsIn x numColsIn. If the number of rows and columns
// are not positive and/or do not match the length of the input, an error is
// returned.
func NewFromInt64Array(input []int64, numRowsIn int, numColsIn int) (*Matrix, error) {
	if numRowsIn <= 0 || numColsIn <= 0 {
		return nil, fmt.Errorf(
			"Matrix.NewFromInt64Array: illegal number of rows %d or columns %d",
			numRowsIn, numColsIn,
		)
	}
	if len(input) != numRowsIn*numColsIn {
		return nil, fmt.Errorf("Matrix.NewFromInt64Array: length of input does not match dimensions")
	}
	retVal := &Matrix{
		values:  make([]*big.Rat, numRowsIn*numColsIn),
		numRows: numRowsIn,
		numCols: numColsIn,
	}
	for index, value := range input {
		retVal.values[index] = new(big.Rat).SetInt64(value)
	}
	return retVal, nil
}

// NewFromRatArray creates a matrix from a row-major array of rationals.
// The entries are copied.
func NewFromRatArray(input []*big.Rat, numRowsIn int, numColsIn int) (*Matrix, error) {
	if numRowsIn <= 0 || numColsIn <= 0 {
		return nil, fmt.Errorf(
			"Matrix.NewFromRatArray: illegal number of rows %d or columns %d",
			numRowsIn, numColsIn,
		)
	}
	if len(input) != numRowsIn*numColsIn {
		return nil, fmt.Errorf("Matrix.NewFromRatArray: length of input does not match dimensions")
	}
	retVal := &Matrix{
		values:  make([]*big.Rat, numRowsIn*numColsIn),
		numRows: numRowsIn,
		numCols: numColsIn,
	}
	for index, value := range input {
		if value == nil {
			return nil, fmt.Errorf("Matrix.NewFromRatArray: entry %d is nil", index)
		}
		retVal.values[index] = new(big.Rat).Set(value)
	}
	return retVal, nil
}

// NewFromStringArray creates a matrix from a row-major array of strings in
// any form big.Rat accepts, e.g. "3", "-1/7" or "0.25".
func NewFromStringArray(input []string, numRowsIn int, numColsIn int) (*Matrix, error) {
	if numRowsIn <= 0 || numColsIn <= 0 {
		return nil, fmt.Errorf(
			"Matrix.NewFromStringArray: illegal number of rows %d or columns %d",
			numRowsIn, numColsIn,
		)
	}
	if len(input) != numRowsIn*numColsIn {
		return nil, fmt.Errorf("Matrix.NewFromStringArray: length of input does not match dimensions")
	}
	retVal := &Matrix{
		values:  make([]*big.Rat, numRowsIn*numColsIn),
		numRows: numRowsIn,
		numCols: numColsIn,
	}
	for index, value := range input {
		r, ok := new(big.Rat).SetString(value)
		if !ok {
			return nil, fmt.Errorf("Matrix.NewFromStringArray: could not parse %q", value)
		}
		retVal.values[index] = r
	}
	return retVal, nil
}

// NewIdentity returns the dim x dim identity matrix.
func NewIdentity(dim int) (*Matrix, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("Matrix.NewIdentity: illegal dimension %d", dim)
	}
	retVal := NewEmpty(dim, dim)
	for i := 0; i < dim; i++ {
		retVal.values[i*dim+i].SetInt64(1)
	}
	return retVal, nil
}

func (m *Matrix) NumRows() int { return m.numRows }
func (m *Matrix) NumCols() int { return m.numCols }

// Dimensions returns the number of rows and columns of m.
func (m *Matrix) Dimensions() (int, int) { return m.numRows, m.numCols }

// Get returns the entry in row i, column j. The returned value is the
// stored rational, not a copy.
func (m *Matrix) Get(i int, j int) (*big.Rat, error) {
	if i < 0 || i >= m.numRows || j < 0 || j >= m.numCols {
		return nil, fmt.Errorf(
			"Matrix.Get: index (%d,%d) out of range for %d x %d matrix",
			i, j, m.numRows, m.numCols,
		)
	}
	return m.values[i*m.numCols+j], nil
}

// Set copies value into row i, column j.
func (m *Matrix) Set(i int, j int, value *big.Rat) error {
	if i < 0 || i >= m.numRows || j < 0 || j >= m.numCols {
		return fmt.Errorf(
			"Matrix.Set: index (%d,%d) out of range for %d x %d matrix",
			i, j, m.numRows, m.numCols,
		)
	}
	if value == nil {
		return fmt.Errorf("Matrix.Set: value is nil")
	}
	m.values[i*m.numCols+j].Set(value)
	return nil
}

// Copy returns a deep copy of m.
func (m *Matrix) Copy() *Matrix {
	retVal := &Matrix{
		values:  make([]*big.Rat, len(m.values)),
		numRows: m.numRows,
		numCols: m.numCols,
	}
	for i, v := range m.values {
		retVal.values[i] = new(big.Rat).Set(v)
	}
	return retVal
}

// Add returns m + x.
func (m *Matrix) Add(x *Matrix) (*Matrix, error) {
	if m.numRows != x.numRows || m.numCols != x.numCols {
		return nil, fmt.Errorf(
			"Matrix.Add: mismatched dimensions (%d x %d) and (%d x %d)",
			m.numRows, m.numCols, x.numRows, x.numCols,
		)
	}
	retVal := m.Copy()
	for i := range retVal.values {
		retVal.values[i].Add(retVal.values[i], x.values[i])
	}
	return retVal, nil
}

// Sub returns m - x.
func (m *Matrix) Sub(x *Matrix) (*Matrix, error) {
	if m.numRows != x.numRows || m.numCols != x.numCols {
		return nil, fmt.Errorf(
			"Matrix.Sub: mismatched dimensions (%d x %d) and (%d x %d)",
			m.numRows, m.numCols, x.numRows, x.numCols,
		)
	}
	retVal := m.Copy()
	for i := range retVal.values {
		retVal.values[i].Sub(retVal.values[i], x.values[i])
	}
	return retVal, nil
}

// Mul returns the matrix product m * x.
func (m *Matrix) Mul(x *Matrix) (*Matrix, error) {
	if m.numCols != x.numRows {
		return nil, fmt.Errorf(
			"Matrix.Mul: mismatched dimensions for operands (%d x %d) and (%d x %d)",
			m.numRows, m.numCols, x.numRows, x.numCols,
		)
	}
	retVal := NewEmpty(m.numRows, x.numCols)
	if m.numCols == 0 || retVal.numRows == 0 {
		// an empty inner dimension yields the zero matrix
		return retVal, nil
	}
	term := new(big.Rat)
	for i := 0; i < m.numRows; i++ {
		for j := 0; j < x.numCols; j++ {
			entry := retVal.values[i*x.numCols+j]
			for k := 0; k < m.numCols; k++ {
				term.Mul(m.values[i*m.numCols+k], x.values[k*x.numCols+j])
				entry.Add(entry, term)
			}
		}
	}
	return retVal, nil
}

// ScalarMul returns c * m.
func (m *Matrix) ScalarMul(c *big.Rat) *Matrix {
	retVal := m.Copy()
	for i := range retVal.values {
		retVal.values[i].Mul(retVal.values[i], c)
	}
	return retVal
}

// Transpose returns the transpose of m.
func (m *Matrix) Transpose() *Matrix {
	retVal := NewEmpty(m.numCols, m.numRows)
	for i := 0; i < m.numRows; i++ {
		for j := 0; j < m.numCols; j++ {
			retVal.values[j*m.numRows+i].Set(m.values[i*m.numCols+j])
		}
	}
	return retVal
}

// Equals reports whether m and x have the same dimensions and entries.
func (m *Matrix) Equals(x *Matrix) bool {
	if m.numRows != x.numRows || m.numCols != x.numCols {
		return false
	}
	for i := range m.values {
		if m.values[i].Cmp(x.values[i]) != 0 {
			return false
		}
	}
	return true
}

// SubRows returns the matrix consisting of the rows of m with the given
// indices, in the given order.
func (m *Matrix) SubRows(rows []int) (*Matrix, error) {
	retVal := &Matrix{
		values:  make([]*big.Rat, 0, len(rows)*m.numCols),
		numRows: len(rows),
		numCols: m.numCols,
	}
	for _, r := range rows {
		if r < 0 || r >= m.numRows {
			return nil, fmt.Errorf("Matrix.SubRows: row %d out of range for %d rows", r, m.numRows)
		}
		for j := 0; j < m.numCols; j++ {
			retVal.values = append(retVal.values, new(big.Rat).Set(m.values[r*m.numCols+j]))
		}
	}
	return retVal, nil
}

// String formats m as nested brackets of rational strings.
func (m *Matrix) String() string {
	var sb strings.Builder
	sb.WriteString("[")
	for i := 0; i < m.numRows; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("[")
		for j := 0; j < m.numCols; j++ {
			if j > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(m.values[i*m.numCols+j].RatString())
		}
		sb.WriteString("]")
	}
	sb.WriteString("]")
	return sb.String()
}
