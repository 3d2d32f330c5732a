// Copyright (c) 2023 Colin McRae

package ratmatrix

import (
	"fmt"
	"math/big"
)

// UpperVecLen returns the length of the upper-triangle vectorization of a
// dim x dim symmetric matrix, dim*(dim+1)/2.
func UpperVecLen(dim int) int {
	return dim * (dim + 1) / 2
}

// DimFromUpperVecLen returns the dim with UpperVecLen(dim) == length. A
// length that is not a triangular number is an error. Length 0 maps to
// dimension 0.
func DimFromUpperVecLen(length int) (int, error) {
	if length < 0 {
		return 0, fmt.Errorf("DimFromUpperVecLen: negative length %d", length)
	}
	dim := 0
	for UpperVecLen(dim) < length {
		dim++
	}
	if UpperVecLen(dim) != length {
		return 0, fmt.Errorf("DimFromUpperVecLen: %d is not a triangular number", length)
	}
	return dim, nil
}

// UpperVecIndices returns the (row, column) coordinates of each slot of
// the upper-triangle vectorization of a dim x dim symmetric matrix, in
// row-major order: (0,0), (0,1), ..., (0,dim-1), (1,1), ...
func UpperVecIndices(dim int) [][2]int {
	indices := make([][2]int, 0, UpperVecLen(dim))
	for i := 0; i < dim; i++ {
		for j := i; j < dim; j++ {
			indices = append(indices, [2]int{i, j})
		}
	}
	return indices
}

// SymmetricFromUpperVec unpacks a column vector holding the row-major
// upper triangle of a symmetric matrix into the full matrix.
func SymmetricFromUpperVec(vec *Matrix) (*Matrix, error) {
	if vec.numCols > 1 {
		return nil, fmt.Errorf(
			"SymmetricFromUpperVec: expected a column vector, got %d x %d",
			vec.numRows, vec.numCols,
		)
	}
	dim, err := DimFromUpperVecLen(vec.numRows)
	if err != nil {
		return nil, fmt.Errorf("SymmetricFromUpperVec: %s", err.Error())
	}
	retVal := NewEmpty(dim, dim)
	for v, ij := range UpperVecIndices(dim) {
		i, j := ij[0], ij[1]
		retVal.values[i*dim+j].Set(vec.values[v])
		retVal.values[j*dim+i].Set(vec.values[v])
	}
	return retVal, nil
}

// UpperVecOfSymmetric packs the row-major upper triangle of a symmetric
// matrix into a column vector, the inverse of SymmetricFromUpperVec.
func UpperVecOfSymmetric(s *Matrix) (*Matrix, error) {
	if s.numRows != s.numCols {
		return nil, fmt.Errorf(
			"UpperVecOfSymmetric: expected a square matrix, got %d x %d",
			s.numRows, s.numCols,
		)
	}
	dim := s.numRows
	retVal := NewEmpty(UpperVecLen(dim), 1)
	for v, ij := range UpperVecIndices(dim) {
		retVal.values[v].Set(s.values[ij[0]*dim+ij[1]])
	}
	return retVal, nil
}

// IsSymmetric reports whether s is square with s[i][j] == s[j][i].
func (m *Matrix) IsSymmetric() bool {
	if m.numRows != m.numCols {
		return false
	}
	for i := 0; i < m.numRows; i++ {
		for j := i + 1; j < m.numCols; j++ {
			if m.values[i*m.numCols+j].Cmp(m.values[j*m.numCols+i]) != 0 {
				return false
			}
		}
	}
	return true
}

// SolveUndetermined solves the linear system a*x = b exactly, where a is
// m x n with m <= n typical, and b is m x 1. It returns a particular
// solution x0 (n x 1) and a matrix whose columns span the null space of a
// (n x numFree), so that the full solution set is {x0 + nullspace*w}.
// It wraps ErrNoSolution if the system is inconsistent.
func SolveUndetermined(a *Matrix, b *Matrix) (*Matrix, *Matrix, error) {
	if b.numCols != 1 && !(b.numRows == 0 && b.numCols == 0) {
		return nil, nil, fmt.Errorf(
			"SolveUndetermined: right-hand side must be a column vector, got %d x %d",
			b.numRows, b.numCols,
		)
	}
	if a.numRows != b.numRows {
		return nil, nil, fmt.Errorf(
			"SolveUndetermined: mismatched dimensions for a (%d x %d) and b (%d x 1)",
			a.numRows, a.numCols, b.numRows,
		)
	}
	numRows, numCols := a.numRows, a.numCols

	// reduced row echelon form of the augmented system [a | b]
	work := a.Copy()
	rhs := b.Copy()
	pivotCols := make([]int, 0, numRows)
	ratio := new(big.Rat)
	term := new(big.Rat)
	row := 0
	for col := 0; col < numCols && row < numRows; col++ {
		pivotRow := -1
		for r := row; r < numRows; r++ {
			if work.values[r*numCols+col].Sign() != 0 {
				pivotRow = r
				break
			}
		}
		if pivotRow < 0 {
			continue
		}
		if pivotRow != row {
			for c := 0; c < numCols; c++ {
				work.values[row*numCols+c], work.values[pivotRow*numCols+c] =
					work.values[pivotRow*numCols+c], work.values[row*numCols+c]
			}
			rhs.values[row], rhs.values[pivotRow] = rhs.values[pivotRow], rhs.values[row]
		}
		pivot := new(big.Rat).Set(work.values[row*numCols+col])
		for c := col; c < numCols; c++ {
			work.values[row*numCols+c].Quo(work.values[row*numCols+c], pivot)
		}
		rhs.values[row].Quo(rhs.values[row], pivot)
		for r := 0; r < numRows; r++ {
			if r == row || work.values[r*numCols+col].Sign() == 0 {
				continue
			}
			ratio.Set(work.values[r*numCols+col])
			for c := col; c < numCols; c++ {
				term.Mul(ratio, work.values[row*numCols+c])
				work.values[r*numCols+c].Sub(work.values[r*numCols+c], term)
			}
			term.Mul(ratio, rhs.values[row])
			rhs.values[r].Sub(rhs.values[r], term)
		}
		pivotCols = append(pivotCols, col)
		row++
	}

	// a zero row of the reduced system with a nonzero right-hand side
	// witnesses inconsistency
	for r := row; r < numRows; r++ {
		if rhs.values[r].Sign() != 0 {
			return nil, nil, fmt.Errorf("SolveUndetermined: %w", ErrNoSolution)
		}
	}

	isPivot := make([]bool, numCols)
	for _, c := range pivotCols {
		isPivot[c] = true
	}
	freeCols := make([]int, 0, numCols-len(pivotCols))
	for c := 0; c < numCols; c++ {
		if !isPivot[c] {
			freeCols = append(freeCols, c)
		}
	}

	x0 := NewEmpty(numCols, 1)
	for r, c := range pivotCols {
		x0.values[c].Set(rhs.values[r])
	}

	nullspace := NewEmpty(numCols, len(freeCols))
	for k, free := range freeCols {
		nullspace.values[free*len(freeCols)+k].SetInt64(1)
		for r, c := range pivotCols {
			entry := nullspace.values[c*len(freeCols)+k]
			entry.Neg(work.values[r*numCols+free])
		}
	}
	return x0, nullspace, nil
}
