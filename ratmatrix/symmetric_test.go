// Copyright (c) 2023 Colin McRae

package ratmatrix

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpperVecLen(t *testing.T) {
	assert.Equal(t, 0, UpperVecLen(0))
	assert.Equal(t, 1, UpperVecLen(1))
	assert.Equal(t, 3, UpperVecLen(2))
	assert.Equal(t, 6, UpperVecLen(3))
}

func TestDimFromUpperVecLen(t *testing.T) {
	for dim := 0; dim < 8; dim++ {
		back, err := DimFromUpperVecLen(UpperVecLen(dim))
		assert.NoError(t, err)
		assert.Equal(t, dim, back)
	}
	_, err := DimFromUpperVecLen(2)
	assert.Error(t, err)
	_, err = DimFromUpperVecLen(4)
	assert.Error(t, err)
	_, err = DimFromUpperVecLen(-1)
	assert.Error(t, err)
}

func TestUpperVecIndices(t *testing.T) {
	assert.Equal(t,
		[][2]int{{0, 0}, {0, 1}, {0, 2}, {1, 1}, {1, 2}, {2, 2}},
		UpperVecIndices(3),
	)
}

func TestSymmetricFromUpperVec(t *testing.T) {
	vec, err := NewFromInt64Array([]int64{1, 2, 3}, 3, 1)
	require.NoError(t, err)
	s, err := SymmetricFromUpperVec(vec)
	assert.NoError(t, err)
	assert.Equal(t, "[[1, 2], [2, 3]]", s.String())
	assert.True(t, s.IsSymmetric())

	// pack and unpack round-trip
	back, err := UpperVecOfSymmetric(s)
	assert.NoError(t, err)
	assert.True(t, back.Equals(vec))

	// not a triangular length
	vec, err = NewFromInt64Array([]int64{1, 2}, 2, 1)
	require.NoError(t, err)
	_, err = SymmetricFromUpperVec(vec)
	assert.Error(t, err)

	// not a column vector
	wide, err := NewFromInt64Array([]int64{1, 2, 3, 4}, 2, 2)
	require.NoError(t, err)
	_, err = SymmetricFromUpperVec(wide)
	assert.Error(t, err)
}

func TestIsSymmetric(t *testing.T) {
	s, err := NewFromInt64Array([]int64{1, 2, 2, 3}, 2, 2)
	require.NoError(t, err)
	assert.True(t, s.IsSymmetric())

	s, err = NewFromInt64Array([]int64{1, 2, 5, 3}, 2, 2)
	require.NoError(t, err)
	assert.False(t, s.IsSymmetric())

	rect := NewEmpty(2, 3)
	assert.False(t, rect.IsSymmetric())
}

func TestSolveUndetermined(t *testing.T) {
	// x + y = 2 has particular solution (2, 0) and a one-dimensional
	// null space
	a, err := NewFromInt64Array([]int64{1, 1}, 1, 2)
	require.NoError(t, err)
	b, err := NewFromInt64Array([]int64{2}, 1, 1)
	require.NoError(t, err)

	x0, nullspace, err := SolveUndetermined(a, b)
	assert.NoError(t, err)
	product, err := a.Mul(x0)
	require.NoError(t, err)
	assert.True(t, product.Equals(b))
	assert.Equal(t, 1, nullspace.NumCols())
	product, err = a.Mul(nullspace)
	require.NoError(t, err)
	entry, err := product.Get(0, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, entry.Sign())
}

func TestSolveUndeterminedWide(t *testing.T) {
	// two equations, four unknowns: null space has two columns and the
	// particular solution satisfies both equations exactly
	a, err := NewFromInt64Array([]int64{
		1, 2, 0, -1,
		0, 1, 1, 1,
	}, 2, 4)
	require.NoError(t, err)
	b, err := NewFromInt64Array([]int64{3, 5}, 2, 1)
	require.NoError(t, err)

	x0, nullspace, err := SolveUndetermined(a, b)
	assert.NoError(t, err)
	product, err := a.Mul(x0)
	require.NoError(t, err)
	assert.True(t, product.Equals(b))
	assert.Equal(t, 2, nullspace.NumCols())
	product, err = a.Mul(nullspace)
	require.NoError(t, err)
	for i := 0; i < product.NumRows(); i++ {
		for j := 0; j < product.NumCols(); j++ {
			entry, err := product.Get(i, j)
			require.NoError(t, err)
			assert.Equal(t, 0, entry.Sign())
		}
	}

	// combining the particular solution with a null space column stays a
	// solution
	column := NewEmpty(nullspace.NumRows(), 1)
	for i := 0; i < nullspace.NumRows(); i++ {
		entry, err := nullspace.Get(i, 0)
		require.NoError(t, err)
		require.NoError(t, column.Set(i, 0, entry))
	}
	shifted, err := x0.Add(column)
	require.NoError(t, err)
	product, err = a.Mul(shifted)
	require.NoError(t, err)
	assert.True(t, product.Equals(b))
}

func TestSolveUndeterminedInconsistent(t *testing.T) {
	a, err := NewFromInt64Array([]int64{0, 0}, 1, 2)
	require.NoError(t, err)
	b, err := NewFromInt64Array([]int64{1}, 1, 1)
	require.NoError(t, err)

	_, _, err = SolveUndetermined(a, b)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoSolution))
}

func TestSolveUndeterminedOverdetermined(t *testing.T) {
	// consistent duplicated equations are fine
	a, err := NewFromInt64Array([]int64{1, 1, 2, 2}, 2, 2)
	require.NoError(t, err)
	b, err := NewFromInt64Array([]int64{3, 6}, 2, 1)
	require.NoError(t, err)
	x0, _, err := SolveUndetermined(a, b)
	assert.NoError(t, err)
	product, err := a.Mul(x0)
	require.NoError(t, err)
	assert.True(t, product.Equals(b))

	// contradictory duplicated equations are not
	b, err = NewFromInt64Array([]int64{3, 7}, 2, 1)
	require.NoError(t, err)
	_, _, err = SolveUndetermined(a, b)
	assert.True(t, errors.Is(err, ErrNoSolution))
}
