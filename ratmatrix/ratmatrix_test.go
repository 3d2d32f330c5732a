// Copyright (c) 2023 Colin McRae

package ratmatrix

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFromInt64Array(t *testing.T) {
	m, err := NewFromInt64Array([]int64{1, 2, 3, 4, 5, 6}, 2, 3)
	assert.NoError(t, err)
	assert.Equal(t, 2, m.NumRows())
	assert.Equal(t, 3, m.NumCols())
	entry, err := m.Get(1, 2)
	assert.NoError(t, err)
	assert.Equal(t, "6", entry.RatString())

	// dimension mismatches
	m, err = NewFromInt64Array([]int64{1, 2, 3}, 2, 2)
	assert.Error(t, err)
	assert.Nil(t, m)
	m, err = NewFromInt64Array([]int64{}, 0, 3)
	assert.Error(t, err)
	assert.Nil(t, m)
}

func TestNewFromStringArray(t *testing.T) {
	m, err := NewFromStringArray([]string{"1/2", "-3", "0.25", "7/3"}, 2, 2)
	assert.NoError(t, err)
	entry, err := m.Get(0, 0)
	assert.NoError(t, err)
	assert.Equal(t, "1/2", entry.RatString())
	entry, err = m.Get(1, 0)
	assert.NoError(t, err)
	assert.Equal(t, "1/4", entry.RatString())

	m, err = NewFromStringArray([]string{"1/2", "zebra"}, 1, 2)
	assert.Error(t, err)
	assert.Nil(t, m)
}

func TestNewFromRatArray(t *testing.T) {
	m, err := NewFromRatArray([]*big.Rat{big.NewRat(1, 2), big.NewRat(3, 1)}, 2, 1)
	assert.NoError(t, err)
	assert.Equal(t, "[[1/2], [3]]", m.String())

	m, err = NewFromRatArray([]*big.Rat{big.NewRat(1, 2), nil}, 2, 1)
	assert.Error(t, err)
	assert.Nil(t, m)
}

func TestNewEmptyZeroDimensions(t *testing.T) {
	m := NewEmpty(3, 0)
	assert.Equal(t, 3, m.NumRows())
	assert.Equal(t, 0, m.NumCols())

	m = NewEmpty(-1, 2)
	assert.Equal(t, 0, m.NumRows())
}

func TestNewIdentity(t *testing.T) {
	m, err := NewIdentity(3)
	assert.NoError(t, err)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			entry, err := m.Get(i, j)
			assert.NoError(t, err)
			if i == j {
				assert.Equal(t, "1", entry.RatString())
			} else {
				assert.Equal(t, 0, entry.Sign())
			}
		}
	}

	m, err = NewIdentity(0)
	assert.Error(t, err)
	assert.Nil(t, m)
}

func TestGetSetBounds(t *testing.T) {
	m := NewEmpty(2, 2)
	_, err := m.Get(2, 0)
	assert.Error(t, err)
	err = m.Set(0, 2, big.NewRat(1, 1))
	assert.Error(t, err)
	err = m.Set(0, 0, nil)
	assert.Error(t, err)
	err = m.Set(1, 1, big.NewRat(5, 3))
	assert.NoError(t, err)
	entry, err := m.Get(1, 1)
	assert.NoError(t, err)
	assert.Equal(t, "5/3", entry.RatString())
}

func TestAddSub(t *testing.T) {
	a, err := NewFromInt64Array([]int64{1, 2, 3, 4}, 2, 2)
	require.NoError(t, err)
	b, err := NewFromInt64Array([]int64{5, 6, 7, 8}, 2, 2)
	require.NoError(t, err)

	sum, err := a.Add(b)
	assert.NoError(t, err)
	assert.Equal(t, "[[6, 8], [10, 12]]", sum.String())

	diff, err := sum.Sub(b)
	assert.NoError(t, err)
	assert.True(t, diff.Equals(a))

	c := NewEmpty(1, 2)
	_, err = a.Add(c)
	assert.Error(t, err)
}

func TestMul(t *testing.T) {
	a, err := NewFromInt64Array([]int64{1, 2, 3, 4}, 2, 2)
	require.NoError(t, err)
	b, err := NewFromInt64Array([]int64{5, 6, 7, 8}, 2, 2)
	require.NoError(t, err)

	product, err := a.Mul(b)
	assert.NoError(t, err)
	assert.Equal(t, "[[19, 22], [43, 50]]", product.String())

	c := NewEmpty(3, 2)
	_, err = a.Mul(c)
	assert.Error(t, err)
}

func TestMulZeroInnerDimension(t *testing.T) {
	// a 2 x 0 space times a 0 x 1 vector is the 2 x 1 zero vector
	space := NewEmpty(2, 0)
	y := NewEmpty(0, 1)
	product, err := space.Mul(y)
	assert.NoError(t, err)
	assert.Equal(t, 2, product.NumRows())
	assert.Equal(t, 1, product.NumCols())
	entry, err := product.Get(0, 0)
	assert.NoError(t, err)
	assert.Equal(t, 0, entry.Sign())
}

func TestScalarMulTranspose(t *testing.T) {
	a, err := NewFromInt64Array([]int64{1, 2, 3, 4, 5, 6}, 2, 3)
	require.NoError(t, err)

	scaled := a.ScalarMul(big.NewRat(1, 2))
	assert.Equal(t, "[[1/2, 1, 3/2], [2, 5/2, 3]]", scaled.String())
	// the receiver is untouched
	assert.Equal(t, "[[1, 2, 3], [4, 5, 6]]", a.String())

	tr := a.Transpose()
	assert.Equal(t, "[[1, 4], [2, 5], [3, 6]]", tr.String())
	assert.True(t, tr.Transpose().Equals(a))
}

func TestCopyIsDeep(t *testing.T) {
	a, err := NewFromInt64Array([]int64{1, 2, 3, 4}, 2, 2)
	require.NoError(t, err)
	b := a.Copy()
	err = b.Set(0, 0, big.NewRat(9, 1))
	require.NoError(t, err)
	entry, err := a.Get(0, 0)
	assert.NoError(t, err)
	assert.Equal(t, "1", entry.RatString())
}

func TestSubRows(t *testing.T) {
	a, err := NewFromInt64Array([]int64{1, 2, 3, 4, 5, 6}, 3, 2)
	require.NoError(t, err)

	sub, err := a.SubRows([]int{2, 0})
	assert.NoError(t, err)
	assert.Equal(t, "[[5, 6], [1, 2]]", sub.String())

	sub, err = a.SubRows([]int{3})
	assert.Error(t, err)
	assert.Nil(t, sub)

	sub, err = a.SubRows(nil)
	assert.NoError(t, err)
	assert.Equal(t, 0, sub.NumRows())
}
