// Copyright (c) 2023 Colin McRae

package sdp

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/zyckk4/Triple-SOS/ratmatrix"
)

func TestDecomposeKnown(t *testing.T) {
	s, err := ratmatrix.NewFromInt64Array([]int64{2, 1, 1, 2}, 2, 2)
	require.NoError(t, err)

	decomp, err := Decompose(s)
	assert.NoError(t, err)
	assert.True(t, decomp.Exact)
	require.Len(t, decomp.Diag, 2)
	assert.Equal(t, "2", decomp.Diag[0].RatString())
	assert.Equal(t, "3/2", decomp.Diag[1].RatString())
	assert.Equal(t, "[[1, 1/2], [0, 1]]", decomp.U.String())

	back, err := decomp.Reconstruct()
	assert.NoError(t, err)
	assert.True(t, back.Equals(s))
}

func TestDecomposeZeroPivotZeroRow(t *testing.T) {
	s, err := ratmatrix.NewFromInt64Array([]int64{0, 0, 0, 1}, 2, 2)
	require.NoError(t, err)

	decomp, err := Decompose(s)
	assert.NoError(t, err)
	assert.Equal(t, 0, decomp.Diag[0].Sign())
	assert.Equal(t, "1", decomp.Diag[1].RatString())

	back, err := decomp.Reconstruct()
	assert.NoError(t, err)
	assert.True(t, back.Equals(s))
}

func TestDecomposeNotPSD(t *testing.T) {
	// negative pivot up front
	s, err := ratmatrix.NewFromInt64Array([]int64{-1}, 1, 1)
	require.NoError(t, err)
	_, err = Decompose(s)
	assert.True(t, errors.Is(err, ErrNotPSD))

	// zero pivot with a nonzero off-diagonal entry
	s, err = ratmatrix.NewFromInt64Array([]int64{0, 1, 1, 0}, 2, 2)
	require.NoError(t, err)
	_, err = Decompose(s)
	assert.True(t, errors.Is(err, ErrNotPSD))

	// negative pivot surfaced by elimination
	s, err = ratmatrix.NewFromInt64Array([]int64{1, 2, 2, 1}, 2, 2)
	require.NoError(t, err)
	_, err = Decompose(s)
	assert.True(t, errors.Is(err, ErrNotPSD))
}

func TestDecomposeRejectsAsymmetric(t *testing.T) {
	s, err := ratmatrix.NewFromInt64Array([]int64{1, 2, 3, 4}, 2, 2)
	require.NoError(t, err)
	_, err = Decompose(s)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotPSD))
}

func TestDecomposeEmpty(t *testing.T) {
	decomp, err := Decompose(ratmatrix.NewEmpty(0, 0))
	assert.NoError(t, err)
	assert.Empty(t, decomp.Diag)
}

func TestDecomposePerturbed(t *testing.T) {
	s, err := ratmatrix.NewFromInt64Array([]int64{-1}, 1, 1)
	require.NoError(t, err)

	decomp, err := DecomposePerturbed(s, big.NewRat(2, 1))
	assert.NoError(t, err)
	assert.False(t, decomp.Exact)
	assert.Equal(t, "1", decomp.Diag[0].RatString())

	_, err = DecomposePerturbed(s, big.NewRat(-1, 1))
	assert.Error(t, err)
}

// TestDecomposeRoundTrip builds random matrices that are positive
// semidefinite by construction, as U^t * D * U with non-negative D, and
// checks that Decompose succeeds and reconstructs them exactly.
func TestDecomposeRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		dim := rapid.IntRange(1, 4).Draw(t, "dim")

		u, err := ratmatrix.NewIdentity(dim)
		require.NoError(t, err)
		for i := 0; i < dim; i++ {
			for j := i + 1; j < dim; j++ {
				num := rapid.Int64Range(-6, 6).Draw(t, "num")
				den := rapid.Int64Range(1, 4).Draw(t, "den")
				require.NoError(t, u.Set(i, j, big.NewRat(num, den)))
			}
		}
		diag := make([]*big.Rat, dim)
		for i := range diag {
			diag[i] = big.NewRat(rapid.Int64Range(0, 9).Draw(t, "diag"), 1)
		}

		built := &Decomposition{U: u, Diag: diag, Exact: true}
		s, err := built.Reconstruct()
		require.NoError(t, err)

		decomp, err := Decompose(s)
		require.NoError(t, err)
		for _, d := range decomp.Diag {
			assert.True(t, d.Sign() >= 0)
		}
		back, err := decomp.Reconstruct()
		require.NoError(t, err)
		assert.True(t, back.Equals(s))
	})
}
