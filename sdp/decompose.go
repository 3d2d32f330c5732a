// Copyright (c) 2023 Colin McRae

package sdp

import (
	"fmt"
	"math/big"

	"github.com/zyckk4/Triple-SOS/ratmatrix"
)

// ErrNotPSD is wrapped by Decompose when elimination forces a negative
// pivot, witnessing that the matrix is not positive semidefinite.
var ErrNotPSD = fmt.Errorf("matrix is not positive semidefinite")

// Decomposition is an exact congruence decomposition S = U^t * D * U with
// U upper triangular with unit diagonal and D = diag(Diag) entrywise
// non-negative. Over exact rational arithmetic this certifies that S is
// positive semidefinite. Exact is false only for decompositions obtained
// after a numeric perturbation of S.
type Decomposition struct {
	U     *ratmatrix.Matrix
	Diag  []*big.Rat
	Exact bool
}

// Decompose eliminates S row by row with exact rational arithmetic.
//
// At step i the pivot is S[i][i] of the remaining submatrix. A positive
// pivot eliminates its row and column. A zero pivot with an all-zero
// remaining row is recorded as a zero diagonal entry. A zero pivot with a
// nonzero off-diagonal entry a in its row forces a negative pivot through
// the rank-one split 2axy = (a/2)((x+y)^2 - (x-y)^2), and a negative
// pivot witnesses that S is not positive semidefinite; both cases return
// an error wrapping ErrNotPSD.
func Decompose(s *ratmatrix.Matrix) (*Decomposition, error) {
	if !s.IsSymmetric() {
		return nil, fmt.Errorf("Decompose: matrix %d x %d is not symmetric", s.NumRows(), s.NumCols())
	}
	n := s.NumRows()
	work := make([][]*big.Rat, n)
	for i := 0; i < n; i++ {
		work[i] = make([]*big.Rat, n)
		for j := 0; j < n; j++ {
			v, _ := s.Get(i, j)
			work[i][j] = new(big.Rat).Set(v)
		}
	}
	u := ratmatrix.NewEmpty(0, 0)
	if n > 0 {
		var err error
		u, err = ratmatrix.NewIdentity(n)
		if err != nil {
			return nil, fmt.Errorf("Decompose: %s", err.Error())
		}
	}
	diag := make([]*big.Rat, n)
	factor := new(big.Rat)
	term := new(big.Rat)
	for i := 0; i < n; i++ {
		pivot := work[i][i]
		if pivot.Sign() < 0 {
			return nil, fmt.Errorf("Decompose: %w: pivot %d is %s", ErrNotPSD, i, pivot.RatString())
		}
		if pivot.Sign() == 0 {
			for j := i + 1; j < n; j++ {
				if work[i][j].Sign() != 0 {
					return nil, fmt.Errorf(
						"Decompose: %w: zero pivot %d with nonzero entry (%d,%d)",
						ErrNotPSD, i, i, j,
					)
				}
			}
			diag[i] = new(big.Rat)
			continue
		}
		diag[i] = new(big.Rat).Set(pivot)
		for j := i + 1; j < n; j++ {
			factor.Quo(work[i][j], pivot)
			if err := u.Set(i, j, factor); err != nil {
				return nil, fmt.Errorf("Decompose: %s", err.Error())
			}
		}
		for r := i + 1; r < n; r++ {
			if work[i][r].Sign() == 0 {
				continue
			}
			factor.Quo(work[i][r], pivot)
			for c := r; c < n; c++ {
				term.Mul(factor, work[i][c])
				work[r][c].Sub(work[r][c], term)
				work[c][r].Set(work[r][c])
			}
		}
	}
	return &Decomposition{U: u, Diag: diag, Exact: true}, nil
}

// DecomposePerturbed decomposes s + perturb*I. The result reconstructs
// the perturbed matrix, not s, and is marked inexact.
func DecomposePerturbed(s *ratmatrix.Matrix, perturb *big.Rat) (*Decomposition, error) {
	if perturb == nil || perturb.Sign() < 0 {
		return nil, fmt.Errorf("DecomposePerturbed: perturbation must be non-negative")
	}
	shifted := s.Copy()
	for i := 0; i < shifted.NumRows() && i < shifted.NumCols(); i++ {
		v, err := shifted.Get(i, i)
		if err != nil {
			return nil, fmt.Errorf("DecomposePerturbed: %s", err.Error())
		}
		sum := new(big.Rat).Add(v, perturb)
		if err := shifted.Set(i, i, sum); err != nil {
			return nil, fmt.Errorf("DecomposePerturbed: %s", err.Error())
		}
	}
	decomp, err := Decompose(shifted)
	if err != nil {
		return nil, err
	}
	decomp.Exact = false
	return decomp, nil
}

// Reconstruct returns U^t * diag(Diag) * U, which equals the decomposed
// matrix exactly.
func (d *Decomposition) Reconstruct() (*ratmatrix.Matrix, error) {
	n := d.U.NumRows()
	if len(d.Diag) != n {
		return nil, fmt.Errorf("Decomposition.Reconstruct: %d diagonal entries for a %d x %d U", len(d.Diag), n, d.U.NumCols())
	}
	scaled := d.U.Copy()
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v, _ := scaled.Get(i, j)
			v.Mul(v, d.Diag[i])
		}
	}
	return d.U.Transpose().Mul(scaled)
}
