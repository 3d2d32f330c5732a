// Copyright (c) 2023 Colin McRae

package gradient

import "math"

const (
	jacobiMaxSweeps = 64
	jacobiOffTol    = 1e-22
)

// eigenSym computes the eigenvalues and eigenvectors of a symmetric
// matrix by the cyclic Jacobi method. vecs[k] is the unit eigenvector for
// vals[k]. The input is not modified.
func eigenSym(a [][]float64) (vals []float64, vecs [][]float64) {
	n := len(a)
	work := make([][]float64, n)
	v := make([][]float64, n)
	for i := 0; i < n; i++ {
		work[i] = append([]float64(nil), a[i]...)
		v[i] = make([]float64, n)
		v[i][i] = 1
	}
	for sweep := 0; sweep < jacobiMaxSweeps; sweep++ {
		off := 0.0
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				off += work[i][j] * work[i][j]
			}
		}
		if off < jacobiOffTol {
			break
		}
		for p := 0; p < n-1; p++ {
			for q := p + 1; q < n; q++ {
				if math.Abs(work[p][q]) < 1e-300 {
					continue
				}
				theta := (work[q][q] - work[p][p]) / (2 * work[p][q])
				t := 1 / (math.Abs(theta) + math.Sqrt(theta*theta+1))
				if theta < 0 {
					t = -t
				}
				c := 1 / math.Sqrt(t*t+1)
				s := t * c
				rotate(work, v, p, q, c, s, n)
			}
		}
	}
	vals = make([]float64, n)
	vecs = make([][]float64, n)
	for k := 0; k < n; k++ {
		vals[k] = work[k][k]
		vecs[k] = make([]float64, n)
		for i := 0; i < n; i++ {
			vecs[k][i] = v[i][k]
		}
	}
	return vals, vecs
}

// rotate applies the Jacobi rotation with cosine c and sine s in the
// (p, q) plane to both the working matrix and the eigenvector
// accumulator.
func rotate(work [][]float64, v [][]float64, p int, q int, c float64, s float64, n int) {
	for i := 0; i < n; i++ {
		wip, wiq := work[i][p], work[i][q]
		work[i][p] = c*wip - s*wiq
		work[i][q] = s*wip + c*wiq
	}
	for j := 0; j < n; j++ {
		wpj, wqj := work[p][j], work[q][j]
		work[p][j] = c*wpj - s*wqj
		work[q][j] = s*wpj + c*wqj
	}
	for i := 0; i < n; i++ {
		vip, viq := v[i][p], v[i][q]
		v[i][p] = c*vip - s*viq
		v[i][q] = s*vip + c*viq
	}
}
