// Copyright (c) 2023 Colin McRae

// Package rational provides exact scalar helpers built on big.Rat:
// construction from common inputs, continued-fraction approximation of
// floating point numbers, and small number-theoretic utilities used to
// tune denominator searches.
package rational

import (
	"fmt"
	"math"
	"math/big"
)

const (
	// maxConvergents bounds the continued fraction expansion of a float64.
	// A float64 mantissa has 53 bits, so partial quotients beyond roughly
	// this many terms encode round-off, not the underlying rational.
	maxConvergents = 48

	// reliableCutoff is the partial quotient size at which the expansion
	// of a float64 is considered to have run out of real information. A
	// term this large means the previous convergent was already within
	// 1/reliableCutoff of the input's precision window.
	reliableCutoff = 1 << 24
)

// NewFromInt64 returns a big.Rat equal to the provided int64.
func NewFromInt64(input int64) *big.Rat {
	return new(big.Rat).SetInt64(input)
}

// NewFromFraction returns numerator/denominator as a big.Rat. A zero
// denominator is an error.
func NewFromFraction(numerator int64, denominator int64) (*big.Rat, error) {
	if denominator == 0 {
		return nil, fmt.Errorf("rational.NewFromFraction: denominator is zero")
	}
	return big.NewRat(numerator, denominator), nil
}

// Parse parses a rational from a string in any form big.Rat accepts,
// e.g. "3", "-1/7" or "0.25".
func Parse(input string) (*big.Rat, error) {
	r, ok := new(big.Rat).SetString(input)
	if !ok {
		return nil, fmt.Errorf("rational.Parse: could not parse %q", input)
	}
	return r, nil
}

// Float returns the nearest float64 to r.
func Float(r *big.Rat) float64 {
	f, _ := r.Float64()
	return f
}

// Approx searches for a rational near x using the continued fraction
// expansion of x.
//
// When reliable is false, the first convergent within rounding of x is
// returned, and the boolean reports whether one was found before the
// expansion was exhausted.
//
// When reliable is true, rounding is ignored. The expansion is cut at the
// first huge partial quotient, the signature of a float64 that began life
// as an exact rational. The boolean reports whether such a cut was found;
// if the expansion ends without one, the last convergent is returned with
// false.
func Approx(x float64, rounding float64, reliable bool) (*big.Rat, bool) {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return nil, false
	}
	if x == 0 {
		return new(big.Rat), true
	}
	negative := x < 0
	v := math.Abs(x)

	// p/q iterates over the convergents of the continued fraction of v.
	pPrev, p := big.NewInt(1), new(big.Int).SetInt64(int64(math.Floor(v)))
	qPrev, q := big.NewInt(0), big.NewInt(1)
	remainder := v - math.Floor(v)

	best := new(big.Rat).SetFrac(p, q)
	for term := 0; term < maxConvergents; term++ {
		candidate := new(big.Rat).SetFrac(p, q)
		if !reliable {
			approx, _ := candidate.Float64()
			if math.Abs(approx-v) <= rounding {
				return signed(candidate, negative), true
			}
		}
		best = candidate
		if remainder < 1e-15 {
			return signed(best, negative), reliable
		}
		v = 1 / remainder
		a := math.Floor(v)
		remainder = v - a
		if reliable && a >= reliableCutoff {
			return signed(best, negative), true
		}
		aInt := new(big.Int).SetInt64(int64(a))
		pNext := new(big.Int).Mul(aInt, p)
		pNext.Add(pNext, pPrev)
		qNext := new(big.Int).Mul(aInt, q)
		qNext.Add(qNext, qPrev)
		pPrev, p = p, pNext
		qPrev, q = q, qNext
	}
	return signed(best, negative), false
}

func signed(r *big.Rat, negative bool) *big.Rat {
	if negative {
		return r.Neg(r)
	}
	return r
}

// ApproxVector applies Approx in non-reliable mode to every entry of y
// with a shared tolerance. It returns nil, false if any entry has no
// acceptable approximation.
func ApproxVector(y []float64, rounding float64) ([]*big.Rat, bool) {
	out := make([]*big.Rat, len(y))
	for i, v := range y {
		r, ok := Approx(v, rounding, false)
		if !ok {
			return nil, false
		}
		out[i] = r
	}
	return out, true
}

// IsPretty reports whether r has a denominator of at most maxDenominator.
// Small denominators are preferred when ranking rational candidates.
func IsPretty(r *big.Rat, maxDenominator int64) bool {
	return r.Denom().IsInt64() && r.Denom().Int64() <= maxDenominator
}

// PrimeFactors returns the distinct prime factors of n in increasing
// order. PrimeFactors(0) and PrimeFactors(1) are empty.
func PrimeFactors(n int64) []int64 {
	if n < 0 {
		n = -n
	}
	var factors []int64
	for p := int64(2); p*p <= n; p++ {
		if n%p == 0 {
			factors = append(factors, p)
			for n%p == 0 {
				n /= p
			}
		}
	}
	if n > 1 {
		factors = append(factors, n)
	}
	return factors
}

// DenominatorPrimes returns the distinct primes dividing the denominator
// of any entry. Entries with denominators too large for int64 are
// skipped: they never arise from the hand-constructed affine families
// this is used on, and their factors would be useless as a search budget
// anyway.
func DenominatorPrimes(rs []*big.Rat) []int64 {
	seen := make(map[int64]bool)
	var primes []int64
	for _, r := range rs {
		if r == nil || !r.Denom().IsInt64() {
			continue
		}
		for _, p := range PrimeFactors(r.Denom().Int64()) {
			if !seen[p] {
				seen[p] = true
				primes = append(primes, p)
			}
		}
	}
	for i := 1; i < len(primes); i++ {
		for j := i; j > 0 && primes[j] < primes[j-1]; j-- {
			primes[j], primes[j-1] = primes[j-1], primes[j]
		}
	}
	return primes
}
