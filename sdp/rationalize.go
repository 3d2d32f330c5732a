// Copyright (c) 2023 Colin McRae

package sdp

import (
	"log/slog"
	"math"
	"math/big"
	"sort"

	"github.com/zyckk4/Triple-SOS/rational"
	"github.com/zyckk4/Triple-SOS/ratmatrix"
)

const (
	// diagonal entries below this are treated as sitting on the boundary
	// when searching for a mask-constrained rational candidate
	boundaryDiagonalTolerance = 1e-6

	// defaults for the candidate search; see RationalizeOptions
	defaultRounding     = 1e-2
	defaultLCM          = 1260
	defaultMaxPrettyDen = 128
	combineLCMFloor     = 1260
	combineLCMCeiling   = int64(1) << 40
)

// RationalizeOptions tunes the nearby-rational search.
type RationalizeOptions struct {
	// Rounding is the tolerance of the first approximation round.
	// Zero means the default of 1e-2.
	Rounding float64

	// LCM divides the tolerance between rounds, widening the denominator
	// search. Zero means the default of 1260.
	LCM int64

	// Rounds is the number of extra rounds beyond the first. Negative
	// means zero.
	Rounds int

	// TryWithMask also tries candidates constrained to zero out rows
	// whose numeric diagonal sits on the boundary.
	TryWithMask bool

	// RequirePretty rejects first-round candidates with denominators
	// above MaxPrettyDen (default 128).
	RequirePretty bool
	MaxPrettyDen  int64

	// Perturb, when non-nil, permits an inexact decomposition of
	// S + Perturb*I as a last resort. The resulting certificate is
	// marked inexact.
	Perturb *big.Rat

	Logger *slog.Logger
}

func (o RationalizeOptions) withDefaults() RationalizeOptions {
	if o.Rounding <= 0 {
		o.Rounding = defaultRounding
	}
	if o.LCM < 2 {
		o.LCM = defaultLCM
	}
	if o.Rounds < 0 {
		o.Rounds = 0
	}
	if o.MaxPrettyDen <= 0 {
		o.MaxPrettyDen = defaultMaxPrettyDen
	}
	return o
}

// Certificate is a rational point of the family together with the exact
// congruence decomposition of every non-empty block at that point.
type Certificate struct {
	Y       *ratmatrix.Matrix
	S       map[string]*ratmatrix.Matrix
	Decomps map[string]*Decomposition
	Exact   bool
}

// Rationalize searches for a rational point near the numeric vector y
// whose blocks all admit an exact congruence decomposition. It reports
// false when no tried candidate decomposes; the caller decides whether to
// retry with a different numeric point.
func Rationalize(f *Family, y []float64, opts RationalizeOptions) (*Certificate, bool) {
	opts = opts.withDefaults()
	if len(y) != f.Dof() {
		return nil, false
	}

	var lastCandidate *ratmatrix.Matrix
	rounding := opts.Rounding
	for round := 0; round <= opts.Rounds; round++ {
		entries, ok := rational.ApproxVector(y, rounding)
		rounding /= float64(opts.LCM)
		if !ok {
			continue
		}
		if round == 0 && opts.RequirePretty && !allPretty(entries, opts.MaxPrettyDen) {
			continue
		}
		candidate := columnOf(entries)
		if lastCandidate != nil && candidate.Equals(lastCandidate) {
			continue
		}
		lastCandidate = candidate
		if cert, ok := tryCandidate(f, candidate); ok {
			debugf(opts.Logger, "rationalized", "round", round, "y", candidate.String())
			return cert, true
		}
	}

	if opts.TryWithMask {
		if cert, ok := rationalizeWithMask(f, y, opts); ok {
			return cert, true
		}
	}

	if opts.Perturb != nil && lastCandidate != nil {
		if cert, ok := tryCandidatePerturbed(f, lastCandidate, opts.Perturb); ok {
			debugf(opts.Logger, "rationalized with perturbation", "perturb", opts.Perturb.RatString())
			return cert, true
		}
	}
	return nil, false
}

// Combine averages accumulated numeric candidates into one vector.
// Convexity keeps the average feasible, and strictly interior unless all
// candidates lie on a common supporting hyperplane, so it rationalizes
// with a wider denominator search and no mask-based candidates.
func Combine(f *Family, history [][]float64, opts RationalizeOptions) (*Certificate, bool) {
	if len(history) == 0 {
		return nil, false
	}
	avg := make([]float64, f.Dof())
	for _, y := range history {
		if len(y) != f.Dof() {
			return nil, false
		}
		for i, v := range y {
			avg[i] += v
		}
	}
	for i := range avg {
		avg[i] /= float64(len(history))
	}

	lcm := int64(combineLCMFloor)
	product := int64(1)
	for _, p := range rational.DenominatorPrimes(f.SpaceEntries()) {
		if product > combineLCMCeiling/p {
			product = combineLCMCeiling
			break
		}
		product *= p
	}
	if product > lcm {
		lcm = product
	}
	rounds := int(10/math.Log10(float64(lcm))) + 3

	debugf(opts.Logger, "combining numeric candidates",
		"count", len(history), "lcm", lcm, "rounds", rounds)

	opts.TryWithMask = false
	opts.RequirePretty = false
	opts.LCM = lcm
	opts.Rounds = rounds
	return Rationalize(f, avg, opts)
}

// SolveDegenerate handles a family with no degrees of freedom: x0 is the
// unique candidate and is rationalized directly, with no numeric work.
func SolveDegenerate(f *Family) (*Certificate, bool) {
	if f.Dof() != 0 {
		return nil, false
	}
	return tryCandidate(f, ratmatrix.NewEmpty(0, 1))
}

func tryCandidate(f *Family, y *ratmatrix.Matrix) (*Certificate, bool) {
	blocks, err := f.Evaluate(y)
	if err != nil {
		return nil, false
	}
	decomps := make(map[string]*Decomposition, len(blocks))
	for key, s := range blocks {
		d, err := Decompose(s)
		if err != nil {
			return nil, false
		}
		decomps[key] = d
	}
	return &Certificate{Y: y, S: blocks, Decomps: decomps, Exact: true}, true
}

func tryCandidatePerturbed(f *Family, y *ratmatrix.Matrix, perturb *big.Rat) (*Certificate, bool) {
	blocks, err := f.Evaluate(y)
	if err != nil {
		return nil, false
	}
	decomps := make(map[string]*Decomposition, len(blocks))
	for key, s := range blocks {
		d, err := DecomposePerturbed(s, perturb)
		if err != nil {
			return nil, false
		}
		decomps[key] = d
	}
	return &Certificate{Y: y, S: blocks, Decomps: decomps, Exact: false}, true
}

// rationalizeWithMask detects boundary rows of the numeric blocks, masks
// them on a scratch copy of the current view, projects y into the reduced
// parametrization, and rationalizes there. On success the solved blocks
// and decompositions are padded back to the current view's shape.
func rationalizeWithMask(f *Family, y []float64, opts RationalizeOptions) (*Certificate, bool) {
	masks := boundaryMasks(f, y)
	if len(masks) == 0 {
		return nil, false
	}
	scratch, err := currentViewFamily(f)
	if err != nil {
		return nil, false
	}
	if err := scratch.ApplyMask(masks); err != nil {
		return nil, false
	}
	x1, space1, ok := scratch.MaskTransform()
	if !ok {
		return nil, false
	}

	yReduced, ok := leastSquares(space1, x1, y)
	if !ok {
		return nil, false
	}
	inner := opts
	inner.TryWithMask = false
	inner.Perturb = nil
	cert, ok := Rationalize(scratch, yReduced, inner)
	if !ok {
		return nil, false
	}

	// lift the reduced certificate back to the full parametrization
	moved, err := space1.Mul(cert.Y)
	if err != nil {
		return nil, false
	}
	yRat, err := x1.Add(moved)
	if err != nil {
		return nil, false
	}
	full := &Certificate{
		Y:       yRat,
		S:       make(map[string]*ratmatrix.Matrix, len(cert.S)),
		Decomps: make(map[string]*Decomposition, len(cert.Decomps)),
		Exact:   true,
	}
	for _, key := range scratch.Keys() {
		s, okS := cert.S[key]
		if !okS {
			// the mask shrank this block to dimension zero
			dim := currentBlockDim(f, key)
			full.S[key] = ratmatrix.NewEmpty(dim, dim)
			d, err := Decompose(full.S[key])
			if err != nil {
				return nil, false
			}
			full.Decomps[key] = d
			continue
		}
		padded, err := scratch.Unmask(s, key)
		if err != nil {
			return nil, false
		}
		full.S[key] = padded
		pd, err := padDecomposition(cert.Decomps[key], scratch.MaskedRows()[key])
		if err != nil {
			return nil, false
		}
		full.Decomps[key] = pd
	}
	debugf(opts.Logger, "rationalized with boundary mask", "masks", len(masks))
	return full, true
}

// boundaryMasks returns, per key, the rows of the numeric blocks whose
// diagonal entries sit on the boundary.
func boundaryMasks(f *Family, y []float64) map[string][]int {
	x0 := f.X0Float()
	space := f.SpaceFloat()
	vec := make([]float64, len(x0))
	for r := range vec {
		vec[r] = x0[r]
		for j, v := range y {
			vec[r] += space[r][j] * v
		}
	}
	masks := make(map[string][]int)
	splits := f.Splits()
	for b, key := range f.Keys() {
		length := splits[b].Stop - splits[b].Start
		if length == 0 {
			continue
		}
		dim, err := ratmatrix.DimFromUpperVecLen(length)
		if err != nil {
			return nil
		}
		var rows []int
		for v, ij := range ratmatrix.UpperVecIndices(dim) {
			if ij[0] == ij[1] && math.Abs(vec[splits[b].Start+v]) < boundaryDiagonalTolerance {
				rows = append(rows, ij[0])
			}
		}
		if len(rows) > 0 && len(rows) < dim {
			masks[key] = rows
		}
	}
	return masks
}

// currentViewFamily wraps the masked view of f as a standalone family so
// a further mask can be applied without touching f.
func currentViewFamily(f *Family) (*Family, error) {
	x0, space, splits := f.viewArgs()
	return NewFamily(x0, space, splits, f.Keys())
}

func currentBlockDim(f *Family, key string) int {
	return f.BlockDims(false)[key]
}

// leastSquares solves min over w of |space1*w - (y - x1)| in float64 via
// the normal equations, projecting a numeric point into the reduced
// parametrization of a masked family.
func leastSquares(space1 *ratmatrix.Matrix, x1 *ratmatrix.Matrix, y []float64) ([]float64, bool) {
	rows, cols := space1.Dimensions()
	if rows != len(y) {
		return nil, false
	}
	if cols == 0 {
		return []float64{}, true
	}
	a := make([][]float64, rows)
	rhs := make([]float64, rows)
	for i := 0; i < rows; i++ {
		a[i] = make([]float64, cols)
		for j := 0; j < cols; j++ {
			v, _ := space1.Get(i, j)
			a[i][j], _ = v.Float64()
		}
		x1i, _ := x1.Get(i, 0)
		x1f, _ := x1i.Float64()
		rhs[i] = y[i] - x1f
	}
	// normal equations with a small ridge for rank safety
	ata := make([][]float64, cols)
	atb := make([]float64, cols)
	for i := 0; i < cols; i++ {
		ata[i] = make([]float64, cols)
		for j := 0; j < cols; j++ {
			for k := 0; k < rows; k++ {
				ata[i][j] += a[k][i] * a[k][j]
			}
		}
		ata[i][i] += 1e-12
		for k := 0; k < rows; k++ {
			atb[i] += a[k][i] * rhs[k]
		}
	}
	return solveDense(ata, atb)
}

// solveDense is straightforward Gaussian elimination with partial
// pivoting on a small dense system.
func solveDense(a [][]float64, b []float64) ([]float64, bool) {
	n := len(a)
	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < 1e-300 {
			return nil, false
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]
		for r := col + 1; r < n; r++ {
			factor := a[r][col] / a[col][col]
			for c := col; c < n; c++ {
				a[r][c] -= factor * a[col][c]
			}
			b[r] -= factor * b[col]
		}
	}
	x := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		x[i] = b[i]
		for j := i + 1; j < n; j++ {
			x[i] -= a[i][j] * x[j]
		}
		x[i] /= a[i][i]
	}
	return x, true
}

// padDecomposition embeds the decomposition of a masked block into the
// unmasked shape: masked rows get a unit U row and a zero pivot.
func padDecomposition(d *Decomposition, mask []int) (*Decomposition, error) {
	if len(mask) == 0 {
		return d, nil
	}
	small := d.U.NumRows()
	full := small + len(mask)
	masked := make(map[int]bool, len(mask))
	for _, r := range mask {
		masked[r] = true
	}
	var keep []int
	for r := 0; r < full; r++ {
		if !masked[r] {
			keep = append(keep, r)
		}
	}
	sort.Ints(keep)
	u, err := ratmatrix.NewIdentity(full)
	if err != nil {
		return nil, err
	}
	diag := make([]*big.Rat, full)
	for r := 0; r < full; r++ {
		diag[r] = new(big.Rat)
	}
	for i, r := range keep {
		diag[r].Set(d.Diag[i])
		for j, c := range keep {
			v, err := d.U.Get(i, j)
			if err != nil {
				return nil, err
			}
			if err := u.Set(r, c, v); err != nil {
				return nil, err
			}
		}
	}
	return &Decomposition{U: u, Diag: diag, Exact: d.Exact}, nil
}

func allPretty(entries []*big.Rat, maxDen int64) bool {
	for _, r := range entries {
		if !rational.IsPretty(r, maxDen) {
			return false
		}
	}
	return true
}

func columnOf(entries []*big.Rat) *ratmatrix.Matrix {
	out := ratmatrix.NewEmpty(len(entries), 1)
	for i, r := range entries {
		_ = out.Set(i, 0, r)
	}
	return out
}

func debugf(logger *slog.Logger, msg string, args ...any) {
	if logger != nil {
		logger.Debug(msg, args...)
	}
}
