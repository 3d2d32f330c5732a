// Copyright (c) 2023 Colin McRae

// Package sdp holds the core of the rational SDP engine: the affine
// family of symmetric block matrices x0 + space*y, row masking, the exact
// congruence decomposition that certifies positive semidefiniteness, and
// the rationalizer that turns numeric solutions into exact certificates.
package sdp

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/zyckk4/Triple-SOS/ratmatrix"
)

// ErrMaskInconsistent is wrapped by ApplyMask when the requested rows
// cannot be jointly zeroed by any choice of the free vector.
var ErrMaskInconsistent = fmt.Errorf("masked rows are not jointly zeroable")

// Span is a contiguous half-open index range [Start, Stop) into the
// stacked upper-triangle vectorization.
type Span struct {
	Start int
	Stop  int
}

// Family describes the affine family {x0 + space*y : y free} of symmetric
// block matrices. Row i of the stacked vectorization belongs to the block
// whose span contains i; within a block, rows enumerate the upper
// triangle of the block's matrix in row-major order.
//
// A Family retains its construction-time (unmasked) data. ApplyMask
// replaces the working view only, so masks can be changed or cleared.
type Family struct {
	x0     *ratmatrix.Matrix
	space  *ratmatrix.Matrix
	splits []Span
	keys   []string

	origX0     *ratmatrix.Matrix
	origSpace  *ratmatrix.Matrix
	origSplits []Span

	maskedRows map[string][]int
	maskX1     *ratmatrix.Matrix // particular solution: y = maskX1 + maskSpace1 * y'
	maskSpace1 *ratmatrix.Matrix

	// generation increments whenever masking changes the feasible
	// geometry; holders of numeric candidate history watch it
	generation uint64
}

// LinExpr is an affine form const + coeff*y in the free vector, the
// symbolic value of one matrix entry.
type LinExpr struct {
	Const *big.Rat
	Coeff []*big.Rat
}

// NewFamily validates and constructs a Family. splits must partition
// 0..x0.NumRows() contiguously, each with triangular length; keys must be
// unique and match splits in count.
func NewFamily(x0 *ratmatrix.Matrix, space *ratmatrix.Matrix, splits []Span, keys []string) (*Family, error) {
	if x0.NumCols() != 1 && x0.NumRows() != 0 {
		return nil, fmt.Errorf("NewFamily: x0 must be a column vector, got %d x %d", x0.NumRows(), x0.NumCols())
	}
	if space.NumRows() != x0.NumRows() {
		return nil, fmt.Errorf(
			"NewFamily: x0 has %d rows but space has %d",
			x0.NumRows(), space.NumRows(),
		)
	}
	if len(keys) != len(splits) {
		return nil, fmt.Errorf(
			"NewFamily: length of keys and splits should be the same, but got %d and %d",
			len(keys), len(splits),
		)
	}
	seen := make(map[string]bool, len(keys))
	for _, key := range keys {
		if seen[key] {
			return nil, fmt.Errorf("NewFamily: duplicate key %q", key)
		}
		seen[key] = true
	}
	expect := 0
	for i, split := range splits {
		if split.Start != expect || split.Stop < split.Start {
			return nil, fmt.Errorf(
				"NewFamily: split %d = [%d, %d) does not continue the partition at %d",
				i, split.Start, split.Stop, expect,
			)
		}
		if _, err := ratmatrix.DimFromUpperVecLen(split.Stop - split.Start); err != nil {
			return nil, fmt.Errorf("NewFamily: split %d for key %q: %s", i, keys[i], err.Error())
		}
		expect = split.Stop
	}
	if expect != x0.NumRows() {
		return nil, fmt.Errorf("NewFamily: splits cover %d rows but x0 has %d", expect, x0.NumRows())
	}
	f := &Family{
		x0:         x0.Copy(),
		space:      space.Copy(),
		splits:     append([]Span(nil), splits...),
		keys:       append([]string(nil), keys...),
		maskedRows: map[string][]int{},
	}
	f.origX0 = f.x0
	f.origSpace = f.space
	f.origSplits = f.splits
	return f, nil
}

// SplitsForDims returns the spans of the stacked upper-triangle
// vectorization of symmetric blocks with the given dimensions.
func SplitsForDims(dims []int) []Span {
	splits := make([]Span, len(dims))
	start := 0
	for i, dim := range dims {
		splits[i] = Span{Start: start, Stop: start + ratmatrix.UpperVecLen(dim)}
		start = splits[i].Stop
	}
	return splits
}

// NewFamilyFromEquations builds a Family from the linear system
// eq * vec(S) = target: the solution set of the system is exactly the
// vectorized family.
func NewFamilyFromEquations(eq *ratmatrix.Matrix, target *ratmatrix.Matrix, splits []Span, keys []string) (*Family, error) {
	x0, space, err := ratmatrix.SolveUndetermined(eq, target)
	if err != nil {
		return nil, fmt.Errorf("NewFamilyFromEquations: %w", err)
	}
	return NewFamily(x0, space, splits, keys)
}

// NewFamilyFromBlocks builds a Family from per-key symmetric blocks given
// entrywise as affine forms in numFree shared free variables.
func NewFamilyFromBlocks(keys []string, blocks [][][]LinExpr, numFree int) (*Family, error) {
	if len(keys) != len(blocks) {
		return nil, fmt.Errorf(
			"NewFamilyFromBlocks: length of keys and blocks should be the same, but got %d and %d",
			len(keys), len(blocks),
		)
	}
	if numFree < 0 {
		return nil, fmt.Errorf("NewFamilyFromBlocks: negative number of free variables %d", numFree)
	}
	dims := make([]int, len(blocks))
	total := 0
	for b, block := range blocks {
		dims[b] = len(block)
		total += ratmatrix.UpperVecLen(len(block))
	}
	x0 := ratmatrix.NewEmpty(total, 1)
	space := ratmatrix.NewEmpty(total, numFree)
	row := 0
	for b, block := range blocks {
		dim := dims[b]
		for _, ij := range ratmatrix.UpperVecIndices(dim) {
			i, j := ij[0], ij[1]
			if len(block[i]) != dim {
				return nil, fmt.Errorf(
					"NewFamilyFromBlocks: block %q row %d has %d entries, want %d",
					keys[b], i, len(block[i]), dim,
				)
			}
			entry := block[i][j]
			if entry.Const == nil || len(entry.Coeff) != numFree {
				return nil, fmt.Errorf(
					"NewFamilyFromBlocks: block %q entry (%d,%d) is not an affine form in %d variables",
					keys[b], i, j, numFree,
				)
			}
			if err := x0.Set(row, 0, entry.Const); err != nil {
				return nil, err
			}
			for k, c := range entry.Coeff {
				if err := space.Set(row, k, c); err != nil {
					return nil, err
				}
			}
			row++
		}
	}
	return NewFamily(x0, space, SplitsForDims(dims), keys)
}

// Dof returns the degree of freedom of the current (masked) view.
func (f *Family) Dof() int { return f.space.NumCols() }

// Keys returns the block names in order.
func (f *Family) Keys() []string { return append([]string(nil), f.keys...) }

// Generation increments whenever masking changes the feasible geometry.
func (f *Family) Generation() uint64 { return f.generation }

// VariableNames returns the names of the free variables of the current
// view, y_0 .. y_{dof-1}.
func (f *Family) VariableNames() []string {
	names := make([]string, f.Dof())
	for i := range names {
		names[i] = fmt.Sprintf("y_%d", i)
	}
	return names
}

// BlockDims returns the per-key block dimension of the current (masked)
// view. With filterZero, keys whose block shrank to dimension 0 are
// omitted.
func (f *Family) BlockDims(filterZero bool) map[string]int {
	dims := make(map[string]int, len(f.keys))
	for i, key := range f.keys {
		dim, _ := ratmatrix.DimFromUpperVecLen(f.splits[i].Stop - f.splits[i].Start)
		if filterZero && dim == 0 {
			continue
		}
		dims[key] = dim
	}
	return dims
}

// NonEmptyKeys returns, in order, the keys whose masked block dimension
// is positive.
func (f *Family) NonEmptyKeys() []string {
	var keys []string
	for i, key := range f.keys {
		if f.splits[i].Stop > f.splits[i].Start {
			keys = append(keys, key)
		}
	}
	return keys
}

// MaskedRows returns a copy of the current mask.
func (f *Family) MaskedRows() map[string][]int {
	out := make(map[string][]int, len(f.maskedRows))
	for k, v := range f.maskedRows {
		out[k] = append([]int(nil), v...)
	}
	return out
}

// Evaluate maps the free vector y to the symmetric matrix of every
// non-empty block of the current view.
func (f *Family) Evaluate(y *ratmatrix.Matrix) (map[string]*ratmatrix.Matrix, error) {
	if y.NumCols() != 1 && y.NumRows() != 0 {
		return nil, fmt.Errorf("Family.Evaluate: y must be a column vector, got %d x %d", y.NumRows(), y.NumCols())
	}
	if y.NumRows() != f.Dof() {
		return nil, fmt.Errorf("Family.Evaluate: y must have %d rows, got %d", f.Dof(), y.NumRows())
	}
	moved, err := f.space.Mul(y)
	if err != nil {
		return nil, fmt.Errorf("Family.Evaluate: %s", err.Error())
	}
	vec, err := f.x0.Add(moved)
	if err != nil {
		return nil, fmt.Errorf("Family.Evaluate: %s", err.Error())
	}
	out := make(map[string]*ratmatrix.Matrix)
	for i, key := range f.keys {
		split := f.splits[i]
		if split.Stop == split.Start {
			continue
		}
		rows := make([]int, 0, split.Stop-split.Start)
		for r := split.Start; r < split.Stop; r++ {
			rows = append(rows, r)
		}
		blockVec, err := vec.SubRows(rows)
		if err != nil {
			return nil, fmt.Errorf("Family.Evaluate: %s", err.Error())
		}
		s, err := ratmatrix.SymmetricFromUpperVec(blockVec)
		if err != nil {
			return nil, fmt.Errorf("Family.Evaluate: block %q: %s", key, err.Error())
		}
		out[key] = s
	}
	return out, nil
}

// EvaluateAssignment evaluates at the free vector given by variable name.
// Missing names default to zero; unknown names are an error.
func (f *Family) EvaluateAssignment(values map[string]*big.Rat) (map[string]*ratmatrix.Matrix, error) {
	names := f.VariableNames()
	known := make(map[string]int, len(names))
	for i, name := range names {
		known[name] = i
	}
	y := ratmatrix.NewEmpty(f.Dof(), 1)
	for name, value := range values {
		i, ok := known[name]
		if !ok {
			return nil, fmt.Errorf("Family.EvaluateAssignment: unknown free variable %q", name)
		}
		if err := y.Set(i, 0, value); err != nil {
			return nil, err
		}
	}
	return f.Evaluate(y)
}

// EvaluateSymbolic returns every non-empty block as a matrix of affine
// forms in the free vector, the generic value of the family.
func (f *Family) EvaluateSymbolic() map[string][][]LinExpr {
	dof := f.Dof()
	out := make(map[string][][]LinExpr)
	for b, key := range f.keys {
		split := f.splits[b]
		if split.Stop == split.Start {
			continue
		}
		dim, _ := ratmatrix.DimFromUpperVecLen(split.Stop - split.Start)
		block := make([][]LinExpr, dim)
		for i := range block {
			block[i] = make([]LinExpr, dim)
		}
		for v, ij := range ratmatrix.UpperVecIndices(dim) {
			row := split.Start + v
			c, _ := f.x0.Get(row, 0)
			expr := LinExpr{Const: new(big.Rat).Set(c), Coeff: make([]*big.Rat, dof)}
			for k := 0; k < dof; k++ {
				sc, _ := f.space.Get(row, k)
				expr.Coeff[k] = new(big.Rat).Set(sc)
			}
			block[ij[0]][ij[1]] = expr
			if ij[0] != ij[1] {
				block[ij[1]][ij[0]] = expr
			}
		}
		out[key] = block
	}
	return out
}

// Assignment pairs the free variable names of the current view with the
// entries of a solved y.
func (f *Family) Assignment(y *ratmatrix.Matrix) (map[string]*big.Rat, error) {
	if y.NumRows() != f.Dof() || (y.NumCols() != 1 && y.NumRows() != 0) {
		return nil, fmt.Errorf("Family.Assignment: y must be %d x 1, got %d x %d", f.Dof(), y.NumRows(), y.NumCols())
	}
	out := make(map[string]*big.Rat, f.Dof())
	for i, name := range f.VariableNames() {
		v, _ := y.Get(i, 0)
		out[name] = new(big.Rat).Set(v)
	}
	return out, nil
}

// Copy returns a deep copy of f, mask state included.
func (f *Family) Copy() *Family {
	out := &Family{
		x0:         f.x0.Copy(),
		space:      f.space.Copy(),
		splits:     append([]Span(nil), f.splits...),
		keys:       append([]string(nil), f.keys...),
		origX0:     f.origX0.Copy(),
		origSpace:  f.origSpace.Copy(),
		origSplits: append([]Span(nil), f.origSplits...),
		maskedRows: map[string][]int{},
		generation: f.generation,
	}
	for k, v := range f.maskedRows {
		out.maskedRows[k] = append([]int(nil), v...)
	}
	if f.maskX1 != nil {
		out.maskX1 = f.maskX1.Copy()
		out.maskSpace1 = f.maskSpace1.Copy()
	}
	return out
}

// ApplyMask forces the listed rows and columns of each named block to be
// identically zero, replacing the working view with the constrained,
// reduced system. An empty mask resets to the unmasked view. If the
// constraints are inconsistent with x0 the family reverts to the unmasked
// view and an error wrapping ErrMaskInconsistent is returned.
func (f *Family) ApplyMask(masks map[string][]int) error {
	// restore the unmasked view first; the mask always applies to the
	// original system
	f.x0 = f.origX0
	f.space = f.origSpace
	f.splits = f.origSplits
	f.maskedRows = map[string][]int{}
	f.maskX1 = nil
	f.maskSpace1 = nil
	f.generation++

	empty := true
	for _, rows := range masks {
		if len(rows) > 0 {
			empty = false
		}
	}
	if empty {
		return nil
	}

	keyIndex := make(map[string]int, len(f.keys))
	for i, key := range f.keys {
		keyIndex[key] = i
	}
	origDims := make([]int, len(f.keys))
	for i := range f.keys {
		origDims[i], _ = ratmatrix.DimFromUpperVecLen(f.origSplits[i].Stop - f.origSplits[i].Start)
	}

	var lines []int
	for key, rows := range masks {
		b, ok := keyIndex[key]
		if !ok {
			return fmt.Errorf("Family.ApplyMask: unknown key %q", key)
		}
		masked := make(map[int]bool, len(rows))
		for _, r := range rows {
			if r < 0 || r >= origDims[b] {
				return fmt.Errorf(
					"Family.ApplyMask: row %d out of range for block %q of dimension %d",
					r, key, origDims[b],
				)
			}
			masked[r] = true
		}
		for v, ij := range ratmatrix.UpperVecIndices(origDims[b]) {
			if masked[ij[0]] || masked[ij[1]] {
				lines = append(lines, f.origSplits[b].Start+v)
			}
		}
	}
	sort.Ints(lines)

	perpSpace, err := f.origSpace.SubRows(lines)
	if err != nil {
		return fmt.Errorf("Family.ApplyMask: %s", err.Error())
	}
	target, err := f.origX0.SubRows(lines)
	if err != nil {
		return fmt.Errorf("Family.ApplyMask: %s", err.Error())
	}
	target = target.ScalarMul(big.NewRat(-1, 1))

	// solve space[lines]*y = -x0[lines]; substituting y = x1 + space1*y'
	// zeroes the masked entries for every choice of y'
	x1, space1, err := ratmatrix.SolveUndetermined(perpSpace, target)
	if err != nil {
		return fmt.Errorf("Family.ApplyMask: %w: %s", ErrMaskInconsistent, err.Error())
	}

	moved, err := f.origSpace.Mul(x1)
	if err != nil {
		return fmt.Errorf("Family.ApplyMask: %s", err.Error())
	}
	newX0, err := f.origX0.Add(moved)
	if err != nil {
		return fmt.Errorf("Family.ApplyMask: %s", err.Error())
	}
	newSpace, err := f.origSpace.Mul(space1)
	if err != nil {
		return fmt.Errorf("Family.ApplyMask: %s", err.Error())
	}

	// physically drop the masked rows
	isLine := make(map[int]bool, len(lines))
	for _, l := range lines {
		isLine[l] = true
	}
	var keep []int
	for r := 0; r < newX0.NumRows(); r++ {
		if !isLine[r] {
			keep = append(keep, r)
		}
	}
	f.x0, err = newX0.SubRows(keep)
	if err != nil {
		return fmt.Errorf("Family.ApplyMask: %s", err.Error())
	}
	f.space, err = newSpace.SubRows(keep)
	if err != nil {
		return fmt.Errorf("Family.ApplyMask: %s", err.Error())
	}

	maskedDims := make([]int, len(f.keys))
	for i, key := range f.keys {
		maskedDims[i] = origDims[i] - len(uniqueSorted(masks[key]))
	}
	f.splits = SplitsForDims(maskedDims)
	for key, rows := range masks {
		if len(rows) > 0 {
			f.maskedRows[key] = uniqueSorted(rows)
		}
	}
	f.maskX1 = x1
	f.maskSpace1 = space1
	return nil
}

// MaskTransform returns the affine change of variables y = x1 + space1*y'
// relating the unmasked free vector y to the masked one y'. The boolean
// is false when no mask is active.
func (f *Family) MaskTransform() (*ratmatrix.Matrix, *ratmatrix.Matrix, bool) {
	if f.maskX1 == nil {
		return nil, nil, false
	}
	return f.maskX1.Copy(), f.maskSpace1.Copy(), true
}

// Unmask reinserts zero rows and columns into a solved matrix for the
// masked view of the named block, restoring the original block shape.
func (f *Family) Unmask(s *ratmatrix.Matrix, key string) (*ratmatrix.Matrix, error) {
	mask := f.maskedRows[key]
	if len(mask) == 0 {
		return s.Copy(), nil
	}
	if s.NumRows() != s.NumCols() {
		return nil, fmt.Errorf("Family.Unmask: expected a square matrix, got %d x %d", s.NumRows(), s.NumCols())
	}
	full := s.NumRows() + len(mask)
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
	if len(keep) != s.NumRows() {
		return nil, fmt.Errorf(
			"Family.Unmask: block %q mask of %d rows does not fit a %d x %d matrix",
			key, len(mask), s.NumRows(), s.NumCols(),
		)
	}
	out := ratmatrix.NewEmpty(full, full)
	for i, r := range keep {
		for j, c := range keep {
			v, err := s.Get(i, j)
			if err != nil {
				return nil, err
			}
			if err := out.Set(r, c, v); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// Splits returns the spans of the current view.
func (f *Family) Splits() []Span { return append([]Span(nil), f.splits...) }

// viewArgs returns copies of the current (masked) view's data.
func (f *Family) viewArgs() (*ratmatrix.Matrix, *ratmatrix.Matrix, []Span) {
	return f.x0.Copy(), f.space.Copy(), f.Splits()
}

// X0Float returns the current x0 as float64s.
func (f *Family) X0Float() []float64 {
	out := make([]float64, f.x0.NumRows())
	for i := range out {
		v, _ := f.x0.Get(i, 0)
		f64, _ := v.Float64()
		out[i] = f64
	}
	return out
}

// SpaceFloat returns the current space as float64 rows.
func (f *Family) SpaceFloat() [][]float64 {
	rows := make([][]float64, f.space.NumRows())
	for i := range rows {
		rows[i] = make([]float64, f.space.NumCols())
		for j := range rows[i] {
			v, _ := f.space.Get(i, j)
			rows[i][j], _ = v.Float64()
		}
	}
	return rows
}

// SpaceEntries returns the entries of the current space matrix; Combine
// surveys their denominators to budget its search.
func (f *Family) SpaceEntries() []*big.Rat {
	var out []*big.Rat
	for i := 0; i < f.space.NumRows(); i++ {
		for j := 0; j < f.space.NumCols(); j++ {
			v, _ := f.space.Get(i, j)
			out = append(out, v)
		}
	}
	return out
}

func uniqueSorted(rows []int) []int {
	if len(rows) == 0 {
		return nil
	}
	seen := make(map[int]bool, len(rows))
	var out []int
	for _, r := range rows {
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	sort.Ints(out)
	return out
}
