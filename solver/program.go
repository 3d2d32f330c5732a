// Copyright (c) 2023 Colin McRae

// Package solver drives an affine family of symmetric blocks toward an
// exact rational certificate. It models the numeric convex program, wraps
// an injected numeric engine with iteration-budget back-off, and runs the
// trivial, relax and partial-deflation search strategies over the
// rationalizer in package sdp.
package solver

import (
	"errors"
	"fmt"
)

// ErrInfeasible is returned by an Engine when the relaxed convex program
// itself has no feasible point. It is always fatal for the current family
// construction and is never silently retried.
var ErrInfeasible = errors.New("numeric program is infeasible")

// ConvergenceError is returned by an Engine when its iterative method
// breaks down before producing a solution. The adapter recovers locally
// by halving the iteration budget.
type ConvergenceError struct {
	Iterations int
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("numeric method failed to converge within %d iterations", e.Iterations)
}

// Direction is the sense of an objective.
type Direction int

const (
	Maximize Direction = iota
	Minimize
)

func (d Direction) String() string {
	if d == Minimize {
		return "min"
	}
	return "max"
}

// ObjectiveKind selects the linear functional being optimized.
type ObjectiveKind int

const (
	// BlockTrace is the trace of the block named by Key.
	BlockTrace ObjectiveKind = iota
	// BlockEntrySum is the sum of all entries of the block named by Key.
	BlockEntrySum
	// Coordinate is the free coordinate y[Index].
	Coordinate
	// Linear is Coeff . y, the compiled form of a caller-supplied linear
	// expression over the free variables.
	Linear
	// RelaxGap maximizes lambda subject to leadingBlock - lambda*I >= 0
	// and lambda >= 0, biasing the solution toward the analytic center.
	RelaxGap
)

// Objective is one (direction, functional) pair for a numeric solve.
type Objective struct {
	Direction Direction
	Kind      ObjectiveKind
	Key       string
	Index     int
	Coeff     []float64
}

// DefaultObjectives is the built-in objective set used when the caller
// supplies none: maximize the leading trace, minimize it, then maximize
// the leading entry sum.
func DefaultObjectives(leadingKey string) []Objective {
	return []Objective{
		{Direction: Maximize, Kind: BlockTrace, Key: leadingKey},
		{Direction: Minimize, Kind: BlockTrace, Key: leadingKey},
		{Direction: Maximize, Kind: BlockEntrySum, Key: leadingKey},
	}
}

// Op is a linear constraint comparison.
type Op int

const (
	OpEq Op = iota
	OpLe
	OpGe
)

// LinearConstraint is the constraint Coeff . y (Op) Rhs on the free
// vector.
type LinearConstraint struct {
	Coeff []float64
	Rhs   float64
	Op    Op
}

// FixCoordinateConstraint is the equality y[index] == value.
func FixCoordinateConstraint(dof int, index int, value float64) LinearConstraint {
	coeff := make([]float64, dof)
	coeff[index] = 1
	return LinearConstraint{Coeff: coeff, Rhs: value, Op: OpEq}
}

// Block is the float64 view of one non-empty block of the family: the
// block's matrix at y is the symmetric unpacking of X0 + Space*y
// restricted to the block's rows.
type Block struct {
	Key   string
	Dim   int
	X0    []float64
	Space [][]float64
}

// Program is one numeric convex program: find (or optimize over) y with
// every block >= MinEigen*I plus the extra linear constraints.
type Program struct {
	Dof           int
	Blocks        []Block
	MinEigen      float64
	Relax         bool // leading block constrained to >= lambda*I, lambda >= 0
	Extra         []LinearConstraint
	Objective     Objective
	MaxIterations int
}

// Solution is a primal point produced by an Engine.
type Solution struct {
	Y []float64
}

// Engine executes one numeric convex program. It returns ErrInfeasible
// when the program has no feasible point and *ConvergenceError when its
// iterative method breaks down within the iteration budget. The engine is
// injected at construction; its absence is a configuration error at
// startup, not a per-call branch.
type Engine interface {
	Solve(p *Program) (*Solution, error)
}
