// Copyright (c) 2023 Colin McRae

package solver

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zyckk4/Triple-SOS/ratmatrix"
	"github.com/zyckk4/Triple-SOS/sdp"
)

// stubEngine records every program it is asked to solve and answers with
// a scripted function.
type stubEngine struct {
	fn       func(p *Program) (*Solution, error)
	programs []*Program
}

func (e *stubEngine) Solve(p *Program) (*Solution, error) {
	e.programs = append(e.programs, p)
	return e.fn(p)
}

func (e *stubEngine) budgets() []int {
	out := make([]int, len(e.programs))
	for i, p := range e.programs {
		out[i] = p.MaxIterations
	}
	return out
}

// scalarFamily builds the family of one 1 x 1 block S(y) = [x0 + y].
func scalarFamily(t *testing.T, x0 int64) *sdp.Family {
	t.Helper()
	x0Vec, err := ratmatrix.NewFromInt64Array([]int64{x0}, 1, 1)
	require.NoError(t, err)
	space, err := ratmatrix.NewFromInt64Array([]int64{1}, 1, 1)
	require.NoError(t, err)
	fam, err := sdp.NewFamily(x0Vec, space, sdp.SplitsForDims([]int{1}), []string{"major"})
	require.NoError(t, err)
	return fam
}

func TestNewAdapterValidation(t *testing.T) {
	engine := &stubEngine{fn: func(p *Program) (*Solution, error) { return nil, nil }}
	_, err := NewAdapter(nil, engine, AdapterOptions{})
	assert.Error(t, err)
	_, err = NewAdapter(scalarFamily(t, 0), nil, AdapterOptions{})
	assert.Error(t, err)
}

func TestSolveWithObjectiveBackOff(t *testing.T) {
	// the engine breaks down until the budget is halved twice
	engine := &stubEngine{fn: func(p *Program) (*Solution, error) {
		if p.MaxIterations > 12 {
			return nil, &ConvergenceError{Iterations: p.MaxIterations}
		}
		return &Solution{Y: []float64{0.5}}, nil
	}}
	adapter, err := NewAdapter(scalarFamily(t, 0), engine, AdapterOptions{})
	require.NoError(t, err)

	y, err := adapter.SolveWithObjective(Objective{Direction: Maximize, Kind: Coordinate})
	assert.NoError(t, err)
	assert.Equal(t, []float64{0.5}, y)
	assert.Equal(t, []int{50, 25, 12}, engine.budgets())
	assert.Len(t, adapter.History(), 1)
}

func TestSolveWithObjectiveBudgetFloor(t *testing.T) {
	engine := &stubEngine{fn: func(p *Program) (*Solution, error) {
		return nil, &ConvergenceError{Iterations: p.MaxIterations}
	}}
	adapter, err := NewAdapter(scalarFamily(t, 0), engine, AdapterOptions{})
	require.NoError(t, err)

	y, err := adapter.SolveWithObjective(Objective{Direction: Maximize, Kind: Coordinate})
	assert.NoError(t, err)
	assert.Nil(t, y)
	// 50, 25, 12, then 6 falls below the floor of 10
	assert.Equal(t, []int{50, 25, 12}, engine.budgets())
	assert.Empty(t, adapter.History())
}

func TestSolveWithObjectiveInfeasible(t *testing.T) {
	engine := &stubEngine{fn: func(p *Program) (*Solution, error) {
		return nil, ErrInfeasible
	}}
	adapter, err := NewAdapter(scalarFamily(t, -1), engine, AdapterOptions{})
	require.NoError(t, err)

	_, err = adapter.SolveWithObjective(Objective{Direction: Maximize, Kind: Coordinate})
	assert.True(t, errors.Is(err, ErrInfeasible))
	// infeasibility is never retried
	assert.Len(t, engine.programs, 1)
}

func TestSolveWithObjectiveFatalError(t *testing.T) {
	engine := &stubEngine{fn: func(p *Program) (*Solution, error) {
		return nil, fmt.Errorf("backend caught fire")
	}}
	adapter, err := NewAdapter(scalarFamily(t, 0), engine, AdapterOptions{})
	require.NoError(t, err)

	_, err = adapter.SolveWithObjective(Objective{})
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrInfeasible))
	assert.Len(t, engine.programs, 1)
}

func TestSolveWithObjectiveLengthCheck(t *testing.T) {
	engine := &stubEngine{fn: func(p *Program) (*Solution, error) {
		return &Solution{Y: []float64{1, 2}}, nil
	}}
	adapter, err := NewAdapter(scalarFamily(t, 0), engine, AdapterOptions{})
	require.NoError(t, err)

	_, err = adapter.SolveWithObjective(Objective{})
	assert.Error(t, err)
}

func TestCandidates(t *testing.T) {
	engine := &stubEngine{fn: func(p *Program) (*Solution, error) {
		return &Solution{Y: []float64{0.1}}, nil
	}}
	adapter, err := NewAdapter(scalarFamily(t, 0), engine, AdapterOptions{})
	require.NoError(t, err)

	seq, err := adapter.Candidates(nil)
	require.NoError(t, err)
	var kinds []ObjectiveKind
	var directions []Direction
	for {
		candidate, more := seq.Next()
		if !more {
			break
		}
		assert.True(t, candidate.OK)
		assert.Equal(t, []float64{0.1}, candidate.Y)
		kinds = append(kinds, candidate.Objective.Kind)
		directions = append(directions, candidate.Objective.Direction)
	}
	assert.Equal(t, []ObjectiveKind{BlockTrace, BlockTrace, BlockEntrySum}, kinds)
	assert.Equal(t, []Direction{Maximize, Minimize, Maximize}, directions)

	// the sequence is exhausted; a fresh one restarts
	_, more := seq.Next()
	assert.False(t, more)
	seq, err = adapter.Candidates(nil)
	require.NoError(t, err)
	_, more = seq.Next()
	assert.True(t, more)
}

func TestPushConstraintsScoping(t *testing.T) {
	engine := &stubEngine{fn: func(p *Program) (*Solution, error) {
		return &Solution{Y: []float64{0}}, nil
	}}
	adapter, err := NewAdapter(scalarFamily(t, 0), engine, AdapterOptions{})
	require.NoError(t, err)

	pop := adapter.PushConstraints([]LinearConstraint{
		{Coeff: []float64{1}, Rhs: 2, Op: OpLe},
	})
	_, err = adapter.SolveWithObjective(Objective{})
	require.NoError(t, err)
	require.Len(t, engine.programs, 1)
	assert.Len(t, engine.programs[0].Extra, 1)

	pop()
	_, err = adapter.SolveWithObjective(Objective{})
	require.NoError(t, err)
	assert.Empty(t, engine.programs[1].Extra)

	// double release is a no-op
	pop()
}

func TestPushConstraintsMisorderedRelease(t *testing.T) {
	engine := &stubEngine{fn: func(p *Program) (*Solution, error) {
		return &Solution{Y: []float64{0}}, nil
	}}
	adapter, err := NewAdapter(scalarFamily(t, 0), engine, AdapterOptions{})
	require.NoError(t, err)

	popOuter := adapter.PushConstraints([]LinearConstraint{{Coeff: []float64{1}, Op: OpGe}})
	popInner := adapter.PushConstraints([]LinearConstraint{{Coeff: []float64{1}, Op: OpLe}})

	// releasing the outer scope first silently drops the inner scope's
	// constraints; the inner release must notice
	popOuter()
	assert.Panics(t, func() { popInner() })
}

func TestFixCoordinate(t *testing.T) {
	engine := &stubEngine{fn: func(p *Program) (*Solution, error) {
		return &Solution{Y: []float64{0}}, nil
	}}
	adapter, err := NewAdapter(scalarFamily(t, 0), engine, AdapterOptions{})
	require.NoError(t, err)

	adapter.FixCoordinate(0, 2.5)
	_, err = adapter.SolveWithObjective(Objective{})
	require.NoError(t, err)
	require.Len(t, engine.programs[0].Extra, 1)
	fixed := engine.programs[0].Extra[0]
	assert.Equal(t, OpEq, fixed.Op)
	assert.Equal(t, 2.5, fixed.Rhs)
	assert.Equal(t, []float64{1}, fixed.Coeff)
}

func TestHistoryResetOnMaskChange(t *testing.T) {
	x0, err := ratmatrix.NewFromInt64Array([]int64{0, 0, 1}, 3, 1)
	require.NoError(t, err)
	space, err := ratmatrix.NewFromInt64Array([]int64{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	}, 3, 3)
	require.NoError(t, err)
	fam, err := sdp.NewFamily(x0, space, sdp.SplitsForDims([]int{2}), []string{"major"})
	require.NoError(t, err)

	engine := &stubEngine{fn: func(p *Program) (*Solution, error) {
		return &Solution{Y: make([]float64, p.Dof)}, nil
	}}
	adapter, err := NewAdapter(fam, engine, AdapterOptions{})
	require.NoError(t, err)

	_, err = adapter.SolveWithObjective(Objective{})
	require.NoError(t, err)
	assert.Len(t, adapter.History(), 1)
	assert.Equal(t, 3, engine.programs[0].Dof)

	// masking changes the feasible geometry; stale candidates are dropped
	require.NoError(t, fam.ApplyMask(map[string][]int{"major": {0}}))
	assert.Empty(t, adapter.History())

	_, err = adapter.SolveWithObjective(Objective{})
	require.NoError(t, err)
	last := engine.programs[len(engine.programs)-1]
	assert.Equal(t, 1, last.Dof)
	require.Len(t, last.Blocks, 1)
	assert.Equal(t, 1, last.Blocks[0].Dim)
}

func TestLeadingKey(t *testing.T) {
	engine := &stubEngine{fn: func(p *Program) (*Solution, error) { return nil, nil }}
	adapter, err := NewAdapter(scalarFamily(t, 0), engine, AdapterOptions{})
	require.NoError(t, err)
	key, err := adapter.LeadingKey()
	assert.NoError(t, err)
	assert.Equal(t, "major", key)
}
