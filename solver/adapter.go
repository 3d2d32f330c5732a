// Copyright (c) 2023 Colin McRae

package solver

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/zyckk4/Triple-SOS/ratmatrix"
	"github.com/zyckk4/Triple-SOS/sdp"
)

const (
	defaultMaxIterations = 50
	defaultMinIterations = 10
)

// AdapterOptions configures the numeric backend adapter.
type AdapterOptions struct {
	// MinEigen is the epsilon in the per-block constraint S >= MinEigen*I.
	MinEigen float64

	// MaxIterations is the engine's starting iteration budget (default
	// 50). On a convergence breakdown the budget is halved, down to
	// MinIterations (default 10); below the floor the objective reports
	// no candidate instead of retrying further.
	MaxIterations int
	MinIterations int

	Logger *slog.Logger
}

// Adapter builds numeric programs from the family's current view and
// executes them on an injected engine. It accumulates every successful
// numeric candidate so that strategies and Combine can average them
// later, and it drops that history whenever the family's masked geometry
// changes.
type Adapter struct {
	fam    *sdp.Family
	engine Engine
	opts   AdapterOptions

	blocks     []Block
	generation uint64

	extra   []LinearConstraint
	history [][]float64
}

// NewAdapter wires a family to a numeric engine. A nil engine is a
// configuration error.
func NewAdapter(fam *sdp.Family, engine Engine, opts AdapterOptions) (*Adapter, error) {
	if fam == nil {
		return nil, fmt.Errorf("NewAdapter: family is nil")
	}
	if engine == nil {
		return nil, fmt.Errorf("NewAdapter: numeric engine is nil")
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = defaultMaxIterations
	}
	if opts.MinIterations <= 0 {
		opts.MinIterations = defaultMinIterations
	}
	a := &Adapter{fam: fam, engine: engine, opts: opts}
	a.rebuild()
	return a, nil
}

// Family returns the family the adapter drives.
func (a *Adapter) Family() *sdp.Family { return a.fam }

// History returns the numeric candidates accumulated since the last mask
// change, oldest first.
func (a *Adapter) History() [][]float64 {
	a.syncGeneration()
	out := make([][]float64, len(a.history))
	for i, y := range a.history {
		out[i] = append([]float64(nil), y...)
	}
	return out
}

// LeadingKey returns the first non-empty block key.
func (a *Adapter) LeadingKey() (string, error) {
	keys := a.fam.NonEmptyKeys()
	if len(keys) == 0 {
		return "", fmt.Errorf("Adapter.LeadingKey: family has no non-empty blocks")
	}
	return keys[0], nil
}

// PushConstraints adds extra linear constraints to every subsequent
// numeric program and returns the function that removes exactly what was
// added. Scopes must be released in reverse order of acquisition on every
// exit path; a misordered release panics, since it would silently corrupt
// later programs.
func (a *Adapter) PushConstraints(cs []LinearConstraint) func() {
	base := len(a.extra)
	a.extra = append(a.extra, cs...)
	released := false
	return func() {
		if released {
			return
		}
		if len(a.extra) < base+len(cs) {
			panic("solver: constraint scopes released out of order")
		}
		a.extra = a.extra[:base]
		released = true
	}
}

// FixCoordinate permanently pins y[index] within the innermost open
// constraint scope, as partial deflation requires.
func (a *Adapter) FixCoordinate(index int, value float64) {
	a.extra = append(a.extra, FixCoordinateConstraint(a.fam.Dof(), index, value))
}

// SolveWithObjective builds the program for one objective and executes
// it. On a convergence breakdown the iteration budget is halved and the
// solve retried; once the budget falls below the floor, (nil, nil) is
// returned: no candidate from this objective, not a hard error.
// ErrInfeasible from the engine propagates.
func (a *Adapter) SolveWithObjective(obj Objective) ([]float64, error) {
	a.syncGeneration()
	for budget := a.opts.MaxIterations; budget >= a.opts.MinIterations; budget /= 2 {
		program := a.program(obj, budget)
		solution, err := a.engine.Solve(program)
		var convergence *ConvergenceError
		switch {
		case err == nil:
			if len(solution.Y) != a.fam.Dof() {
				return nil, fmt.Errorf(
					"Adapter.SolveWithObjective: engine returned %d coordinates, want %d",
					len(solution.Y), a.fam.Dof(),
				)
			}
			y := append([]float64(nil), solution.Y...)
			a.history = append(a.history, y)
			a.debug("numeric solve succeeded", "objective", obj.Direction.String(), "budget", budget)
			return append([]float64(nil), y...), nil
		case errors.As(err, &convergence):
			a.debug("numeric solve broke down, halving budget", "budget", budget)
			continue
		case errors.Is(err, ErrInfeasible):
			return nil, fmt.Errorf("Adapter.SolveWithObjective: %w", ErrInfeasible)
		default:
			return nil, fmt.Errorf("Adapter.SolveWithObjective: %s", err.Error())
		}
	}
	a.debug("iteration budget exhausted, no candidate for objective")
	return nil, nil
}

// Candidate is the tagged outcome of one objective: OK with a numeric Y,
// a failed solve (OK false), or a fatal error.
type Candidate struct {
	Objective Objective
	Y         []float64
	OK        bool
	Err       error
}

// CandidateSeq yields one Candidate per objective, in objective order.
// The sequence is finite; re-invoking Adapter.Candidates with the same
// objectives restarts it from scratch.
type CandidateSeq struct {
	adapter    *Adapter
	objectives []Objective
	next       int
}

// Candidates returns the candidate sequence for the given objectives, or
// for the built-in default set when objs is empty.
func (a *Adapter) Candidates(objs []Objective) (*CandidateSeq, error) {
	if len(objs) == 0 {
		leading, err := a.LeadingKey()
		if err != nil {
			return nil, err
		}
		objs = DefaultObjectives(leading)
	}
	return &CandidateSeq{adapter: a, objectives: append([]Objective(nil), objs...)}, nil
}

// Next runs the next objective's solve. The second return is false once
// every objective has been consumed.
func (s *CandidateSeq) Next() (Candidate, bool) {
	if s.next >= len(s.objectives) {
		return Candidate{}, false
	}
	obj := s.objectives[s.next]
	s.next++
	y, err := s.adapter.SolveWithObjective(obj)
	if err != nil {
		return Candidate{Objective: obj, Err: err}, true
	}
	if y == nil {
		return Candidate{Objective: obj}, true
	}
	return Candidate{Objective: obj, Y: y, OK: true}, true
}

// program assembles one numeric program for the family's current view.
func (a *Adapter) program(obj Objective, budget int) *Program {
	extra := make([]LinearConstraint, len(a.extra))
	copy(extra, a.extra)
	return &Program{
		Dof:           a.fam.Dof(),
		Blocks:        a.blocks,
		MinEigen:      a.opts.MinEigen,
		Relax:         obj.Kind == RelaxGap,
		Extra:         extra,
		Objective:     obj,
		MaxIterations: budget,
	}
}

// syncGeneration rebuilds the float view and drops the candidate history
// when masking has changed the feasible geometry.
func (a *Adapter) syncGeneration() {
	if a.generation != a.fam.Generation() || a.blocks == nil {
		a.rebuild()
		a.history = nil
		a.extra = nil
	}
}

func (a *Adapter) rebuild() {
	a.generation = a.fam.Generation()
	x0 := a.fam.X0Float()
	space := a.fam.SpaceFloat()
	splits := a.fam.Splits()
	keys := a.fam.Keys()
	blocks := make([]Block, 0, len(keys))
	for b, key := range keys {
		length := splits[b].Stop - splits[b].Start
		if length == 0 {
			continue
		}
		dim, err := ratmatrix.DimFromUpperVecLen(length)
		if err != nil {
			continue
		}
		block := Block{
			Key:   key,
			Dim:   dim,
			X0:    x0[splits[b].Start:splits[b].Stop],
			Space: space[splits[b].Start:splits[b].Stop],
		}
		blocks = append(blocks, block)
	}
	a.blocks = blocks
}

func (a *Adapter) debug(msg string, args ...any) {
	if a.opts.Logger != nil {
		a.opts.Logger.Debug(msg, args...)
	}
}
