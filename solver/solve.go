// Copyright (c) 2023 Colin McRae

package solver

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/zyckk4/Triple-SOS/ratmatrix"
	"github.com/zyckk4/Triple-SOS/sdp"
)

// Method selects the search strategy of a Solve call.
type Method int

const (
	MethodTrivial Method = iota
	MethodRelax
	MethodPartialDeflation
)

func (m Method) String() string {
	switch m {
	case MethodTrivial:
		return "trivial"
	case MethodRelax:
		return "relax"
	case MethodPartialDeflation:
		return "partial deflation"
	}
	return fmt.Sprintf("Method(%d)", int(m))
}

// ParseMethod maps a method name to its Method. Unknown names are a
// construction-time error.
func ParseMethod(name string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trivial":
		return MethodTrivial, nil
	case "relax":
		return MethodRelax, nil
	case "partial deflation", "partial-deflation", "deflation":
		return MethodPartialDeflation, nil
	}
	return 0, fmt.Errorf("ParseMethod: method %q is not supported", name)
}

// FailureReason classifies an unsuccessful Result.
type FailureReason int

const (
	// FailureNone: the solve succeeded.
	FailureNone FailureReason = iota

	// FailureInfeasible: the numeric program has no feasible point. This
	// indicates a construction error upstream and is never retried.
	FailureInfeasible

	// FailureRationalization: the search exhausted every strategy,
	// objective and combination without an exact rational point.
	FailureRationalization
)

// Result packages the outcome of one Solve call. It is immutable after
// creation.
type Result struct {
	Y              *ratmatrix.Matrix
	S              map[string]*ratmatrix.Matrix
	Decompositions map[string]*sdp.Decomposition
	Success        bool

	// Exact is false when the certificate was obtained by perturbing the
	// blocks numerically (AllowNumeric fallback).
	Exact bool

	Failure FailureReason
}

// SolveOptions configures a Solve call.
type SolveOptions struct {
	Method Method

	// AllowNumeric downgrades a rationalization failure to a non-fatal
	// inexact result built from the most recent numeric candidate.
	AllowNumeric bool

	// Objectives overrides the built-in objective set for the trivial
	// strategy.
	Objectives []Objective

	// Constraints are extra linear constraints over the free variables,
	// scoped to the strategy run.
	Constraints []LinearConstraint

	// Perturb is the diagonal shift of the AllowNumeric fallback
	// decomposition. Nil means 1/2^30.
	Perturb *big.Rat

	MinEigen      float64
	MaxIterations int
	MinIterations int

	Logger *slog.Logger
}

// Solve searches the family for a rational point whose blocks are all
// positive semidefinite, certified by exact congruence decompositions.
//
// A family with no degrees of freedom is rationalized directly. Otherwise
// the selected strategy drives the engine; if it fails, the accumulated
// numeric history is averaged and rationalized as a safety net, and with
// AllowNumeric the most recent candidate is decomposed with perturbation
// as a last resort, marked inexact.
//
// Search exhaustion is not an error: it yields Success == false with a
// Failure reason. The returned error is non-nil only for construction
// problems, such as an unknown method or a nil engine.
func Solve(fam *sdp.Family, engine Engine, opts SolveOptions) (*Result, error) {
	if fam == nil {
		return nil, fmt.Errorf("Solve: family is nil")
	}
	switch opts.Method {
	case MethodTrivial, MethodRelax, MethodPartialDeflation:
	default:
		return nil, fmt.Errorf("Solve: method %q is not supported", opts.Method.String())
	}

	if fam.Dof() == 0 {
		cert, ok := sdp.SolveDegenerate(fam)
		if !ok {
			return &Result{Success: false, Failure: FailureRationalization}, nil
		}
		return resultFromCertificate(cert), nil
	}

	adapter, err := NewAdapter(fam, engine, AdapterOptions{
		MinEigen:      opts.MinEigen,
		MaxIterations: opts.MaxIterations,
		MinIterations: opts.MinIterations,
		Logger:        opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("Solve: %s", err.Error())
	}

	ropts := sdp.RationalizeOptions{
		TryWithMask:   true,
		RequirePretty: true,
		Logger:        opts.Logger,
	}

	var cert *sdp.Certificate
	switch opts.Method {
	case MethodTrivial:
		cert, err = solveTrivial(adapter, opts.Objectives, opts.Constraints, ropts)
	case MethodRelax:
		cert, err = solveRelax(adapter, ropts)
	case MethodPartialDeflation:
		cert, err = solvePartialDeflation(adapter, ropts)
	}
	if err != nil {
		if errors.Is(err, ErrInfeasible) {
			debug(opts.Logger, "numeric program infeasible; aborting all strategies")
			return &Result{Success: false, Failure: FailureInfeasible}, nil
		}
		return nil, fmt.Errorf("Solve: %s", err.Error())
	}
	if cert != nil {
		return resultFromCertificate(cert), nil
	}

	// cross-strategy safety net: average everything seen so far
	history := adapter.History()
	if cert, ok := sdp.Combine(fam, history, ropts); ok {
		return resultFromCertificate(cert), nil
	}

	if opts.AllowNumeric && len(history) > 0 {
		perturb := opts.Perturb
		if perturb == nil {
			perturb = big.NewRat(1, 1<<30)
		}
		numeric := sdp.RationalizeOptions{
			TryWithMask: false,
			Perturb:     perturb,
			Logger:      opts.Logger,
		}
		if cert, ok := sdp.Rationalize(fam, history[len(history)-1], numeric); ok {
			return resultFromCertificate(cert), nil
		}
	}

	return &Result{Success: false, Failure: FailureRationalization}, nil
}

func resultFromCertificate(cert *sdp.Certificate) *Result {
	return &Result{
		Y:              cert.Y,
		S:              cert.S,
		Decompositions: cert.Decomps,
		Success:        true,
		Exact:          cert.Exact,
		Failure:        FailureNone,
	}
}

func debug(logger *slog.Logger, msg string, args ...any) {
	if logger != nil {
		logger.Debug(msg, args...)
	}
}
