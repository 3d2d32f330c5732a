// Copyright (c) 2023 Colin McRae

package solver

import (
	"math"

	"github.com/zyckk4/Triple-SOS/rational"
	"github.com/zyckk4/Triple-SOS/sdp"
)

const (
	// deflationTightBounds is the half-width below which the max and min
	// of a deflated coordinate are treated as equal.
	deflationTightBounds = 1e-7

	// deflationSlack scales the half-width into the rounding tolerance of
	// a midpoint rationalization; the snapped value may fall slightly
	// outside the numeric bounds and is accepted as a best-effort center.
	deflationSlack = 0.8
)

// solveTrivial makes one pass over the objectives, rationalizing each
// numeric candidate. Caller-supplied constraints are scoped to this
// strategy.
func solveTrivial(a *Adapter, objectives []Objective, constraints []LinearConstraint, ropts sdp.RationalizeOptions) (*sdp.Certificate, error) {
	pop := a.PushConstraints(constraints)
	defer pop()

	seq, err := a.Candidates(objectives)
	if err != nil {
		return nil, err
	}
	for {
		candidate, more := seq.Next()
		if !more {
			return nil, nil
		}
		if candidate.Err != nil {
			return nil, candidate.Err
		}
		if !candidate.OK {
			continue
		}
		if cert, ok := sdp.Rationalize(a.Family(), candidate.Y, ropts); ok {
			return cert, nil
		}
	}
}

// solveRelax replaces the leading block's PSD constraint with
// "block - lambda*I >= 0, lambda >= 0" and maximizes lambda, pushing the
// numeric solution toward the analytic center before rationalizing.
func solveRelax(a *Adapter, ropts sdp.RationalizeOptions) (*sdp.Certificate, error) {
	leading, err := a.LeadingKey()
	if err != nil {
		return nil, err
	}
	y, err := a.SolveWithObjective(Objective{Direction: Maximize, Kind: RelaxGap, Key: leading})
	if err != nil {
		return nil, err
	}
	if y == nil {
		return nil, nil
	}
	if cert, ok := sdp.Rationalize(a.Family(), y, ropts); ok {
		return cert, nil
	}
	return nil, nil
}

// solvePartialDeflation fixes one free coordinate at a time: solve for
// the coordinate's maximum and minimum, rationalize each, try the
// combination of the two, then pin the coordinate at a snapped midpoint
// and move on to the next. Fewer than two successful solves for a
// coordinate is a degenerate numeric failure that aborts the strategy.
// All pinning constraints live in one scope released on every exit path.
func solvePartialDeflation(a *Adapter, ropts sdp.RationalizeOptions) (*sdp.Certificate, error) {
	pop := a.PushConstraints(nil)
	defer pop()

	dof := a.Family().Dof()
	for i := 0; i < dof; i++ {
		objectives := []Objective{
			{Direction: Maximize, Kind: Coordinate, Index: i},
			{Direction: Minimize, Kind: Coordinate, Index: i},
		}
		solved := 0
		var upper, lower float64
		for _, obj := range objectives {
			y, err := a.SolveWithObjective(obj)
			if err != nil {
				return nil, err
			}
			if y == nil {
				continue
			}
			if obj.Direction == Maximize {
				upper = y[i]
			} else {
				lower = y[i]
			}
			solved++
			if cert, ok := sdp.Rationalize(a.Family(), y, ropts); ok {
				return cert, nil
			}
		}
		if solved < 2 {
			return nil, nil
		}

		history := a.History()
		if cert, ok := sdp.Combine(a.Family(), history[len(history)-2:], ropts); ok {
			return cert, nil
		}

		fix := (upper + lower) / 2
		eps := (upper - lower) / 2
		var snapped float64
		switch {
		case eps <= deflationTightBounds:
			// max and min agree; recover the exact rational the floats
			// are hiding
			if math.Abs(fix) <= deflationTightBounds {
				snapped = 0
			} else if r, ok := rational.Approx(fix, 0, true); ok {
				snapped = rational.Float(r)
			} else {
				snapped = fix
			}
		case lower < math.Round(fix) && math.Round(fix) < upper:
			snapped = math.Round(fix)
		default:
			if r, ok := rational.Approx(fix, deflationSlack*eps, false); ok {
				snapped = rational.Float(r)
			} else {
				snapped = fix
			}
		}
		debugfSolve(ropts, "deflating coordinate", i, snapped, lower, upper)
		a.FixCoordinate(i, snapped)
	}
	return nil, nil
}

func debugfSolve(ropts sdp.RationalizeOptions, msg string, index int, fix, lower, upper float64) {
	if ropts.Logger != nil {
		ropts.Logger.Debug(msg, "index", index, "fix", fix, "lower", lower, "upper", upper)
	}
}
