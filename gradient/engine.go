// Copyright (c) 2023 Colin McRae

// Package gradient is a small projected-gradient engine for the numeric
// convex programs in package solver. It is not an interior-point method:
// it finds a feasible point by descending a squared eigenvalue-shortfall
// penalty, then follows the linear objective while repairing feasibility
// after every step. That is accurate enough to seed the rationalizer,
// which never trusts the numeric point anyway.
package gradient

import (
	"math"

	"github.com/zyckk4/Triple-SOS/solver"
)

const (
	// itersPerUnit converts the program's iteration budget into inner
	// gradient steps; budgets are calibrated for interior-point solvers
	// that do far more work per iteration.
	itersPerUnit = 40

	feasTol      = 1e-16 // accepted squared penalty
	stallGrad    = 1e-14 // below this gradient norm, descent has stalled
	infeasibleAt = 1e-10 // stalled above this penalty means infeasible
	repairSteps  = 25
)

// Engine implements solver.Engine.
type Engine struct {
	// InitialStep is the first gradient step length (default 1).
	InitialStep float64
}

// New returns an Engine with default settings.
func New() *Engine {
	return &Engine{InitialStep: 1}
}

// Solve finds a numeric point of the program, or reports ErrInfeasible or
// *ConvergenceError per the Engine contract. The search is deterministic:
// it starts at the origin projected onto the equality constraints.
func (e *Engine) Solve(p *solver.Program) (*solver.Solution, error) {
	state := newSolveState(p, e.InitialStep)
	budget := p.MaxIterations * itersPerUnit
	if budget <= 0 {
		budget = itersPerUnit
	}

	y, err := state.findFeasible(budget)
	if err != nil {
		return nil, err
	}
	y = state.follow(y, budget)
	if state.penaltyAt(y) > infeasibleAt {
		return nil, &solver.ConvergenceError{Iterations: p.MaxIterations}
	}
	return &solver.Solution{Y: y}, nil
}

type solveState struct {
	p           *solver.Program
	initialStep float64
	eqCoeff     [][]float64
	eqRhs       []float64
	ineq        []solver.LinearConstraint
}

func newSolveState(p *solver.Program, initialStep float64) *solveState {
	if initialStep <= 0 {
		initialStep = 1
	}
	s := &solveState{p: p, initialStep: initialStep}
	for _, c := range p.Extra {
		if c.Op == solver.OpEq {
			s.eqCoeff = append(s.eqCoeff, c.Coeff)
			s.eqRhs = append(s.eqRhs, c.Rhs)
		} else {
			s.ineq = append(s.ineq, c)
		}
	}
	return s
}

// findFeasible descends the squared penalty from the projected origin.
func (s *solveState) findFeasible(budget int) ([]float64, error) {
	y := make([]float64, s.p.Dof)
	s.project(y)
	step := s.initialStep
	viol, grad := s.penalty(y)
	for it := 0; it < budget && viol > feasTol; it++ {
		gnorm := norm(grad)
		if gnorm < stallGrad {
			if viol > infeasibleAt {
				return nil, solver.ErrInfeasible
			}
			break
		}
		trial := make([]float64, len(y))
		for i := range y {
			trial[i] = y[i] - step*grad[i]/gnorm
		}
		s.project(trial)
		trialViol, trialGrad := s.penalty(trial)
		if trialViol < viol {
			y, viol, grad = trial, trialViol, trialGrad
			step = math.Min(step*1.2, 4*s.initialStep)
		} else {
			step *= 0.5
			if step < 1e-14 {
				break
			}
		}
	}
	if viol > feasTol {
		if norm(grad) < stallGrad && viol > infeasibleAt {
			return nil, solver.ErrInfeasible
		}
		if viol > infeasibleAt {
			return nil, &solver.ConvergenceError{Iterations: s.p.MaxIterations}
		}
	}
	return y, nil
}

// follow ascends the objective from a feasible point, repairing
// feasibility after every accepted step and reverting steps that cannot
// be repaired.
func (s *solveState) follow(y []float64, budget int) []float64 {
	best := append([]float64(nil), y...)
	step := s.initialStep
	for it := 0; it < budget; it++ {
		dir := s.objectiveGradient(best)
		dnorm := norm(dir)
		if dnorm < stallGrad {
			break
		}
		trial := make([]float64, len(best))
		for i := range best {
			trial[i] = best[i] + step*dir[i]/dnorm
		}
		s.project(trial)
		if s.repair(trial) {
			best = trial
		} else {
			step *= 0.5
			if step < 1e-10 {
				break
			}
		}
	}
	return best
}

// repair runs a few penalty descent steps in place; it reports whether
// the point ended feasible.
func (s *solveState) repair(y []float64) bool {
	step := s.initialStep / 4
	viol, grad := s.penalty(y)
	for it := 0; it < repairSteps && viol > feasTol; it++ {
		gnorm := norm(grad)
		if gnorm < stallGrad {
			break
		}
		trial := make([]float64, len(y))
		for i := range y {
			trial[i] = y[i] - step*grad[i]/gnorm
		}
		s.project(trial)
		trialViol, trialGrad := s.penalty(trial)
		if trialViol < viol {
			copy(y, trial)
			viol, grad = trialViol, trialGrad
		} else {
			step *= 0.5
		}
	}
	return viol <= feasTol
}

// penalty is the squared shortfall of every block below MinEigen*I plus
// squared inequality violations, with its gradient in y.
func (s *solveState) penaltyAt(y []float64) float64 {
	v, _ := s.penalty(y)
	return v
}

func (s *solveState) penalty(y []float64) (float64, []float64) {
	viol := 0.0
	grad := make([]float64, s.p.Dof)
	for bi := range s.p.Blocks {
		b := &s.p.Blocks[bi]
		vals, vecs := eigenSym(blockMatrix(b, y))
		for k, lambda := range vals {
			shortfall := s.p.MinEigen - lambda
			if shortfall <= 0 {
				continue
			}
			viol += shortfall * shortfall
			// d(lambda)/dy_j = v^t A_j v for the eigenvector v
			for j := 0; j < s.p.Dof; j++ {
				grad[j] -= 2 * shortfall * quadForm(b, j, vecs[k])
			}
		}
	}
	for _, c := range s.ineq {
		slack := dot(c.Coeff, y) - c.Rhs
		if c.Op == solver.OpGe {
			slack = -slack
		}
		if slack > 0 {
			viol += slack * slack
			sign := 2 * slack
			if c.Op == solver.OpGe {
				sign = -sign
			}
			for j, coeff := range c.Coeff {
				grad[j] += sign * coeff
			}
		}
	}
	return viol, grad
}

// objectiveGradient is the ascent direction of the objective at y. It is
// constant for the linear kinds; for RelaxGap it is the gradient of the
// leading block's smallest eigenvalue.
func (s *solveState) objectiveGradient(y []float64) []float64 {
	obj := s.p.Objective
	grad := make([]float64, s.p.Dof)
	switch obj.Kind {
	case solver.Coordinate:
		if obj.Index >= 0 && obj.Index < s.p.Dof {
			grad[obj.Index] = 1
		}
	case solver.Linear:
		for j := 0; j < s.p.Dof && j < len(obj.Coeff); j++ {
			grad[j] = obj.Coeff[j]
		}
	case solver.BlockTrace, solver.BlockEntrySum:
		b := s.blockByKey(obj.Key)
		if b == nil {
			break
		}
		row := 0
		for i := 0; i < b.Dim; i++ {
			for k := i; k < b.Dim; k++ {
				weight := 0.0
				switch {
				case obj.Kind == solver.BlockTrace && i == k:
					weight = 1
				case obj.Kind == solver.BlockEntrySum:
					weight = 1
					if i != k {
						weight = 2
					}
				}
				if weight != 0 {
					for j := 0; j < s.p.Dof; j++ {
						grad[j] += weight * b.Space[row][j]
					}
				}
				row++
			}
		}
	case solver.RelaxGap:
		b := s.blockByKey(obj.Key)
		if b == nil && len(s.p.Blocks) > 0 {
			b = &s.p.Blocks[0]
		}
		if b == nil {
			break
		}
		vals, vecs := eigenSym(blockMatrix(b, y))
		minIdx := 0
		for k := range vals {
			if vals[k] < vals[minIdx] {
				minIdx = k
			}
		}
		for j := 0; j < s.p.Dof; j++ {
			grad[j] = quadForm(b, j, vecs[minIdx])
		}
	}
	if obj.Direction == solver.Minimize {
		for j := range grad {
			grad[j] = -grad[j]
		}
	}
	return grad
}

func (s *solveState) blockByKey(key string) *solver.Block {
	for i := range s.p.Blocks {
		if s.p.Blocks[i].Key == key {
			return &s.p.Blocks[i]
		}
	}
	return nil
}

// project moves y onto the equality constraints by solving the normal
// equations of the correction.
func (s *solveState) project(y []float64) {
	m := len(s.eqCoeff)
	if m == 0 {
		return
	}
	residual := make([]float64, m)
	for i, row := range s.eqCoeff {
		residual[i] = dot(row, y) - s.eqRhs[i]
	}
	gram := make([][]float64, m)
	for i := 0; i < m; i++ {
		gram[i] = make([]float64, m)
		for j := 0; j < m; j++ {
			gram[i][j] = dot(s.eqCoeff[i], s.eqCoeff[j])
		}
		gram[i][i] += 1e-12
	}
	mu, ok := solveSmall(gram, residual)
	if !ok {
		return
	}
	for i, row := range s.eqCoeff {
		for j, coeff := range row {
			y[j] -= mu[i] * coeff
		}
	}
}

// blockMatrix materializes one block's symmetric matrix at y.
func blockMatrix(b *solver.Block, y []float64) [][]float64 {
	out := make([][]float64, b.Dim)
	for i := range out {
		out[i] = make([]float64, b.Dim)
	}
	row := 0
	for i := 0; i < b.Dim; i++ {
		for k := i; k < b.Dim; k++ {
			v := b.X0[row]
			for j, yj := range y {
				v += b.Space[row][j] * yj
			}
			out[i][k] = v
			out[k][i] = v
			row++
		}
	}
	return out
}

// quadForm is v^t A_j v, where A_j is the symmetric matrix packed in
// column j of the block's space.
func quadForm(b *solver.Block, j int, v []float64) float64 {
	out := 0.0
	row := 0
	for i := 0; i < b.Dim; i++ {
		for k := i; k < b.Dim; k++ {
			coeff := b.Space[row][j]
			if coeff != 0 {
				term := coeff * v[i] * v[k]
				if i != k {
					term *= 2
				}
				out += term
			}
			row++
		}
	}
	return out
}

func dot(a []float64, b []float64) float64 {
	out := 0.0
	for i := 0; i < len(a) && i < len(b); i++ {
		out += a[i] * b[i]
	}
	return out
}

func norm(a []float64) float64 {
	return math.Sqrt(dot(a, a))
}

// solveSmall is Gaussian elimination with partial pivoting for the tiny
// systems the projection produces.
func solveSmall(a [][]float64, b []float64) ([]float64, bool) {
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
