//go:build !windows && !no_cgo

package triangulation

import (
	"github.com/edaniels/golog"
	"github.com/go-nlopt/nlopt"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

const (
	// Stop optimizing when the objective or the iterate change by less than this much.
	refineTol     = 1e-12
	refineMaxEval = 200
)

// TriangulateNonlinear minimizes the sum of squared reprojection residuals over the 3D
// point alone, starting from the given initial estimate; the cameras stay fixed.
// Iteration and termination are delegated to nlopt's gradient-based SLSQP solver, with
// the gradient assembled from the analytic residual Jacobians. Optimizer failures are
// surfaced, never swallowed.
func TriangulateNonlinear(
	cameras []Camera,
	measurements []r2.Point,
	initial r3.Vector,
	logger golog.Logger,
) (r3.Vector, error) {
	if len(cameras) != len(measurements) {
		return r3.Vector{}, errors.Errorf("got %d cameras but %d measurements", len(cameras), len(measurements))
	}
	if logger == nil {
		logger = golog.Global
	}

	opt, err := nlopt.NewNLopt(nlopt.LD_SLSQP, 3)
	if err != nil {
		return r3.Vector{}, errors.Wrap(err, "nlopt creation error")
	}
	defer opt.Destroy()

	// Gradient is, under the hood, an unsafe C structure that we are meant to mutate in
	// place.
	minFunc := func(x, gradient []float64) float64 {
		pt := r3.Vector{X: x[0], Y: x[1], Z: x[2]}
		cost := 0.0
		var grad [3]float64
		for i := range cameras {
			residual, jacobian, err := ReprojectionResidual(cameras[i], measurements[i], pt)
			if err != nil {
				logger.Debugw("reprojection undefined during refinement", "error", err)
				if err := opt.ForceStop(); err != nil {
					logger.Debugw("forcestop error", "error", err)
				}
				return 0
			}
			cost += residual.X*residual.X + residual.Y*residual.Y
			for k := 0; k < 3; k++ {
				grad[k] += 2 * (residual.X*jacobian.At(0, k) + residual.Y*jacobian.At(1, k))
			}
		}
		for k := range gradient {
			gradient[k] = grad[k]
		}
		return cost
	}

	err = multierr.Combine(
		opt.SetMinObjective(minFunc),
		opt.SetFtolRel(refineTol),
		opt.SetFtolAbs(refineTol),
		opt.SetXtolRel(refineTol),
		opt.SetMaxEval(refineMaxEval),
	)
	if err != nil {
		return r3.Vector{}, errors.Wrap(err, "nlopt setup error")
	}

	solution, score, err := opt.Optimize([]float64{initial.X, initial.Y, initial.Z})
	if err != nil {
		return r3.Vector{}, errors.Wrapf(ErrUnderconstrained, "nonlinear refinement failed: %v", err)
	}
	logger.Debugw("nonlinear refinement finished", "reprojection_error", score)
	return r3.Vector{X: solution[0], Y: solution[1], Z: solution[2]}, nil
}
