package triangulation

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/viam-labs/triangulation/spatialmath"
)

// ReprojectionResidual computes the 2D reprojection residual π(p) − m of a world point
// against a single measurement, along with the analytic 2x3 Jacobian of the residual
// with respect to the point. The Jacobian is the chain of the calibration map, the
// perspective division and the world-to-camera transform. An error is returned when the
// point sits on (or numerically near) the camera's focal plane.
func ReprojectionResidual(camera Camera, measurement r2.Point, pt r3.Vector) (r2.Point, *mat.Dense, error) {
	inv := spatialmath.PoseInverse(camera.Pose)
	rm := inv.Orientation().RotationMatrix()
	q := rm.MulVec(pt).Add(inv.Point())
	if math.Abs(q.Z) < focalPlaneTol {
		return r2.Point{}, nil, errors.Errorf("point projects onto the focal plane of the camera (z=%.3g)", q.Z)
	}

	pixel, dCal := camera.Calibration.Uncalibrate(r2.Point{X: q.X / q.Z, Y: q.Y / q.Z})

	zInv := 1 / q.Z
	dProject := mat.NewDense(2, 3, []float64{
		zInv, 0, -q.X * zInv * zInv,
		0, zInv, -q.Y * zInv * zInv,
	})
	dTransform := mat.NewDense(3, 3, []float64{
		rm.At(0, 0), rm.At(0, 1), rm.At(0, 2),
		rm.At(1, 0), rm.At(1, 1), rm.At(1, 2),
		rm.At(2, 0), rm.At(2, 1), rm.At(2, 2),
	})

	var camJac, jacobian mat.Dense
	camJac.Mul(dCal, dProject)
	jacobian.Mul(&camJac, dTransform)

	residual := r2.Point{X: pixel.X - measurement.X, Y: pixel.Y - measurement.Y}
	return residual, &jacobian, nil
}

// ReprojectionError returns the sum of squared reprojection residuals of a world point
// over all camera/measurement pairs, weighting every residual equally.
func ReprojectionError(cameras []Camera, measurements []r2.Point, pt r3.Vector) (float64, error) {
	if len(cameras) != len(measurements) {
		return 0, errors.Errorf("got %d cameras but %d measurements", len(cameras), len(measurements))
	}
	total := 0.0
	for i := range cameras {
		residual, _, err := ReprojectionResidual(cameras[i], measurements[i], pt)
		if err != nil {
			return 0, err
		}
		total += residual.X*residual.X + residual.Y*residual.Y
	}
	return total, nil
}
