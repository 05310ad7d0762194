package triangulation

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/viam-labs/triangulation/spatialmath"
)

// A projection is undefined when the camera-frame depth is closer to zero than this.
const focalPlaneTol = 1e-12

// extrinsic returns the 3x4 world-to-camera matrix [R|t]: the first three rows of the
// inverse of the camera-to-world transform. The projection matrices and the cheirality
// check both derive from this one convention.
func extrinsic(pose spatialmath.Pose) *mat.Dense {
	inv := spatialmath.PoseInverse(pose)
	rm := inv.Orientation().RotationMatrix()
	t := inv.Point()
	return mat.NewDense(3, 4, []float64{
		rm.At(0, 0), rm.At(0, 1), rm.At(0, 2), t.X,
		rm.At(1, 0), rm.At(1, 1), rm.At(1, 2), t.Y,
		rm.At(2, 0), rm.At(2, 1), rm.At(2, 2), t.Z,
	})
}

// transformToCamera maps a world point into the frame of the camera with the given
// camera-to-world pose. The returned Z is the depth of the point in that camera.
func transformToCamera(pose spatialmath.Pose, pt r3.Vector) r3.Vector {
	return spatialmath.Compose(spatialmath.PoseInverse(pose), spatialmath.NewPoseFromPoint(pt)).Point()
}

// ProjectionMatrix builds the 3x4 pinhole projection matrix P = K·[R|t] for a
// camera-to-world pose and its calibration. For a world point in front of the camera,
// P applied to the homogeneous point yields the pixel coordinates up to a positive scale.
func ProjectionMatrix(pose spatialmath.Pose, cal Calibration) *mat.Dense {
	p := mat.NewDense(3, 4, nil)
	p.Mul(cal.GetCameraMatrix(), extrinsic(pose))
	return p
}

// Project maps a world point through the camera's extrinsic and intrinsic to pixel
// coordinates. An error is returned for points on (or numerically near) the camera's
// focal plane, where the projection is undefined.
func Project(camera Camera, pt r3.Vector) (r2.Point, error) {
	q := transformToCamera(camera.Pose, pt)
	if math.Abs(q.Z) < focalPlaneTol {
		return r2.Point{}, errors.Errorf("point projects onto the focal plane of the camera (z=%.3g)", q.Z)
	}
	pixel, _ := camera.Calibration.Uncalibrate(r2.Point{X: q.X / q.Z, Y: q.Y / q.Z})
	return pixel, nil
}
