// Package triangulation recovers a 3D world point from 2D image measurements of that
// point taken by two or more calibrated pinhole cameras.
//
// The linear solver is the direct linear transform (DLT) of Hartley and Zisserman
// (Multiple View Geometry, 2nd Ed., page 312): per-view constraints are stacked into a
// homogeneous linear system whose minimum-norm solution is read off the SVD. The DLT
// result can optionally seed a nonlinear minimization of the reprojection error over the
// point alone, and the recovered point is checked to lie in front of every contributing
// camera.
package triangulation

import (
	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/viam-labs/triangulation/spatialmath"
)

var (
	// ErrUnderconstrained is returned when the supplied geometry does not determine a
	// single finite 3D point.
	ErrUnderconstrained = errors.New("triangulation underconstrained")

	// ErrCheirality is returned when the recovered point lies behind one or more of the
	// observing cameras.
	ErrCheirality = errors.New("triangulated point is behind one or more cameras")
)

// DefaultRankTol is the singular value threshold below which the DLT system is treated
// as rank deficient.
const DefaultRankTol = 1e-9

// Calibration is the pinhole intrinsic capability consumed by the triangulation
// routines. GetCameraMatrix returns the 3x3 intrinsic matrix K. Uncalibrate maps a point
// on the normalized image plane to pixel coordinates and returns the analytic 2x2
// Jacobian of that map with respect to the normalized point.
type Calibration interface {
	GetCameraMatrix() *mat.Dense
	Uncalibrate(pt r2.Point) (r2.Point, *mat.Dense)
}

// Camera pairs a camera-to-world pose with the calibration of that camera.
type Camera struct {
	Pose        spatialmath.Pose
	Calibration Calibration
}

// Triangulator is the entry point for recovering a 3D point from multiple calibrated
// views. Construct with NewTriangulator; the fields may be adjusted before use.
type Triangulator struct {
	// RankTol is the SVD singular value threshold below which the linear system is
	// considered rank deficient. Borderline systems fail closed.
	RankTol float64

	// EnforceCheirality controls whether points recovered behind any observing camera
	// are rejected with ErrCheirality.
	EnforceCheirality bool

	logger golog.Logger
}

// NewTriangulator returns a Triangulator with the default rank tolerance and cheirality
// enforcement turned on.
func NewTriangulator(logger golog.Logger) *Triangulator {
	return &Triangulator{
		RankTol:           DefaultRankTol,
		EnforceCheirality: true,
		logger:            logger,
	}
}

// Triangulate recovers the 3D world point observed by the given cameras, where
// measurement i is the pixel observation of the point in camera i. When refine is true,
// the DLT solution seeds a nonlinear minimization of the reprojection error.
func (tr *Triangulator) Triangulate(cameras []Camera, measurements []r2.Point, refine bool) (r3.Vector, error) {
	m := len(cameras)
	if len(measurements) != m {
		return r3.Vector{}, errors.Errorf("got %d cameras but %d measurements", m, len(measurements))
	}
	if m < 2 {
		return r3.Vector{}, errors.Wrapf(ErrUnderconstrained, "need at least 2 views, got %d", m)
	}

	projectionMatrices := make([]*mat.Dense, 0, m)
	for _, camera := range cameras {
		projectionMatrices = append(projectionMatrices, ProjectionMatrix(camera.Pose, camera.Calibration))
	}
	point, err := TriangulateDLT(projectionMatrices, measurements, tr.RankTol)
	if err != nil {
		return r3.Vector{}, err
	}

	if refine {
		point, err = TriangulateNonlinear(cameras, measurements, point, tr.logger)
		if err != nil {
			return r3.Vector{}, err
		}
	}

	if tr.EnforceCheirality {
		for i, camera := range cameras {
			if q := transformToCamera(camera.Pose, point); q.Z <= 0 {
				return r3.Vector{}, errors.Wrapf(ErrCheirality, "depth %.3g in camera %d", q.Z, i)
			}
		}
	}
	return point, nil
}

// TriangulateSharedCalibration is Triangulate for a rig where every view shares a single
// calibration.
func (tr *Triangulator) TriangulateSharedCalibration(
	poses []spatialmath.Pose,
	cal Calibration,
	measurements []r2.Point,
	refine bool,
) (r3.Vector, error) {
	cameras := make([]Camera, 0, len(poses))
	for _, pose := range poses {
		cameras = append(cameras, Camera{Pose: pose, Calibration: cal})
	}
	return tr.Triangulate(cameras, measurements, refine)
}
