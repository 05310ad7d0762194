package triangulation

import (
	"math"
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/viam-labs/triangulation/spatialmath"
	"github.com/viam-labs/triangulation/transform"
)

// projectAll maps a world point into every camera, failing the test when any projection
// is undefined.
func projectAll(t *testing.T, cameras []Camera, pt r3.Vector) []r2.Point {
	t.Helper()
	measurements := make([]r2.Point, len(cameras))
	for i, camera := range cameras {
		m, err := Project(camera, pt)
		test.That(t, err, test.ShouldBeNil)
		measurements[i] = m
	}
	return measurements
}

func TestTriangulateTwoView(t *testing.T) {
	tr := NewTriangulator(golog.NewTestLogger(t))
	cal := unitCalibration()
	cameras := []Camera{
		{Pose: spatialmath.NewZeroPose(), Calibration: cal},
		{Pose: spatialmath.NewPoseFromPoint(r3.Vector{X: 1}), Calibration: cal},
	}
	measurements := []r2.Point{{X: 0, Y: 0}, {X: -0.2, Y: 0}}

	point, err := tr.Triangulate(cameras, measurements, false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, spatialmath.R3VectorAlmostEqual(point, r3.Vector{Z: 5}, 1e-9), test.ShouldBeTrue)
}

func TestTriangulateRotatedCameras(t *testing.T) {
	tr := NewTriangulator(golog.NewTestLogger(t))
	cal := unitCalibration()
	truePoint := r3.Vector{X: 0.3, Y: 0.2, Z: 8}
	cameras := []Camera{
		{Pose: spatialmath.NewZeroPose(), Calibration: cal},
		{
			Pose:        spatialmath.NewPose(r3.Vector{X: 2}, &spatialmath.R4AA{Theta: -0.2, RY: 1}),
			Calibration: cal,
		},
		{
			Pose:        spatialmath.NewPose(r3.Vector{X: -1, Y: 0.5}, &spatialmath.R4AA{Theta: 0.15, RX: 1}),
			Calibration: cal,
		},
	}
	measurements := projectAll(t, cameras, truePoint)

	point, err := tr.Triangulate(cameras, measurements, false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, spatialmath.R3VectorAlmostEqual(point, truePoint, 1e-9), test.ShouldBeTrue)
}

func TestTriangulateSharedCalibration(t *testing.T) {
	tr := NewTriangulator(golog.NewTestLogger(t))
	cal := &transform.PinholeCameraIntrinsics{
		Width: 640, Height: 480,
		Fx: 500, Fy: 500, Ppx: 320, Ppy: 240,
	}
	// 10 cm baseline along X, point 2 m in front of the rig
	poses := []spatialmath.Pose{
		spatialmath.NewZeroPose(),
		spatialmath.NewPoseFromPoint(r3.Vector{X: 0.1}),
	}
	measurements := []r2.Point{{X: 320, Y: 240}, {X: 295, Y: 240}}

	point, err := tr.TriangulateSharedCalibration(poses, cal, measurements, false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, spatialmath.R3VectorAlmostEqual(point, r3.Vector{Z: 2}, 1e-9), test.ShouldBeTrue)
}

func TestTriangulateCheirality(t *testing.T) {
	tr := NewTriangulator(golog.NewTestLogger(t))
	cal := unitCalibration()
	// the second camera is rotated 180 degrees about Y, so the point at (0,0,5) lies
	// behind it
	cameras := []Camera{
		{Pose: spatialmath.NewZeroPose(), Calibration: cal},
		{
			Pose:        spatialmath.NewPose(r3.Vector{X: 1}, &spatialmath.R4AA{Theta: math.Pi, RY: 1}),
			Calibration: cal,
		},
	}
	measurements := []r2.Point{{X: 0, Y: 0}, {X: -0.2, Y: 0}}

	_, err := tr.Triangulate(cameras, measurements, false)
	test.That(t, errors.Is(err, ErrCheirality), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "camera 1")

	// with enforcement off the linear solution comes back regardless of depth sign
	tr.EnforceCheirality = false
	point, err := tr.Triangulate(cameras, measurements, false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, point.X, test.ShouldAlmostEqual, 0, 1e-9)
	test.That(t, point.Y, test.ShouldAlmostEqual, 0, 1e-9)
	test.That(t, math.Abs(point.Z), test.ShouldAlmostEqual, 5, 1e-9)
}

func TestTriangulateTooFewViews(t *testing.T) {
	tr := NewTriangulator(golog.NewTestLogger(t))
	cal := unitCalibration()
	cameras := []Camera{{Pose: spatialmath.NewZeroPose(), Calibration: cal}}

	_, err := tr.Triangulate(cameras, []r2.Point{{X: 0, Y: 0}}, false)
	test.That(t, errors.Is(err, ErrUnderconstrained), test.ShouldBeTrue)

	_, err = tr.Triangulate(cameras, []r2.Point{{X: 0, Y: 0}, {X: 1, Y: 1}}, false)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "1 cameras")
}

func TestTriangulateColocatedCameras(t *testing.T) {
	tr := NewTriangulator(golog.NewTestLogger(t))
	cal := unitCalibration()
	pose := spatialmath.NewPoseFromPoint(r3.Vector{Z: -1})
	cameras := []Camera{
		{Pose: pose, Calibration: cal},
		{Pose: pose, Calibration: cal},
	}
	measurements := []r2.Point{{X: 0.3, Y: -0.1}, {X: 0.3, Y: -0.1}}

	_, err := tr.Triangulate(cameras, measurements, false)
	test.That(t, errors.Is(err, ErrUnderconstrained), test.ShouldBeTrue)
}

func TestProjectionMatrixConvention(t *testing.T) {
	// for a camera at the origin P = [K|0], and the projection of a point in front of
	// the camera has positive scale
	cal := &transform.PinholeCameraIntrinsics{Width: 640, Height: 480, Fx: 500, Fy: 500, Ppx: 320, Ppy: 240}
	p := ProjectionMatrix(spatialmath.NewZeroPose(), cal)
	k := cal.GetCameraMatrix()
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			test.That(t, p.At(i, j), test.ShouldAlmostEqual, k.At(i, j), 1e-12)
		}
		test.That(t, p.At(i, 3), test.ShouldAlmostEqual, 0, 1e-12)
	}

	// s·(u, v, 1) = P·(X, Y, Z, 1) with s = Z for the zero pose
	pt := r3.Vector{X: 0.5, Y: -0.25, Z: 4}
	s := p.At(2, 0)*pt.X + p.At(2, 1)*pt.Y + p.At(2, 2)*pt.Z + p.At(2, 3)
	test.That(t, s, test.ShouldAlmostEqual, 4, 1e-12)
}
