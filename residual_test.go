package triangulation

import (
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/viam-labs/triangulation/spatialmath"
	"github.com/viam-labs/triangulation/transform"
)

func testCamera() Camera {
	return Camera{
		Pose: spatialmath.NewPose(
			r3.Vector{X: 1, Y: -0.5, Z: 0.3},
			&spatialmath.R4AA{Theta: 0.4, RX: 0.2, RY: 1, RZ: -0.3},
		),
		Calibration: &transform.PinholeCameraIntrinsics{
			Width: 1280, Height: 720,
			Fx: 900, Fy: 880, Ppx: 640, Ppy: 360, Skew: 1.5,
		},
	}
}

func TestReprojectionResidualZeroAtTruePoint(t *testing.T) {
	camera := testCamera()
	truePoint := r3.Vector{X: 0.2, Y: 0.1, Z: 4}
	measurement, err := Project(camera, truePoint)
	test.That(t, err, test.ShouldBeNil)

	residual, jacobian, err := ReprojectionResidual(camera, measurement, truePoint)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, residual.X, test.ShouldAlmostEqual, 0, 1e-10)
	test.That(t, residual.Y, test.ShouldAlmostEqual, 0, 1e-10)
	rows, cols := jacobian.Dims()
	test.That(t, rows, test.ShouldEqual, 2)
	test.That(t, cols, test.ShouldEqual, 3)
}

func TestReprojectionJacobianMatchesFiniteDifferences(t *testing.T) {
	camera := testCamera()
	measurement := r2.Point{X: 700, Y: 300}
	pt := r3.Vector{X: 0.2, Y: 0.1, Z: 4}

	_, jacobian, err := ReprojectionResidual(camera, measurement, pt)
	test.That(t, err, test.ShouldBeNil)

	const delta = 1e-6
	offsets := []r3.Vector{{X: delta}, {Y: delta}, {Z: delta}}
	for k, offset := range offsets {
		plus, _, err := ReprojectionResidual(camera, measurement, pt.Add(offset))
		test.That(t, err, test.ShouldBeNil)
		minus, _, err := ReprojectionResidual(camera, measurement, pt.Sub(offset))
		test.That(t, err, test.ShouldBeNil)

		test.That(t, jacobian.At(0, k), test.ShouldAlmostEqual, (plus.X-minus.X)/(2*delta), 1e-4)
		test.That(t, jacobian.At(1, k), test.ShouldAlmostEqual, (plus.Y-minus.Y)/(2*delta), 1e-4)
	}
}

func TestReprojectionError(t *testing.T) {
	camera := testCamera()
	other := Camera{
		Pose:        spatialmath.NewPoseFromPoint(r3.Vector{X: -0.5}),
		Calibration: camera.Calibration,
	}
	cameras := []Camera{camera, other}
	truePoint := r3.Vector{X: 0.2, Y: 0.1, Z: 4}
	measurements := make([]r2.Point, len(cameras))
	for i := range cameras {
		m, err := Project(cameras[i], truePoint)
		test.That(t, err, test.ShouldBeNil)
		measurements[i] = m
	}

	errSum, err := ReprojectionError(cameras, measurements, truePoint)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, errSum, test.ShouldAlmostEqual, 0, 1e-16)

	// a 1 px offset on one measurement contributes exactly 1 to the sum of squares
	measurements[0].X++
	errSum, err = ReprojectionError(cameras, measurements, truePoint)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, errSum, test.ShouldAlmostEqual, 1, 1e-9)

	_, err = ReprojectionError(cameras, measurements[:1], truePoint)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestReprojectionResidualFocalPlane(t *testing.T) {
	camera := Camera{Pose: spatialmath.NewZeroPose(), Calibration: unitCalibration()}
	_, _, err := ReprojectionResidual(camera, r2.Point{}, r3.Vector{X: 1, Y: 1, Z: 0})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "focal plane")
}
