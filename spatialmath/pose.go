package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// Pose represents a rigid transform on 3D space: a 3D point paired with an orientation.
// For a camera, the Pose is the camera-to-world transform, i.e. the position and
// orientation of the camera body expressed in the world frame.
type Pose interface {
	Point() r3.Vector
	Orientation() Orientation
}

type basicPose struct {
	point       r3.Vector
	orientation Orientation
}

func (p *basicPose) Point() r3.Vector {
	return p.point
}

func (p *basicPose) Orientation() Orientation {
	return p.orientation
}

// NewZeroPose returns a pose at (0,0,0) with no rotation.
func NewZeroPose() Pose {
	return &basicPose{orientation: NewZeroOrientation()}
}

// NewPose takes in a position and orientation and returns a Pose.
func NewPose(p r3.Vector, o Orientation) Pose {
	if o == nil {
		return NewPoseFromPoint(p)
	}
	return &basicPose{point: p, orientation: o}
}

// NewPoseFromPoint takes in a cartesian (x,y,z) and stores it as a vector.
// It will have the same orientation as the frame it is in reference to.
func NewPoseFromPoint(point r3.Vector) Pose {
	return &basicPose{point: point, orientation: NewZeroOrientation()}
}

// NewPoseFromOrientation takes in an orientation and returns a Pose at the origin.
func NewPoseFromOrientation(o Orientation) Pose {
	if o == nil {
		return NewZeroPose()
	}
	return &basicPose{orientation: o}
}

// Compose treats Poses as functions applying their operations to points and returns the
// composition a(b(pt)).
func Compose(a, b Pose) Pose {
	qa := a.Orientation().Quaternion()
	composed := quaternion(quat.Mul(qa, b.Orientation().Quaternion()))
	return &basicPose{
		point:       a.Point().Add(rotateVector(qa, b.Point())),
		orientation: &composed,
	}
}

// PoseInverse returns the inverse of the given pose, such that
// Compose(p, PoseInverse(p)) is the zero pose.
func PoseInverse(p Pose) Pose {
	inv := quat.Conj(p.Orientation().Quaternion())
	invQ := quaternion(inv)
	return &basicPose{
		point:       rotateVector(inv, p.Point().Mul(-1)),
		orientation: &invQ,
	}
}

// R3VectorAlmostEqual compares two r3 vectors and returns if the difference in all
// components is less than epsilon.
func R3VectorAlmostEqual(a, b r3.Vector, epsilon float64) bool {
	return math.Abs(a.X-b.X) < epsilon && math.Abs(a.Y-b.Y) < epsilon && math.Abs(a.Z-b.Z) < epsilon
}

// PoseAlmostCoincident checks if two poses are within a set epsilon of each other in
// position and orientation.
func PoseAlmostCoincident(a, b Pose) bool {
	return R3VectorAlmostEqual(a.Point(), b.Point(), 1e-8) && OrientationAlmostEqual(a.Orientation(), b.Orientation())
}
