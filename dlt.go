package triangulation

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// TriangulateHomogeneousDLT solves the direct linear transform for a homogeneous 3D
// point. Each view contributes the 2x4 constraint block
//
//	[ u·p3ᵀ − p1ᵀ ]
//	[ v·p3ᵀ − p2ᵀ ]
//
// where pkᵀ is the k-th row of that view's projection matrix; the blocks are stacked
// into a 2m x 4 system whose minimum-norm unit solution is the right singular vector of
// the smallest singular value. The sign of the result is arbitrary.
//
// ErrUnderconstrained is returned when fewer than two views are supplied or when the
// third singular value of the stacked system falls below rankTol.
func TriangulateHomogeneousDLT(
	projectionMatrices []*mat.Dense,
	measurements []r2.Point,
	rankTol float64,
) (*mat.VecDense, error) {
	m := len(projectionMatrices)
	if len(measurements) != m {
		return nil, errors.Errorf("got %d projection matrices but %d measurements", m, len(measurements))
	}
	if m < 2 {
		return nil, errors.Wrapf(ErrUnderconstrained, "need at least 2 views, got %d", m)
	}

	a := mat.NewDense(2*m, 4, nil)
	for i, p := range projectionMatrices {
		u := measurements[i].X
		v := measurements[i].Y
		for j := 0; j < 4; j++ {
			a.Set(2*i, j, u*p.At(2, j)-p.At(0, j))
			a.Set(2*i+1, j, v*p.At(2, j)-p.At(1, j))
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDFull); !ok {
		return nil, errors.Wrap(ErrUnderconstrained, "SVD of measurement matrix failed to converge")
	}
	// A determines the point up to scale only when at least three singular values are
	// significant. Borderline systems fail closed. The ratio of the two smallest values
	// is deliberately not inspected.
	sigma := svd.Values(nil)
	if sigma[2] < rankTol {
		return nil, errors.Wrapf(ErrUnderconstrained,
			"measurement matrix is rank deficient (sigma2=%.3g, rank_tol=%.3g)", sigma[2], rankTol)
	}

	var v mat.Dense
	svd.VTo(&v)
	point := mat.NewVecDense(4, nil)
	point.CopyVec(v.ColView(3))
	return point, nil
}

// dehomogenize converts a homogeneous 4-vector to a Euclidean point, failing when the
// point is at (or numerically near) infinity.
func dehomogenize(point *mat.VecDense, rankTol float64) (r3.Vector, error) {
	pt := r3.Vector{X: point.AtVec(0), Y: point.AtVec(1), Z: point.AtVec(2)}
	w := point.AtVec(3)
	if math.Abs(w) <= rankTol*pt.Norm() {
		return r3.Vector{}, errors.Wrapf(ErrUnderconstrained,
			"homogeneous coordinate %.3g is degenerate, point is at infinity", w)
	}
	return pt.Mul(1 / w), nil
}

// TriangulateDLT triangulates a Euclidean 3D point from projection matrices and pixel
// measurements. See TriangulateHomogeneousDLT for the failure modes; additionally,
// ErrUnderconstrained is returned when the homogeneous solution cannot be represented as
// a finite Euclidean point.
func TriangulateDLT(
	projectionMatrices []*mat.Dense,
	measurements []r2.Point,
	rankTol float64,
) (r3.Vector, error) {
	point, err := TriangulateHomogeneousDLT(projectionMatrices, measurements, rankTol)
	if err != nil {
		return r3.Vector{}, err
	}
	return dehomogenize(point, rankTol)
}
