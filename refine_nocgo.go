//go:build windows || no_cgo

package triangulation

import (
	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// TriangulateNonlinear is unsupported on this platform; refinement requires the nlopt
// cgo bindings.
func TriangulateNonlinear(
	cameras []Camera,
	measurements []r2.Point,
	initial r3.Vector,
	logger golog.Logger,
) (r3.Vector, error) {
	return r3.Vector{}, errors.New("nonlinear refinement is not supported on this platform, nlopt requires cgo")
}
