package rays

import (
	"time"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// CameraID names one of the rig's two cameras.
type CameraID string

const (
	// Left is the left front camera.
	Left CameraID = "left"
	// Right is the right front camera.
	Right CameraID = "right"
)

// CameraRay is a camera's current viewing ray in rig space.
// Direction has an implicit unit-plane depth of 1 and is not normalized.
// When Enabled is false, Direction holds the last computed value and must not be used.
type CameraRay struct {
	Camera    CameraID
	Direction r3.Vector
	Pixel     r2.Point
	UnitPlane r2.Point
	Timestamp time.Time
	Enabled   bool
}

// BuildRay rotates the unit-plane direction (x, y, 1) into rig space using the
// inverted rotation-only extrinsic.
func BuildRay(xy r2.Point, inverse *mat.Dense) r3.Vector {
	dir := mat.NewVecDense(4, []float64{xy.X, xy.Y, 1, 0})
	var out mat.VecDense
	out.MulVec(inverse, dir)
	return r3.Vector{X: out.AtVec(0), Y: out.AtVec(1), Z: out.AtVec(2)}
}
