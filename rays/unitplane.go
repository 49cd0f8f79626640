package rays

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"go.viam.com/rdk/rimage/transform"
)

const (
	undistortIterations = 20
	undistortTolerance  = 1e-10
	// largest residual accepted when the iteration runs out
	undistortMaxResidual = 1e-8
	jacobianStep         = 1e-7
)

// ErrUndistortFailed is returned when a pixel has no undistorted position under the lens model,
// which happens past the fold of strongly distorted lenses.
var ErrUndistortFailed = errors.New("lens undistortion did not converge")

// UnitPlaneMapper maps a pixel to a point on the z=1 plane of its camera.
type UnitPlaneMapper interface {
	ImagePointToUnitPlane(uv r2.Point) (r2.Point, error)
}

// MapperFunc adapts a plain function to UnitPlaneMapper.
type MapperFunc func(uv r2.Point) (r2.Point, error)

// ImagePointToUnitPlane calls f.
func (f MapperFunc) ImagePointToUnitPlane(uv r2.Point) (r2.Point, error) {
	return f(uv)
}

// PinholeMapper maps pixels through pinhole intrinsics, undoing lens distortion if present.
type PinholeMapper struct {
	intrinsics *transform.PinholeCameraIntrinsics
	distortion transform.Distorter
}

// NewPinholeMapper checks the intrinsics and returns a mapper. distortion may be nil.
func NewPinholeMapper(intrinsics *transform.PinholeCameraIntrinsics, distortion transform.Distorter) (*PinholeMapper, error) {
	if err := intrinsics.CheckValid(); err != nil {
		return nil, err
	}
	if distortion != nil {
		if err := distortion.CheckValid(); err != nil {
			return nil, errors.Wrap(err, "bad distortion parameters")
		}
	}
	return &PinholeMapper{intrinsics: intrinsics, distortion: distortion}, nil
}

// Intrinsics returns the pinhole parameters the mapper was built with.
func (m *PinholeMapper) Intrinsics() transform.PinholeCameraIntrinsics {
	return *m.intrinsics
}

// ImagePointToUnitPlane normalizes uv and inverts the distortion model.
// Pixels outside the image are mapped the same way; nothing is clamped.
func (m *PinholeMapper) ImagePointToUnitPlane(uv r2.Point) (r2.Point, error) {
	xd := (uv.X - m.intrinsics.Ppx) / m.intrinsics.Fx
	yd := (uv.Y - m.intrinsics.Ppy) / m.intrinsics.Fy
	if m.distortion == nil {
		return r2.Point{X: xd, Y: yd}, nil
	}

	x, y, err := m.undistort(xd, yd)
	if err != nil {
		return r2.Point{}, errors.Wrapf(err, "pixel %v", uv)
	}
	return r2.Point{X: x, Y: y}, nil
}

// undistort solves distortion(x, y) = (xd, yd) with Newton-Raphson.
// The Jacobian is taken by central differences since Distorter only exposes Transform.
func (m *PinholeMapper) undistort(xd, yd float64) (float64, float64, error) {
	residual := func(x, y float64) (float64, float64) {
		fx, fy := m.distortion.Transform(x, y)
		return fx - xd, fy - yd
	}

	x, y := xd, yd
	for i := 0; i < undistortIterations; i++ {
		ex, ey := residual(x, y)
		if ex*ex+ey*ey < undistortTolerance*undistortTolerance {
			break
		}

		j11, j12, j21, j22 := m.jacobian(x, y)
		det := j11*j22 - j12*j21
		if det == 0 || !finite(det) {
			break
		}
		x -= (j22*ex - j12*ey) / det
		y -= (-j21*ex + j11*ey) / det
		if !finite(x) || !finite(y) {
			return 0, 0, ErrUndistortFailed
		}
	}

	ex, ey := residual(x, y)
	if !finite(ex) || !finite(ey) || math.Hypot(ex, ey) > undistortMaxResidual {
		return 0, 0, ErrUndistortFailed
	}
	// a root past the fold maps to the other side of the image or flips orientation
	if x*xd+y*yd < 0 {
		return 0, 0, ErrUndistortFailed
	}
	if j11, j12, j21, j22 := m.jacobian(x, y); j11*j22-j12*j21 <= 0 {
		return 0, 0, ErrUndistortFailed
	}
	return x, y, nil
}

func (m *PinholeMapper) jacobian(x, y float64) (j11, j12, j21, j22 float64) {
	h := jacobianStep
	ax, ay := m.distortion.Transform(x+h, y)
	bx, by := m.distortion.Transform(x-h, y)
	cx, cy := m.distortion.Transform(x, y+h)
	dx, dy := m.distortion.Transform(x, y-h)
	return (ax - bx) / (2 * h), (cx - dx) / (2 * h), (ay - by) / (2 * h), (cy - dy) / (2 * h)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
