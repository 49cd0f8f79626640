package rays

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"go.viam.com/rdk/rimage/transform"
	"go.viam.com/test"
)

var vgaIntrinsics = &transform.PinholeCameraIntrinsics{
	Width:  640,
	Height: 480,
	Fx:     400,
	Fy:     410,
	Ppx:    320,
	Ppy:    240,
}

func TestPinholeMapperCenter(t *testing.T) {
	m, err := NewPinholeMapper(vgaIntrinsics, nil)
	test.That(t, err, test.ShouldBeNil)

	xy, err := m.ImagePointToUnitPlane(r2.Point{X: 320, Y: 240})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, xy.X, test.ShouldAlmostEqual, 0)
	test.That(t, xy.Y, test.ShouldAlmostEqual, 0)

	xy, err = m.ImagePointToUnitPlane(r2.Point{X: 720, Y: 240 + 205})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, xy.X, test.ShouldAlmostEqual, 1)
	test.That(t, xy.Y, test.ShouldAlmostEqual, 0.5)
}

func TestPinholeMapperEdges(t *testing.T) {
	distortion := &transform.BrownConrady{RadialK1: 0.12, RadialK2: -0.03, TangentialP1: 0.001, TangentialP2: -0.001}
	for _, d := range []transform.Distorter{nil, distortion} {
		m, err := NewPinholeMapper(vgaIntrinsics, d)
		test.That(t, err, test.ShouldBeNil)

		for _, uv := range []r2.Point{{X: 0, Y: 0}, {X: 640, Y: 480}, {X: 640, Y: 0}, {X: -50, Y: 900}} {
			xy, err := m.ImagePointToUnitPlane(uv)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, math.IsNaN(xy.X) || math.IsNaN(xy.Y), test.ShouldBeFalse)
		}
	}
}

func TestPinholeMapperUndistorts(t *testing.T) {
	distortion := &transform.BrownConrady{RadialK1: 0.1, RadialK2: -0.05, TangentialP1: 0.001, TangentialP2: -0.002}
	m, err := NewPinholeMapper(vgaIntrinsics, distortion)
	test.That(t, err, test.ShouldBeNil)

	for _, want := range []r2.Point{{X: 0.2, Y: -0.1}, {X: -0.4, Y: 0.3}, {X: 0, Y: 0}} {
		xd, yd := distortion.Transform(want.X, want.Y)
		uv := r2.Point{X: xd*vgaIntrinsics.Fx + vgaIntrinsics.Ppx, Y: yd*vgaIntrinsics.Fy + vgaIntrinsics.Ppy}

		got, err := m.ImagePointToUnitPlane(uv)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, got.X, test.ShouldAlmostEqual, want.X, 1e-6)
		test.That(t, got.Y, test.ShouldAlmostEqual, want.Y, 1e-6)
	}
}

func TestPinholeMapperInvalid(t *testing.T) {
	_, err := NewPinholeMapper(nil, nil)
	test.That(t, err, test.ShouldNotBeNil)

	bad := *vgaIntrinsics
	bad.Fx = 0
	_, err = NewPinholeMapper(&bad, nil)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "focal length")
}

func TestPinholeMapperStrongDistortion(t *testing.T) {
	corner := r2.Point{X: 0, Y: 0}
	xd := (corner.X - vgaIntrinsics.Ppx) / vgaIntrinsics.Fx
	yd := (corner.Y - vgaIntrinsics.Ppy) / vgaIntrinsics.Fy

	// barrel distortion this strong never reaches the corner, so it has no undistorted position
	barrel, err := NewPinholeMapper(vgaIntrinsics, &transform.BrownConrady{RadialK1: -0.4})
	test.That(t, err, test.ShouldBeNil)
	_, err = barrel.ImagePointToUnitPlane(corner)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, errors.Is(err, ErrUndistortFailed), test.ShouldBeTrue)

	xy, err := barrel.ImagePointToUnitPlane(r2.Point{X: 320, Y: 240})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, xy.X, test.ShouldAlmostEqual, 0)
	test.That(t, xy.Y, test.ShouldAlmostEqual, 0)

	pincushion := &transform.BrownConrady{RadialK1: 0.5}
	m, err := NewPinholeMapper(vgaIntrinsics, pincushion)
	test.That(t, err, test.ShouldBeNil)
	xy, err = m.ImagePointToUnitPlane(corner)
	test.That(t, err, test.ShouldBeNil)
	rx, ry := pincushion.Transform(xy.X, xy.Y)
	test.That(t, rx, test.ShouldAlmostEqual, xd, 1e-6)
	test.That(t, ry, test.ShouldAlmostEqual, yd, 1e-6)
}
