package rays

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/rimage/transform"
	"go.viam.com/test"
)

func vgaMapper() UnitPlaneMapper {
	return MapperFunc(func(uv r2.Point) (r2.Point, error) {
		return r2.Point{X: (uv.X - 320) / 400, Y: (uv.Y - 240) / 400}, nil
	})
}

// fakeDetector replays a fixed answer until changed.
type fakeDetector struct {
	det   Detection
	found bool
	calls int
}

func (f *fakeDetector) FirstCenter() (Detection, bool) {
	f.calls++
	return f.det, f.found
}

func (f *fakeDetector) hit(u, v float64) {
	f.det = Detection{Center: r2.Point{X: u, Y: v}, Timestamp: time.Unix(1700000000, 0)}
	f.found = true
}

func (f *fakeDetector) miss() {
	f.found = false
}

func newTestPipeline(t *testing.T, id CameraID, e *Extrinsics, d MarkerDetector) *Pipeline {
	t.Helper()
	sensors := StaticSensors{id: {Extrinsics: e, Mapper: vgaMapper()}}
	p, err := NewPipeline(context.Background(), id, sensors, d, PipelineOptions{}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	return p
}

func TestPipelineIdentityCenter(t *testing.T) {
	d := &fakeDetector{}
	d.hit(320, 240)
	p := newTestPipeline(t, Left, IdentityExtrinsics(), d)

	ray := p.Update()
	test.That(t, ray.Enabled, test.ShouldBeTrue)
	test.That(t, ray.Camera, test.ShouldEqual, Left)
	test.That(t, ray.Direction.X, test.ShouldAlmostEqual, 0)
	test.That(t, ray.Direction.Y, test.ShouldAlmostEqual, 0)
	test.That(t, ray.Direction.Z, test.ShouldAlmostEqual, 1)
	test.That(t, ray.Pixel, test.ShouldResemble, r2.Point{X: 320, Y: 240})
	test.That(t, ray.Timestamp.Unix(), test.ShouldEqual, int64(1700000000))
}

func TestBuildRayRotated(t *testing.T) {
	e, err := NewExtrinsics(rotZ(math.Pi/2, 1, 2, 3), ColumnVectors)
	test.That(t, err, test.ShouldBeNil)
	inv, err := e.InverseRotation()
	test.That(t, err, test.ShouldBeNil)

	dir := BuildRay(r2.Point{X: 1, Y: 0}, inv)
	test.That(t, dir.X, test.ShouldAlmostEqual, 0)
	test.That(t, dir.Y, test.ShouldAlmostEqual, -1)
	test.That(t, dir.Z, test.ShouldAlmostEqual, 1)

	// translation never reaches a direction
	again := BuildRay(r2.Point{X: 1, Y: 0}, inv)
	test.That(t, again, test.ShouldResemble, dir)
}

func TestPipelineDeterministic(t *testing.T) {
	e, err := NewExtrinsics(rotXThenY(0.2, -0.4), ColumnVectors)
	test.That(t, err, test.ShouldBeNil)
	d := &fakeDetector{}
	d.hit(100, 100)
	p := newTestPipeline(t, Right, e, d)

	first := p.Update()
	second := p.Update()
	test.That(t, second, test.ShouldResemble, first)

	direct, err := p.Ray(r2.Point{X: 100, Y: 100})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, direct.Direction, test.ShouldResemble, first.Direction)
}

func TestPipelineMissKeepsStaleDirection(t *testing.T) {
	d := &fakeDetector{}
	p := newTestPipeline(t, Left, IdentityExtrinsics(), d)

	// nothing seen yet
	ray := p.Update()
	test.That(t, ray.Enabled, test.ShouldBeFalse)
	test.That(t, ray.Direction, test.ShouldResemble, r3.Vector{})

	d.hit(720, 240)
	ray = p.Update()
	test.That(t, ray.Enabled, test.ShouldBeTrue)
	test.That(t, ray.Direction.X, test.ShouldAlmostEqual, 1)

	d.miss()
	ray = p.Update()
	test.That(t, ray.Enabled, test.ShouldBeFalse)
	test.That(t, ray.Direction.X, test.ShouldAlmostEqual, 1)
	test.That(t, p.Current().Enabled, test.ShouldBeFalse)
	test.That(t, d.calls, test.ShouldEqual, 3)
}

func TestPipelineMappingErrorIsAMiss(t *testing.T) {
	d := &fakeDetector{}
	d.hit(1, 1)
	failing := MapperFunc(func(uv r2.Point) (r2.Point, error) {
		return r2.Point{}, errors.New("outside calibration")
	})
	sensors := StaticSensors{Left: {Extrinsics: IdentityExtrinsics(), Mapper: failing}}
	p, err := NewPipeline(context.Background(), Left, sensors, d, PipelineOptions{}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	test.That(t, p.Update().Enabled, test.ShouldBeFalse)
}

func TestPipelineRejectsBadCalibration(t *testing.T) {
	logger := logging.NewTestLogger(t)
	d := &fakeDetector{}

	_, err := NewPipeline(context.Background(), Left, StaticSensors{}, d, PipelineOptions{}, logger)
	test.That(t, errors.Is(err, ErrSensorNotFound), test.ShouldBeTrue)

	scaled, err := NewExtrinsics(rotZ(0, 0, 0, 0), ColumnVectors)
	test.That(t, err, test.ShouldBeNil)
	scaled.rotation.Set(0, 0, 1.5)
	scaled.det = 1.5
	sensors := StaticSensors{Left: {Extrinsics: scaled, Mapper: vgaMapper()}}
	_, err = NewPipeline(context.Background(), Left, sensors, d, PipelineOptions{}, logger)
	test.That(t, errors.Is(err, ErrInvalidRotation), test.ShouldBeTrue)

	// a loose tolerance accepts it
	_, err = NewPipeline(context.Background(), Left, sensors, d, PipelineOptions{RotationTolerance: 1.5}, logger)
	test.That(t, err, test.ShouldBeNil)

	_, err = NewPipeline(context.Background(), Left, sensors, nil, PipelineOptions{}, logger)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestPipelineReferenceRays(t *testing.T) {
	p := newTestPipeline(t, Left, IdentityExtrinsics(), &fakeDetector{})

	refs, err := p.ReferenceRays(640, 480)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(refs), test.ShouldEqual, 5)

	test.That(t, refs[0].Direction.X, test.ShouldAlmostEqual, 0)
	test.That(t, refs[0].Direction.Y, test.ShouldAlmostEqual, 0)
	test.That(t, refs[1].Direction.X, test.ShouldAlmostEqual, -0.8)
	test.That(t, refs[1].Direction.Y, test.ShouldAlmostEqual, -0.6)
	test.That(t, refs[3].Direction.X, test.ShouldAlmostEqual, 0.8)
	test.That(t, refs[3].Direction.Y, test.ShouldAlmostEqual, 0.6)
	for _, r := range refs {
		test.That(t, r.Enabled, test.ShouldBeTrue)
		test.That(t, r.Direction.Z, test.ShouldAlmostEqual, 1)
	}
}

func TestPipelineReferenceRaysSkipUnmappable(t *testing.T) {
	intrinsics := &transform.PinholeCameraIntrinsics{Width: 640, Height: 480, Fx: 400, Fy: 400, Ppx: 320, Ppy: 240}
	m, err := NewPinholeMapper(intrinsics, &transform.BrownConrady{RadialK1: -0.4})
	test.That(t, err, test.ShouldBeNil)
	d := &fakeDetector{}
	sensors := StaticSensors{Left: {Extrinsics: IdentityExtrinsics(), Mapper: m}}
	p, err := NewPipeline(context.Background(), Left, sensors, d, PipelineOptions{}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	refs, err := p.ReferenceRays(640, 480)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(refs), test.ShouldEqual, 1)
	test.That(t, refs[0].Pixel, test.ShouldResemble, r2.Point{X: 320, Y: 240})

	d.hit(0, 0)
	test.That(t, p.Update().Enabled, test.ShouldBeFalse)

	nan := StaticSensors{Left: {Extrinsics: IdentityExtrinsics(), Mapper: MapperFunc(func(uv r2.Point) (r2.Point, error) {
		return r2.Point{X: math.NaN(), Y: 0}, nil
	})}}
	p, err = NewPipeline(context.Background(), Left, nan, d, PipelineOptions{}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	_, err = p.ReferenceRays(640, 480)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, p.Update().Enabled, test.ShouldBeFalse)
}

func TestPipelineOrigin(t *testing.T) {
	test.That(t, newTestPipeline(t, Left, IdentityExtrinsics(), &fakeDetector{}).Origin(), test.ShouldResemble, r3.Vector{})

	e, err := NewExtrinsics(rotZ(math.Pi/2, 1, 2, 3), ColumnVectors)
	test.That(t, err, test.ShouldBeNil)
	o := newTestPipeline(t, Right, e, &fakeDetector{}).Origin()
	test.That(t, o.X, test.ShouldAlmostEqual, -2)
	test.That(t, o.Y, test.ShouldAlmostEqual, 1)
	test.That(t, o.Z, test.ShouldAlmostEqual, -3)
}
