package rays

import (
	"context"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	"gonum.org/v1/gonum/mat"
)

// PipelineOptions tune how a Pipeline validates its calibration.
type PipelineOptions struct {
	// RotationTolerance bounds ||det| - 1| of the rotation; zero means DefaultRotationTolerance.
	RotationTolerance float64
}

// Pipeline turns one camera's detections into rig-space rays.
// A Pipeline only touches its own state, so the left and right pipelines can be
// updated in any order or concurrently.
type Pipeline struct {
	id         CameraID
	extrinsics *Extrinsics
	inverse    *mat.Dense
	origin     r3.Vector
	mapper     UnitPlaneMapper
	detector   MarkerDetector
	logger     logging.Logger

	ray CameraRay
}

// NewPipeline loads the camera's calibration once. A rotation that is not orthonormal
// or cannot be inverted is a calibration fault and no pipeline is built.
func NewPipeline(
	ctx context.Context,
	id CameraID,
	sensors SensorProvider,
	detector MarkerDetector,
	opts PipelineOptions,
	logger logging.Logger,
) (*Pipeline, error) {
	if detector == nil {
		return nil, errors.Errorf("%s camera has no marker detector", id)
	}

	extrinsics, err := sensors.Extrinsics(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s extrinsics", id)
	}
	mapper, err := sensors.UnitPlaneMapper(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s unit plane mapper", id)
	}

	logger.Debugf("%s camera rotation determinant %v", id, extrinsics.Determinant())
	if err := extrinsics.CheckRotation(opts.RotationTolerance); err != nil {
		logger.Errorf("%s camera calibration rejected: %v", id, err)
		return nil, errors.Wrapf(err, "%s camera", id)
	}
	inverse, err := extrinsics.InverseRotation()
	if err != nil {
		return nil, errors.Wrapf(err, "%s camera", id)
	}

	t := extrinsics.Translation()
	return &Pipeline{
		id:         id,
		extrinsics: extrinsics,
		inverse:    inverse,
		origin:     cameraOrigin(inverse, t),
		mapper:     mapper,
		detector:   detector,
		logger:     logger,
		ray:        CameraRay{Camera: id},
	}, nil
}

// ID is the camera this pipeline serves.
func (p *Pipeline) ID() CameraID {
	return p.id
}

// Extrinsics the pipeline was built with.
func (p *Pipeline) Extrinsics() *Extrinsics {
	return p.extrinsics
}

// Ray maps a pixel to the unit plane and rotates it into rig space.
func (p *Pipeline) Ray(uv r2.Point) (CameraRay, error) {
	xy, err := p.mapper.ImagePointToUnitPlane(uv)
	if err != nil {
		return CameraRay{}, err
	}
	if !finite(xy.X) || !finite(xy.Y) {
		return CameraRay{}, errors.Errorf("%s camera mapped %v off the unit plane (%v)", p.id, uv, xy)
	}
	return CameraRay{
		Camera:    p.id,
		Direction: BuildRay(xy, p.inverse),
		Pixel:     uv,
		UnitPlane: xy,
		Enabled:   true,
	}, nil
}

// Update runs the detection gate for the current frame.
// On a hit the ray is recomputed and enabled. On a miss it is disabled and keeps
// its previous direction.
func (p *Pipeline) Update() CameraRay {
	det, ok := p.detector.FirstCenter()
	if !ok {
		p.ray.Enabled = false
		return p.ray
	}

	ray, err := p.Ray(det.Center)
	if err != nil {
		p.logger.Debugf("%s camera could not map %v: %v", p.id, det.Center, err)
		p.ray.Enabled = false
		return p.ray
	}
	ray.Timestamp = det.Timestamp
	p.ray = ray
	return p.ray
}

// Origin is the camera center in rig space, expressed the same way BuildRay expresses directions.
func (p *Pipeline) Origin() r3.Vector {
	return p.origin
}

func cameraOrigin(inverse *mat.Dense, t [3]float64) r3.Vector {
	var o mat.VecDense
	o.MulVec(inverse, mat.NewVecDense(4, []float64{t[0], t[1], t[2], 0}))
	return r3.Vector{X: -o.AtVec(0), Y: -o.AtVec(1), Z: -o.AtVec(2)}
}

// Current returns the ray as of the last Update.
func (p *Pipeline) Current() CameraRay {
	return p.ray
}

// ReferenceRays are the rays through the image center followed by the four corners,
// clockwise from the origin. Points the camera cannot map, such as corners past the
// fold of a strongly distorted lens, are left out; it is an error only if none map.
func (p *Pipeline) ReferenceRays(width, height float64) ([]CameraRay, error) {
	pixels := []r2.Point{
		{X: width / 2, Y: height / 2},
		{X: 0, Y: 0},
		{X: width, Y: 0},
		{X: width, Y: height},
		{X: 0, Y: height},
	}
	out := make([]CameraRay, 0, len(pixels))
	var lastErr error
	for _, uv := range pixels {
		ray, err := p.Ray(uv)
		if err != nil {
			p.logger.Debugf("%s camera skipping reference ray at %v: %v", p.id, uv, err)
			lastErr = err
			continue
		}
		out = append(out, ray)
	}
	if len(out) == 0 {
		return nil, errors.Wrapf(lastErr, "%s camera has no reference rays", p.id)
	}
	return out, nil
}
