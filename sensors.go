package viamstereorays

import (
	"context"

	"github.com/pkg/errors"
	"go.viam.com/rdk/components/camera"
	"go.viam.com/rdk/logging"

	"viamstereorays/rays"
)

type propertiesGetter interface {
	Properties(ctx context.Context) (camera.Properties, error)
}

// cameraSensors serves extrinsics from config and intrinsics from the cameras themselves.
type cameraSensors struct {
	cfg     *Config
	cams    map[rays.CameraID]propertiesGetter
	logger  logging.Logger
	mappers map[rays.CameraID]*rays.PinholeMapper
}

func newCameraSensors(cfg *Config, cams map[rays.CameraID]propertiesGetter, logger logging.Logger) *cameraSensors {
	return &cameraSensors{
		cfg:     cfg,
		cams:    cams,
		logger:  logger,
		mappers: map[rays.CameraID]*rays.PinholeMapper{},
	}
}

func (cs *cameraSensors) Extrinsics(ctx context.Context, id rays.CameraID) (*rays.Extrinsics, error) {
	if _, ok := cs.cams[id]; !ok {
		return nil, errors.Wrapf(rays.ErrSensorNotFound, "%s", id)
	}
	return rays.NewExtrinsics(cs.cfg.extrinsics(id), cs.cfg.getConvention())
}

func (cs *cameraSensors) UnitPlaneMapper(ctx context.Context, id rays.CameraID) (rays.UnitPlaneMapper, error) {
	if m, ok := cs.mappers[id]; ok {
		return m, nil
	}
	cam, ok := cs.cams[id]
	if !ok {
		return nil, errors.Wrapf(rays.ErrSensorNotFound, "%s", id)
	}

	props, err := cam.Properties(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s camera properties", id)
	}
	distortion := props.DistortionParams
	if distortion != nil && distortion.CheckValid() != nil {
		cs.logger.Warnf("%s camera distortion parameters unusable, ignoring them", id)
		distortion = nil
	}
	m, err := rays.NewPinholeMapper(props.IntrinsicParams, distortion)
	if err != nil {
		return nil, errors.Wrapf(err, "%s camera", id)
	}
	cs.mappers[id] = m
	return m, nil
}

// imageSize is the resolution of a camera whose mapper was already loaded.
func (cs *cameraSensors) imageSize(id rays.CameraID) (float64, float64, bool) {
	m, ok := cs.mappers[id]
	if !ok {
		return 0, 0, false
	}
	in := m.Intrinsics()
	return float64(in.Width), float64(in.Height), true
}
