package rays

import (
	"context"
	"time"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
)

// ErrSensorNotFound is returned by a SensorProvider that has no such camera.
var ErrSensorNotFound = errors.New("camera sensor not found")

// SensorProvider hands out per-camera calibration for one session.
type SensorProvider interface {
	// Extrinsics is queried once per camera.
	Extrinsics(ctx context.Context, id CameraID) (*Extrinsics, error)
	// UnitPlaneMapper may be called any number of times by the returned mapper's owner.
	UnitPlaneMapper(ctx context.Context, id CameraID) (UnitPlaneMapper, error)
}

// Detection is a marker center seen by a camera.
type Detection struct {
	Center    r2.Point
	Timestamp time.Time
}

// MarkerDetector reports the first marker center of its most recently processed frame.
// FirstCenter must not block.
type MarkerDetector interface {
	FirstCenter() (Detection, bool)
}

// DetectorFunc adapts a plain function to MarkerDetector.
type DetectorFunc func() (Detection, bool)

// FirstCenter calls f.
func (f DetectorFunc) FirstCenter() (Detection, bool) {
	return f()
}

// StaticCamera is the calibration of one camera held in memory.
type StaticCamera struct {
	Extrinsics *Extrinsics
	Mapper     UnitPlaneMapper
}

// StaticSensors is a SensorProvider backed by a map.
type StaticSensors map[CameraID]StaticCamera

// Extrinsics implements SensorProvider.
func (s StaticSensors) Extrinsics(ctx context.Context, id CameraID) (*Extrinsics, error) {
	c, ok := s[id]
	if !ok || c.Extrinsics == nil {
		return nil, errors.Wrapf(ErrSensorNotFound, "%s", id)
	}
	return c.Extrinsics, nil
}

// UnitPlaneMapper implements SensorProvider.
func (s StaticSensors) UnitPlaneMapper(ctx context.Context, id CameraID) (UnitPlaneMapper, error) {
	c, ok := s[id]
	if !ok || c.Mapper == nil {
		return nil, errors.Wrapf(ErrSensorNotFound, "%s", id)
	}
	return c.Mapper, nil
}
