package aruco

import (
	"context"
	"image"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.viam.com/rdk/components/camera"
)

// FrameSource produces camera frames with their capture time.
type FrameSource interface {
	Frame(ctx context.Context) (image.Image, time.Time, error)
}

// CameraSource reads frames from a Viam camera.
type CameraSource struct {
	cam   camera.Camera
	clock clock.Clock
}

// NewCameraSource wraps cam. Frames without a capture time are stamped with clk.
func NewCameraSource(cam camera.Camera, clk clock.Clock) *CameraSource {
	if clk == nil {
		clk = clock.New()
	}
	return &CameraSource{cam: cam, clock: clk}
}

// Frame returns the camera's first image.
func (s *CameraSource) Frame(ctx context.Context) (image.Image, time.Time, error) {
	all, meta, err := s.cam.Images(ctx)
	if err != nil {
		return nil, time.Time{}, err
	}
	if len(all) == 0 {
		return nil, time.Time{}, errors.New("camera returned no images")
	}
	ts := meta.CapturedAt
	if ts.IsZero() {
		ts = s.clock.Now()
	}
	return all[0].Image, ts, nil
}
