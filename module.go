package viamstereorays

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"go.uber.org/multierr"
	"go.viam.com/rdk/components/camera"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/pointcloud"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/rimage"
	"go.viam.com/rdk/spatialmath"
	"go.viam.com/rdk/utils"
	goutils "go.viam.com/utils"
	"gonum.org/v1/plot/vg"

	"viamstereorays/aruco"
	"viamstereorays/pixellog"
	"viamstereorays/rays"
)

var (
	NamespaceFamily = resource.NewModelFamily("viam-labs", "stereo-rays")
	StereoRays      = NamespaceFamily.WithModel("stereo-rays")
)

func init() {
	resource.RegisterComponent(camera.API, StereoRays,
		resource.Registration[camera.Camera, *Config]{
			Constructor: newViamStereoRays,
		},
	)
}

type closer interface {
	Close() error
}

type viamStereoRays struct {
	resource.AlwaysRebuild

	name resource.Name

	logger logging.Logger
	cfg    *Config
	clock  clock.Clock

	cancelCtx  context.Context
	cancelFunc func()
	wg         sync.WaitGroup

	rig      *rays.Rig
	recorder *frameRecorder
	render   RayRenderConfig
	faults   map[rays.CameraID]string
	closers  []closer
}

func newViamStereoRays(ctx context.Context, deps resource.Dependencies, rawConf resource.Config, logger logging.Logger) (camera.Camera, error) {
	conf, err := resource.NativeConfig[*Config](rawConf)
	if err != nil {
		return nil, err
	}

	return NewStereoRays(ctx, deps, rawConf.ResourceName(), conf, logger)
}

// NewStereoRays wires each configured camera to an ArUco worker and a ray pipeline,
// then starts the per-frame loop.
func NewStereoRays(ctx context.Context, deps resource.Dependencies, name resource.Name, conf *Config, logger logging.Logger) (camera.Camera, error) {
	clk := clock.New()

	cams := map[rays.CameraID]propertiesGetter{}
	detectors := map[rays.CameraID]rays.MarkerDetector{}
	var workers []*aruco.Worker
	closeWorkers := func() {
		for _, w := range workers {
			if err := w.Close(); err != nil {
				logger.Warnf("closing marker worker: %v", err)
			}
		}
	}

	for id, camName := range conf.cameraNames() {
		cam, err := camera.FromDependencies(deps, camName)
		if err != nil {
			closeWorkers()
			return nil, err
		}
		finder, err := aruco.NewFinder(conf.ArucoDictionary)
		if err != nil {
			closeWorkers()
			return nil, err
		}
		w := aruco.NewWorker(string(id), aruco.NewCameraSource(cam, clk), finder, conf.workerConfig(), clk, logger)
		workers = append(workers, w)
		cams[id] = cam
		detectors[id] = w
	}

	s, err := newStereoRays(ctx, name, conf, cams, detectors, clk, logger)
	if err != nil {
		closeWorkers()
		return nil, err
	}

	for _, w := range workers {
		s.closers = append(s.closers, w)
		w.Start()
	}
	s.start()
	return s, nil
}

// newStereoRays builds the rig without starting anything.
func newStereoRays(
	ctx context.Context,
	name resource.Name,
	conf *Config,
	cams map[rays.CameraID]propertiesGetter,
	detectors map[rays.CameraID]rays.MarkerDetector,
	clk clock.Clock,
	logger logging.Logger,
) (*viamStereoRays, error) {
	cancelCtx, cancelFunc := context.WithCancel(context.Background())

	s := &viamStereoRays{
		name:       name,
		logger:     logger,
		cfg:        conf,
		clock:      clk,
		cancelCtx:  cancelCtx,
		cancelFunc: cancelFunc,
		recorder:   &frameRecorder{},
		faults:     map[rays.CameraID]string{},
		render: RayRenderConfig{
			Origins:         map[rays.CameraID]r3.Vector{},
			References:      map[rays.CameraID][]rays.CameraRay{},
			Length:          conf.getRayLength(),
			ReferenceLength: conf.getRayLength() / 6,
		},
	}

	sensors := newCameraSensors(conf, cams, logger)
	opts := rays.PipelineOptions{RotationTolerance: conf.RotationTolerance}
	pipelines := map[rays.CameraID]*rays.Pipeline{}

	for _, id := range []rays.CameraID{rays.Left, rays.Right} {
		if _, ok := cams[id]; !ok {
			logger.Infof("no %s camera configured, running without it", id)
			continue
		}
		p, err := rays.NewPipeline(ctx, id, sensors, detectors[id], opts, logger)
		if errors.Is(err, rays.ErrInvalidRotation) || errors.Is(err, rays.ErrDegenerateRotation) {
			logger.Errorf("disabling %s camera: %v", id, err)
			s.faults[id] = err.Error()
			continue
		}
		if err != nil {
			cancelFunc()
			return nil, err
		}
		pipelines[id] = p
		s.render.Origins[id] = p.Origin()

		if w, h, ok := sensors.imageSize(id); ok {
			refs, err := p.ReferenceRays(w, h)
			if err != nil {
				logger.Warnf("drawing %s camera without reference rays: %v", id, err)
			} else {
				s.render.References[id] = refs
			}
		}
	}

	if len(pipelines) == 0 {
		cancelFunc()
		return nil, fmt.Errorf("no usable camera: %v", s.faults)
	}

	sink := rays.Ensemble{s.recorder}
	if conf.PixelLog != "" {
		pl, err := pixellog.Open(conf.PixelLog, logger)
		if err != nil {
			cancelFunc()
			return nil, err
		}
		sink = append(sink, pl)
		s.closers = append(s.closers, pl)
	}

	s.rig = rays.NewRig(pipelines[rays.Left], pipelines[rays.Right], sink)
	return s, nil
}

func (s *viamStereoRays) start() {
	ticker := s.clock.Ticker(time.Duration(float64(time.Second) / s.cfg.getUpdateRateHz()))
	s.wg.Add(1)
	goutils.PanicCapturingGo(func() {
		defer s.wg.Done()
		defer ticker.Stop()
		s.frameLoop(s.cancelCtx, ticker)
	})
}

// frameLoop runs one rig update per tick until ctx is done.
func (s *viamStereoRays) frameLoop(ctx context.Context, ticker *clock.Ticker) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.rig.Update()
		}
	}
}

func (s *viamStereoRays) Name() resource.Name {
	return s.name
}

func (s *viamStereoRays) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	switch cmd["command"] {
	case "status":
		return s.status(), nil
	case "reference-rays":
		out := map[string]interface{}{}
		for id, refs := range s.render.References {
			list := []interface{}{}
			for _, r := range refs {
				list = append(list, rayToMap(r))
			}
			out[string(id)] = list
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown command %v", cmd["command"])
	}
}

func (s *viamStereoRays) status() map[string]interface{} {
	res, ok := s.recorder.Latest()
	out := map[string]interface{}{
		"has_frame":        ok,
		"frame":            res.Frame,
		"double_detection": res.DoubleDetection,
	}
	for _, id := range []rays.CameraID{rays.Left, rays.Right} {
		cam := map[string]interface{}{"present": false}
		if p := s.rig.Pipeline(id); p != nil {
			ray := res.Left
			if id == rays.Right {
				ray = res.Right
			}
			cam = rayToMap(ray)
			cam["present"] = true
			cam["determinant"] = p.Extrinsics().Determinant()
		}
		if f, ok := s.faults[id]; ok {
			cam["fault"] = f
		}
		out[string(id)] = cam
	}
	return out
}

func rayToMap(r rays.CameraRay) map[string]interface{} {
	return map[string]interface{}{
		"enabled":    r.Enabled,
		"direction":  []interface{}{r.Direction.X, r.Direction.Y, r.Direction.Z},
		"pixel":      []interface{}{r.Pixel.X, r.Pixel.Y},
		"unit_plane": []interface{}{r.UnitPlane.X, r.UnitPlane.Y},
	}
}

func (s *viamStereoRays) Close(context.Context) error {
	s.cancelFunc()
	s.wg.Wait()

	var err error
	for _, c := range s.closers {
		err = multierr.Combine(err, c.Close())
	}
	return err
}

func (s *viamStereoRays) image() (image.Image, error) {
	res, _ := s.recorder.Latest()
	return RaysToImage(res, s.render, 8*vg.Inch, 6*vg.Inch)
}

func (s *viamStereoRays) Image(ctx context.Context, mimeType string, extra map[string]interface{}) ([]byte, camera.ImageMetadata, error) {
	if mimeType == "" {
		mimeType = utils.MimeTypePNG
	}
	img, err := s.image()
	if err != nil {
		return nil, camera.ImageMetadata{}, err
	}
	data, err := rimage.EncodeImage(ctx, img, mimeType)
	if err != nil {
		return nil, camera.ImageMetadata{}, err
	}
	return data, camera.ImageMetadata{MimeType: mimeType}, nil
}

func (s *viamStereoRays) Images(ctx context.Context) ([]camera.NamedImage, resource.ResponseMetadata, error) {
	img, err := s.image()
	if err != nil {
		return nil, resource.ResponseMetadata{}, err
	}
	return []camera.NamedImage{{Image: img, SourceName: "rays"}}, resource.ResponseMetadata{CapturedAt: s.clock.Now()}, nil
}

func (s *viamStereoRays) NextPointCloud(ctx context.Context) (pointcloud.PointCloud, error) {
	res, _ := s.recorder.Latest()
	return RaysToPointCloud(res, s.render)
}

func (s *viamStereoRays) Properties(ctx context.Context) (camera.Properties, error) {
	return camera.Properties{
		SupportsPCD: true,
	}, nil
}

func (s *viamStereoRays) Geometries(ctx context.Context, extra map[string]interface{}) ([]spatialmath.Geometry, error) {
	return nil, nil
}
