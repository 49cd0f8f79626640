package main

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"os"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/rimage/transform"
	"gonum.org/v1/plot/vg"

	"viamstereorays"
	"viamstereorays/aruco"
	"viamstereorays/pixellog"
	"viamstereorays/rays"
)

type rigCamera struct {
	Extrinsics []float64                          `json:"extrinsics"`
	Intrinsics *transform.PinholeCameraIntrinsics `json:"intrinsics"`
	Distortion *transform.BrownConrady            `json:"distortion,omitempty"`
}

type rigFile struct {
	RowVectors bool                        `json:"row_vectors"`
	Cameras    map[rays.CameraID]rigCamera `json:"cameras"`
}

func main() {
	app := &cli.App{
		Name:  "stereo-rays",
		Usage: "project an ArUco marker seen by two cameras into rig-space rays",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "rig", Required: true, Usage: "JSON file with per-camera extrinsics and intrinsics"},
			&cli.StringFlag{Name: "left", Usage: "left camera image"},
			&cli.StringFlag{Name: "right", Usage: "right camera image"},
			&cli.StringFlag{Name: "dictionary", Value: aruco.DefaultDictionary},
			&cli.StringFlag{Name: "plot", Usage: "write a PNG plot of the rays here"},
			&cli.StringFlag{Name: "pixel-log", Usage: "append double detections to this file"},
		},
		Action: func(c *cli.Context) error {
			return realMain(c)
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func readRig(fn string) (*rigFile, error) {
	data, err := os.ReadFile(fn)
	if err != nil {
		return nil, err
	}
	rf := &rigFile{}
	if err := json.Unmarshal(data, rf); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", fn)
	}
	return rf, nil
}

func readImage(fn string) (image.Image, error) {
	file, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	return img, err
}

func realMain(c *cli.Context) error {
	ctx := context.Background()
	logger := logging.NewLogger("cli")

	rf, err := readRig(c.String("rig"))
	if err != nil {
		return err
	}

	finder, err := aruco.NewFinder(c.String("dictionary"))
	if err != nil {
		return err
	}
	defer finder.Close()

	convention := rays.ColumnVectors
	if rf.RowVectors {
		convention = rays.RowVectors
	}

	sensors := rays.StaticSensors{}
	detectors := map[rays.CameraID]rays.MarkerDetector{}
	images := map[rays.CameraID]string{rays.Left: c.String("left"), rays.Right: c.String("right")}

	for id, fn := range images {
		rc, ok := rf.Cameras[id]
		if fn == "" || !ok {
			continue
		}
		e, err := rays.NewExtrinsics(rc.Extrinsics, convention)
		if err != nil {
			return errors.Wrapf(err, "%s camera", id)
		}
		var distortion transform.Distorter
		if rc.Distortion != nil {
			distortion = rc.Distortion
		}
		m, err := rays.NewPinholeMapper(rc.Intrinsics, distortion)
		if err != nil {
			return errors.Wrapf(err, "%s camera", id)
		}
		sensors[id] = rays.StaticCamera{Extrinsics: e, Mapper: m}

		img, err := readImage(fn)
		if err != nil {
			return err
		}
		center, found, err := finder.Find(img)
		if err != nil {
			return err
		}
		logger.Infof("%s marker found: %v at %v", id, found, center)
		det := rays.Detection{Center: center}
		detectors[id] = rays.DetectorFunc(func() (rays.Detection, bool) { return det, found })
	}

	pipelines := map[rays.CameraID]*rays.Pipeline{}
	for id := range sensors {
		p, err := rays.NewPipeline(ctx, id, sensors, detectors[id], rays.PipelineOptions{}, logger)
		if err != nil {
			return err
		}
		pipelines[id] = p
	}
	if len(pipelines) == 0 {
		return errors.New("need at least one camera image that is in the rig file")
	}

	sink := rays.Ensemble{}
	if fn := c.String("pixel-log"); fn != "" {
		pl, err := pixellog.Open(fn, logger)
		if err != nil {
			return err
		}
		defer pl.Close()
		sink = append(sink, pl)
	}

	res := rays.NewRig(pipelines[rays.Left], pipelines[rays.Right], sink).Update()
	for _, r := range []rays.CameraRay{res.Left, res.Right} {
		logger.Infof("%s enabled: %v direction: %v", r.Camera, r.Enabled, r.Direction)
	}
	logger.Infof("double detection: %v", res.DoubleDetection)

	if fn := c.String("plot"); fn != "" {
		img, err := viamstereorays.RaysToImage(res, renderConfig(rf, pipelines, logger), 8*vg.Inch, 6*vg.Inch)
		if err != nil {
			return err
		}
		return writePNG(fn, img)
	}
	return nil
}

// renderConfig places each camera and its reference rays for the plot.
func renderConfig(rf *rigFile, pipelines map[rays.CameraID]*rays.Pipeline, logger logging.Logger) viamstereorays.RayRenderConfig {
	const length = 0.6
	render := viamstereorays.RayRenderConfig{
		Origins:         map[rays.CameraID]r3.Vector{},
		References:      map[rays.CameraID][]rays.CameraRay{},
		Length:          length,
		ReferenceLength: length / 6,
	}
	for id, p := range pipelines {
		render.Origins[id] = p.Origin()
		in := rf.Cameras[id].Intrinsics
		refs, err := p.ReferenceRays(float64(in.Width), float64(in.Height))
		if err != nil {
			logger.Warnf("plotting %s camera without reference rays: %v", id, err)
			continue
		}
		render.References[id] = refs
	}
	return render
}

func writePNG(fn string, img image.Image) (err error) {
	out, err := os.Create(fn)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, out.Close())
	}()
	return png.Encode(out, img)
}
