package viamstereorays

import (
	"image/color"

	"github.com/golang/geo/r3"
	"go.viam.com/rdk/pointcloud"

	"viamstereorays/rays"
)

var (
	leftColor      = color.NRGBA{R: 230, G: 40, B: 40, A: 255}
	rightColor     = color.NRGBA{R: 40, G: 80, B: 230, A: 255}
	convergeColor  = color.NRGBA{R: 40, G: 200, B: 60, A: 255}
	referenceColor = color.NRGBA{R: 220, G: 220, B: 220, A: 255}
)

// RayRenderConfig holds what the renderers need besides the frame itself.
type RayRenderConfig struct {
	Origins    map[rays.CameraID]r3.Vector
	References map[rays.CameraID][]rays.CameraRay

	Length          float64 // meters
	ReferenceLength float64 // meters
	Samples         int     // points per ray
}

func (c RayRenderConfig) samples() int {
	if c.Samples <= 1 {
		return 50
	}
	return c.Samples
}

// rayColor is the color a live ray is drawn in.
func rayColor(id rays.CameraID, double bool) color.NRGBA {
	if double {
		return convergeColor
	}
	if id == rays.Left {
		return leftColor
	}
	return rightColor
}

// rayEnd is where a ray of the given length ends, starting at origin.
func rayEnd(origin, dir r3.Vector, length float64) r3.Vector {
	if dir.Norm() == 0 {
		return origin
	}
	return origin.Add(dir.Normalize().Mul(length))
}

// RaysToPointCloud draws the enabled rays of a frame, plus the reference rays, as
// colored points in millimeters.
func RaysToPointCloud(res rays.FrameResult, config RayRenderConfig) (pointcloud.PointCloud, error) {
	pc := pointcloud.New()

	addRay := func(origin, dir r3.Vector, length float64, c color.NRGBA) error {
		n := config.samples()
		end := rayEnd(origin, dir, length)
		for i := 0; i < n; i++ {
			t := float64(i) / float64(n-1)
			p := origin.Add(end.Sub(origin).Mul(t)).Mul(1000)
			if err := pc.Set(p, pointcloud.NewColoredData(c)); err != nil {
				return err
			}
		}
		return nil
	}

	for _, id := range []rays.CameraID{rays.Left, rays.Right} {
		origin := config.Origins[id]
		for _, ref := range config.References[id] {
			if err := addRay(origin, ref.Direction, config.ReferenceLength, referenceColor); err != nil {
				return nil, err
			}
		}
	}

	for _, ray := range []rays.CameraRay{res.Left, res.Right} {
		if !ray.Enabled {
			continue
		}
		err := addRay(config.Origins[ray.Camera], ray.Direction, config.Length, rayColor(ray.Camera, res.DoubleDetection))
		if err != nil {
			return nil, err
		}
	}

	return pc, nil
}
