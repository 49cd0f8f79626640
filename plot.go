package viamstereorays

import (
	"fmt"
	"image"
	"image/color"

	"github.com/golang/geo/r3"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"viamstereorays/rays"
)

type projection struct {
	label string
	axis  func(v r3.Vector) float64
}

var (
	topDown = projection{"x (m)", func(v r3.Vector) float64 { return v.X }}
	sideOn  = projection{"y (m)", func(v r3.Vector) float64 { return v.Y }}
)

// RaysToImage draws the frame's rays seen from above (x against z) and from the side (y against z).
func RaysToImage(res rays.FrameResult, config RayRenderConfig, width, height vg.Length) (image.Image, error) {
	plots := [][]*plot.Plot{make([]*plot.Plot, 2)}
	for i, proj := range []projection{topDown, sideOn} {
		p, err := raysPlot(res, config, proj)
		if err != nil {
			return nil, err
		}
		plots[0][i] = p
	}
	plots[0][0].Title.Text = fmt.Sprintf("frame %d  double detection: %v", res.Frame, res.DoubleDetection)

	c := vgimg.New(width, height)
	dc := draw.New(c)
	tiles := draw.Tiles{
		Rows:      1,
		Cols:      2,
		PadX:      vg.Millimeter,
		PadY:      vg.Millimeter,
		PadTop:    vg.Points(2),
		PadBottom: vg.Points(2),
		PadLeft:   vg.Points(2),
		PadRight:  vg.Points(2),
	}
	canvases := plot.Align(plots, tiles, dc)
	for i, p := range plots[0] {
		p.Draw(canvases[0][i])
	}
	return c.Image(), nil
}

func raysPlot(res rays.FrameResult, config RayRenderConfig, proj projection) (*plot.Plot, error) {
	p := plot.New()
	p.X.Label.Text = proj.label
	p.Y.Label.Text = "z (m)"

	addLine := func(name string, ray rays.CameraRay, length float64, c color.Color, w vg.Length) error {
		origin := config.Origins[ray.Camera]
		end := rayEnd(origin, ray.Direction, length)
		line, err := plotter.NewLine(plotter.XYs{
			{X: proj.axis(origin), Y: origin.Z},
			{X: proj.axis(end), Y: end.Z},
		})
		if err != nil {
			return err
		}
		line.Color = c
		line.Width = w
		p.Add(line)
		if name != "" {
			p.Legend.Add(name, line)
		}
		return nil
	}

	for _, id := range []rays.CameraID{rays.Left, rays.Right} {
		for _, ref := range config.References[id] {
			if err := addLine("", ref, config.ReferenceLength, color.Gray{Y: 160}, vg.Points(0.5)); err != nil {
				return nil, err
			}
		}
	}

	for _, ray := range []rays.CameraRay{res.Left, res.Right} {
		if !ray.Enabled {
			continue
		}
		c := rayColor(ray.Camera, res.DoubleDetection)
		if err := addLine(string(ray.Camera), ray, config.Length, c, vg.Points(2)); err != nil {
			return nil, err
		}
	}

	origins := plotter.XYs{}
	for _, id := range []rays.CameraID{rays.Left, rays.Right} {
		if o, ok := config.Origins[id]; ok {
			origins = append(origins, plotter.XY{X: proj.axis(o), Y: o.Z})
		}
	}
	if len(origins) > 0 {
		cams, err := plotter.NewScatter(origins)
		if err != nil {
			return nil, err
		}
		p.Add(cams)
	}
	return p, nil
}
