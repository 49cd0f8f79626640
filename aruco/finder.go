// Package aruco finds ArUco fiducial markers in camera frames and serves the
// most recent marker center to the ray pipelines.
package aruco

import (
	"image"
	"strings"
	"sync"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// DefaultDictionary is used when no dictionary is configured.
const DefaultDictionary = "4x4_50"

var dictionaries = map[string]gocv.ArucoDictionaryCode{
	"4x4_50":   gocv.ArucoDict4x4_50,
	"4x4_100":  gocv.ArucoDict4x4_100,
	"4x4_250":  gocv.ArucoDict4x4_250,
	"4x4_1000": gocv.ArucoDict4x4_1000,
	"5x5_50":   gocv.ArucoDict5x5_50,
	"5x5_100":  gocv.ArucoDict5x5_100,
	"5x5_250":  gocv.ArucoDict5x5_250,
	"5x5_1000": gocv.ArucoDict5x5_1000,
	"6x6_50":   gocv.ArucoDict6x6_50,
	"6x6_100":  gocv.ArucoDict6x6_100,
	"6x6_250":  gocv.ArucoDict6x6_250,
	"6x6_1000": gocv.ArucoDict6x6_1000,
	"7x7_50":   gocv.ArucoDict7x7_50,
	"7x7_100":  gocv.ArucoDict7x7_100,
	"7x7_250":  gocv.ArucoDict7x7_250,
	"7x7_1000": gocv.ArucoDict7x7_1000,
	"original": gocv.ArucoDictArucoOriginal,
}

// ParseDictionary resolves a dictionary name such as "4x4_50". Empty means DefaultDictionary.
func ParseDictionary(name string) (gocv.ArucoDictionaryCode, error) {
	if name == "" {
		name = DefaultDictionary
	}
	code, ok := dictionaries[strings.ToLower(name)]
	if !ok {
		return 0, errors.Errorf("unknown aruco dictionary %q", name)
	}
	return code, nil
}

// Locator finds a marker center in an image.
type Locator interface {
	Find(img image.Image) (r2.Point, bool, error)
}

// Finder locates ArUco markers with OpenCV. It is safe for concurrent use.
type Finder struct {
	mu       sync.Mutex
	detector gocv.ArucoDetector
	closed   bool
}

// NewFinder builds a Finder for the named predefined dictionary.
func NewFinder(dictionary string) (*Finder, error) {
	code, err := ParseDictionary(dictionary)
	if err != nil {
		return nil, err
	}
	return &Finder{
		detector: gocv.NewArucoDetectorWithParams(gocv.GetPredefinedDictionary(code), gocv.NewArucoDetectorParameters()),
	}, nil
}

// Find returns the center of the first marker detected in img.
func (f *Finder) Find(img image.Image) (r2.Point, bool, error) {
	if img == nil {
		return r2.Point{}, false, errors.New("no image")
	}

	gray, err := grayMat(img)
	if err != nil {
		return r2.Point{}, false, err
	}
	defer gray.Close()

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return r2.Point{}, false, errors.New("finder is closed")
	}
	corners, _, _ := f.detector.DetectMarkers(gray)
	c, ok := firstCenter(corners)
	return c, ok, nil
}

// Close frees the OpenCV detector.
func (f *Finder) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	f.detector.Close()
	return nil
}

// firstCenter averages the corners of the first marker.
func firstCenter(corners [][]gocv.Point2f) (r2.Point, bool) {
	if len(corners) == 0 || len(corners[0]) == 0 {
		return r2.Point{}, false
	}
	var c r2.Point
	for _, p := range corners[0] {
		c.X += float64(p.X)
		c.Y += float64(p.Y)
	}
	n := float64(len(corners[0]))
	return r2.Point{X: c.X / n, Y: c.Y / n}, true
}

// grayMat converts img to the single channel Mat the detector works on.
func grayMat(img image.Image) (gocv.Mat, error) {
	if b := img.Bounds(); b.Empty() {
		return gocv.Mat{}, errors.Errorf("empty image %v", b)
	}
	if g, ok := img.(*image.Gray); ok {
		return gocv.ImageGrayToMatGray(g)
	}

	bgr, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return gocv.Mat{}, errors.Wrap(err, "converting image")
	}
	defer bgr.Close()

	gray := gocv.NewMat()
	gocv.CvtColor(bgr, &gray, gocv.ColorBGRToGray)
	return gray, nil
}
