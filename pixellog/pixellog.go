// Package pixellog appends the raw pixel and unit-plane values of every
// double-detection frame to a text log, one comma separated line per frame.
package pixellog

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	"gopkg.in/natefinch/lumberjack.v2"

	"viamstereorays/rays"
)

// TimestampLayout is the human readable prefix of each line.
const TimestampLayout = "Mon Jan _2 15:04:05 2006"

// Sink writes double-detection frames to w.
type Sink struct {
	mu     sync.Mutex
	w      io.Writer
	clock  clock.Clock
	logger logging.Logger
	lines  int
}

// New writes to w, stamping lines with clk (the wall clock when nil).
func New(w io.Writer, clk clock.Clock, logger logging.Logger) *Sink {
	if clk == nil {
		clk = clock.New()
	}
	return &Sink{w: w, clock: clk, logger: logger}
}

// Open appends to a rolling file at path.
func Open(path string, logger logging.Logger) (*Sink, error) {
	if path == "" {
		return nil, errors.New("pixel log needs a path")
	}
	return New(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    10,
		MaxBackups: 3,
	}, nil, logger), nil
}

// Line formats one frame without the trailing newline.
func Line(ts string, res rays.FrameResult) string {
	values := []float64{
		res.Left.Pixel.X, res.Left.Pixel.Y,
		res.Right.Pixel.X, res.Right.Pixel.Y,
		res.Left.UnitPlane.X, res.Left.UnitPlane.Y,
		res.Right.UnitPlane.X, res.Right.UnitPlane.Y,
	}
	var sb strings.Builder
	sb.WriteString(ts)
	for _, v := range values {
		sb.WriteString(", ")
		sb.WriteString(strconv.FormatFloat(v, 'g', 6, 64))
	}
	return sb.String()
}

// Publish implements rays.Sink. Frames without a double detection are skipped.
func (s *Sink) Publish(res rays.FrameResult) {
	if !res.DoubleDetection {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintln(s.w, Line(s.clock.Now().Format(TimestampLayout), res)); err != nil {
		s.logger.Warnf("failed to write pixel log: %v", err)
		return
	}
	s.lines++
}

// Lines is how many lines were written.
func (s *Sink) Lines() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lines
}

// Close closes the underlying writer if it can be closed.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
