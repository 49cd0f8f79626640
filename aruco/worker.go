package aruco

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.viam.com/rdk/logging"
	goutils "go.viam.com/utils"

	"viamstereorays/rays"
)

// DefaultRateHz is how often a Worker looks at a new frame when unconfigured.
const DefaultRateHz = 10.0

// WorkerConfig controls a Worker's pace and how long a result stays valid.
type WorkerConfig struct {
	RateHz float64
	// MaxAge discards results older than this; zero keeps them until the next frame.
	MaxAge time.Duration
}

// Worker runs marker detection in the background and keeps the latest result.
// FirstCenter never blocks on detection.
type Worker struct {
	name    string
	source  FrameSource
	locator Locator
	cfg     WorkerConfig
	clock   clock.Clock
	logger  logging.Logger

	mu     sync.Mutex
	latest rays.Detection
	found  bool
	seenAt time.Time

	cancelCtx  context.Context
	cancelFunc func()
	wg         sync.WaitGroup
}

// NewWorker builds a Worker; call Start to begin processing frames.
func NewWorker(
	name string,
	source FrameSource,
	locator Locator,
	cfg WorkerConfig,
	clk clock.Clock,
	logger logging.Logger,
) *Worker {
	if cfg.RateHz <= 0 {
		cfg.RateHz = DefaultRateHz
	}
	if clk == nil {
		clk = clock.New()
	}
	cancelCtx, cancelFunc := context.WithCancel(context.Background())
	return &Worker{
		name:       name,
		source:     source,
		locator:    locator,
		cfg:        cfg,
		clock:      clk,
		logger:     logger,
		cancelCtx:  cancelCtx,
		cancelFunc: cancelFunc,
	}
}

// Start launches the detection loop.
func (w *Worker) Start() {
	interval := time.Duration(float64(time.Second) / w.cfg.RateHz)
	w.wg.Add(1)
	goutils.PanicCapturingGo(func() {
		defer w.wg.Done()
		w.loop(w.cancelCtx, interval)
	})
}

func (w *Worker) loop(ctx context.Context, interval time.Duration) {
	ticker := w.clock.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.ProcessOnce(ctx); err != nil && ctx.Err() == nil {
				w.logger.Debugf("%s marker detection failed: %v", w.name, err)
			}
		}
	}
}

// ProcessOnce grabs one frame and records whether a marker was found in it.
// On error the previous result is dropped.
func (w *Worker) ProcessOnce(ctx context.Context) error {
	img, ts, err := w.source.Frame(ctx)
	if err != nil {
		w.store(rays.Detection{}, false)
		return err
	}
	center, ok, err := w.locator.Find(img)
	if err != nil {
		w.store(rays.Detection{}, false)
		return err
	}
	w.store(rays.Detection{Center: center, Timestamp: ts}, ok)
	return nil
}

func (w *Worker) store(det rays.Detection, found bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.latest = det
	w.found = found
	w.seenAt = w.clock.Now()
}

// FirstCenter implements rays.MarkerDetector.
func (w *Worker) FirstCenter() (rays.Detection, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.found {
		return rays.Detection{}, false
	}
	if w.cfg.MaxAge > 0 && w.clock.Since(w.seenAt) > w.cfg.MaxAge {
		return rays.Detection{}, false
	}
	return w.latest, true
}

// Close stops the loop and releases the locator if it holds native resources.
func (w *Worker) Close() error {
	w.cancelFunc()
	w.wg.Wait()
	if c, ok := w.locator.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
