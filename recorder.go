package viamstereorays

import (
	"sync"

	"viamstereorays/rays"
)

// frameRecorder keeps the most recent frame for the renderers and DoCommand.
type frameRecorder struct {
	mu     sync.Mutex
	latest rays.FrameResult
	ok     bool
}

func (r *frameRecorder) Publish(res rays.FrameResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.latest = res
	r.ok = true
}

func (r *frameRecorder) Latest() (rays.FrameResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latest, r.ok
}
