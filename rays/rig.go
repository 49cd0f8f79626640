package rays

// DoubleDetection is true only when both cameras have a ray this frame.
func DoubleDetection(left, right bool) bool {
	return left && right
}

// FrameResult is the outcome of one frame's update.
type FrameResult struct {
	Frame           uint64
	Left            CameraRay
	Right           CameraRay
	DoubleDetection bool
}

// Sink consumes frame results, e.g. a renderer.
type Sink interface {
	Publish(FrameResult)
}

// SinkFunc adapts a plain function to Sink.
type SinkFunc func(FrameResult)

// Publish calls f.
func (f SinkFunc) Publish(res FrameResult) {
	f(res)
}

// Ensemble publishes every frame to each of its sinks in order.
type Ensemble []Sink

// Publish implements Sink.
func (e Ensemble) Publish(res FrameResult) {
	for _, s := range e {
		if s != nil {
			s.Publish(res)
		}
	}
}

// Rig holds the two camera pipelines. Either may be nil when that camera is absent.
// Update is meant to be called from a single frame loop.
type Rig struct {
	left, right *Pipeline
	sink        Sink
	frame       uint64
}

// NewRig builds a rig. sink may be nil.
func NewRig(left, right *Pipeline, sink Sink) *Rig {
	return &Rig{left: left, right: right, sink: sink}
}

// Pipeline returns the pipeline for id, or nil.
func (r *Rig) Pipeline(id CameraID) *Pipeline {
	switch id {
	case Left:
		return r.left
	case Right:
		return r.right
	default:
		return nil
	}
}

// Update runs both detection gates, then evaluates correspondence once and
// publishes the result.
func (r *Rig) Update() FrameResult {
	r.frame++
	res := FrameResult{
		Frame: r.frame,
		Left:  gate(r.left, Left),
		Right: gate(r.right, Right),
	}
	res.DoubleDetection = DoubleDetection(res.Left.Enabled, res.Right.Enabled)
	if r.sink != nil {
		r.sink.Publish(res)
	}
	return res
}

func gate(p *Pipeline, id CameraID) CameraRay {
	if p == nil {
		return CameraRay{Camera: id}
	}
	return p.Update()
}
