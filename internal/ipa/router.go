package ipa

// Router feeds algorithm events into a pipeline handler's completion
// path. Metadata-ready events must never overtake the frame they describe:
// if the algorithm reports metadata before the frame's buffer has been
// dequeued, the event is held back and delivered when BufferComplete is
// called for that frame. All other event kinds pass straight through.
//
// Not safe for concurrent use; the router lives on the camera's event
// loop like everything else in the completion path.
type Router struct {
	sink func(Event)

	completed map[uint32]bool
	held      map[uint32][]Event
}

// NewRouter creates a router delivering events to sink.
func NewRouter(sink func(Event)) *Router {
	return &Router{
		sink:      sink,
		completed: make(map[uint32]bool),
		held:      make(map[uint32][]Event),
	}
}

// Submit routes one algorithm event.
func (r *Router) Submit(ev Event) {
	if ev.Op == OpMetadataReady && !r.completed[ev.Frame] {
		r.held[ev.Frame] = append(r.held[ev.Frame], ev)
		return
	}
	r.sink(ev)
}

// BufferComplete records that the buffer for frame has completed and
// flushes any held metadata for it.
func (r *Router) BufferComplete(frame uint32) {
	r.completed[frame] = true
	for _, ev := range r.held[frame] {
		r.sink(ev)
	}
	delete(r.held, frame)
}

// ForgetFrame drops completion state for a frame that has fully retired.
// Keeps the tracking maps from growing without bound on long captures.
func (r *Router) ForgetFrame(frame uint32) {
	delete(r.completed, frame)
	delete(r.held, frame)
}
