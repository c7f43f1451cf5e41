package trace

import "sync"

// Sink is the interface the pipeline records into.
//
// Record must be inert: it must not panic and must not return errors. The
// caller must assume Record may be a no-op.
type Sink interface {
	Record(event Event)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Record(Event) {}

// SafeRecord records an event and swallows panics from a buggy sink.
func SafeRecord(s Sink, event Event) {
	if s == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	s.Record(event)
}

// Recorder is a concurrency-safe in-memory collector.
type Recorder struct {
	mu     sync.Mutex
	stages []string
	events []Event
}

func NewRecorder() *Recorder { return &Recorder{} }

// Record stores an event. Stage events are kept in arrival order.
func (r *Recorder) Record(event Event) {
	if r == nil {
		return
	}
	defer func() {
		_ = recover()
	}()

	r.mu.Lock()
	defer r.mu.Unlock()
	if event.Kind == EventStage {
		r.stages = append(r.stages, event.Stage)
		return
	}
	r.events = append(r.events, event)
}

// Trace builds a canonical CycleTrace from what has been recorded so far.
func (r *Recorder) Trace(cycleKey string) CycleTrace {
	tr := CycleTrace{CycleKey: cycleKey}
	if r != nil {
		r.mu.Lock()
		tr.Stages = append([]string(nil), r.stages...)
		tr.Events = append([]Event(nil), r.events...)
		r.mu.Unlock()
	}
	tr.Canonicalize()
	return tr
}
