package pipeline

import "go.uber.org/zap"

// Event is one progress notification: the stage just entered and a short
// human message.
type Event struct {
	NaturalKey string
	Stage      Stage
	Message    string
}

// ProgressSink receives progress events. Delivery is best effort: a sink that
// panics or misbehaves never takes the run down with it.
type ProgressSink interface {
	Progress(Event)
}

// ProgressFunc adapts a function to ProgressSink.
type ProgressFunc func(Event)

func (f ProgressFunc) Progress(e Event) { f(e) }

// emit delivers an event to the sink, swallowing panics.
func emit(sink ProgressSink, e Event) {
	if sink == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			zap.L().Warn("progress sink panicked", zap.Any("panic", r), zap.String("stage", string(e.Stage)))
		}
	}()
	sink.Progress(e)
}
