package events

// MultiEmitter fans a single event stream out to several emitters. Nil entries
// are skipped so callers can wire optional sinks without guards.
type MultiEmitter []Emitter

// Emit implements the Emitter interface.
func (m MultiEmitter) Emit(evt Event) {
	if evt == nil {
		return
	}
	for _, emitter := range m {
		if emitter != nil {
			emitter.Emit(evt)
		}
	}
}
