package events

import "sync"

// Recorder retains the most recent events in memory so read surfaces can serve
// history without a full indexer. The buffer is bounded; old entries are
// discarded once the capacity is reached.
type Recorder struct {
	mu     sync.RWMutex
	buffer []Event
	limit  int
}

// NewRecorder returns a recorder holding at most limit events. A non-positive
// limit falls back to 1024.
func NewRecorder(limit int) *Recorder {
	if limit <= 0 {
		limit = 1024
	}
	return &Recorder{limit: limit}
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(evt Event) {
	if r == nil || evt == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buffer = append(r.buffer, evt)
	if len(r.buffer) > r.limit {
		r.buffer = r.buffer[len(r.buffer)-r.limit:]
	}
}

// List returns the recorded events, oldest first. When prefix is non-empty the
// result only includes events whose type starts with the prefix.
func (r *Recorder) List(prefix string, limit int) []Event {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Event, 0, len(r.buffer))
	for _, evt := range r.buffer {
		if prefix != "" && !hasPrefix(evt.EventType(), prefix) {
			continue
		}
		out = append(out, evt)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
