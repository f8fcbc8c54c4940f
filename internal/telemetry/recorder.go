package telemetry

import (
	"sync"

	"go.uber.org/zap"
)

// Recorder is a Sink that collects event and warning names in order.
// Used by tests to assert on emitted alerts.
type Recorder struct {
	mu      sync.Mutex
	entries []string
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Event(name string, _ ...zap.Field) { r.append(name) }
func (r *Recorder) Warn(msg string, _ ...zap.Field)   { r.append(msg) }
func (r *Recorder) Error(msg string, _ error, _ ...zap.Field) {
	r.append(msg)
}

func (r *Recorder) append(s string) {
	r.mu.Lock()
	r.entries = append(r.entries, s)
	r.mu.Unlock()
}

// Entries returns a copy of everything recorded so far.
func (r *Recorder) Entries() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.entries))
	copy(out, r.entries)
	return out
}

// Has reports whether an entry with the given name was recorded.
func (r *Recorder) Has(name string) bool {
	for _, e := range r.Entries() {
		if e == name {
			return true
		}
	}
	return false
}
