package eventlog

import "sync"

// Logger receives session events. Implementations must be safe for concurrent use
// and should return quickly: Log is called while the session lock is held.
type Logger interface {
	Log(event Event)
}

// NoopLogger discards all events.
type NoopLogger struct{}

func (NoopLogger) Log(Event) {}

// MultiLogger sends events to several loggers, for console and file output together.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a MultiLogger. Nil entries are skipped.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	m := &MultiLogger{}
	for _, l := range loggers {
		if l != nil {
			m.loggers = append(m.loggers, l)
		}
	}
	return m
}

func (m *MultiLogger) Log(event Event) {
	for _, l := range m.loggers {
		l.Log(event)
	}
}

// Recorder keeps events in memory. It is meant for tests and for short CLI runs.
// The zero value is ready to use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Log(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

var (
	_ Logger = NoopLogger{}
	_ Logger = (*MultiLogger)(nil)
	_ Logger = (*Recorder)(nil)
)
