package eventbus

// Event is a single message published to the bus. Name is a dotted string
// such as "access.denied" or "delegation.sent"; Payload is a flat
// string-to-string mapping so that every event can be serialized uniformly
// regardless of subscriber.
type Event struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Payload   map[string]string `json:"payload"`
	Timestamp int64             `json:"timestamp"` // unix epoch seconds
	Source    string            `json:"source"`
}

// CriticalRecord is the durable form of a critical Event, as persisted to
// the audit_events table (spec.md §6).
type CriticalRecord struct {
	ID        int64             `json:"id"`
	Topic     string            `json:"topic"`
	Payload   map[string]string `json:"payload"`
	Source    string            `json:"source"`
	Severity  string            `json:"severity"`
	Timestamp float64           `json:"timestamp"`
}

// Handler is invoked for every published Event whose name matches a
// subscription's pattern. Handlers are invoked detached from the publishing
// goroutine and from each other; a panicking or slow handler never blocks
// publish or other handlers.
type Handler func(Event)

// StreamWriter is satisfied by any SSE/WS transport the gateway layer wants
// to fan events out to. Write receives one already-JSON-encoded event per
// call; a write error is the client's problem, not the bus's.
type StreamWriter interface {
	Write(data []byte) error
}
