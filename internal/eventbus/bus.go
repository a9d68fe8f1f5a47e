// Package eventbus implements Torbo Base's in-process publish/subscribe bus:
// a bounded ring buffer, wildcard-pattern subscriptions, live SSE-style
// streaming fan-out, and durable storage of a critical event subset.
//
// Every other IAAP component publishes into a Bus; no component assumes any
// subscriber exists, and publish never blocks on subscriber work.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type subscription struct {
	id      string
	pattern string
	handler Handler
}

type streamingClient struct {
	id      string
	pattern string
	writer  StreamWriter
}

// Bus is the event bus's single mailbox: every exported method takes an
// internal lock just long enough to mutate state, then dispatches to
// subscribers and streaming clients outside the lock.
type Bus struct {
	mu       sync.Mutex
	capacity int
	ring     []Event
	start    int // index of the oldest event in ring
	count    int // number of valid events in ring

	subs    map[string]subscription
	streams map[string]streamingClient
	nextID  uint64

	audit  *auditStore
	logger *zap.Logger
}

// New creates a Bus with the given ring-buffer capacity. auditDBPath may be
// empty to disable critical-event persistence entirely.
func New(capacity int, auditDBPath string, logger *zap.Logger) *Bus {
	if capacity <= 0 {
		capacity = 1000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bus{
		capacity: capacity,
		ring:     make([]Event, capacity),
		subs:     make(map[string]subscription),
		streams:  make(map[string]streamingClient),
		logger:   logger,
	}
	if auditDBPath != "" {
		store, err := openAuditStore(auditDBPath, logger)
		if err != nil {
			logger.Error("eventbus: audit persistence disabled", zap.Error(err))
		}
		b.audit = store
	}
	return b
}

// Close releases the audit database handle, if any.
func (b *Bus) Close() error {
	return b.audit.close()
}

// Publish appends name/payload/source as a new Event to the ring buffer,
// persists it if it matches the critical set, and notifies every matching
// subscriber and streaming client. It never blocks on subscriber work.
func (b *Bus) Publish(ctx context.Context, name string, payload map[string]string, source string) Event {
	if payload == nil {
		payload = map[string]string{}
	}
	ev := Event{
		ID:        uuid.NewString(),
		Name:      name,
		Payload:   payload,
		Timestamp: time.Now().Unix(),
		Source:    source,
	}

	b.mu.Lock()
	b.append(ev)
	critical := isCritical(name)
	var matchedSubs []subscription
	for _, s := range b.subs {
		if matches(s.pattern, name) {
			matchedSubs = append(matchedSubs, s)
		}
	}
	var matchedStreams []streamingClient
	for _, c := range b.streams {
		if matches(c.pattern, name) {
			matchedStreams = append(matchedStreams, c)
		}
	}
	b.mu.Unlock()

	eventsPublishedTotal.WithLabelValues(name).Inc()

	severity := severityFor(name)
	if critical {
		criticalEventsPersistedTotal.WithLabelValues(severity).Inc()
		b.audit.persist(ctx, ev, severity)
	}

	for _, s := range matchedSubs {
		go safeInvoke(b.logger, s.handler, ev)
	}
	for _, c := range matchedStreams {
		go b.pushToStream(c, ev)
	}

	return ev
}

func safeInvoke(logger *zap.Logger, h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("eventbus: subscriber handler panicked", zap.Any("recover", r), zap.String("event", ev.Name))
		}
	}()
	h(ev)
}

func (b *Bus) pushToStream(c streamingClient, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		b.logger.Error("eventbus: encode event for stream", zap.Error(err))
		return
	}
	if err := c.writer.Write(data); err != nil {
		b.logger.Debug("eventbus: streaming client write failed", zap.String("client", c.id), zap.Error(err))
	}
}

// append pushes ev into the ring buffer, evicting the oldest entry once
// capacity is reached. Caller must hold b.mu.
func (b *Bus) append(ev Event) {
	idx := (b.start + b.count) % b.capacity
	if b.count < b.capacity {
		b.ring[idx] = ev
		b.count++
	} else {
		b.ring[idx] = ev
		b.start = (b.start + 1) % b.capacity
		eventsEvictedTotal.Inc()
	}
}

// Subscribe registers handler to be invoked (detached) for every published
// event whose name matches pattern. Returns a subscription id for Unsubscribe.
func (b *Bus) Subscribe(pattern string, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := fmt.Sprintf("sub-%d", b.nextID)
	b.subs[id] = subscription{id: id, pattern: pattern, handler: handler}
	return id
}

// Unsubscribe removes a subscription. Unsubscribing an unknown id is a no-op.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

// AddStreamingClient registers a live SSE-style client keyed by id. Adding
// with an id already in use replaces the prior registration.
func (b *Bus) AddStreamingClient(id, pattern string, writer StreamWriter) {
	b.mu.Lock()
	_, existed := b.streams[id]
	b.streams[id] = streamingClient{id: id, pattern: pattern, writer: writer}
	n := len(b.streams)
	b.mu.Unlock()
	if !existed {
		streamingClientsGauge.Set(float64(n))
	}
}

// RemoveStreamingClient unregisters a streaming client. Removing an unknown
// id is a no-op.
func (b *Bus) RemoveStreamingClient(id string) {
	b.mu.Lock()
	delete(b.streams, id)
	n := len(b.streams)
	b.mu.Unlock()
	streamingClientsGauge.Set(float64(n))
}

// RecentEvents returns up to limit events from the ring buffer in publish
// order (oldest first among the returned slice), optionally filtered by
// pattern. limit <= 0 means "no limit" (return everything retained).
func (b *Bus) RecentEvents(limit int, pattern string) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []Event
	for i := 0; i < b.count; i++ {
		ev := b.ring[(b.start+i)%b.capacity]
		if pattern == "" || matches(pattern, ev.Name) {
			out = append(out, ev)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// CriticalEvents returns up to limit persisted critical events, most recent
// first, optionally filtered by exact event name.
func (b *Bus) CriticalEvents(ctx context.Context, limit int, name string) ([]CriticalRecord, error) {
	return b.audit.criticalEvents(ctx, limit, name)
}
