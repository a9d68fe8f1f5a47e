package eventbus

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func TestPublishNotifiesMatchingSubscribers(t *testing.T) {
	b := New(100, "", zaptest.NewLogger(t))

	var mu sync.Mutex
	var received []Event
	done := make(chan struct{}, 1)

	b.Subscribe("access.*", func(ev Event) {
		mu.Lock()
		received = append(received, ev)
		mu.Unlock()
		done <- struct{}{}
	})
	b.Subscribe("other.topic", func(ev Event) {
		t.Errorf("non-matching subscription should not fire, got %v", ev)
	})

	b.Publish(context.Background(), "access.denied", map[string]string{"agent": "a1"}, "iam")

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("subscriber was not invoked")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 || received[0].Name != "access.denied" {
		t.Fatalf("unexpected received events: %+v", received)
	}
}

func TestRingBufferEvictsOldest(t *testing.T) {
	b := New(3, "", zaptest.NewLogger(t))
	for i := 0; i < 5; i++ {
		b.Publish(context.Background(), "topic", map[string]string{"i": string(rune('0' + i))}, "test")
	}
	events := b.RecentEvents(0, "")
	if len(events) != 3 {
		t.Fatalf("expected 3 retained events, got %d", len(events))
	}
	if events[0].Payload["i"] != "2" || events[2].Payload["i"] != "4" {
		t.Fatalf("unexpected retained order: %+v", events)
	}
}

func TestRecentEventsRespectsLimitAndOrder(t *testing.T) {
	b := New(1000, "", zaptest.NewLogger(t))
	for i := 0; i < 10; i++ {
		b.Publish(context.Background(), "topic", nil, "test")
	}
	events := b.RecentEvents(4, "")
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}
}

func TestCriticalEventsPersisted(t *testing.T) {
	dir := t.TempDir()
	b := New(100, filepath.Join(dir, "audit.sqlite"), zaptest.NewLogger(t))
	defer b.Close()

	b.Publish(context.Background(), "access.denied", map[string]string{"agent": "a1"}, "iam")
	b.Publish(context.Background(), "chat.message", nil, "chat")

	records, err := b.CriticalEvents(context.Background(), 10, "")
	if err != nil {
		t.Fatalf("CriticalEvents: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 critical record, got %d: %+v", len(records), records)
	}
	if records[0].Topic != "access.denied" {
		t.Fatalf("unexpected topic: %s", records[0].Topic)
	}
	if records[0].Severity != "warning" {
		t.Fatalf("unexpected severity: %s", records[0].Severity)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New(10, "", zaptest.NewLogger(t))
	called := false
	id := b.Subscribe("*", func(Event) { called = true })
	b.Unsubscribe(id)
	b.Publish(context.Background(), "anything", nil, "test")
	time.Sleep(20 * time.Millisecond)
	if called {
		t.Error("unsubscribed handler should not be invoked")
	}
}

type fakeStreamWriter struct {
	mu  sync.Mutex
	got [][]byte
}

func (f *fakeStreamWriter) Write(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, data)
	return nil
}

func TestStreamingClientReceivesMatchingEvents(t *testing.T) {
	b := New(10, "", zaptest.NewLogger(t))
	w := &fakeStreamWriter{}
	b.AddStreamingClient("client-1", "delegation.*", w)

	b.Publish(context.Background(), "delegation.sent", nil, "xnd")
	b.Publish(context.Background(), "chat.message", nil, "chat")

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		w.mu.Lock()
		n := len(w.got)
		w.mu.Unlock()
		if n == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.got) != 1 {
		t.Fatalf("expected 1 streamed event, got %d", len(w.got))
	}
}
