package delegation

import (
	"testing"
	"time"
)

func TestStateStoreLoadMissingFileReturnsEmpty(t *testing.T) {
	s := newStateStore(t.TempDir())
	state, err := s.load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(state.Outbound) != 0 || len(state.Inbound) != 0 {
		t.Fatalf("expected empty state, got %+v", state)
	}
}

func TestStateStoreSaveLoadRoundTrip(t *testing.T) {
	s := newStateStore(t.TempDir())
	want := persistedState{
		Outbound: []outboundEntry{
			{TaskID: "t1", TargetHost: "h1", TargetPort: 9001, Title: "do it", SentAt: time.Now().UTC().Truncate(time.Second), Timeout: 300, LocalTaskID: "task-1"},
		},
		Inbound: []inboundEntry{
			{TaskID: "t2", OriginHost: "h2", OriginPort: 9002, OriginNode: "node-x", ReceivedAt: time.Now().UTC().Truncate(time.Second), LocalTaskID: "task-2"},
		},
	}
	if err := s.save(want); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got.Outbound) != 1 || got.Outbound[0].TaskID != "t1" || got.Outbound[0].LocalTaskID != "task-1" {
		t.Fatalf("unexpected outbound state: %+v", got.Outbound)
	}
	if len(got.Inbound) != 1 || got.Inbound[0].TaskID != "t2" || got.Inbound[0].OriginNode != "node-x" {
		t.Fatalf("unexpected inbound state: %+v", got.Inbound)
	}
}

func TestEngineLoadRestoresPersistedEntries(t *testing.T) {
	dir := t.TempDir()
	s := newStateStore(dir)
	seed := persistedState{
		Outbound: []outboundEntry{
			{TaskID: "t1", TargetHost: "h1", TargetPort: 1, Title: "x", SentAt: time.Now().UTC(), Timeout: 60, LocalTaskID: "task-1"},
		},
	}
	if err := s.save(seed); err != nil {
		t.Fatalf("save: %v", err)
	}

	keys, err := GenerateLocalKeyService("node-a")
	if err != nil {
		t.Fatalf("GenerateLocalKeyService: %v", err)
	}
	e := New(Config{DataDir: dir}, keys, NewStaticPeerDirectory(nil), NewInMemoryTaskSink(), nil, nil)
	if err := e.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	ids := e.OutboundTaskIDs()
	if len(ids) != 1 || ids[0] != "t1" {
		t.Fatalf("expected outbound entry t1 restored, got %v", ids)
	}
}
