package delegation

import (
	"fmt"
	"sync"
	"time"
)

// LocalTask is a task tracked in the collaborator task queue, whether
// originated locally, sent out for delegation, or accepted from a peer.
type LocalTask struct {
	ID          string
	Title       string
	Description string
	Status      string // "pending", "delegated", "completed", "failed"
	Result      string
	Error       string
	CreatedAt   time.Time
}

// TaskSink is the collaborator task queue the delegation engine records
// its local side-effects into. The delegation engine depends only on this
// interface so the actual task-management system can live elsewhere.
type TaskSink interface {
	CreateTask(title, description string) (localTaskID string)
	MarkDelegated(localTaskID string)
	MarkCompleted(localTaskID, result string)
	MarkFailed(localTaskID, reason string)
	ActiveCount() int
}

// InMemoryTaskSink is the default TaskSink: an in-process map good enough
// to drive the delegation protocol end to end without a full task
// management subsystem wired in.
type InMemoryTaskSink struct {
	mu     sync.Mutex
	tasks  map[string]*LocalTask
	nextID int
}

func NewInMemoryTaskSink() *InMemoryTaskSink {
	return &InMemoryTaskSink{tasks: make(map[string]*LocalTask)}
}

func (s *InMemoryTaskSink) CreateTask(title, description string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := fmt.Sprintf("task-%d", s.nextID)
	s.tasks[id] = &LocalTask{
		ID:          id,
		Title:       title,
		Description: description,
		Status:      "pending",
		CreatedAt:   time.Now().UTC(),
	}
	return id
}

func (s *InMemoryTaskSink) MarkDelegated(localTaskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[localTaskID]; ok {
		t.Status = "delegated"
	}
}

func (s *InMemoryTaskSink) MarkCompleted(localTaskID, result string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[localTaskID]; ok {
		t.Status = "completed"
		t.Result = result
	}
}

func (s *InMemoryTaskSink) MarkFailed(localTaskID, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[localTaskID]; ok {
		t.Status = "failed"
		t.Error = reason
	}
}

// ActiveCount returns the number of tasks not yet completed or failed,
// used as get_capabilities' current load.
func (s *InMemoryTaskSink) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, t := range s.tasks {
		if t.Status == "pending" || t.Status == "delegated" {
			count++
		}
	}
	return count
}

// Get returns a snapshot of a task by id, used in tests and by the
// gateway layer to report status.
func (s *InMemoryTaskSink) Get(localTaskID string) (LocalTask, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[localTaskID]
	if !ok {
		return LocalTask{}, false
	}
	return *t, true
}
