package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ShayCichocki/geodecomp/pkg/models"
	"github.com/google/uuid"
)

var (
	// ErrUnknownTask indicates the requested sub-agent id was never spawned.
	ErrUnknownTask = errors.New("unknown task")
	// ErrInvalidTransition indicates an invalid status transition was attempted.
	ErrInvalidTransition = errors.New("invalid state transition")
)

// Status is the lifecycle state of a spawned sub-agent.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusFailed
}

var validTransitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusRunning: true,
		StatusFailed:  true,
	},
	StatusRunning: {
		StatusDone:   true,
		StatusFailed: true,
	},
	StatusDone:   {},
	StatusFailed: {},
}

// CanTransition checks if a status transition is valid.
func CanTransition(from, to Status) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// LifecycleEventType represents the type of sub-agent lifecycle event.
type LifecycleEventType string

const (
	LifecycleEventSpawned   LifecycleEventType = "spawned"
	LifecycleEventStarted   LifecycleEventType = "started"
	LifecycleEventCompleted LifecycleEventType = "completed"
	LifecycleEventFailed    LifecycleEventType = "failed"
)

// LifecycleEvent describes one status change of a sub-agent.
type LifecycleEvent struct {
	Type       LifecycleEventType
	TaskID     string
	Task       string
	Profile    models.Profile
	FromStatus Status
	ToStatus   Status
	Timestamp  time.Time
	Error      string
}

// LifecycleEventHandler handles sub-agent lifecycle events.
type LifecycleEventHandler func(LifecycleEvent)

// Record is a snapshot of a spawned sub-agent.
type Record struct {
	ID         string
	Task       string
	Profile    models.Profile
	Status     Status
	Output     string
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns how long the sub-agent ran, or has been running.
func (r Record) Duration() time.Duration {
	if r.StartedAt.IsZero() {
		return 0
	}
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// WorkFunc performs a sub-agent's work.
type WorkFunc func(ctx context.Context) (string, error)

type entry struct {
	record Record
	done   chan struct{}
}

// Registry spawns sub-agents and tracks them until they finish.
type Registry struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	order    []string
	handlers []LifecycleEventHandler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
	}
}

// OnEvent registers a handler called for every lifecycle event.
func (r *Registry) OnEvent(handler LifecycleEventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, handler)
}

func (r *Registry) emit(event LifecycleEvent) {
	r.mu.RLock()
	handlers := make([]LifecycleEventHandler, len(r.handlers))
	copy(handlers, r.handlers)
	r.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
}

// Spawn starts fn in its own goroutine and returns the new sub-agent id.
// fn receives ctx; cancelling it is the only way to stop the sub-agent.
func (r *Registry) Spawn(ctx context.Context, task string, profile models.Profile, fn WorkFunc) string {
	id := uuid.New().String()
	e := &entry{
		record: Record{
			ID:      id,
			Task:    task,
			Profile: profile,
			Status:  StatusPending,
		},
		done: make(chan struct{}),
	}

	r.mu.Lock()
	r.entries[id] = e
	r.order = append(r.order, id)
	r.mu.Unlock()

	r.emit(LifecycleEvent{
		Type:      LifecycleEventSpawned,
		TaskID:    id,
		Task:      task,
		Profile:   profile,
		ToStatus:  StatusPending,
		Timestamp: time.Now(),
	})

	go r.run(ctx, e, fn)
	return id
}

func (r *Registry) run(ctx context.Context, e *entry, fn WorkFunc) {
	defer close(e.done)

	if err := r.transition(e, StatusRunning, "", nil); err != nil {
		return
	}

	output, err := safeCall(ctx, fn)
	if err != nil {
		r.transition(e, StatusFailed, output, err)
		return
	}
	r.transition(e, StatusDone, output, nil)
}

func safeCall(ctx context.Context, fn WorkFunc) (output string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("sub-agent panic: %v", rec)
		}
	}()
	return fn(ctx)
}

func (r *Registry) transition(e *entry, to Status, output string, runErr error) error {
	r.mu.Lock()
	from := e.record.Status
	if !CanTransition(from, to) {
		r.mu.Unlock()
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidTransition, from, to)
	}
	now := time.Now()
	e.record.Status = to
	switch to {
	case StatusRunning:
		e.record.StartedAt = now
	case StatusDone, StatusFailed:
		e.record.FinishedAt = now
		e.record.Output = output
		e.record.Err = runErr
	}
	event := LifecycleEvent{
		TaskID:     e.record.ID,
		Task:       e.record.Task,
		Profile:    e.record.Profile,
		FromStatus: from,
		ToStatus:   to,
		Timestamp:  now,
	}
	r.mu.Unlock()

	switch to {
	case StatusRunning:
		event.Type = LifecycleEventStarted
	case StatusDone:
		event.Type = LifecycleEventCompleted
	case StatusFailed:
		event.Type = LifecycleEventFailed
		if runErr != nil {
			event.Error = runErr.Error()
		}
	}
	r.emit(event)
	return nil
}

// Status returns the current status of a sub-agent.
func (r *Registry) Status(id string) (Status, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}
	return e.record.Status, nil
}

// Get returns a snapshot of a sub-agent.
func (r *Registry) Get(id string) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}
	return e.record, nil
}

// Await blocks until the sub-agent finishes or ctx is done, and returns
// its output. A failed sub-agent returns its error.
func (r *Registry) Await(ctx context.Context, id string) (string, error) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}

	select {
	case <-e.done:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return e.record.Output, e.record.Err
}

// List returns snapshots of all sub-agents in spawn order.
func (r *Registry) List() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	records := make([]Record, 0, len(r.order))
	for _, id := range r.order {
		records = append(records, r.entries[id].record)
	}
	return records
}

// ListByStatus returns the sub-agents currently in status.
func (r *Registry) ListByStatus(status Status) []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var records []Record
	for _, id := range r.order {
		if rec := r.entries[id].record; rec.Status == status {
			records = append(records, rec)
		}
	}
	return records
}

// Remove forgets a finished sub-agent.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}
	if !e.record.Status.IsTerminal() {
		return fmt.Errorf("%w: cannot remove %s sub-agent", ErrInvalidTransition, e.record.Status)
	}
	delete(r.entries, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}
