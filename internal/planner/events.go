package planner

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/ShayCichocki/geodecomp/internal/phenotype"
)

// EventType represents the type of planner event.
type EventType string

const (
	// EventRunStarted is emitted once the run's limits are known.
	EventRunStarted EventType = "run_started"
	// EventStrategySelected names the strategy about to run.
	EventStrategySelected EventType = "strategy_selected"
	// EventCheckpoint is emitted for every checkpoint taken.
	EventCheckpoint EventType = "checkpoint"
	// EventRollback is emitted when an explosion forces a rollback.
	EventRollback EventType = "rollback"
	// EventNodeDecomposed is emitted when a leaf gains children.
	EventNodeDecomposed EventType = "node_decomposed"
	// EventLeafCompleted is emitted when a leaf succeeds.
	EventLeafCompleted EventType = "leaf_completed"
	// EventLeafFailed is emitted when a leaf fails.
	EventLeafFailed EventType = "leaf_failed"
	// EventVoteCompleted is emitted after a leaf is voted on.
	EventVoteCompleted EventType = "vote_completed"
	// EventPatternArchived is emitted when a pattern is written back.
	EventPatternArchived EventType = "pattern_archived"
	// EventRunCompleted is emitted at the end of every run.
	EventRunCompleted EventType = "run_completed"
)

// Event represents an event emitted by the planner.
type Event struct {
	Type  EventType
	RunID string
	// NodeID is the related tree node, or 0.
	NodeID int
	Task   string
	// Message provides additional context about the event.
	Message   string
	Error     error
	Phenotype phenotype.Phenotype
	Timestamp time.Time
}

// EventEmitter delivers planner events to a single consumer.
type EventEmitter struct {
	events       chan Event
	droppedCount atomic.Uint64
}

// NewEventEmitter creates a new EventEmitter with the given buffer size.
func NewEventEmitter(bufferSize int) *EventEmitter {
	return &EventEmitter{
		events: make(chan Event, bufferSize),
	}
}

// Emit sends an event. If the channel stays full for 100ms the event is
// dropped. Emit on a nil emitter is a no-op.
func (e *EventEmitter) Emit(event Event) {
	if e == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case e.events <- event:
		return
	default:
	}

	select {
	case e.events <- event:
		return
	case <-time.After(100 * time.Millisecond):
		count := e.droppedCount.Add(1)
		if count%10 == 1 {
			log.Printf("[planner] WARNING: Event channel full, dropped event (total dropped: %d): type=%s", count, event.Type)
		}
	}
}

// DroppedCount returns the total number of events that have been dropped.
func (e *EventEmitter) DroppedCount() uint64 {
	return e.droppedCount.Load()
}

// Events returns a read-only channel of events.
func (e *EventEmitter) Events() <-chan Event {
	return e.events
}

// Close closes the events channel.
func (e *EventEmitter) Close() {
	close(e.events)
}
