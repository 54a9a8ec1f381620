package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/scottwilkos/openspec-flow/internal/swarm"
	"github.com/scottwilkos/openspec-flow/internal/types"
)

// RunEventType identifies the type of run event.
type RunEventType string

const (
	// EventRunStarted indicates a run has started executing.
	EventRunStarted RunEventType = "run.started"

	// EventBatchStarted indicates a batch is about to execute.
	EventBatchStarted RunEventType = "batch.started"

	// EventNodeStarted indicates a node's task is being submitted.
	EventNodeStarted RunEventType = "node.started"

	// EventNodeCompleted indicates a node's task completed.
	EventNodeCompleted RunEventType = "node.completed"

	// EventNodeFailed indicates a node failed to spawn, submit, or execute.
	EventNodeFailed RunEventType = "node.failed"

	// EventNodeBlocked indicates a node was blocked by an unsatisfied
	// dependency and will not execute.
	EventNodeBlocked RunEventType = "node.blocked"

	// EventBatchCompleted indicates every node of a batch has resolved.
	EventBatchCompleted RunEventType = "batch.completed"

	// EventRunCompleted indicates the run finished, successfully or not.
	EventRunCompleted RunEventType = "run.completed"
)

// String returns the string representation of the event type.
func (t RunEventType) String() string {
	return string(t)
}

// RunEvent is one lifecycle event of an executing run. Events are emitted
// throughout execution to enable live monitoring.
type RunEvent struct {
	// Type identifies the event type.
	Type RunEventType `json:"type"`

	// RunID is the run the event belongs to.
	RunID types.ID `json:"run_id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// NodeID is set on node-scoped events.
	NodeID string `json:"node_id,omitempty"`

	// Payload contains type-specific event data.
	Payload any `json:"payload,omitempty"`
}

// RunStartedPayload describes the plan a run is about to execute.
type RunStartedPayload struct {
	PlanID  types.ID   `json:"plan_id"`
	Order   []string   `json:"order"`
	Batches [][]string `json:"batches"`
}

// BatchPayload identifies one batch and its nodes.
type BatchPayload struct {
	// Index is the zero-based batch position.
	Index int `json:"index"`

	// Total is the number of batches in the plan.
	Total int `json:"total"`

	// Nodes lists the change ids in the batch.
	Nodes []string `json:"nodes"`
}

// NodeCompletedPayload carries the outcome of a completed node.
type NodeCompletedPayload struct {
	TaskID  types.ID       `json:"task_id"`
	Elapsed time.Duration  `json:"elapsed"`
	Results map[string]any `json:"results,omitempty"`
}

// NodeFailedPayload carries the failure details of a node.
type NodeFailedPayload struct {
	Reason      string           `json:"reason"`
	FinalStatus swarm.TaskStatus `json:"final_status,omitempty"`
}

// NodeBlockedPayload names the dependencies that kept a node from running.
type NodeBlockedPayload struct {
	Blockers []string `json:"blockers"`
}

// RunCompletedPayload summarizes a finished run.
type RunCompletedPayload struct {
	Success   bool          `json:"success"`
	Completed int           `json:"completed"`
	Failed    int           `json:"failed"`
	Blocked   int           `json:"blocked"`
	Elapsed   time.Duration `json:"elapsed"`
}

// EventEmitter publishes run events to subscribers. Implementations must
// be safe for concurrent use; node events are emitted from per-node
// goroutines.
type EventEmitter interface {
	// Emit publishes an event to all subscribers.
	Emit(ctx context.Context, event RunEvent) error

	// Subscribe creates a new subscription, returning a receive channel
	// and a cleanup function that must be called to unsubscribe.
	Subscribe(ctx context.Context) (<-chan RunEvent, func())

	// Close shuts down the emitter and all subscriptions.
	Close() error
}

// DefaultEventEmitter implements EventEmitter with buffered channels. A
// subscriber that falls behind loses events rather than blocking the run.
type DefaultEventEmitter struct {
	mu          sync.RWMutex
	subscribers map[string]chan RunEvent
	bufferSize  int
	closed      bool
}

// EmitterOption configures a DefaultEventEmitter.
type EmitterOption func(*DefaultEventEmitter)

// WithBufferSize sets the buffer size for subscriber channels.
// Default is 64.
func WithBufferSize(size int) EmitterOption {
	return func(e *DefaultEventEmitter) {
		if size > 0 {
			e.bufferSize = size
		}
	}
}

// NewDefaultEventEmitter creates an emitter with optional configuration.
func NewDefaultEventEmitter(opts ...EmitterOption) *DefaultEventEmitter {
	e := &DefaultEventEmitter{
		subscribers: make(map[string]chan RunEvent),
		bufferSize:  64,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Emit publishes an event to all subscribers without blocking: a full
// subscriber channel drops the event for that subscriber only.
func (e *DefaultEventEmitter) Emit(ctx context.Context, event RunEvent) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return fmt.Errorf("event emitter is closed")
	}

	for _, ch := range e.subscribers {
		select {
		case ch <- event:
		case <-ctx.Done():
			return ctx.Err()
		default:
			// Slow subscriber; drop rather than stall the run.
		}
	}

	return nil
}

// Subscribe creates a new subscription. The cleanup function must be
// called to unsubscribe and release the channel.
func (e *DefaultEventEmitter) Subscribe(ctx context.Context) (<-chan RunEvent, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	subscriberID := types.NewID().String()
	ch := make(chan RunEvent, e.bufferSize)
	e.subscribers[subscriberID] = ch

	cleanup := func() {
		e.mu.Lock()
		defer e.mu.Unlock()

		if subCh, exists := e.subscribers[subscriberID]; exists {
			delete(e.subscribers, subscriberID)
			close(subCh)
		}
	}

	return ch, cleanup
}

// Close shuts down the emitter and closes all subscriber channels.
func (e *DefaultEventEmitter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	for id, ch := range e.subscribers {
		close(ch)
		delete(e.subscribers, id)
	}

	return nil
}

// SubscriberCount returns the number of active subscribers.
func (e *DefaultEventEmitter) SubscriberCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subscribers)
}

// newRunEvent creates an event stamped with the current time.
func newRunEvent(eventType RunEventType, runID types.ID, nodeID string, payload any) RunEvent {
	return RunEvent{
		Type:      eventType,
		RunID:     runID,
		Timestamp: time.Now(),
		NodeID:    nodeID,
		Payload:   payload,
	}
}

// Ensure DefaultEventEmitter implements EventEmitter at compile time.
var _ EventEmitter = (*DefaultEventEmitter)(nil)
