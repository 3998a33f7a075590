package workflow

import (
	"strings"
	"time"

	"github.com/BaSui01/nodegraph/types"
	"github.com/google/uuid"
)

// EventType defines the type of a lifecycle event.
type EventType string

const (
	EventWorkflowInitiated EventType = "workflow.execution.initiated"
	EventWorkflowStreaming EventType = "workflow.execution.streaming"
	EventWorkflowFulfilled EventType = "workflow.execution.fulfilled"
	EventWorkflowPaused    EventType = "workflow.execution.paused"
	EventWorkflowRejected  EventType = "workflow.execution.rejected"

	EventNodeInitiated EventType = "node.execution.initiated"
	EventNodeStreaming EventType = "node.execution.streaming"
	EventNodeFulfilled EventType = "node.execution.fulfilled"
	EventNodeRejected  EventType = "node.execution.rejected"
)

// IsWorkflowEvent reports whether the event describes the workflow as a whole.
func (t EventType) IsWorkflowEvent() bool { return strings.HasPrefix(string(t), "workflow.") }

// IsTerminal reports whether no further events follow for the execution.
func (t EventType) IsTerminal() bool {
	return t == EventWorkflowFulfilled || t == EventWorkflowPaused || t == EventWorkflowRejected
}

// Event is one lifecycle event of an execution.
type Event struct {
	Type        EventType `json:"type"`
	ExecutionID string    `json:"execution_id"`
	ParentID    string    `json:"parent_id,omitempty"`
	Workflow    string    `json:"workflow"`
	NodeID      uuid.UUID `json:"node_id,omitempty"`
	NodeName    string    `json:"node_name,omitempty"`
	// Name and Delta are set on streaming events. Final marks the value passed
	// to Yield as opposed to an intermediate Stream delta.
	Name      string         `json:"name,omitempty"`
	Delta     any            `json:"delta,omitempty"`
	Final     bool           `json:"final,omitempty"`
	Outputs   map[string]any `json:"outputs,omitempty"`
	Error     *types.Error   `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// IterationPhase tags an IndexedDelta.
type IterationPhase string

const (
	PhaseInitiated IterationPhase = "initiated"
	PhaseStreaming IterationPhase = "streaming"
	PhaseFulfilled IterationPhase = "fulfilled"
)

// IndexedDelta is the streaming delta a Map node emits for one iteration.
type IndexedDelta struct {
	Value any            `json:"value,omitempty"`
	Index int            `json:"index"`
	Phase IterationPhase `json:"phase"`
}

// EventFilter decides which events reach a stream consumer.
type EventFilter func(Event) bool

// AllEvents passes every event.
func AllEvents(Event) bool { return true }

// WorkflowEventsOnly passes workflow-level events.
func WorkflowEventsOnly(e Event) bool { return e.Type.IsWorkflowEvent() }
