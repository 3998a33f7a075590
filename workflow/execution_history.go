package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ExecutionStatus represents the status of an execution
type ExecutionStatus string

const (
	// ExecutionStatusRunning indicates the execution is in progress
	ExecutionStatusRunning ExecutionStatus = "running"
	// ExecutionStatusCompleted indicates the execution completed successfully
	ExecutionStatusCompleted ExecutionStatus = "completed"
	// ExecutionStatusFailed indicates the execution failed
	ExecutionStatusFailed ExecutionStatus = "failed"
	// ExecutionStatusPaused indicates a node paused the execution
	ExecutionStatusPaused ExecutionStatus = "paused"
)

// NodeExecution records the execution of a single node
type NodeExecution struct {
	NodeID    string          `json:"node_id"`
	NodeName  string          `json:"node_name"`
	Adornment string          `json:"adornment,omitempty"`
	StartTime time.Time       `json:"start_time"`
	EndTime   time.Time       `json:"end_time"`
	Duration  time.Duration   `json:"duration"`
	Status    ExecutionStatus `json:"status"`
	Outputs   map[string]any  `json:"outputs,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// ExecutionHistory records the complete execution path of a workflow
type ExecutionHistory struct {
	ExecutionID string           `json:"execution_id"`
	Workflow    string           `json:"workflow"`
	StartTime   time.Time        `json:"start_time"`
	EndTime     time.Time        `json:"end_time"`
	Duration    time.Duration    `json:"duration"`
	Status      ExecutionStatus  `json:"status"`
	Nodes       []*NodeExecution `json:"nodes"`
	Error       string           `json:"error,omitempty"`
	Metadata    map[string]any   `json:"metadata,omitempty"`
	mu          sync.RWMutex
}

// NewExecutionHistory creates a new execution history
func NewExecutionHistory(executionID, workflow string) *ExecutionHistory {
	return &ExecutionHistory{
		ExecutionID: executionID,
		Workflow:    workflow,
		StartTime:   time.Now(),
		Status:      ExecutionStatusRunning,
		Nodes:       make([]*NodeExecution, 0),
		Metadata:    make(map[string]any),
	}
}

// RecordNodeStart records the start of a node execution
func (h *ExecutionHistory) RecordNodeStart(n *Node) *NodeExecution {
	h.mu.Lock()
	defer h.mu.Unlock()

	rec := &NodeExecution{
		NodeID:    n.id.String(),
		NodeName:  n.name,
		StartTime: time.Now(),
		Status:    ExecutionStatusRunning,
	}
	if n.adornment != nil {
		rec.Adornment = n.adornment.Kind
	}
	h.Nodes = append(h.Nodes, rec)
	return rec
}

// RecordNodeEnd records the end of a node execution
func (h *ExecutionHistory) RecordNodeEnd(rec *NodeExecution, status ExecutionStatus, outputs map[string]any, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rec.EndTime = time.Now()
	rec.Duration = rec.EndTime.Sub(rec.StartTime)
	rec.Outputs = outputs
	rec.Status = status
	if err != nil {
		rec.Error = err.Error()
	}
}

// Complete marks the execution as finished with the given status
func (h *ExecutionHistory) Complete(status ExecutionStatus, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.EndTime = time.Now()
	h.Duration = h.EndTime.Sub(h.StartTime)
	h.Status = status
	if err != nil {
		h.Error = err.Error()
	}
}

// GetNodes returns a copy of the node executions
func (h *ExecutionHistory) GetNodes() []*NodeExecution {
	h.mu.RLock()
	defer h.mu.RUnlock()

	nodes := make([]*NodeExecution, len(h.Nodes))
	copy(nodes, h.Nodes)
	return nodes
}

// GetNodeByName returns the first execution record for a node
func (h *ExecutionHistory) GetNodeByName(name string) *NodeExecution {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, rec := range h.Nodes {
		if rec.NodeName == name {
			return rec
		}
	}
	return nil
}

// CurrentStatus returns the status under the history lock.
func (h *ExecutionHistory) CurrentStatus() ExecutionStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.Status
}

// HistoryStore persists execution histories. Implementations must be safe for
// concurrent use.
type HistoryStore interface {
	Save(ctx context.Context, history *ExecutionHistory) error
	Get(ctx context.Context, executionID string) (*ExecutionHistory, error)
	ListByWorkflow(ctx context.Context, workflow string) ([]*ExecutionHistory, error)
}

// ErrHistoryNotFound is returned by HistoryStore.Get for unknown executions.
var ErrHistoryNotFound = errors.New("workflow: execution history not found")

// MemoryHistoryStore stores execution histories in memory
type MemoryHistoryStore struct {
	histories map[string]*ExecutionHistory
	mu        sync.RWMutex
}

// NewMemoryHistoryStore creates a new in-memory history store
func NewMemoryHistoryStore() *MemoryHistoryStore {
	return &MemoryHistoryStore{
		histories: make(map[string]*ExecutionHistory),
	}
}

// Save saves an execution history
func (s *MemoryHistoryStore) Save(_ context.Context, history *ExecutionHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.histories[history.ExecutionID] = history
	return nil
}

// Get retrieves an execution history by ID
func (s *MemoryHistoryStore) Get(_ context.Context, executionID string) (*ExecutionHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.histories[executionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHistoryNotFound, executionID)
	}
	return h, nil
}

// ListByWorkflow returns all executions for a workflow, oldest first
func (s *MemoryHistoryStore) ListByWorkflow(_ context.Context, workflow string) ([]*ExecutionHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*ExecutionHistory
	for _, h := range s.histories {
		if h.Workflow == workflow {
			result = append(result, h)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartTime.Before(result[j].StartTime) })
	return result, nil
}

// ListByStatus returns executions with a specific status
func (s *MemoryHistoryStore) ListByStatus(status ExecutionStatus) []*ExecutionHistory {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*ExecutionHistory
	for _, h := range s.histories {
		if h.CurrentStatus() == status {
			result = append(result, h)
		}
	}
	return result
}
