package workflow

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/BaSui01/nodegraph/types"
	"go.uber.org/zap"
)

// RunContext is the per-execution view a node body gets: attribute resolution,
// state, output streaming and, for wrapper nodes, subworkflow execution.
// A new RunContext is created for every execution of a node.
type RunContext struct {
	run    *run
	node   *Node
	logger *zap.Logger

	mu      sync.Mutex
	outputs map[string]any
}

func newRunContext(r *run, n *Node, logger *zap.Logger) *RunContext {
	return &RunContext{
		run:     r,
		node:    n,
		logger:  logger,
		outputs: make(map[string]any),
	}
}

// Node returns the executing node.
func (rc *RunContext) Node() *Node { return rc.node }

// ExecutionID returns the ID of the enclosing execution.
func (rc *RunContext) ExecutionID() string { return rc.run.id }

// Logger returns a logger scoped to the node and execution.
func (rc *RunContext) Logger() *zap.Logger { return rc.logger }

// State returns the execution state.
func (rc *RunContext) State() *State { return rc.run.state }

// Input returns a workflow input, looking through enclosing executions.
func (rc *RunContext) Input(name string) (any, bool) {
	return rc.run.resolve(Input(name))
}

// Resolve resolves any descriptor in the current execution.
func (rc *RunContext) Resolve(d Descriptor) (any, bool) {
	return rc.run.resolve(d)
}

// Attr returns the attribute value, resolving descriptors.
func (rc *RunContext) Attr(name string) (any, error) {
	v, ok := rc.node.attributes[name]
	if !ok {
		return nil, types.Errorf(types.ErrInvalidInputs, "node %q has no attribute %q", rc.node.name, name)
	}
	d, isRef := v.(Descriptor)
	if !isRef {
		return v, nil
	}
	resolved, ok := rc.run.resolve(d)
	if !ok {
		return nil, types.Errorf(types.ErrInvalidInputs, "node %q attribute %q: %s is not resolvable", rc.node.name, name, d)
	}
	return resolved, nil
}

// AttrAs returns a resolved attribute converted to T.
func AttrAs[T any](rc *RunContext, name string) (T, error) {
	var zero T
	v, err := rc.Attr(name)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, types.Errorf(types.ErrInvalidInputs, "node %q attribute %q: expected %T, got %T", rc.node.name, name, zero, v)
	}
	return t, nil
}

// Stream emits a non-final delta for a declared output.
func (rc *RunContext) Stream(name string, delta any) error {
	ref, err := rc.node.Output(name)
	if err != nil {
		return err
	}
	rc.emitOutput(ref, delta, false)
	return nil
}

// Yield sets the final value of a declared output.
func (rc *RunContext) Yield(name string, value any) error {
	ref, err := rc.node.Output(name)
	if err != nil {
		return err
	}
	rc.mu.Lock()
	rc.outputs[name] = value
	rc.mu.Unlock()
	rc.emitOutput(ref, value, true)
	return nil
}

func (rc *RunContext) emitOutput(ref *OutputReference, value any, final bool) {
	r := rc.run
	r.emit(Event{
		Type:     EventNodeStreaming,
		NodeID:   rc.node.id,
		NodeName: rc.node.name,
		Name:     ref.name,
		Delta:    value,
		Final:    final,
	})
	for _, wfOutput := range r.streamed[ref.id] {
		r.emit(Event{Type: EventWorkflowStreaming, Name: wfOutput, Delta: value, Final: final})
	}
}

// Outputs returns a copy of the values yielded so far.
func (rc *RunContext) Outputs() map[string]any {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return maps.Clone(rc.outputs)
}

// Adornment returns the adornment of a wrapper node, or nil.
func (rc *RunContext) Adornment() *Adornment { return rc.node.adornment }

// StreamSubworkflow executes the wrapper's subworkflow as a child of this
// execution and returns its workflow-level events. Attribute references the
// subworkflow cannot resolve fall back to this execution.
func (rc *RunContext) StreamSubworkflow(ctx context.Context, inputs map[string]any, state *State) (<-chan Event, error) {
	a := rc.node.adornment
	if a == nil {
		return nil, types.Errorf(types.ErrInvalidState, "node %q is not a wrapper", rc.node.name)
	}
	if state == nil {
		state = rc.run.state
	}
	return rc.run.engine.Stream(ctx, a.Subworkflow, inputs,
		withParent(rc.run),
		WithState(state),
		WithEventFilter(WorkflowEventsOnly),
	), nil
}

// metrics returns the engine's metrics recorder.
func (rc *RunContext) metrics() MetricsRecorder { return rc.run.engine.metrics }

func (rc *RunContext) String() string {
	return fmt.Sprintf("%s@%s", rc.node.name, rc.run.id)
}
