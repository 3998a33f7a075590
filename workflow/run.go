package workflow

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"runtime/debug"
	"sync"
	"time"

	"github.com/BaSui01/nodegraph/internal/channel"
	"github.com/BaSui01/nodegraph/internal/ctxkeys"
	"github.com/BaSui01/nodegraph/types"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// run is one execution of a workflow. Traversal happens on a single goroutine;
// only output storage and emission are touched from other goroutines.
type run struct {
	engine  *Engine
	wf      *Workflow
	id      string
	inputs  map[string]any
	state   *State
	cfg     runConfig
	parent  *run
	pipe    *channel.Unbounded[Event]
	logger  *zap.Logger
	history *ExecutionHistory

	// ctx is the execution context, used for emission.
	ctx context.Context

	mu      sync.RWMutex
	outputs map[uuid.UUID]any

	incoming map[*Node]int
	outgoing map[*Port][]Edge
	// streamed maps a node output ID to the workflow outputs it backs.
	streamed map[uuid.UUID][]string
}

func newRun(e *Engine, wf *Workflow, inputs map[string]any, cfg runConfig, pipe *channel.Unbounded[Event]) *run {
	r := &run{
		engine:   e,
		wf:       wf,
		id:       cfg.executionID,
		inputs:   maps.Clone(inputs),
		state:    cfg.state,
		cfg:      cfg,
		parent:   cfg.parent,
		pipe:     pipe,
		outputs:  make(map[uuid.UUID]any),
		incoming: make(map[*Node]int),
		outgoing: make(map[*Port][]Edge),
		streamed: make(map[uuid.UUID][]string),
	}
	if r.inputs == nil {
		r.inputs = make(map[string]any)
	}

	fields := []zap.Field{zap.String("workflow", wf.name), zap.String("execution_id", r.id)}
	if r.parent != nil {
		fields = append(fields, zap.String("parent_execution_id", r.parent.id))
	}
	r.logger = e.logger.With(fields...)

	for _, edge := range wf.graph.edges {
		r.incoming[edge.Target]++
		r.outgoing[edge.Source] = append(r.outgoing[edge.Source], edge)
	}
	for _, name := range wf.outputNames {
		if ref, ok := wf.outputs[name].(*OutputReference); ok {
			id := wf.Resolve(ref).id
			r.streamed[id] = append(r.streamed[id], name)
		}
	}
	return r
}

func (r *run) emit(ev Event) {
	ev.ExecutionID = r.id
	ev.Workflow = r.wf.name
	if r.parent != nil {
		ev.ParentID = r.parent.id
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	if !r.cfg.filter(ev) {
		return
	}
	if err := r.pipe.Send(r.ctx, ev); err != nil {
		r.logger.Debug("event dropped", zap.String("type", string(ev.Type)), zap.Error(err))
	}
}

func (r *run) execute(ctx context.Context) {
	ctx = ctxkeys.WithExecutionID(ctx, r.id)
	if r.parent != nil {
		ctx = ctxkeys.WithParentExecutionID(ctx, r.parent.id)
	}
	ctx, span := r.engine.tracer.Start(ctx, "workflow."+r.wf.name,
		trace.WithAttributes(
			attribute.String("workflow.name", r.wf.name),
			attribute.String("workflow.execution_id", r.id),
		))
	defer span.End()
	if sc := span.SpanContext(); sc.HasTraceID() {
		ctx = ctxkeys.WithTraceID(ctx, sc.TraceID().String())
	}
	r.ctx = ctx

	if r.parent == nil && r.engine.history != nil {
		r.history = NewExecutionHistory(r.id, r.wf.name)
	}

	start := time.Now()
	r.logger.Debug("workflow started")
	r.emit(Event{Type: EventWorkflowInitiated})

	outputs, err := r.traverse(ctx)

	status := ExecutionStatusCompleted
	switch {
	case errors.Is(err, ErrPaused):
		status = ExecutionStatusPaused
	case err != nil:
		status = ExecutionStatusFailed
	}

	r.engine.metrics.RecordWorkflowExecution(r.wf.name, string(status), time.Since(start))
	// Save history before the terminal event so it is readable once Run returns.
	if r.history != nil {
		r.history.Complete(status, err)
		if saveErr := r.engine.history.Save(context.WithoutCancel(ctx), r.history); saveErr != nil {
			r.logger.Warn("failed to save execution history", zap.Error(saveErr))
		}
	}

	switch status {
	case ExecutionStatusPaused:
		r.logger.Info("workflow paused")
		r.emit(Event{Type: EventWorkflowPaused})
	case ExecutionStatusFailed:
		te := toExecutionError(err)
		span.RecordError(te)
		span.SetStatus(codes.Error, te.Message)
		r.logger.Warn("workflow rejected", zap.String("code", string(te.Code)), zap.String("message", te.Message))
		r.emit(Event{Type: EventWorkflowRejected, Error: te})
	default:
		r.logger.Debug("workflow fulfilled", zap.Duration("duration", time.Since(start)))
		r.emit(Event{Type: EventWorkflowFulfilled, Outputs: outputs})
	}
}

func (r *run) traverse(ctx context.Context) (map[string]any, error) {
	if err := r.checkInputs(); err != nil {
		return nil, err
	}

	var (
		queue   []*Node
		queued  = make(map[*Node]bool)
		pending = make(map[*Node]map[Edge]struct{})
		waiting []*Node
		parked  = make(map[*Node]bool)
	)
	enqueue := func(n *Node) {
		delete(parked, n)
		if queued[n] {
			return
		}
		queued[n] = true
		queue = append(queue, n)
	}

	if t := r.cfg.trigger; t != nil {
		for _, te := range r.wf.graph.triggerEdges {
			if te.Trigger == t {
				enqueue(te.Target)
			}
		}
		if len(queue) == 0 {
			return nil, types.Errorf(types.ErrInvalidInputs, "trigger %q does not start workflow %q", t.name, r.wf.name)
		}
	} else {
		for _, p := range r.wf.graph.entrypoints {
			enqueue(p.node)
		}
	}

	steps := 0
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, types.NewError(types.ErrNodeCancelled, "execution cancelled").WithCause(err)
		}

		n := queue[0]
		queue = queue[1:]
		queued[n] = false

		if n.merge == AwaitAttributes && !r.attributesResolvable(n) {
			if !parked[n] {
				parked[n] = true
				waiting = append(waiting, n)
			}
			continue
		}

		steps++
		if steps > r.engine.maxNodeExecutions {
			return nil, types.Errorf(types.ErrInvalidState, "exceeded %d node executions", r.engine.maxNodeExecutions)
		}

		outputs, err := r.runNode(ctx, n)
		if err != nil {
			return nil, err
		}

		fired, err := selectPorts(n.ports, r.exprVars(outputs))
		if err != nil {
			return nil, types.NewError(types.ErrNodeExecution, err.Error()).WithCause(err)
		}
		for _, p := range fired {
			for _, edge := range r.outgoing[p] {
				target := edge.Target
				if target.merge != AwaitAll {
					enqueue(target)
					continue
				}
				seen := pending[target]
				if seen == nil {
					seen = make(map[Edge]struct{})
					pending[target] = seen
				}
				seen[edge] = struct{}{}
				if len(seen) >= r.incoming[target] {
					delete(pending, target)
					enqueue(target)
				}
			}
		}

		still := waiting[:0]
		for _, w := range waiting {
			if !parked[w] {
				continue
			}
			if r.attributesResolvable(w) {
				enqueue(w)
				continue
			}
			still = append(still, w)
		}
		waiting = still
	}

	for _, w := range waiting {
		if parked[w] {
			r.logger.Debug("node never became ready", zap.String("node", w.name))
		}
	}
	return r.collectOutputs(), nil
}

func (r *run) checkInputs() error {
	for _, name := range r.wf.inputs {
		if _, ok := r.inputs[name]; !ok {
			return types.Errorf(types.ErrInvalidInputs, "missing input %q", name)
		}
	}
	return nil
}

func (r *run) runNode(ctx context.Context, n *Node) (map[string]any, error) {
	logger := r.logger.With(zap.String("node", n.name))
	rc := newRunContext(r, n, logger)

	spanAttrs := []attribute.KeyValue{
		attribute.String("node.name", n.name),
		attribute.String("node.id", n.id.String()),
	}
	if n.adornment != nil {
		spanAttrs = append(spanAttrs, attribute.String("node.adornment", n.adornment.Kind))
	}
	ctx, span := r.engine.tracer.Start(ctx, "node."+n.name, trace.WithAttributes(spanAttrs...))
	defer span.End()

	var rec *NodeExecution
	if r.history != nil {
		rec = r.history.RecordNodeStart(n)
	}

	r.emit(Event{Type: EventNodeInitiated, NodeID: n.id, NodeName: n.name})
	logger.Debug("node started")
	start := time.Now()

	err := invoke(ctx, n, rc)
	duration := time.Since(start)
	outputs := rc.Outputs()

	if errors.Is(err, ErrPaused) {
		r.engine.metrics.RecordNodeExecution(n.name, string(ExecutionStatusPaused), duration)
		if rec != nil {
			r.history.RecordNodeEnd(rec, ExecutionStatusPaused, outputs, nil)
		}
		return nil, ErrPaused
	}
	if err != nil {
		te := toExecutionError(err)
		span.RecordError(te)
		span.SetStatus(codes.Error, te.Message)
		r.engine.metrics.RecordNodeExecution(n.name, string(ExecutionStatusFailed), duration)
		if rec != nil {
			r.history.RecordNodeEnd(rec, ExecutionStatusFailed, outputs, te)
		}
		logger.Debug("node rejected", zap.String("code", string(te.Code)), zap.Error(te))
		r.emit(Event{Type: EventNodeRejected, NodeID: n.id, NodeName: n.name, Error: te})
		return nil, te
	}

	r.storeOutputs(n, outputs)
	r.engine.metrics.RecordNodeExecution(n.name, string(ExecutionStatusCompleted), duration)
	if rec != nil {
		r.history.RecordNodeEnd(rec, ExecutionStatusCompleted, outputs, nil)
	}
	logger.Debug("node fulfilled", zap.Duration("duration", duration))
	r.emit(Event{Type: EventNodeFulfilled, NodeID: n.id, NodeName: n.name, Outputs: outputs})
	return outputs, nil
}

// invoke runs the node body and turns panics into INTERNAL_ERROR failures.
func invoke(ctx context.Context, n *Node, rc *RunContext) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = types.Errorf(types.ErrInternalError, "node %q panicked: %v", n.name, p).
				WithCause(fmt.Errorf("%v\n%s", p, debug.Stack()))
		}
	}()
	return n.body(ctx, rc)
}

// toExecutionError maps any error to a coded execution failure.
func toExecutionError(err error) *types.Error {
	if te, ok := types.AsError(err); ok {
		return te
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return types.NewError(types.ErrTimeout, err.Error()).WithCause(err)
	case errors.Is(err, context.Canceled):
		return types.NewError(types.ErrNodeCancelled, err.Error()).WithCause(err)
	}
	return types.WrapError(err, types.ErrNodeExecution)
}

func (r *run) storeOutputs(n *Node, outputs map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, v := range outputs {
		if ref, ok := n.outputRefs[name]; ok {
			r.outputs[ref.id] = v
		}
	}
}

// resolve looks a descriptor up in this run, then in enclosing runs.
func (r *run) resolve(d Descriptor) (any, bool) {
	switch ref := d.(type) {
	case *OutputReference:
		r.mu.RLock()
		v, ok := r.outputs[ref.id]
		if !ok {
			if target, redirected := r.wf.redirects[ref.id]; redirected {
				v, ok = r.outputs[target.id]
			}
		}
		r.mu.RUnlock()
		if ok {
			return v, true
		}
	case *InputReference:
		if v, ok := r.inputs[ref.name]; ok {
			return v, true
		}
	case *StateReference:
		return r.state.Get(ref.key)
	case *TriggerAttribute:
		if r.cfg.trigger == ref.trigger {
			v, ok := r.cfg.payload[ref.name]
			return v, ok
		}
	}
	if r.parent != nil {
		return r.parent.resolve(d)
	}
	return nil, false
}

func (r *run) attributesResolvable(n *Node) bool {
	for _, d := range n.descriptors() {
		if _, ok := r.resolve(d); !ok {
			return false
		}
	}
	return true
}

// exprVars builds the variables port conditions and retry conditions see:
// state keys and outputs at the top level, plus "state", "inputs" and
// "outputs" namespaces.
func (r *run) exprVars(outputs map[string]any) map[string]any {
	state := r.state.Values()
	vars := make(map[string]any, len(state)+len(outputs)+3)
	for k, v := range state {
		vars[k] = v
	}
	for k, v := range outputs {
		vars[k] = v
	}
	vars["state"] = state
	vars["inputs"] = r.inputs
	vars["outputs"] = outputs
	return vars
}

func (r *run) collectOutputs() map[string]any {
	out := make(map[string]any, len(r.wf.outputNames))
	for _, name := range r.wf.outputNames {
		if v, ok := r.resolve(r.wf.outputs[name]); ok {
			out[name] = v
		}
	}
	return out
}
