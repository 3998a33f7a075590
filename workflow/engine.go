package workflow

import (
	"context"
	"maps"
	"time"

	"github.com/BaSui01/nodegraph/internal/channel"
	"github.com/BaSui01/nodegraph/types"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	// DefaultMaxNodeExecutions bounds node runs per execution.
	DefaultMaxNodeExecutions = 10000
	// DefaultEventBuffer is the initial capacity of an execution's event pipe.
	DefaultEventBuffer = 64

	tracerName = "github.com/BaSui01/nodegraph/workflow"
)

// MetricsRecorder receives execution measurements. internal/metrics.Collector
// implements it with Prometheus.
type MetricsRecorder interface {
	RecordWorkflowExecution(workflow, status string, duration time.Duration)
	RecordNodeExecution(node, status string, duration time.Duration)
	RecordRetryAttempt(node, outcome string)
	RecordMapIteration(node, status string)
}

type nopMetrics struct{}

func (nopMetrics) RecordWorkflowExecution(string, string, time.Duration) {}
func (nopMetrics) RecordNodeExecution(string, string, time.Duration)     {}
func (nopMetrics) RecordRetryAttempt(string, string)                     {}
func (nopMetrics) RecordMapIteration(string, string)                     {}

// Engine runs workflows. An Engine is safe for concurrent use; each call to
// Stream or Run is an independent execution.
type Engine struct {
	logger                *zap.Logger
	tracer                trace.Tracer
	metrics               MetricsRecorder
	history               HistoryStore
	maxNodeExecutions     int
	defaultMapConcurrency int
	eventBuffer           int
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithTracer sets the tracer used for workflow and node spans.
func WithTracer(tracer trace.Tracer) EngineOption {
	return func(e *Engine) {
		if tracer != nil {
			e.tracer = tracer
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m MetricsRecorder) EngineOption {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithHistoryStore sets where root execution histories are saved.
func WithHistoryStore(s HistoryStore) EngineOption {
	return func(e *Engine) { e.history = s }
}

// WithMaxNodeExecutions bounds node runs per execution.
func WithMaxNodeExecutions(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxNodeExecutions = n
		}
	}
}

// WithDefaultMapConcurrency sets the worker ceiling for Map nodes that do not
// configure one. Zero means one worker per item.
func WithDefaultMapConcurrency(n int) EngineOption {
	return func(e *Engine) {
		if n >= 0 {
			e.defaultMapConcurrency = n
		}
	}
}

// WithEventBuffer sets the initial event pipe capacity.
func WithEventBuffer(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.eventBuffer = n
		}
	}
}

// NewEngine creates an engine.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		logger:            zap.NewNop(),
		tracer:            otel.Tracer(tracerName),
		metrics:           nopMetrics{},
		maxNodeExecutions: DefaultMaxNodeExecutions,
		eventBuffer:       DefaultEventBuffer,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("component", "workflow_engine"))
	return e
}

// Logger returns the engine logger.
func (e *Engine) Logger() *zap.Logger { return e.logger }

// History returns the configured history store, or nil.
func (e *Engine) History() HistoryStore { return e.history }

// RunOption configures one execution.
type RunOption func(*runConfig)

type runConfig struct {
	executionID string
	state       *State
	filter      EventFilter
	trigger     *Trigger
	payload     map[string]any
	parent      *run
}

// WithExecutionID sets the execution ID instead of generating one.
func WithExecutionID(id string) RunOption {
	return func(c *runConfig) { c.executionID = id }
}

// WithState runs against an existing state.
func WithState(s *State) RunOption {
	return func(c *runConfig) { c.state = s }
}

// WithEventFilter selects which events reach the stream.
func WithEventFilter(f EventFilter) RunOption {
	return func(c *runConfig) {
		if f != nil {
			c.filter = f
		}
	}
}

// WithTrigger starts the execution from t's edges with the given payload.
func WithTrigger(t *Trigger, payload map[string]any) RunOption {
	return func(c *runConfig) {
		c.trigger = t
		c.payload = maps.Clone(payload)
	}
}

func withParent(p *run) RunOption {
	return func(c *runConfig) { c.parent = p }
}

// Stream starts an execution and returns its events. The channel is closed
// after the terminal workflow event. Callers must drain it or cancel ctx.
func (e *Engine) Stream(ctx context.Context, wf *Workflow, inputs map[string]any, opts ...RunOption) <-chan Event {
	cfg := runConfig{filter: AllEvents}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.executionID == "" {
		cfg.executionID = uuid.NewString()
	}
	if cfg.state == nil {
		if cfg.parent != nil {
			cfg.state = cfg.parent.state
		} else {
			cfg.state = NewState(nil)
		}
	}

	pipe := channel.NewUnbounded[Event](ctx, e.eventBuffer)
	r := newRun(e, wf, inputs, cfg, pipe)
	go func() {
		defer pipe.Close()
		r.execute(ctx)
	}()
	return pipe.Out()
}

// Result is the outcome of Run.
type Result struct {
	ExecutionID string
	Status      ExecutionStatus
	Outputs     map[string]any
}

// Run executes wf to completion. A rejected run returns its *types.Error; a
// paused run returns an error wrapping ErrPaused.
func (e *Engine) Run(ctx context.Context, wf *Workflow, inputs map[string]any, opts ...RunOption) (*Result, error) {
	opts = append(append([]RunOption(nil), opts...), WithEventFilter(WorkflowEventsOnly))

	res := &Result{Status: ExecutionStatusRunning}
	var runErr error
	for ev := range e.Stream(ctx, wf, inputs, opts...) {
		res.ExecutionID = ev.ExecutionID
		switch ev.Type {
		case EventWorkflowFulfilled:
			res.Status = ExecutionStatusCompleted
			res.Outputs = ev.Outputs
		case EventWorkflowPaused:
			res.Status = ExecutionStatusPaused
			runErr = ErrPaused
		case EventWorkflowRejected:
			res.Status = ExecutionStatusFailed
			if ev.Error != nil {
				runErr = ev.Error
			} else {
				runErr = types.NewError(types.ErrInternalError, "rejected without an error")
			}
		}
	}

	if res.Status == ExecutionStatusRunning {
		if err := ctx.Err(); err != nil {
			return res, types.NewError(types.ErrNodeCancelled, "execution cancelled").WithCause(err)
		}
		return res, types.NewError(types.ErrInternalError, "event stream ended without a terminal event")
	}
	return res, runErr
}
