package nodegraph

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/BaSui01/nodegraph/config"
	"github.com/BaSui01/nodegraph/internal/historystore"
	"github.com/BaSui01/nodegraph/internal/logging"
	"github.com/BaSui01/nodegraph/internal/metrics"
	"github.com/BaSui01/nodegraph/internal/telemetry"
	"github.com/BaSui01/nodegraph/workflow"
	"github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

// Runtime bundles an engine with the infrastructure New created for it.
type Runtime struct {
	// Engine runs workflows.
	Engine *workflow.Engine

	logger    *zap.Logger
	providers *telemetry.Providers
	history   workflow.HistoryStore
	closers   []io.Closer
}

// Option customizes New.
type Option func(*options)

type options struct {
	logger       *zap.Logger
	registerer   prometheus.Registerer
	history      workflow.HistoryStore
	spanExporter sdktrace.SpanExporter
	engineOpts   []workflow.EngineOption
}

// WithLogger replaces the logger built from cfg.Log.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRegisterer registers metrics on reg instead of the default registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithHistoryStore replaces the store selected by cfg.History.Backend.
func WithHistoryStore(s workflow.HistoryStore) Option {
	return func(o *options) { o.history = s }
}

// WithSpanExporter sends spans to exp instead of OTLP and leaves the otel
// globals untouched. Telemetry must be enabled in cfg.
func WithSpanExporter(exp sdktrace.SpanExporter) Option {
	return func(o *options) { o.spanExporter = exp }
}

// WithEngineOptions appends engine options after the ones derived from cfg.
func WithEngineOptions(opts ...workflow.EngineOption) Option {
	return func(o *options) { o.engineOpts = append(o.engineOpts, opts...) }
}

// New builds a Runtime from cfg. A nil cfg uses config.DefaultConfig.
func New(cfg *config.Config, opts ...Option) (*Runtime, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	o := options{registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(&o)
	}

	rt := &Runtime{logger: o.logger}
	if rt.logger == nil {
		logger, err := logging.New(cfg.Log)
		if err != nil {
			return nil, fmt.Errorf("build logger: %w", err)
		}
		rt.logger = logger
	}

	var topts []telemetry.Option
	if o.spanExporter != nil {
		topts = append(topts, telemetry.WithSpanExporter(o.spanExporter), telemetry.WithoutGlobal())
	}
	providers, err := telemetry.Init(cfg.Telemetry, rt.logger, topts...)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	rt.providers = providers

	engineOpts := []workflow.EngineOption{
		workflow.WithLogger(rt.logger),
		workflow.WithTracer(providers.Tracer()),
		workflow.WithMaxNodeExecutions(cfg.Engine.MaxNodeExecutions),
		workflow.WithDefaultMapConcurrency(cfg.Engine.DefaultMapConcurrency),
		workflow.WithEventBuffer(cfg.Engine.EventBuffer),
	}
	if cfg.Metrics.Enabled {
		engineOpts = append(engineOpts, workflow.WithMetrics(
			metrics.NewCollectorWith(o.registerer, cfg.Metrics.Namespace, rt.logger)))
	}

	rt.history = o.history
	if rt.history == nil && cfg.History.Enabled {
		switch cfg.History.Backend {
		case config.HistoryBackendRedis:
			store, err := historystore.New(cfg.History, rt.logger)
			if err != nil {
				_ = providers.Shutdown(context.Background())
				return nil, fmt.Errorf("init history store: %w", err)
			}
			rt.history = store
			rt.closers = append(rt.closers, store)
		default:
			rt.history = workflow.NewMemoryHistoryStore()
		}
	}
	if rt.history != nil {
		engineOpts = append(engineOpts, workflow.WithHistoryStore(rt.history))
	}

	rt.Engine = workflow.NewEngine(append(engineOpts, o.engineOpts...)...)
	rt.logger.Info("nodegraph runtime ready",
		zap.Bool("metrics", cfg.Metrics.Enabled),
		zap.Bool("telemetry", cfg.Telemetry.Enabled),
		zap.Bool("history", rt.history != nil),
	)
	return rt, nil
}

// Logger returns the runtime logger.
func (r *Runtime) Logger() *zap.Logger { return r.logger }

// History returns the history store the engine saves to, or nil.
func (r *Runtime) History() workflow.HistoryStore { return r.history }

// Close releases stores New opened and flushes telemetry.
func (r *Runtime) Close(ctx context.Context) error {
	var errs []error
	for _, c := range r.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.providers.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	_ = r.logger.Sync()
	return errors.Join(errs...)
}
