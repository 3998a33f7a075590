package workflow

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Adornable is a base behavior that can wrap a node: Retry, Map, Try, or a
// user-defined one. The wrapper delegates its run body to Run, which drives
// the synthesized single-node subworkflow through the RunContext.
type Adornable interface {
	// AdornmentKind names the behavior, e.g. "retry".
	AdornmentKind() string
	// SubworkflowInputs lists the inputs the behavior passes to each sub-run.
	SubworkflowInputs() []string
	// ExtraOutputs lists outputs the wrapper adds on top of the inner node's.
	ExtraOutputs() []string
	// Attributes exposes the configuration as node attributes.
	Attributes() map[string]any
	// Validate checks the configuration at wrap time.
	Validate() error
	// Run executes the wrapper.
	Run(ctx context.Context, rc *RunContext) error
}

// Adornment records what a wrapper node wraps. It is fixed at wrap time.
type Adornment struct {
	Kind string
	// Config is the base behavior.
	Config Adornable
	// Inner is the node the wrapper runs as its subworkflow.
	Inner *Node
	// Innermost is the first non-wrapper node down the nesting chain.
	Innermost *Node
	// Subworkflow is the single-node workflow whose graph is exactly Inner.
	Subworkflow *Workflow
}

// WrapOption configures Wrap.
type WrapOption func(*wrapConfig)

type wrapConfig struct {
	id   uuid.UUID
	name string
}

// WithWrapperID overrides the wrapper's derived node ID.
func WithWrapperID(id uuid.UUID) WrapOption {
	return func(c *wrapConfig) { c.id = id }
}

// WithWrapperName overrides the wrapper's derived name.
func WithWrapperName(name string) WrapOption {
	return func(c *wrapConfig) { c.name = name }
}

// Wrap builds a wrapper node around inner. The wrapper mirrors inner's ports,
// outputs and merge behavior, adds base's extra outputs, and takes base's
// configuration as attributes. Its ID is derived from inner's name and the
// adornment kind unless overridden.
func Wrap(base Adornable, inner *Node, opts ...WrapOption) (*Node, error) {
	if isNilAdornable(base) {
		return nil, fmt.Errorf("%w: %T does not implement Adornable", ErrNotAdornable, base)
	}
	kind := base.AdornmentKind()
	if inner == nil {
		return nil, fmt.Errorf("%w: %s needs a node to wrap", ErrNotAdornable, kind)
	}
	if err := base.Validate(); err != nil {
		return nil, fmt.Errorf("wrap %q with %s: %w", inner.name, kind, err)
	}

	cfg := wrapConfig{name: inner.name + "." + kind}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.id == uuid.Nil {
		cfg.id = StableID(cfg.name)
	}

	innermost := inner
	if inner.adornment != nil {
		innermost = inner.adornment.Innermost
	}

	sub := newWorkflow(inner.name, singleNodeGraph(inner))
	sub.inputs = base.SubworkflowInputs()
	for _, name := range inner.outputs {
		sub.outputNames = append(sub.outputNames, name)
		sub.outputs[name] = inner.outputRefs[name]
	}

	adornment := &Adornment{
		Kind:        kind,
		Config:      base,
		Inner:       inner,
		Innermost:   innermost,
		Subworkflow: sub,
	}

	outputs := inner.Outputs()
	for _, extra := range base.ExtraOutputs() {
		if !inner.HasOutput(extra) {
			outputs = append(outputs, extra)
		}
	}
	ports := make([]PortSpec, 0, len(inner.ports))
	for _, p := range inner.ports {
		ports = append(ports, PortSpec{Name: p.name, Kind: p.kind, Condition: p.Condition()})
	}

	return newNode(cfg.name, base.Run, adornment,
		WithNodeID(cfg.id),
		WithOutputs(outputs...),
		WithPorts(ports...),
		WithMergeBehavior(inner.merge),
		WithAttributes(base.Attributes()),
	)
}

// MustWrap is like Wrap but panics on error.
func MustWrap(base Adornable, inner *Node, opts ...WrapOption) *Node {
	n, err := Wrap(base, inner, opts...)
	if err != nil {
		panic(err)
	}
	return n
}

func isNilAdornable(a Adornable) bool {
	if a == nil {
		return true
	}
	v := reflect.ValueOf(a)
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func:
		return v.IsNil()
	}
	return false
}

func singleNodeGraph(n *Node) *Graph {
	return &Graph{entrypoints: n.Ports(), terminals: n.Ports()}
}

// AdornmentFactory builds an adornment base from attribute values.
type AdornmentFactory func(attrs map[string]any) (Adornable, error)

var adornments = struct {
	sync.RWMutex
	factories map[string]AdornmentFactory
}{factories: make(map[string]AdornmentFactory)}

// RegisterAdornment makes an adornment kind available to WrapNamed.
func RegisterAdornment(kind string, factory AdornmentFactory) {
	adornments.Lock()
	defer adornments.Unlock()
	adornments.factories[kind] = factory
}

// AdornmentKinds returns the registered kinds in sorted order.
func AdornmentKinds() []string {
	adornments.RLock()
	defer adornments.RUnlock()
	kinds := make([]string, 0, len(adornments.factories))
	for k := range adornments.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// WrapNamed wraps inner with the adornment registered under kind.
func WrapNamed(kind string, inner *Node, attrs map[string]any, opts ...WrapOption) (*Node, error) {
	adornments.RLock()
	factory, ok := adornments.factories[kind]
	adornments.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown adornment kind %q", ErrNotAdornable, kind)
	}
	base, err := factory(attrs)
	if err != nil {
		return nil, fmt.Errorf("adornment %q: %w", kind, err)
	}
	return Wrap(base, inner, opts...)
}

func init() {
	RegisterAdornment(retryKind, newRetryFromAttributes)
	RegisterAdornment(mapKind, newMapFromAttributes)
	RegisterAdornment(tryKind, newTryFromAttributes)
}

func intAttr(attrs map[string]any, key string) (int, bool, error) {
	v, ok := attrs[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	switch n := v.(type) {
	case int:
		return n, true, nil
	case int64:
		return int(n), true, nil
	case float64:
		if n != float64(int(n)) {
			return 0, false, fmt.Errorf("%s: %v is not an integer", key, v)
		}
		return int(n), true, nil
	default:
		return 0, false, fmt.Errorf("%s: expected integer, got %T", key, v)
	}
}

func stringAttr(attrs map[string]any, key string) (string, error) {
	v, ok := attrs[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s: expected string, got %T", key, v)
	}
	return s, nil
}

// durationAttr accepts a time.Duration, a number of seconds, or a Go duration string.
func durationAttr(attrs map[string]any, key string) (time.Duration, error) {
	v, ok := attrs[key]
	if !ok || v == nil {
		return 0, nil
	}
	switch d := v.(type) {
	case time.Duration:
		return d, nil
	case int:
		return time.Duration(d) * time.Second, nil
	case int64:
		return time.Duration(d) * time.Second, nil
	case float64:
		return time.Duration(d * float64(time.Second)), nil
	case string:
		parsed, err := time.ParseDuration(d)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", key, err)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("%s: expected duration, got %T", key, v)
	}
}
