package workflow

import (
	"context"
	"fmt"
	"reflect"

	"github.com/BaSui01/nodegraph/internal/ctxkeys"
	"github.com/BaSui01/nodegraph/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const mapKind = "map"

// MapConfig runs the wrapped node once per element of Items with at most
// MaxConcurrency iterations in flight. Each iteration gets the inputs "item",
// "index" and "items" and a forked state. Every output of the wrapped node
// becomes a list ordered by index.
type MapConfig struct {
	// Items is a slice or a Descriptor resolving to one.
	Items any
	// MaxConcurrency bounds concurrent iterations. Zero falls back to the
	// engine default, then to one worker per item.
	MaxConcurrency int
}

func (c MapConfig) AdornmentKind() string { return mapKind }

func (c MapConfig) SubworkflowInputs() []string { return []string{"item", "index", "items"} }

func (c MapConfig) ExtraOutputs() []string { return nil }

func (c MapConfig) Attributes() map[string]any {
	return map[string]any{"items": c.Items, "max_concurrency": c.MaxConcurrency}
}

func (c MapConfig) Validate() error {
	if c.Items == nil {
		return fmt.Errorf("%w: map requires items", ErrInvalidNode)
	}
	if c.MaxConcurrency < 0 {
		return fmt.Errorf("%w: max_concurrency must not be negative", ErrInvalidNode)
	}
	if _, isRef := c.Items.(Descriptor); !isRef {
		if _, err := toItems(c.Items); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidNode, err)
		}
	}
	return nil
}

func newMapFromAttributes(attrs map[string]any) (Adornable, error) {
	limit, _, err := intAttr(attrs, "max_concurrency")
	if err != nil {
		return nil, err
	}
	return MapConfig{Items: attrs["items"], MaxConcurrency: limit}, nil
}

type iterationEvent struct {
	index int
	event Event
}

// Run fans the subworkflow out over the items and aggregates by index.
func (c MapConfig) Run(ctx context.Context, rc *RunContext) error {
	raw, err := rc.Attr("items")
	if err != nil {
		return err
	}
	items, err := toItems(raw)
	if err != nil {
		return types.NewError(types.ErrInvalidInputs, err.Error())
	}

	names := rc.Adornment().Subworkflow.OutputNames()
	if len(items) == 0 {
		for _, name := range names {
			if err := rc.Yield(name, []any{}); err != nil {
				return err
			}
		}
		return nil
	}

	limit := c.MaxConcurrency
	if limit <= 0 {
		limit = rc.run.engine.defaultMapConcurrency
	}
	if limit <= 0 || limit > len(items) {
		limit = len(items)
	}

	rc.Logger().Debug("map started", zap.Int("items", len(items)), zap.Int("max_concurrency", limit))

	mapCtx, cancel := context.WithCancel(ctx)
	events := make(chan iterationEvent, limit)
	go func() {
		defer close(events)
		var g errgroup.Group
		g.SetLimit(limit)
		for i := range items {
			if mapCtx.Err() != nil {
				break
			}
			g.Go(func() error {
				c.iterate(mapCtx, rc, items, i, events)
				return nil
			})
		}
		_ = g.Wait()
	}()
	defer func() {
		cancel()
		for range events {
		}
	}()

	results, err := c.collect(ctx, rc, events, len(items))
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := rc.Yield(name, results[name]); err != nil {
			return err
		}
	}
	return nil
}

// collect streams per-index progress and gathers the outputs of n
// iterations. It fails on the first rejected or paused iteration, and when
// events closes before every index has fulfilled.
func (c MapConfig) collect(ctx context.Context, rc *RunContext, events <-chan iterationEvent, n int) (map[string][]any, error) {
	nodeName := rc.Node().Name()
	names := rc.Adornment().Subworkflow.OutputNames()
	results := make(map[string][]any, len(names))
	for _, name := range names {
		results[name] = make([]any, n)
	}
	fulfilled := make([]bool, n)

	for ie := range events {
		i, ev := ie.index, ie.event
		switch ev.Type {
		case EventWorkflowInitiated:
			for _, name := range names {
				_ = rc.Stream(name, IndexedDelta{Index: i, Phase: PhaseInitiated})
			}
		case EventWorkflowStreaming:
			if !ev.Final {
				_ = rc.Stream(ev.Name, IndexedDelta{Value: ev.Delta, Index: i, Phase: PhaseStreaming})
			}
		case EventWorkflowFulfilled:
			fulfilled[i] = true
			rc.metrics().RecordMapIteration(nodeName, string(ExecutionStatusCompleted))
			for _, name := range names {
				v := ev.Outputs[name]
				results[name][i] = v
				_ = rc.Stream(name, IndexedDelta{Value: v, Index: i, Phase: PhaseFulfilled})
			}
		case EventWorkflowPaused:
			rc.metrics().RecordMapIteration(nodeName, string(ExecutionStatusPaused))
			return nil, types.Errorf(types.ErrInvalidState, "map iteration %d paused: iterations must run to completion", i)
		case EventWorkflowRejected:
			rc.metrics().RecordMapIteration(nodeName, string(ExecutionStatusFailed))
			return nil, iterationError(i, ev.Error)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, types.NewError(types.ErrNodeCancelled, "map cancelled").WithCause(err)
	}
	var missing []int
	for i, ok := range fulfilled {
		if !ok {
			missing = append(missing, i)
		}
	}
	if len(missing) > 0 {
		rc.Logger().Warn("map iterations finished without reporting", zap.Ints("indices", missing))
		return nil, types.Errorf(types.ErrNodeExecution, "map iterations %v finished without reporting", missing)
	}
	return results, nil
}

func (c MapConfig) iterate(ctx context.Context, rc *RunContext, items []any, i int, out chan<- iterationEvent) {
	ctx = ctxkeys.WithIterationIndex(ctx, i)
	inputs := map[string]any{"item": items[i], "index": i, "items": items}

	stream, err := rc.StreamSubworkflow(ctx, inputs, rc.State().Fork())
	if err != nil {
		rejected := Event{Type: EventWorkflowRejected, Error: toExecutionError(err)}
		select {
		case out <- iterationEvent{index: i, event: rejected}:
		case <-ctx.Done():
		}
		return
	}
	for ev := range stream {
		select {
		case out <- iterationEvent{index: i, event: ev}:
		case <-ctx.Done():
			return
		}
	}
}

// iterationError keeps the inner code and message and names the index.
func iterationError(index int, inner *types.Error) *types.Error {
	if inner == nil {
		return types.Errorf(types.ErrInternalError, "map iteration %d rejected without an error", index)
	}
	return types.Errorf(inner.Code, "map iteration %d failed: %s", index, inner.Message).WithCause(inner)
}

func toItems(v any) ([]any, error) {
	if items, ok := v.([]any); ok {
		return items, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("map items must be a list, got %T", v)
	}
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, nil
}
