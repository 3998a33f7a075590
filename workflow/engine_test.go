package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/nodegraph/testutil"
	"github.com/BaSui01/nodegraph/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func eventTypes(events []Event) []EventType {
	out := make([]EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

// recorder tracks node execution order.
type recorder struct {
	mu    sync.Mutex
	order []string
}

func (r *recorder) mark(name string) {
	r.mu.Lock()
	r.order = append(r.order, name)
	r.mu.Unlock()
}

func (r *recorder) body(name string) Body {
	return func(context.Context, *RunContext) error {
		r.mark(name)
		return nil
	}
}

func (r *recorder) ran() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

func newTestEngine(t *testing.T, opts ...EngineOption) *Engine {
	t.Helper()
	return NewEngine(append([]EngineOption{WithLogger(zaptest.NewLogger(t))}, opts...)...)
}

func TestEngine_RunPassesOutputsDownstream(t *testing.T) {
	a := MustNode("a", func(_ context.Context, rc *RunContext) error {
		return rc.Yield("x", 1)
	}, WithOutputs("x"))
	b := MustNode("b", func(_ context.Context, rc *RunContext) error {
		in, err := AttrAs[int](rc, "in")
		if err != nil {
			return err
		}
		return rc.Yield("y", in+1)
	}, WithOutputs("y"), WithAttributes(map[string]any{"in": a.MustOutput("x")}))

	wf, err := NewWorkflow("pipeline", MustChain(a, b), WithOutput("y", b.MustOutput("y")))
	require.NoError(t, err)

	res, err := newTestEngine(t).Run(context.Background(), wf, nil)
	require.NoError(t, err)
	assert.Equal(t, ExecutionStatusCompleted, res.Status)
	assert.Equal(t, map[string]any{"y": 2}, res.Outputs)
	assert.NotEmpty(t, res.ExecutionID)
}

func TestEngine_StreamEventOrder(t *testing.T) {
	n := MustNode("writer", func(_ context.Context, rc *RunContext) error {
		for _, chunk := range []string{"he", "llo"} {
			if err := rc.Stream("text", chunk); err != nil {
				return err
			}
		}
		return rc.Yield("text", "hello")
	}, WithOutputs("text"))

	wf, err := NewWorkflow("stream", MustChain(n), WithOutput("result", n.MustOutput("text")))
	require.NoError(t, err)

	events := testutil.CollectWithin(t, newTestEngine(t).Stream(testutil.TestContext(t), wf, nil), 5*time.Second)
	assert.Equal(t, []EventType{
		EventWorkflowInitiated,
		EventNodeInitiated,
		EventNodeStreaming, EventWorkflowStreaming,
		EventNodeStreaming, EventWorkflowStreaming,
		EventNodeStreaming, EventWorkflowStreaming,
		EventNodeFulfilled,
		EventWorkflowFulfilled,
	}, eventTypes(events))

	var deltas []any
	for _, ev := range events {
		if ev.Type == EventWorkflowStreaming {
			assert.Equal(t, "result", ev.Name)
			deltas = append(deltas, ev.Delta)
		}
	}
	assert.Equal(t, []any{"he", "llo", "hello"}, deltas)
	assert.True(t, events[7].Final)
	assert.Equal(t, map[string]any{"result": "hello"}, events[len(events)-1].Outputs)

	workflowOnly := testutil.CollectWithin(t, newTestEngine(t).Stream(testutil.TestContext(t), wf, nil, WithEventFilter(WorkflowEventsOnly)), 5*time.Second)
	for _, ev := range workflowOnly {
		assert.True(t, ev.Type.IsWorkflowEvent())
	}
}

func TestEngine_ConditionalPorts(t *testing.T) {
	for _, tt := range []struct {
		score int
		want  []string
	}{
		{score: 9, want: []string{"router", "high"}},
		{score: 2, want: []string{"router", "low"}},
	} {
		rec := &recorder{}
		router := MustNode("router", func(_ context.Context, rc *RunContext) error {
			return rc.Yield("score", tt.score)
		}, WithOutputs("score"), WithPorts(If("high", "score > 5"), Else("low")))
		high := MustNode("high", rec.body("high"))
		low := MustNode("low", rec.body("low"))

		hp, _ := router.Port("high")
		lp, _ := router.Port("low")
		g := Union(MustChain(hp, high), MustChain(lp, low))

		wf, err := NewWorkflow("branch", g)
		require.NoError(t, err)
		_, err = newTestEngine(t).Run(context.Background(), wf, nil)
		require.NoError(t, err)
		assert.Equal(t, tt.want[1:], rec.ran())
	}
}

func TestEngine_AwaitAllWaitsForEveryEdge(t *testing.T) {
	for _, tt := range []struct {
		merge MergeBehavior
		want  []string
	}{
		{AwaitAll, []string{"a", "b", "c", "d"}},
		{AwaitAny, []string{"a", "b", "d", "c", "d"}},
	} {
		t.Run(string(tt.merge), func(t *testing.T) {
			rec := &recorder{}
			a := MustNode("a", rec.body("a"))
			b := MustNode("b", rec.body("b"))
			c := MustNode("c", rec.body("c"))
			d := MustNode("d", rec.body("d"), WithMergeBehavior(tt.merge))

			g := Union(MustChain(a, b, c, d), MustChain(a, d))
			wf, err := NewWorkflow("merge", g)
			require.NoError(t, err)

			_, err = newTestEngine(t).Run(context.Background(), wf, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, rec.ran())
		})
	}
}

func TestEngine_AwaitAttributes(t *testing.T) {
	rec := &recorder{}
	a := MustNode("a", rec.body("a"))
	b := MustNode("b", rec.body("b"))
	c := MustNode("c", func(_ context.Context, rc *RunContext) error {
		rec.mark("c")
		return rc.Yield("v", "late")
	}, WithOutputs("v"))
	var seen any
	d := MustNode("d", func(_ context.Context, rc *RunContext) error {
		rec.mark("d")
		v, err := rc.Attr("v")
		seen = v
		return err
	}, WithMergeBehavior(AwaitAttributes), WithAttributes(map[string]any{"v": c.MustOutput("v")}))

	g := Union(MustChain(a, d), MustChain(a, b, c))
	wf, err := NewWorkflow("attrs", g)
	require.NoError(t, err)

	_, err = newTestEngine(t).Run(context.Background(), wf, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, rec.ran())
	assert.Equal(t, "late", seen)
}

func TestEngine_NodeFailure(t *testing.T) {
	boom := errors.New("boom")
	plain := MustNode("plain", func(context.Context, *RunContext) error { return boom })
	coded := MustNode("coded", func(context.Context, *RunContext) error {
		return types.NewError(types.ErrProviderError, "upstream down")
	})
	panicky := MustNode("panicky", func(context.Context, *RunContext) error { panic("bad") })

	engine := newTestEngine(t)
	for _, tt := range []struct {
		node *Node
		code types.ErrorCode
	}{
		{plain, types.ErrNodeExecution},
		{coded, types.ErrProviderError},
		{panicky, types.ErrInternalError},
	} {
		wf, err := NewWorkflow(tt.node.Name(), MustChain(tt.node))
		require.NoError(t, err)

		res, err := engine.Run(context.Background(), wf, nil)
		require.Error(t, err)
		assert.Equal(t, ExecutionStatusFailed, res.Status)
		assert.Equal(t, tt.code, types.GetErrorCode(err), tt.node.Name())
	}
}

func TestEngine_Pause(t *testing.T) {
	rec := &recorder{}
	gate := MustNode("gate", func(context.Context, *RunContext) error { return ErrPaused })
	after := MustNode("after", rec.body("after"))

	wf, err := NewWorkflow("pause", MustChain(gate, after))
	require.NoError(t, err)

	res, err := newTestEngine(t).Run(context.Background(), wf, nil)
	assert.ErrorIs(t, err, ErrPaused)
	assert.Equal(t, ExecutionStatusPaused, res.Status)
	assert.Empty(t, rec.ran())
}

func TestEngine_Inputs(t *testing.T) {
	echo := MustNode("echo", func(_ context.Context, rc *RunContext) error {
		v, err := rc.Attr("q")
		if err != nil {
			return err
		}
		return rc.Yield("out", v)
	}, WithOutputs("out"), WithAttributes(map[string]any{"q": Input("query")}))

	_, err := NewWorkflow("bad", MustChain(echo))
	assert.ErrorIs(t, err, ErrUnknownInput)

	wf, err := NewWorkflow("echo", MustChain(echo), WithInputs("query"), WithOutput("out", echo.MustOutput("out")))
	require.NoError(t, err)

	engine := newTestEngine(t)
	res, err := engine.Run(context.Background(), wf, map[string]any{"query": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", res.Outputs["out"])

	_, err = engine.Run(context.Background(), wf, nil)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidInputs))
}

func TestNewWorkflow_Validation(t *testing.T) {
	a := newTestNode(t, "a", WithOutputs("x"))
	stranger := newTestNode(t, "stranger", WithOutputs("x"))

	_, err := NewWorkflow("w", MustChain(a), WithOutput("x", stranger.MustOutput("x")))
	assert.ErrorIs(t, err, ErrUnknownOutput)

	empty, _ := FromSet()
	_, err = NewWorkflow("w", empty)
	assert.ErrorIs(t, err, ErrEmptyGraph)
}

func TestNewWorkflow_DuplicateIdentifiers(t *testing.T) {
	a := newTestNode(t, "a")

	t.Run("nodes", func(t *testing.T) {
		b1 := newTestNode(t, "b")
		b2 := newTestNode(t, "b")
		g, err := Connect(a, NewSet(b1, b2))
		require.NoError(t, err)

		_, err = NewWorkflow("w", g)
		assert.ErrorIs(t, err, ErrDuplicateID)

		renamed := newTestNode(t, "b", WithNodeID(StableID("b.second")))
		g, err = Connect(a, NewSet(b1, renamed))
		require.NoError(t, err)
		_, err = NewWorkflow("w", g)
		assert.NoError(t, err)
	})

	t.Run("triggers", func(t *testing.T) {
		first := MustTrigger("webhook", "x")
		second := MustTrigger("webhook", "x")
		g := Union(MustChain(first, a), MustChain(second, a))
		require.Len(t, g.TriggerEdges(), 2)

		_, err := NewWorkflow("w", g)
		assert.ErrorIs(t, err, ErrDuplicateID)

		other := MustTrigger("cron", "x")
		_, err = NewWorkflow("w", Union(MustChain(first, a), MustChain(other, a)))
		require.NoError(t, err)
		assert.NotEqual(t, first.MustAttribute("x").DescriptorID(), other.MustAttribute("x").DescriptorID())
	})
}

func TestEngine_MaxNodeExecutions(t *testing.T) {
	loop := MustNode("loop", noop)
	g, err := Connect(loop, loop)
	require.NoError(t, err)
	wf, err := NewWorkflow("loop", g)
	require.NoError(t, err)

	_, err = newTestEngine(t, WithMaxNodeExecutions(5)).Run(context.Background(), wf, nil)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidState))
}

func TestEngine_Trigger(t *testing.T) {
	slack := MustTrigger("slack", "message")
	reply := MustNode("reply", func(_ context.Context, rc *RunContext) error {
		v, err := rc.Attr("msg")
		if err != nil {
			return err
		}
		return rc.Yield("text", v)
	}, WithOutputs("text"), WithAttributes(map[string]any{"msg": slack.MustAttribute("message")}))

	wf, err := NewWorkflow("bot", MustChain(slack, reply), WithOutput("text", reply.MustOutput("text")))
	require.NoError(t, err)

	engine := newTestEngine(t)
	res, err := engine.Run(context.Background(), wf, nil, WithTrigger(slack, map[string]any{"message": "ping"}))
	require.NoError(t, err)
	assert.Equal(t, "ping", res.Outputs["text"])

	other := MustTrigger("email", "message")
	_, err = engine.Run(context.Background(), wf, nil, WithTrigger(other, nil))
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidInputs))
}

func TestEngine_StateAndHistory(t *testing.T) {
	add := func(name string, n int) *Node {
		return MustNode(name, func(_ context.Context, rc *RunContext) error {
			rc.State().Set("total", n)
			return nil
		})
	}
	read := MustNode("read", func(_ context.Context, rc *RunContext) error {
		v, err := rc.Attr("total")
		if err != nil {
			return err
		}
		return rc.Yield("total", v)
	}, WithOutputs("total"), WithAttributes(map[string]any{"total": StateRef("total")}))

	wf, err := NewWorkflow("sum", MustChain(add("one", 1), add("two", 2), read), WithOutput("total", read.MustOutput("total")))
	require.NoError(t, err)

	store := NewMemoryHistoryStore()
	state := NewState(nil, WithStateReducer("total", SumReducer[int]()))
	res, err := newTestEngine(t, WithHistoryStore(store)).Run(context.Background(), wf, nil, WithState(state))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Outputs["total"])

	h, err := store.Get(context.Background(), res.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, ExecutionStatusCompleted, h.Status)
	require.Len(t, h.GetNodes(), 3)
	assert.Equal(t, "read", h.GetNodes()[2].NodeName)
	assert.Equal(t, map[string]any{"total": 3}, h.GetNodeByName("read").Outputs)

	list, err := store.ListByWorkflow(context.Background(), "sum")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestEngine_UndeclaredOutputRejects(t *testing.T) {
	n := MustNode("n", func(_ context.Context, rc *RunContext) error { return rc.Yield("nope", 1) })
	wf, err := NewWorkflow("w", MustChain(n))
	require.NoError(t, err)

	_, err = newTestEngine(t).Run(context.Background(), wf, nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrNodeExecution, types.GetErrorCode(err))
	assert.ErrorIs(t, err, ErrUnknownOutput)
}

func TestEngine_Cancellation(t *testing.T) {
	started := make(chan struct{})
	block := MustNode("block", func(ctx context.Context, _ *RunContext) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	wf, err := NewWorkflow("block", MustChain(block))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := newTestEngine(t).Run(ctx, wf, nil)
		done <- err
	}()
	<-started
	cancel()

	err, ok := testutil.WaitForChannel(done, 2*time.Second)
	require.True(t, ok, "run did not stop after cancel")
	assert.Equal(t, types.ErrNodeCancelled, types.GetErrorCode(err))
}
