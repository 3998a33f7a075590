package historystore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BaSui01/nodegraph/config"
	"github.com/BaSui01/nodegraph/workflow"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// =============================================================================
// 🧪 RedisStore 测试
// =============================================================================

func setupTestStore(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	mr := miniredis.RunT(t)

	cfg := config.DefaultHistoryConfig()
	cfg.Backend = config.HistoryBackendRedis
	cfg.Redis.Addr = mr.Addr()
	cfg.KeyPrefix = "test:"
	cfg.TTL = ttl

	store, err := New(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return mr, store
}

func history(id, wf string, start time.Time) *workflow.ExecutionHistory {
	h := workflow.NewExecutionHistory(id, wf)
	h.StartTime = start
	h.Complete(workflow.ExecutionStatusCompleted, nil)
	return h
}

func TestNew_ConnectionFailure(t *testing.T) {
	cfg := config.DefaultHistoryConfig()
	cfg.Redis.Addr = "127.0.0.1:1"

	_, err := New(cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestRedisStore_SaveAndGet(t *testing.T) {
	mr, store := setupTestStore(t, time.Hour)
	ctx := context.Background()

	h := history("exec-1", "research", time.Now())
	h.Nodes = append(h.Nodes, &workflow.NodeExecution{NodeName: "fetch", Status: workflow.ExecutionStatusCompleted, Outputs: map[string]any{"page": "a"}})
	require.NoError(t, store.Save(ctx, h))

	assert.True(t, mr.Exists("test:exec:exec-1"))
	assert.Equal(t, time.Hour, mr.TTL("test:exec:exec-1"))

	got, err := store.Get(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, "research", got.Workflow)
	assert.Equal(t, workflow.ExecutionStatusCompleted, got.Status)
	require.Len(t, got.GetNodes(), 1)
	assert.Equal(t, map[string]any{"page": "a"}, got.GetNodeByName("fetch").Outputs)
}

func TestRedisStore_GetMissing(t *testing.T) {
	_, store := setupTestStore(t, 0)

	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, workflow.ErrHistoryNotFound)
}

func TestRedisStore_ListByWorkflow(t *testing.T) {
	mr, store := setupTestStore(t, time.Minute)
	ctx := context.Background()
	base := time.Now()

	require.NoError(t, store.Save(ctx, history("late", "alpha", base.Add(2*time.Second))))
	require.NoError(t, store.Save(ctx, history("early", "alpha", base)))
	require.NoError(t, store.Save(ctx, history("other", "beta", base)))

	list, err := store.ListByWorkflow(ctx, "alpha")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "early", list[0].ExecutionID)
	assert.Equal(t, "late", list[1].ExecutionID)

	// 过期的条目被跳过并从索引中移除
	mr.Del("test:exec:early")
	list, err = store.ListByWorkflow(ctx, "alpha")
	require.NoError(t, err)
	require.Len(t, list, 1)
	members, err := mr.ZMembers("test:workflow:alpha")
	require.NoError(t, err)
	assert.Equal(t, []string{"late"}, members)

	mr.FastForward(2 * time.Minute)
	list, err = store.ListByWorkflow(ctx, "alpha")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRedisStore_Delete(t *testing.T) {
	mr, store := setupTestStore(t, 0)
	ctx := context.Background()

	h := history("gone", "alpha", time.Now())
	require.NoError(t, store.Save(ctx, h))
	assert.Equal(t, time.Duration(0), mr.TTL("test:exec:gone"))

	require.NoError(t, store.Delete(ctx, h))
	_, err := store.Get(ctx, "gone")
	assert.ErrorIs(t, err, workflow.ErrHistoryNotFound)
}

func TestRedisStore_Closed(t *testing.T) {
	_, store := setupTestStore(t, 0)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	ctx := context.Background()
	assert.True(t, errors.Is(store.Save(ctx, history("x", "w", time.Now())), ErrClosed))
	_, err := store.Get(ctx, "x")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = store.ListByWorkflow(ctx, "w")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, store.Ping(ctx), ErrClosed)
}

func TestRedisStore_WithEngine(t *testing.T) {
	_, store := setupTestStore(t, time.Hour)

	step := workflow.MustNode("step", func(_ context.Context, rc *workflow.RunContext) error {
		return rc.Yield("n", 1)
	}, workflow.WithOutputs("n"))
	wf, err := workflow.NewWorkflow("stored", workflow.MustChain(step))
	require.NoError(t, err)

	engine := workflow.NewEngine(workflow.WithHistoryStore(store), workflow.WithLogger(zaptest.NewLogger(t)))
	res, err := engine.Run(context.Background(), wf, nil)
	require.NoError(t, err)

	got, err := store.Get(context.Background(), res.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, workflow.ExecutionStatusCompleted, got.Status)
	require.Len(t, got.Nodes, 1)
	// JSON 往返后数字为 float64
	assert.Equal(t, map[string]any{"n": 1.0}, got.Nodes[0].Outputs)
}
