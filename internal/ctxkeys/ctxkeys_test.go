package ctxkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExecutionKeys(t *testing.T) {
	ctx := context.Background()

	_, ok := ExecutionID(ctx)
	assert.False(t, ok)

	ctx = WithExecutionID(ctx, "exec-1")
	ctx = WithParentExecutionID(ctx, "exec-0")
	ctx = WithTraceID(ctx, "trace-1")

	id, ok := ExecutionID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "exec-1", id)

	parent, ok := ParentExecutionID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "exec-0", parent)

	trace, ok := TraceID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "trace-1", trace)

	_, ok = TraceID(WithTraceID(context.Background(), ""))
	assert.False(t, ok)
}

func TestIterationAndAttempt(t *testing.T) {
	ctx := context.Background()

	_, ok := IterationIndex(ctx)
	assert.False(t, ok)

	idx, ok := IterationIndex(WithIterationIndex(ctx, 0))
	assert.True(t, ok)
	assert.Equal(t, 0, idx)

	n, ok := AttemptNumber(WithAttemptNumber(ctx, 3))
	assert.True(t, ok)
	assert.Equal(t, 3, n)

	_, ok = AttemptNumber(WithAttemptNumber(ctx, 0))
	assert.False(t, ok)
}
