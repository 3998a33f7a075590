package ctxkeys

import "context"

// contextKey 用于在 context 中存储值的键类型
type contextKey string

const (
	traceIDKey         contextKey = "trace_id"
	executionIDKey     contextKey = "execution_id"
	parentExecutionKey contextKey = "parent_execution_id"
	iterationIndexKey  contextKey = "iteration_index"
	attemptNumberKey   contextKey = "attempt_number"
)

// WithTraceID 设置 TraceID
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceID 获取 TraceID
func TraceID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(traceIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithExecutionID 设置当前工作流执行 ID
func WithExecutionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, executionIDKey, id)
}

// ExecutionID 获取当前工作流执行 ID
func ExecutionID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(executionIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithParentExecutionID 设置父执行 ID（子工作流使用）
func WithParentExecutionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, parentExecutionKey, id)
}

// ParentExecutionID 获取父执行 ID
func ParentExecutionID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(parentExecutionKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithIterationIndex 设置 Map 迭代下标
func WithIterationIndex(ctx context.Context, index int) context.Context {
	return context.WithValue(ctx, iterationIndexKey, index)
}

// IterationIndex 获取 Map 迭代下标
func IterationIndex(ctx context.Context) (int, bool) {
	v, ok := ctx.Value(iterationIndexKey).(int)
	return v, ok
}

// WithAttemptNumber 设置 Retry 尝试序号（从 1 开始）
func WithAttemptNumber(ctx context.Context, n int) context.Context {
	return context.WithValue(ctx, attemptNumberKey, n)
}

// AttemptNumber 获取 Retry 尝试序号
func AttemptNumber(ctx context.Context) (int, bool) {
	v, ok := ctx.Value(attemptNumberKey).(int)
	if !ok || v <= 0 {
		return 0, false
	}
	return v, true
}
