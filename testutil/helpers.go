// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 提供通用的测试上下文与异步断言，不依赖任何业务包，
// 因此 workflow 包内部测试也可以直接使用
//
// 使用方法:
//
//	ctx := testutil.TestContext(t)
//	testutil.AssertEventuallyTrue(t, func() bool { return condition }, 5*time.Second)
// =============================================================================
package testutil

import (
	"context"
	"testing"
	"time"
)

// TestContext 返回带超时的测试上下文，测试结束时自动取消
func TestContext(t testing.TB) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// AssertEventuallyTrue 断言条件在超时前变为真
func AssertEventuallyTrue(t testing.TB, condition func() bool, timeout time.Duration) {
	t.Helper()

	if !WaitFor(condition, timeout) {
		t.Errorf("condition did not become true within %v", timeout)
	}
}

// WaitFor 轮询等待条件满足，超时返回 false
func WaitFor(condition func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

// =============================================================================
// 📡 事件流辅助
// =============================================================================

// WaitForChannel 等待通道接收一个值或超时
func WaitForChannel[T any](ch <-chan T, timeout time.Duration) (T, bool) {
	select {
	case v := <-ch:
		return v, true
	case <-time.After(timeout):
		var zero T
		return zero, false
	}
}

// CollectWithin 读取通道直到关闭，超时则测试失败
func CollectWithin[T any](t testing.TB, ch <-chan T, timeout time.Duration) []T {
	t.Helper()

	var items []T
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case v, ok := <-ch:
			if !ok {
				return items
			}
			items = append(items, v)
		case <-timer.C:
			t.Fatalf("channel not closed within %v (%d items received)", timeout, len(items))
			return items
		}
	}
}
