// Copyright (c) nodegraph Authors.
// Licensed under the MIT License.

/*
Package testutil 提供 nodegraph 测试的共享工具和辅助函数。

# 概述

testutil 包为事件流与异步执行的单元测试提供统一的辅助能力，
避免各包重复实现相似的测试基础设施。根包不依赖任何业务包，
workflow 包的内部测试同样可以使用。

# 核心能力

  - 上下文辅助: TestContext 自动注册 Cleanup 防止泄漏
  - 异步断言: AssertEventuallyTrue / WaitFor，轮询等待条件满足
  - 通道辅助: CollectWithin / WaitForChannel，用于读取事件流

# 子包

  - testutil/mocks: MockHistoryStore，支持错误注入与调用记录
  - testutil/fixtures: 预置工作流样例，例如线性流水线与 map(retry) 组合

# 使用示例

	ctx := testutil.TestContext(t)
	events := testutil.CollectWithin(t, engine.Stream(ctx, wf, nil), 5*time.Second)
*/
package testutil
