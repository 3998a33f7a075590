// =============================================================================
// 📦 测试数据工厂 - 工作流样例
// =============================================================================
// 提供预定义的工作流，用于 workflow 包之外的集成测试
// =============================================================================
package fixtures

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/BaSui01/nodegraph/types"
	"github.com/BaSui01/nodegraph/workflow"
)

// =============================================================================
// 🔗 线性流水线
// =============================================================================

// Pipeline 返回 steps 个节点组成的链，每个节点把上游的 value 加一。
// 第一个节点读取输入 start，工作流输出 result 为最后一个节点的 value。
func Pipeline(name string, steps int) (*workflow.Workflow, error) {
	if steps < 1 {
		return nil, fmt.Errorf("pipeline needs at least one step, got %d", steps)
	}

	var (
		items []workflow.Composable
		prev  workflow.Descriptor = workflow.Input("start")
		last  *workflow.Node
	)
	for i := 1; i <= steps; i++ {
		n, err := workflow.NewNode(fmt.Sprintf("step%d", i), increment,
			workflow.WithOutputs("value"),
			workflow.WithAttributes(map[string]any{"in": prev}))
		if err != nil {
			return nil, err
		}
		items = append(items, n)
		prev = n.MustOutput("value")
		last = n
	}

	graph, err := workflow.Chain(items...)
	if err != nil {
		return nil, err
	}
	return workflow.NewWorkflow(name, graph,
		workflow.WithInputs("start"),
		workflow.WithOutput("result", last.MustOutput("value")))
}

func increment(_ context.Context, rc *workflow.RunContext) error {
	in, err := workflow.AttrAs[int](rc, "in")
	if err != nil {
		return err
	}
	return rc.Yield("value", in+1)
}

// =============================================================================
// 🔁 map(retry(fetch))
// =============================================================================

// FlakyFetch 描述 FlakyFetchWorkflow 的运行情况
type FlakyFetch struct {
	Workflow *workflow.Workflow
	// Calls 记录 fetch 被调用的总次数
	Calls *atomic.Int32
}

// FlakyFetchWorkflow 返回 map(retry(fetch)) 工作流，遍历输入 urls。
// 前 failures 次 fetch 调用以 PROVIDER_ERROR 失败，之后返回 "page:<url>"。
// 迭代串行执行，失败次数因此可预测。
func FlakyFetchWorkflow(failures, maxAttempts int) (*FlakyFetch, error) {
	calls := &atomic.Int32{}
	fetch, err := workflow.NewNode("fetch", func(_ context.Context, rc *workflow.RunContext) error {
		if calls.Add(1) <= int32(failures) {
			return types.NewError(types.ErrProviderError, "upstream unavailable")
		}
		url, _ := rc.Input("item")
		return rc.Yield("page", fmt.Sprintf("page:%v", url))
	}, workflow.WithOutputs("page"))
	if err != nil {
		return nil, err
	}

	retried, err := workflow.Wrap(workflow.RetryConfig{MaxAttempts: maxAttempts}, fetch)
	if err != nil {
		return nil, err
	}
	mapped, err := workflow.Wrap(workflow.MapConfig{Items: workflow.Input("urls"), MaxConcurrency: 1}, retried)
	if err != nil {
		return nil, err
	}

	graph, err := workflow.Chain(mapped)
	if err != nil {
		return nil, err
	}
	wf, err := workflow.NewWorkflow("flaky_fetch", graph,
		workflow.WithInputs("urls"),
		workflow.WithOutput("pages", fetch.MustOutput("page")))
	if err != nil {
		return nil, err
	}
	return &FlakyFetch{Workflow: wf, Calls: calls}, nil
}
