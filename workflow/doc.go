// Copyright (c) nodegraph Authors.
// Licensed under the MIT License.

/*
Package workflow 提供基于图的工作流构建与执行引擎。

# 概述

节点（Node）声明端口（Port）、输出（Output）与合并策略（MergeBehavior），
通过显式的组合 API 归约为 Graph，再由 Engine 按依赖顺序单线程执行，
并以事件流的形式输出中间增量与最终结果。

# 核心接口与类型

  - Node / Port: 节点与出边端口（always / if / elif / else）
  - Trigger: 只能作为边起点的图入口，属性引用在定义时一次性生成
  - Graph: Compose / Connect / FanOut / FromSet / Chain / Union
  - Workflow: 图 + 声明的输入输出，Resolve 负责包装节点输出重定向
  - Adornable: 包装基类接口，内置 RetryConfig / MapConfig / TryConfig
  - Engine: Stream 返回生命周期事件流，Run 阻塞直至终态
  - RunContext: 节点运行时视图：Attr / Stream / Yield / StreamSubworkflow
  - State: 带 Reducer 的并发安全状态，Fork 为 Map 迭代提供隔离快照

# 主要能力

  - 合并策略：AWAIT_ANY、AWAIT_ALL、AWAIT_ATTRIBUTES
  - Map：errgroup 限流并发，按下标聚合输出，迭代失败保留原错误码并标注下标
  - Retry：每次尝试独立超时（取消尝试上下文）、按错误码或条件重试、尝试间延迟
  - Try：捕获内部节点失败并写入 error 输出
  - 稳定标识：StableID 基于 UUIDv5，Describe 导出 JSON / YAML 定义文档，Build 可还原
  - 执行历史：ExecutionHistory + HistoryStore（内存或 Redis）
*/
package workflow
