/*
包 metrics 提供基于 Prometheus 的工作流执行指标采集能力。

# 概述

Collector 实现 workflow.MetricsRecorder，通过 workflow.WithMetrics
注入执行引擎。指标使用 promauto 注册，默认注册到全局 Registry，
也可以通过 NewCollectorWith 指定独立的 Registerer（测试中常用）。

# 指标

  - workflow_executions_total / workflow_execution_duration_seconds：
    按 workflow/status 分组。
  - node_executions_total / node_execution_duration_seconds：
    按 node/status 分组，包装节点以包装名（如 fetch.retry）计数。
  - retry_attempts_total：按 node/outcome（success、failure、timeout）分组。
  - map_iterations_total：按 node/status 分组。
*/
package metrics
