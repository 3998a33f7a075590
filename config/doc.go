// Copyright (c) nodegraph Authors.
// Licensed under the MIT License.

// Package config 提供 nodegraph 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → NODEGRAPH_* 环境变量 的顺序加载，
// 覆盖执行引擎、执行历史存储、日志、Prometheus 指标和 OpenTelemetry 遥测。
package config
