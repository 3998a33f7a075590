// Package telemetry 封装 OpenTelemetry SDK 初始化逻辑，
// 为 nodegraph 执行引擎提供 TracerProvider 和 MeterProvider。
// 引擎为每次工作流执行和节点执行各创建一个 span（workflow.<name>、node.<name>）。
// 当遥测功能禁用时，使用 noop 实现，不连接任何外部服务。
package telemetry
