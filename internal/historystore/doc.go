/*
包 historystore 提供基于 Redis 的执行历史存储，实现 workflow.HistoryStore。

# 概述

RedisStore 将每次根执行的 ExecutionHistory 序列化为 JSON 存入
<prefix>exec:<execution_id>，并在有序集合 <prefix>workflow:<name>
中按开始时间建立索引，ListByWorkflow 据此按时间顺序返回历史。
配置 TTL 后两类键都会过期，索引中的过期成员在下次列举时被清理。

# 使用

	store, err := historystore.New(cfg.History, logger)
	engine := workflow.NewEngine(workflow.WithHistoryStore(store))
*/
package historystore
