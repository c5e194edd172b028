// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 delivery 负责单个批次从准入到终态的完整生命周期。

# 生命周期

	CREATED ──(backoff 拒绝)──────────────────────────────▶ FAILED
	CREATED ──▶ DISPATCHED ──(响应成功)──────────────────▶ SUCCEEDED
	            DISPATCHED ──(响应失败 / 传输错误)─────────▶ FAILED

所有终态都恰好执行一次清理：先从 backoff 策略注销，再调用 batch.Completed()。
backoff 拒绝的批次从未注册，因此只释放批次。

# 失败处理

失败时，批次中的每一条文档都会单独构造 FailedItem 并投递到故障转移策略，
N 条文档对应 N 次 Deliver。故障转移策略与派发后操作中的错误和 panic
只记录日志，不会阻止清理。

# 使用方式

	coord, _ := delivery.New(client, backoff.NewBatchLimitPolicy(8), logger)
	emitter, _ := bulk.NewEmitter(cfg, newBuilder, coord.BatchListener(failoverPolicy), logger)
*/
package delivery
