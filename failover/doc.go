// Package failover 提供失败文档的兜底投递。
//
// 批次失败时，协调器为批次中的每一条文档构造 FailedItem 并逐条调用
// Policy.Deliver；策略自身的错误或 panic 只记录日志，不影响批次清理。
package failover
