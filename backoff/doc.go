// Package backoff 提供批次准入控制策略。
//
// 协调器在派发前调用 ShouldApply；返回 true 的批次被直接判定为失败并进入
// 故障转移路径，不发生任何网络请求。被接纳的批次在派发前 Register，
// 在唯一的终态上 Deregister。
package backoff
