// Package config 提供 bulkflow 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量（BULKFLOW_ 前缀）的顺序加载，
// 各分区直接复用 transport、backoff、failover、setup 包的配置类型，
// 最后由可选的验证器统一校验。
package config
