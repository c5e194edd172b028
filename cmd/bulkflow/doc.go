/*
Package main 提供 bulkflow 命令行入口。

# 概述

cmd/bulkflow 从 YAML 配置文件与 BULKFLOW_ 环境变量加载配置，
按子命令驱动批量投递流水线。

# 子命令

  - ship     从标准输入或文件读取 NDJSON 文档并批量投递
  - setup    仅执行启动资源初始化（ILM、模板、别名、数据流）
  - replay   将 Redis 故障转移列表中的文档重新投递
  - version  显示版本信息
  - help     显示帮助

# 主要能力

  - 结构化日志（zap），级别与格式来自 log 配置段
  - 可选 OpenTelemetry 导出与 Prometheus /metrics 端点
  - SIGINT/SIGTERM 触发优雅关闭：停止读取 → 发射剩余批次 → 等待在途请求
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
