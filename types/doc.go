// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 bulkflow 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 bulk、transport、delivery、
setup 等上层模块提供统一的错误契约与上下文键，以避免循环依赖。

# 核心类型

  - Error / ErrorCode 结构化错误体系：CONFIGURATION、TRANSPORT、PROTOCOL、
    SETUP_STEP、NO_SERVERS、BATCH_RELEASED、MIXED_TARGET
  - WithBatchID / BatchID：批次 ID 在 context 中传播，用于日志关联

# 错误传播约定

  - 配置错误在构造阶段立即返回，不做恢复
  - 传输与协议错误路由到失败处理器，不会抛入 I/O goroutine
  - 启动链中的 FAILURE 结果以 SETUP_STEP 错误呈现给调用方
*/
package types
