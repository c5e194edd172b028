/*
包 server 提供指标暴露服务器的生命周期管理，支持非阻塞启动与优雅关闭。

# 概述

Manager 封装 net/http.Server，统一管理监听、服务、关闭与错误传播。
NewMetricsHandler 构建 /metrics（Prometheus 文本格式）与 /healthz
两个端点，由 Pipeline 在配置了 metrics.listen_addr 时启动。

# 核心类型

  - Manager：持有 http.Server、net.Listener 与异步错误通道，
    提供 Start/Shutdown/Errors/Addr/IsRunning。
  - Config：监听地址、读写超时与优雅关闭超时。
  - HealthFunc：健康检查回调，返回错误时 /healthz 响应 503。
*/
package server
