// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的投递链路指标采集能力，覆盖
请求、批次、故障转移、启动链与服务器池五个维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标。注册器由调用方
注入（promauto.With），测试可使用独立的 prometheus.NewRegistry()。
所有指标按 namespace 隔离。指标是纯观测性的：Collector 为 nil 时
所有记录方法都是空操作，不会影响投递行为。

# 主要能力

  - 请求指标：请求总数（按 method/status 分组）、耗时、负载大小。
  - 批次指标：按终态（succeeded/failed/rejected）计数与条目数分布，
    在途批次 Gauge。
  - 故障转移指标：交付给故障转移策略的条目数（delivered/error）。
  - 启动链指标：按 step/result 统计。
  - 服务器池指标：地址列表为空的次数。
*/
package metrics
