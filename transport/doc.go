// Package transport 提供面向文档存储的异步 HTTP 传输层。
//
// 核心组件：
//   - Client: 在有界 goroutine 池上执行请求，完成回调在 I/O 协程上触发
//   - ServerPool: 轮询地址池，支持发现源整体替换地址列表
//   - ResponseHandler / BlockingHandler: 异步回调与同步等待两种结果桥接
//   - ResolveConfig: 在共享同一目标的组件之间按策略复用连接配置
package transport
