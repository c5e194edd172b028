// Package setup 提供幂等的服务端资源初始化链。
//
// 每个 Step 生成一个请求并把响应解释为 Success / Skip / Failure；
// Chain 依次同步执行各步骤，上一步的结果作为下一步 ShouldProcess 的输入，
// 任何一步返回 Failure 时立即停止。Provisioner 根据配置组装并发执行多条链。
package setup
