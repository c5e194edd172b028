/*
Package testutil 提供 bulkflow 测试的共享工具和辅助函数。

# 概述

testutil 包为各包的单元测试与端到端测试提供统一的辅助能力，
避免重复实现相似的测试基础设施。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 断言工具: AssertErrorCode 按错误码断言错误链
  - 异步断言: AssertEventuallyTrue，超时轮询等待条件满足
  - NDJSON: SplitNDJSON / AssertNDJSON 校验批量请求体

# 子包

  - testutil/mocks: MockCluster，基于 httptest 的文档存储模拟，
    支持批量写入、资源探测与创建，以及条目级失败注入
  - testutil/fixtures: 批量响应与 NDJSON 文档工厂

# 使用示例

	cluster := mocks.NewMockCluster(t).
	    WithItemStatus(func(seq int, _ string) int { return 201 })
	ctx := testutil.TestContext(t)
	testutil.AssertEventuallyTrue(t, func() bool { return len(cluster.Documents()) == 10 }, 5*time.Second)
*/
package testutil
