// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 bulk 提供批量写入请求的组装、序列化与响应解析。

# 概述

生产者将文档逐条加入 Builder，Build 封装为不可变的 Batch。
Batch 实现 transport.Request，序列化为换行分隔的 bulk 负载：
每个文档前有一行 action/metadata，文档本身之后以换行结束。

# 核心类型

  - Item：单个文档，持有负载与目标 index/type/id，由所属批次释放。
  - Builder：并发安全地收集文档，校验缓冲区与编解码器后封装批次。
  - Batch：一次性序列化、一次性释放；释放后任何使用都会返回错误。
  - BatchResult：bulk 响应，Succeeded 由 errors 标志与根错误推导。
  - Emitter：按批大小或投递间隔自动封装批次并交给 Listener。

# 使用方式

	b := bulk.NewBuilder().
	    WithBuffer(pool.ByteBufferPool).
	    WithSerializer(codec.JSON{}).
	    WithDeserializer(codec.JSON{})
	_ = b.Add(bulk.NewItem("logs", []byte(`{"msg":"hello"}`)))
	batch, err := b.Build()
*/
package bulk
