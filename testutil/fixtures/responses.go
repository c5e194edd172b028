// =============================================================================
// 📦 测试数据工厂 - 批量响应测试数据
// =============================================================================
// 提供预定义的批量接口响应与文档数据，用于测试
// =============================================================================
package fixtures

import (
	"encoding/json"
	"fmt"
	"strings"
)

// =============================================================================
// 🎯 批量响应工厂
// =============================================================================

// BulkItem 描述批量响应中的单个条目
type BulkItem struct {
	Action    string
	Index     string
	Type      string
	ID        string
	Status    int
	ErrorType string
	Reason    string
}

// Failed 条目是否携带错误
func (i BulkItem) Failed() bool {
	return i.ErrorType != "" || i.Status >= 300
}

// BulkResponse 返回带 took/errors/items 的批量响应 JSON
func BulkResponse(took int, items ...BulkItem) string {
	errorsFlag := false
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		action := item.Action
		if action == "" {
			action = "index"
		}
		status := item.Status
		if status == 0 {
			status = 201
		}
		fields := map[string]any{"status": status}
		if item.Index != "" {
			fields["_index"] = item.Index
		}
		if item.Type != "" {
			fields["_type"] = item.Type
		}
		if item.ID != "" {
			fields["_id"] = item.ID
		}
		if item.Failed() {
			errorsFlag = true
			errType := item.ErrorType
			if errType == "" {
				errType = "mapper_parsing_exception"
			}
			fields["error"] = map[string]any{"type": errType, "reason": item.Reason}
		}
		out = append(out, map[string]any{action: fields})
	}

	return mustMarshal(map[string]any{
		"took":   took,
		"errors": errorsFlag,
		"items":  out,
	})
}

// BulkSuccess 返回 n 个成功条目的响应
func BulkSuccess(n int) string {
	items := make([]BulkItem, n)
	for i := range items {
		items[i] = BulkItem{ID: fmt.Sprintf("doc-%d", i), Status: 201}
	}
	return BulkResponse(1, items...)
}

// RootError 返回请求级错误响应
func RootError(status int, errType, reason string) string {
	return mustMarshal(map[string]any{
		"status": status,
		"error":  map[string]any{"type": errType, "reason": reason},
	})
}

// =============================================================================
// 📄 文档工厂
// =============================================================================

// Documents 返回 n 个简单 JSON 文档
func Documents(n int) []string {
	docs := make([]string, n)
	for i := range docs {
		docs[i] = fmt.Sprintf(`{"seq":%d,"message":"doc-%d"}`, i, i)
	}
	return docs
}

// NDJSON 将文档拼接为换行分隔的文本
func NDJSON(docs []string) string {
	if len(docs) == 0 {
		return ""
	}
	return strings.Join(docs, "\n") + "\n"
}

func mustMarshal(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}
