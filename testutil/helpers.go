// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 提供通用的测试辅助函数和断言
//
// 使用方法:
//
//	ctx := testutil.TestContext(t)
//	testutil.AssertEventuallyTrue(t, func() bool { return cluster.Count("POST /_bulk") == 2 }, 5*time.Second)
// =============================================================================
package testutil

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/BaSui01/bulkflow/types"
)

// =============================================================================
// 🎯 上下文辅助
// =============================================================================

// TestContext 返回带超时的测试上下文
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestContextWithTimeout 返回带自定义超时的测试上下文
func TestContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 返回已取消的上下文
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// =============================================================================
// 🔍 断言辅助
// =============================================================================

// AssertErrorCode 断言错误链中包含指定错误码
func AssertErrorCode(t *testing.T, err error, code types.ErrorCode) {
	t.Helper()
	if err == nil {
		t.Errorf("expected error with code %s but got nil", code)
		return
	}
	if !types.IsErrorCode(err, code) {
		t.Errorf("expected error code %s, got %v", code, err)
	}
}

// AssertEventuallyTrue 断言条件最终为真
func AssertEventuallyTrue(t *testing.T, condition func() bool, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Errorf("condition did not become true within %v", timeout)
}

// =============================================================================
// 📄 NDJSON 辅助
// =============================================================================

// SplitNDJSON 将批量请求体拆分为非空行
func SplitNDJSON(body string) []string {
	lines := strings.Split(body, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// AssertNDJSON 断言请求体由 wantLines 行合法 JSON 组成且以换行结尾
func AssertNDJSON(t *testing.T, body string, wantLines int) {
	t.Helper()

	if body != "" && !strings.HasSuffix(body, "\n") {
		t.Errorf("NDJSON body must end with a newline: %q", body)
	}
	lines := SplitNDJSON(body)
	if len(lines) != wantLines {
		t.Errorf("expected %d NDJSON lines, got %d", wantLines, len(lines))
	}
	for i, line := range lines {
		if !json.Valid([]byte(line)) {
			t.Errorf("line %d is not valid JSON: %s", i, line)
		}
	}
}
