// MockCluster 文档存储集群的测试模拟实现。
//
// 基于 httptest 提供批量写入与启动资源接口，
// 支持条目级失败注入、请求级状态码覆盖与延迟模拟。
package mocks

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/bulkflow/testutil/fixtures"
)

// --- MockCluster 结构 ---

// RecordedRequest 记录单次请求
type RecordedRequest struct {
	Method   string
	Path     string
	RawQuery string
	Header   http.Header
	Body     string
}

// Key 返回 "METHOD path" 形式的请求标识
func (r RecordedRequest) Key() string {
	return r.Method + " " + r.Path
}

// MockCluster 是文档存储集群的模拟实现
type MockCluster struct {
	mu sync.Mutex

	server *httptest.Server

	// 行为控制
	bulkStatus int
	rootError  string
	itemStatus func(seq int, source string) int
	delay      time.Duration
	existing   map[string]bool

	// 调用记录
	requests  []RecordedRequest
	documents []string
}

// --- 构造函数和 Builder 方法 ---

// NewMockCluster 启动模拟集群，测试结束时自动关闭
func NewMockCluster(t testing.TB) *MockCluster {
	t.Helper()
	m := &MockCluster{
		bulkStatus: http.StatusOK,
		existing:   make(map[string]bool),
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.serve))
	t.Cleanup(m.server.Close)
	return m
}

// WithBulkStatus 所有批量请求返回指定状态码与请求级错误
func (m *MockCluster) WithBulkStatus(status int, rootError string) *MockCluster {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bulkStatus = status
	m.rootError = rootError
	return m
}

// WithItemStatus 按文档序号与内容决定条目状态码（>= 300 视为失败）
func (m *MockCluster) WithItemStatus(fn func(seq int, source string) int) *MockCluster {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.itemStatus = fn
	return m
}

// WithDelay 设置响应延迟
func (m *MockCluster) WithDelay(d time.Duration) *MockCluster {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithExisting 标记已存在的资源路径，例如 "/logs" 或 "/_data_stream/metrics"
func (m *MockCluster) WithExisting(paths ...string) *MockCluster {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range paths {
		m.existing[p] = true
	}
	return m
}

// --- 查询方法 ---

// URL 返回集群地址
func (m *MockCluster) URL() string {
	return m.server.URL
}

// Requests 返回全部请求记录的副本
func (m *MockCluster) Requests() []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RecordedRequest(nil), m.requests...)
}

// BulkRequests 返回批量请求记录
func (m *MockCluster) BulkRequests() []RecordedRequest {
	var out []RecordedRequest
	for _, r := range m.Requests() {
		if strings.HasSuffix(r.Path, "/_bulk") {
			out = append(out, r)
		}
	}
	return out
}

// Documents 返回所有批量请求中收到的文档（按到达顺序）
func (m *MockCluster) Documents() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.documents...)
}

// Count 统计 "METHOD path" 请求次数
func (m *MockCluster) Count(key string) int {
	n := 0
	for _, r := range m.Requests() {
		if r.Key() == key {
			n++
		}
	}
	return n
}

// Exists 资源当前是否存在
func (m *MockCluster) Exists(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.existing[path]
}

// --- 请求处理 ---

func (m *MockCluster) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	m.mu.Lock()
	m.requests = append(m.requests, RecordedRequest{
		Method:   r.Method,
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
		Header:   r.Header.Clone(),
		Body:     string(body),
	})
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	w.Header().Set("Content-Type", "application/json")

	if strings.HasSuffix(r.URL.Path, "/_bulk") && r.Method == http.MethodPost {
		m.serveBulk(w, r.URL.Path, body)
		return
	}

	switch r.Method {
	case http.MethodHead, http.MethodGet:
		if m.Exists(r.URL.Path) {
			w.WriteHeader(http.StatusOK)
			if r.Method == http.MethodGet {
				_, _ = io.WriteString(w, `{}`)
			}
			return
		}
		w.WriteHeader(http.StatusNotFound)
	case http.MethodPut:
		m.mu.Lock()
		m.existing[r.URL.Path] = true
		m.mu.Unlock()
		_, _ = io.WriteString(w, `{"acknowledged":true}`)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (m *MockCluster) serveBulk(w http.ResponseWriter, path string, body []byte) {
	m.mu.Lock()
	status, rootError, itemStatus := m.bulkStatus, m.rootError, m.itemStatus
	m.mu.Unlock()

	if status != http.StatusOK {
		w.WriteHeader(status)
		if rootError != "" {
			_, _ = io.WriteString(w, fixtures.RootError(status, "mock_exception", rootError))
		}
		return
	}

	defaultIndex := strings.TrimSuffix(strings.TrimPrefix(path, "/"), "_bulk")
	defaultIndex = strings.TrimSuffix(defaultIndex, "/")

	var items []fixtures.BulkItem
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		actionLine := bytes.TrimSpace(scanner.Bytes())
		if len(actionLine) == 0 {
			continue
		}
		var action map[string]struct {
			Index string `json:"_index"`
			Type  string `json:"_type"`
			ID    string `json:"_id"`
		}
		if err := json.Unmarshal(actionLine, &action); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, fixtures.RootError(http.StatusBadRequest, "parse_exception", err.Error()))
			return
		}
		if !scanner.Scan() {
			break
		}
		source := string(bytes.TrimSpace(scanner.Bytes()))

		for name, meta := range action {
			item := fixtures.BulkItem{Action: name, Index: meta.Index, Type: meta.Type, ID: meta.ID, Status: http.StatusCreated}
			if item.Index == "" {
				item.Index = defaultIndex
			}

			m.mu.Lock()
			seq := len(m.documents)
			m.documents = append(m.documents, source)
			m.mu.Unlock()

			if itemStatus != nil {
				if s := itemStatus(seq, source); s >= 300 {
					item.Status = s
					item.ErrorType = "mapper_parsing_exception"
					item.Reason = "failed to parse"
				}
			}
			items = append(items, item)
		}
	}

	_, _ = io.WriteString(w, fixtures.BulkResponse(1, items...))
}
