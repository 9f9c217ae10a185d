// Package testutil provides testing utilities for the shop ETL pipeline.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// MockSource is a configurable paginated JSON API for testing. Each
// registered path serves a fixed dataset sliced by the page and
// per_page query parameters; pages past the data answer with an empty
// array, the way the real shop API signals exhaustion.
type MockSource struct {
	server *httptest.Server

	mu        sync.RWMutex
	datasets  map[string][]map[string]any
	failPages map[string]map[int]int // path -> page -> status code
	delay     time.Duration

	// RequestCount is the total number of requests served.
	RequestCount int
	// PageRequests tracks requested pages per path.
	PageRequests map[string][]int
}

// NewMockSource creates a mock shop API server.
func NewMockSource() *MockSource {
	mock := &MockSource{
		datasets:     make(map[string][]map[string]any),
		failPages:    make(map[string]map[int]int),
		PageRequests: make(map[string][]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))

	return mock
}

// URL returns the mock server base URL.
func (m *MockSource) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockSource) Close() {
	m.server.Close()
}

// SetDataset serves records for a path, sliced into pages.
func (m *MockSource) SetDataset(path string, records []map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.datasets[path] = records
}

// GenerateDataset fills a path with n synthetic records keyed by "id".
func (m *MockSource) GenerateDataset(path string, n int) {
	records := make([]map[string]any, 0, n)
	for i := 1; i <= n; i++ {
		records = append(records, map[string]any{
			"id":    fmt.Sprintf("%s-%04d", path[1:], i),
			"index": i,
		})
	}
	m.SetDataset(path, records)
}

// FailPage makes one page of a path answer with the given status code.
func (m *MockSource) FailPage(path string, page, statusCode int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPages[path] == nil {
		m.failPages[path] = make(map[int]int)
	}
	m.failPages[path][page] = statusCode
}

// SetDelay delays every response, for timeout testing.
func (m *MockSource) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// Reset clears tracking counters.
func (m *MockSource) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.PageRequests = make(map[string][]int)
}

// GetRequestCount returns the number of requests served.
func (m *MockSource) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetPageRequests returns the pages requested for a path.
func (m *MockSource) GetPageRequests(path string) []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pages := make([]int, len(m.PageRequests[path]))
	copy(pages, m.PageRequests[path])
	return pages
}

func (m *MockSource) handle(w http.ResponseWriter, r *http.Request) {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	perPage, err := strconv.Atoi(r.URL.Query().Get("per_page"))
	if err != nil || perPage < 1 {
		perPage = 100
	}

	m.mu.Lock()
	m.RequestCount++
	m.PageRequests[r.URL.Path] = append(m.PageRequests[r.URL.Path], page)
	delay := m.delay
	failStatus := 0
	if pages, ok := m.failPages[r.URL.Path]; ok {
		failStatus = pages[page]
	}
	records := m.datasets[r.URL.Path]
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	if failStatus != 0 {
		http.Error(w, `{"error": "injected failure"}`, failStatus)
		return
	}

	start := (page - 1) * perPage
	end := min(start+perPage, len(records))
	if start > len(records) {
		start = len(records)
	}

	slice := records[start:end]
	if slice == nil {
		slice = []map[string]any{}
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(slice); err != nil {
		return
	}
}
