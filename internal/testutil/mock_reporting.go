// Package testutil provides testing utilities for the report extractor.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"

	analyticsreporting "google.golang.org/api/analyticsreporting/v4"
)

// BatchGetPath is the path the reporting client posts page requests to.
const BatchGetPath = "/v4/reports:batchGet"

// MockError is an error response returned instead of a page.
type MockError struct {
	StatusCode int
	Reason     string
	Message    string
}

// MockReporting is a configurable mock of the reporting API.
type MockReporting struct {
	server *httptest.Server
	mu     sync.Mutex

	pages  map[string]*analyticsreporting.GetReportsResponse
	errors []MockError

	// Tracking
	RequestCount int
	PageTokens   []string
	LastRequest  *analyticsreporting.GetReportsRequest
}

// NewMockReporting creates and starts a mock reporting server.
func NewMockReporting() *MockReporting {
	mock := &MockReporting{
		pages: make(map[string]*analyticsreporting.GetReportsResponse),
	}
	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

// URL returns the base URL to use as the client endpoint.
func (m *MockReporting) URL() string {
	return m.server.URL + "/"
}

// Close shuts down the mock server.
func (m *MockReporting) Close() {
	m.server.Close()
}

// SetPage registers the response for a page token.
func (m *MockReporting) SetPage(token string, resp *analyticsreporting.GetReportsResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[token] = resp
}

// FailNext queues error responses returned before any page is served.
func (m *MockReporting) FailNext(errs ...MockError) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, errs...)
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockReporting) GetRequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.RequestCount
}

// GetPageTokens returns the page tokens requested, in order.
func (m *MockReporting) GetPageTokens() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.PageTokens...)
}

func (m *MockReporting) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != BatchGetPath {
		http.NotFound(w, r)
		return
	}

	var req analyticsreporting.GetReportsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, MockError{StatusCode: http.StatusBadRequest, Reason: "badRequest", Message: err.Error()})
		return
	}

	token := ""
	if len(req.ReportRequests) > 0 {
		token = req.ReportRequests[0].PageToken
	}

	m.mu.Lock()
	m.RequestCount++
	m.PageTokens = append(m.PageTokens, token)
	m.LastRequest = &req
	var queued *MockError
	if len(m.errors) > 0 {
		e := m.errors[0]
		m.errors = m.errors[1:]
		queued = &e
	}
	resp, ok := m.pages[token]
	m.mu.Unlock()

	if queued != nil {
		writeError(w, *queued)
		return
	}
	if !ok {
		resp = &analyticsreporting.GetReportsResponse{}
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

func writeError(w http.ResponseWriter, e MockError) {
	body := map[string]any{
		"error": map[string]any{
			"code":    e.StatusCode,
			"message": e.Message,
			"errors": []map[string]string{
				{"reason": e.Reason, "message": e.Message},
			},
		},
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(e.StatusCode)
	json.NewEncoder(w).Encode(body)
}

// LoadPages registers a result set of total rows split into pages of
// pageSize. Page tokens are row offsets ("0", "1000", ...), and only the first
// page carries the row count, as the real API does. Each row has one metric
// value and one dimension value derived from its index.
func (m *MockReporting) LoadPages(total, pageSize int) {
	offset := 0
	for {
		token := strconv.Itoa(offset)
		end := offset + pageSize
		if end > total {
			end = total
		}

		rows := make([]*analyticsreporting.ReportRow, 0, end-offset)
		for i := offset; i < end; i++ {
			rows = append(rows, &analyticsreporting.ReportRow{
				Dimensions: []string{fmt.Sprintf("dim-%d", i)},
				Metrics: []*analyticsreporting.DateRangeValues{
					{Values: []string{strconv.Itoa(i)}},
				},
			})
		}

		next := ""
		if end < total {
			next = strconv.Itoa(end)
		}
		data := &analyticsreporting.ReportData{Rows: rows}
		if offset == 0 {
			data.RowCount = int64(total)
		}

		m.SetPage(token, &analyticsreporting.GetReportsResponse{
			Reports: []*analyticsreporting.Report{{
				Data:          data,
				NextPageToken: next,
			}},
		})

		if next == "" {
			return
		}
		offset = end
	}
}

// NewRateLimitError creates a retryable quota error.
func NewRateLimitError() MockError {
	return MockError{
		StatusCode: http.StatusTooManyRequests,
		Reason:     "userRateLimitExceeded",
		Message:    "User Rate Limit Exceeded",
	}
}

// NewBackendError creates a retryable backend error.
func NewBackendError() MockError {
	return MockError{
		StatusCode: http.StatusInternalServerError,
		Reason:     "backendError",
		Message:    "Backend Error",
	}
}

// NewPermissionError creates a fatal permission error.
func NewPermissionError() MockError {
	return MockError{
		StatusCode: http.StatusForbidden,
		Reason:     "insufficientPermissions",
		Message:    "User does not have sufficient permissions for this profile.",
	}
}
