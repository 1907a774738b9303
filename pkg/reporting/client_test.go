package reporting

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/Sternrassler/ga-report-extractor/internal/testutil"
	"github.com/Sternrassler/ga-report-extractor/pkg/retry"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

func newTestClient(t *testing.T, mock *testutil.MockReporting) *Client {
	t.Helper()

	client, err := NewClient(context.Background(), Config{Timeout: 5 * time.Second}, zerolog.Nop(),
		option.WithEndpoint(mock.URL()),
		option.WithoutAuthentication(),
	)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client
}

func TestBuildRequest(t *testing.T) {
	date := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	q := NewQuery("view-1", []string{"ga:sessions"}, []string{"ga:source", "ga:medium"}, date).
		WithCursor(CursorFromToken("2000"))

	req := BuildRequest(q)
	if len(req.ReportRequests) != 1 {
		t.Fatalf("Expected 1 report request, got %d", len(req.ReportRequests))
	}
	r := req.ReportRequests[0]

	if r.ViewId != "view-1" {
		t.Errorf("ViewId = %q", r.ViewId)
	}
	if r.DateRanges[0].StartDate != "2024-01-31" || r.DateRanges[0].EndDate != "2024-01-31" {
		t.Errorf("DateRange = %+v, want a single day", r.DateRanges[0])
	}
	if r.PageSize != 1000 || r.PageToken != "2000" {
		t.Errorf("PageSize/PageToken = %d/%q", r.PageSize, r.PageToken)
	}
	if len(r.Metrics) != 1 || r.Metrics[0].Expression != "ga:sessions" {
		t.Errorf("Metrics = %+v", r.Metrics)
	}
	if len(r.Dimensions) != 2 || r.Dimensions[0].Name != "ga:source" || r.Dimensions[1].Name != "ga:medium" {
		t.Errorf("Dimensions = %+v", r.Dimensions)
	}
	if r.OrderBys[0].FieldName != "ga:dateHourMinute" || r.SamplingLevel != "LARGE" {
		t.Errorf("OrderBys/SamplingLevel = %+v/%q", r.OrderBys[0], r.SamplingLevel)
	}
}

func TestClient_FetchPage(t *testing.T) {
	mock := testutil.NewMockReporting()
	defer mock.Close()
	mock.LoadPages(1500, 1000)

	client := newTestClient(t, mock)
	q := NewQuery("view-1", []string{"ga:sessions"}, []string{"ga:source"}, time.Now())

	page, err := client.FetchPage(context.Background(), q)
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if len(page.Rows) != 1000 {
		t.Errorf("Rows = %d, want 1000", len(page.Rows))
	}
	if page.Next.Token() != "1000" {
		t.Errorf("Next = %v, want 1000", page.Next)
	}
	if !page.HasRowCount || page.RowCount != 1500 {
		t.Errorf("RowCount = %d, want 1500", page.RowCount)
	}

	page, err = client.FetchPage(context.Background(), q.WithCursor(page.Next))
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if len(page.Rows) != 500 || !page.Next.Done() {
		t.Errorf("Second page rows = %d, next = %v", len(page.Rows), page.Next)
	}

	if tokens := mock.GetPageTokens(); len(tokens) != 2 || tokens[0] != "0" || tokens[1] != "1000" {
		t.Errorf("Requested tokens = %v", tokens)
	}
}

func TestClient_FetchPage_ClassifiesErrors(t *testing.T) {
	tests := []struct {
		name          string
		mockErr       testutil.MockError
		wantReason    string
		wantRetryable bool
	}{
		{"rate limit", testutil.NewRateLimitError(), "userRateLimitExceeded", true},
		{"backend", testutil.NewBackendError(), "backendError", true},
		{"permission", testutil.NewPermissionError(), "insufficientPermissions", false},
		{"unavailable without reason", testutil.MockError{StatusCode: http.StatusServiceUnavailable}, "Service Unavailable", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockReporting()
			defer mock.Close()
			mock.FailNext(tt.mockErr)

			client := newTestClient(t, mock)
			q := NewQuery("view-1", []string{"ga:sessions"}, nil, time.Now())

			_, err := client.FetchPage(context.Background(), q)

			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("Expected *APIError, got %v", err)
			}
			if apiErr.StatusCode != tt.mockErr.StatusCode {
				t.Errorf("StatusCode = %d, want %d", apiErr.StatusCode, tt.mockErr.StatusCode)
			}

			reason, retryable := retry.ClassifyReason(err)
			if reason != tt.wantReason || retryable != tt.wantRetryable {
				t.Errorf("ClassifyReason = (%q, %v), want (%q, %v)", reason, retryable, tt.wantReason, tt.wantRetryable)
			}
		})
	}
}

func TestClient_FetchPage_EndCursor(t *testing.T) {
	mock := testutil.NewMockReporting()
	defer mock.Close()

	client := newTestClient(t, mock)
	q := NewQuery("view-1", nil, nil, time.Now()).WithCursor(EndCursor)

	if _, err := client.FetchPage(context.Background(), q); err == nil {
		t.Error("Expected an error when fetching past the end")
	}
	if mock.GetRequestCount() != 0 {
		t.Error("No request should be sent for an end cursor")
	}
}
