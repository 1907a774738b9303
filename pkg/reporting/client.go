// Package reporting builds page requests against the Analytics Reporting API
// and extracts rows, cursors and row counts from the responses.
package reporting

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	analyticsreporting "google.golang.org/api/analyticsreporting/v4"
	"google.golang.org/api/option"
)

// Prometheus metrics for reporting API calls.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gaextract_report_requests_total",
		Help: "Total report page requests by outcome",
	}, []string{"status"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gaextract_report_request_duration_seconds",
		Help:    "Report page request duration in seconds",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 300},
	})
)

// DefaultTimeout bounds a single page request.
const DefaultTimeout = 300 * time.Second

// DefaultScope grants read-only access to analytics reports.
const DefaultScope = "https://www.googleapis.com/auth/analytics.readonly"

// Config holds the client configuration.
type Config struct {
	// KeyFile is the service account key file. When empty, no credentials
	// option is added and the caller is expected to pass one.
	KeyFile string

	// Scopes requested for the credentials.
	Scopes []string

	// Timeout for a single page request.
	Timeout time.Duration
}

// Client fetches single report pages. It does not retry.
type Client struct {
	service *analyticsreporting.Service
	timeout time.Duration
	logger  zerolog.Logger
}

// NewClient creates a reporting client. Extra options are appended after the
// credentials derived from cfg.
func NewClient(ctx context.Context, cfg Config, logger zerolog.Logger, opts ...option.ClientOption) (*Client, error) {
	var all []option.ClientOption
	if cfg.KeyFile != "" {
		scopes := cfg.Scopes
		if len(scopes) == 0 {
			scopes = []string{DefaultScope}
		}
		all = append(all, option.WithCredentialsFile(cfg.KeyFile), option.WithScopes(scopes...))
	}
	all = append(all, opts...)

	service, err := analyticsreporting.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("create analytics reporting service: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		service: service,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// BuildRequest builds the batchGet body for one page of q.
func BuildRequest(q Query) *analyticsreporting.GetReportsRequest {
	metrics := make([]*analyticsreporting.Metric, 0, len(q.Metrics))
	for _, m := range q.Metrics {
		metrics = append(metrics, &analyticsreporting.Metric{Expression: m})
	}
	dimensions := make([]*analyticsreporting.Dimension, 0, len(q.Dimensions))
	for _, d := range q.Dimensions {
		dimensions = append(dimensions, &analyticsreporting.Dimension{Name: d})
	}

	day := q.Date.Format("2006-01-02")
	request := &analyticsreporting.ReportRequest{
		ViewId:        q.ViewID,
		DateRanges:    []*analyticsreporting.DateRange{{StartDate: day, EndDate: day}},
		Metrics:       metrics,
		Dimensions:    dimensions,
		SamplingLevel: q.SamplingLevel,
		PageSize:      int64(q.PageSize),
		PageToken:     q.Cursor.Token(),
	}
	if q.OrderBy != "" {
		request.OrderBys = []*analyticsreporting.OrderBy{{FieldName: q.OrderBy}}
	}

	return &analyticsreporting.GetReportsRequest{
		ReportRequests: []*analyticsreporting.ReportRequest{request},
	}
}

// FetchPage performs one batchGet call for q and parses the response.
// API failures are returned as *APIError so they can be classified.
func (c *Client) FetchPage(ctx context.Context, q Query) (Page, error) {
	if q.Cursor.Done() {
		return Page{}, fmt.Errorf("fetch page: cursor is at end of data")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.service.Reports.BatchGet(BuildRequest(q)).Context(ctx).Do()
	requestDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		requestsTotal.WithLabelValues("error").Inc()
		c.logger.Debug().
			Err(err).
			Str("cursor", q.Cursor.String()).
			Msg("Report request failed")
		return Page{}, classifyAPIError(err)
	}

	requestsTotal.WithLabelValues("ok").Inc()
	return ParsePage(resp), nil
}
