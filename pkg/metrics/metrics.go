// Package metrics provides the Prometheus registry shared by the extractor.
// Metrics are defined in their respective packages (retry, reporting, extract,
// ratelimit, chunk, consolidate, publish) via promauto, so this package only
// documents them and pushes them to a Pushgateway at the end of a run.
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Gatherer collects the metrics pushed by Push. promauto registers every
// extractor metric with the default registry, so this is its gatherer.
var Gatherer prometheus.Gatherer = prometheus.DefaultGatherer

// DefaultJob is the Pushgateway job name used when none is given.
const DefaultJob = "ga_extract"

// Push sends every gathered metric to the Pushgateway at url, grouped by job
// and the given labels. Batch runs exit before a scrape could happen, so this
// is the only way their metrics leave the process.
func Push(ctx context.Context, url, job string, groups map[string]string) error {
	if url == "" {
		return nil
	}
	if job == "" {
		job = DefaultJob
	}

	p := push.New(url, job).Gatherer(Gatherer)
	for name, value := range groups {
		p = p.Grouping(name, value)
	}

	if err := p.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}

// Metrics Documentation
//
// Retry Metrics (pkg/retry):
//   - gaextract_retries_total{reason} (Counter): Retry attempts by API error reason
//   - gaextract_retry_backoff_seconds (Histogram): Backoff delay before each retry
//   - gaextract_retry_exhausted_total (Counter): Operations that used every attempt
//   - gaextract_fatal_errors_total{reason} (Counter): Non-retryable failures by reason
//
// Request Metrics (pkg/reporting):
//   - gaextract_report_requests_total{status} (Counter): batchGet calls by outcome
//   - gaextract_report_request_duration_seconds (Histogram): batchGet latency
//
// Pagination Metrics (pkg/extract):
//   - gaextract_pages_fetched_total (Counter): Pages fetched and written
//   - gaextract_rows_extracted_total (Counter): Rows written to chunks
//   - gaextract_row_count_mismatch_total (Counter): Runs whose rows differ from the reported total
//
// Pacing Metrics (pkg/ratelimit):
//   - gaextract_pace_wait_seconds (Histogram): Time spent waiting between pages
//   - gaextract_pace_contention_total (Counter): Shared pacing slots found taken
//
// Chunk Metrics (pkg/chunk, pkg/consolidate):
//   - gaextract_chunks_written_total (Counter): Chunk files written
//   - gaextract_chunk_rows_total (Counter): Rows written across chunks
//   - gaextract_artifact_rows (Gauge): Rows in the last consolidated artifact
//   - gaextract_chunks_skipped_total{cause} (Counter): Chunks skipped during consolidation
//
// Publish Metrics (pkg/publish):
//   - gaextract_publish_total{status} (Counter): Artifact uploads by outcome
//   - gaextract_publish_bytes (Histogram): Uploaded artifact size
//
// Example Prometheus Queries:
//
//   # Retry rate by reason
//   sum by (reason) (rate(gaextract_retries_total[1h]))
//
//   # Runs losing rows
//   increase(gaextract_row_count_mismatch_total[1d]) > 0
//
//   # P95 request latency
//   histogram_quantile(0.95, rate(gaextract_report_request_duration_seconds_bucket[1h]))
