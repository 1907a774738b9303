// Package ratelimit paces page requests against the reporting API. Every run
// waits a fixed interval between pages; runs sharing a view can additionally
// coordinate through Redis so their requests do not burst together.
package ratelimit

import (
	"context"
	"time"

	"github.com/Sternrassler/ga-report-extractor/pkg/retry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for request pacing.
var (
	paceWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gaextract_pace_wait_seconds",
		Help:    "Time spent waiting between report pages",
		Buckets: []float64{0.5, 1, 2, 4, 8, 16},
	})

	paceContentionTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gaextract_pace_contention_total",
		Help: "Total number of times a shared request slot was held by another run",
	})
)

// DefaultInterval is the delay between two page requests of a run.
const DefaultInterval = 2 * time.Second

// Pacer blocks between page requests.
type Pacer interface {
	Pace(ctx context.Context) error
}

// FixedPacer waits a fixed interval on every call.
type FixedPacer struct {
	Interval time.Duration
	Sleep    retry.Sleeper
}

// NewFixedPacer creates a pacer that sleeps interval between pages.
func NewFixedPacer(interval time.Duration) *FixedPacer {
	return &FixedPacer{
		Interval: interval,
		Sleep:    retry.Sleep,
	}
}

// Pace implements Pacer.
func (p *FixedPacer) Pace(ctx context.Context) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = retry.Sleep
	}

	start := time.Now()
	err := sleep(ctx, p.Interval)
	paceWaitSeconds.Observe(time.Since(start).Seconds())
	return err
}
