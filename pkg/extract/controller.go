package extract

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sternrassler/ga-report-extractor/pkg/chunk"
	"github.com/Sternrassler/ga-report-extractor/pkg/ratelimit"
	"github.com/Sternrassler/ga-report-extractor/pkg/reporting"
	"github.com/Sternrassler/ga-report-extractor/pkg/retry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	pagesFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gaextract_pages_fetched_total",
		Help: "Total number of report pages fetched",
	})

	rowsExtractedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gaextract_rows_extracted_total",
		Help: "Total number of report rows extracted",
	})

	rowCountMismatchTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gaextract_row_count_mismatch_total",
		Help: "Runs whose extracted rows differ from the reported total",
	})
)

// DefaultMaxPages bounds runs whose first page carries no row count.
const DefaultMaxPages = 10000

// State is a pagination controller state.
type State string

const (
	StateStart     State = "start"
	StateFetching  State = "fetching"
	StateMorePages State = "more_pages"
	StateDone      State = "done"
)

// PageFetcher fetches one page of a query. It is not expected to retry.
type PageFetcher interface {
	FetchPage(ctx context.Context, q reporting.Query) (reporting.Page, error)
}

// ChunkWriter persists one page as a chunk.
type ChunkWriter interface {
	Write(ctx context.Context, seq int, header []string, rows [][]string) (chunk.Chunk, error)
}

// Result summarizes a finished run.
type Result struct {
	Chunks []chunk.Chunk
	Pages  int
	Rows   int

	// ExpectedRows is the total reported on the first page, when known.
	ExpectedRows    int
	HasExpectedRows bool
}

// Reconciled reports whether the extracted rows match the reported total.
// Runs without a reported total are considered reconciled.
func (r Result) Reconciled() bool {
	return !r.HasExpectedRows || r.Rows == r.ExpectedRows
}

// Controller runs the page loop for one query.
type Controller struct {
	fetcher  PageFetcher
	writer   ChunkWriter
	executor *retry.Executor
	pacer    ratelimit.Pacer
	logger   zerolog.Logger

	// MaxPages caps the loop when the total row count is unknown.
	MaxPages int

	state State
}

// NewController creates a controller. executor wraps every fetch; pacer is
// called between pages.
func NewController(fetcher PageFetcher, writer ChunkWriter, executor *retry.Executor, pacer ratelimit.Pacer, logger zerolog.Logger) *Controller {
	return &Controller{
		fetcher:  fetcher,
		writer:   writer,
		executor: executor,
		pacer:    pacer,
		logger:   logger,
		MaxPages: DefaultMaxPages,
		state:    StateStart,
	}
}

// State returns the current state.
func (c *Controller) State() State {
	return c.state
}

// PageBudget returns the number of fetches a run with rowCount total rows
// and the given page size needs, including the first: ceil(rowCount/pageSize),
// and never less than one.
func PageBudget(rowCount, pageSize int) int {
	if pageSize <= 0 || rowCount <= 0 {
		return 1
	}
	return (rowCount + pageSize - 1) / pageSize
}

// Run fetches every page of q, writing page n as chunk n.
func (c *Controller) Run(ctx context.Context, q reporting.Query) (Result, error) {
	if c.state != StateStart {
		return Result{}, fmt.Errorf("controller already used (state %s)", c.state)
	}

	var res Result
	cursor := reporting.StartCursor()
	budget := 1
	unbounded := false

	for seq := 1; ; seq++ {
		if seq > 1 {
			if err := c.pacer.Pace(ctx); err != nil {
				c.state = StateDone
				return res, fmt.Errorf("pace before page %d: %w", seq, err)
			}
		}

		c.state = StateFetching
		page, err := c.fetch(ctx, q.WithCursor(cursor), seq)
		if err != nil {
			c.state = StateDone
			return res, err
		}

		ch, err := c.writer.Write(ctx, seq, q.Header(), page.Rows)
		if err != nil {
			c.state = StateDone
			return res, fmt.Errorf("write chunk %d: %w", seq, err)
		}
		res.Chunks = append(res.Chunks, ch)
		res.Pages++
		res.Rows += len(page.Rows)
		pagesFetchedTotal.Inc()
		rowsExtractedTotal.Add(float64(len(page.Rows)))

		if seq == 1 && page.HasRowCount {
			res.ExpectedRows = page.RowCount
			res.HasExpectedRows = true
		}

		c.logger.Info().
			Int("page", seq).
			Str("next_cursor", page.Next.String()).
			Int("rows", len(page.Rows)).
			Int("row_count", page.RowCount).
			Msg("Page extracted")

		cursor = page.Next
		if seq == 1 {
			switch {
			case cursor.Done():
				budget = 1
			case page.HasRowCount:
				budget = PageBudget(page.RowCount, q.PageSize)
			default:
				unbounded = true
				c.logger.Warn().
					Int("max_pages", c.MaxPages).
					Msg("First page has a cursor but no row count, following cursors")
			}
		}

		if cursor.Done() {
			break
		}
		if unbounded {
			if seq >= c.MaxPages {
				c.logger.Warn().Int("max_pages", c.MaxPages).Msg("Page cap reached")
				break
			}
		} else if seq >= budget {
			break
		}
		c.state = StateMorePages
	}

	c.state = StateDone
	c.reconcile(res)
	return res, nil
}

func (c *Controller) fetch(ctx context.Context, q reporting.Query, seq int) (reporting.Page, error) {
	page, err := retry.Do(ctx, c.executor, func(ctx context.Context) (reporting.Page, error) {
		return c.fetcher.FetchPage(ctx, q)
	})
	if err == nil {
		return page, nil
	}

	switch {
	case errors.Is(err, retry.ErrRetryExhausted):
		c.logger.Error().Err(err).Int("page", seq).Msg("Page fetch exhausted retries, aborting run")
	case retry.IsFatal(err):
		c.logger.Error().Err(err).Int("page", seq).Msg("Fatal error fetching page, aborting run")
	}
	return reporting.Page{}, fmt.Errorf("fetch page %d: %w", seq, err)
}

func (c *Controller) reconcile(res Result) {
	if res.Reconciled() {
		c.logger.Info().
			Int("pages", res.Pages).
			Int("rows", res.Rows).
			Msg("Extraction complete")
		return
	}

	rowCountMismatchTotal.Inc()
	c.logger.Warn().
		Int("pages", res.Pages).
		Int("rows", res.Rows).
		Int("expected_rows", res.ExpectedRows).
		Msg("Extracted row count differs from reported total")
}
