// Package job wires the extraction pipeline for one table and day:
// extract pages into chunks, consolidate them, publish the artifact and
// clean up local state once the upload succeeded.
package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/ga-report-extractor/pkg/chunk"
	"github.com/Sternrassler/ga-report-extractor/pkg/config"
	"github.com/Sternrassler/ga-report-extractor/pkg/consolidate"
	"github.com/Sternrassler/ga-report-extractor/pkg/extract"
	"github.com/Sternrassler/ga-report-extractor/pkg/logging"
	"github.com/Sternrassler/ga-report-extractor/pkg/metrics"
	"github.com/Sternrassler/ga-report-extractor/pkg/publish"
	"github.com/Sternrassler/ga-report-extractor/pkg/ratelimit"
	"github.com/Sternrassler/ga-report-extractor/pkg/reporting"
	"github.com/Sternrassler/ga-report-extractor/pkg/retry"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrNoChunks is returned by Republish when the registry holds nothing for the run.
var ErrNoChunks = errors.New("no chunks registered for run")

// Request describes one extraction.
type Request struct {
	Table      string
	Metrics    []string
	Dimensions []string
	Date       time.Time
}

// Summary reports what a run produced.
type Summary struct {
	RunID    string
	Key      string
	Extract  extract.Result
	Artifact consolidate.Artifact
}

// Deps holds the collaborators of a Job. Nil fields are built from the config
// by New.
type Deps struct {
	Fetcher   extract.PageFetcher
	Publisher publish.Publisher
	Registry  chunk.Registry

	// NewPacer builds the pacer for one run.
	NewPacer func(runID string) ratelimit.Pacer

	// Sleep replaces the retry executor's sleeper.
	Sleep retry.Sleeper
}

// Job runs extractions with a fixed configuration.
type Job struct {
	cfg    *config.Config
	deps   Deps
	redis  *redis.Client
	logger zerolog.Logger
}

// New builds a Job from cfg: the reporting client, the S3 publisher and, when
// redis.addr is set, the redis chunk registry and optional shared pacing.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Job, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	timeout, _ := cfg.Timeout()
	fetcher, err := reporting.NewClient(ctx, reporting.Config{
		KeyFile: cfg.KeyFile,
		Scopes:  cfg.Scopes,
		Timeout: timeout,
	}, logging.NewLogger("reporting"))
	if err != nil {
		return nil, err
	}

	publisher, err := publish.NewS3Publisher(ctx, publish.S3Config{
		Bucket:   cfg.Storage.Bucket,
		Region:   cfg.Storage.Region,
		Endpoint: cfg.Storage.Endpoint,
		Compress: cfg.Storage.Compress,
		Metadata: cfg.ObjectMetadata(),
	}, logging.NewLogger("publish"))
	if err != nil {
		return nil, err
	}

	deps := Deps{Fetcher: fetcher, Publisher: publisher}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			redisClient.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		deps.Registry = chunk.NewRedisRegistry(redisClient)

		if cfg.Pacing.Shared {
			interval, _ := cfg.PacingInterval()
			deps.NewPacer = func(runID string) ratelimit.Pacer {
				return ratelimit.NewSharedPacer(redisClient, cfg.ViewID, runID, interval,
					logging.NewLogger("ratelimit"))
			}
		}
	}

	j := NewWithDeps(cfg, deps, logger)
	j.redis = redisClient
	return j, nil
}

// NewWithDeps builds a Job around explicit collaborators. Missing registry and
// pacer default to an in-memory registry and a fixed pacer.
func NewWithDeps(cfg *config.Config, deps Deps, logger zerolog.Logger) *Job {
	if deps.Registry == nil {
		deps.Registry = chunk.NewMemoryRegistry()
	}
	if deps.NewPacer == nil {
		interval, err := cfg.PacingInterval()
		if err != nil {
			interval = ratelimit.DefaultInterval
		}
		deps.NewPacer = func(string) ratelimit.Pacer {
			p := ratelimit.NewFixedPacer(interval)
			if deps.Sleep != nil {
				p.Sleep = deps.Sleep
			}
			return p
		}
	}
	return &Job{cfg: cfg, deps: deps, logger: logger}
}

// Close releases the redis connection, if any.
func (j *Job) Close() error {
	if j.redis != nil {
		return j.redis.Close()
	}
	return nil
}

// Run extracts req, consolidates the chunks and publishes the artifact.
// Chunks left by an earlier run for the same table and day are discarded
// first. When extraction or publishing fails the local files are kept.
func (j *Job) Run(ctx context.Context, req Request) (Summary, error) {
	sum := Summary{RunID: uuid.NewString()}
	run := chunk.NewRunKey(req.Table, req.Date)
	logger := logging.ForRun(j.logger, logging.Run{ID: sum.RunID, Table: run.Table, Date: run.Date})
	ctx = logging.WithContext(ctx, logger)
	defer j.pushMetrics(ctx, run)

	store := chunk.NewStore(j.cfg.DataDir, run, j.deps.Registry, logger)
	if err := store.Remove(ctx); err != nil {
		return sum, fmt.Errorf("discard previous chunks: %w", err)
	}
	if err := store.RemoveOrphans(); err != nil {
		return sum, fmt.Errorf("discard previous chunks: %w", err)
	}

	executor := retry.NewExecutor(logger)
	executor.MaxAttempts = j.cfg.MaxAttempts
	if j.deps.Sleep != nil {
		executor.Sleep = j.deps.Sleep
	}

	q := reporting.NewQuery(j.cfg.ViewID, req.Metrics, req.Dimensions, req.Date)
	q.PageSize = j.cfg.PageSize

	logger.Info().
		Strs("metrics", req.Metrics).
		Strs("dimensions", req.Dimensions).
		Msg("Starting extraction")

	controller := extract.NewController(j.deps.Fetcher, store, executor, j.deps.NewPacer(sum.RunID), logger)
	res, err := controller.Run(ctx, q)
	sum.Extract = res
	if err != nil {
		logger.Error().Err(err).Int("pages", res.Pages).Msg("Extraction aborted, chunks kept for inspection")
		return sum, err
	}

	artifact, key, err := j.publish(ctx, store, logger)
	sum.Artifact, sum.Key = artifact, key
	return sum, err
}

// Republish consolidates and publishes the chunks a previous run left behind,
// without fetching. It needs a registry that outlives the failed process.
func (j *Job) Republish(ctx context.Context, table string, date time.Time) (Summary, error) {
	sum := Summary{RunID: uuid.NewString()}
	run := chunk.NewRunKey(table, date)
	logger := logging.ForRun(j.logger, logging.Run{ID: sum.RunID, Table: run.Table, Date: run.Date})
	ctx = logging.WithContext(ctx, logger)
	defer j.pushMetrics(ctx, run)

	store := chunk.NewStore(j.cfg.DataDir, run, j.deps.Registry, logger)
	chunks, err := store.Chunks(ctx)
	if err != nil {
		return sum, err
	}
	if len(chunks) == 0 {
		return sum, fmt.Errorf("%w: %s", ErrNoChunks, run)
	}

	logger.Info().Int("chunks", len(chunks)).Msg("Republishing previous run")
	artifact, key, err := j.publish(ctx, store, logger)
	sum.Artifact, sum.Key = artifact, key
	return sum, err
}

func (j *Job) publish(ctx context.Context, store *chunk.Store, logger zerolog.Logger) (consolidate.Artifact, string, error) {
	artifact, err := consolidate.New(logger).Consolidate(ctx, store)
	if err != nil {
		return artifact, "", err
	}

	key := publish.Key(store.Run())
	if err := publish.PublishAndClean(ctx, j.deps.Publisher, store, artifact.Path, key, logger); err != nil {
		return artifact, key, err
	}
	return artifact, key, nil
}

func (j *Job) pushMetrics(ctx context.Context, run chunk.RunKey) {
	err := metrics.Push(context.WithoutCancel(ctx), j.cfg.Metrics.PushURL, "", map[string]string{"table": run.Table})
	if err != nil {
		logger := logging.FromContext(ctx)
		logger.Warn().Err(err).Msg("Metrics push failed")
	}
}
