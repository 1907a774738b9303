// Package publish hands consolidated artifacts to durable object storage and
// removes local run state only once the upload has succeeded.
package publish

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"

	"github.com/Sternrassler/ga-report-extractor/pkg/chunk"
	"github.com/rs/zerolog"
)

// ErrPublishFailed wraps every upload failure.
var ErrPublishFailed = errors.New("publish failed")

// Publisher uploads a local file to key in durable storage.
type Publisher interface {
	Publish(ctx context.Context, localPath, key string) error
}

// Cleaner removes the chunk files and registry entries of a run.
type Cleaner interface {
	Remove(ctx context.Context) error
}

// Key returns the destination key for a run's artifact:
// <table>/data/<date>/<table>_<date>.csv.
func Key(run chunk.RunKey) string {
	return path.Join(run.Table, "data", run.Date, run.String()+".csv")
}

// PublishAndClean publishes the artifact and, only when that succeeds, deletes
// the run's chunks, registry entries and the artifact itself. On publish
// failure every local file is left in place for a later republish.
func PublishAndClean(ctx context.Context, p Publisher, store Cleaner, artifactPath, key string, logger zerolog.Logger) error {
	if err := p.Publish(ctx, artifactPath, key); err != nil {
		logger.Error().Err(err).Str("key", key).Msg("Publish failed, keeping local files")
		return err
	}

	if err := store.Remove(ctx); err != nil {
		return fmt.Errorf("remove chunks after publish: %w", err)
	}
	if err := os.Remove(artifactPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove artifact after publish: %w", err)
	}

	logger.Info().Str("key", key).Msg("Published artifact and removed local files")
	return nil
}
