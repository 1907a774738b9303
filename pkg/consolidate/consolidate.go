// Package consolidate merges the chunk files of a run into one headerless
// artifact.
package consolidate

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/Sternrassler/ga-report-extractor/pkg/chunk"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	artifactRows = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gaextract_artifact_rows",
		Help: "Number of rows in the last consolidated artifact",
	})

	chunksSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gaextract_chunks_skipped_total",
		Help: "Chunks skipped during consolidation by cause",
	}, []string{"cause"})
)

// Source lists the chunks of a run and names the artifact location.
type Source interface {
	Chunks(ctx context.Context) ([]chunk.Chunk, error)
	ArtifactPath() string
}

// Artifact is the consolidated output of one run.
type Artifact struct {
	Path   string
	Rows   int
	Chunks int
}

// Consolidator merges chunk files.
type Consolidator struct {
	logger zerolog.Logger
}

// New creates a Consolidator.
func New(logger zerolog.Logger) *Consolidator {
	return &Consolidator{logger: logger}
}

// Consolidate concatenates the rows of every chunk of src, in sequence order
// and without header lines, into the artifact file. Missing, empty and
// unparseable chunks are skipped; with nothing to merge an empty artifact is
// still written. The artifact is replaced atomically, so repeated runs over
// the same chunks produce identical files.
func (c *Consolidator) Consolidate(ctx context.Context, src Source) (Artifact, error) {
	chunks, err := src.Chunks(ctx)
	if err != nil {
		return Artifact{}, fmt.Errorf("list chunks: %w", err)
	}

	path := src.ArtifactPath()
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Artifact{}, fmt.Errorf("create artifact directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".artifact-*.tmp")
	if err != nil {
		return Artifact{}, fmt.Errorf("create temp artifact: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	w := csv.NewWriter(tmp)
	artifact := Artifact{Path: path}

	for _, ch := range chunks {
		if err := ctx.Err(); err != nil {
			tmp.Close()
			return Artifact{}, err
		}

		rows, err := readChunk(ch.Path)
		if err != nil {
			cause := "unparseable"
			if errors.Is(err, fs.ErrNotExist) {
				cause = "missing"
			}
			chunksSkippedTotal.WithLabelValues(cause).Inc()
			c.logger.Warn().
				Err(err).
				Int("seq", ch.Seq).
				Str("path", ch.Path).
				Msg("Skipping chunk")
			continue
		}
		if len(rows) == 0 {
			chunksSkippedTotal.WithLabelValues("empty").Inc()
			continue
		}

		if err := w.WriteAll(rows); err != nil {
			tmp.Close()
			return Artifact{}, fmt.Errorf("write chunk %d to artifact: %w", ch.Seq, err)
		}
		artifact.Rows += len(rows)
		artifact.Chunks++
	}

	if err := tmp.Close(); err != nil {
		return Artifact{}, fmt.Errorf("close temp artifact: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return Artifact{}, fmt.Errorf("chmod temp artifact: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return Artifact{}, fmt.Errorf("rename artifact: %w", err)
	}

	artifactRows.Set(float64(artifact.Rows))
	c.logger.Info().
		Str("path", path).
		Int("rows", artifact.Rows).
		Int("chunks", artifact.Chunks).
		Int("registered_chunks", len(chunks)).
		Msg("Chunks consolidated")

	return artifact, nil
}

// readChunk returns the data rows of a chunk file, without its header.
// The whole chunk is read before anything is written so a parse error
// never leaves a partial chunk in the artifact.
func readChunk(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	if _, err := r.Read(); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return rows, nil
}
