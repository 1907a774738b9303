// Package chunk persists report pages as per-run CSV chunk files and keeps
// the ordered list of written chunks in a Registry.
package chunk

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	chunksWrittenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gaextract_chunks_written_total",
		Help: "Total number of chunk files written",
	})

	chunkRowsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gaextract_chunk_rows_total",
		Help: "Total number of rows written to chunk files",
	})
)

// DateLayout is the run date format used in paths and keys.
const DateLayout = "20060102"

// RunKey identifies one run: a table extracted for one day. Chunk paths and
// registry keys are derived from both fields so runs for different tables
// never collide.
type RunKey struct {
	Table string
	Date  string
}

// NewRunKey builds a RunKey for table on date.
func NewRunKey(table string, date time.Time) RunKey {
	return RunKey{Table: table, Date: date.Format(DateLayout)}
}

// String implements fmt.Stringer.
func (k RunKey) String() string {
	return k.Table + "_" + k.Date
}

// Chunk is one persisted page.
type Chunk struct {
	Run  RunKey
	Seq  int
	Path string
	Rows int
}

// Store writes chunk files below a data directory.
type Store struct {
	dir      string
	run      RunKey
	registry Registry
	logger   zerolog.Logger
}

// NewStore creates a store for run rooted at dataDir.
func NewStore(dataDir string, run RunKey, registry Registry, logger zerolog.Logger) *Store {
	return &Store{
		dir:      filepath.Join(dataDir, run.Date),
		run:      run,
		registry: registry,
		logger:   logger,
	}
}

// Run returns the run the store writes for.
func (s *Store) Run() RunKey {
	return s.run
}

// Dir returns the run directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the chunk file path for seq.
func (s *Store) Path(seq int) string {
	return filepath.Join(s.dir, s.run.String()+"_"+strconv.Itoa(seq)+".csv")
}

// ArtifactPath returns the path of the consolidated artifact for the run.
func (s *Store) ArtifactPath() string {
	return filepath.Join(s.dir, s.run.String()+".csv")
}

// Write persists rows as chunk seq with a header line and registers it.
func (s *Store) Write(ctx context.Context, seq int, header []string, rows [][]string) (Chunk, error) {
	if seq < 1 {
		return Chunk{}, fmt.Errorf("chunk sequence must be >= 1 (got %d)", seq)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return Chunk{}, fmt.Errorf("create chunk directory: %w", err)
	}

	path := s.Path(seq)
	if err := writeCSV(path, header, rows); err != nil {
		return Chunk{}, err
	}

	if err := s.registry.Register(ctx, s.run, seq); err != nil {
		return Chunk{}, fmt.Errorf("register chunk %d: %w", seq, err)
	}

	chunksWrittenTotal.Inc()
	chunkRowsTotal.Add(float64(len(rows)))

	s.logger.Debug().
		Int("seq", seq).
		Int("rows", len(rows)).
		Str("path", path).
		Msg("Chunk written")

	return Chunk{Run: s.run, Seq: seq, Path: path, Rows: len(rows)}, nil
}

// Chunks returns the registered chunks in ascending sequence order. Row
// counts are not known from the registry and are left at zero.
func (s *Store) Chunks(ctx context.Context) ([]Chunk, error) {
	seqs, err := s.registry.List(ctx, s.run)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}

	chunks := make([]Chunk, 0, len(seqs))
	for _, seq := range seqs {
		chunks = append(chunks, Chunk{Run: s.run, Seq: seq, Path: s.Path(seq)})
	}
	return chunks, nil
}

// Remove deletes every registered chunk file and clears the registry.
// Files that are already gone are ignored.
func (s *Store) Remove(ctx context.Context) error {
	chunks, err := s.Chunks(ctx)
	if err != nil {
		return err
	}

	var errs []error
	for _, c := range chunks {
		if err := os.Remove(c.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove chunk %d: %w", c.Seq, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	if err := s.registry.Clear(ctx, s.run); err != nil {
		return fmt.Errorf("clear chunk registry: %w", err)
	}
	return nil
}

// RemoveOrphans deletes chunk files of the run that the registry does not
// know about, such as those left by an earlier process using a memory
// registry. Call it before writing the run's first chunk.
func (s *Store) RemoveOrphans() error {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read chunk directory: %w", err)
	}

	prefix := s.run.String() + "_"
	var errs []error
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".csv") {
			continue
		}
		seq, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".csv"))
		if err != nil || seq < 1 {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove orphan chunk %d: %w", seq, err))
			continue
		}
		s.logger.Debug().Int("seq", seq).Msg("Removed orphan chunk")
	}
	return errors.Join(errs...)
}

func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create chunk file: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return fmt.Errorf("write chunk header: %w", err)
	}
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return fmt.Errorf("write chunk rows: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("close chunk file: %w", err)
	}
	return nil
}
