package chunk

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Registry records which chunk sequence numbers were written for a run. The
// consolidator reads chunks in registry order instead of listing directories.
type Registry interface {
	// Register appends seq to the run's chunk list. Registering the same
	// sequence twice is a no-op.
	Register(ctx context.Context, run RunKey, seq int) error

	// List returns the registered sequence numbers in ascending order.
	List(ctx context.Context, run RunKey) ([]int, error)

	// Clear forgets every chunk of the run.
	Clear(ctx context.Context, run RunKey) error
}

// MemoryRegistry is a process-local Registry.
type MemoryRegistry struct {
	mu   sync.Mutex
	runs map[RunKey]map[int]struct{}
}

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{runs: make(map[RunKey]map[int]struct{})}
}

// Register implements Registry.
func (r *MemoryRegistry) Register(_ context.Context, run RunKey, seq int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seqs, ok := r.runs[run]
	if !ok {
		seqs = make(map[int]struct{})
		r.runs[run] = seqs
	}
	seqs[seq] = struct{}{}
	return nil
}

// List implements Registry.
func (r *MemoryRegistry) List(_ context.Context, run RunKey) ([]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]int, 0, len(r.runs[run]))
	for seq := range r.runs[run] {
		out = append(out, seq)
	}
	sort.Ints(out)
	return out, nil
}

// Clear implements Registry.
func (r *MemoryRegistry) Clear(_ context.Context, run RunKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.runs, run)
	return nil
}

// RedisKeyPrefix prefixes the per-run chunk set key.
const RedisKeyPrefix = "gaextract:chunks:"

// RedisRegistry keeps the chunk list in a Redis sorted set scored by
// sequence number, so a later process can republish a run.
type RedisRegistry struct {
	redis *redis.Client
}

// NewRedisRegistry creates a Redis-backed registry.
func NewRedisRegistry(redisClient *redis.Client) *RedisRegistry {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisRegistry{redis: redisClient}
}

// Key returns the Redis key holding the run's chunks.
func (r *RedisRegistry) Key(run RunKey) string {
	return RedisKeyPrefix + run.Table + ":" + run.Date
}

// Register implements Registry.
func (r *RedisRegistry) Register(ctx context.Context, run RunKey, seq int) error {
	err := r.redis.ZAdd(ctx, r.Key(run), redis.Z{
		Score:  float64(seq),
		Member: strconv.Itoa(seq),
	}).Err()
	if err != nil {
		return fmt.Errorf("redis zadd: %w", err)
	}
	return nil
}

// List implements Registry.
func (r *RedisRegistry) List(ctx context.Context, run RunKey) ([]int, error) {
	members, err := r.redis.ZRange(ctx, r.Key(run), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrange: %w", err)
	}

	out := make([]int, 0, len(members))
	for _, m := range members {
		seq, err := strconv.Atoi(m)
		if err != nil {
			return nil, fmt.Errorf("parse chunk sequence %q: %w", m, err)
		}
		out = append(out, seq)
	}
	return out, nil
}

// Clear implements Registry.
func (r *RedisRegistry) Clear(ctx context.Context, run RunKey) error {
	if err := r.redis.Del(ctx, r.Key(run)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
