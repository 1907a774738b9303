package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/ga-report-extractor/pkg/retry"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisKeyPrefix prefixes the per-view request slot key.
const RedisKeyPrefix = "gaextract:pace:"

// minSlotWait is used when the slot holder's TTL is not reported.
const minSlotWait = 10 * time.Millisecond

// SharedPacer waits the fixed interval and then claims a request slot held in
// Redis for one interval. Runs against the same view therefore issue at most
// one page request per interval between them.
type SharedPacer struct {
	redis    *redis.Client
	key      string
	owner    string
	interval time.Duration
	sleep    retry.Sleeper
	logger   zerolog.Logger
}

// NewSharedPacer creates a Redis-coordinated pacer for viewID. owner
// identifies the run holding the slot and is only used for inspection.
// A non-positive interval falls back to DefaultInterval: a slot without a
// TTL would never be released.
func NewSharedPacer(redisClient *redis.Client, viewID, owner string, interval time.Duration, logger zerolog.Logger) *SharedPacer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &SharedPacer{
		redis:    redisClient,
		key:      RedisKeyPrefix + viewID,
		owner:    owner,
		interval: interval,
		sleep:    retry.Sleep,
		logger:   logger,
	}
}

// Key returns the Redis key of the shared slot.
func (p *SharedPacer) Key() string {
	return p.key
}

// Pace implements Pacer.
func (p *SharedPacer) Pace(ctx context.Context) error {
	start := time.Now()
	defer func() {
		paceWaitSeconds.Observe(time.Since(start).Seconds())
	}()

	if err := p.sleep(ctx, p.interval); err != nil {
		return err
	}

	for {
		claimed, err := p.redis.SetNX(ctx, p.key, p.owner, p.interval).Result()
		if err != nil {
			return fmt.Errorf("claim request slot: %w", err)
		}
		if claimed {
			return nil
		}

		wait, err := p.redis.PTTL(ctx, p.key).Result()
		if err != nil {
			return fmt.Errorf("read request slot ttl: %w", err)
		}
		if wait <= 0 {
			wait = minSlotWait
		}

		paceContentionTotal.Inc()
		p.logger.Debug().
			Str("key", p.key).
			Dur("wait", wait).
			Msg("Request slot held by another run, waiting")

		if err := p.sleep(ctx, wait); err != nil {
			return err
		}
	}
}
