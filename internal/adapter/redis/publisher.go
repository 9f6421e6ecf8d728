// Package redis fans finalized round results out on a Redis stream.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/simaogato/topvoter-backend/internal/domain"
)

// DefaultStreamMaxLen caps the stream when no length is configured
const DefaultStreamMaxLen = 10000

// Options configures the connection and the target stream
type Options struct {
	Addr      string
	Password  string
	DB        int
	Stream    string
	MaxLen    int64 // 0 = unlimited
	PingLimit time.Duration
}

// Publisher implements domain.ResultPublisher with XADD
type Publisher struct {
	client *redis.Client
	logger *zap.Logger
	stream string
	maxLen int64
}

// NewPublisher connects to Redis and verifies the connection
func NewPublisher(ctx context.Context, opts Options, logger *zap.Logger) (*Publisher, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,

		PoolSize:     10,
		MinIdleConns: 2,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	limit := opts.PingLimit
	if limit <= 0 {
		limit = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", opts.Addr, err)
	}

	logger.Info("Connected to Redis",
		zap.String("addr", opts.Addr),
		zap.Int("db", opts.DB),
		zap.String("stream", opts.Stream),
		zap.Int64("streamMaxLen", opts.MaxLen))

	return newPublisher(rdb, opts, logger), nil
}

func newPublisher(rdb *redis.Client, opts Options, logger *zap.Logger) *Publisher {
	return &Publisher{
		client: rdb,
		logger: logger,
		stream: opts.Stream,
		maxLen: opts.MaxLen,
	}
}

// Publish appends one entry per finalized round
func (p *Publisher) Publish(ctx context.Context, result *domain.RoundResult) error {
	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: resultValues(result),
	}

	// Approximate trimming keeps XADD O(1)
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("failed to add round %d to stream %s: %w", result.Round, p.stream, err)
	}

	p.logger.Debug("Round result published",
		zap.String("stream", p.stream),
		zap.String("entryID", id),
		zap.Uint64("round", result.Round))
	return nil
}

// Health checks if Redis is reachable
func (p *Publisher) Health(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (p *Publisher) Close() error {
	return p.client.Close()
}

func resultValues(result *domain.RoundResult) map[string]interface{} {
	return map[string]interface{}{
		"id":             result.ID.String(),
		"round":          strconv.FormatUint(result.Round, 10),
		"user":           result.User.String(),
		"eth_return_pct": strconv.FormatInt(result.ETHReturnPct, 10),
		"uni_return_pct": strconv.FormatInt(result.UNIReturnPct, 10),
		"finalized_at":   result.FinalizedAt.UTC().Format(time.RFC3339Nano),
	}
}
