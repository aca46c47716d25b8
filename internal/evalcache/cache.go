// Package evalcache memoizes evaluation records in Redis so repeated
// scoring of the same response skips the rater.
package evalcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/insightgrid-ai/orchestrator/internal/evaluator"
)

// Options configures the cache connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	// TTL bounds cached records; zero means 24h.
	TTL time.Duration
}

// Cache is a Redis-backed evaluator.RecordCache. Redis being down never
// fails an evaluation: misses are returned and writes are dropped with a
// warning.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// New connects to Redis and verifies the connection.
func New(opts Options, logger *zap.Logger) (*Cache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.TTL == 0 {
		opts.TTL = 24 * time.Hour
	}
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis %s: %w", opts.Addr, err)
	}

	logger.Info("Evaluation cache connected", zap.String("addr", opts.Addr))
	return &Cache{client: client, ttl: opts.TTL, logger: logger}, nil
}

// Close releases the Redis connection.
func (c *Cache) Close() error { return c.client.Close() }

// key hashes the input triple; responses can be long and may contain
// anything, so the raw strings never become part of the key.
func key(in evaluator.RatingInput) string {
	h := sha256.New()
	h.Write([]byte(in.AgentType))
	h.Write([]byte{0})
	h.Write([]byte(in.Query))
	h.Write([]byte{0})
	h.Write([]byte(in.Response))
	return "insightgrid:eval:" + hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached record for the input triple, if any.
func (c *Cache) Get(ctx context.Context, in evaluator.RatingInput) (*evaluator.EvaluationRecord, bool) {
	payload, err := c.client.Get(ctx, key(in)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("Evaluation cache read failed", zap.Error(err))
		return nil, false
	}
	var rec evaluator.EvaluationRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		c.logger.Warn("Evaluation cache entry corrupt, ignoring", zap.Error(err))
		return nil, false
	}
	// Hit accounting lives in the evaluator so every RecordCache
	// implementation is counted the same way.
	return &rec, true
}

// Put stores the record under the input triple with the configured TTL.
func (c *Cache) Put(ctx context.Context, in evaluator.RatingInput, rec *evaluator.EvaluationRecord) {
	payload, err := json.Marshal(rec)
	if err != nil {
		c.logger.Warn("Evaluation record not serializable", zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, key(in), payload, c.ttl).Err(); err != nil {
		c.logger.Warn("Evaluation cache write failed", zap.Error(err))
	}
}
