package subscription

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vyrodovalexey/avapigw-mtls/internal/observability"
	"github.com/vyrodovalexey/avapigw-mtls/internal/policy"
)

// Hash fields of a stored subscription.
const (
	fieldID      = "id"
	fieldStatus  = "status"
	fieldStartAt = "start_at"
	fieldEndAt   = "end_at"
)

// RedisConfig holds configuration for the Redis store.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Prefix   string

	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultRedisConfig returns a RedisConfig with default values.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Address:      "localhost:6379",
		Prefix:       "subscription:",
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// RedisStore implements Store on Redis hashes keyed by
// prefix + api + ":" + tokenType + ":" + token.
type RedisStore struct {
	client *redis.Client
	prefix string
	logger observability.Logger
	closed bool
	mu     sync.Mutex
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithRedisLogger sets the store logger.
func WithRedisLogger(logger observability.Logger) RedisOption {
	return func(s *RedisStore) {
		s.logger = logger
	}
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg *RedisConfig, opts ...RedisOption) (*RedisStore, error) {
	cfg = normalizeRedisConfig(cfg)

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Address, err)
	}

	s := NewRedisStoreFromClient(client, cfg.Prefix, opts...)
	s.logger.Info("subscription redis store connected",
		observability.String("address", cfg.Address),
		observability.Int("db", cfg.DB),
	)
	return s, nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, prefix string, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: prefix,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func normalizeRedisConfig(cfg *RedisConfig) *RedisConfig {
	defaults := DefaultRedisConfig()
	if cfg == nil {
		return defaults
	}

	out := *cfg
	if out.Address == "" {
		out.Address = defaults.Address
	}
	if out.Prefix == "" {
		out.Prefix = defaults.Prefix
	}
	if out.PoolSize <= 0 {
		out.PoolSize = defaults.PoolSize
	}
	if out.DialTimeout <= 0 {
		out.DialTimeout = defaults.DialTimeout
	}
	if out.ReadTimeout <= 0 {
		out.ReadTimeout = defaults.ReadTimeout
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = defaults.WriteTimeout
	}
	return &out
}

func (s *RedisStore) key(api string, tokenType policy.TokenType, token string) string {
	return s.prefix + Key(api, tokenType, token)
}

// Find implements Store.
func (s *RedisStore) Find(ctx context.Context, api string, token policy.SecurityToken) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.isClosed() {
		return nil, ErrStoreClosed
	}

	fields, err := s.client.HGetAll(ctx, s.key(api, token.Type, token.Value)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read subscription: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	sub := &Subscription{
		ID:        fields[fieldID],
		API:       api,
		TokenType: token.Type,
		Token:     token.Value,
		Status:    fields[fieldStatus],
	}
	if sub.StartAt, err = parseTime(fields[fieldStartAt]); err != nil {
		return nil, fmt.Errorf("%w: start_at: %w", ErrInvalidSubscription, err)
	}
	if sub.EndAt, err = parseTime(fields[fieldEndAt]); err != nil {
		return nil, fmt.Errorf("%w: end_at: %w", ErrInvalidSubscription, err)
	}
	if sub.ID == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidSubscription)
	}

	return sub, nil
}

// Save writes sub, replacing any subscription with the same key.
func (s *RedisStore) Save(ctx context.Context, sub *Subscription) error {
	if err := sub.Validate(); err != nil {
		return err
	}
	if s.isClosed() {
		return ErrStoreClosed
	}

	key := s.key(sub.API, sub.TokenType, sub.Token)
	values := map[string]any{
		fieldID:     sub.ID,
		fieldStatus: sub.Status,
	}
	if sub.StartAt != nil {
		values[fieldStartAt] = sub.StartAt.UTC().Format(time.RFC3339)
	}
	if sub.EndAt != nil {
		values[fieldEndAt] = sub.EndAt.UTC().Format(time.RFC3339)
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, values)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save subscription %s: %w", sub.ID, err)
	}
	return nil
}

// Delete removes the subscription of token on api.
func (s *RedisStore) Delete(ctx context.Context, api string, token policy.SecurityToken) error {
	if s.isClosed() {
		return ErrStoreClosed
	}
	if err := s.client.Del(ctx, s.key(api, token.Type, token.Value)).Err(); err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close implements Store.
func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.client.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return nil
}

func (s *RedisStore) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func parseTime(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

var _ Store = (*RedisStore)(nil)
