package subscription

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avapigw-mtls/internal/policy"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStoreFromClient(client, "sub:")
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestRedisStore_SaveAndFind(t *testing.T) {
	t.Parallel()

	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	sub := validSubscription()
	sub.StartAt = &start
	sub.EndAt = &end

	require.NoError(t, store.Save(ctx, &sub))

	key := "sub:orders:CERTIFICATE:" + sub.Token
	assert.True(t, mr.Exists(key))
	assert.Equal(t, "sub-1", mr.HGet(key, "id"))
	assert.Equal(t, "2026-01-01T00:00:00Z", mr.HGet(key, "start_at"))

	got, err := store.Find(ctx, "orders", policy.ForClientCertificate(sub.Token))
	require.NoError(t, err)
	assert.Equal(t, "sub-1", got.ID)
	assert.Equal(t, "orders", got.API)
	assert.Equal(t, policy.TokenTypeCertificate, got.TokenType)
	assert.Equal(t, StatusAccepted, got.Status)
	require.NotNil(t, got.StartAt)
	assert.True(t, start.Equal(*got.StartAt))
	require.NotNil(t, got.EndAt)
	assert.True(t, end.Equal(*got.EndAt))
	assert.True(t, got.IsActive(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)))
}

func TestRedisStore_SaveOverwrites(t *testing.T) {
	t.Parallel()

	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	end := time.Now().Add(time.Hour)
	sub := validSubscription()
	sub.EndAt = &end
	require.NoError(t, store.Save(ctx, &sub))

	sub.EndAt = nil
	sub.Status = StatusPaused
	require.NoError(t, store.Save(ctx, &sub))

	key := "sub:orders:CERTIFICATE:" + sub.Token
	assert.Equal(t, "", mr.HGet(key, "end_at"))

	got, err := store.Find(ctx, "orders", policy.ForClientCertificate(sub.Token))
	require.NoError(t, err)
	assert.Nil(t, got.EndAt)
	assert.False(t, got.IsActive(time.Now()))
}

func TestRedisStore_NotFoundAndDelete(t *testing.T) {
	t.Parallel()

	store, _ := newTestRedisStore(t)
	ctx := context.Background()
	token := policy.ForAPIKey("key-1")

	_, err := store.Find(ctx, "orders", token)
	assert.ErrorIs(t, err, ErrNotFound)

	sub := Subscription{ID: "s", API: "orders", TokenType: policy.TokenTypeAPIKey, Token: "key-1"}
	require.NoError(t, store.Save(ctx, &sub))
	_, err = store.Find(ctx, "orders", token)
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, "orders", token))
	_, err = store.Find(ctx, "orders", token)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_InvalidRecord(t *testing.T) {
	t.Parallel()

	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	mr.HSet("sub:orders:API_KEY:bad-time", "id", "s", "end_at", "yesterday")
	_, err := store.Find(ctx, "orders", policy.ForAPIKey("bad-time"))
	assert.ErrorIs(t, err, ErrInvalidSubscription)

	mr.HSet("sub:orders:API_KEY:no-id", "status", StatusAccepted)
	_, err = store.Find(ctx, "orders", policy.ForAPIKey("no-id"))
	assert.ErrorIs(t, err, ErrInvalidSubscription)

	bad := Subscription{ID: "s", API: "orders", TokenType: policy.TokenTypeNone, Token: "x"}
	assert.ErrorIs(t, store.Save(ctx, &bad), ErrInvalidSubscription)
}

func TestRedisStore_Closed(t *testing.T) {
	t.Parallel()

	store, _ := newTestRedisStore(t)
	require.NoError(t, store.Ping(context.Background()))
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	_, err := store.Find(context.Background(), "orders", policy.ForAPIKey("k"))
	assert.ErrorIs(t, err, ErrStoreClosed)

	sub := validSubscription()
	assert.ErrorIs(t, store.Save(context.Background(), &sub), ErrStoreClosed)
	assert.ErrorIs(t, store.Delete(context.Background(), "orders", policy.ForAPIKey("k")), ErrStoreClosed)
}

func TestRedisStore_ContextCancelled(t *testing.T) {
	t.Parallel()

	store, _ := newTestRedisStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Find(ctx, "orders", policy.ForAPIKey("k"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewRedisStore(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)

	store, err := NewRedisStore(context.Background(), &RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	assert.Equal(t, "subscription:", store.prefix)

	_, err = NewRedisStore(context.Background(), &RedisConfig{
		Address:     "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
	})
	assert.Error(t, err)
}

func TestNormalizeRedisConfig(t *testing.T) {
	t.Parallel()

	cfg := normalizeRedisConfig(nil)
	assert.Equal(t, DefaultRedisConfig(), cfg)

	cfg = normalizeRedisConfig(&RedisConfig{Address: "redis:6380", Prefix: "p:", PoolSize: 3})
	assert.Equal(t, "redis:6380", cfg.Address)
	assert.Equal(t, "p:", cfg.Prefix)
	assert.Equal(t, 3, cfg.PoolSize)
	assert.Equal(t, 5*time.Second, cfg.DialTimeout)
}
