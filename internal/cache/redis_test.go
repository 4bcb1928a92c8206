package cache

import (
	"context"
	"testing"
	"time"

	"env_automation/internal/config"
	"env_automation/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, ttl time.Duration) (*Readings, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewReadings(client, "test:reading:", ttl), mr
}

func TestReadings_PutLatest(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t, time.Minute)

	v := 82.5
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, c.Put(ctx, models.Reading{DeviceID: 7, Timestamp: ts, Value: &v, Payload: map[string]any{"humidity": 40.0}}))
	assert.True(t, mr.Exists("test:reading:7"))
	assert.Equal(t, time.Minute, mr.TTL("test:reading:7"))

	got, err := c.Latest(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Timestamp.Equal(ts))
	assert.InDelta(t, 82.5, *got.Value, 1e-9)
	assert.Equal(t, 40.0, got.Payload["humidity"])
}

func TestReadings_MissAndExpiry(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t, time.Minute)

	got, err := c.Latest(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, c.Put(ctx, models.Reading{DeviceID: 1, Timestamp: time.Now().UTC()}))
	mr.FastForward(2 * time.Minute)

	got, err = c.Latest(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestReadings_Invalidate(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t, 0)

	require.NoError(t, c.Put(ctx, models.Reading{DeviceID: 3, Timestamp: time.Now().UTC()}))
	require.NoError(t, c.Invalidate(ctx, 3))
	assert.False(t, mr.Exists("test:reading:3"))
}

func TestReadings_ServerDown(t *testing.T) {
	c, mr := newTestCache(t, time.Minute)
	mr.Close()

	_, err := c.Latest(context.Background(), 1)
	require.Error(t, err)
}

func TestDial(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := Dial(context.Background(), config.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	_ = client.Close()

	_, err = Dial(context.Background(), config.RedisConfig{Addr: "127.0.0.1:1"})
	require.Error(t, err)
}
