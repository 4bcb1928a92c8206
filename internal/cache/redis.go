// Package cache keeps the latest reading of every device in Redis so alert
// evaluation does not hit the Store for hot devices.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"env_automation/internal/config"
	"env_automation/internal/models"

	"github.com/go-redis/redis/v8"
)

// Readings is a latest-reading cache backed by Redis.
type Readings struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// Dial connects to Redis and verifies the connection with PING.
func Dial(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// NewReadings returns a cache writing keys "<prefix><device_id>" with the given TTL.
// A zero TTL stores keys without expiry.
func NewReadings(client *redis.Client, prefix string, ttl time.Duration) *Readings {
	return &Readings{client: client, prefix: prefix, ttl: ttl}
}

func (c *Readings) key(deviceID int64) string {
	return c.prefix + strconv.FormatInt(deviceID, 10)
}

// Put stores r as the latest reading of its device.
func (c *Readings) Put(ctx context.Context, r models.Reading) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal reading of device %d: %w", r.DeviceID, err)
	}
	if err := c.client.Set(ctx, c.key(r.DeviceID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache reading of device %d: %w", r.DeviceID, err)
	}
	return nil
}

// Latest returns the cached reading of a device, or (nil, nil) on a miss.
func (c *Readings) Latest(ctx context.Context, deviceID int64) (*models.Reading, error) {
	val, err := c.client.Get(ctx, c.key(deviceID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cached reading of device %d: %w", deviceID, err)
	}
	var r models.Reading
	if err := json.Unmarshal(val, &r); err != nil {
		return nil, fmt.Errorf("unmarshal cached reading of device %d: %w", deviceID, err)
	}
	return &r, nil
}

// Invalidate drops the cached reading of a device.
func (c *Readings) Invalidate(ctx context.Context, deviceID int64) error {
	if err := c.client.Del(ctx, c.key(deviceID)).Err(); err != nil {
		return fmt.Errorf("invalidate cached reading of device %d: %w", deviceID, err)
	}
	return nil
}
