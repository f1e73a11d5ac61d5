// Package cache is a Redis cache-aside layer for finished video detail
// responses. A Cache without a client turns every operation into a no-op.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"comment-map/dto"
)

const VideoTTL = 5 * time.Minute

type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

// New connects to redisURL. An empty or unreachable URL yields a disabled
// cache rather than an error.
func New(ctx context.Context, redisURL string) *Cache {
	logger := zerolog.Ctx(ctx)
	if redisURL == "" {
		logger.Info().Msg("redis: no url configured, caching disabled")
		return &Cache{}
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn().Err(err).Msg("redis: invalid url, caching disabled")
		return &Cache{}
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn().Err(err).Msg("redis: connection failed, caching disabled")
		_ = rdb.Close()
		return &Cache{}
	}

	logger.Info().Msg("redis: connected, caching enabled")
	return NewWithClient(rdb)
}

func NewWithClient(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb, ttl: VideoTTL}
}

func (c *Cache) Enabled() bool {
	return c != nil && c.rdb != nil
}

// GetVideo returns the cached response, or nil on a miss.
func (c *Cache) GetVideo(ctx context.Context, videoId uuid.UUID) (*dto.VideoResponse, error) {
	if !c.Enabled() {
		return nil, nil
	}
	data, err := c.rdb.Get(ctx, videoKey(videoId)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var resp dto.VideoResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Cache) SetVideo(ctx context.Context, resp dto.VideoResponse) error {
	if !c.Enabled() {
		return nil
	}
	b, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, videoKey(resp.Id), b, c.ttl).Err()
}

func (c *Cache) InvalidateVideo(ctx context.Context, videoId uuid.UUID) error {
	if !c.Enabled() {
		return nil
	}
	return c.rdb.Del(ctx, videoKey(videoId)).Err()
}

func (c *Cache) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.rdb.Close()
}

func videoKey(id uuid.UUID) string {
	return "video:" + id.String()
}
