package cache

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"comment-map/dto"
)

func TestDisabledCacheIsNoop(t *testing.T) {
	ctx := context.Background()
	for name, c := range map[string]*Cache{
		"no url":      New(ctx, ""),
		"invalid url": New(ctx, "not a redis url"),
		"nil":         nil,
	} {
		t.Run(name, func(t *testing.T) {
			if c.Enabled() {
				t.Fatal("cache should be disabled")
			}
			id := uuid.New()
			if err := c.SetVideo(ctx, dto.VideoResponse{Id: id}); err != nil {
				t.Errorf("SetVideo: %v", err)
			}
			got, err := c.GetVideo(ctx, id)
			if err != nil || got != nil {
				t.Errorf("GetVideo = %v, %v; want miss", got, err)
			}
			if err := c.InvalidateVideo(ctx, id); err != nil {
				t.Errorf("InvalidateVideo: %v", err)
			}
			if err := c.Close(); err != nil {
				t.Errorf("Close: %v", err)
			}
		})
	}
}

func TestVideoKey(t *testing.T) {
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	if got := videoKey(id); got != "video:6ba7b810-9dad-11d1-80b4-00c04fd430c8" {
		t.Errorf("videoKey = %q", got)
	}
}
