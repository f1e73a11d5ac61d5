// Package source fetches raw comments and video metadata from the video
// platform.
package source

import (
	"errors"
	"time"
)

var (
	ErrVideoNotFound = errors.New("video not found")
	ErrUnavailable   = errors.New("comments unavailable")
)

type Comment struct {
	ID          string     `json:"id"`
	Author      string     `json:"author,omitempty"`
	Text        string     `json:"text"`
	LikeCount   int        `json:"like_count"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

type VideoInfo struct {
	Title       string `json:"title"`
	Channel     string `json:"channel"`
	Description string `json:"description"`
}
