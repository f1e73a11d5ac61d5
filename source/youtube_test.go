package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchComments_FollowsPagesUpToLimit(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Query().Get("videoId") != "abcdefghijk" {
			t.Errorf("videoId = %q", r.URL.Query().Get("videoId"))
		}
		items := []map[string]interface{}{}
		for i := 0; i < 2; i++ {
			items = append(items, map[string]interface{}{
				"id": fmt.Sprintf("c%d-%d", calls, i),
				"snippet": map[string]interface{}{
					"topLevelComment": map[string]interface{}{
						"snippet": map[string]interface{}{
							"authorDisplayName": "user",
							"textDisplay":       "text",
							"likeCount":         i,
							"publishedAt":       "2024-01-02T03:04:05Z",
						},
					},
				},
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"nextPageToken": "more", "items": items})
	}))
	defer srv.Close()

	yt := NewYouTube("key", srv.URL, 3)
	comments, err := yt.FetchComments(context.Background(), "abcdefghijk")
	if err != nil {
		t.Fatalf("FetchComments: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if len(comments) != 4 {
		t.Fatalf("len(comments) = %d, want 4", len(comments))
	}
	if comments[0].PublishedAt == nil {
		t.Error("published_at not parsed")
	}
}

func TestFetchComments_MapsForbidden(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewYouTube("key", srv.URL, 10).FetchComments(context.Background(), "abcdefghijk")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}

func TestFetchVideoInfo_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items":[]}`))
	}))
	defer srv.Close()

	_, err := NewYouTube("key", srv.URL, 10).FetchVideoInfo(context.Background(), "abcdefghijk")
	if !errors.Is(err, ErrVideoNotFound) {
		t.Errorf("err = %v, want ErrVideoNotFound", err)
	}
}
