package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	defaultBaseURL = "https://www.googleapis.com/youtube/v3"
	maxPageSize    = 100
)

// YouTube reads comment threads and video snippets through the Data API v3.
type YouTube struct {
	apiKey      string
	baseURL     string
	maxComments int
	httpClient  *http.Client
}

func NewYouTube(apiKey, baseURL string, maxComments int) *YouTube {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if maxComments < 1 {
		maxComments = maxPageSize
	}
	return &YouTube{
		apiKey:      apiKey,
		baseURL:     baseURL,
		maxComments: maxComments,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
}

type commentThreadsResponse struct {
	NextPageToken string `json:"nextPageToken"`
	Items         []struct {
		ID      string `json:"id"`
		Snippet struct {
			TopLevelComment struct {
				Snippet struct {
					AuthorDisplayName string    `json:"authorDisplayName"`
					TextDisplay       string    `json:"textDisplay"`
					LikeCount         int       `json:"likeCount"`
					PublishedAt       time.Time `json:"publishedAt"`
				} `json:"snippet"`
			} `json:"topLevelComment"`
		} `json:"snippet"`
	} `json:"items"`
}

type videosResponse struct {
	Items []struct {
		Snippet struct {
			Title        string `json:"title"`
			ChannelTitle string `json:"channelTitle"`
			Description  string `json:"description"`
		} `json:"snippet"`
	} `json:"items"`
}

func (y *YouTube) FetchComments(ctx context.Context, videoID string) ([]Comment, error) {
	comments := make([]Comment, 0, y.maxComments)
	pageToken := ""

	for len(comments) < y.maxComments {
		q := url.Values{}
		q.Set("part", "snippet")
		q.Set("videoId", videoID)
		q.Set("maxResults", strconv.Itoa(min(maxPageSize, y.maxComments-len(comments))))
		q.Set("textFormat", "plainText")
		q.Set("order", "relevance")
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}

		var page commentThreadsResponse
		if err := y.get(ctx, "/commentThreads", q, &page); err != nil {
			return nil, err
		}

		for _, item := range page.Items {
			s := item.Snippet.TopLevelComment.Snippet
			published := s.PublishedAt
			c := Comment{
				ID:        item.ID,
				Author:    s.AuthorDisplayName,
				Text:      s.TextDisplay,
				LikeCount: s.LikeCount,
			}
			if !published.IsZero() {
				c.PublishedAt = &published
			}
			comments = append(comments, c)
		}

		pageToken = page.NextPageToken
		if pageToken == "" {
			break
		}
	}

	return comments, nil
}

func (y *YouTube) FetchVideoInfo(ctx context.Context, videoID string) (*VideoInfo, error) {
	q := url.Values{}
	q.Set("part", "snippet")
	q.Set("id", videoID)

	var resp videosResponse
	if err := y.get(ctx, "/videos", q, &resp); err != nil {
		return nil, err
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrVideoNotFound, videoID)
	}

	s := resp.Items[0].Snippet
	return &VideoInfo{
		Title:       s.Title,
		Channel:     s.ChannelTitle,
		Description: s.Description,
	}, nil
}

func (y *YouTube) get(ctx context.Context, path string, q url.Values, out interface{}) error {
	q.Set("key", y.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, y.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}

	resp, err := y.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	switch {
	case resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: quota exceeded or comments disabled", ErrUnavailable)
	case resp.StatusCode == http.StatusNotFound:
		return ErrVideoNotFound
	case resp.StatusCode >= 300:
		return fmt.Errorf("youtube api error: status %d", resp.StatusCode)
	}

	return json.Unmarshal(body, out)
}
