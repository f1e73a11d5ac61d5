// Package client is the consumer side of the analysis API: an HTTP client, a
// job status poller and the per-view map state built on top of them.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"comment-map/dto"
)

// ErrRequestFailed covers every transport error and non-2xx response.
var ErrRequestFailed = errors.New("request failed")

type APIClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewAPIClient(baseURL string, timeout time.Duration) *APIClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &APIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *APIClient) Analyze(ctx context.Context, reference string) (uuid.UUID, error) {
	var resp dto.AnalyzeResponse
	if err := c.do(ctx, http.MethodPost, "/analyze", dto.AnalyzeRequest{URL: reference}, &resp); err != nil {
		return uuid.Nil, err
	}
	return resp.JobId, nil
}

func (c *APIClient) JobStatus(ctx context.Context, jobId uuid.UUID) (*dto.JobStatusResponse, error) {
	var resp dto.JobStatusResponse
	if err := c.do(ctx, http.MethodGet, "/jobs/"+jobId.String(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *APIClient) Video(ctx context.Context, videoId uuid.UUID) (*dto.VideoResponse, error) {
	var resp dto.VideoResponse
	if err := c.do(ctx, http.MethodGet, "/videos/"+videoId.String(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *APIClient) Cluster(ctx context.Context, clusterId uuid.UUID) (*dto.ClusterResponse, error) {
	var resp dto.ClusterResponse
	if err := c.do(ctx, http.MethodGet, "/clusters/"+clusterId.String(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *APIClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &payload)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrRequestFailed, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s %s: status %d", ErrRequestFailed, method, path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrRequestFailed, path, err)
	}
	return nil
}
