package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPEngine calls a remote analysis engine over JSON/HTTP.
type HTTPEngine struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPEngine(baseURL string, timeout time.Duration) *HTTPEngine {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &HTTPEngine{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (e *HTTPEngine) Cluster(ctx context.Context, texts []string) ([]Group, error) {
	var resp struct {
		Groups []Group `json:"groups"`
	}
	if err := e.call(ctx, "/cluster", map[string]interface{}{"texts": texts}, &resp); err != nil {
		return nil, err
	}
	return resp.Groups, nil
}

func (e *HTTPEngine) Ordinate(ctx context.Context, texts []string, groups []Group) ([]Point, error) {
	var resp struct {
		Points []Point `json:"points"`
	}
	req := map[string]interface{}{"texts": texts, "groups": groups}
	if err := e.call(ctx, "/ordinate", req, &resp); err != nil {
		return nil, err
	}
	return resp.Points, nil
}

func (e *HTTPEngine) Summarize(ctx context.Context, title string, digests []Digest) (*Summary, error) {
	var resp Summary
	req := map[string]interface{}{"title": title, "clusters": digests}
	if err := e.call(ctx, "/summarize", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (e *HTTPEngine) SummarizeVideo(ctx context.Context, sourceKey, title string) (string, error) {
	var resp struct {
		Summary string `json:"summary"`
	}
	req := map[string]interface{}{"source_key": sourceKey, "title": title}
	if err := e.call(ctx, "/video-summary", req, &resp); err != nil {
		return "", err
	}
	return resp.Summary, nil
}

func (e *HTTPEngine) call(ctx context.Context, endpoint string, body interface{}, out interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+endpoint, bytes.NewBuffer(jsonBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("engine %s: %s", endpoint, apiErr.Error)
		}
		return fmt.Errorf("engine %s: status %d", endpoint, resp.StatusCode)
	}

	return json.Unmarshal(data, out)
}
