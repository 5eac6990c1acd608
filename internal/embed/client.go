// Package embed maps free text to a fixed-length vector by calling the
// embedding service. Failure here aborts the whole request.
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Client struct {
	url        string
	model      string
	httpClient *http.Client
}

func NewClient(url, model string, httpClient *http.Client) *Client {
	if strings.TrimSpace(url) == "" {
		url = "http://localhost:11434/api/embeddings"
	}
	if strings.TrimSpace(model) == "" {
		model = "all-minilm"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{url: url, model: model, httpClient: httpClient}
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	payload, _ := json.Marshal(map[string]any{
		"model":  c.model,
		"prompt": text,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	defer res.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if res.StatusCode >= 400 {
		return nil, fmt.Errorf("embedding request: status code: %d body=%s", res.StatusCode, string(b))
	}

	var parsed struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.Unmarshal(b, &parsed); err != nil {
		return nil, fmt.Errorf("embedding request: decode: %w", err)
	}
	if len(parsed.Embedding) == 0 {
		return nil, errors.New("embedding request: empty vector")
	}
	return parsed.Embedding, nil
}
