// Package judge issues single-shot relevance judgments against a pool of
// interchangeable LLM endpoints. One call talks to exactly one endpoint and
// never retries; the pipeline tolerates intermittent failures through
// breadth across candidates instead.
package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/joelkehle/patentscout/internal/index"
	"github.com/joelkehle/patentscout/internal/verdict"
)

const DefaultTimeout = 120 * time.Second

// Generator is one backend capable of producing judge output for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Name() string
}

// OllamaGenerator round-robins generation requests over the endpoint pool.
type OllamaGenerator struct {
	pool       *Pool
	model      string
	httpClient *http.Client
}

func NewOllamaGenerator(pool *Pool, model string, httpClient *http.Client) *OllamaGenerator {
	if strings.TrimSpace(model) == "" {
		model = DefaultOllamaModel
	}
	if httpClient == nil {
		httpClient = SharedHTTPClient()
	}
	return &OllamaGenerator{pool: pool, model: model, httpClient: httpClient}
}

func (g *OllamaGenerator) Name() string { return "ollama/" + g.model }

func (g *OllamaGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	payload, _ := json.Marshal(map[string]any{
		"model":  g.model,
		"prompt": prompt,
		"stream": false,
	})
	url := g.pool.Next() + "/api/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := g.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if res.StatusCode >= 400 {
		return "", fmt.Errorf("status code: %d body=%s", res.StatusCode, truncate(string(b), 200))
	}

	var parsed struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(b, &parsed); err != nil {
		return "", fmt.Errorf("decode generate response: %w", err)
	}
	return parsed.Response, nil
}

// Client scores one candidate against the query with a per-call deadline.
type Client struct {
	gen     Generator
	timeout time.Duration
}

func NewClient(gen Generator, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{gen: gen, timeout: timeout}
}

func (c *Client) Backend() string { return c.gen.Name() }

// Judge requests one relevance verdict. Transport failures and deadline
// expiry come back as degraded Verdicts, never as errors; the only error
// Judge returns is the caller's own cancellation, propagated unmodified so
// the dispatcher can tell cancelled work from failed work.
func (c *Client) Judge(ctx context.Context, query string, cand index.Candidate) (verdict.Verdict, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.gen.Generate(callCtx, buildPrompt(query, cand))
	if err != nil {
		if ctx.Err() != nil {
			return verdict.Verdict{}, ctx.Err()
		}
		if isTimeout(err) {
			return verdict.TimedOut("Analysis timed out: " + err.Error()), nil
		}
		return verdict.RequestFailed("Analysis failed: " + err.Error()), nil
	}
	return verdict.Parse(raw), nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
