// Package assist wraps the query-side LLM helpers: condensing a long idea
// description into search terms, expanding terms into related vocabulary,
// and drafting a description from a short idea. These share the judge
// endpoint pool but never touch the scoring path.
package assist

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/joelkehle/patentscout/internal/judge"
	"github.com/joelkehle/patentscout/internal/verdict"
)

// Descriptions shorter than this are used verbatim as search terms; there
// is nothing worth condensing.
const minExtractChars = 20

const relatedTermsLimit = 5

// relatedTermsConcurrency stays small because these requests ride the same
// GPU pool the scoring fan-out saturates.
const relatedTermsConcurrency = 4

type Client struct {
	gen        judge.Generator
	pool       *judge.Pool
	model      string
	httpClient *http.Client
}

func NewClient(pool *judge.Pool, model string, httpClient *http.Client) *Client {
	if strings.TrimSpace(model) == "" {
		model = judge.DefaultOllamaModel
	}
	if httpClient == nil {
		httpClient = judge.SharedHTTPClient()
	}
	return &Client{
		gen:        judge.NewOllamaGenerator(pool, model, httpClient),
		pool:       pool,
		model:      model,
		httpClient: httpClient,
	}
}

// ExtractTerms condenses a full idea description into a short search-term
// string. Malformed model output falls back to the empty string so the
// caller can search with the raw description instead.
func (c *Client) ExtractTerms(ctx context.Context, description string) (string, error) {
	description = strings.TrimSpace(description)
	if utf8.RuneCountInString(description) < minExtractChars {
		return "", nil
	}
	raw, err := c.gen.Generate(ctx, extractTermsPrompt(description))
	if err != nil {
		return "", fmt.Errorf("extract terms: %w", err)
	}
	var payload struct {
		SearchTerms string `json:"search_terms"`
	}
	if !verdict.ExtractObject(raw, &payload) {
		return "", nil
	}
	return strings.TrimSpace(payload.SearchTerms), nil
}

// RelatedTerms expands each input term into up to five related terms,
// querying the pool in parallel. The result maps each input term to its
// expansions; a term whose output could not be parsed maps to nil.
func (c *Client) RelatedTerms(ctx context.Context, terms []string) (map[string][]string, error) {
	results := make([][]string, len(terms))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(relatedTermsConcurrency)
	for i, term := range terms {
		g.Go(func() error {
			raw, err := c.gen.Generate(gctx, relatedTermsPrompt(term))
			if err != nil {
				return fmt.Errorf("related terms for %q: %w", term, err)
			}
			var arr []string
			if verdict.ExtractArray(raw, &arr) {
				if len(arr) > relatedTermsLimit {
					arr = arr[:relatedTermsLimit]
				}
				results[i] = arr
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make(map[string][]string, len(terms))
	for i, term := range terms {
		out[term] = results[i]
	}
	return out, nil
}

// GenerateDescription streams a drafted invention description, invoking
// chunk for each model token batch as it arrives. A chunk error aborts the
// stream and is returned as-is.
func (c *Client) GenerateDescription(ctx context.Context, idea string, chunk func(text string) error) error {
	payload, _ := json.Marshal(map[string]any{
		"model":  c.model,
		"prompt": describePrompt(idea),
		"stream": true,
	})
	url := c.pool.Next() + "/api/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("generate description: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode >= 400 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return fmt.Errorf("generate description: status code: %d body=%s", res.StatusCode, string(b))
	}

	sc := bufio.NewScanner(res.Body)
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var part struct {
			Response string `json:"response"`
			Done     bool   `json:"done"`
		}
		if err := json.Unmarshal(line, &part); err != nil {
			continue
		}
		if part.Response != "" {
			if err := chunk(part.Response); err != nil {
				return err
			}
		}
		if part.Done {
			return nil
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("generate description: read stream: %w", err)
	}
	return nil
}
