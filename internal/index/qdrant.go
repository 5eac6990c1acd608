// Package index retrieves candidate patents from the Qdrant similarity
// index. Candidates are immutable once retrieved and live only for the
// duration of one search request.
package index

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

const (
	DefaultBaseURL    = "http://localhost:6333"
	DefaultCollection = "uspto_patents"
)

// Candidate is one document retrieved from the similarity index. SourceScore
// is the index's own similarity score, not the relevance verdict.
type Candidate struct {
	Title           string  `json:"title"`
	Abstract        string  `json:"abstract"`
	FilingDate      string  `json:"filingDate,omitempty"`
	PatentNumber    string  `json:"patentNumber"`
	GooglePatentURL string  `json:"googlePatentUrl,omitempty"`
	Preview         string  `json:"preview"`
	SourceScore     float64 `json:"sourceScore"`
}

type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
}

func NewClient(baseURL, collection string, httpClient *http.Client) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if strings.TrimSpace(collection) == "" {
		collection = DefaultCollection
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), collection: collection, httpClient: httpClient}
}

type searchResponse struct {
	Result []struct {
		Score   float64        `json:"score"`
		Payload map[string]any `json:"payload"`
	} `json:"result"`
}

// Search returns the top-limit nearest candidates for the query vector.
// Failure here is fatal to the request; the caller surfaces it as a
// terminal error event.
func (c *Client) Search(ctx context.Context, vector []float32, limit int) ([]Candidate, error) {
	if limit <= 0 {
		limit = 10
	}
	body := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	payload, _ := json.Marshal(body)
	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}
	defer res.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(res.Body, 8<<20))
	if res.StatusCode >= 400 {
		return nil, fmt.Errorf("qdrant search: status code: %d body=%s", res.StatusCode, string(b))
	}

	var parsed searchResponse
	if err := json.Unmarshal(b, &parsed); err != nil {
		return nil, fmt.Errorf("qdrant search: decode: %w", err)
	}

	out := make([]Candidate, 0, len(parsed.Result))
	for _, p := range parsed.Result {
		out = append(out, flattenPoint(p.Payload, p.Score))
	}
	return out, nil
}

func flattenPoint(payload map[string]any, score float64) Candidate {
	abstract := str(payload["abstract"])
	number := normalizePatentNumber(str(payload["patentNumber"]))
	c := Candidate{
		Title:        strings.TrimSpace(str(payload["title"])),
		Abstract:     abstract,
		FilingDate:   strings.TrimSpace(str(payload["filingDate"])),
		PatentNumber: number,
		Preview:      preview(abstract, 400),
		SourceScore:  score,
	}
	if number != "" {
		c.GooglePatentURL = fmt.Sprintf("https://patents.google.com/patent/%s/en", number)
	}
	return c
}

// normalizePatentNumber ensures the country prefix so the Google Patents
// link resolves; the corpus stores bare USPTO numbers.
func normalizePatentNumber(raw string) string {
	n := strings.TrimSpace(raw)
	if n == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToUpper(n), "US") {
		n = "US" + n
	}
	return n
}

func preview(s string, max int) string {
	if len(s) <= max {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
