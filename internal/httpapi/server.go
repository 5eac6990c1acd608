// Package httpapi exposes the search pipeline over HTTP: a streaming search
// endpoint, export endpoints that re-run the search to completion, the
// query-assist helpers, and usage stats.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/joelkehle/patentscout/internal/history"
	"github.com/joelkehle/patentscout/internal/pipeline"
	"github.com/joelkehle/patentscout/internal/stream"
)

// SearchRunner is the pipeline surface the server needs.
type SearchRunner interface {
	Run(ctx context.Context, req pipeline.Request, emit stream.Emitter) (pipeline.Outcome, error)
	RunToCompletion(ctx context.Context, req pipeline.Request) (pipeline.Outcome, error)
}

// Assistant covers the query-side LLM helpers.
type Assistant interface {
	ExtractTerms(ctx context.Context, description string) (string, error)
	RelatedTerms(ctx context.Context, terms []string) (map[string][]string, error)
	GenerateDescription(ctx context.Context, idea string, chunk func(text string) error) error
}

// PDFRenderer turns report markdown into PDF bytes.
type PDFRenderer interface {
	Render(ctx context.Context, markdown string) ([]byte, error)
}

// Recorder persists per-search usage rows.
type Recorder interface {
	Record(rec history.SearchRecord) error
	Stats() (history.Stats, error)
}

type Options struct {
	Runner        SearchRunner
	Assistant     Assistant
	Renderer      PDFRenderer
	History       Recorder
	Backend       string
	VectorLogPath string
}

type Server struct {
	runner        SearchRunner
	assist        Assistant
	renderer      PDFRenderer
	hist          Recorder
	backend       string
	vectorLogPath string
}

func NewServer(opts Options) http.Handler {
	s := &Server{
		runner:        opts.Runner,
		assist:        opts.Assistant,
		renderer:      opts.Renderer,
		hist:          opts.History,
		backend:       opts.Backend,
		vectorLogPath: opts.VectorLogPath,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/search", s.handleSearch)
	mux.HandleFunc("/api/export/csv", s.handleExportCSV)
	mux.HandleFunc("/api/export/pdf", s.handleExportPDF)
	mux.HandleFunc("/api/extract-terms", s.handleExtractTerms)
	mux.HandleFunc("/api/get-related-terms", s.handleRelatedTerms)
	mux.HandleFunc("/api/generate-description", s.handleGenerateDescription)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

func methodOnly(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func parseInt(value string, def int) int {
	if strings.TrimSpace(value) == "" {
		return def
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return v
}

type searchRequest struct {
	Description string `json:"description"`
	ResultLimit int    `json:"result_limit"`
}

// readSearchRequest accepts GET with query parameters (the EventSource
// path, which cannot POST) and POST with a JSON body.
func readSearchRequest(r *http.Request) (searchRequest, error) {
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		desc := strings.TrimSpace(q.Get("description"))
		if desc == "" {
			desc = strings.TrimSpace(q.Get("q"))
		}
		return searchRequest{
			Description: desc,
			ResultLimit: parseInt(q.Get("result_limit"), 0),
		}, nil
	case http.MethodPost:
		var req searchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return searchRequest{}, fmt.Errorf("decode request body: %w", err)
		}
		req.Description = strings.TrimSpace(req.Description)
		return req, nil
	default:
		return searchRequest{}, errors.New("method not allowed")
	}
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	req, err := readSearchRequest(r)
	if err != nil {
		if err.Error() == "method not allowed" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Description == "" {
		writeError(w, http.StatusBadRequest, "description is required")
		return
	}

	sse, err := stream.NewSSE(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out, runErr := s.runner.Run(r.Context(), pipeline.Request{
		Query:       req.Description,
		ResultLimit: req.ResultLimit,
	}, sse)
	if runErr != nil {
		// The stream already carried the error event (or the client went
		// away); nothing more to send on this connection.
		return
	}
	s.record(req, out)
}

func (s *Server) record(req searchRequest, out pipeline.Outcome) {
	if s.hist == nil {
		return
	}
	err := s.hist.Record(history.SearchRecord{
		RequestID:        out.RequestID,
		QueryChars:       len(req.Description),
		ResultLimit:      req.ResultLimit,
		Candidates:       out.TotalCandidates,
		Analyzed:         out.Summary.Analyzed,
		HighConfidence:   out.Summary.HighConfidence,
		MediumConfidence: out.Summary.MediumConfidence,
		StoppedEarly:     out.StoppedEarly,
		Duration:         out.Duration,
	})
	if err != nil {
		log.Printf("patentscout history record failed request_id=%s err=%q", out.RequestID, err.Error())
	}
}

// runForExport re-runs the search to completion for the download
// endpoints, which take the same request shape as /api/search.
func (s *Server) runForExport(w http.ResponseWriter, r *http.Request) (pipeline.Outcome, string, bool) {
	req, err := readSearchRequest(r)
	if err != nil {
		if err.Error() == "method not allowed" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return pipeline.Outcome{}, "", false
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return pipeline.Outcome{}, "", false
	}
	if req.Description == "" {
		writeError(w, http.StatusBadRequest, "description is required")
		return pipeline.Outcome{}, "", false
	}
	out, err := s.runner.RunToCompletion(r.Context(), pipeline.Request{
		Query:       req.Description,
		ResultLimit: req.ResultLimit,
	})
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return pipeline.Outcome{}, "", false
	}
	s.record(req, out)
	return out, req.Description, true
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	out, _, ok := s.runForExport(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="prior-art-results.csv"`)
	if err := pipeline.WriteCSV(w, out.All); err != nil {
		log.Printf("patentscout csv export write failed err=%q", err.Error())
	}
}

func (s *Server) handleExportPDF(w http.ResponseWriter, r *http.Request) {
	out, query, ok := s.runForExport(w, r)
	if !ok {
		return
	}
	md := pipeline.BuildReportMarkdown(query, out)
	pdf, err := s.renderer.Render(r.Context(), md)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "render pdf: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="prior-art-report.pdf"`)
	_, _ = w.Write(pdf)
}

func (s *Server) handleExtractTerms(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "decode request body: "+err.Error())
		return
	}
	terms, err := s.assist.ExtractTerms(r.Context(), req.Description)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"search_terms": terms})
}

func (s *Server) handleRelatedTerms(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Terms []string `json:"terms"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "decode request body: "+err.Error())
		return
	}
	if len(req.Terms) == 0 {
		writeError(w, http.StatusBadRequest, "terms is required")
		return
	}
	related, err := s.assist.RelatedTerms(r.Context(), req.Terms)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"related_terms": related})
}

func (s *Server) handleGenerateDescription(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Idea string `json:"idea"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "decode request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Idea) == "" {
		writeError(w, http.StatusBadRequest, "idea is required")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	err := s.assist.GenerateDescription(r.Context(), req.Idea, func(text string) error {
		if _, werr := w.Write([]byte(text)); werr != nil {
			return werr
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		// Headers are gone; the best we can do is cut the stream.
		log.Printf("patentscout generate description failed err=%q", err.Error())
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	payload := map[string]any{}
	if s.hist != nil {
		st, err := s.hist.Stats()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		payload["searches"] = st
	}
	if s.vectorLogPath != "" {
		if total, err := history.ReadCorpusTotal(s.vectorLogPath); err == nil {
			payload["corpus_patents"] = total
		}
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"backend": s.backend,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}
