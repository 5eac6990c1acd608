// Package pipeline runs one prior-art search end to end: embed the query,
// fetch candidates from the similarity index, fan judge calls out under a
// concurrency ceiling, and stream judgments to the caller as they complete.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/joelkehle/patentscout/internal/dispatch"
	"github.com/joelkehle/patentscout/internal/index"
	"github.com/joelkehle/patentscout/internal/stream"
	"github.com/joelkehle/patentscout/internal/verdict"
)

var tracer = otel.Tracer("patentscout.pipeline")

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Searcher interface {
	Search(ctx context.Context, vector []float32, limit int) ([]index.Candidate, error)
}

type Judge interface {
	Judge(ctx context.Context, query string, cand index.Candidate) (verdict.Verdict, error)
}

type Options struct {
	Concurrency        int
	FetchCount         int
	HighThreshold      float64
	MediumThreshold    float64
	ProgressInterval   int
	EarlyStop          bool
	DefaultResultLimit int
}

func (o *Options) normalize() {
	if o.Concurrency <= 0 {
		o.Concurrency = 32
	}
	if o.FetchCount <= 0 {
		o.FetchCount = 100
	}
	if o.HighThreshold <= 0 {
		o.HighThreshold = 80
	}
	if o.MediumThreshold <= 0 || o.MediumThreshold >= o.HighThreshold {
		o.MediumThreshold = o.HighThreshold * 0.75
	}
	if o.DefaultResultLimit <= 0 {
		o.DefaultResultLimit = 15
	}
}

type Request struct {
	ID          string
	Query       string
	ResultLimit int
}

// Judgment is one candidate paired with its verdict and its original
// position in the similarity-index ordering, which doubles as the sort
// tie-break.
type Judgment struct {
	Candidate     index.Candidate
	Verdict       verdict.Verdict
	OriginalIndex int
}

// Outcome is what remains after a request's stream has ended. It is handed
// to the exports and the history recorder and then discarded; nothing here
// is persisted between requests.
type Outcome struct {
	RequestID       string
	TotalCandidates int
	Summary         Summary
	Ranked          []Judgment // top results, bounded to the request limit
	All             []Judgment // every judgment, same ordering
	StoppedEarly    bool
	Duration        time.Duration
}

type Pipeline struct {
	opts     Options
	embedder Embedder
	searcher Searcher
	judge    Judge
}

func New(opts Options, embedder Embedder, searcher Searcher, judge Judge) *Pipeline {
	opts.normalize()
	return &Pipeline{opts: opts, embedder: embedder, searcher: searcher, judge: judge}
}

// Run streams one search to emit. The emitter receives log events, at most
// resultLimit result events in completion order, and exactly one complete
// or error event last.
func (p *Pipeline) Run(ctx context.Context, req Request, emit stream.Emitter) (Outcome, error) {
	return p.run(ctx, req, emit, p.opts.EarlyStop)
}

// RunToCompletion scores every candidate with early stop disabled, for the
// CSV and PDF exports and the CLI.
func (p *Pipeline) RunToCompletion(ctx context.Context, req Request) (Outcome, error) {
	return p.run(ctx, req, stream.Discard{}, false)
}

func (p *Pipeline) run(ctx context.Context, req Request, emit stream.Emitter, earlyStop bool) (Outcome, error) {
	started := time.Now()
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	limit := req.ResultLimit
	if limit <= 0 {
		limit = p.opts.DefaultResultLimit
	}

	ctx, span := tracer.Start(ctx, "search.run", trace.WithAttributes(
		attribute.String("request.id", req.ID),
		attribute.Int("request.result_limit", limit),
		attribute.Bool("request.early_stop", earlyStop),
	))
	defer span.End()

	log.Printf("patentscout search_start request_id=%s query_chars=%d result_limit=%d early_stop=%t", req.ID, len(req.Query), limit, earlyStop)

	if err := emit.Emit(stream.Log("[SEARCH] Starting search...")); err != nil {
		return Outcome{}, err
	}

	embedCtx, embedSpan := tracer.Start(ctx, "search.embed")
	vector, err := p.embedder.Embed(embedCtx, req.Query)
	embedSpan.End()
	if err != nil {
		return p.terminal(emit, req, &StageError{Stage: StageEmbed, Err: err})
	}

	if err := emit.Emit(stream.Log("[SEARCH] Finding candidate patents...")); err != nil {
		return Outcome{}, err
	}

	searchCtx, searchSpan := tracer.Start(ctx, "search.index")
	candidates, err := p.searcher.Search(searchCtx, vector, p.opts.FetchCount)
	searchSpan.End()
	if err != nil {
		return p.terminal(emit, req, &StageError{Stage: StageIndex, Err: err})
	}
	span.SetAttributes(attribute.Int("search.candidates", len(candidates)))

	st := newRunState(limit, p.opts.HighThreshold, p.opts.MediumThreshold, earlyStop)

	if len(candidates) == 0 {
		if err := emit.Emit(stream.Log("[SEARCH] No candidates found.")); err != nil {
			return Outcome{}, err
		}
		return p.finish(emit, span, req, st, 0, started)
	}

	if err := emit.Emit(stream.Log(fmt.Sprintf("[SEARCH] Found %d candidates, starting analysis...", len(candidates)))); err != nil {
		return Outcome{}, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	judgeFn := func(jctx context.Context, i int) (verdict.Verdict, error) {
		return p.judge.Judge(jctx, req.Query, candidates[i])
	}

	_, judgeSpan := tracer.Start(ctx, "search.judge_fanout", trace.WithAttributes(
		attribute.Int("judge.candidates", len(candidates)),
		attribute.Int("judge.concurrency", p.opts.Concurrency),
	))
	for j := range dispatch.Run(runCtx, len(candidates), p.opts.Concurrency, judgeFn) {
		if st.stopped {
			// In-flight calls racing the stop signal may still complete;
			// their judgments are discarded, never emitted.
			continue
		}
		jd := Judgment{Candidate: candidates[j.Index], Verdict: j.Verdict, OriginalIndex: j.Index}
		st.observe(jd)

		if st.shouldEmit(jd) {
			st.emitted++
			if err := emit.Emit(resultEvent(st.emitted, jd)); err != nil {
				cancel()
				judgeSpan.End()
				return Outcome{}, err
			}
		}
		if st.shouldStop() {
			st.stopped = true
			log.Printf("patentscout early_stop request_id=%s processed=%d high=%d", req.ID, st.processed, st.highCount)
			cancel()
			continue
		}
		if p.opts.ProgressInterval > 0 && st.processed%p.opts.ProgressInterval == 0 {
			if err := emit.Emit(stream.Log(fmt.Sprintf("[ANALYZE] Scored %d/%d candidates...", st.processed, len(candidates)))); err != nil {
				cancel()
				judgeSpan.End()
				return Outcome{}, err
			}
		}
	}
	judgeSpan.End()

	if msg, ok := st.distribution(); ok {
		if err := emit.Emit(stream.Log(msg)); err != nil {
			return Outcome{}, err
		}
	}

	return p.finish(emit, span, req, st, len(candidates), started)
}

func (p *Pipeline) finish(emit stream.Emitter, span trace.Span, req Request, st *runState, total int, started time.Time) (Outcome, error) {
	all := st.ranked()
	sum := st.summary(total)
	out := Outcome{
		RequestID:       req.ID,
		TotalCandidates: total,
		Summary:         sum,
		All:             all,
		Ranked:          all,
		StoppedEarly:    st.stopped,
		Duration:        time.Since(started),
	}
	if len(out.Ranked) > st.limit {
		out.Ranked = out.Ranked[:st.limit]
	}
	span.SetAttributes(
		attribute.Int("search.analyzed", sum.Analyzed),
		attribute.Int("search.results", sum.Results),
		attribute.Bool("search.stopped_early", st.stopped),
	)
	log.Printf("patentscout search_done request_id=%s candidates=%d analyzed=%d results=%d high=%d medium=%d stopped_early=%t elapsed_ms=%d",
		req.ID, total, sum.Analyzed, sum.Results, sum.HighConfidence, sum.MediumConfidence, st.stopped, out.Duration.Milliseconds())
	if err := emit.Emit(stream.Event{Kind: stream.KindComplete, Payload: sum}); err != nil {
		return Outcome{}, err
	}
	return out, nil
}

// terminal surfaces a fatal shared-stage failure as exactly one error event
// and returns the typed error for the caller's log line.
func (p *Pipeline) terminal(emit stream.Emitter, req Request, serr *StageError) (Outcome, error) {
	log.Printf("patentscout search_error request_id=%s stage=%s err=%q", req.ID, serr.Stage, serr.Err.Error())
	if emitErr := emit.Emit(stream.Error(serr.Error())); emitErr != nil {
		return Outcome{}, emitErr
	}
	return Outcome{RequestID: req.ID}, serr
}

type resultBody struct {
	index.Candidate
	Score  *float64       `json:"score"`
	Reason string         `json:"reason"`
	Status verdict.Status `json:"status"`
}

type ResultPayload struct {
	Position      int        `json:"position"`
	Index         int        `json:"index"`
	OriginalIndex int        `json:"original_index"`
	Result        resultBody `json:"result"`
}

func resultEvent(position int, jd Judgment) stream.Event {
	return stream.Event{Kind: stream.KindResult, Payload: ResultPayload{
		Position:      position,
		Index:         jd.OriginalIndex,
		OriginalIndex: jd.OriginalIndex,
		Result: resultBody{
			Candidate: jd.Candidate,
			Score:     jd.Verdict.Score,
			Reason:    jd.Verdict.Reason,
			Status:    jd.Verdict.Status,
		},
	}}
}
