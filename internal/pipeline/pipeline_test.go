package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/joelkehle/patentscout/internal/index"
	"github.com/joelkehle/patentscout/internal/stream"
	"github.com/joelkehle/patentscout/internal/verdict"
)

type fakeEmbedder struct {
	err error
}

func (f fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2}, nil
}

type fakeSearcher struct {
	candidates []index.Candidate
	err        error
}

func (f fakeSearcher) Search(ctx context.Context, vector []float32, limit int) ([]index.Candidate, error) {
	return f.candidates, f.err
}

type judgeFunc func(ctx context.Context, query string, cand index.Candidate) (verdict.Verdict, error)

func (f judgeFunc) Judge(ctx context.Context, query string, cand index.Candidate) (verdict.Verdict, error) {
	return f(ctx, query, cand)
}

func makeCandidates(n int) []index.Candidate {
	out := make([]index.Candidate, n)
	for i := range out {
		out[i] = index.Candidate{
			Title:        fmt.Sprintf("Patent %d", i),
			PatentNumber: fmt.Sprintf("US%07d", i),
		}
	}
	return out
}

func scoreByTitle(scores map[string]float64) judgeFunc {
	return func(ctx context.Context, query string, cand index.Candidate) (verdict.Verdict, error) {
		sc, ok := scores[cand.Title]
		if !ok {
			return verdict.RequestFailed("no backend"), nil
		}
		return verdict.Scored(sc, "overlapping claims"), nil
	}
}

func TestRunStreamsScoredResultsAndCompletes(t *testing.T) {
	cands := makeCandidates(4)
	p := New(Options{Concurrency: 2, EarlyStop: false, DefaultResultLimit: 10},
		fakeEmbedder{}, fakeSearcher{candidates: cands},
		judgeFunc(func(ctx context.Context, query string, cand index.Candidate) (verdict.Verdict, error) {
			return verdict.Scored(90, "close match"), nil
		}))

	var rec stream.Capture
	out, err := p.Run(context.Background(), Request{Query: "a widget"}, &rec)
	if err != nil {
		t.Fatal(err)
	}

	kinds := rec.Kinds()
	if kinds[len(kinds)-1] != stream.KindComplete {
		t.Fatalf("last event = %v", kinds[len(kinds)-1])
	}
	results := 0
	lastPos := 0
	for _, ev := range rec.Events {
		if ev.Kind != stream.KindResult {
			continue
		}
		results++
		rp := ev.Payload.(ResultPayload)
		if rp.Position != lastPos+1 {
			t.Fatalf("position %d after %d", rp.Position, lastPos)
		}
		lastPos = rp.Position
		if rp.Result.Score == nil || *rp.Result.Score != 90 {
			t.Fatalf("unexpected result payload %+v", rp)
		}
	}
	if results != 4 {
		t.Fatalf("results = %d", results)
	}
	if out.Summary.Analyzed != 4 || out.Summary.Results != 4 || out.Summary.TotalCandidates != 4 {
		t.Fatalf("summary = %+v", out.Summary)
	}
	if out.StoppedEarly {
		t.Fatal("should not stop early")
	}
}

func TestEarlyStopHaltsOnceLimitReached(t *testing.T) {
	cands := makeCandidates(20)
	var calls atomic.Int64
	judge := judgeFunc(func(ctx context.Context, query string, cand index.Candidate) (verdict.Verdict, error) {
		n := calls.Add(1)
		if n <= 3 {
			return verdict.Scored(95, "near identical"), nil
		}
		// Later calls park until the stop signal cancels them.
		<-ctx.Done()
		return verdict.Verdict{}, ctx.Err()
	})
	p := New(Options{Concurrency: 2, EarlyStop: true, DefaultResultLimit: 3},
		fakeEmbedder{}, fakeSearcher{candidates: cands}, judge)

	var rec stream.Capture
	out, err := p.Run(context.Background(), Request{Query: "a widget", ResultLimit: 3}, &rec)
	if err != nil {
		t.Fatal(err)
	}

	results := 0
	for _, k := range rec.Kinds() {
		if k == stream.KindResult {
			results++
		}
	}
	if results != 3 {
		t.Fatalf("results = %d", results)
	}
	if !out.StoppedEarly || !out.Summary.StoppedEarly {
		t.Fatal("expected early stop")
	}
	if got := calls.Load(); got >= 20 {
		t.Fatalf("all %d judge calls ran despite early stop", got)
	}
}

func TestEarlyStopStreamsOnlyHighConfidence(t *testing.T) {
	scores := map[string]float64{
		"Patent 0": 85,
		"Patent 1": 70,
		"Patent 2": 90,
		"Patent 3": 40,
	}
	p := New(Options{Concurrency: 1, HighThreshold: 80, MediumThreshold: 60, EarlyStop: true, DefaultResultLimit: 10},
		fakeEmbedder{}, fakeSearcher{candidates: makeCandidates(4)}, scoreByTitle(scores))

	var rec stream.Capture
	out, err := p.Run(context.Background(), Request{Query: "q"}, &rec)
	if err != nil {
		t.Fatal(err)
	}
	for _, ev := range rec.Events {
		if ev.Kind != stream.KindResult {
			continue
		}
		rp := ev.Payload.(ResultPayload)
		if *rp.Result.Score < 80 {
			t.Fatalf("streamed below-threshold score %v", *rp.Result.Score)
		}
	}
	if out.Summary.HighConfidence != 2 || out.Summary.MediumConfidence != 3 {
		t.Fatalf("summary = %+v", out.Summary)
	}
	if out.Summary.Results != 2 {
		t.Fatalf("results = %d", out.Summary.Results)
	}
}

func TestResultLimitCapsStreamWithoutEarlyStop(t *testing.T) {
	p := New(Options{Concurrency: 1, EarlyStop: false, DefaultResultLimit: 15},
		fakeEmbedder{}, fakeSearcher{candidates: makeCandidates(5)},
		judgeFunc(func(ctx context.Context, query string, cand index.Candidate) (verdict.Verdict, error) {
			return verdict.Scored(50, "partial overlap"), nil
		}))

	var rec stream.Capture
	out, err := p.Run(context.Background(), Request{Query: "q", ResultLimit: 2}, &rec)
	if err != nil {
		t.Fatal(err)
	}
	results := 0
	for _, k := range rec.Kinds() {
		if k == stream.KindResult {
			results++
		}
	}
	if results != 2 {
		t.Fatalf("results = %d", results)
	}
	if out.Summary.Analyzed != 5 {
		t.Fatalf("analyzed = %d", out.Summary.Analyzed)
	}
	if len(out.Ranked) != 2 || len(out.All) != 5 {
		t.Fatalf("ranked=%d all=%d", len(out.Ranked), len(out.All))
	}
}

func TestEmbedFailureEndsStreamWithError(t *testing.T) {
	p := New(Options{}, fakeEmbedder{err: errors.New("connection refused")},
		fakeSearcher{}, scoreByTitle(nil))

	var rec stream.Capture
	_, err := p.Run(context.Background(), Request{Query: "q"}, &rec)
	if err == nil {
		t.Fatal("expected error")
	}
	if StageOf(err) != StageEmbed {
		t.Fatalf("stage = %q", StageOf(err))
	}
	kinds := rec.Kinds()
	if kinds[len(kinds)-1] != stream.KindError {
		t.Fatalf("last event = %v", kinds[len(kinds)-1])
	}
	for _, k := range kinds {
		if k == stream.KindResult || k == stream.KindComplete {
			t.Fatalf("unexpected %v after failure", k)
		}
	}
}

func TestIndexFailureReportsStage(t *testing.T) {
	p := New(Options{}, fakeEmbedder{},
		fakeSearcher{err: errors.New("collection missing")}, scoreByTitle(nil))

	_, err := p.Run(context.Background(), Request{Query: "q"}, &stream.Capture{})
	if StageOf(err) != StageIndex {
		t.Fatalf("stage = %q, err = %v", StageOf(err), err)
	}
}

func TestZeroCandidatesCompletesCleanly(t *testing.T) {
	p := New(Options{}, fakeEmbedder{}, fakeSearcher{}, scoreByTitle(nil))

	var rec stream.Capture
	out, err := p.Run(context.Background(), Request{Query: "q"}, &rec)
	if err != nil {
		t.Fatal(err)
	}
	if out.Summary.Analyzed != 0 || out.Summary.Results != 0 {
		t.Fatalf("summary = %+v", out.Summary)
	}
	kinds := rec.Kinds()
	if kinds[len(kinds)-1] != stream.KindComplete {
		t.Fatalf("last event = %v", kinds[len(kinds)-1])
	}
	for _, k := range kinds {
		if k == stream.KindResult {
			t.Fatal("result event for empty candidate set")
		}
	}
}

func TestFailedJudgmentsCountedButNotStreamed(t *testing.T) {
	p := New(Options{Concurrency: 1, EarlyStop: false},
		fakeEmbedder{}, fakeSearcher{candidates: makeCandidates(3)},
		judgeFunc(func(ctx context.Context, query string, cand index.Candidate) (verdict.Verdict, error) {
			return verdict.TimedOut("deadline exceeded"), nil
		}))

	var rec stream.Capture
	out, err := p.Run(context.Background(), Request{Query: "q"}, &rec)
	if err != nil {
		t.Fatal(err)
	}
	for _, k := range rec.Kinds() {
		if k == stream.KindResult {
			t.Fatal("streamed an unscored judgment")
		}
	}
	if out.Summary.Analyzed != 3 || out.Summary.Results != 0 {
		t.Fatalf("summary = %+v", out.Summary)
	}
}

func TestRankingOrdersByScoreThenIndex(t *testing.T) {
	scores := map[string]float64{
		"Patent 0": 50,
		"Patent 2": 90,
		"Patent 3": 90,
	}
	// Patent 1 fails and must sort last.
	p := New(Options{Concurrency: 1, EarlyStop: false},
		fakeEmbedder{}, fakeSearcher{candidates: makeCandidates(4)}, scoreByTitle(scores))

	out, err := p.RunToCompletion(context.Background(), Request{Query: "q"})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"Patent 2", "Patent 3", "Patent 0", "Patent 1"}
	if len(out.All) != len(want) {
		t.Fatalf("all = %d", len(out.All))
	}
	for i, title := range want {
		if out.All[i].Candidate.Title != title {
			t.Fatalf("position %d = %s, want %s", i, out.All[i].Candidate.Title, title)
		}
	}
}

func TestWriteCSV(t *testing.T) {
	score := 87.5
	judgments := []Judgment{
		{Candidate: index.Candidate{Title: "Widget, improved", PatentNumber: "US1", FilingDate: "2001-02-03", GooglePatentURL: "https://patents.google.com/patent/US1"},
			Verdict: verdict.Verdict{Status: verdict.StatusScored, Score: &score, Reason: "same mechanism"}},
		{Candidate: index.Candidate{Title: "Other", PatentNumber: "US2"},
			Verdict: verdict.RequestFailed("no backend")},
	}

	var b strings.Builder
	if err := WriteCSV(&b, judgments); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(b.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d:\n%s", len(lines), b.String())
	}
	if lines[0] != "title,patentNumber,filingDate,score,reason,status,googlePatentUrl" {
		t.Fatalf("header = %s", lines[0])
	}
	if !strings.Contains(lines[1], `"Widget, improved"`) || !strings.Contains(lines[1], "87.50") {
		t.Fatalf("row = %s", lines[1])
	}
	if !strings.Contains(lines[2], "request-failed") {
		t.Fatalf("row = %s", lines[2])
	}
}

func TestBuildReportMarkdown(t *testing.T) {
	score := 91.0
	out := Outcome{
		TotalCandidates: 10,
		Summary:         Summary{Analyzed: 10, HighConfidence: 1, MediumConfidence: 2, ScoreThreshold: 80},
		Ranked: []Judgment{
			{Candidate: index.Candidate{Title: "Charging pad", PatentNumber: "US123", GooglePatentURL: "https://patents.google.com/patent/US123"},
				Verdict: verdict.Verdict{Status: verdict.StatusScored, Score: &score, Reason: "claims overlap"}},
			{Candidate: index.Candidate{Title: "Broken"}, Verdict: verdict.RequestFailed("x")},
		},
	}
	md := BuildReportMarkdown("inductive charger\nfor phones", out)
	if !strings.Contains(md, "# Prior Art Search Report") {
		t.Fatal("missing title")
	}
	if !strings.Contains(md, "### 1. Charging pad") {
		t.Fatal("missing ranked entry")
	}
	if !strings.Contains(md, "[US123](https://patents.google.com/patent/US123)") {
		t.Fatal("missing patent link")
	}
	if strings.Contains(md, "Broken") {
		t.Fatal("unscored candidate leaked into report")
	}
	if !strings.Contains(md, "> inductive charger\n> for phones") {
		t.Fatal("query not quoted")
	}
}
