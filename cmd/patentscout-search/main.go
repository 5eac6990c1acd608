// Command patentscout-search runs one prior-art search from the terminal
// and prints the ranked results, without going through the HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/joelkehle/patentscout/internal/config"
	"github.com/joelkehle/patentscout/internal/embed"
	"github.com/joelkehle/patentscout/internal/index"
	"github.com/joelkehle/patentscout/internal/judge"
	"github.com/joelkehle/patentscout/internal/pipeline"
)

func main() {
	queryFlag := flag.String("query", "", "invention description (reads stdin when empty)")
	limitFlag := flag.Int("limit", 0, "max results (defaults to RESULT_LIMIT)")
	csvFlag := flag.Bool("csv", false, "emit CSV instead of a table")
	flag.Parse()

	query := strings.TrimSpace(*queryFlag)
	if query == "" {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			log.Fatal(err)
		}
		query = strings.TrimSpace(string(b))
	}
	if query == "" {
		log.Fatal("no invention description given (use -query or pipe one on stdin)")
	}

	cfg := config.FromEnv()

	pool, err := judge.NewPool(cfg.JudgeEndpoints)
	if err != nil {
		log.Fatal(err)
	}
	var gen judge.Generator
	switch cfg.JudgeBackend {
	case "anthropic":
		gen, err = judge.NewAnthropicGeneratorFromEnv()
		if err != nil {
			log.Fatal(err)
		}
	default:
		gen = judge.NewOllamaGenerator(pool, cfg.JudgeModel, nil)
	}

	p := pipeline.New(pipeline.Options{
		Concurrency:        cfg.Concurrency,
		FetchCount:         cfg.FetchCount,
		HighThreshold:      cfg.HighThreshold,
		MediumThreshold:    cfg.MediumThreshold,
		DefaultResultLimit: cfg.ResultLimit,
	},
		embed.NewClient(cfg.EmbedURL, cfg.EmbedModel, nil),
		index.NewClient(cfg.QdrantURL, cfg.QdrantCollection, nil),
		judge.NewClient(gen, cfg.JudgeTimeout),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out, err := p.RunToCompletion(ctx, pipeline.Request{Query: query, ResultLimit: *limitFlag})
	if err != nil {
		log.Fatal(err)
	}

	if *csvFlag {
		if err := pipeline.WriteCSV(os.Stdout, out.All); err != nil {
			log.Fatal(err)
		}
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCORE\tPATENT\tFILED\tTITLE")
	for _, jd := range out.Ranked {
		if !jd.Verdict.HasScore() {
			continue
		}
		fmt.Fprintf(tw, "%.1f\t%s\t%s\t%s\n", *jd.Verdict.Score, jd.Candidate.PatentNumber, jd.Candidate.FilingDate, jd.Candidate.Title)
	}
	tw.Flush()
	fmt.Printf("\nanalyzed %d of %d candidates, %d high confidence (score >= %.0f)\n",
		out.Summary.Analyzed, out.TotalCandidates, out.Summary.HighConfidence, out.Summary.ScoreThreshold)

	judge.CloseSharedHTTPClient()
}
