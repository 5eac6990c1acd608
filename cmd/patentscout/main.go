package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joelkehle/patentscout/internal/assist"
	"github.com/joelkehle/patentscout/internal/config"
	"github.com/joelkehle/patentscout/internal/embed"
	"github.com/joelkehle/patentscout/internal/history"
	"github.com/joelkehle/patentscout/internal/httpapi"
	"github.com/joelkehle/patentscout/internal/index"
	"github.com/joelkehle/patentscout/internal/judge"
	"github.com/joelkehle/patentscout/internal/pipeline"
	"github.com/joelkehle/patentscout/internal/report"
	"github.com/joelkehle/patentscout/internal/telemetry"
)

func main() {
	addrFlag := flag.String("addr", "", "listen address (overrides PATENTSCOUT_ADDR)")
	flag.Parse()

	cfg := config.FromEnv()
	if *addrFlag != "" {
		cfg.ListenAddr = *addrFlag
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, "patentscout")
	if err != nil {
		log.Fatal(err)
	}

	store, err := history.Open(cfg.HistoryPath)
	if err != nil {
		log.Fatal(err)
	}

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
	judgeClient := judge.NewClient(gen, cfg.JudgeTimeout)

	p := pipeline.New(pipeline.Options{
		Concurrency:        cfg.Concurrency,
		FetchCount:         cfg.FetchCount,
		HighThreshold:      cfg.HighThreshold,
		MediumThreshold:    cfg.MediumThreshold,
		ProgressInterval:   cfg.ProgressInterval,
		EarlyStop:          cfg.EarlyStop,
		DefaultResultLimit: cfg.ResultLimit,
	},
		embed.NewClient(cfg.EmbedURL, cfg.EmbedModel, nil),
		index.NewClient(cfg.QdrantURL, cfg.QdrantCollection, nil),
		judgeClient,
	)

	handler := httpapi.NewServer(httpapi.Options{
		Runner:        p,
		Assistant:     assist.NewClient(pool, cfg.JudgeModel, nil),
		Renderer:      report.NewRenderer(),
		History:       store,
		Backend:       judgeClient.Backend(),
		VectorLogPath: cfg.VectorLogPath,
	})

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: handler}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("patentscout shutdown err=%q", err.Error())
		}
	}()

	log.Printf("patentscout listening addr=%s backend=%s endpoints=%d collection=%s", cfg.ListenAddr, judgeClient.Backend(), pool.Size(), cfg.QdrantCollection)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}

	if err := store.Close(); err != nil {
		log.Printf("patentscout history close err=%q", err.Error())
	}
	judge.CloseSharedHTTPClient()
	if err := shutdownTelemetry(context.Background()); err != nil {
		log.Printf("patentscout telemetry shutdown err=%q", err.Error())
	}
}
