// Package config collects every tuning knob of the search service into one
// env-sourced struct. All values are optional; invalid values fall back to
// the documented defaults rather than failing startup.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultConcurrency      = 32
	DefaultFetchCount       = 100
	DefaultHighThreshold    = 80
	DefaultMediumThreshold  = 60
	DefaultTimeoutSeconds   = 120
	DefaultProgressInterval = 1
	DefaultResultLimit      = 15
	DefaultListenAddr       = ":8090"
	DefaultEmbedModel       = "all-minilm"
	DefaultHistoryPath      = "patentscout.db"
)

// defaultOllamaPorts mirrors the GPU pool layout: one Ollama instance per
// device on consecutive ports.
var defaultOllamaPorts = []int{11430, 11431, 11432, 11433, 11434, 11435, 11436, 11437}

type Config struct {
	ListenAddr string

	QdrantURL        string
	QdrantCollection string

	EmbedURL   string
	EmbedModel string

	JudgeBackend   string // "ollama" or "anthropic"
	JudgeEndpoints []string
	JudgeModel     string

	Concurrency      int
	FetchCount       int
	HighThreshold    float64
	MediumThreshold  float64
	JudgeTimeout     time.Duration
	ProgressInterval int
	EarlyStop        bool
	ResultLimit      int

	HistoryPath   string
	VectorLogPath string
}

func FromEnv() Config {
	cfg := Config{
		ListenAddr:       envStr("PATENTSCOUT_ADDR", DefaultListenAddr),
		QdrantURL:        envStr("QDRANT_URL", "http://localhost:6333"),
		QdrantCollection: envStr("QDRANT_COLLECTION", "uspto_patents"),
		EmbedURL:         envStr("EMBED_URL", "http://localhost:11434/api/embeddings"),
		EmbedModel:       envStr("EMBED_MODEL", DefaultEmbedModel),
		JudgeBackend:     strings.ToLower(envStr("JUDGE_BACKEND", "ollama")),
		JudgeEndpoints:   judgeEndpointsFromEnv(),
		JudgeModel:       envStr("JUDGE_MODEL", "llama3.1:8b"),
		Concurrency:      envInt("OLLAMA_CONCURRENCY", DefaultConcurrency),
		FetchCount:       envInt("QDRANT_FETCH_COUNT", DefaultFetchCount),
		HighThreshold:    envFloat("HIGH_SCORE_THRESHOLD", DefaultHighThreshold),
		MediumThreshold:  envFloat("MEDIUM_SCORE_THRESHOLD", DefaultMediumThreshold),
		JudgeTimeout:     time.Duration(envFloat("OLLAMA_TIMEOUT_SECONDS", DefaultTimeoutSeconds) * float64(time.Second)),
		ProgressInterval: envInt("ANALYSIS_PROGRESS_INTERVAL", DefaultProgressInterval),
		EarlyStop:        envBool("EARLY_STOP", true),
		ResultLimit:      envInt("RESULT_LIMIT", DefaultResultLimit),
		HistoryPath:      envStr("HISTORY_DB_PATH", DefaultHistoryPath),
		VectorLogPath:    envStr("VECTOR_LOG_PATH", ""),
	}
	cfg.normalize()
	return cfg
}

// normalize enforces the cross-field invariants that env parsing alone
// cannot: the classification thresholds must satisfy high > medium.
func (c *Config) normalize() {
	if c.HighThreshold <= c.MediumThreshold {
		log.Printf("patentscout config invalid thresholds high=%v medium=%v, using defaults", c.HighThreshold, c.MediumThreshold)
		c.HighThreshold = DefaultHighThreshold
		c.MediumThreshold = DefaultMediumThreshold
	}
	if c.JudgeTimeout <= 0 {
		c.JudgeTimeout = DefaultTimeoutSeconds * time.Second
	}
}

func judgeEndpointsFromEnv() []string {
	if raw := strings.TrimSpace(os.Getenv("OLLAMA_ENDPOINTS")); raw != "" {
		var out []string
		for _, e := range strings.Split(raw, ",") {
			if e = strings.TrimSpace(e); e != "" {
				out = append(out, e)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	host := envStr("OLLAMA_HOST", "http://localhost")
	out := make([]string, 0, len(defaultOllamaPorts))
	for _, p := range defaultOllamaPorts {
		out = append(out, fmt.Sprintf("%s:%d", strings.TrimRight(host, "/"), p))
	}
	return out
}

func envStr(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
