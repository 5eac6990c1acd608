package config

import (
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv()
	if cfg.Concurrency != DefaultConcurrency {
		t.Fatalf("concurrency = %d", cfg.Concurrency)
	}
	if cfg.FetchCount != DefaultFetchCount {
		t.Fatalf("fetch count = %d", cfg.FetchCount)
	}
	if cfg.HighThreshold != DefaultHighThreshold || cfg.MediumThreshold != DefaultMediumThreshold {
		t.Fatalf("thresholds = %v/%v", cfg.HighThreshold, cfg.MediumThreshold)
	}
	if !cfg.EarlyStop {
		t.Fatal("early stop should default on")
	}
	if cfg.ResultLimit != DefaultResultLimit {
		t.Fatalf("result limit = %d", cfg.ResultLimit)
	}
	if cfg.JudgeTimeout != DefaultTimeoutSeconds*time.Second {
		t.Fatalf("timeout = %v", cfg.JudgeTimeout)
	}
	if len(cfg.JudgeEndpoints) != len(defaultOllamaPorts) {
		t.Fatalf("endpoints = %v", cfg.JudgeEndpoints)
	}
}

func TestInvalidEnvFallsBack(t *testing.T) {
	t.Setenv("OLLAMA_CONCURRENCY", "not-a-number")
	t.Setenv("QDRANT_FETCH_COUNT", "-5")
	t.Setenv("EARLY_STOP", "banana")
	cfg := FromEnv()
	if cfg.Concurrency != DefaultConcurrency {
		t.Fatalf("concurrency = %d", cfg.Concurrency)
	}
	if cfg.FetchCount != DefaultFetchCount {
		t.Fatalf("fetch count = %d", cfg.FetchCount)
	}
	if !cfg.EarlyStop {
		t.Fatal("early stop should fall back to default")
	}
}

func TestThresholdInvariantRestored(t *testing.T) {
	t.Setenv("HIGH_SCORE_THRESHOLD", "60")
	t.Setenv("MEDIUM_SCORE_THRESHOLD", "80")
	cfg := FromEnv()
	if cfg.HighThreshold <= cfg.MediumThreshold {
		t.Fatalf("high %v must exceed medium %v", cfg.HighThreshold, cfg.MediumThreshold)
	}
}

func TestEndpointListOverride(t *testing.T) {
	t.Setenv("OLLAMA_ENDPOINTS", "http://gpu0:11430, http://gpu1:11431")
	cfg := FromEnv()
	if len(cfg.JudgeEndpoints) != 2 {
		t.Fatalf("endpoints = %v", cfg.JudgeEndpoints)
	}
	if cfg.JudgeEndpoints[1] != "http://gpu1:11431" {
		t.Fatalf("endpoints = %v", cfg.JudgeEndpoints)
	}
}
