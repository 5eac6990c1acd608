// Package verdict holds the relevance judgment produced for one candidate
// patent and the tolerant parser that extracts it from raw judge output.
package verdict

import (
	"encoding/json"
	"strconv"
	"strings"
)

type Status string

const (
	StatusScored        Status = "scored"
	StatusParseFailed   Status = "parse-failed"
	StatusRequestFailed Status = "request-failed"
	StatusTimedOut      Status = "timed-out"
)

// Verdict is a tagged variant: consumers switch on Status instead of probing
// for score presence. Score is set only when Status is StatusScored.
type Verdict struct {
	Status Status   `json:"status"`
	Score  *float64 `json:"score,omitempty"`
	Reason string   `json:"reason,omitempty"`
}

func (v Verdict) HasScore() bool {
	return v.Status == StatusScored && v.Score != nil
}

// SortScore maps unscored verdicts below every real score so failed
// judgments rank last.
func (v Verdict) SortScore() float64 {
	if v.HasScore() {
		return *v.Score
	}
	return -1
}

func Scored(score float64, reason string) Verdict {
	return Verdict{Status: StatusScored, Score: &score, Reason: reason}
}

func RequestFailed(reason string) Verdict {
	return Verdict{Status: StatusRequestFailed, Reason: reason}
}

func TimedOut(reason string) Verdict {
	return Verdict{Status: StatusTimedOut, Reason: reason}
}

func parseFailed() Verdict {
	return Verdict{Status: StatusParseFailed, Reason: "Failed to parse analysis."}
}

// Parse extracts a score/reason pair from unstructured judge output. The
// judge is instructed to return strict JSON but in practice wraps it in
// commentary or emits stray control characters, so Parse takes the widest
// {...} span, decodes it, and retries once with control characters stripped.
// Parse never fails hard: malformed input yields a parse-failed Verdict.
func Parse(raw string) Verdict {
	var payload struct {
		Score  any    `json:"score"`
		Reason string `json:"reason"`
	}
	if !ExtractObject(raw, &payload) {
		return parseFailed()
	}
	score, ok := coerceScore(payload.Score)
	if !ok {
		return parseFailed()
	}
	return Scored(score, strings.TrimSpace(payload.Reason))
}

// ExtractObject locates the first '{' through the last '}' in raw and
// decodes that span into out, retrying once with ASCII control characters
// removed. Shared with the assist prompts, which get the same loosely
// JSON-shaped output from the model.
func ExtractObject(raw string, out any) bool {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end <= start {
		return false
	}
	span := raw[start : end+1]
	if json.Unmarshal([]byte(span), out) == nil {
		return true
	}
	return json.Unmarshal([]byte(stripControl(span)), out) == nil
}

// ExtractArray is the array-shaped counterpart of ExtractObject.
func ExtractArray(raw string, out any) bool {
	start := strings.IndexByte(raw, '[')
	end := strings.LastIndexByte(raw, ']')
	if start < 0 || end <= start {
		return false
	}
	span := raw[start : end+1]
	if json.Unmarshal([]byte(span), out) == nil {
		return true
	}
	return json.Unmarshal([]byte(stripControl(span)), out) == nil
}

func stripControl(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 {
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// coerceScore accepts the numeric shapes models actually emit: a JSON
// number, or a number quoted as a string. Range clamping is the producer's
// contract, not enforced here.
func coerceScore(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
