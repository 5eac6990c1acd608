package pipeline

import (
	"fmt"
	"sort"
)

// Summary is the payload of the terminal complete event.
type Summary struct {
	Message          string  `json:"message"`
	Results          int     `json:"results"`
	Analyzed         int     `json:"analyzed"`
	HighConfidence   int     `json:"high_confidence"`
	MediumConfidence int     `json:"medium_confidence"`
	ScoreThreshold   float64 `json:"score_threshold"`
	TotalCandidates  int     `json:"total_candidates"`
	StoppedEarly     bool    `json:"stopped_early"`
}

// runState accumulates judgments for a single request. It is only touched
// by the consumer loop, so no locking.
type runState struct {
	limit     int
	high      float64
	medium    float64
	earlyStop bool

	processed   int
	highCount   int
	mediumCount int
	emitted     int
	stopped     bool
	all         []Judgment
}

func newRunState(limit int, high, medium float64, earlyStop bool) *runState {
	return &runState{limit: limit, high: high, medium: medium, earlyStop: earlyStop}
}

func (s *runState) observe(jd Judgment) {
	s.processed++
	s.all = append(s.all, jd)
	if jd.Verdict.HasScore() {
		sc := *jd.Verdict.Score
		if sc >= s.high {
			s.highCount++
		}
		if sc >= s.medium {
			s.mediumCount++
		}
	}
}

// shouldEmit decides whether a judgment goes out as a result event. With
// early stop on, only high-confidence judgments are streamed; otherwise any
// scored judgment qualifies. Either way the stream carries at most limit
// results.
func (s *runState) shouldEmit(jd Judgment) bool {
	if !jd.Verdict.HasScore() || s.emitted >= s.limit {
		return false
	}
	if s.earlyStop && *jd.Verdict.Score < s.high {
		return false
	}
	return true
}

func (s *runState) shouldStop() bool {
	return s.earlyStop && !s.stopped && s.highCount >= s.limit
}

// ranked returns every observed judgment sorted by score descending.
// Unscored judgments sort last; ties keep the similarity-index order.
func (s *runState) ranked() []Judgment {
	out := make([]Judgment, len(s.all))
	copy(out, s.all)
	sort.SliceStable(out, func(i, j int) bool {
		si, sj := out[i].Verdict.SortScore(), out[j].Verdict.SortScore()
		if si != sj {
			return si > sj
		}
		return out[i].OriginalIndex < out[j].OriginalIndex
	})
	return out
}

func (s *runState) summary(total int) Summary {
	return Summary{
		Message:          "Search complete",
		Results:          s.emitted,
		Analyzed:         s.processed,
		HighConfidence:   s.highCount,
		MediumConfidence: s.mediumCount,
		ScoreThreshold:   s.high,
		TotalCandidates:  total,
		StoppedEarly:     s.stopped,
	}
}

// distribution renders a one-line score digest for the stream log, or
// reports false when no candidate produced a usable score.
func (s *runState) distribution() (string, bool) {
	scores := make([]float64, 0, len(s.all))
	for _, jd := range s.all {
		if jd.Verdict.HasScore() {
			scores = append(scores, *jd.Verdict.Score)
		}
	}
	if len(scores) == 0 {
		return "", false
	}
	sort.Float64s(scores)
	var sum float64
	for _, sc := range scores {
		sum += sc
	}
	mean := sum / float64(len(scores))
	median := scores[len(scores)/2]
	if len(scores)%2 == 0 {
		median = (scores[len(scores)/2-1] + scores[len(scores)/2]) / 2
	}
	return fmt.Sprintf("[SUMMARY] Scores: min=%.1f max=%.1f mean=%.1f median=%.1f scored=%d",
		scores[0], scores[len(scores)-1], mean, median, len(scores)), true
}
