package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndStats(t *testing.T) {
	s := openTestStore(t)

	recs := []SearchRecord{
		{RequestID: "a", QueryChars: 120, ResultLimit: 15, Candidates: 100, Analyzed: 40, HighConfidence: 15, MediumConfidence: 22, StoppedEarly: true, Duration: 3 * time.Second},
		{RequestID: "b", QueryChars: 80, ResultLimit: 10, Candidates: 100, Analyzed: 100, HighConfidence: 2, MediumConfidence: 9, Duration: 9 * time.Second},
	}
	for _, r := range recs {
		if err := s.Record(r); err != nil {
			t.Fatal(err)
		}
	}

	st, err := s.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if st.TotalSearches != 2 {
		t.Fatalf("total searches = %d", st.TotalSearches)
	}
	if st.TotalAnalyzed != 140 {
		t.Fatalf("total analyzed = %d", st.TotalAnalyzed)
	}
	if st.TotalHighMatches != 17 {
		t.Fatalf("high matches = %d", st.TotalHighMatches)
	}
	if st.StoppedEarly != 1 {
		t.Fatalf("stopped early = %d", st.StoppedEarly)
	}
	if st.AvgDurationMs != 6000 {
		t.Fatalf("avg duration = %v", st.AvgDurationMs)
	}
}

func TestStatsEmpty(t *testing.T) {
	s := openTestStore(t)
	st, err := s.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if st.TotalSearches != 0 || st.TotalAnalyzed != 0 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestReadCorpusTotal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.log")
	content := "2024-01-01T00:00:00,batch,1,500,500\n" +
		"2024-01-01T00:05:00,batch,2,500,1000\n" +
		"2024-01-01T00:10:00,batch,3,431,1431\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	total, err := ReadCorpusTotal(path)
	if err != nil {
		t.Fatal(err)
	}
	if total != 1431 {
		t.Fatalf("total = %d", total)
	}
}

func TestReadCorpusTotalMissingFile(t *testing.T) {
	if _, err := ReadCorpusTotal(filepath.Join(t.TempDir(), "nope.log")); err == nil {
		t.Fatal("expected error")
	}
}
