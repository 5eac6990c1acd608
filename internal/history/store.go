// Package history persists one row per completed search so the stats
// endpoint can report usage without holding anything in memory.
package history

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS searches (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id TEXT NOT NULL,
	query_chars INTEGER NOT NULL,
	result_limit INTEGER NOT NULL,
	candidates INTEGER NOT NULL,
	analyzed INTEGER NOT NULL,
	high_confidence INTEGER NOT NULL,
	medium_confidence INTEGER NOT NULL,
	stopped_early INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_searches_created_at ON searches(created_at);
`

type SearchRecord struct {
	RequestID        string        `db:"request_id"`
	QueryChars       int           `db:"query_chars"`
	ResultLimit      int           `db:"result_limit"`
	Candidates       int           `db:"candidates"`
	Analyzed         int           `db:"analyzed"`
	HighConfidence   int           `db:"high_confidence"`
	MediumConfidence int           `db:"medium_confidence"`
	StoppedEarly     bool          `db:"stopped_early"`
	Duration         time.Duration `db:"-"`
}

type Stats struct {
	TotalSearches    int     `json:"total_searches" db:"total_searches"`
	TotalAnalyzed    int     `json:"total_analyzed" db:"total_analyzed"`
	TotalHighMatches int     `json:"total_high_matches" db:"total_high_matches"`
	AvgDurationMs    float64 `json:"avg_duration_ms" db:"avg_duration_ms"`
	StoppedEarly     int     `json:"stopped_early" db:"stopped_early"`
}

type Store struct {
	db *sqlx.DB
}

// Open creates or opens the history database. Single connection with WAL
// keeps writes from ever hitting SQLITE_BUSY under the server's load.
func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply history schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Record(rec SearchRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO searches (request_id, query_chars, result_limit, candidates, analyzed,
			high_confidence, medium_confidence, stopped_early, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID, rec.QueryChars, rec.ResultLimit, rec.Candidates, rec.Analyzed,
		rec.HighConfidence, rec.MediumConfidence, rec.StoppedEarly,
		rec.Duration.Milliseconds(), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("record search: %w", err)
	}
	return nil
}

func (s *Store) Stats() (Stats, error) {
	var st Stats
	err := s.db.Get(&st, `
		SELECT COUNT(*) AS total_searches,
			COALESCE(SUM(analyzed), 0) AS total_analyzed,
			COALESCE(SUM(high_confidence), 0) AS total_high_matches,
			COALESCE(AVG(duration_ms), 0) AS avg_duration_ms,
			COALESCE(SUM(stopped_early), 0) AS stopped_early
		FROM searches`)
	if err != nil {
		return Stats{}, fmt.Errorf("history stats: %w", err)
	}
	return st, nil
}

func (s *Store) Close() error { return s.db.Close() }
