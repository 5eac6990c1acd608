package pipeline

import "errors"

const (
	StageEmbed = "embed"
	StageIndex = "index"
)

// StageError marks a failure in a shared pipeline stage, one that dooms the
// whole request rather than a single candidate.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return "search failed at " + e.Stage + " stage: " + e.Err.Error()
}

func (e *StageError) Unwrap() error { return e.Err }

// StageOf reports which stage an error came from, or "" when the error is
// not a stage failure.
func StageOf(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
