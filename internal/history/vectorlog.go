package history

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
)

// ReadCorpusTotal reports how many patents the indexing run loaded into the
// vector store, taken from the last line of the loader's progress log. Each
// line is CSV with the running total in the fifth field.
func ReadCorpusTotal(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open vector log: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	var last []string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("read vector log: %w", err)
		}
		if len(rec) >= 5 {
			last = rec
		}
	}
	if last == nil {
		return 0, fmt.Errorf("vector log %s has no usable rows", path)
	}
	total, err := strconv.Atoi(last[4])
	if err != nil {
		return 0, fmt.Errorf("vector log total %q: %w", last[4], err)
	}
	return total, nil
}
