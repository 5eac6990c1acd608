package judge

import (
	"errors"
	"strings"
	"sync/atomic"
)

// Pool is the fixed, ordered set of judge endpoints with a shared rotation
// cursor. It is initialized once at startup and never mutated structurally
// afterwards; only the cursor advances, atomically, so concurrent calls keep
// round-robin fairness without a lock.
type Pool struct {
	endpoints []string
	cursor    atomic.Uint64
}

func NewPool(endpoints []string) (*Pool, error) {
	cleaned := make([]string, 0, len(endpoints))
	for _, e := range endpoints {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		cleaned = append(cleaned, strings.TrimRight(e, "/"))
	}
	if len(cleaned) == 0 {
		return nil, errors.New("judge endpoint pool is empty")
	}
	return &Pool{endpoints: cleaned}, nil
}

// Next returns the next endpoint in rotation, wrapping around the pool.
func (p *Pool) Next() string {
	n := p.cursor.Add(1) - 1
	return p.endpoints[n%uint64(len(p.endpoints))]
}

func (p *Pool) Size() int { return len(p.endpoints) }

func (p *Pool) Endpoints() []string {
	out := make([]string, len(p.endpoints))
	copy(out, p.endpoints)
	return out
}
