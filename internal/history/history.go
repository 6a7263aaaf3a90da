// Package history keeps a bounded in-memory record of finished pipeline
// invocations and optionally archives them to object storage as parquet.
package history

import (
	"context"
	"sync"
	"time"

	"github.com/sqlpilot/sqlpilot/internal/nl2sql"
)

const (
	OutcomeSucceeded        = "succeeded"
	OutcomeGenerationFailed = "generation_failed"
	OutcomeRejected         = "rejected"
	OutcomeExecutionFailed  = "execution_failed"
	OutcomeTimedOut         = "timed_out"
)

type Entry struct {
	Seq          int64              `json:"seq"`
	TraceID      string             `json:"trace_id,omitempty"`
	Question     string             `json:"question"`
	SQLQuery     string             `json:"sql_query,omitempty"`
	Parameters   []nl2sql.Parameter `json:"parameters,omitempty"`
	Explanation  string             `json:"explanation,omitempty"`
	Fallback     bool               `json:"fallback"`
	Outcome      string             `json:"outcome"`
	Detail       string             `json:"detail,omitempty"`
	RowCount     int                `json:"row_count"`
	AffectedRows int64              `json:"affected_rows"`
	Duration     time.Duration      `json:"duration_ns"`
	CreatedAt    time.Time          `json:"created_at"`
}

// Recorder is a fixed-size ring of the most recent entries. Each entry gets a
// monotonically increasing Seq so readers can resume where they left off.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
	seq     int64
}

func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = 1
	}
	return &Recorder{entries: make([]Entry, capacity)}
}

func (r *Recorder) Record(_ context.Context, entry Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	entry.Seq = r.seq
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	r.entries[r.next] = entry
	r.next = (r.next + 1) % len(r.entries)
	if r.next == 0 {
		r.full = true
	}
}

// Recent returns up to limit entries, newest first. limit <= 0 returns all.
func (r *Recorder) Recent(limit int) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	ordered := r.orderedLocked()
	if limit <= 0 || limit > len(ordered) {
		limit = len(ordered)
	}
	out := make([]Entry, 0, limit)
	for i := len(ordered) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, ordered[i])
	}
	return out
}

// Since returns up to limit entries with Seq greater than after, oldest first,
// and the number of entries after that position that were already evicted.
func (r *Recorder) Since(after int64, limit int) ([]Entry, int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ordered := r.orderedLocked()
	var dropped int64
	if len(ordered) > 0 && ordered[0].Seq > after+1 {
		dropped = ordered[0].Seq - after - 1
	}
	out := make([]Entry, 0)
	for _, entry := range ordered {
		if entry.Seq <= after {
			continue
		}
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, entry)
	}
	return out, dropped
}

func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return len(r.entries)
	}
	return r.next
}

func (r *Recorder) orderedLocked() []Entry {
	if !r.full {
		return append([]Entry(nil), r.entries[:r.next]...)
	}
	out := make([]Entry, 0, len(r.entries))
	out = append(out, r.entries[r.next:]...)
	out = append(out, r.entries[:r.next]...)
	return out
}
