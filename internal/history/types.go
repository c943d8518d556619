// Package history is the append-only delivery history store.
//
// Records are immutable once appended; the only destructive operations
// are Delete and Clear. Newest-first is the canonical retrieval order.
// Two drivers exist: a dependency-free JSONL file backend and SQLite.
package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidEntry = errors.New("history: entry has no recipient")
	ErrNotFound     = errors.New("history: record not found")
)

// Entry is one delivery outcome handed to the store for persistence.
// Recipient name and phone are denormalized into the record at write
// time, so later roster edits never alter history.
type Entry struct {
	Recipient string
	Phone     string
	Message   string
	Success   bool
	Error     string
}

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Record is one persisted delivery attempt.
type Record struct {
	ID        int64  `json:"id"`
	Date      string `json:"date"` // YYYY-MM-DD, local time
	Time      string `json:"time"` // HH:MM:SS
	Timestamp int64  `json:"timestamp"` // unix milliseconds
	Recipient string `json:"recipient"`
	Phone     string `json:"phone"`
	Message   string `json:"message"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

// Stats aggregates a window of history.
// SuccessRate is success/total x 100, rounded to one decimal, 0 when empty.
type Stats struct {
	Total       int
	Success     int
	Failed      int
	SuccessRate float64
}

// Window is a named time-range filter over history.
type Window int

const (
	WindowAll Window = iota
	WindowToday
	WindowWeek  // rolling 7-day lookback, boundary date inclusive
	WindowMonth // rolling 30-day lookback, boundary date inclusive
)

func (w Window) String() string {
	switch w {
	case WindowToday:
		return "today"
	case WindowWeek:
		return "week"
	case WindowMonth:
		return "month"
	default:
		return "all"
	}
}

// ParseWindow maps a config/user string to a Window.
func ParseWindow(s string) (Window, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return WindowAll, nil
	case "today":
		return WindowToday, nil
	case "week", "7d", "last-7-days":
		return WindowWeek, nil
	case "month", "30d", "last-30-days":
		return WindowMonth, nil
	default:
		return WindowAll, fmt.Errorf("history: unknown window %q", s)
	}
}

const dateLayout = "2006-01-02"

// cutoffDate returns the inclusive lower boundary date for a window,
// or ok=false when the window is unbounded.
func cutoffDate(w Window, now time.Time) (string, bool) {
	switch w {
	case WindowToday:
		return now.Format(dateLayout), true
	case WindowWeek:
		return now.AddDate(0, 0, -7).Format(dateLayout), true
	case WindowMonth:
		return now.AddDate(0, 0, -30).Format(dateLayout), true
	default:
		return "", false
	}
}

// Config configures the history store.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the delivery history API.
//
// Implementations serialize writes; Append assigns identifiers that
// are unique and monotonically creation-ordered.
type Store interface {
	Append(ctx context.Context, e Entry) (Record, error)
	AppendBatch(ctx context.Context, entries []Entry) ([]Record, error)
	Query(ctx context.Context, w Window) ([]Record, error)
	Stats(ctx context.Context, w Window) (Stats, error)
	Recent(ctx context.Context, limit int) ([]Record, error)
	ByDate(ctx context.Context, date string) ([]Record, error)
	MonthlySummary(ctx context.Context) (map[string]Stats, error)
	Delete(ctx context.Context, id int64) error
	Clear(ctx context.Context) error
	Close() error
}

func statusOf(e Entry) string {
	if e.Success {
		return StatusSuccess
	}
	return StatusFailed
}

func rate(success, total int) float64 {
	if total == 0 {
		return 0
	}
	r := float64(success) / float64(total) * 100
	// one decimal place
	return float64(int64(r*10+0.5)) / 10
}
