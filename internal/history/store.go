package history

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// defaultLimit is the result cap callers pass as Filters.Limit when none is
// given (spec.md §4.H). Query itself applies no default.
const defaultLimit = 50

// Store is an append-only JSON-lines execution log. Append is safe for
// concurrent use; Query/GetStats re-read the whole file on each call,
// matching spec.md §9's "writes never read; reads never write".
type Store struct {
	path string
	mu   sync.Mutex
}

// New builds a Store over path. The parent directory is created lazily on
// first Append, not here.
func New(path string) *Store {
	return &Store{path: path}
}

// Append serializes entry as one JSON line and appends it with a single
// write call, so a crash mid-write can corrupt at most the final line
// (tolerated by Query's lenient parsing).
func (s *Store) Append(entry Entry) error {
	if entry.ErrorCode != 0 {
		if cat, ok := CategoryForErrorCode(entry.ErrorCode); ok {
			entry.Category = cat
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("history: failed to create history directory: %w", err)
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("history: failed to open history file: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("history: failed to encode entry: %w", err)
	}
	data = append(data, '\n')

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("history: failed to append entry: %w", err)
	}
	return nil
}

// Filters parameterizes Query (spec.md §4.H).
type Filters struct {
	Status   Status
	Mode     Mode
	Category Category
	Since    time.Time
	Until    time.Time
	Limit    int // 0 means "no results" per spec.md §8 boundary behavior
}

func (s *Store) readAll() ([]Entry, error) {
	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("history: failed to open history file: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			// Corrupt line: skip silently (spec.md §3 invariant).
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Query implements spec.md §4.H: read, filter, sort by timestamp
// descending, truncate to limit.
func (s *Store) Query(filters Filters) ([]Entry, error) {
	if filters.Limit == 0 {
		return []Entry{}, nil
	}
	limit := filters.Limit

	entries, err := s.readAll()
	if err != nil {
		return nil, err
	}

	var matched []Entry
	for _, e := range entries {
		if filters.Status != "" && e.Status != filters.Status {
			continue
		}
		if filters.Mode != "" && e.Mode != filters.Mode {
			continue
		}
		if filters.Category != "" && e.Category != filters.Category {
			continue
		}
		if t, ok := parseTimestamp(e.Timestamp); ok {
			if !filters.Since.IsZero() && t.Before(filters.Since) {
				continue
			}
			if !filters.Until.IsZero() && t.After(filters.Until) {
				continue
			}
		}
		matched = append(matched, e)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		ti, _ := parseTimestamp(matched[i].Timestamp)
		tj, _ := parseTimestamp(matched[j].Timestamp)
		return ti.After(tj)
	})

	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// DefaultQueryLimit is exposed for callers (CLI) that want the default
// result cap to use when no limit is specified, without duplicating the
// constant.
func DefaultQueryLimit() int { return defaultLimit }

func parseTimestamp(ts string) (time.Time, bool) {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Stats is the result of GetStats (spec.md §4.H).
type Stats struct {
	TotalExecutions      int              `json:"totalExecutions"`
	SuccessfulExecutions int              `json:"successfulExecutions"`
	FailedExecutions     int              `json:"failedExecutions"`
	AbortedExecutions    int              `json:"abortedExecutions"`
	SuccessRate          int              `json:"successRate"`
	ExecutionsByMode     map[Mode]int     `json:"executionsByMode"`
	ErrorsByCategory     map[Category]int `json:"errorsByCategory"`
	OldestEntry          string           `json:"oldestEntry,omitempty"`
	NewestEntry          string           `json:"newestEntry,omitempty"`
}

// GetStats implements spec.md §4.H / §8 invariant 5.
func (s *Store) GetStats() (Stats, error) {
	entries, err := s.readAll()
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{
		ExecutionsByMode: map[Mode]int{},
		ErrorsByCategory: map[Category]int{},
	}

	var oldest, newest time.Time
	for _, e := range entries {
		stats.TotalExecutions++
		switch e.Status {
		case StatusOK:
			stats.SuccessfulExecutions++
		case StatusAbort:
			stats.AbortedExecutions++
		default:
			stats.FailedExecutions++
		}
		if e.Mode != "" {
			stats.ExecutionsByMode[e.Mode]++
		}
		if e.Category != "" {
			stats.ErrorsByCategory[e.Category]++
		}
		if t, ok := parseTimestamp(e.Timestamp); ok {
			if oldest.IsZero() || t.Before(oldest) {
				oldest = t
				stats.OldestEntry = e.Timestamp
			}
			if newest.IsZero() || t.After(newest) {
				newest = t
				stats.NewestEntry = e.Timestamp
			}
		}
	}

	if stats.TotalExecutions > 0 {
		stats.SuccessRate = int(roundPercent(stats.SuccessfulExecutions, stats.TotalExecutions))
	}
	return stats, nil
}

func roundPercent(part, total int) int {
	if total == 0 {
		return 0
	}
	return int((float64(part)*100/float64(total) + 0.5))
}

// Clear truncates the log to zero bytes, creating it if absent.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("history: failed to create history directory: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("history: failed to clear history file: %w", err)
	}
	return f.Close()
}
