package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	return New(filepath.Join(dir, "history.jsonl"))
}

func entryAt(t time.Time, status Status, command string) Entry {
	return Entry{
		Timestamp: t.UTC().Format(time.RFC3339Nano),
		Command:   command,
		Mode:      ModeKernel,
		Status:    status,
		Runtime:   Runtime{Label: "gpu-1", Accelerator: "GPU"},
	}
}

func TestAppendAndQueryRoundTrip(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := s.Append(entryAt(base, StatusOK, "print(1)")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Append(entryAt(base.Add(time.Minute), StatusOK, "print(2)")); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := s.Query(Filters{Limit: 50})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	if got[0].Command != "print(2)" {
		t.Fatalf("results not sorted descending by timestamp: got %q first", got[0].Command)
	}
}

func TestQueryLimitZeroReturnsEmpty(t *testing.T) {
	s := newTestStore(t)
	_ = s.Append(entryAt(time.Now(), StatusOK, "print(1)"))

	got, err := s.Query(Filters{Limit: 0})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %d entries, want 0", len(got))
	}
}

func TestQuerySkipsCorruptLines(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := s.Append(entryAt(base, StatusOK, "a")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Append(entryAt(base.Add(time.Minute), StatusOK, "b")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Append(entryAt(base.Add(2*time.Minute), StatusOK, "c")); err != nil {
		t.Fatalf("append: %v", err)
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	lines := splitLines(data)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	lines[1] = []byte("invalid json")
	if err := os.WriteFile(s.path, joinLines(lines), 0o600); err != nil {
		t.Fatalf("rewrite file: %v", err)
	}

	got, err := s.Query(Filters{Limit: 50})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2 (corrupt line skipped)", len(got))
	}
	if got[0].Command != "c" || got[1].Command != "a" {
		t.Fatalf("unexpected order: %q, %q", got[0].Command, got[1].Command)
	}
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			lines = append(lines, data[start:i])
			start = i + 1
		}
	}
	return lines
}

func joinLines(lines [][]byte) []byte {
	var out []byte
	for _, l := range lines {
		out = append(out, l...)
		out = append(out, '\n')
	}
	return out
}

func TestQueryFilterByCategory(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	runtime := entryAt(base, StatusError, "x = 1 / 0")
	runtime.ErrorCode = 300
	runtime.Category = CategoryRuntime
	_ = s.Append(runtime)

	syntax := entryAt(base.Add(time.Minute), StatusError, "def f(:")
	syntax.ErrorCode = 100
	syntax.Category = CategorySyntax
	_ = s.Append(syntax)

	got, err := s.Query(Filters{Category: CategoryRuntime, Limit: 50})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 || got[0].Command != "x = 1 / 0" {
		t.Fatalf("category filter: got %+v", got)
	}
}

func TestGetStatsComputesSuccessRate(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_ = s.Append(entryAt(base, StatusOK, "a"))
	_ = s.Append(entryAt(base.Add(time.Minute), StatusOK, "b"))
	_ = s.Append(entryAt(base.Add(2*time.Minute), StatusError, "c"))

	stats, err := s.GetStats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalExecutions != 3 {
		t.Fatalf("total = %d, want 3", stats.TotalExecutions)
	}
	if stats.SuccessfulExecutions != 2 || stats.FailedExecutions != 1 {
		t.Fatalf("successful=%d failed=%d, want 2/1", stats.SuccessfulExecutions, stats.FailedExecutions)
	}
	if stats.SuccessRate != 67 {
		t.Fatalf("successRate = %d, want 67", stats.SuccessRate)
	}
}

func TestGetStatsEmptyStoreZeroRate(t *testing.T) {
	s := newTestStore(t)
	stats, err := s.GetStats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalExecutions != 0 || stats.SuccessRate != 0 {
		t.Fatalf("expected zero stats, got %+v", stats)
	}
}

func TestClearTruncatesFile(t *testing.T) {
	s := newTestStore(t)
	_ = s.Append(entryAt(time.Now(), StatusOK, "a"))

	if err := s.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	info, err := os.Stat(s.path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() != 0 {
		t.Fatalf("size = %d, want 0", info.Size())
	}
}

func TestCategoryForErrorCodeRanges(t *testing.T) {
	cases := []struct {
		code int
		want Category
		ok   bool
	}{
		{0, "", false},
		{150, CategorySyntax, true},
		{250, CategoryImport, true},
		{350, CategoryRuntime, true},
		{400, CategoryTimeout, true},
		{410, CategoryTransport, true},
		{420, CategoryCanceled, true},
		{999, CategoryOther, true},
	}
	for _, tc := range cases {
		got, ok := CategoryForErrorCode(tc.code)
		if got != tc.want || ok != tc.ok {
			t.Errorf("CategoryForErrorCode(%d) = (%q, %v), want (%q, %v)", tc.code, got, ok, tc.want, tc.ok)
		}
	}
}
