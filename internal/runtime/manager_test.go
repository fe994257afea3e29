package runtime

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/colabcli/colab/internal/colabapi"
	"github.com/colabcli/colab/internal/config"
	"github.com/colabcli/colab/internal/execution"
	"github.com/colabcli/colab/internal/history"
)

var errTransportLost = errors.New("transport lost")

type fakeTokenSource struct{}

func (fakeTokenSource) Get(ctx context.Context, forceRefresh bool) (string, error) {
	return "fake-token", nil
}

// countingTokenSource records how many times Get was called with
// forceRefresh set, so tests can assert withAuthRetry refreshes at most once.
type countingTokenSource struct {
	forceRefreshes int
}

func (c *countingTokenSource) Get(ctx context.Context, forceRefresh bool) (string, error) {
	if forceRefresh {
		c.forceRefreshes++
	}
	return "fake-token", nil
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{AuthDir: dir}
	m, err := New(cfg, fakeTokenSource{}, filepath.Join(dir, "history.jsonl"), logrus.NewEntry(logrus.New()))
	if err != nil {
		t.Fatalf("New: unexpected error: %v", err)
	}
	return m
}

func TestNewBuildsManagerWithoutNetworkCalls(t *testing.T) {
	m := newTestManager(t)
	if m.History() == nil {
		t.Fatalf("expected a non-nil history store")
	}
}

func TestExecuteWithoutConnectFails(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Execute(context.Background(), "no-such-endpoint", "1+1", execution.Options{})
	if err == nil {
		t.Fatalf("expected error when no session is bound to endpoint")
	}
}

func TestDisconnectUnknownEndpointIsNoOp(t *testing.T) {
	m := newTestManager(t)
	if err := m.Disconnect("no-such-endpoint", "client_shutdown"); err != nil {
		t.Fatalf("Disconnect on unknown endpoint: unexpected error: %v", err)
	}
}

func TestShutdownWithNoSessions(t *testing.T) {
	m := newTestManager(t)
	m.Shutdown() // must not panic
}

func TestRecordHistoryInvokesMirrorAfterAppend(t *testing.T) {
	m := newTestManager(t)

	mirrored := make(chan history.Entry, 1)
	m.SetHistoryMirror(func(entry history.Entry) {
		mirrored <- entry
	})

	a := colabapi.Assignment{Label: "gpu-1", Endpoint: "ep-1"}
	result := execution.Result{Status: execution.StatusOK, ExecutionCount: 1}
	m.recordHistory(a, "1+1", result)

	select {
	case entry := <-mirrored:
		if entry.Command != "1+1" {
			t.Fatalf("mirrored entry command = %q, want 1+1", entry.Command)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for mirror callback")
	}
}

func TestWithAuthRetryRefreshesAndRetriesExactlyOnceOnUnauthenticated(t *testing.T) {
	m := newTestManager(t)
	tokens := &countingTokenSource{}
	m.tokens = tokens

	calls := 0
	err := m.withAuthRetry(context.Background(), func() error {
		calls++
		if calls == 1 {
			return &colabapi.Unauthenticated{Op: "test"}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("withAuthRetry: unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("fn invoked %d times, want 2 (original + one retry)", calls)
	}
	if tokens.forceRefreshes != 1 {
		t.Fatalf("forceRefreshes = %d, want 1", tokens.forceRefreshes)
	}
}

func TestWithAuthRetryDoesNotRetryOnOtherErrors(t *testing.T) {
	m := newTestManager(t)
	tokens := &countingTokenSource{}
	m.tokens = tokens

	calls := 0
	wantErr := errTransportLost
	err := m.withAuthRetry(context.Background(), func() error {
		calls++
		return wantErr
	})
	if err != wantErr {
		t.Fatalf("withAuthRetry: got err %v, want %v", err, wantErr)
	}
	if calls != 1 {
		t.Fatalf("fn invoked %d times, want 1 (no retry for non-auth errors)", calls)
	}
	if tokens.forceRefreshes != 0 {
		t.Fatalf("forceRefreshes = %d, want 0", tokens.forceRefreshes)
	}
}

func TestRecordHistoryAppendsEntry(t *testing.T) {
	m := newTestManager(t)
	a := colabapi.Assignment{Label: "gpu-1", Accelerator: "GPU", Endpoint: "ep-1"}
	result := execution.Result{Status: execution.StatusOK, Stdout: "hi\n", ExecutionCount: 1}

	m.recordHistory(a, "print('hi')", result)

	entries, err := m.History().Query(history.Filters{Limit: 10})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Command != "print('hi')" || entries[0].Status != history.StatusOK {
		t.Fatalf("unexpected entry: %+v", entries[0])
	}
	if entries[0].Runtime.Label != "gpu-1" {
		t.Fatalf("runtime label = %q, want gpu-1", entries[0].Runtime.Label)
	}
}
