// Package runtime implements component 4.I: the Runtime manager façade
// that orchestrates components B–H into assign/connect/execute/disconnect.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/colabcli/colab/internal/assignment"
	"github.com/colabcli/colab/internal/colabapi"
	"github.com/colabcli/colab/internal/config"
	"github.com/colabcli/colab/internal/execution"
	"github.com/colabcli/colab/internal/history"
	"github.com/colabcli/colab/internal/httpclient"
	"github.com/colabcli/colab/internal/kernel"
	"github.com/colabcli/colab/internal/proxycache"
)

const defaultKernelName = "python3"

// boundSession pairs a live kernel session with the identifying
// information needed to reconnect it after a TransportLost (spec.md §8
// scenario 4: "next execute triggers connect again").
type boundSession struct {
	session    *kernel.Session
	assignment colabapi.Assignment
	path       string
	kernelName string
}

// Manager owns the set of live KernelSessions, keyed by endpoint, and is
// the single entry point callers (the CLI) use to drive the Runtime
// Session Core.
type Manager struct {
	cfg        *config.Config
	client     *colabapi.Client
	tokens     httpclient.AccessTokenSource
	cache      *proxycache.Cache
	negotiator *assignment.Negotiator
	dispatcher *execution.Dispatcher
	history    *history.Store
	log        *logrus.Entry

	mu       sync.Mutex
	sessions map[string]*boundSession

	mirrorMu sync.Mutex
	mirror   func(entry history.Entry)
}

// SetHistoryMirror registers a best-effort callback invoked in its own
// goroutine after each successful history Append (component 4.O: the
// Postgres export sink; the S3 backup runs on its own ticker instead). fn
// must not block the caller for long; a nil
// fn disables mirroring.
func (m *Manager) SetHistoryMirror(fn func(entry history.Entry)) {
	m.mirrorMu.Lock()
	defer m.mirrorMu.Unlock()
	m.mirror = fn
}

// New wires components B–H into a Manager.
func New(cfg *config.Config, tokens httpclient.AccessTokenSource, historyPath string, logger *logrus.Entry) (*Manager, error) {
	client, err := colabapi.New(cfg, tokens)
	if err != nil {
		return nil, fmt.Errorf("runtime: failed to build colab api client: %w", err)
	}

	disk := proxycache.NewDiskCache(cfg.AuthDir)
	cache := proxycache.New(client, disk)

	return &Manager{
		cfg:        cfg,
		client:     client,
		tokens:     tokens,
		cache:      cache,
		negotiator: assignment.New(client),
		dispatcher: execution.New(logger),
		history:    history.New(historyPath),
		log:        logger,
		sessions:   make(map[string]*boundSession),
	}, nil
}

// isUnauthenticated reports whether err is (or wraps) *colabapi.Unauthenticated.
func isUnauthenticated(err error) bool {
	var uerr *colabapi.Unauthenticated
	return errors.As(err, &uerr)
}

// withAuthRetry runs fn once, and on *colabapi.Unauthenticated force-refreshes
// the access token and retries fn exactly once (spec.md §7: "recoverable by
// one token refresh then retry"). Any other error, or a failed refresh,
// returns the original fn error without a second attempt.
func (m *Manager) withAuthRetry(ctx context.Context, fn func() error) error {
	err := fn()
	if !isUnauthenticated(err) {
		return err
	}
	if _, rerr := m.tokens.Get(ctx, true); rerr != nil {
		return err
	}
	return fn()
}

// Assign implements the façade's assign step (spec.md §4.D via the
// negotiator).
func (m *Manager) Assign(ctx context.Context, opts assignment.Options) (colabapi.Assignment, error) {
	var a colabapi.Assignment
	err := m.withAuthRetry(ctx, func() error {
		var err error
		a, err = m.negotiator.AssignRuntime(ctx, opts)
		return err
	})
	return a, err
}

// Connect implements the façade's connect step: reuse an OPEN session for
// a's endpoint if one exists, otherwise dial a fresh one, enforcing at
// most one session per endpoint (spec.md §4.I).
func (m *Manager) Connect(ctx context.Context, a colabapi.Assignment, path string) (*kernel.Session, error) {
	m.mu.Lock()
	if bound, ok := m.sessions[a.Endpoint]; ok && bound.session.State() == kernel.StateOpen {
		m.mu.Unlock()
		return bound.session, nil
	}
	m.mu.Unlock()

	sess := kernel.New(m.cfg, a, m.log)
	err := m.withAuthRetry(ctx, func() error {
		return sess.Connect(ctx, m.client, m.cache, path, defaultKernelName)
	})
	if err != nil {
		return nil, fmt.Errorf("runtime: connect failed: %w", err)
	}

	m.mu.Lock()
	m.sessions[a.Endpoint] = &boundSession{session: sess, assignment: a, path: path, kernelName: defaultKernelName}
	m.mu.Unlock()
	return sess, nil
}

// Execute implements the façade's execute step: run one request-to-reply
// cycle against the session bound to endpoint, reconnecting first if the
// prior session was lost, then record the outcome to history.
func (m *Manager) Execute(ctx context.Context, endpoint, code string, opts execution.Options) (execution.Result, error) {
	m.mu.Lock()
	bound, ok := m.sessions[endpoint]
	var session *kernel.Session
	if ok {
		session = bound.session
	}
	m.mu.Unlock()
	if !ok {
		return execution.Result{}, fmt.Errorf("runtime: no session bound to endpoint %q; call Connect first", endpoint)
	}

	if session.State() != kernel.StateOpen {
		// Connect installs a fresh *boundSession in m.sessions under m.mu;
		// re-fetch it rather than mutating the stale struct captured above.
		reconnected, err := m.Connect(ctx, bound.assignment, bound.path)
		if err != nil {
			return execution.Result{}, fmt.Errorf("runtime: reconnect failed: %w", err)
		}
		m.mu.Lock()
		if rebound, ok := m.sessions[endpoint]; ok {
			bound = rebound
		}
		m.mu.Unlock()
		session = reconnected
	}

	result, err := m.dispatcher.Execute(ctx, session, code, opts)
	if err != nil {
		return execution.Result{}, err
	}

	m.recordHistory(bound.assignment, code, result)
	return result, nil
}

func (m *Manager) recordHistory(a colabapi.Assignment, code string, result execution.Result) {
	entry := history.Entry{
		Timestamp:      time.Now().UTC().Format(time.RFC3339Nano),
		Command:        code,
		Mode:           history.ModeKernel,
		Status:         history.Status(result.Status),
		Stdout:         result.Stdout,
		Stderr:         result.Stderr,
		Traceback:      result.Traceback,
		ExecutionCount: result.ExecutionCount,
		Runtime:        history.Runtime{Label: a.Label, Accelerator: a.Accelerator},
		ErrorCode:      result.ErrorCode,
		Error:          result.Error,
	}
	if err := m.history.Append(entry); err != nil {
		m.log.Warnf("runtime: failed to append history entry: %v", err)
		return
	}

	m.mirrorMu.Lock()
	mirror := m.mirror
	m.mirrorMu.Unlock()
	if mirror != nil {
		go mirror(entry)
	}
}

// Disconnect closes the session bound to endpoint, if any.
func (m *Manager) Disconnect(endpoint, reason string) error {
	m.mu.Lock()
	bound, ok := m.sessions[endpoint]
	if ok {
		delete(m.sessions, endpoint)
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return bound.session.Close(reason)
}

// Shutdown closes every live session with reason "client_shutdown"
// (spec.md §4.I, §5).
func (m *Manager) Shutdown() {
	m.mu.Lock()
	bounds := make([]*boundSession, 0, len(m.sessions))
	for _, b := range m.sessions {
		bounds = append(bounds, b)
	}
	m.sessions = make(map[string]*boundSession)
	m.mu.Unlock()

	for _, b := range bounds {
		if err := b.session.Close("client_shutdown"); err != nil {
			m.log.Warnf("runtime: error closing session for %s during shutdown: %v", b.assignment.Endpoint, err)
		}
	}
}

// History exposes the façade's history store for the CLI's `history`
// command and its S3 history backup.
func (m *Manager) History() *history.Store {
	return m.history
}
