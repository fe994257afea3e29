// Package kernel implements component 4.F: ownership of one live Jupyter
// kernel WebSocket session, its read pump / write pump, and keep-alive.
package kernel

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/colabcli/colab/internal/colabapi"
	"github.com/colabcli/colab/internal/config"
	"github.com/colabcli/colab/internal/jupyter"
	"github.com/colabcli/colab/internal/proxycache"
)

// State is the session's socket lifecycle state (spec.md §4.F).
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// ErrBusy is returned by InstallPending when a PendingExecution is already
// active on this session (spec.md §3/§8 invariant 1).
var ErrBusy = errors.New("kernel: session busy, execution already pending")

// ErrClosed is returned by Enqueue/InstallPending once the session has
// transitioned to CLOSED.
var ErrClosed = errors.New("kernel: session closed")

type pendingSlot struct {
	msgID   string
	handler func(jupyter.Message)
}

// Session owns one live WebSocket plus its Jupyter session resource.
type Session struct {
	SessionID  string
	KernelID   string
	Path       string
	Assignment colabapi.Assignment
	Proxy      colabapi.ProxyInfo

	cfg *config.Config
	log *log.Entry

	mu           sync.Mutex
	state        State
	lastActivity time.Time

	conn   *websocket.Conn
	sendCh chan jupyter.Message
	stopCh chan struct{}

	pendingMu sync.Mutex
	pending   *pendingSlot

	lostMu   sync.Mutex
	lostOnce bool

	callbackMu      sync.Mutex
	onTransportLost func(pendingMsgID string, err error)
}

// SetOnTransportLost installs the callback invoked exactly once, with the
// msg_id of any pending execution at the time of loss (or "" if none),
// when the read or write pump stops on a transport error. An explicit
// Close() also leads here: once the write pump exits it closes the socket,
// and the read pump's resulting read error invokes the callback, so a
// pending execution still completes. Spec.md §4.F: "the session manager itself does
// not silently reconnect — it surfaces the event." Safe to call
// concurrently with an in-flight transport loss; whichever callback is
// installed at the moment of loss is the one invoked.
func (s *Session) SetOnTransportLost(fn func(pendingMsgID string, err error)) {
	s.callbackMu.Lock()
	s.onTransportLost = fn
	s.callbackMu.Unlock()
}

// New constructs a Session in the CONNECTING state. Call Connect to
// establish the transport.
func New(cfg *config.Config, assignment colabapi.Assignment, logger *log.Entry) *Session {
	return &Session{
		Assignment: assignment,
		cfg:        cfg,
		log:        logger,
		state:      StateConnecting,
		sendCh:     make(chan jupyter.Message, 32),
		stopCh:     make(chan struct{}),
	}
}

// State returns the current socket state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Connect implements spec.md §4.F's connect() sequence: resolve a valid
// proxy token, create (or reuse) a Jupyter session for path, dial the
// kernel WebSocket, and start the read/write pumps.
func (s *Session) Connect(ctx context.Context, client *colabapi.Client, cache *proxycache.Cache, path, kernelName string) error {
	proxy, err := cache.Get(ctx, s.Assignment.Endpoint)
	if err != nil {
		s.setState(StateClosed)
		return fmt.Errorf("kernel: failed to obtain proxy token: %w", err)
	}
	s.Proxy = proxy
	s.Path = path

	sessions, err := client.ListSessions(ctx, proxy)
	if err != nil {
		s.setState(StateClosed)
		return fmt.Errorf("kernel: failed to list sessions: %w", err)
	}
	var resolved *colabapi.SessionInfo
	for i := range sessions {
		if sessions[i].Path == path {
			resolved = &sessions[i]
			break
		}
	}
	if resolved == nil {
		created, err := client.CreateSession(ctx, proxy, path, kernelName)
		if err != nil {
			s.setState(StateClosed)
			return fmt.Errorf("kernel: failed to create session: %w", err)
		}
		resolved = &created
	}
	s.SessionID = resolved.ID
	s.KernelID = resolved.KernelID

	wsURL, err := kernelWebSocketURL(proxy, resolved.KernelID)
	if err != nil {
		s.setState(StateClosed)
		return err
	}

	dialer := &websocket.Dialer{HandshakeTimeout: s.cfg.WebSocketConnectTimeout()}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		s.setState(StateClosed)
		return fmt.Errorf("kernel: failed to dial kernel websocket: %w", err)
	}
	s.conn = conn
	s.lastActivity = time.Now()
	s.setState(StateOpen)

	go s.readPump()
	go s.writePump()
	return nil
}

// NewForTesting wraps an already-dialed WebSocket connection as an OPEN
// Session, skipping the assignment/proxy/Jupyter-session resolution in
// Connect. Exported for use by other packages' tests (e.g. the execution
// dispatcher) that need a real read/write pump without the full colabapi
// stack.
func NewForTesting(cfg *config.Config, conn *websocket.Conn, logger *log.Entry) *Session {
	s := &Session{
		cfg:          cfg,
		log:          logger,
		state:        StateOpen,
		sendCh:       make(chan jupyter.Message, 32),
		stopCh:       make(chan struct{}),
		conn:         conn,
		lastActivity: time.Now(),
	}
	go s.readPump()
	go s.writePump()
	return s
}

func kernelWebSocketURL(proxy colabapi.ProxyInfo, kernelID string) (string, error) {
	u, err := url.Parse(proxy.URL)
	if err != nil {
		return "", fmt.Errorf("kernel: invalid proxy url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/api/kernels/" + kernelID + "/channels"
	q := u.Query()
	q.Set("token", proxy.Token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// InstallPending registers handler to receive every message whose
// parent_header.msg_id equals msgID, enforcing the at-most-one-pending
// invariant.
func (s *Session) InstallPending(msgID string, handler func(jupyter.Message)) error {
	if s.State() != StateOpen {
		return ErrClosed
	}
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	if s.pending != nil {
		return ErrBusy
	}
	s.pending = &pendingSlot{msgID: msgID, handler: handler}
	return nil
}

// ClearPending releases the pending slot if it still belongs to msgID.
func (s *Session) ClearPending(msgID string) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	if s.pending != nil && s.pending.msgID == msgID {
		s.pending = nil
	}
}

// PendingMsgID returns the currently installed pending msg_id, or "".
func (s *Session) PendingMsgID() string {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	if s.pending == nil {
		return ""
	}
	return s.pending.msgID
}

// Enqueue queues msg on the write pump, blocking if the outbound queue is
// full (backpressure, spec.md §5) until ctx is done or the session closes.
func (s *Session) Enqueue(ctx context.Context, msg jupyter.Message) error {
	if s.State() != StateOpen {
		return ErrClosed
	}
	select {
	case s.sendCh <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopCh:
		return ErrClosed
	}
}

func (s *Session) readPump() {
	s.conn.SetPongHandler(func(string) error {
		s.mu.Lock()
		s.lastActivity = time.Now()
		s.mu.Unlock()
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.transitionLost(fmt.Errorf("kernel: read error: %w", err))
			return
		}
		s.mu.Lock()
		s.lastActivity = time.Now()
		s.mu.Unlock()

		msg, err := jupyter.Decode(data)
		if err != nil {
			s.log.Warnf("kernel: dropping malformed message: %v", err)
			continue
		}
		s.routeMessage(msg)
	}
}

func (s *Session) routeMessage(msg jupyter.Message) {
	parent := msg.ParentMsgID()
	s.pendingMu.Lock()
	pending := s.pending
	s.pendingMu.Unlock()

	if pending != nil && parent == pending.msgID {
		pending.handler(msg)
		return
	}
	// status (busy/idle) and anything else not addressed to the current
	// pending execution is liveness-only; nothing to route.
}

func (s *Session) writePump() {
	ticker := time.NewTicker(s.cfg.PingInterval())
	defer ticker.Stop()
	defer s.conn.Close()

	for {
		select {
		case msg, ok := <-s.sendCh:
			if !ok {
				return
			}
			data, err := jupyter.Encode(msg)
			if err != nil {
				s.log.Warnf("kernel: failed to encode outgoing message: %v", err)
				continue
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.transitionLost(fmt.Errorf("kernel: write error: %w", err))
				return
			}
		case <-ticker.C:
			s.mu.Lock()
			idle := time.Since(s.lastActivity)
			s.mu.Unlock()
			if idle > s.cfg.PongTimeout() {
				s.transitionLost(fmt.Errorf("kernel: missed pong for %s", idle))
				return
			}
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.transitionLost(fmt.Errorf("kernel: ping failed: %w", err))
				return
			}
		case <-s.stopCh:
			return
		}
	}
}

func (s *Session) transitionLost(err error) {
	s.setState(StateClosed)
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}

	s.lostMu.Lock()
	already := s.lostOnce
	s.lostOnce = true
	s.lostMu.Unlock()
	if already {
		return
	}

	pendingID := s.PendingMsgID()
	s.log.WithField("pending_msg_id", pendingID).Warnf("transport lost: %v", err)

	s.callbackMu.Lock()
	cb := s.onTransportLost
	s.callbackMu.Unlock()
	if cb != nil {
		cb(pendingID, err)
	}
}

// Close closes the session: sends a close frame with reason (waiting at
// most 1 s for the write), then stops the write pump, which closes the
// socket. Messages still queued on the write pump are not sent. This is
// the explicit-close path, distinct from transitionLost.
func (s *Session) Close(reason string) error {
	if s.State() == StateClosed {
		return nil
	}
	s.setState(StateClosing)

	if s.conn != nil {
		deadline := time.Now().Add(1 * time.Second)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason), deadline)
	}

	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	s.setState(StateClosed)
	return nil
}
