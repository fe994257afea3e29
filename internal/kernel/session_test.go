package kernel

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/colabcli/colab/internal/colabapi"
	"github.com/colabcli/colab/internal/config"
	"github.com/colabcli/colab/internal/jupyter"
)

func newOpenSession(t *testing.T) *Session {
	t.Helper()
	cfg := &config.Config{}
	s := New(cfg, colabapi.Assignment{Endpoint: "test-endpoint"}, logrus.NewEntry(logrus.New()))
	s.setState(StateOpen)
	return s
}

func TestInstallPendingRejectsWhenBusy(t *testing.T) {
	s := newOpenSession(t)

	if err := s.InstallPending("msg-1", func(jupyter.Message) {}); err != nil {
		t.Fatalf("first InstallPending: unexpected error: %v", err)
	}
	if err := s.InstallPending("msg-2", func(jupyter.Message) {}); err != ErrBusy {
		t.Fatalf("second InstallPending: got %v, want ErrBusy", err)
	}
}

func TestInstallPendingRejectsWhenClosed(t *testing.T) {
	s := newOpenSession(t)
	s.setState(StateClosed)

	if err := s.InstallPending("msg-1", func(jupyter.Message) {}); err != ErrClosed {
		t.Fatalf("got %v, want ErrClosed", err)
	}
}

func TestClearPendingOnlyReleasesOwnMsgID(t *testing.T) {
	s := newOpenSession(t)
	_ = s.InstallPending("msg-1", func(jupyter.Message) {})

	s.ClearPending("msg-2")
	if s.PendingMsgID() != "msg-1" {
		t.Fatalf("ClearPending with wrong msg_id released the slot")
	}

	s.ClearPending("msg-1")
	if s.PendingMsgID() != "" {
		t.Fatalf("ClearPending with matching msg_id did not release the slot")
	}
	if err := s.InstallPending("msg-3", func(jupyter.Message) {}); err != nil {
		t.Fatalf("InstallPending after release: unexpected error: %v", err)
	}
}

func TestRouteMessageOnlyInvokesMatchingPending(t *testing.T) {
	s := newOpenSession(t)

	var got []string
	_ = s.InstallPending("msg-1", func(m jupyter.Message) {
		got = append(got, m.Header.MsgType)
	})

	s.routeMessage(jupyter.Message{
		Header:       jupyter.Header{MsgType: "stream"},
		ParentHeader: map[string]any{"msg_id": "msg-1"},
	})
	s.routeMessage(jupyter.Message{
		Header:       jupyter.Header{MsgType: "status"},
		ParentHeader: map[string]any{"msg_id": "some-other-msg"},
	})

	if len(got) != 1 || got[0] != "stream" {
		t.Fatalf("routeMessage: got %v, want exactly one stream delivery", got)
	}
}

func TestTransportLostInvokesCallbackExactlyOnce(t *testing.T) {
	s := newOpenSession(t)
	_ = s.InstallPending("msg-1", func(jupyter.Message) {})

	var calls int
	var gotMsgID string
	s.SetOnTransportLost(func(pendingMsgID string, err error) {
		calls++
		gotMsgID = pendingMsgID
	})

	s.transitionLost(context.DeadlineExceeded)
	s.transitionLost(context.DeadlineExceeded)

	if calls != 1 {
		t.Fatalf("OnTransportLost invoked %d times, want exactly 1", calls)
	}
	if gotMsgID != "msg-1" {
		t.Fatalf("OnTransportLost msgID = %q, want msg-1", gotMsgID)
	}
	if s.State() != StateClosed {
		t.Fatalf("state after transport loss = %s, want CLOSED", s.State())
	}
}

func TestEnqueueRejectedWhenClosed(t *testing.T) {
	s := newOpenSession(t)
	s.setState(StateClosed)

	err := s.Enqueue(context.Background(), jupyter.Message{})
	if err != ErrClosed {
		t.Fatalf("Enqueue on closed session: got %v, want ErrClosed", err)
	}
}

func TestEnqueueRespectsContextCancellation(t *testing.T) {
	s := newOpenSession(t)
	// Fill the unbuffered-equivalent scenario by never draining sendCh.
	for i := 0; i < cap(s.sendCh); i++ {
		s.sendCh <- jupyter.Message{}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := s.Enqueue(ctx, jupyter.Message{})
	if err != context.DeadlineExceeded {
		t.Fatalf("Enqueue on full queue: got %v, want context.DeadlineExceeded", err)
	}
}

func TestKernelWebSocketURLSchemeMapping(t *testing.T) {
	u, err := kernelWebSocketURL(colabapi.ProxyInfo{URL: "https://proxy.example.com/", Token: "tok"}, "kernel-123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "wss://proxy.example.com/api/kernels/kernel-123/channels?token=tok"
	if u != want {
		t.Fatalf("got %q, want %q", u, want)
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateConnecting: "CONNECTING",
		StateOpen:       "OPEN",
		StateClosing:    "CLOSING",
		StateClosed:     "CLOSED",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Fatalf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}
