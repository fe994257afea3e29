package execution

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/colabcli/colab/internal/config"
	"github.com/colabcli/colab/internal/jupyter"
	"github.com/colabcli/colab/internal/kernel"
)

// fakeKernelServer upgrades to a WebSocket and hands every decoded message
// to handle, which may reply with zero or more messages of its own.
func fakeKernelServer(t *testing.T, handle func(conn *websocket.Conn, msg jupyter.Message)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		go func() {
			defer conn.Close()
			for {
				_, data, err := conn.ReadMessage()
				if err != nil {
					return
				}
				msg, err := jupyter.Decode(data)
				if err != nil {
					continue
				}
				handle(conn, msg)
			}
		}()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dialTestSession(t *testing.T, srv *httptest.Server) *kernel.Session {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial test server: %v", err)
	}
	logger := logrus.NewEntry(logrus.New())
	sess := kernel.NewForTesting(&config.Config{}, conn, logger)
	sess.SessionID = "test-session"
	return sess
}

func replyTo(parentMsgID, msgType string, content map[string]any) jupyter.Message {
	return jupyter.Message{
		Header:       jupyter.Header{MsgID: "reply-" + parentMsgID + "-" + msgType, MsgType: msgType},
		ParentHeader: map[string]any{"msg_id": parentMsgID},
		Content:      content,
	}
}

func sendMessage(conn *websocket.Conn, msg jupyter.Message) {
	data, _ := jupyter.Encode(msg)
	_ = conn.WriteMessage(websocket.TextMessage, data)
}

func TestExecuteHappyPath(t *testing.T) {
	srv := fakeKernelServer(t, func(conn *websocket.Conn, msg jupyter.Message) {
		if msg.Header.MsgType != "execute_request" {
			return
		}
		sendMessage(conn, replyTo(msg.Header.MsgID, "stream", map[string]any{"name": "stdout", "text": "hi\n"}))
		sendMessage(conn, replyTo(msg.Header.MsgID, "execute_reply", map[string]any{"status": "ok", "execution_count": float64(1)}))
	})
	sess := dialTestSession(t, srv)
	defer sess.Close("test done")

	d := New(logrus.NewEntry(logrus.New()))
	res, err := d.Execute(context.Background(), sess, "print('hi')", Options{})
	if err != nil {
		t.Fatalf("Execute: unexpected error: %v", err)
	}
	if res.Status != StatusOK {
		t.Fatalf("status = %v, want OK", res.Status)
	}
	if res.Stdout != "hi\n" {
		t.Fatalf("stdout = %q, want %q", res.Stdout, "hi\n")
	}
	if res.ExecutionCount != 1 {
		t.Fatalf("execution_count = %d, want 1", res.ExecutionCount)
	}
	if res.ErrorCode != ErrorCodeNone {
		t.Fatalf("errorCode = %d, want 0", res.ErrorCode)
	}
}

func TestExecuteRuntimeError(t *testing.T) {
	srv := fakeKernelServer(t, func(conn *websocket.Conn, msg jupyter.Message) {
		if msg.Header.MsgType != "execute_request" {
			return
		}
		sendMessage(conn, replyTo(msg.Header.MsgID, "error", map[string]any{
			"ename": "ZeroDivisionError", "evalue": "division by zero",
			"traceback": []any{"ZeroDivisionError: division by zero"},
		}))
		sendMessage(conn, replyTo(msg.Header.MsgID, "execute_reply", map[string]any{"status": "error"}))
	})
	sess := dialTestSession(t, srv)
	defer sess.Close("test done")

	d := New(logrus.NewEntry(logrus.New()))
	res, err := d.Execute(context.Background(), sess, "x = 1 / 0", Options{})
	if err != nil {
		t.Fatalf("Execute: unexpected error: %v", err)
	}
	if res.Status != StatusError {
		t.Fatalf("status = %v, want ERROR", res.Status)
	}
	if res.ErrorCode != ErrorCodeRuntime {
		t.Fatalf("errorCode = %d, want RUNTIME (%d)", res.ErrorCode, ErrorCodeRuntime)
	}
}

func TestExecuteTimeoutAborts(t *testing.T) {
	// Server never replies to execute_request: simulates a hung kernel.
	srv := fakeKernelServer(t, func(conn *websocket.Conn, msg jupyter.Message) {})
	sess := dialTestSession(t, srv)
	defer sess.Close("test done")

	d := New(logrus.NewEntry(logrus.New()))
	start := time.Now()
	res, err := d.Execute(context.Background(), sess, "while True: pass", Options{TimeoutMs: 50})
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("Execute: unexpected error: %v", err)
	}
	if res.Status != StatusAbort {
		t.Fatalf("status = %v, want ABORT", res.Status)
	}
	if res.ErrorCode != ErrorCodeTimeout {
		t.Fatalf("errorCode = %d, want TIMEOUT (%d)", res.ErrorCode, ErrorCodeTimeout)
	}
	if elapsed < 50*time.Millisecond {
		t.Fatalf("returned before timeout elapsed: %v", elapsed)
	}
	if elapsed > interruptGrace+2*time.Second {
		t.Fatalf("took too long to abort: %v", elapsed)
	}

	// The busy slot must be released: a subsequent Execute must not fail Busy.
	// The server never replies, so this one is bounded by its own timeout.
	res2, err := d.Execute(context.Background(), sess, "1+1", Options{TimeoutMs: 50})
	if err != nil && err != ErrBusy {
		t.Fatalf("second Execute: unexpected error: %v", err)
	}
	if err == ErrBusy {
		t.Fatalf("second Execute incorrectly rejected as Busy after prior abort")
	}
	_ = res2
}

func TestExecuteRejectsWhenBusy(t *testing.T) {
	srv := fakeKernelServer(t, func(conn *websocket.Conn, msg jupyter.Message) {
		// Deliberately never reply, to keep the first execution pending.
	})
	sess := dialTestSession(t, srv)
	defer sess.Close("test done")

	d := New(logrus.NewEntry(logrus.New()))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = d.Execute(context.Background(), sess, "while True: pass", Options{})
	}()

	// Give the first Execute time to install its pending slot.
	time.Sleep(20 * time.Millisecond)

	_, err := d.Execute(context.Background(), sess, "1+1", Options{})
	if err != ErrBusy {
		t.Fatalf("got %v, want ErrBusy", err)
	}

	sess.Close("test done")
	<-done
}

func TestExecuteTransportLoss(t *testing.T) {
	srv := fakeKernelServer(t, func(conn *websocket.Conn, msg jupyter.Message) {
		if msg.Header.MsgType != "execute_request" {
			return
		}
		conn.Close()
	})
	sess := dialTestSession(t, srv)

	d := New(logrus.NewEntry(logrus.New()))
	res, err := d.Execute(context.Background(), sess, "print(1)", Options{})
	if err != nil {
		t.Fatalf("Execute: unexpected error: %v", err)
	}
	if res.Status != StatusError {
		t.Fatalf("status = %v, want ERROR", res.Status)
	}
	if res.ErrorCode != ErrorCodeTransport {
		t.Fatalf("errorCode = %d, want TRANSPORT (%d)", res.ErrorCode, ErrorCodeTransport)
	}
	if sess.State() != kernel.StateClosed {
		t.Fatalf("session state = %v, want CLOSED", sess.State())
	}
}
