// Package execution implements component 4.G: issues execute_request,
// aggregates the reply stream into a single Result, and enforces timeouts,
// cancellation, and busy/transport-loss handling.
package execution

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/colabcli/colab/internal/jupyter"
	"github.com/colabcli/colab/internal/kernel"
)

// interruptGrace is the window given to an in-flight execution to deliver
// its execute_reply after an interrupt_request has been sent, before the
// dispatcher forces an ABORT (spec.md §4.G step 5).
const interruptGrace = 2 * time.Second

// ErrBusy is returned when a PendingExecution is already active on the
// session (spec.md §4.G step 1, §7 taxonomy).
var ErrBusy = errors.New("execution: session busy")

// Options parameterizes Execute.
type Options struct {
	// TimeoutMs is the caller-supplied deadline in milliseconds; zero means
	// unbounded (spec.md §5).
	TimeoutMs int
	Silent    bool
}

// Dispatcher runs one request-to-reply cycle at a time per session.
type Dispatcher struct {
	log *logrus.Entry
}

// New builds a Dispatcher.
func New(logger *logrus.Entry) *Dispatcher {
	return &Dispatcher{log: logger}
}

// Execute implements spec.md §4.G. It never returns an error for a
// terminal execution failure — those are folded into Result — reserving
// the error return for preconditions (Busy, session already closed, or
// caller-side enqueue/connect failures).
func (d *Dispatcher) Execute(ctx context.Context, sess *kernel.Session, code string, opts Options) (Result, error) {
	start := time.Now()

	msg := jupyter.NewExecuteRequest(sess.SessionID, code, opts.Silent)
	msgID := msg.Header.MsgID
	buf := &jupyter.OutputBuffer{}
	pending := NewOneShot[Result]()

	onMessage := func(m jupyter.Message) {
		cls := jupyter.Apply(m, buf)
		if cls.Terminal {
			sess.ClearPending(msgID)
			pending.Complete(resultFromBuffer(buf))
		}
	}

	if err := sess.InstallPending(msgID, onMessage); err != nil {
		if errors.Is(err, kernel.ErrBusy) {
			return Result{}, ErrBusy
		}
		return Result{}, err
	}

	sess.SetOnTransportLost(func(pendingMsgID string, lostErr error) {
		if pendingMsgID != msgID {
			return
		}
		pending.Complete(Result{Status: StatusError, ErrorCode: ErrorCodeTransport})
	})

	connectDone := time.Now()

	if err := sess.Enqueue(ctx, msg); err != nil {
		sess.ClearPending(msgID)
		return Result{}, err
	}

	var timeoutCh <-chan time.Time
	if opts.TimeoutMs > 0 {
		timer := time.NewTimer(time.Duration(opts.TimeoutMs) * time.Millisecond)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	var result Result
	select {
	case <-pending.Done():
		result = pending.Value()
	case <-ctx.Done():
		result = d.abort(sess, msgID, pending, ErrorCodeCanceled)
	case <-timeoutCh:
		result = d.abort(sess, msgID, pending, ErrorCodeTimeout)
	}

	execDone := time.Now()
	result.Timing = Timing{
		ConnectionMs: connectDone.Sub(start).Milliseconds(),
		ExecutionMs:  execDone.Sub(connectDone).Milliseconds(),
	}
	return result, nil
}

// abort implements spec.md §4.G steps 5/6: send interrupt_request, wait a
// grace period for a genuine execute_reply, and otherwise force-complete
// as ABORT with the given errorCode.
func (d *Dispatcher) abort(sess *kernel.Session, msgID string, pending *OneShot[Result], errorCode int) Result {
	_ = sess.Enqueue(context.Background(), jupyter.NewInterruptRequest(sess.SessionID))

	grace := time.NewTimer(interruptGrace)
	defer grace.Stop()

	select {
	case <-pending.Done():
		return pending.Value()
	case <-grace.C:
		sess.ClearPending(msgID)
		pending.Complete(Result{Status: StatusAbort, ErrorCode: errorCode})
		return pending.Value()
	}
}
