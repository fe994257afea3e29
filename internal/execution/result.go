package execution

import "github.com/colabcli/colab/internal/jupyter"

// Status is the terminal outcome of one execution, spec.md §3/§8.
type Status string

const (
	StatusOK    Status = "OK"
	StatusError Status = "ERROR"
	StatusAbort Status = "ABORT"
)

// Pinned errorCode values (DESIGN.md Open Question decision 3). Ranges
// 100-199/200-299/300-399 are reserved for SYNTAX/IMPORT/RUNTIME
// sub-classification by exception name; these constants are the specific
// codes this dispatcher emits today.
const (
	ErrorCodeNone      = 0
	ErrorCodeSyntax    = 100
	ErrorCodeImport    = 200
	ErrorCodeRuntime   = 300
	ErrorCodeTimeout   = 400
	ErrorCodeTransport = 410
	ErrorCodeCanceled  = 420
)

// Timing records the optional observability breakdown from spec.md §4.G.
type Timing struct {
	ConnectionMs int64
	ExecutionMs  int64
	CleanupMs    int64
}

// Result is the outcome of one execute() call, always delivered through a
// OneShot exactly once (spec.md §8, invariant 2).
type Result struct {
	Status         Status
	Stdout         string
	Stderr         string
	Traceback      []string
	DisplayData    []map[string]any
	ExecutionCount int
	Error          *jupyter.ExecError
	ErrorCode      int
	Timing         Timing
}

func resultFromBuffer(buf *jupyter.OutputBuffer) Result {
	r := Result{
		Stdout:         buf.Stdout,
		Stderr:         buf.Stderr,
		Traceback:      buf.Traceback,
		DisplayData:    buf.DisplayData,
		ExecutionCount: buf.ExecutionCount,
		Error:          buf.Error,
	}
	switch buf.Status {
	case "ok":
		r.Status = StatusOK
	case "error":
		r.Status = StatusError
		r.ErrorCode = classifyError(buf.Error)
	case "abort":
		r.Status = StatusAbort
		r.ErrorCode = ErrorCodeCanceled
	default:
		r.Status = StatusError
		r.ErrorCode = ErrorCodeRuntime
	}
	return r
}
