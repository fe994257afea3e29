// Package history implements component 4.H: an append-only JSON-lines
// execution log with filtered query and aggregate statistics.
package history

import "github.com/colabcli/colab/internal/jupyter"

// Mode distinguishes a kernel-backed execution from a plain shell command.
type Mode string

const (
	ModeKernel   Mode = "kernel"
	ModeTerminal Mode = "terminal"
)

// Status mirrors execution.Status as persisted to disk.
type Status string

const (
	StatusOK    Status = "OK"
	StatusError Status = "ERROR"
	StatusAbort Status = "ABORT"
)

// Runtime is the subset of an Assignment worth persisting alongside a run.
type Runtime struct {
	Label       string `json:"label"`
	Accelerator string `json:"accelerator"`
}

// Entry is one immutable record in the log (spec.md §3). Required keys
// per spec.md §6 are timestamp, command, mode, status, errorCode, runtime;
// everything else may be absent.
type Entry struct {
	Timestamp      string             `json:"timestamp"`
	Command        string             `json:"command"`
	Mode           Mode               `json:"mode"`
	Status         Status             `json:"status"`
	Stdout         string             `json:"stdout,omitempty"`
	Stderr         string             `json:"stderr,omitempty"`
	Traceback      []string           `json:"traceback,omitempty"`
	ExecutionCount int                `json:"executionCount,omitempty"`
	Runtime        Runtime            `json:"runtime"`
	ErrorCode      int                `json:"errorCode"`
	Error          *jupyter.ExecError `json:"error,omitempty"`
	Category       Category           `json:"category,omitempty"`
}
