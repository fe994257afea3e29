package jupyter

import "sync"

// ExecError mirrors a Jupyter error message's payload.
type ExecError struct {
	Ename      string   `json:"ename"`
	Evalue     string   `json:"evalue"`
	Traceback  []string `json:"traceback"`
}

// OutputBuffer accumulates the output of one PendingExecution as messages
// arrive, per spec.md §3. Terminal state (the execute_reply's status and
// execution_count) is set exactly once; later attempts are no-ops. All
// mutators take mu, so the read pump can append while the dispatcher
// waits on a timeout.
type OutputBuffer struct {
	mu sync.Mutex

	Stdout         string
	Stderr         string
	Traceback      []string
	DisplayData    []map[string]any
	ExecutionCount int
	Error          *ExecError
	Status         string // "ok" | "error" | "abort", set once terminal

	terminal bool
}

// AppendStream appends text to stdout or stderr depending on name.
func (b *OutputBuffer) AppendStream(name, text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch name {
	case "stdout":
		b.Stdout += text
	case "stderr":
		b.Stderr += text
	}
}

// AppendDisplayData appends one display_data/execute_result payload.
func (b *OutputBuffer) AppendDisplayData(data map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.DisplayData = append(b.DisplayData, data)
}

// SetExecutionCount records the execution_count carried by execute_result
// or execute_reply.
func (b *OutputBuffer) SetExecutionCount(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ExecutionCount = n
}

// SetError records an error payload and appends its traceback.
func (b *OutputBuffer) SetError(e ExecError) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Error = &e
	b.Traceback = append(b.Traceback, e.Traceback...)
}

// SetTerminal records the terminal status exactly once; subsequent calls
// are no-ops, so a second execute_reply cannot change the recorded status.
func (b *OutputBuffer) SetTerminal(status string, executionCount int) (applied bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.terminal {
		return false
	}
	b.terminal = true
	b.Status = status
	if executionCount > 0 {
		b.ExecutionCount = executionCount
	}
	return true
}

// IsTerminal reports whether a terminal status has already been recorded.
func (b *OutputBuffer) IsTerminal() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.terminal
}
