package execution

import "github.com/colabcli/colab/internal/jupyter"

// syntaxEnames and importEnames classify a Python exception's ename into
// the SYNTAX/IMPORT ranges pinned in DESIGN.md; anything else observed on
// an error{} reply falls into the generic RUNTIME range.
var syntaxEnames = map[string]bool{
	"SyntaxError":      true,
	"IndentationError": true,
	"TabError":         true,
}

var importEnames = map[string]bool{
	"ImportError":       true,
	"ModuleNotFoundError": true,
}

// classifyError maps a terminal error{} payload to the pinned errorCode
// ranges (DESIGN.md Open Question decision 3). A nil error (e.g. a bare
// status="error" reply with no error{} content) still counts as RUNTIME.
func classifyError(e *jupyter.ExecError) int {
	if e == nil {
		return ErrorCodeRuntime
	}
	if syntaxEnames[e.Ename] {
		return ErrorCodeSyntax
	}
	if importEnames[e.Ename] {
		return ErrorCodeImport
	}
	return ErrorCodeRuntime
}
