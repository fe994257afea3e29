package templates

import (
	"encoding/json"
	"testing"
)

func TestNewNotebookIsValidMinimalV4(t *testing.T) {
	data, err := NewNotebook()
	if err != nil {
		t.Fatalf("NewNotebook: unexpected error: %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("NewNotebook produced invalid JSON: %v", err)
	}

	if doc["nbformat"].(float64) != 4 {
		t.Fatalf("nbformat = %v, want 4", doc["nbformat"])
	}
	cells, ok := doc["cells"].([]any)
	if !ok || len(cells) != 1 {
		t.Fatalf("expected exactly one cell, got %v", doc["cells"])
	}
	cell := cells[0].(map[string]any)
	if cell["cell_type"] != "code" {
		t.Fatalf("cell_type = %v, want code", cell["cell_type"])
	}

	meta := doc["metadata"].(map[string]any)
	kernelspec := meta["kernelspec"].(map[string]any)
	if kernelspec["name"] != "python3" {
		t.Fatalf("kernelspec.name = %v, want python3", kernelspec["name"])
	}
}
