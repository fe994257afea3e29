// Package templates implements component 4.N: generates a minimal valid
// .ipynb v4 document as starter content for `colab run --new <name>`. Pure
// data construction, no network calls.
package templates

import "encoding/json"

// NewNotebook returns a minimal .ipynb v4 document: one empty code cell
// and Python 3 kernelspec metadata.
func NewNotebook() ([]byte, error) {
	doc := map[string]any{
		"nbformat":      4,
		"nbformat_minor": 5,
		"metadata": map[string]any{
			"kernelspec": map[string]any{
				"display_name": "Python 3",
				"name":         "python3",
				"language":     "python",
			},
			"language_info": map[string]any{
				"name": "python",
			},
		},
		"cells": []any{
			map[string]any{
				"cell_type":       "code",
				"execution_count": nil,
				"metadata":        map[string]any{},
				"outputs":         []any{},
				"source":          []any{},
			},
		},
	}
	return json.MarshalIndent(doc, "", " ")
}
