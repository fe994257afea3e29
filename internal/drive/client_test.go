package drive

import "testing"

func TestEscapeQueryLiteral(t *testing.T) {
	cases := map[string]string{
		"plain":            "plain",
		"it's a notebook":  `it\'s a notebook`,
		`back\slash`:       `back\\slash`,
	}
	for in, want := range cases {
		if got := escapeQueryLiteral(in); got != want {
			t.Errorf("escapeQueryLiteral(%q) = %q, want %q", in, got, want)
		}
	}
}
