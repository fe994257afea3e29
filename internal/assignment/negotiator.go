// Package assignment implements component 4.D: picks or creates a Colab
// compute assignment given variant preferences and existing runtimes.
package assignment

import (
	"context"
	"fmt"

	"github.com/colabcli/colab/internal/colabapi"
)

// QuotaDenied is returned when the requested variant is denied by quota.
type QuotaDenied struct {
	Variant colabapi.Variant
}

func (e *QuotaDenied) Error() string {
	return fmt.Sprintf("assignment: quota denied for requested variant %s", e.Variant)
}

// QuotaExceeded is returned when the account's usage-time quota is exhausted.
type QuotaExceeded struct{}

func (e *QuotaExceeded) Error() string { return "assignment: usage-time quota exceeded" }

// Denylisted is returned when the account is denylisted from assignment.
type Denylisted struct{}

func (e *Denylisted) Error() string { return "assignment: account is denylisted" }

// AssignmentFailed wraps any other non-SUCCESS outcome, including a SUCCESS
// outcome whose response omitted runtimeProxyInfo (spec.md §4.D step 3,
// and the Open Question resolved in DESIGN.md: treated as failure, not as
// recoverable elsewhere).
type AssignmentFailed struct {
	Outcome colabapi.Outcome
	Reason  string
}

func (e *AssignmentFailed) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("assignment: failed with outcome %s: %s", e.Outcome, e.Reason)
	}
	return fmt.Sprintf("assignment: failed with outcome %s", e.Outcome)
}

// Poster is the subset of colabapi.Client the negotiator depends on.
type Poster interface {
	ListAssignments(ctx context.Context) ([]colabapi.Assignment, error)
	PostAssignment(ctx context.Context, variant colabapi.Variant, forceNew bool) (colabapi.PostAssignmentResult, error)
}

// Options parameterizes assignRuntime per spec.md §4.D.
type Options struct {
	ForceNew bool
	Variant  colabapi.Variant // zero value means "unset": any variant matches
}

// Negotiator implements the policy in spec.md §4.D.
type Negotiator struct {
	client Poster
}

// New builds a Negotiator over client.
func New(client Poster) *Negotiator {
	return &Negotiator{client: client}
}

// AssignRuntime implements spec.md §4.D's three-step policy.
func (n *Negotiator) AssignRuntime(ctx context.Context, opts Options) (colabapi.Assignment, error) {
	if !opts.ForceNew {
		existing, err := n.client.ListAssignments(ctx)
		if err != nil {
			return colabapi.Assignment{}, fmt.Errorf("assignment: list existing assignments: %w", err)
		}
		for _, a := range existing {
			if opts.Variant == "" || a.Variant == opts.Variant {
				return a, nil
			}
		}
	}

	result, err := n.client.PostAssignment(ctx, opts.Variant, opts.ForceNew)
	if err != nil {
		return colabapi.Assignment{}, fmt.Errorf("assignment: post assignment: %w", err)
	}

	switch result.Outcome {
	case colabapi.OutcomeSuccess:
		if !result.HasRuntimeProxy {
			return colabapi.Assignment{}, &AssignmentFailed{Outcome: result.Outcome, Reason: "response omitted runtimeProxyInfo"}
		}
		return result.Assignment, nil
	case colabapi.OutcomeQuotaDeniedVariant:
		return colabapi.Assignment{}, &QuotaDenied{Variant: opts.Variant}
	case colabapi.OutcomeQuotaExceededUsage:
		return colabapi.Assignment{}, &QuotaExceeded{}
	case colabapi.OutcomeDenylisted:
		return colabapi.Assignment{}, &Denylisted{}
	default:
		return colabapi.Assignment{}, &AssignmentFailed{Outcome: result.Outcome}
	}
}
