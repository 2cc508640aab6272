// Package policy evaluates the credential fallback policy.
//
// Silently riding on platform credentials when the caller supplied none of
// its own is a deliberate product rule, not an accident. Expressing it as a
// rego document makes the rule visible to auditors and testable in
// isolation from the send pipeline.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Engine is the OPA policy engine for credential fallback decisions.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.credential_policy.decision"),
		rego.Module("credential_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Input describes one send's credential situation for the policy.
type Input struct {
	Provider          string `json:"provider"`
	HasExplicit       bool   `json:"has_explicit"`
	HasUser           bool   `json:"has_user"`
	CallerSuppliedAny bool   `json:"caller_supplied_any"`
}

// Evaluate checks the credential policy for a send.
// Returns: decision (allow, allow_with_fallback, warn), error.
func (e *Engine) Evaluate(ctx context.Context, input Input) (string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		// The policy defines a default; an empty result means it was edited
		// out. Treat as plain allow.
		return "allow", nil
	}

	if s, ok := results[0].Expressions[0].Value.(string); ok {
		return s, nil
	}
	return "allow", nil
}

// DefaultPolicy is the default credential fallback policy.
//
// allow               - the caller holds its own key for the provider
// allow_with_fallback - no caller key at all; the platform's system key is
//                       used, which is the documented fallback mode
// warn                - the caller supplied keys but not for this provider;
//                       the send still proceeds, flagged for the audit trail
const DefaultPolicy = `
package credential_policy

default decision = "allow_with_fallback"

decision = "allow" {
	input.has_explicit
}

decision = "allow" {
	input.has_user
}

decision = "warn" {
	not input.has_explicit
	not input.has_user
	input.caller_supplied_any
}
`
