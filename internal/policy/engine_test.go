package policy

import (
	"context"
	"testing"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(context.Background(), DefaultPolicy)
	if err != nil {
		t.Fatalf("failed to create policy engine: %v", err)
	}
	return engine
}

func TestEvaluateAllowWithFallback(t *testing.T) {
	engine := newTestEngine(t)

	decision, err := engine.Evaluate(context.Background(), Input{Provider: "openai"})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if decision != "allow_with_fallback" {
		t.Fatalf("expected allow_with_fallback, got %q", decision)
	}
}

func TestEvaluateAllowWithOwnKey(t *testing.T) {
	engine := newTestEngine(t)

	decision, err := engine.Evaluate(context.Background(), Input{
		Provider:          "anthropic",
		HasUser:           true,
		CallerSuppliedAny: true,
	})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if decision != "allow" {
		t.Fatalf("expected allow, got %q", decision)
	}
}

func TestEvaluateWarnOnPartialConfiguration(t *testing.T) {
	engine := newTestEngine(t)

	// Caller supplied keys, just not for this provider.
	decision, err := engine.Evaluate(context.Background(), Input{
		Provider:          "anthropic",
		CallerSuppliedAny: true,
	})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if decision != "warn" {
		t.Fatalf("expected warn, got %q", decision)
	}
}

func TestNewEngineRejectsBadPolicy(t *testing.T) {
	if _, err := NewEngine(context.Background(), "not rego at all {"); err == nil {
		t.Fatalf("expected error for malformed policy")
	}
}
