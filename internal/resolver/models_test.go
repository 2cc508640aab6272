package resolver

import "testing"

func TestToRemoteModel(t *testing.T) {
	if got := ToRemoteModel("chatgpt-4o"); got != "gpt-4o" {
		t.Fatalf("expected gpt-4o, got %q", got)
	}
	if got := ToRemoteModel("claude-sonnet"); got != "claude-3-5-sonnet-latest" {
		t.Fatalf("unexpected remote model: %q", got)
	}
}

func TestToRemoteModelPassthrough(t *testing.T) {
	if got := ToRemoteModel("foo"); got != "foo" {
		t.Fatalf("expected identity fallback, got %q", got)
	}
}

func TestToClientModelRoundTrip(t *testing.T) {
	for client := range clientToRemote {
		if got := ToClientModel(ToRemoteModel(client)); got != client {
			t.Fatalf("round trip for %q yielded %q", client, got)
		}
	}
	if got := ToClientModel("some-unmapped-model"); got != "some-unmapped-model" {
		t.Fatalf("expected identity fallback, got %q", got)
	}
}

func TestProviderOf(t *testing.T) {
	cases := map[string]string{
		"chatgpt-4o":    "openai",
		"claude-sonnet": "anthropic",
		"gemini-pro":    "google",
		"llama-3":       "meta",
		"unknown-model": DefaultProvider,
	}
	for model, want := range cases {
		if got := ProviderOf(model); got != want {
			t.Fatalf("ProviderOf(%q) = %q, want %q", model, got, want)
		}
	}
}
