// Package resolver maps client-facing chat configuration to the concrete
// values the remote completion platform expects.
package resolver

// DefaultModel is the baseline client-facing model identifier used when a
// request does not name one.
const DefaultModel = "chatgpt-4o"

// DefaultProvider is assumed for model identifiers with no known provider.
const DefaultProvider = "openai"

// clientToRemote maps client-facing model identifiers to the identifiers the
// completion endpoint expects. remoteToClient is its inverse, built at init.
var clientToRemote = map[string]string{
	"chatgpt-4o":      "gpt-4o",
	"chatgpt-4o-mini": "gpt-4o-mini",
	"claude-sonnet":   "claude-3-5-sonnet-latest",
	"gemini-pro":      "gemini-1.5-pro",
	"llama-3":         "llama-3-70b-instruct",
}

var remoteToClient = func() map[string]string {
	m := make(map[string]string, len(clientToRemote))
	for client, remote := range clientToRemote {
		m[remote] = client
	}
	return m
}()

// modelProviders maps client-facing model identifiers to their provider.
var modelProviders = map[string]string{
	"chatgpt-4o":      "openai",
	"chatgpt-4o-mini": "openai",
	"claude-sonnet":   "anthropic",
	"gemini-pro":      "google",
	"llama-3":         "meta",
}

// ToRemoteModel translates a client-facing model identifier to the remote
// one. Unknown identifiers pass through unchanged; a send is never blocked
// because an alias is unrecognized.
func ToRemoteModel(clientModel string) string {
	if remote, ok := clientToRemote[clientModel]; ok {
		return remote
	}
	return clientModel
}

// ToClientModel translates a remote model identifier back to its
// client-facing alias, passing unknown identifiers through unchanged.
func ToClientModel(remoteModel string) string {
	if client, ok := remoteToClient[remoteModel]; ok {
		return client
	}
	return remoteModel
}

// ProviderOf returns the provider for a client-facing model identifier,
// falling back to DefaultProvider for unknown models.
func ProviderOf(clientModel string) string {
	if provider, ok := modelProviders[clientModel]; ok {
		return provider
	}
	return DefaultProvider
}
