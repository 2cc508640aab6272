package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// LocalIDPrefix marks identifiers that were minted locally and have not yet
// been acknowledged by the remote store. The sync reconciler replaces them
// with server-assigned identifiers.
const LocalIDPrefix = "local_"

// IsLocalID reports whether an identifier is a not-yet-remote placeholder.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, LocalIDPrefix)
}

// Session represents a conversation thread.
type Session struct {
	SessionID string          `json:"session_id"`
	Title     string          `json:"title,omitempty"`
	UserID    string          `json:"user_id"`
	Messages  []Message       `json:"messages"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	Active    bool            `json:"active"`
}

// Message represents a single turn in a session.
type Message struct {
	MessageID   string         `json:"message_id"`
	SessionID   string         `json:"session_id"`
	Role        Role           `json:"role"`
	Content     string         `json:"content"`
	CreatedAt   time.Time      `json:"created_at"`
	Status      DeliveryStatus `json:"status"`
	Attachments []Attachment   `json:"attachments,omitempty"`
	Usage       *Usage         `json:"usage,omitempty"`
}

// Attachment is an opaque file reference carried with a message.
type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
	Mime string `json:"mime,omitempty"`
}

// Usage carries telemetry about how an assistant message was produced.
type Usage struct {
	Model            string  `json:"model,omitempty"`
	Provider         string  `json:"provider,omitempty"`
	TotalTokens      int     `json:"total_tokens,omitempty"`
	ProcessingTimeMs int64   `json:"processing_time_ms,omitempty"`
	Temperature      float64 `json:"temperature,omitempty"`
}

// MessagePatch holds the fields a PatchMessage transition may merge into an
// existing message. Nil fields are left untouched.
type MessagePatch struct {
	MessageID *string         `json:"message_id,omitempty"`
	Content   *string         `json:"content,omitempty"`
	Status    *DeliveryStatus `json:"status,omitempty"`
	Usage     *Usage          `json:"usage,omitempty"`
}

// ChatSettings is the per-request completion configuration. All fields are
// optional on input; resolver.ResolveSettings fills every one of them.
type ChatSettings struct {
	Model            string   `json:"model,omitempty"`
	RemoteModel      string   `json:"remote_model,omitempty"`
	Provider         string   `json:"provider,omitempty"`
	Tool             string   `json:"tool,omitempty"`
	Personality      string   `json:"personality,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
	MaxTokens        int      `json:"max_tokens,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
}

// CredentialSet maps a provider name to a secret. It is never required to be
// complete; absent entries fall through to platform credentials.
type CredentialSet map[string]string

// Has reports whether a non-empty credential exists for the provider.
func (c CredentialSet) Has(provider string) bool {
	return c[provider] != ""
}

// ValidationResult is the advisory outcome of credential validation. Missing
// never blocks a send; it only feeds logging and the analytics trail.
type ValidationResult struct {
	Valid   bool     `json:"valid"`
	Missing []string `json:"missing,omitempty"`
}

// PendingOperation is an offline queue entry awaiting remote creation.
type PendingOperation struct {
	Kind      PendingKind `json:"kind"`
	LocalID   string      `json:"local_id"`
	SessionID string      `json:"session_id,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// ConfigLogEntry records one send's resolved configuration for analytics.
type ConfigLogEntry struct {
	Timestamp time.Time    `json:"timestamp"`
	Settings  ChatSettings `json:"settings"`
	Success   bool         `json:"success"`
	Error     string       `json:"error,omitempty"`
}

// SynthesizeTitle derives a session title from the first user message,
// truncated to 50 runes with newlines collapsed.
func SynthesizeTitle(content string) string {
	content = strings.ReplaceAll(content, "\n", " ")
	content = strings.ReplaceAll(content, "\r", "")
	content = strings.TrimSpace(content)
	if content == "" {
		return "New conversation"
	}
	runes := []rune(content)
	if len(runes) <= 50 {
		return content
	}
	return string(runes[:47]) + "..."
}
