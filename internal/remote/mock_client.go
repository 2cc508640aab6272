package remote

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockClient is an in-memory implementation of API for testing. Individual
// calls can be overridden through the Fn fields; unset fields fall through
// to the built-in in-memory behavior.
type MockClient struct {
	mu sync.Mutex

	conversations map[string]*Conversation
	messages      map[string][]StoredMessage
	apiKeys       map[string]string

	CreateConversationFn func(ctx context.Context, req *CreateConversationRequest) (*Conversation, error)
	ChatCompletionFn     func(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	CreateMessageFn      func(ctx context.Context, conversationID string, req *CreateMessageRequest) (*StoredMessage, error)
	ListConversationsFn  func(ctx context.Context, page, size int) ([]Conversation, error)
}

// NewMockClient creates a new mock backend.
func NewMockClient() *MockClient {
	return &MockClient{
		conversations: make(map[string]*Conversation),
		messages:      make(map[string][]StoredMessage),
		apiKeys:       make(map[string]string),
	}
}

var _ API = (*MockClient)(nil)

// CreateConversation stores a conversation with a server-style id.
func (m *MockClient) CreateConversation(ctx context.Context, req *CreateConversationRequest) (*Conversation, error) {
	if m.CreateConversationFn != nil {
		return m.CreateConversationFn(ctx, req)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	conv := &Conversation{
		ID:        "conv_" + uuid.New().String()[:8],
		Title:     req.Title,
		CreatedAt: now,
		UpdatedAt: now,
		Active:    true,
	}
	m.conversations[conv.ID] = conv
	return conv, nil
}

// ListConversations returns stored conversations.
func (m *MockClient) ListConversations(ctx context.Context, page, size int) ([]Conversation, error) {
	if m.ListConversationsFn != nil {
		return m.ListConversationsFn(ctx, page, size)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Conversation, 0, len(m.conversations))
	for _, conv := range m.conversations {
		out = append(out, *conv)
	}
	return out, nil
}

// GetConversation returns one stored conversation.
func (m *MockClient) GetConversation(ctx context.Context, conversationID string) (*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.conversations[conversationID]
	if !ok {
		return nil, fmt.Errorf("%w: conversation %s", ErrNotFound, conversationID)
	}
	clone := *conv
	return &clone, nil
}

// DeleteConversation removes a conversation and its messages.
func (m *MockClient) DeleteConversation(ctx context.Context, conversationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.conversations, conversationID)
	delete(m.messages, conversationID)
	return nil
}

// UpdateConversationTitle renames a stored conversation.
func (m *MockClient) UpdateConversationTitle(ctx context.Context, conversationID, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.conversations[conversationID]
	if !ok {
		return fmt.Errorf("%w: conversation %s", ErrNotFound, conversationID)
	}
	conv.Title = title
	conv.UpdatedAt = time.Now()
	return nil
}

// ListMessages returns a conversation's stored messages.
func (m *MockClient) ListMessages(ctx context.Context, conversationID string, page, size int) ([]StoredMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msgs := m.messages[conversationID]
	out := make([]StoredMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

// CreateMessage stores a message with a server-style id.
func (m *MockClient) CreateMessage(ctx context.Context, conversationID string, req *CreateMessageRequest) (*StoredMessage, error) {
	if m.CreateMessageFn != nil {
		return m.CreateMessageFn(ctx, conversationID, req)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	msg := StoredMessage{
		ID:             "msg_" + uuid.New().String()[:8],
		ConversationID: conversationID,
		Role:           req.Role,
		Content:        req.Content,
		CreatedAt:      time.Now(),
		Attachments:    req.Attachments,
	}
	m.messages[conversationID] = append(m.messages[conversationID], msg)
	return &msg, nil
}

// ChatCompletion returns a canned completion echoing the last user turn.
func (m *MockClient) ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if m.ChatCompletionFn != nil {
		return m.ChatCompletionFn(ctx, req)
	}

	var lastUser string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			lastUser = req.Messages[i].Content
			break
		}
	}

	resp := &ChatResponse{
		Content:  fmt.Sprintf("[MOCK] Received your message: %q.", lastUser),
		Model:    req.Model,
		Provider: req.Provider,
	}
	resp.Usage.TotalTokens = len(lastUser) / 4
	resp.Metadata.ProcessingTimeMs = 5
	return resp, nil
}

// GetAPIKeys returns the stored credentials.
func (m *MockClient) GetAPIKeys(ctx context.Context) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]string, len(m.apiKeys))
	for k, v := range m.apiKeys {
		out[k] = v
	}
	return out, nil
}

// SetAPIKey stores one credential.
func (m *MockClient) SetAPIKey(ctx context.Context, provider, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.apiKeys[provider] = key
	return nil
}
