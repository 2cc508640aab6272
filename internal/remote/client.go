// Package remote is the HTTP client for the conversation backend. All
// request and response bodies are JSON; every call carries the bearer
// token. Non-2xx responses are mapped onto the failure taxonomy in
// errors.go so callers can branch with errors.Is.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// API is the surface of the conversation backend the rest of the service
// depends on.
type API interface {
	CreateConversation(ctx context.Context, req *CreateConversationRequest) (*Conversation, error)
	ListConversations(ctx context.Context, page, size int) ([]Conversation, error)
	GetConversation(ctx context.Context, conversationID string) (*Conversation, error)
	DeleteConversation(ctx context.Context, conversationID string) error
	UpdateConversationTitle(ctx context.Context, conversationID, title string) error
	ListMessages(ctx context.Context, conversationID string, page, size int) ([]StoredMessage, error)
	CreateMessage(ctx context.Context, conversationID string, req *CreateMessageRequest) (*StoredMessage, error)
	ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	GetAPIKeys(ctx context.Context) (map[string]string, error)
	SetAPIKey(ctx context.Context, provider, key string) error
}

// Client is the HTTP implementation of API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var _ API = (*Client)(nil)

// NewClient creates a new backend client.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// =============================================================================
// Wire types
// =============================================================================

// CreateConversationRequest is the body for POST /conversations.
type CreateConversationRequest struct {
	Title       string          `json:"title,omitempty"`
	AgentID     string          `json:"agent_id,omitempty"`
	WorkspaceID string          `json:"workspace_id,omitempty"`
	Context     json.RawMessage `json:"context,omitempty"`
	Settings    json.RawMessage `json:"settings,omitempty"`
}

// Conversation is a session record as stored by the backend.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Active    bool      `json:"active"`
}

// CreateMessageRequest is the body for POST /conversations/{id}/messages.
// CorrelationID carries the locally generated id so retried persists of the
// same message can be recognized; the backend assigns the storage id.
type CreateMessageRequest struct {
	Content       string       `json:"content"`
	Role          string       `json:"role"`
	Attachments   []Attachment `json:"attachments,omitempty"`
	CorrelationID string       `json:"correlation_id,omitempty"`
}

// Attachment is an opaque file reference on a message.
type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
	Mime string `json:"mime,omitempty"`
}

// StoredMessage is a message record as stored by the backend.
type StoredMessage struct {
	ID               string       `json:"id"`
	ConversationID   string       `json:"conversation_id"`
	Role             string       `json:"role"`
	Content          string       `json:"content"`
	CreatedAt        time.Time    `json:"created_at"`
	Attachments      []Attachment `json:"attachments,omitempty"`
	TotalTokens      int          `json:"total_tokens,omitempty"`
	ProcessingTimeMs int64        `json:"processing_time_ms,omitempty"`
}

// ChatMessage is one turn in a completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body for POST /llm/chat.
type ChatRequest struct {
	Messages         []ChatMessage     `json:"messages"`
	Model            string            `json:"model"`
	Provider         string            `json:"provider"`
	Temperature      *float64          `json:"temperature,omitempty"`
	MaxTokens        int               `json:"max_tokens,omitempty"`
	TopP             *float64          `json:"top_p,omitempty"`
	FrequencyPenalty *float64          `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64          `json:"presence_penalty,omitempty"`
	Tool             string            `json:"tool,omitempty"`
	Personality      string            `json:"personality,omitempty"`
	APIKeys          map[string]string `json:"api_keys,omitempty"`
}

// ChatResponse is the completion result from POST /llm/chat.
type ChatResponse struct {
	Content  string `json:"content"`
	Model    string `json:"model"`
	Provider string `json:"provider"`
	Usage    struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Metadata struct {
		ProcessingTimeMs int64 `json:"processing_time_ms"`
	} `json:"metadata"`
}

type conversationList struct {
	Items []Conversation `json:"items"`
}

type messageList struct {
	Items []StoredMessage `json:"items"`
}

// =============================================================================
// Calls
// =============================================================================

// CreateConversation creates a new conversation.
func (c *Client) CreateConversation(ctx context.Context, req *CreateConversationRequest) (*Conversation, error) {
	var conv Conversation
	if err := c.do(ctx, http.MethodPost, "/conversations", req, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// ListConversations lists conversations. An absent collection degrades to an
// empty list rather than failing the call.
func (c *Client) ListConversations(ctx context.Context, page, size int) ([]Conversation, error) {
	path := fmt.Sprintf("/conversations?page=%d&size=%d", page, size)
	var list conversationList
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Printf("INFO: remote conversation list absent, treating as empty")
			return []Conversation{}, nil
		}
		return nil, err
	}
	if list.Items == nil {
		return []Conversation{}, nil
	}
	return list.Items, nil
}

// GetConversation retrieves one conversation.
func (c *Client) GetConversation(ctx context.Context, conversationID string) (*Conversation, error) {
	var conv Conversation
	if err := c.do(ctx, http.MethodGet, "/conversations/"+url.PathEscape(conversationID), nil, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// DeleteConversation deletes a conversation.
func (c *Client) DeleteConversation(ctx context.Context, conversationID string) error {
	return c.do(ctx, http.MethodDelete, "/conversations/"+url.PathEscape(conversationID), nil, nil)
}

// UpdateConversationTitle renames a conversation. The backend takes the
// title as a query parameter.
func (c *Client) UpdateConversationTitle(ctx context.Context, conversationID, title string) error {
	path := fmt.Sprintf("/conversations/%s/title?title=%s",
		url.PathEscape(conversationID), url.QueryEscape(title))
	return c.do(ctx, http.MethodPut, path, nil, nil)
}

// ListMessages lists a conversation's messages. An absent collection
// degrades to an empty list rather than failing the call.
func (c *Client) ListMessages(ctx context.Context, conversationID string, page, size int) ([]StoredMessage, error) {
	path := fmt.Sprintf("/conversations/%s/messages?page=%d&size=%d",
		url.PathEscape(conversationID), page, size)
	var list messageList
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Printf("INFO: remote message list absent for %s, treating as empty", conversationID)
			return []StoredMessage{}, nil
		}
		return nil, err
	}
	if list.Items == nil {
		return []StoredMessage{}, nil
	}
	return list.Items, nil
}

// CreateMessage persists a message in a conversation.
func (c *Client) CreateMessage(ctx context.Context, conversationID string, req *CreateMessageRequest) (*StoredMessage, error) {
	var msg StoredMessage
	path := "/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.do(ctx, http.MethodPost, path, req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ChatCompletion requests a completion for the running message context.
func (c *Client) ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	var resp ChatResponse
	if err := c.do(ctx, http.MethodPost, "/llm/chat", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetAPIKeys retrieves the user's stored provider credentials.
func (c *Client) GetAPIKeys(ctx context.Context) (map[string]string, error) {
	var keys map[string]string
	if err := c.do(ctx, http.MethodGet, "/user-variables/api-keys", nil, &keys); err != nil {
		if errors.Is(err, ErrNotFound) {
			return map[string]string{}, nil
		}
		return nil, err
	}
	if keys == nil {
		keys = map[string]string{}
	}
	return keys, nil
}

// SetAPIKey stores one provider credential for the user.
func (c *Client) SetAPIKey(ctx context.Context, provider, key string) error {
	body := map[string]string{"value": key}
	return c.do(ctx, http.MethodPost, "/user-variables/api-keys/"+url.PathEscape(provider), body, nil)
}

// do sends one request and decodes the response into out when non-nil.
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var reqBody io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %v", ErrNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classifyStatus(resp.StatusCode, respBody)
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	return nil
}

// setHeaders sets common request headers.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
