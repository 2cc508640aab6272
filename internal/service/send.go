package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nimbleworks/chatrelay/internal/domain"
	"github.com/nimbleworks/chatrelay/internal/policy"
	"github.com/nimbleworks/chatrelay/internal/remote"
	"github.com/nimbleworks/chatrelay/internal/resolver"
)

// SendRequest is one send through the pipeline.
type SendRequest struct {
	SessionID   string
	Content     string
	Attachments []domain.Attachment
	Settings    domain.ChatSettings
	Credentials domain.CredentialSet
}

// SendResult reports the outcome of a successful send.
type SendResult struct {
	SessionID        string              `json:"session_id"`
	UserMessage      domain.Message      `json:"user_message"`
	AssistantMessage domain.Message      `json:"assistant_message"`
	Settings         domain.ChatSettings `json:"settings"`
}

// SendMessage runs the full send pipeline: session resolution, optimistic
// append, settings and credential resolution, the completion call, and
// persistence of both sides of the exchange. On failure the user message is
// left visible with status error and the error is returned to the caller.
func (s *Service) SendMessage(ctx context.Context, req SendRequest) (*SendResult, error) {
	if req.Content == "" {
		return nil, fmt.Errorf("content is required")
	}

	settings := resolver.ResolveSettings(req.Settings)

	session, err := s.resolveSession(ctx, req.SessionID, req.Content, settings)
	if err != nil {
		return nil, err
	}
	sessionID := session.SessionID

	// Optimistic append: the user sees their message before any network
	// round trip completes.
	userMsg := domain.Message{
		MessageID:   newLocalID(),
		SessionID:   sessionID,
		Role:        domain.RoleUser,
		Content:     req.Content,
		CreatedAt:   time.Now(),
		Status:      domain.DeliverySending,
		Attachments: req.Attachments,
	}
	s.state.AppendMessage(sessionID, userMsg)

	credentials := s.resolveCredentials(ctx, req.Credentials, settings)

	s.state.SetLoading(true)
	defer s.state.SetLoading(false)

	resp, err := s.remote.ChatCompletion(ctx, s.buildChatRequest(sessionID, settings, credentials))
	if err != nil {
		s.failSend(ctx, sessionID, userMsg, settings, err)
		return nil, fmt.Errorf("completion call failed: %w", err)
	}

	userMsg = s.persistUserMessage(ctx, sessionID, userMsg)
	assistantMsg := s.persistAssistantMessage(ctx, sessionID, resp, settings)

	s.maybeAdoptTitle(ctx, sessionID, req.Content)
	s.mirrorSession(ctx, sessionID)
	s.logConfiguration(ctx, settings, true, "")

	return &SendResult{
		SessionID:        sessionID,
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
		Settings:         settings,
	}, nil
}

// ResendMessage reruns the pipeline for a previously failed message. The
// original errored message is never mutated; the retry gets a fresh id.
func (s *Service) ResendMessage(ctx context.Context, sessionID, content string, settings domain.ChatSettings, credentials domain.CredentialSet) (*SendResult, error) {
	return s.SendMessage(ctx, SendRequest{
		SessionID:   sessionID,
		Content:     content,
		Settings:    settings,
		Credentials: credentials,
	})
}

// resolveSession returns the session the send targets, creating one when no
// id is supplied. Creation prefers the backend; when that fails the session
// is minted locally so the user is never blocked from typing.
func (s *Service) resolveSession(ctx context.Context, sessionID, content string, settings domain.ChatSettings) (*domain.Session, error) {
	if sessionID != "" {
		if existing := s.state.Session(sessionID); existing != nil {
			return existing, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	if current := s.state.CurrentSession(); current != nil {
		return current, nil
	}

	title := domain.SynthesizeTitle(content)
	now := time.Now()
	session := domain.Session{
		Title:     title,
		UserID:    s.userID,
		Messages:  []domain.Message{},
		CreatedAt: now,
		UpdatedAt: now,
		Active:    true,
	}

	conv, err := s.remote.CreateConversation(ctx, &remote.CreateConversationRequest{
		Title:    title,
		Settings: marshalSettings(settings),
	})
	if err != nil {
		log.Printf("WARN: remote conversation create failed, continuing offline: %v", err)
		session.SessionID = newLocalID()
		if qerr := s.cache.EnqueuePending(ctx, domain.PendingOperation{
			Kind:      domain.PendingConversation,
			LocalID:   session.SessionID,
			CreatedAt: now,
		}); qerr != nil {
			log.Printf("ERROR: failed to queue pending conversation: %v", qerr)
		}
	} else {
		session.SessionID = conv.ID
	}

	s.state.UpsertSession(session)
	s.mirrorSession(ctx, session.SessionID)
	return &session, nil
}

// resolveCredentials merges caller-supplied keys with the user's stored
// keys and runs the fallback policy for the audit trail. Resolution never
// fails; at worst the send rides on platform credentials.
func (s *Service) resolveCredentials(ctx context.Context, explicit domain.CredentialSet, settings domain.ChatSettings) domain.CredentialSet {
	stored, err := s.remote.GetAPIKeys(ctx)
	if err != nil {
		log.Printf("WARN: failed to fetch stored credentials, using last synced set: %v", err)
		s.mu.Lock()
		stored = s.storedKeys
		s.mu.Unlock()
	}

	merged := resolver.ResolveCredentials(explicit, stored)
	validation := resolver.ValidateCredentials(settings, merged)
	if !validation.Valid {
		log.Printf("WARN: credentials missing for providers %v, proceeding", validation.Missing)
	}

	decision, err := s.policy.Evaluate(ctx, policy.Input{
		Provider:          settings.Provider,
		HasExplicit:       explicit.Has(settings.Provider),
		HasUser:           domain.CredentialSet(stored).Has(settings.Provider),
		CallerSuppliedAny: len(merged) > 0,
	})
	if err != nil {
		log.Printf("ERROR: credential policy evaluation failed: %v", err)
	} else if decision != "allow" {
		log.Printf("INFO: credential policy decision for %s: %s", settings.Provider, decision)
	}

	return merged
}

// buildChatRequest assembles the completion request from the running
// message context.
func (s *Service) buildChatRequest(sessionID string, settings domain.ChatSettings, credentials domain.CredentialSet) *remote.ChatRequest {
	history := s.state.Messages(sessionID)
	messages := make([]remote.ChatMessage, 0, len(history))
	for _, msg := range history {
		if msg.Status == domain.DeliveryError {
			continue
		}
		messages = append(messages, remote.ChatMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	return &remote.ChatRequest{
		Messages:         messages,
		Model:            settings.RemoteModel,
		Provider:         settings.Provider,
		Temperature:      settings.Temperature,
		MaxTokens:        settings.MaxTokens,
		TopP:             settings.TopP,
		FrequencyPenalty: settings.FrequencyPenalty,
		PresencePenalty:  settings.PresencePenalty,
		Tool:             settings.Tool,
		Personality:      settings.Personality,
		APIKeys:          credentials,
	}
}

// persistUserMessage stores the optimistic user message remotely and flips
// it to sent. The locally minted id rides along as a correlation key; the
// backend's storage id replaces it. A persistence failure queues the
// message for the reconciler and leaves it in sending; only the flush that
// actually lands it on the backend confirms it.
func (s *Service) persistUserMessage(ctx context.Context, sessionID string, userMsg domain.Message) domain.Message {
	stored, err := s.remote.CreateMessage(ctx, sessionID, &remote.CreateMessageRequest{
		Content:       userMsg.Content,
		Role:          string(domain.RoleUser),
		Attachments:   toRemoteAttachments(userMsg.Attachments),
		CorrelationID: userMsg.MessageID,
	})
	if err != nil {
		log.Printf("ERROR: failed to persist user message: %v", err)
		if qerr := s.cache.EnqueuePending(ctx, domain.PendingOperation{
			Kind:      domain.PendingMessage,
			LocalID:   userMsg.MessageID,
			SessionID: sessionID,
			CreatedAt: time.Now(),
		}); qerr != nil {
			log.Printf("ERROR: failed to queue pending message: %v", qerr)
		}
		return userMsg
	}

	sent := domain.DeliverySent
	s.state.PatchMessage(sessionID, userMsg.MessageID, domain.MessagePatch{
		MessageID: &stored.ID,
		Status:    &sent,
	})
	userMsg.MessageID = stored.ID
	userMsg.Status = sent
	return userMsg
}

// persistAssistantMessage stores the completion result remotely and appends
// it to the session with its usage metadata.
func (s *Service) persistAssistantMessage(ctx context.Context, sessionID string, resp *remote.ChatResponse, settings domain.ChatSettings) domain.Message {
	assistantMsg := domain.Message{
		MessageID: newLocalID(),
		SessionID: sessionID,
		Role:      domain.RoleAssistant,
		Content:   resp.Content,
		CreatedAt: time.Now(),
		Status:    domain.DeliverySent,
		Usage: &domain.Usage{
			Model:            resp.Model,
			Provider:         resp.Provider,
			TotalTokens:      resp.Usage.TotalTokens,
			ProcessingTimeMs: resp.Metadata.ProcessingTimeMs,
		},
	}
	if settings.Temperature != nil {
		assistantMsg.Usage.Temperature = *settings.Temperature
	}

	stored, err := s.remote.CreateMessage(ctx, sessionID, &remote.CreateMessageRequest{
		Content:       resp.Content,
		Role:          string(domain.RoleAssistant),
		CorrelationID: assistantMsg.MessageID,
	})
	if err != nil {
		log.Printf("ERROR: failed to persist assistant message: %v", err)
		if qerr := s.cache.EnqueuePending(ctx, domain.PendingOperation{
			Kind:      domain.PendingMessage,
			LocalID:   assistantMsg.MessageID,
			SessionID: sessionID,
			CreatedAt: time.Now(),
		}); qerr != nil {
			log.Printf("ERROR: failed to queue pending message: %v", qerr)
		}
	} else {
		assistantMsg.MessageID = stored.ID
	}

	s.state.AppendMessage(sessionID, assistantMsg)
	return assistantMsg
}

// failSend marks the optimistic user message as errored and records the
// failed configuration. The message stays visible for resend.
func (s *Service) failSend(ctx context.Context, sessionID string, userMsg domain.Message, settings domain.ChatSettings, cause error) {
	errored := domain.DeliveryError
	s.state.PatchMessage(sessionID, userMsg.MessageID, domain.MessagePatch{Status: &errored})

	if qerr := s.cache.EnqueuePending(ctx, domain.PendingOperation{
		Kind:      domain.PendingMessage,
		LocalID:   userMsg.MessageID,
		SessionID: sessionID,
		CreatedAt: time.Now(),
	}); qerr != nil {
		log.Printf("ERROR: failed to queue pending message: %v", qerr)
	}

	s.mirrorSession(ctx, sessionID)
	s.logConfiguration(ctx, settings, false, cause.Error())
}

// maybeAdoptTitle pushes a synthesized title to the backend the first time
// a session gains content.
func (s *Service) maybeAdoptTitle(ctx context.Context, sessionID, content string) {
	session := s.state.Session(sessionID)
	if session == nil {
		return
	}
	if session.Title != "" && session.Title != "New conversation" {
		return
	}

	title := domain.SynthesizeTitle(content)
	session.Title = title
	s.state.UpsertSession(*session)

	if domain.IsLocalID(sessionID) {
		return
	}
	if err := s.remote.UpdateConversationTitle(ctx, sessionID, title); err != nil {
		log.Printf("WARN: failed to update conversation title: %v", err)
	}
}

// mirrorSession writes the session list and one session's messages through
// to the offline cache.
func (s *Service) mirrorSession(ctx context.Context, sessionID string) {
	if err := s.cache.SaveConversations(ctx, s.state.Sessions()); err != nil {
		log.Printf("ERROR: failed to mirror conversations: %v", err)
	}
	if err := s.cache.SaveMessages(ctx, sessionID, s.state.Messages(sessionID)); err != nil {
		log.Printf("ERROR: failed to mirror messages for %s: %v", sessionID, err)
	}
}

// logConfiguration appends one send's resolved configuration to the
// analytics ring.
func (s *Service) logConfiguration(ctx context.Context, settings domain.ChatSettings, success bool, errText string) {
	entry := domain.ConfigLogEntry{
		Timestamp: time.Now(),
		Settings:  settings,
		Success:   success,
		Error:     errText,
	}
	if err := s.cache.AppendConfigLog(ctx, entry); err != nil {
		log.Printf("ERROR: failed to append configuration log: %v", err)
	}
}

// ConfigLogs returns the retained configuration log entries.
func (s *Service) ConfigLogs(ctx context.Context) ([]domain.ConfigLogEntry, error) {
	return s.cache.ConfigLogs(ctx)
}

func toRemoteAttachments(in []domain.Attachment) []remote.Attachment {
	if len(in) == 0 {
		return nil
	}
	out := make([]remote.Attachment, len(in))
	for i, a := range in {
		out[i] = remote.Attachment{Name: a.Name, URL: a.URL, Mime: a.Mime}
	}
	return out
}

// marshalSettings is used when creating conversations with engine settings.
func marshalSettings(settings domain.ChatSettings) json.RawMessage {
	payload, err := json.Marshal(settings)
	if err != nil {
		return nil
	}
	return payload
}
