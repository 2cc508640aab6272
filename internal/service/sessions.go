package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/nimbleworks/chatrelay/internal/domain"
	"github.com/nimbleworks/chatrelay/internal/remote"
)

// Hydrate loads the session list at startup: the offline cache first, so
// the service is usable immediately, then a sync pass to fold in remote
// state when the backend is reachable.
func (s *Service) Hydrate(ctx context.Context) {
	cached, err := s.cache.ListConversations(ctx)
	if err != nil {
		log.Printf("ERROR: failed to read cached conversations: %v", err)
		cached = []domain.Session{}
	}
	s.state.ReplaceSessions(cached)
	log.Printf("INFO: hydrated %d cached conversations", len(cached))

	go s.SyncNow(ctx)
}

// ListSessions returns all known sessions, most recent first.
func (s *Service) ListSessions(ctx context.Context) []domain.Session {
	return s.state.Sessions()
}

// OpenSession makes a session current and loads its messages, preferring
// the backend and falling back to the cached copy offline. Sessions the
// backend knows about but this process has never held are fetched on
// demand.
func (s *Service) OpenSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	session := s.state.Session(sessionID)
	if session == nil {
		session = s.findCachedSession(ctx, sessionID)
	}
	if session == nil && !domain.IsLocalID(sessionID) {
		session = s.fetchRemoteSession(ctx, sessionID)
	}
	if session == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	if len(session.Messages) == 0 {
		session.Messages = s.loadMessages(ctx, sessionID)
	}

	s.state.UpsertSession(*session)
	return session, nil
}

// fetchRemoteSession looks a conversation up on the backend directly, for
// ids that arrive before any listing has pulled them in.
func (s *Service) fetchRemoteSession(ctx context.Context, sessionID string) *domain.Session {
	conv, err := s.remote.GetConversation(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, remote.ErrNotFound) {
			log.Printf("WARN: failed to fetch conversation %s: %v", sessionID, err)
		}
		return nil
	}
	return &domain.Session{
		SessionID: conv.ID,
		Title:     conv.Title,
		UserID:    s.userID,
		Messages:  []domain.Message{},
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
		Active:    conv.Active,
	}
}

// loadMessages assembles a session's messages from the backend and the
// offline cache. Both sources contribute: a message held only in the cache
// (a persist that never landed) must stay visible alongside the remote
// listing until the reconciler flushes it. Locally minted sessions are
// never looked up remotely.
func (s *Service) loadMessages(ctx context.Context, sessionID string) []domain.Message {
	cached, err := s.cache.ListMessages(ctx, sessionID)
	if err != nil {
		log.Printf("ERROR: failed to read cached messages for %s: %v", sessionID, err)
		cached = []domain.Message{}
	}

	if domain.IsLocalID(sessionID) {
		return cached
	}

	stored, err := s.remote.ListMessages(ctx, sessionID, 1, 200)
	if err != nil {
		log.Printf("WARN: failed to load remote messages for %s, using cache: %v", sessionID, err)
		return cached
	}

	remoteMsgs := make([]domain.Message, len(stored))
	for i, m := range stored {
		remoteMsgs[i] = fromStoredMessage(m)
	}

	merged := mergeMessages(remoteMsgs, cached)
	if err := s.cache.SaveMessages(ctx, sessionID, merged); err != nil {
		log.Printf("ERROR: failed to mirror messages for %s: %v", sessionID, err)
	}
	return merged
}

// mergeMessages folds cache-only messages into the remote listing,
// deduplicating by message id. Remote records win for shared ids; the
// result is chronological.
func mergeMessages(remoteMsgs, cached []domain.Message) []domain.Message {
	merged := make([]domain.Message, 0, len(remoteMsgs)+len(cached))
	seen := make(map[string]bool, len(remoteMsgs))
	for _, msg := range remoteMsgs {
		merged = append(merged, msg)
		seen[msg.MessageID] = true
	}
	for _, msg := range cached {
		if !seen[msg.MessageID] {
			merged = append(merged, msg)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedAt.Before(merged[j].CreatedAt)
	})
	return merged
}

// DeleteSession removes a session everywhere: the backend when it exists
// there, the session store, the offline cache, and the pending queue.
func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	if !domain.IsLocalID(sessionID) {
		if err := s.remote.DeleteConversation(ctx, sessionID); err != nil {
			if !errors.Is(err, remote.ErrNotFound) {
				return fmt.Errorf("remote delete failed: %w", err)
			}
		}
	}

	s.state.DeleteSession(sessionID)
	if err := s.cache.DeleteConversation(ctx, sessionID); err != nil {
		log.Printf("ERROR: failed to remove cached conversation %s: %v", sessionID, err)
	}
	if err := s.cache.DropPending(ctx, sessionID); err != nil {
		log.Printf("ERROR: failed to drop pending operation for %s: %v", sessionID, err)
	}
	return nil
}

// RenameSession updates a session's title locally and, for sessions the
// backend knows about, remotely.
func (s *Service) RenameSession(ctx context.Context, sessionID, title string) error {
	session := s.state.Session(sessionID)
	if session == nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	if !domain.IsLocalID(sessionID) {
		if err := s.remote.UpdateConversationTitle(ctx, sessionID, title); err != nil {
			return fmt.Errorf("remote rename failed: %w", err)
		}
	}

	session.Title = title
	session.UpdatedAt = time.Now()
	s.state.UpsertSession(*session)
	s.mirrorSession(ctx, sessionID)
	return nil
}

func fromStoredMessage(m remote.StoredMessage) domain.Message {
	msg := domain.Message{
		MessageID: m.ID,
		SessionID: m.ConversationID,
		Role:      domain.Role(m.Role),
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
		Status:    domain.DeliverySent,
	}
	for _, a := range m.Attachments {
		msg.Attachments = append(msg.Attachments, domain.Attachment{Name: a.Name, URL: a.URL, Mime: a.Mime})
	}
	if m.TotalTokens > 0 || m.ProcessingTimeMs > 0 {
		msg.Usage = &domain.Usage{
			TotalTokens:      m.TotalTokens,
			ProcessingTimeMs: m.ProcessingTimeMs,
		}
	}
	return msg
}
