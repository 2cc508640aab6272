package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nimbleworks/chatrelay/internal/domain"
	"github.com/nimbleworks/chatrelay/internal/remote"
)

// Backoff computes retry delays for sync attempts. Delay growth is
// exponential with no jitter; the attempt ceiling bounds total wait.
type Backoff struct {
	Base        time.Duration
	MaxAttempts int
}

// Delay returns the wait before the retry following the given zero-based
// attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	return b.Base * time.Duration(1<<attempt)
}

// StartInboundSync launches the periodic pull loop. The loop stops when ctx
// is torn down; no tick is scheduled past cancellation.
func (s *Service) StartInboundSync(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.after(s.syncInterval):
				s.SyncNow(ctx)
			}
		}
	}()
}

// Notify reacts to a connectivity or visibility event. Events arriving
// within the minimum gap of the last completed sync are dropped so a burst
// of callbacks cannot stampede the backend.
func (s *Service) Notify(ctx context.Context) {
	s.mu.Lock()
	tooSoon := s.now().Sub(s.lastSync) < s.syncMinGap
	s.mu.Unlock()
	if tooSoon {
		return
	}
	s.SyncNow(ctx)
}

// SyncNow runs one reconciliation pass with bounded retries. Concurrent
// calls collapse into the in-flight pass. All failures are handled
// internally; the terminal failure additionally fires the notification
// callback so a UI can surface it.
func (s *Service) SyncNow(ctx context.Context) error {
	s.mu.Lock()
	if s.syncing {
		s.mu.Unlock()
		return nil
	}
	s.syncing = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.syncing = false
		s.mu.Unlock()
	}()

	s.state.SetConnectionStatus(domain.ConnectionConnecting)

	var err error
	for attempt := 0; attempt < s.backoff.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.after(s.backoff.Delay(attempt - 1)):
			}
		}

		if err = s.syncOnce(ctx); err == nil {
			s.state.SetConnectionStatus(domain.ConnectionOnline)
			// Only a completed pass arms the minimum gap; a failed one
			// must not suppress the next connectivity event.
			s.mu.Lock()
			s.lastSync = s.now()
			s.mu.Unlock()
			return nil
		}
		log.Printf("WARN: sync attempt %d/%d failed: %v", attempt+1, s.backoff.MaxAttempts, err)
	}

	s.state.SetConnectionStatus(domain.ConnectionDisconnected)
	log.Printf("ERROR: sync gave up after %d attempts: %v", s.backoff.MaxAttempts, err)
	if s.onSyncFailure != nil {
		s.onSyncFailure(err)
	}
	return err
}

// syncOnce flushes the offline queue outbound, then pulls remote state
// inbound.
func (s *Service) syncOnce(ctx context.Context) error {
	if err := s.flushPending(ctx); err != nil {
		return fmt.Errorf("outbound flush failed: %w", err)
	}
	if err := s.pullRemote(ctx); err != nil {
		return fmt.Errorf("inbound pull failed: %w", err)
	}
	return nil
}

// flushPending replays queued offline creations against the backend in
// creation order, so a pending conversation lands before its messages.
func (s *Service) flushPending(ctx context.Context) error {
	ops, err := s.cache.PendingOperations(ctx)
	if err != nil {
		return err
	}

	for _, op := range ops {
		switch op.Kind {
		case domain.PendingConversation:
			if err := s.flushConversation(ctx, op); err != nil {
				return err
			}
		case domain.PendingMessage:
			if err := s.flushMessage(ctx, op); err != nil {
				return err
			}
		default:
			log.Printf("WARN: dropping pending operation of unknown kind %q", op.Kind)
			if err := s.cache.DropPending(ctx, op.LocalID); err != nil {
				return err
			}
		}
	}
	return nil
}

// flushConversation creates a locally minted conversation remotely and
// rewrites its id everywhere: session store, message cache, and the
// correlation table consulted by later queue entries.
func (s *Service) flushConversation(ctx context.Context, op domain.PendingOperation) error {
	session := s.state.Session(op.LocalID)
	if session == nil {
		session = s.findCachedSession(ctx, op.LocalID)
	}
	if session == nil {
		log.Printf("WARN: pending conversation %s no longer exists, dropping", op.LocalID)
		return s.cache.DropPending(ctx, op.LocalID)
	}

	conv, err := s.remote.CreateConversation(ctx, &remote.CreateConversationRequest{Title: session.Title})
	if err != nil {
		return err
	}

	if err := s.cache.MarkSynced(ctx, op.LocalID, conv.ID); err != nil {
		return err
	}
	s.state.RewriteSessionID(op.LocalID, conv.ID)
	if err := s.cache.RenameMessagesKey(ctx, op.LocalID, conv.ID); err != nil {
		return err
	}
	if err := s.cache.SaveConversations(ctx, s.state.Sessions()); err != nil {
		return err
	}

	log.Printf("INFO: synced conversation %s as %s", op.LocalID, conv.ID)
	return nil
}

// flushMessage persists a locally held message remotely, resolving its
// session through the correlation table in case the conversation itself was
// minted offline.
func (s *Service) flushMessage(ctx context.Context, op domain.PendingOperation) error {
	sessionID, err := s.cache.RemoteID(ctx, op.SessionID)
	if err != nil {
		return err
	}

	msg, ok := s.findMessage(ctx, sessionID, op.LocalID)
	if !ok {
		log.Printf("WARN: pending message %s no longer exists, dropping", op.LocalID)
		return s.cache.DropPending(ctx, op.LocalID)
	}

	stored, err := s.remote.CreateMessage(ctx, sessionID, &remote.CreateMessageRequest{
		Content:       msg.Content,
		Role:          string(msg.Role),
		Attachments:   toRemoteAttachments(msg.Attachments),
		CorrelationID: op.LocalID,
	})
	if err != nil {
		return err
	}

	if err := s.cache.MarkSynced(ctx, op.LocalID, stored.ID); err != nil {
		return err
	}

	sent := domain.DeliverySent
	s.state.PatchMessage(sessionID, op.LocalID, domain.MessagePatch{
		MessageID: &stored.ID,
		Status:    &sent,
	})
	if err := s.cache.SaveMessages(ctx, sessionID, s.state.Messages(sessionID)); err != nil {
		return err
	}

	log.Printf("INFO: synced message %s as %s", op.LocalID, stored.ID)
	return nil
}

// pullRemote refreshes the local view of remote state: the conversation
// list, merged with what is already held so locally minted sessions
// survive, and the user's shared variables.
func (s *Service) pullRemote(ctx context.Context) error {
	conversations, err := s.remote.ListConversations(ctx, 1, 100)
	if err != nil {
		return err
	}

	merged := s.mergeConversations(conversations)
	s.state.ReplaceSessions(merged)
	if err := s.cache.SaveConversations(ctx, merged); err != nil {
		return err
	}

	keys, err := s.remote.GetAPIKeys(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.storedKeys = keys
	s.mu.Unlock()

	return nil
}

// mergeConversations folds the remote listing into the local session list,
// deduplicating by id. Remote records win for shared ids; locally minted
// sessions that the backend has never seen are kept.
func (s *Service) mergeConversations(conversations []remote.Conversation) []domain.Session {
	merged := make([]domain.Session, 0, len(conversations))
	seen := make(map[string]bool, len(conversations))

	for _, conv := range conversations {
		merged = append(merged, domain.Session{
			SessionID: conv.ID,
			Title:     conv.Title,
			UserID:    s.userID,
			Messages:  []domain.Message{},
			CreatedAt: conv.CreatedAt,
			UpdatedAt: conv.UpdatedAt,
			Active:    conv.Active,
		})
		seen[conv.ID] = true
	}

	for _, session := range s.state.Sessions() {
		if !seen[session.SessionID] {
			merged = append(merged, session)
		}
	}
	return merged
}

func (s *Service) findCachedSession(ctx context.Context, sessionID string) *domain.Session {
	sessions, err := s.cache.ListConversations(ctx)
	if err != nil {
		return nil
	}
	for i := range sessions {
		if sessions[i].SessionID == sessionID {
			return &sessions[i]
		}
	}
	return nil
}

func (s *Service) findMessage(ctx context.Context, sessionID, messageID string) (domain.Message, bool) {
	for _, msg := range s.state.Messages(sessionID) {
		if msg.MessageID == messageID {
			return msg, true
		}
	}
	cached, err := s.cache.ListMessages(ctx, sessionID)
	if err != nil {
		return domain.Message{}, false
	}
	for _, msg := range cached {
		if msg.MessageID == messageID {
			return msg, true
		}
	}
	return domain.Message{}, false
}
