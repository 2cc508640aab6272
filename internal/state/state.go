// Package state holds the in-memory authoritative view of all sessions.
//
// The store is a small state machine: every mutation goes through one of a
// closed set of transitions, each of which is total. Transitions on unknown
// identifiers are silent no-ops, never errors, which lets optimistic UI
// updates race slower network confirmations without either side having to
// care who won.
package state

import (
	"sync"
	"time"

	"github.com/nimbleworks/chatrelay/internal/domain"
)

// Store is the single source of truth for session and message state. The
// offline cache is a secondary mirror reconciled by the sync service.
type Store struct {
	mu sync.Mutex

	sessions  []domain.Session
	currentID string

	loading    bool
	connection domain.ConnectionStatus
}

// NewStore creates an empty store: no sessions, no current session, and
// disconnected until the first successful probe.
func NewStore() *Store {
	return &Store{connection: domain.ConnectionDisconnected}
}

// =============================================================================
// Transitions
// =============================================================================

// UpsertSession inserts the session at the head of the list, or replaces it
// in place when the id already exists. Either way it becomes current.
func (s *Store) UpsertSession(session domain.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.sessions {
		if s.sessions[i].SessionID == session.SessionID {
			s.sessions[i] = session
			s.currentID = session.SessionID
			return
		}
	}

	s.sessions = append([]domain.Session{session}, s.sessions...)
	s.currentID = session.SessionID
}

// DeleteSession removes a session. If it was current, the new head (or
// nothing) becomes current. Unknown ids are ignored.
func (s *Store) DeleteSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.sessions {
		if s.sessions[i].SessionID == sessionID {
			s.sessions = append(s.sessions[:i], s.sessions[i+1:]...)
			break
		}
	}

	if s.currentID == sessionID {
		if len(s.sessions) > 0 {
			s.currentID = s.sessions[0].SessionID
		} else {
			s.currentID = ""
		}
	}
}

// AppendMessage appends to the named session's message list and bumps its
// update timestamp. No-op if the session is unknown.
func (s *Store) AppendMessage(sessionID string, message domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.sessions {
		if s.sessions[i].SessionID == sessionID {
			s.sessions[i].Messages = append(s.sessions[i].Messages, message)
			s.sessions[i].UpdatedAt = time.Now()
			return
		}
	}
}

// PatchMessage merges non-nil patch fields into the matching message.
// No-op if session or message is not found.
func (s *Store) PatchMessage(sessionID, messageID string, patch domain.MessagePatch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.sessions {
		if s.sessions[i].SessionID != sessionID {
			continue
		}
		for j := range s.sessions[i].Messages {
			if s.sessions[i].Messages[j].MessageID != messageID {
				continue
			}
			msg := &s.sessions[i].Messages[j]
			if patch.MessageID != nil {
				msg.MessageID = *patch.MessageID
			}
			if patch.Content != nil {
				msg.Content = *patch.Content
			}
			if patch.Status != nil {
				msg.Status = *patch.Status
			}
			if patch.Usage != nil {
				msg.Usage = patch.Usage
			}
			return
		}
		return
	}
}

// RewriteSessionID replaces a locally minted session id with the
// server-assigned one, in the session itself and in all of its messages.
// No-op if the old id is unknown.
func (s *Store) RewriteSessionID(oldID, newID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.sessions {
		if s.sessions[i].SessionID != oldID {
			continue
		}
		s.sessions[i].SessionID = newID
		for j := range s.sessions[i].Messages {
			s.sessions[i].Messages[j].SessionID = newID
		}
		if s.currentID == oldID {
			s.currentID = newID
		}
		return
	}
}

// ReplaceSessions swaps in a reconciled session list wholesale. The current
// pointer is kept when its session survives the swap and cleared otherwise.
// Message lists already held locally win over incoming empty ones, so a
// shallow remote listing cannot wipe loaded history.
func (s *Store) ReplaceSessions(sessions []domain.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range sessions {
		if len(sessions[i].Messages) > 0 {
			continue
		}
		for j := range s.sessions {
			if s.sessions[j].SessionID == sessions[i].SessionID {
				sessions[i].Messages = s.sessions[j].Messages
				break
			}
		}
	}

	s.sessions = sessions

	if s.currentID == "" {
		return
	}
	for i := range s.sessions {
		if s.sessions[i].SessionID == s.currentID {
			return
		}
	}
	s.currentID = ""
}

// SetLoading sets the global loading flag.
func (s *Store) SetLoading(loading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = loading
}

// SetConnectionStatus sets the global connection status.
func (s *Store) SetConnectionStatus(status domain.ConnectionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connection = status
}

// =============================================================================
// Reads
// =============================================================================

// CurrentSession returns a copy of the current session, or nil if none.
func (s *Store) CurrentSession() *domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.sessions {
		if s.sessions[i].SessionID == s.currentID {
			session := cloneSession(s.sessions[i])
			return &session
		}
	}
	return nil
}

// Session returns a copy of the named session, or nil if unknown.
func (s *Store) Session(sessionID string) *domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.sessions {
		if s.sessions[i].SessionID == sessionID {
			session := cloneSession(s.sessions[i])
			return &session
		}
	}
	return nil
}

// Sessions returns copies of all sessions, most recent first.
func (s *Store) Sessions() []domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Session, len(s.sessions))
	for i := range s.sessions {
		out[i] = cloneSession(s.sessions[i])
	}
	return out
}

// Messages returns copies of a session's messages in append order. Unknown
// sessions yield an empty list.
func (s *Store) Messages(sessionID string) []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.sessions {
		if s.sessions[i].SessionID == sessionID {
			out := make([]domain.Message, len(s.sessions[i].Messages))
			copy(out, s.sessions[i].Messages)
			return out
		}
	}
	return []domain.Message{}
}

// Loading returns the global loading flag.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// ConnectionStatus returns the global connection status.
func (s *Store) ConnectionStatus() domain.ConnectionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connection
}

func cloneSession(session domain.Session) domain.Session {
	clone := session
	clone.Messages = make([]domain.Message, len(session.Messages))
	copy(clone.Messages, session.Messages)
	return clone
}
