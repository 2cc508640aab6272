package state

import (
	"testing"
	"time"

	"github.com/nimbleworks/chatrelay/internal/domain"
)

func newSession(id string) domain.Session {
	now := time.Now()
	return domain.Session{
		SessionID: id,
		Title:     "New conversation",
		UserID:    "user_test",
		Messages:  []domain.Message{},
		CreatedAt: now,
		UpdatedAt: now,
		Active:    true,
	}
}

func TestNewStoreInitialState(t *testing.T) {
	store := NewStore()

	if store.CurrentSession() != nil {
		t.Fatalf("expected no current session")
	}
	if len(store.Sessions()) != 0 {
		t.Fatalf("expected empty session list")
	}
	if store.Loading() {
		t.Fatalf("expected loading false")
	}
	if store.ConnectionStatus() != domain.ConnectionDisconnected {
		t.Fatalf("expected disconnected, got %v", store.ConnectionStatus())
	}
}

func TestUpsertSessionInsertsAtHead(t *testing.T) {
	store := NewStore()
	store.UpsertSession(newSession("conv_a"))
	store.UpsertSession(newSession("conv_b"))

	sessions := store.Sessions()
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].SessionID != "conv_b" {
		t.Fatalf("expected conv_b at head, got %q", sessions[0].SessionID)
	}
	if current := store.CurrentSession(); current == nil || current.SessionID != "conv_b" {
		t.Fatalf("expected conv_b current, got %+v", current)
	}
}

func TestUpsertSessionReplacesInPlace(t *testing.T) {
	store := NewStore()
	store.UpsertSession(newSession("conv_a"))
	store.UpsertSession(newSession("conv_b"))

	updated := newSession("conv_a")
	updated.Title = "renamed"
	store.UpsertSession(updated)

	sessions := store.Sessions()
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	// Position preserved: conv_a stays second even though it is now current.
	if sessions[1].SessionID != "conv_a" || sessions[1].Title != "renamed" {
		t.Fatalf("expected conv_a replaced in place, got %+v", sessions[1])
	}
	if current := store.CurrentSession(); current == nil || current.SessionID != "conv_a" {
		t.Fatalf("expected conv_a current, got %+v", current)
	}
}

func TestDeleteSessionPromotesHead(t *testing.T) {
	store := NewStore()
	store.UpsertSession(newSession("conv_a"))
	store.UpsertSession(newSession("conv_b"))

	store.DeleteSession("conv_b")

	if current := store.CurrentSession(); current == nil || current.SessionID != "conv_a" {
		t.Fatalf("expected conv_a promoted to current, got %+v", current)
	}

	store.DeleteSession("conv_a")
	if store.CurrentSession() != nil {
		t.Fatalf("expected no current session after deleting everything")
	}
}

func TestDeleteSessionUnknownIsNoOp(t *testing.T) {
	store := NewStore()
	store.UpsertSession(newSession("conv_a"))

	store.DeleteSession("conv_missing")

	if len(store.Sessions()) != 1 {
		t.Fatalf("unknown delete should not change the list")
	}
}

func TestAppendMessageBumpsUpdatedAt(t *testing.T) {
	store := NewStore()
	session := newSession("conv_a")
	session.UpdatedAt = time.Now().Add(-time.Hour)
	store.UpsertSession(session)

	store.AppendMessage("conv_a", domain.Message{
		MessageID: "msg_1",
		SessionID: "conv_a",
		Role:      domain.RoleUser,
		Content:   "Hello",
		Status:    domain.DeliverySending,
	})

	got := store.Session("conv_a")
	if len(got.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(got.Messages))
	}
	if !got.UpdatedAt.After(session.UpdatedAt) {
		t.Fatalf("expected UpdatedAt to advance")
	}
}

func TestAppendMessageUnknownSessionIsNoOp(t *testing.T) {
	store := NewStore()
	store.AppendMessage("conv_missing", domain.Message{MessageID: "msg_1"})

	if len(store.Sessions()) != 0 {
		t.Fatalf("append to unknown session must not create one")
	}
}

func TestPatchMessageMergesFields(t *testing.T) {
	store := NewStore()
	store.UpsertSession(newSession("conv_a"))
	store.AppendMessage("conv_a", domain.Message{
		MessageID: "msg_1",
		SessionID: "conv_a",
		Role:      domain.RoleUser,
		Content:   "Hello",
		Status:    domain.DeliverySending,
	})

	status := domain.DeliverySent
	store.PatchMessage("conv_a", "msg_1", domain.MessagePatch{Status: &status})

	messages := store.Messages("conv_a")
	if messages[0].Status != domain.DeliverySent {
		t.Fatalf("expected status sent, got %v", messages[0].Status)
	}
	if messages[0].Content != "Hello" {
		t.Fatalf("untouched fields must survive the patch, got %q", messages[0].Content)
	}
}

func TestPatchMessageUnknownTargetsAreNoOps(t *testing.T) {
	store := NewStore()
	store.UpsertSession(newSession("conv_a"))

	status := domain.DeliveryError
	store.PatchMessage("conv_a", "msg_missing", domain.MessagePatch{Status: &status})
	store.PatchMessage("conv_missing", "msg_1", domain.MessagePatch{Status: &status})

	if len(store.Messages("conv_a")) != 0 {
		t.Fatalf("patch must never create messages")
	}
}

func TestRewriteSessionID(t *testing.T) {
	store := NewStore()
	store.UpsertSession(newSession("local_abc"))
	store.AppendMessage("local_abc", domain.Message{MessageID: "msg_1", SessionID: "local_abc"})

	store.RewriteSessionID("local_abc", "conv_server")

	if store.Session("local_abc") != nil {
		t.Fatalf("old id must be gone")
	}
	got := store.Session("conv_server")
	if got == nil {
		t.Fatalf("expected session under new id")
	}
	if got.Messages[0].SessionID != "conv_server" {
		t.Fatalf("message session id not rewritten: %+v", got.Messages[0])
	}
	if current := store.CurrentSession(); current == nil || current.SessionID != "conv_server" {
		t.Fatalf("current pointer not rewritten")
	}
}

func TestReadsReturnCopies(t *testing.T) {
	store := NewStore()
	store.UpsertSession(newSession("conv_a"))
	store.AppendMessage("conv_a", domain.Message{MessageID: "msg_1", Content: "original"})

	got := store.Session("conv_a")
	got.Messages[0].Content = "mutated"

	if store.Messages("conv_a")[0].Content != "original" {
		t.Fatalf("reads must not expose internal slices")
	}
}

func TestConnectionAndLoadingFlags(t *testing.T) {
	store := NewStore()

	store.SetLoading(true)
	if !store.Loading() {
		t.Fatalf("expected loading true")
	}

	store.SetConnectionStatus(domain.ConnectionOnline)
	if store.ConnectionStatus() != domain.ConnectionOnline {
		t.Fatalf("expected online")
	}
}
