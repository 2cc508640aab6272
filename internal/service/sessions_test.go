package service

import (
	"context"
	"testing"
	"time"

	"github.com/nimbleworks/chatrelay/internal/domain"
	"github.com/nimbleworks/chatrelay/internal/remote"
)

func TestOpenSessionMergesCacheOnlyMessages(t *testing.T) {
	svc, mock := newTestService(t)
	ctx := context.Background()

	conv, err := mock.CreateConversation(ctx, &remote.CreateConversationRequest{Title: "History"})
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	stored, err := mock.CreateMessage(ctx, conv.ID, &remote.CreateMessageRequest{
		Content: "persisted remotely",
		Role:    "user",
	})
	if err != nil {
		t.Fatalf("CreateMessage failed: %v", err)
	}

	// The cache holds a stale copy of the remote message plus one message
	// the backend never received.
	staleCopy := domain.Message{
		MessageID: stored.ID,
		SessionID: conv.ID,
		Role:      domain.RoleUser,
		Content:   "stale copy",
		CreatedAt: stored.CreatedAt,
		Status:    domain.DeliverySent,
	}
	cacheOnly := domain.Message{
		MessageID: "local_m1",
		SessionID: conv.ID,
		Role:      domain.RoleUser,
		Content:   "held locally",
		CreatedAt: stored.CreatedAt.Add(time.Minute),
		Status:    domain.DeliverySending,
	}
	if err := svc.cache.SaveMessages(ctx, conv.ID, []domain.Message{staleCopy, cacheOnly}); err != nil {
		t.Fatalf("SaveMessages failed: %v", err)
	}

	session, err := svc.OpenSession(ctx, conv.ID)
	if err != nil {
		t.Fatalf("OpenSession failed: %v", err)
	}
	if len(session.Messages) != 2 {
		t.Fatalf("expected the remote and cache-only messages, got %d: %+v", len(session.Messages), session.Messages)
	}
	if session.Messages[0].MessageID != stored.ID || session.Messages[0].Content != "persisted remotely" {
		t.Fatalf("remote record must win for shared ids, got %+v", session.Messages[0])
	}
	if session.Messages[1].MessageID != "local_m1" {
		t.Fatalf("cache-only message must survive in chronological position, got %+v", session.Messages[1])
	}

	// The merged view is mirrored back so an offline reopen sees it too.
	cached, err := svc.cache.ListMessages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(cached) != 2 {
		t.Fatalf("expected the merged view in the cache, got %d messages", len(cached))
	}
}

func TestOpenSessionFetchesUnknownRemoteConversation(t *testing.T) {
	svc, mock := newTestService(t)
	ctx := context.Background()

	conv, err := mock.CreateConversation(ctx, &remote.CreateConversationRequest{Title: "Elsewhere"})
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	// Neither the state store nor the cache has seen this id.
	session, err := svc.OpenSession(ctx, conv.ID)
	if err != nil {
		t.Fatalf("OpenSession failed: %v", err)
	}
	if session.SessionID != conv.ID || session.Title != "Elsewhere" {
		t.Fatalf("expected the backend conversation, got %+v", session)
	}

	current := svc.State().CurrentSession()
	if current == nil || current.SessionID != conv.ID {
		t.Fatalf("opened session must become current")
	}
}

func TestOpenSessionUnknownEverywhere(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.OpenSession(context.Background(), "conv_missing")
	if err == nil {
		t.Fatalf("expected an error for an unknown session")
	}
}
