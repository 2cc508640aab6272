package cache

import (
	"context"
	"testing"
	"time"

	"github.com/nimbleworks/chatrelay/internal/domain"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to open cache: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestConversationsRoundTrip(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	sessions, err := c.ListConversations(ctx)
	if err != nil {
		t.Fatalf("ListConversations failed: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("expected empty cache, got %d sessions", len(sessions))
	}

	want := []domain.Session{
		{SessionID: "conv_1", Title: "First", UserID: "user_1"},
		{SessionID: "conv_2", Title: "Second", UserID: "user_1"},
	}
	if err := c.SaveConversations(ctx, want); err != nil {
		t.Fatalf("SaveConversations failed: %v", err)
	}

	got, err := c.ListConversations(ctx)
	if err != nil {
		t.Fatalf("ListConversations failed: %v", err)
	}
	if len(got) != 2 || got[0].SessionID != "conv_1" || got[1].Title != "Second" {
		t.Fatalf("unexpected sessions: %+v", got)
	}
}

func TestMessagesKeyedPerSession(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	if err := c.SaveMessages(ctx, "conv_1", []domain.Message{
		{MessageID: "msg_1", SessionID: "conv_1", Content: "hello"},
	}); err != nil {
		t.Fatalf("SaveMessages failed: %v", err)
	}

	other, err := c.ListMessages(ctx, "conv_2")
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("messages leaked across sessions: %+v", other)
	}

	got, err := c.ListMessages(ctx, "conv_1")
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(got) != 1 || got[0].Content != "hello" {
		t.Fatalf("unexpected messages: %+v", got)
	}
}

func TestCorruptPayloadDegradesToEmpty(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	if err := c.put(ctx, keyConversations, "{not json"); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if err := c.put(ctx, messagesKey("conv_1"), "[broken"); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	sessions, err := c.ListConversations(ctx)
	if err != nil {
		t.Fatalf("corrupt payload must not surface an error: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("expected empty sessions, got %+v", sessions)
	}

	messages, err := c.ListMessages(ctx, "conv_1")
	if err != nil {
		t.Fatalf("corrupt payload must not surface an error: %v", err)
	}
	if len(messages) != 0 {
		t.Fatalf("expected empty messages, got %+v", messages)
	}
}

func TestConfigLogRetention(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	for i := 0; i < maxConfigLogs+10; i++ {
		entry := domain.ConfigLogEntry{
			Timestamp: time.Now(),
			Settings:  domain.ChatSettings{Model: "chatgpt-4o"},
			Success:   i%2 == 0,
		}
		if err := c.AppendConfigLog(ctx, entry); err != nil {
			t.Fatalf("AppendConfigLog failed: %v", err)
		}
	}

	logs, err := c.ConfigLogs(ctx)
	if err != nil {
		t.Fatalf("ConfigLogs failed: %v", err)
	}
	if len(logs) != maxConfigLogs {
		t.Fatalf("expected %d retained entries, got %d", maxConfigLogs, len(logs))
	}
}

func TestPendingOperationsOrderedByCreation(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	base := time.Now()
	ops := []domain.PendingOperation{
		{Kind: domain.PendingMessage, LocalID: "local_m1", SessionID: "local_c1", CreatedAt: base.Add(time.Second)},
		{Kind: domain.PendingConversation, LocalID: "local_c1", CreatedAt: base},
	}
	for _, op := range ops {
		if err := c.EnqueuePending(ctx, op); err != nil {
			t.Fatalf("EnqueuePending failed: %v", err)
		}
	}

	got, err := c.PendingOperations(ctx)
	if err != nil {
		t.Fatalf("PendingOperations failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 pending ops, got %d", len(got))
	}
	if got[0].LocalID != "local_c1" || got[1].LocalID != "local_m1" {
		t.Fatalf("conversation must flush before its messages: %+v", got)
	}
}

func TestMarkSyncedRecordsCorrelation(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	op := domain.PendingOperation{Kind: domain.PendingConversation, LocalID: "local_c1"}
	if err := c.EnqueuePending(ctx, op); err != nil {
		t.Fatalf("EnqueuePending failed: %v", err)
	}
	if err := c.MarkSynced(ctx, "local_c1", "conv_remote"); err != nil {
		t.Fatalf("MarkSynced failed: %v", err)
	}

	pending, err := c.PendingOperations(ctx)
	if err != nil {
		t.Fatalf("PendingOperations failed: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("synced op must leave the queue: %+v", pending)
	}

	remoteID, err := c.RemoteID(ctx, "local_c1")
	if err != nil {
		t.Fatalf("RemoteID failed: %v", err)
	}
	if remoteID != "conv_remote" {
		t.Fatalf("expected conv_remote, got %q", remoteID)
	}

	// Unknown ids resolve to themselves.
	same, err := c.RemoteID(ctx, "conv_already_remote")
	if err != nil {
		t.Fatalf("RemoteID failed: %v", err)
	}
	if same != "conv_already_remote" {
		t.Fatalf("expected passthrough, got %q", same)
	}
}

func TestDeleteConversationRemovesMessages(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	if err := c.SaveConversations(ctx, []domain.Session{{SessionID: "conv_1"}, {SessionID: "conv_2"}}); err != nil {
		t.Fatalf("SaveConversations failed: %v", err)
	}
	if err := c.SaveMessages(ctx, "conv_1", []domain.Message{{MessageID: "msg_1"}}); err != nil {
		t.Fatalf("SaveMessages failed: %v", err)
	}

	if err := c.DeleteConversation(ctx, "conv_1"); err != nil {
		t.Fatalf("DeleteConversation failed: %v", err)
	}

	sessions, _ := c.ListConversations(ctx)
	if len(sessions) != 1 || sessions[0].SessionID != "conv_2" {
		t.Fatalf("unexpected sessions after delete: %+v", sessions)
	}
	messages, _ := c.ListMessages(ctx, "conv_1")
	if len(messages) != 0 {
		t.Fatalf("messages must be dropped with their session: %+v", messages)
	}
}

func TestRenameMessagesKey(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	if err := c.SaveMessages(ctx, "local_c1", []domain.Message{
		{MessageID: "msg_1", SessionID: "local_c1", Content: "queued offline"},
	}); err != nil {
		t.Fatalf("SaveMessages failed: %v", err)
	}

	if err := c.RenameMessagesKey(ctx, "local_c1", "conv_remote"); err != nil {
		t.Fatalf("RenameMessagesKey failed: %v", err)
	}

	old, _ := c.ListMessages(ctx, "local_c1")
	if len(old) != 0 {
		t.Fatalf("old key must be gone: %+v", old)
	}
	moved, _ := c.ListMessages(ctx, "conv_remote")
	if len(moved) != 1 || moved[0].SessionID != "conv_remote" {
		t.Fatalf("messages not rewritten under new key: %+v", moved)
	}
}
