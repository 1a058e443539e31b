package memstore

import (
	"context"
	"errors"
	"testing"

	"agentmesh/internal/persistence"
)

func TestStoreSessionLifecycle(t *testing.T) {
	store := New()
	ctx := context.Background()

	sess, err := store.EnsureSession(ctx, "session-1", "First")
	if err != nil {
		t.Fatalf("EnsureSession: %v", err)
	}
	if sess.ID != "session-1" {
		t.Fatalf("unexpected session id: %s", sess.ID)
	}

	again, err := store.EnsureSession(ctx, "session-1", "ignored name")
	if err != nil {
		t.Fatalf("EnsureSession idempotent: %v", err)
	}
	if again.Name != "First" {
		t.Fatalf("EnsureSession should not rename an existing session, got %q", again.Name)
	}

	renamed, err := store.RenameSession(ctx, "session-1", "Renamed")
	if err != nil {
		t.Fatalf("RenameSession: %v", err)
	}
	if renamed.Name != "Renamed" {
		t.Fatalf("expected renamed session, got %q", renamed.Name)
	}

	if err := store.DeleteSession(ctx, "session-1"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, err := store.GetSession(ctx, "session-1"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestStoreListSessionsOrderedByRecency(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, err := store.CreateSession(ctx, "first"); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	second, err := store.CreateSession(ctx, "second")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, err := store.RenameSession(ctx, second.ID, "second renamed"); err != nil {
		t.Fatalf("RenameSession: %v", err)
	}

	sessions, err := store.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].ID != second.ID {
		t.Fatalf("expected most recently updated session first, got %#v", sessions)
	}
}

func TestStoreMessagesAssignSequenceNumbers(t *testing.T) {
	store := New()
	ctx := context.Background()

	sess, err := store.CreateSession(ctx, "chat")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if err := store.AppendMessages(ctx, sess.ID, nil); err != nil {
		t.Fatalf("AppendMessages with empty slice: %v", err)
	}

	if err := store.AppendMessages(ctx, sess.ID, []persistence.Message{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi there"},
	}); err != nil {
		t.Fatalf("AppendMessages: %v", err)
	}

	msgs, err := store.ListMessages(ctx, sess.ID, 0)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].SequenceNumber != 1 || msgs[1].SequenceNumber != 2 {
		t.Fatalf("expected increasing sequence numbers, got %#v", msgs)
	}

	limited, err := store.ListMessages(ctx, sess.ID, 1)
	if err != nil {
		t.Fatalf("ListMessages limit: %v", err)
	}
	if len(limited) != 1 || limited[0].Role != "assistant" {
		t.Fatalf("expected only the latest message, got %#v", limited)
	}
}

func TestStoreAppendMessagesUnknownSession(t *testing.T) {
	store := New()
	err := store.AppendMessages(context.Background(), "missing", []persistence.Message{{Role: "user", Content: "hi"}})
	if !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStorePanesAndBlocks(t *testing.T) {
	store := New()
	ctx := context.Background()

	sess, err := store.CreateSession(ctx, "workspace")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	pane, err := store.CreatePane(ctx, sess.ID, "main", 0)
	if err != nil {
		t.Fatalf("CreatePane: %v", err)
	}

	panes, err := store.ListPanes(ctx, sess.ID)
	if err != nil {
		t.Fatalf("ListPanes: %v", err)
	}
	if len(panes) != 1 || panes[0].ID != pane.ID {
		t.Fatalf("unexpected panes: %#v", panes)
	}

	block, err := store.AppendBlock(ctx, persistence.Block{SessionID: sess.ID, PaneID: pane.ID, BlockType: "output", Content: "result"})
	if err != nil {
		t.Fatalf("AppendBlock: %v", err)
	}
	if block.SequenceNumber != 1 {
		t.Fatalf("expected first block to get sequence 1, got %d", block.SequenceNumber)
	}

	blocks, err := store.ListBlocks(ctx, sess.ID)
	if err != nil {
		t.Fatalf("ListBlocks: %v", err)
	}
	if len(blocks) != 1 || blocks[0].ID != block.ID {
		t.Fatalf("unexpected blocks: %#v", blocks)
	}
}

func TestStoreAttachmentsAndProgressEvents(t *testing.T) {
	store := New()
	ctx := context.Background()

	sess, err := store.CreateSession(ctx, "workspace")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	att, err := store.AddAttachment(ctx, persistence.Attachment{AttachmentType: "file", Filename: "log.txt"})
	if err != nil {
		t.Fatalf("AddAttachment: %v", err)
	}
	if att.ID == "" {
		t.Fatalf("expected generated attachment id")
	}

	if err := store.RecordProgressEvent(ctx, persistence.ProgressEvent{SessionID: sess.ID, EventType: "stop_reason", Description: "max_iterations"}); err != nil {
		t.Fatalf("RecordProgressEvent: %v", err)
	}

	events, err := store.ListProgressEvents(ctx, sess.ID)
	if err != nil {
		t.Fatalf("ListProgressEvents: %v", err)
	}
	if len(events) != 1 || events[0].EventType != "stop_reason" {
		t.Fatalf("unexpected progress events: %#v", events)
	}

	if err := store.RecordProgressEvent(ctx, persistence.ProgressEvent{SessionID: "missing"}); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown session, got %v", err)
	}
}
