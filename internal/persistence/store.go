// Package persistence defines the narrow storage contract the runtime
// consumes: sessions, panes, messages, blocks, attachments, and a
// progress-event audit trail. The schema and the Store interface mirror
// the out-of-scope external persistence layer exactly; only the
// implementations (memstore, pgstore) differ.
package persistence

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup by ID matches no row.
var ErrNotFound = errors.New("persistence: not found")

// ErrForbidden is returned when a caller's identity does not own the
// resource it is trying to read or mutate.
var ErrForbidden = errors.New("persistence: forbidden")

// Session is a row in the sessions table.
type Session struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
	Status    string
	Metadata  map[string]string
}

// Pane is a row in the panes table.
type Pane struct {
	ID        string
	SessionID string
	Name      string
	Position  int
	CreatedAt time.Time
	UpdatedAt time.Time
	Active    bool
}

// Message is a row in the messages table.
type Message struct {
	ID             string
	SessionID      string
	PaneID         string
	MessageType    string
	Role           string
	Content        string
	CreatedAt      time.Time
	SequenceNumber int64
	ParentID       string
	Metadata       map[string]string
}

// Block is a row in the blocks table.
type Block struct {
	ID             string
	SessionID      string
	PaneID         string
	BlockType      string
	Title          string
	Content        string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	SequenceNumber int64
	Bookmarked     bool
	Metadata       map[string]string
}

// Attachment is a row in the attachments table.
type Attachment struct {
	ID             string
	BlockID        string
	MessageID      string
	AttachmentType string
	Filename       string
	ContentType    string
	SizeBytes      int64
	StoragePath    string
	CreatedAt      time.Time
	Metadata       map[string]string
}

// ProgressEvent is a row in the progress_events table: an audit trail
// entry recorded through Store.RecordProgressEvent. The orchestrator does
// not write these itself.
type ProgressEvent struct {
	ID          string
	SessionID   string
	EventType   string
	Description string
	CreatedAt   time.Time
	Data        map[string]any
}

// Store is the full persistence contract over the six-table schema.
// Identifiers are stringified UUIDs; timestamps are UTC.
type Store interface {
	EnsureSession(ctx context.Context, id, name string) (Session, error)
	ListSessions(ctx context.Context) ([]Session, error)
	GetSession(ctx context.Context, id string) (Session, error)
	CreateSession(ctx context.Context, name string) (Session, error)
	RenameSession(ctx context.Context, id, name string) (Session, error)
	DeleteSession(ctx context.Context, id string) error

	CreatePane(ctx context.Context, sessionID, name string, position int) (Pane, error)
	ListPanes(ctx context.Context, sessionID string) ([]Pane, error)

	AppendMessages(ctx context.Context, sessionID string, messages []Message) error
	ListMessages(ctx context.Context, sessionID string, limit int) ([]Message, error)

	AppendBlock(ctx context.Context, block Block) (Block, error)
	ListBlocks(ctx context.Context, sessionID string) ([]Block, error)

	AddAttachment(ctx context.Context, attachment Attachment) (Attachment, error)

	RecordProgressEvent(ctx context.Context, event ProgressEvent) error
	ListProgressEvents(ctx context.Context, sessionID string) ([]ProgressEvent, error)
}
