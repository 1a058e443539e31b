// Package pgstore is a pgx/v5-backed implementation of persistence.Store
// over the six-table external schema (sessions, panes, messages, blocks,
// attachments, progress_events).
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"agentmesh/internal/persistence"
)

// Store is a Postgres-backed persistence.Store.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema issues the CREATE TABLE IF NOT EXISTS DDL for all six
// tables. Safe to call on every startup.
func (s *Store) InitSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS sessions (
    id UUID PRIMARY KEY,
    name TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    status TEXT NOT NULL DEFAULT 'active',
    metadata JSONB NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS panes (
    id UUID PRIMARY KEY,
    session_id UUID NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    position INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    active BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS messages (
    id UUID PRIMARY KEY,
    session_id UUID NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    pane_id UUID,
    message_type TEXT NOT NULL DEFAULT 'text',
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    sequence_number BIGINT NOT NULL,
    parent_id UUID,
    metadata JSONB NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS blocks (
    id UUID PRIMARY KEY,
    session_id UUID NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    pane_id UUID,
    block_type TEXT NOT NULL,
    title TEXT NOT NULL DEFAULT '',
    content TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    sequence_number BIGINT NOT NULL,
    bookmarked BOOLEAN NOT NULL DEFAULT FALSE,
    metadata JSONB NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS attachments (
    id UUID PRIMARY KEY,
    block_id UUID,
    message_id UUID,
    attachment_type TEXT NOT NULL,
    filename TEXT NOT NULL,
    content_type TEXT NOT NULL DEFAULT '',
    size_bytes BIGINT NOT NULL DEFAULT 0,
    storage_path TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    metadata JSONB NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS progress_events (
    id UUID PRIMARY KEY,
    session_id UUID NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    event_type TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    data JSONB NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS messages_session_seq_idx ON messages(session_id, sequence_number);
CREATE INDEX IF NOT EXISTS blocks_session_seq_idx ON blocks(session_id, sequence_number);
CREATE INDEX IF NOT EXISTS progress_events_session_created_idx ON progress_events(session_id, created_at);
`)
	return err
}

func marshalMap[M ~map[string]V, V any](m M) []byte {
	if m == nil {
		return []byte("{}")
	}
	b, err := json.Marshal(m)
	if err != nil {
		return []byte("{}")
	}
	return b
}

func unmarshalStringMap(raw []byte) map[string]string {
	out := map[string]string{}
	_ = json.Unmarshal(raw, &out)
	return out
}

func unmarshalAnyMap(raw []byte) map[string]any {
	out := map[string]any{}
	_ = json.Unmarshal(raw, &out)
	return out
}

func (s *Store) scanSession(row pgx.Row) (persistence.Session, error) {
	var sess persistence.Session
	var metadata []byte
	if err := row.Scan(&sess.ID, &sess.Name, &sess.CreatedAt, &sess.UpdatedAt, &sess.Status, &metadata); err != nil {
		return persistence.Session{}, err
	}
	sess.Metadata = unmarshalStringMap(metadata)
	return sess, nil
}

func (s *Store) EnsureSession(ctx context.Context, id, name string) (persistence.Session, error) {
	if strings.TrimSpace(id) == "" {
		id = uuid.NewString()
	}
	if strings.TrimSpace(name) == "" {
		name = "New Session"
	}
	row := s.pool.QueryRow(ctx, `
WITH ins AS (
  INSERT INTO sessions (id, name)
  VALUES ($1, $2)
  ON CONFLICT (id) DO NOTHING
  RETURNING id, name, created_at, updated_at, status, metadata
)
SELECT id, name, created_at, updated_at, status, metadata FROM ins
UNION ALL
SELECT id, name, created_at, updated_at, status, metadata FROM sessions WHERE id = $1
LIMIT 1`, id, name)
	return s.scanSession(row)
}

func (s *Store) ListSessions(ctx context.Context) ([]persistence.Session, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, name, created_at, updated_at, status, metadata
FROM sessions
ORDER BY updated_at DESC, created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]persistence.Session, 0)
	for rows.Next() {
		sess, err := s.scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *Store) GetSession(ctx context.Context, id string) (persistence.Session, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, name, created_at, updated_at, status, metadata
FROM sessions WHERE id = $1`, id)
	sess, err := s.scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return persistence.Session{}, persistence.ErrNotFound
	}
	return sess, err
}

func (s *Store) CreateSession(ctx context.Context, name string) (persistence.Session, error) {
	if strings.TrimSpace(name) == "" {
		name = "New Session"
	}
	row := s.pool.QueryRow(ctx, `
INSERT INTO sessions (id, name)
VALUES ($1, $2)
RETURNING id, name, created_at, updated_at, status, metadata`, uuid.New(), name)
	return s.scanSession(row)
}

func (s *Store) RenameSession(ctx context.Context, id, name string) (persistence.Session, error) {
	row := s.pool.QueryRow(ctx, `
UPDATE sessions
SET name = $2, updated_at = NOW()
WHERE id = $1
RETURNING id, name, created_at, updated_at, status, metadata`, id, name)
	sess, err := s.scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return persistence.Session{}, persistence.ErrNotFound
	}
	return sess, err
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	cmd, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func (s *Store) CreatePane(ctx context.Context, sessionID, name string, position int) (persistence.Pane, error) {
	row := s.pool.QueryRow(ctx, `
INSERT INTO panes (id, session_id, name, position)
VALUES ($1, $2, $3, $4)
RETURNING id, session_id, name, position, created_at, updated_at, active`,
		uuid.New(), sessionID, name, position)
	var pane persistence.Pane
	err := row.Scan(&pane.ID, &pane.SessionID, &pane.Name, &pane.Position, &pane.CreatedAt, &pane.UpdatedAt, &pane.Active)
	if err != nil {
		var pgErr interface{ SQLState() string }
		if errors.As(err, &pgErr) && pgErr.SQLState() == "23503" {
			return persistence.Pane{}, persistence.ErrNotFound
		}
		return persistence.Pane{}, err
	}
	return pane, nil
}

func (s *Store) ListPanes(ctx context.Context, sessionID string) ([]persistence.Pane, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, session_id, name, position, created_at, updated_at, active
FROM panes WHERE session_id = $1
ORDER BY position ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]persistence.Pane, 0)
	for rows.Next() {
		var pane persistence.Pane
		if err := rows.Scan(&pane.ID, &pane.SessionID, &pane.Name, &pane.Position, &pane.CreatedAt, &pane.UpdatedAt, &pane.Active); err != nil {
			return nil, err
		}
		out = append(out, pane)
	}
	return out, rows.Err()
}

func (s *Store) AppendMessages(ctx context.Context, sessionID string, messages []persistence.Message) error {
	if len(messages) == 0 {
		return nil
	}
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, m := range messages {
		id := m.ID
		if id == "" {
			id = uuid.NewString()
		}
		createdAt := m.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		var seq int64
		row := tx.QueryRow(ctx, `
INSERT INTO messages (id, session_id, pane_id, message_type, role, content, created_at, sequence_number, parent_id, metadata)
VALUES ($1, $2, NULLIF($3,'')::uuid, $4, $5, $6, $7,
    COALESCE((SELECT MAX(sequence_number) FROM messages WHERE session_id = $2), 0) + 1,
    NULLIF($8,'')::uuid, $9)
RETURNING sequence_number`,
			id, sessionID, m.PaneID, orDefault(m.MessageType, "text"), m.Role, m.Content, createdAt, m.ParentID, marshalMap(m.Metadata))
		if err := row.Scan(&seq); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(ctx, `UPDATE sessions SET updated_at = NOW() WHERE id = $1`, sessionID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

func (s *Store) ListMessages(ctx context.Context, sessionID string, limit int) ([]persistence.Message, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	query := `
SELECT id, session_id, COALESCE(pane_id::text,''), message_type, role, content, created_at, sequence_number, COALESCE(parent_id::text,''), metadata
FROM messages
WHERE session_id = $1
ORDER BY sequence_number ASC`
	args := []any{sessionID}
	if limit > 0 {
		query = `
SELECT id, session_id, pane_id, message_type, role, content, created_at, sequence_number, parent_id, metadata FROM (
    SELECT id, session_id, COALESCE(pane_id::text,'') AS pane_id, message_type, role, content, created_at, sequence_number, COALESCE(parent_id::text,'') AS parent_id, metadata
    FROM messages
    WHERE session_id = $1
    ORDER BY sequence_number DESC
    LIMIT $2
) sub
ORDER BY sequence_number ASC`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]persistence.Message, 0)
	for rows.Next() {
		var m persistence.Message
		var metadata []byte
		if err := rows.Scan(&m.ID, &m.SessionID, &m.PaneID, &m.MessageType, &m.Role, &m.Content, &m.CreatedAt, &m.SequenceNumber, &m.ParentID, &metadata); err != nil {
			return nil, err
		}
		m.Metadata = unmarshalStringMap(metadata)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) AppendBlock(ctx context.Context, block persistence.Block) (persistence.Block, error) {
	if _, err := s.GetSession(ctx, block.SessionID); err != nil {
		return persistence.Block{}, err
	}
	id := block.ID
	if id == "" {
		id = uuid.NewString()
	}
	row := s.pool.QueryRow(ctx, `
INSERT INTO blocks (id, session_id, pane_id, block_type, title, content, sequence_number, bookmarked, metadata)
VALUES ($1, $2, NULLIF($3,'')::uuid, $4, $5, $6,
    COALESCE((SELECT MAX(sequence_number) FROM blocks WHERE session_id = $2), 0) + 1,
    $7, $8)
RETURNING id, session_id, COALESCE(pane_id::text,''), block_type, title, content, created_at, updated_at, sequence_number, bookmarked, metadata`,
		id, block.SessionID, block.PaneID, block.BlockType, block.Title, block.Content, block.Bookmarked, marshalMap(block.Metadata))

	var out persistence.Block
	var metadata []byte
	err := row.Scan(&out.ID, &out.SessionID, &out.PaneID, &out.BlockType, &out.Title, &out.Content, &out.CreatedAt, &out.UpdatedAt, &out.SequenceNumber, &out.Bookmarked, &metadata)
	if err != nil {
		return persistence.Block{}, err
	}
	out.Metadata = unmarshalStringMap(metadata)
	return out, nil
}

func (s *Store) ListBlocks(ctx context.Context, sessionID string) ([]persistence.Block, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
SELECT id, session_id, COALESCE(pane_id::text,''), block_type, title, content, created_at, updated_at, sequence_number, bookmarked, metadata
FROM blocks WHERE session_id = $1
ORDER BY sequence_number ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]persistence.Block, 0)
	for rows.Next() {
		var b persistence.Block
		var metadata []byte
		if err := rows.Scan(&b.ID, &b.SessionID, &b.PaneID, &b.BlockType, &b.Title, &b.Content, &b.CreatedAt, &b.UpdatedAt, &b.SequenceNumber, &b.Bookmarked, &metadata); err != nil {
			return nil, err
		}
		b.Metadata = unmarshalStringMap(metadata)
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) AddAttachment(ctx context.Context, attachment persistence.Attachment) (persistence.Attachment, error) {
	id := attachment.ID
	if id == "" {
		id = uuid.NewString()
	}
	row := s.pool.QueryRow(ctx, `
INSERT INTO attachments (id, block_id, message_id, attachment_type, filename, content_type, size_bytes, storage_path, metadata)
VALUES ($1, NULLIF($2,'')::uuid, NULLIF($3,'')::uuid, $4, $5, $6, $7, $8, $9)
RETURNING id, COALESCE(block_id::text,''), COALESCE(message_id::text,''), attachment_type, filename, content_type, size_bytes, storage_path, created_at, metadata`,
		id, attachment.BlockID, attachment.MessageID, attachment.AttachmentType, attachment.Filename, attachment.ContentType, attachment.SizeBytes, attachment.StoragePath, marshalMap(attachment.Metadata))

	var out persistence.Attachment
	var metadata []byte
	err := row.Scan(&out.ID, &out.BlockID, &out.MessageID, &out.AttachmentType, &out.Filename, &out.ContentType, &out.SizeBytes, &out.StoragePath, &out.CreatedAt, &metadata)
	if err != nil {
		return persistence.Attachment{}, err
	}
	out.Metadata = unmarshalStringMap(metadata)
	return out, nil
}

func (s *Store) RecordProgressEvent(ctx context.Context, event persistence.ProgressEvent) error {
	id := event.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO progress_events (id, session_id, event_type, description, data)
VALUES ($1, $2, $3, $4, $5)`, id, event.SessionID, event.EventType, event.Description, marshalMap(event.Data))
	if err != nil {
		var pgErr interface{ SQLState() string }
		if errors.As(err, &pgErr) && pgErr.SQLState() == "23503" {
			return persistence.ErrNotFound
		}
	}
	return err
}

func (s *Store) ListProgressEvents(ctx context.Context, sessionID string) ([]persistence.ProgressEvent, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
SELECT id, session_id, event_type, description, created_at, data
FROM progress_events WHERE session_id = $1
ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]persistence.ProgressEvent, 0)
	for rows.Next() {
		var e persistence.ProgressEvent
		var data []byte
		if err := rows.Scan(&e.ID, &e.SessionID, &e.EventType, &e.Description, &e.CreatedAt, &data); err != nil {
			return nil, err
		}
		e.Data = unmarshalAnyMap(data)
		out = append(out, e)
	}
	return out, rows.Err()
}

var _ persistence.Store = (*Store)(nil)
