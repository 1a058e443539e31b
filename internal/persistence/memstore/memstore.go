// Package memstore is an in-process implementation of persistence.Store,
// suitable for tests and single-process demo runs.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"agentmesh/internal/persistence"
)

// Store keeps the six-table schema as in-memory maps guarded by a single
// mutex. It is not durable across process restarts.
type Store struct {
	mu sync.RWMutex

	sessions       map[string]persistence.Session
	panes          map[string][]persistence.Pane
	messages       map[string][]persistence.Message
	blocks         map[string][]persistence.Block
	attachments    map[string]persistence.Attachment
	progressEvents map[string][]persistence.ProgressEvent

	messageSeq map[string]int64
	blockSeq   map[string]int64
}

// New returns an empty in-memory Store.
func New() *Store {
	return &Store{
		sessions:       make(map[string]persistence.Session),
		panes:          make(map[string][]persistence.Pane),
		messages:       make(map[string][]persistence.Message),
		blocks:         make(map[string][]persistence.Block),
		attachments:    make(map[string]persistence.Attachment),
		progressEvents: make(map[string][]persistence.ProgressEvent),
		messageSeq:     make(map[string]int64),
		blockSeq:       make(map[string]int64),
	}
}

func (s *Store) EnsureSession(_ context.Context, id, name string) (persistence.Session, error) {
	if strings.TrimSpace(id) == "" {
		id = uuid.NewString()
	}
	if strings.TrimSpace(name) == "" {
		name = "New Session"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		return sess, nil
	}
	now := time.Now().UTC()
	sess := persistence.Session{ID: id, Name: name, CreatedAt: now, UpdatedAt: now, Status: "active"}
	s.sessions[id] = sess
	return sess, nil
}

func (s *Store) ListSessions(_ context.Context) ([]persistence.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]persistence.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *Store) GetSession(_ context.Context, id string) (persistence.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return persistence.Session{}, persistence.ErrNotFound
	}
	return sess, nil
}

func (s *Store) CreateSession(_ context.Context, name string) (persistence.Session, error) {
	if strings.TrimSpace(name) == "" {
		name = "New Session"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	now := time.Now().UTC()
	sess := persistence.Session{ID: id, Name: name, CreatedAt: now, UpdatedAt: now, Status: "active"}
	s.sessions[id] = sess
	return sess, nil
}

func (s *Store) RenameSession(_ context.Context, id, name string) (persistence.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return persistence.Session{}, persistence.ErrNotFound
	}
	sess.Name = name
	sess.UpdatedAt = time.Now().UTC()
	s.sessions[id] = sess
	return sess, nil
}

func (s *Store) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(s.sessions, id)
	delete(s.panes, id)
	delete(s.messages, id)
	delete(s.blocks, id)
	delete(s.progressEvents, id)
	return nil
}

func (s *Store) CreatePane(_ context.Context, sessionID, name string, position int) (persistence.Pane, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return persistence.Pane{}, persistence.ErrNotFound
	}
	now := time.Now().UTC()
	pane := persistence.Pane{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Name:      name,
		Position:  position,
		CreatedAt: now,
		UpdatedAt: now,
		Active:    true,
	}
	s.panes[sessionID] = append(s.panes[sessionID], pane)
	return pane, nil
}

func (s *Store) ListPanes(_ context.Context, sessionID string) ([]persistence.Pane, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return nil, persistence.ErrNotFound
	}
	panes := s.panes[sessionID]
	out := make([]persistence.Pane, len(panes))
	copy(out, panes)
	return out, nil
}

func (s *Store) AppendMessages(_ context.Context, sessionID string, messages []persistence.Message) error {
	if len(messages) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return persistence.ErrNotFound
	}
	for i := range messages {
		if messages[i].ID == "" {
			messages[i].ID = uuid.NewString()
		}
		messages[i].SessionID = sessionID
		if messages[i].CreatedAt.IsZero() {
			messages[i].CreatedAt = time.Now().UTC()
		}
		s.messageSeq[sessionID]++
		messages[i].SequenceNumber = s.messageSeq[sessionID]
	}
	s.messages[sessionID] = append(s.messages[sessionID], messages...)
	sess.UpdatedAt = time.Now().UTC()
	s.sessions[sessionID] = sess
	return nil
}

func (s *Store) ListMessages(_ context.Context, sessionID string, limit int) ([]persistence.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return nil, persistence.ErrNotFound
	}
	msgs := s.messages[sessionID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]persistence.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *Store) AppendBlock(_ context.Context, block persistence.Block) (persistence.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[block.SessionID]; !ok {
		return persistence.Block{}, persistence.ErrNotFound
	}
	if block.ID == "" {
		block.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if block.CreatedAt.IsZero() {
		block.CreatedAt = now
	}
	block.UpdatedAt = now
	s.blockSeq[block.SessionID]++
	block.SequenceNumber = s.blockSeq[block.SessionID]
	s.blocks[block.SessionID] = append(s.blocks[block.SessionID], block)
	return block, nil
}

func (s *Store) ListBlocks(_ context.Context, sessionID string) ([]persistence.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return nil, persistence.ErrNotFound
	}
	blocks := s.blocks[sessionID]
	out := make([]persistence.Block, len(blocks))
	copy(out, blocks)
	return out, nil
}

func (s *Store) AddAttachment(_ context.Context, attachment persistence.Attachment) (persistence.Attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if attachment.ID == "" {
		attachment.ID = uuid.NewString()
	}
	if attachment.CreatedAt.IsZero() {
		attachment.CreatedAt = time.Now().UTC()
	}
	s.attachments[attachment.ID] = attachment
	return attachment, nil
}

func (s *Store) RecordProgressEvent(_ context.Context, event persistence.ProgressEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[event.SessionID]; !ok {
		return persistence.ErrNotFound
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	s.progressEvents[event.SessionID] = append(s.progressEvents[event.SessionID], event)
	return nil
}

func (s *Store) ListProgressEvents(_ context.Context, sessionID string) ([]persistence.ProgressEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return nil, persistence.ErrNotFound
	}
	events := s.progressEvents[sessionID]
	out := make([]persistence.ProgressEvent, len(events))
	copy(out, events)
	return out, nil
}

var _ persistence.Store = (*Store)(nil)
