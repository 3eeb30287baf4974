package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aixgo-dev/agentrt/envelope"
)

// Session is a conversational agent's per session_id state: an
// append-only envelope history plus restorable checkpoints over it.
// Implementations are safe for concurrent use.
type Session interface {
	ID() string
	AgentName() string
	UserID() string

	// Append records env as the next entry in this session's history.
	Append(ctx context.Context, env envelope.Envelope) error

	// History returns every envelope appended so far, oldest first.
	History(ctx context.Context) ([]envelope.Envelope, error)

	// Checkpoint snapshots the current history position.
	Checkpoint(ctx context.Context) (*Checkpoint, error)

	// Restore truncates the session's history back to the point a
	// prior Checkpoint captured.
	Restore(ctx context.Context, checkpointID string) error

	// Close flushes any unsaved metadata.
	Close(ctx context.Context) error
}

type sessionImpl struct {
	meta    *SessionMetadata
	backend StorageBackend

	mu      sync.RWMutex
	entries []*SessionEntry
	dirty   bool
}

func newSession(meta *SessionMetadata, backend StorageBackend) *sessionImpl {
	return &sessionImpl{meta: meta, backend: backend}
}

func (s *sessionImpl) ID() string        { return s.meta.ID }
func (s *sessionImpl) AgentName() string { return s.meta.AgentName }
func (s *sessionImpl) UserID() string    { return s.meta.UserID }

func (s *sessionImpl) Append(ctx context.Context, env envelope.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var parentID string
	if len(s.entries) > 0 {
		parentID = s.entries[len(s.entries)-1].ID
	}

	entry := &SessionEntry{
		ID:        uuid.New().String(),
		ParentID:  parentID,
		Timestamp: time.Now().UTC(),
		Type:      EntryTypeEnvelope,
		Envelope:  env.Clone(),
	}

	if err := s.backend.AppendEntry(ctx, s.meta.ID, entry); err != nil {
		return fmt.Errorf("session: append entry: %w", err)
	}

	s.entries = append(s.entries, entry)
	s.meta.EnvelopeCount++
	s.meta.UpdatedAt = time.Now().UTC()
	s.meta.CurrentLeaf = entry.ID
	s.dirty = true

	if err := s.backend.SaveSession(ctx, s.meta); err != nil {
		return fmt.Errorf("session: save metadata: %w", err)
	}
	return nil
}

func (s *sessionImpl) History(ctx context.Context) ([]envelope.Envelope, error) {
	s.mu.RLock()
	entries := s.entries
	s.mu.RUnlock()

	if len(entries) == 0 {
		loaded, err := s.backend.LoadEntries(ctx, s.meta.ID)
		if err != nil {
			return nil, fmt.Errorf("session: load entries: %w", err)
		}
		s.mu.Lock()
		s.entries = loaded
		entries = loaded
		s.mu.Unlock()
	}

	out := make([]envelope.Envelope, 0, len(entries))
	for _, e := range entries {
		if e.Type == EntryTypeEnvelope {
			out = append(out, e.Envelope)
		}
	}
	return out, nil
}

func (s *sessionImpl) Checkpoint(ctx context.Context) (*Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entryID string
	if len(s.entries) > 0 {
		entryID = s.entries[len(s.entries)-1].ID
	}

	cp := &Checkpoint{
		ID:        uuid.New().String(),
		SessionID: s.meta.ID,
		Timestamp: time.Now().UTC(),
		EntryID:   entryID,
		Checksum:  s.checksum(),
	}
	if err := s.backend.SaveCheckpoint(ctx, cp); err != nil {
		return nil, fmt.Errorf("session: save checkpoint: %w", err)
	}
	return cp, nil
}

func (s *sessionImpl) Restore(ctx context.Context, checkpointID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp, err := s.backend.LoadCheckpoint(ctx, checkpointID)
	if err != nil {
		return fmt.Errorf("session: load checkpoint: %w", err)
	}
	if cp.SessionID != s.meta.ID {
		return fmt.Errorf("session: checkpoint %s belongs to a different session", checkpointID)
	}

	entries, err := s.backend.LoadEntries(ctx, s.meta.ID)
	if err != nil {
		return fmt.Errorf("session: load entries: %w", err)
	}

	cut := 0
	found := cp.EntryID == ""
	for i, e := range entries {
		if e.ID == cp.EntryID {
			cut = i + 1
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("session: checkpoint entry %s not found", cp.EntryID)
	}

	s.entries = entries[:cut]
	s.meta.CurrentLeaf = cp.EntryID
	s.meta.EnvelopeCount = countEnvelopeEntries(s.entries)
	s.meta.UpdatedAt = time.Now().UTC()
	s.dirty = true
	return nil
}

func (s *sessionImpl) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return nil
	}
	if err := s.backend.SaveSession(ctx, s.meta); err != nil {
		return fmt.Errorf("session: save on close: %w", err)
	}
	s.dirty = false
	return nil
}

func (s *sessionImpl) checksum() string {
	h := sha256.New()
	for _, e := range s.entries {
		h.Write([]byte(e.ID))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func countEnvelopeEntries(entries []*SessionEntry) int {
	n := 0
	for _, e := range entries {
		if e.Type == EntryTypeEnvelope {
			n++
		}
	}
	return n
}
