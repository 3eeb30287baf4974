package session

import (
	"context"
	"sort"
	"sync"
)

// MemoryBackend implements StorageBackend in process memory. It is
// the default backend: state does not survive a process restart, the
// same tradeoff Non-goals accepts for instance state generally, but
// it needs no external dependency to run.
//
// Structured the way FileBackend indexes by agent name in
// pkg/session/file_backend.go, substituting in-memory maps for the
// directory-per-agent layout since there is no filesystem to isolate
// path traversal against.
type MemoryBackend struct {
	mu     sync.RWMutex
	closed bool

	sessions    map[string]*SessionMetadata
	entries     map[string][]*SessionEntry
	checkpoints map[string]*Checkpoint
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		sessions:    make(map[string]*SessionMetadata),
		entries:     make(map[string][]*SessionEntry),
		checkpoints: make(map[string]*Checkpoint),
	}
}

func (b *MemoryBackend) SaveSession(_ context.Context, meta *SessionMetadata) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrStorageClosed
	}
	cp := *meta
	b.sessions[meta.ID] = &cp
	return nil
}

func (b *MemoryBackend) LoadSession(_ context.Context, sessionID string) (*SessionMetadata, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrStorageClosed
	}
	meta, ok := b.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *meta
	return &cp, nil
}

func (b *MemoryBackend) DeleteSession(_ context.Context, sessionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrStorageClosed
	}
	if _, ok := b.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	delete(b.sessions, sessionID)
	delete(b.entries, sessionID)
	for id, cp := range b.checkpoints {
		if cp.SessionID == sessionID {
			delete(b.checkpoints, id)
		}
	}
	return nil
}

func (b *MemoryBackend) ListSessions(_ context.Context, agentName string, opts ListOptions) ([]*SessionMetadata, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrStorageClosed
	}

	var out []*SessionMetadata
	for _, meta := range b.sessions {
		if meta.AgentName != agentName {
			continue
		}
		if opts.UserID != "" && meta.UserID != opts.UserID {
			continue
		}
		cp := *meta
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return []*SessionMetadata{}, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (b *MemoryBackend) AppendEntry(_ context.Context, sessionID string, entry *SessionEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrStorageClosed
	}
	if _, ok := b.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	b.entries[sessionID] = append(b.entries[sessionID], entry)
	return nil
}

func (b *MemoryBackend) LoadEntries(_ context.Context, sessionID string) ([]*SessionEntry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrStorageClosed
	}
	entries := b.entries[sessionID]
	out := make([]*SessionEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (b *MemoryBackend) SaveCheckpoint(_ context.Context, checkpoint *Checkpoint) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrStorageClosed
	}
	cp := *checkpoint
	b.checkpoints[checkpoint.ID] = &cp
	return nil
}

func (b *MemoryBackend) LoadCheckpoint(_ context.Context, checkpointID string) (*Checkpoint, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrStorageClosed
	}
	cp, ok := b.checkpoints[checkpointID]
	if !ok {
		return nil, ErrCheckpointNotFound
	}
	out := *cp
	return &out, nil
}

func (b *MemoryBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
