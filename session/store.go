package session

import (
	"context"
	"errors"
)

// Sentinel errors a StorageBackend returns for the conditions its
// callers (Manager, sessionImpl) need to distinguish by identity.
var (
	ErrSessionNotFound    = errors.New("session: not found")
	ErrCheckpointNotFound = errors.New("session: checkpoint not found")
	ErrStorageClosed      = errors.New("session: storage backend is closed")
)

// StorageBackend abstracts where session metadata, entries, and
// checkpoints live. Implementations must be safe for concurrent use.
type StorageBackend interface {
	SaveSession(ctx context.Context, meta *SessionMetadata) error
	LoadSession(ctx context.Context, sessionID string) (*SessionMetadata, error)
	DeleteSession(ctx context.Context, sessionID string) error
	ListSessions(ctx context.Context, agentName string, opts ListOptions) ([]*SessionMetadata, error)

	AppendEntry(ctx context.Context, sessionID string, entry *SessionEntry) error
	LoadEntries(ctx context.Context, sessionID string) ([]*SessionEntry, error)

	SaveCheckpoint(ctx context.Context, checkpoint *Checkpoint) error
	LoadCheckpoint(ctx context.Context, checkpointID string) (*Checkpoint, error)

	Close() error
}

// ListOptions filters Manager.List/StorageBackend.ListSessions.
type ListOptions struct {
	UserID string
	Limit  int
	Offset int
}
