package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Manager owns session lifecycle on top of a StorageBackend, caching
// live sessionImpl instances so repeated Get calls within a process
// don't re-load the entry log from storage each time.
type Manager interface {
	Create(ctx context.Context, agentName string, opts CreateOptions) (Session, error)
	Get(ctx context.Context, sessionID string) (Session, error)
	// GetOrCreate returns the caller's existing session for userID, if
	// one exists, or creates a new one. Used by conversational agents
	// keying instances on session_id: a fresh caller with a stable
	// userID resumes rather than starting over.
	GetOrCreate(ctx context.Context, agentName, userID string) (Session, error)
	List(ctx context.Context, agentName string, opts ListOptions) ([]*SessionMetadata, error)
	Delete(ctx context.Context, sessionID string) error
	Close() error
}

// CreateOptions configures Manager.Create.
type CreateOptions struct {
	UserID string
}

type managerImpl struct {
	backend StorageBackend

	mu       sync.RWMutex
	sessions map[string]*sessionImpl
}

// NewManager wraps backend with session-lifecycle bookkeeping.
func NewManager(backend StorageBackend) Manager {
	return &managerImpl{backend: backend, sessions: make(map[string]*sessionImpl)}
}

func (m *managerImpl) Create(ctx context.Context, agentName string, opts CreateOptions) (Session, error) {
	now := time.Now().UTC()
	meta := &SessionMetadata{
		ID:        uuid.New().String(),
		AgentName: agentName,
		UserID:    opts.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.backend.SaveSession(ctx, meta); err != nil {
		return nil, fmt.Errorf("session: create: %w", err)
	}

	sess := newSession(meta, m.backend)
	m.mu.Lock()
	m.sessions[meta.ID] = sess
	m.mu.Unlock()
	return sess, nil
}

func (m *managerImpl) Get(ctx context.Context, sessionID string) (Session, error) {
	m.mu.RLock()
	if sess, ok := m.sessions[sessionID]; ok {
		m.mu.RUnlock()
		return sess, nil
	}
	m.mu.RUnlock()

	meta, err := m.backend.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	entries, err := m.backend.LoadEntries(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session: load entries: %w", err)
	}

	sess := newSession(meta, m.backend)
	sess.entries = entries

	m.mu.Lock()
	m.sessions[sessionID] = sess
	m.mu.Unlock()
	return sess, nil
}

func (m *managerImpl) GetOrCreate(ctx context.Context, agentName, userID string) (Session, error) {
	if userID != "" {
		found, err := m.backend.ListSessions(ctx, agentName, ListOptions{UserID: userID, Limit: 1})
		if err != nil {
			return nil, fmt.Errorf("session: list: %w", err)
		}
		if len(found) > 0 {
			return m.Get(ctx, found[0].ID)
		}
	}
	return m.Create(ctx, agentName, CreateOptions{UserID: userID})
}

func (m *managerImpl) List(ctx context.Context, agentName string, opts ListOptions) ([]*SessionMetadata, error) {
	return m.backend.ListSessions(ctx, agentName, opts)
}

func (m *managerImpl) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	return m.backend.DeleteSession(ctx, sessionID)
}

func (m *managerImpl) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx := context.Background()
	for _, sess := range m.sessions {
		_ = sess.Close(ctx)
	}
	m.sessions = make(map[string]*sessionImpl)
	return m.backend.Close()
}
