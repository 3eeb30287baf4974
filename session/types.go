// Package session provides per-session state persistence for
// conversational agent instances (SPEC_FULL.md §4.4): a history of the
// envelopes exchanged within a session_id, restorable checkpoints, and
// a pluggable StorageBackend so an operator can choose continuity
// (Redis) over process-lifetime-only state (the in-memory default).
//
// Grounded on pkg/session/{types,manager,store,context,config}.go's
// Manager/Session/StorageBackend shape, narrowed from a generic
// conversation-message log to this runtime's own unit of exchange: an
// envelope.Envelope rather than an LLM provider's message type.
package session

import (
	"time"

	"github.com/aixgo-dev/agentrt/envelope"
)

// EntryType distinguishes what a SessionEntry records.
type EntryType string

const (
	// EntryTypeEnvelope records one envelope appended to the session.
	EntryTypeEnvelope EntryType = "envelope"
	// EntryTypeCheckpoint is a reserved entry type; no code in this
	// package writes entries of it. A Checkpoint instead records, in
	// Checkpoint.EntryID, the ID of the last entry when it was taken.
	EntryTypeCheckpoint EntryType = "checkpoint"
)

// SessionEntry is one append-only record in a session's history.
type SessionEntry struct {
	ID        string    `json:"id"`
	ParentID  string    `json:"parentId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Type      EntryType `json:"type"`
	Envelope  envelope.Envelope `json:"envelope"`
}

// SessionMetadata is the summary record a StorageBackend can list
// without loading the full entry log.
type SessionMetadata struct {
	ID            string    `json:"id"`
	AgentName     string    `json:"agentName"`
	UserID        string    `json:"userId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
	EnvelopeCount int       `json:"envelopeCount"`
	CurrentLeaf   string    `json:"currentLeaf,omitempty"`
}

// Checkpoint is a restorable marker over a session's entry log.
type Checkpoint struct {
	ID        string         `json:"id"`
	SessionID string         `json:"sessionId"`
	Timestamp time.Time      `json:"timestamp"`
	EntryID   string         `json:"entryId"`
	Checksum  string         `json:"checksum"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}
