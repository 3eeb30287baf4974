package runtime

import "github.com/aixgo-dev/agentrt/agent"

// AgentSpec is a registration record: a unique name, a constructor
// closure producing a fresh agent instance, and per-name
// configuration, per SPEC_FULL.md §3.
type AgentSpec struct {
	// Name is the agent's registered identifier. May contain dots to
	// form a hierarchical namespace (e.g. "team.billing").
	Name string

	// New constructs a fresh agent instance. Called by the activator
	// whenever an envelope arrives for Name (and, for session-keyed
	// specs, a session_id with no existing live instance).
	New func() agent.Agent

	// SessionKeyed opts the spec into session-keyed instances: an
	// empty-id envelope's session_id header drives the live-table key
	// instead of a single fixed instance id. See SPEC_FULL.md §4.4's
	// "Conversational" subtype.
	SessionKeyed bool

	// InboxCapacity bounds this spec's instances' inboxes. Zero means
	// fall back to the runtime's DefaultInboxCapacity.
	InboxCapacity int
}

// fixedInstanceID is the live-table key used for non-session-keyed
// specs, per SPEC_FULL.md §4.3 ("an empty id is mapped to a fixed
// instance id").
const fixedInstanceID = "_singleton"
