// Package rterr defines the runtime's error taxonomy: sentinel kinds
// that callers can test for with errors.Is, independent of which
// transport binding or component raised them.
package rterr

import "errors"

// Sentinel error kinds, per SPEC_FULL.md §7.
var (
	// ErrNoAgent means the destination name is not registered in any
	// reachable runtime.
	ErrNoAgent = errors.New("no agent registered for that name")

	// ErrTimeout means the deadline expired before a reply, or a
	// first stream chunk, arrived.
	ErrTimeout = errors.New("timeout waiting for reply")

	// ErrChannelClosed means the reply channel was closed by the
	// caller, the transport, or the reaper.
	ErrChannelClosed = errors.New("channel closed")

	// ErrTransportFailure means the underlying binding failed at the
	// connectivity or protocol level.
	ErrTransportFailure = errors.New("transport failure")

	// ErrBadEnvelope means a reserved header was missing or
	// malformed, or the payload could not be decoded by the agent.
	ErrBadEnvelope = errors.New("bad envelope")

	// ErrInternalAgent wraps a panic or error raised from inside an
	// agent's hooks. The instance that raised it remains alive.
	ErrInternalAgent = errors.New("internal agent error")
)

// Kind returns the stable string name of a sentinel error kind, used
// as the header.error_kind value on error replies (SPEC_FULL.md §11).
// Kind returns "" for errors not drawn from this package.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrNoAgent):
		return "NoAgent"
	case errors.Is(err, ErrTimeout):
		return "Timeout"
	case errors.Is(err, ErrChannelClosed):
		return "ChannelClosed"
	case errors.Is(err, ErrTransportFailure):
		return "TransportFailure"
	case errors.Is(err, ErrBadEnvelope):
		return "BadEnvelope"
	case errors.Is(err, ErrInternalAgent):
		return "InternalAgentError"
	default:
		return ""
	}
}

// Wrap annotates a sentinel kind with context (an address, a name, a
// cause) while keeping it errors.Is-comparable to the sentinel.
func Wrap(kind error, context string, cause error) error {
	if cause != nil {
		return fmt3(kind, context, cause)
	}
	return fmt2(kind, context)
}

func fmt2(kind error, context string) error {
	return &wrapped{kind: kind, msg: context}
}

func fmt3(kind error, context string, cause error) error {
	return &wrapped{kind: kind, msg: context, cause: cause}
}

type wrapped struct {
	kind  error
	msg   string
	cause error
}

func (w *wrapped) Error() string {
	if w.cause != nil {
		return w.kind.Error() + ": " + w.msg + ": " + w.cause.Error()
	}
	return w.kind.Error() + ": " + w.msg
}

func (w *wrapped) Unwrap() error {
	return w.kind
}

func (w *wrapped) Is(target error) bool {
	return target == w.kind
}
