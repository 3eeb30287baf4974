package session

import (
	"context"
	"errors"
)

// sessionKey is the context key for the active Session, following the
// same unexported-struct-key pattern as agent.ContextWithHandle /
// agent.HandleFromContext.
type sessionKey struct{}

// ErrSessionNotInContext is the error MustFromContext's callers should
// check for with errors.Is if they choose not to panic themselves.
var ErrSessionNotInContext = errors.New("session: not found in context")

// ContextWithSession returns a context carrying sess, retrievable with
// FromContext.
func ContextWithSession(ctx context.Context, sess Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, sess)
}

// FromContext retrieves the Session stashed by ContextWithSession.
func FromContext(ctx context.Context) (Session, bool) {
	sess, ok := ctx.Value(sessionKey{}).(Session)
	return sess, ok
}

// MustFromContext panics if ctx carries no Session. Conversational
// agent handlers that require a session (rather than treating it as
// optional) call this instead of checking FromContext's bool.
func MustFromContext(ctx context.Context) Session {
	sess, ok := FromContext(ctx)
	if !ok {
		panic(ErrSessionNotInContext)
	}
	return sess
}
