package rterr

import (
	"errors"
	"testing"
)

func TestWrapIsComparable(t *testing.T) {
	err := Wrap(ErrNoAgent, "address echo.x", nil)
	if !errors.Is(err, ErrNoAgent) {
		t.Fatal("wrapped error should satisfy errors.Is against the sentinel")
	}
	if errors.Is(err, ErrTimeout) {
		t.Fatal("wrapped error should not satisfy errors.Is against an unrelated sentinel")
	}
}

func TestKind(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{ErrNoAgent, "NoAgent"},
		{ErrTimeout, "Timeout"},
		{ErrChannelClosed, "ChannelClosed"},
		{ErrTransportFailure, "TransportFailure"},
		{ErrBadEnvelope, "BadEnvelope"},
		{ErrInternalAgent, "InternalAgentError"},
		{errors.New("unrelated"), ""},
	}
	for _, c := range cases {
		if got := Kind(c.err); got != c.want {
			t.Errorf("Kind(%v) = %q, want %q", c.err, got, c.want)
		}
	}
}

func TestWrapWithCauseMessage(t *testing.T) {
	cause := errors.New("dial refused")
	err := Wrap(ErrTransportFailure, "broker connect", cause)
	if !errors.Is(err, ErrTransportFailure) {
		t.Fatal("expected ErrTransportFailure in chain")
	}
	if err.Error() == "" {
		t.Fatal("expected non-empty message")
	}
}
