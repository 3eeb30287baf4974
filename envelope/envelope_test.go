package envelope

import "testing"

func TestAddressString(t *testing.T) {
	cases := []struct {
		addr Address
		want string
	}{
		{Address{Name: "echo"}, "echo"},
		{Address{Name: "echo", Id: "abc"}, "echo.abc"},
		{Address{Name: "echo", Id: "abc", Type: "worker"}, "echo.abc.worker"},
		{Address{Name: "team.billing"}, "team.billing"},
	}
	for _, c := range cases {
		if got := c.addr.String(); got != c.want {
			t.Errorf("Address(%+v).String() = %q, want %q", c.addr, got, c.want)
		}
	}
}

func TestParseAddressRoundTrip(t *testing.T) {
	cases := []Address{
		{Name: "echo"},
		{Name: "echo", Id: "abc"},
		{Name: "echo", Id: "abc", Type: "worker"},
	}
	for _, want := range cases {
		got := ParseAddress(want.String())
		if got != want {
			t.Errorf("ParseAddress(%q) = %+v, want %+v", want.String(), got, want)
		}
	}
}

func TestAddressTargets(t *testing.T) {
	name := Address{Name: "echo"}
	if !name.TargetsName() || name.TargetsSession() {
		t.Errorf("empty id address should target a name, not a session")
	}
	session := Address{Name: "echo", Id: "s1"}
	if session.TargetsName() || !session.TargetsSession() {
		t.Errorf("non-empty id address should target a session, not a name")
	}
}

func TestHeaderReplyTo(t *testing.T) {
	e := New([]byte("hi")).WithReplyTo(Address{Name: "caller", Id: "x"})
	addr, ok := e.Header.ReplyTo()
	if !ok {
		t.Fatal("expected reply_to to be present")
	}
	if addr != (Address{Name: "caller", Id: "x"}) {
		t.Errorf("got %+v", addr)
	}
}

func TestEnvelopeTerminate(t *testing.T) {
	e := New([]byte("x"))
	if e.IsTerminate() {
		t.Error("fresh envelope should not be terminate")
	}
	e = e.Terminate()
	if !e.IsTerminate() {
		t.Error("expected terminate header to be set")
	}
}

func TestErrorEnvelope(t *testing.T) {
	e := ErrorEnvelope("timeout", "deadline exceeded")
	kind, ok := e.IsError()
	if !ok || kind != "timeout" {
		t.Fatalf("IsError() = %q, %v, want timeout, true", kind, ok)
	}
	if string(e.Payload) != "deadline exceeded" {
		t.Errorf("payload = %q", e.Payload)
	}
}

func TestEnvelopeCloneIndependence(t *testing.T) {
	e := New([]byte("hi")).WithHeader("k", "v")
	clone := e.Clone()
	clone.Header["k"] = "changed"
	clone.Payload[0] = 'X'
	if e.Header["k"] != "v" {
		t.Error("mutating clone header affected original")
	}
	if e.Payload[0] != 'h' {
		t.Error("mutating clone payload affected original")
	}
}
