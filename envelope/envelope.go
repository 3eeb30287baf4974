package envelope

// Reserved header keys, per SPEC_FULL.md §3.
const (
	HeaderType      = "type"
	HeaderReplyTo   = "reply_to"
	HeaderSessionID = "session_id"
	HeaderStream    = "stream"
	HeaderTerminate = "terminate"
	HeaderErrorKind = "error_kind"
)

// TypeError is the reserved header.type value for error replies, per
// SPEC_FULL.md §11.
const TypeError = "error"

// TypeSetReplyTo is a runtime control type: an envelope of this type
// carries, as its payload, the encoded address an instance should use
// as its default reply target for any subsequent envelope that
// arrives without its own header.reply_to. Used by the sequential
// orchestration agent to rewire a pipeline's hops once at started()
// time instead of sitting in the data path of every hop, grounded on
// original_source/coagent/agents/sequential.py's SetReplyAgent.
const TypeSetReplyTo = "_runtime.set_reply_to"

// Header is a string to string mapping attached to every envelope.
type Header map[string]string

// Clone returns an independent copy of h.
func (h Header) Clone() Header {
	if h == nil {
		return nil
	}
	out := make(Header, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// IsTerminate reports whether the terminate header is set.
func (h Header) IsTerminate() bool {
	return h[HeaderTerminate] == "1"
}

// IsStream reports whether the stream header is set.
func (h Header) IsStream() bool {
	return h[HeaderStream] == "1"
}

// ReplyTo returns the decoded reply-to address, if present.
func (h Header) ReplyTo() (Address, bool) {
	s, ok := h[HeaderReplyTo]
	if !ok || s == "" {
		return Address{}, false
	}
	return ParseAddress(s), true
}

// Envelope is the unit every transport moves: headers plus an opaque
// payload. Its logical payload type is identified by header "type".
type Envelope struct {
	Header  Header
	Payload []byte
}

// New builds an envelope with a freshly allocated header map.
func New(payload []byte) Envelope {
	return Envelope{Header: Header{}, Payload: payload}
}

// WithHeader returns a copy of e with key set to value in its header.
func (e Envelope) WithHeader(key, value string) Envelope {
	h := e.Header.Clone()
	if h == nil {
		h = Header{}
	}
	h[key] = value
	return Envelope{Header: h, Payload: e.Payload}
}

// WithReplyTo stamps header.reply_to with addr's encoding.
func (e Envelope) WithReplyTo(addr Address) Envelope {
	return e.WithHeader(HeaderReplyTo, addr.String())
}

// Terminate returns a copy of e with header.terminate=1 set, used to
// mark the final chunk of a stream or a stop request.
func (e Envelope) Terminate() Envelope {
	return e.WithHeader(HeaderTerminate, "1")
}

// IsTerminate reports whether e carries header.terminate=1.
func (e Envelope) IsTerminate() bool {
	return e.Header.IsTerminate()
}

// ErrorEnvelope builds an envelope encoding an error reply, per the
// wire encoding decided in SPEC_FULL.md §11: header.type=error,
// header.error_kind=kind, payload is the UTF-8 message.
func ErrorEnvelope(kind, message string) Envelope {
	return Envelope{
		Header: Header{
			HeaderType:      TypeError,
			HeaderErrorKind: kind,
		},
		Payload: []byte(message),
	}
}

// IsError reports whether e is an error reply and, if so, its kind.
func (e Envelope) IsError() (kind string, ok bool) {
	if e.Header[HeaderType] != TypeError {
		return "", false
	}
	return e.Header[HeaderErrorKind], true
}

// SetReplyToEnvelope builds a control envelope instructing its
// recipient's runtime instance to default-route future replies to
// target.
func SetReplyToEnvelope(target Address) Envelope {
	return Envelope{
		Header:  Header{HeaderType: TypeSetReplyTo},
		Payload: []byte(target.String()),
	}
}

// IsSetReplyTo reports whether e is a TypeSetReplyTo control envelope
// and, if so, decodes its target address.
func (e Envelope) IsSetReplyTo() (Address, bool) {
	if e.Header[HeaderType] != TypeSetReplyTo {
		return Address{}, false
	}
	return ParseAddress(string(e.Payload)), true
}

// Clone returns a deep copy of e (header map and a fresh payload
// slice), safe to hand to a second receiver without aliasing.
func (e Envelope) Clone() Envelope {
	out := Envelope{Header: e.Header.Clone()}
	if e.Payload != nil {
		out.Payload = make([]byte, len(e.Payload))
		copy(out.Payload, e.Payload)
	}
	return out
}
