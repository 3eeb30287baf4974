// Package envelope defines the wire-level value types agents and
// transports exchange: addresses, headers, and envelopes.
package envelope

import "strings"

// Address identifies an agent instance, or a whole named agent when
// Id is empty. Type is an optional discriminator transports may use
// for topic fan-out; it plays no part in runtime dispatch.
type Address struct {
	Name string
	Id   string
	Type string
}

// TargetsName reports whether the address targets any instance of
// Name, i.e. Id is unset.
func (a Address) TargetsName() bool {
	return a.Id == ""
}

// TargetsSession reports whether the address targets a specific
// instance identified by Id.
func (a Address) TargetsSession() bool {
	return a.Id != ""
}

// String renders the address as "name[.id][.type]", eliding empty
// components, matching the wire encoding in SPEC_FULL.md §6.
func (a Address) String() string {
	parts := []string{a.Name}
	if a.Id != "" {
		parts = append(parts, a.Id)
	}
	if a.Type != "" {
		parts = append(parts, a.Type)
	}
	return strings.Join(parts, ".")
}

// ParseAddress decodes the "name[.id][.type]" encoding. A bare name
// with no dots yields an address with Id and Type both empty; this is
// intentionally ambiguous with a name that itself contains dots (the
// namespace separator, per spec §3) — ParseAddress is only used where
// the caller controls both sides of the encoding (reply-to headers
// and broker topics minted by this package itself), never to parse a
// dotted registration name handed in by a caller.
func ParseAddress(s string) Address {
	parts := strings.Split(s, ".")
	switch len(parts) {
	case 0:
		return Address{}
	case 1:
		return Address{Name: parts[0]}
	case 2:
		return Address{Name: parts[0], Id: parts[1]}
	default:
		return Address{
			Name: parts[0],
			Id:   parts[1],
			Type: strings.Join(parts[2:], "."),
		}
	}
}

// Topic renders the address the way the broker binding derives a
// topic name: identical to String, kept as a distinct name because
// the two have independent evolution paths (e.g. topic sanitization)
// even though they agree today.
func (a Address) Topic() string {
	return a.String()
}
