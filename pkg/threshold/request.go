package threshold

import (
	"strconv"
	"strings"
)

// DefaultToken is the literal that selects the vendor default.
const DefaultToken = "default"

type requestKind int

const (
	reqUnset requestKind = iota
	reqDefault
	reqPercent
	reqInvalid
)

// Request is a requested threshold: unset, the vendor default or an explicit
// percentage. The zero Request is unset.
type Request struct {
	kind  requestKind
	value int
	raw   string
}

// Unset returns a request that leaves the decision to the vendor default, or
// to NotConfigured for configuration sources.
func Unset() Request { return Request{} }

// Default returns a request for the vendor default.
func Default() Request { return Request{kind: reqDefault} }

// Percent returns an explicit request.
func Percent(v int) Request { return Request{kind: reqPercent, value: v} }

// ParseRequest parses a user or configuration supplied value. An empty string
// is unset. Values that are neither an integer nor "default" are kept and
// fail range validation later.
func ParseRequest(s string) Request {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return Unset()
	case strings.EqualFold(s, DefaultToken):
		return Default()
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return Request{kind: reqInvalid, raw: s}
	}
	return Percent(v)
}

// IsSet reports whether the request carries any value.
func (r Request) IsSet() bool {
	return r.kind != reqUnset
}

// resolve substitutes the vendor default. ok is false for unparsable values.
func (r Request) resolve(def int) (v int, ok bool) {
	switch r.kind {
	case reqPercent:
		return r.value, true
	case reqInvalid:
		return 0, false
	default:
		return def, true
	}
}

func (r Request) String() string {
	switch r.kind {
	case reqUnset:
		return "unset"
	case reqDefault:
		return DefaultToken
	case reqInvalid:
		return strconv.Quote(r.raw)
	default:
		return strconv.Itoa(r.value)
	}
}
