// Package faults defines the closed set of failure kinds the agent and the
// query tool report. The binaries log the kind of a fatal error.
package faults

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	// ConfigMissing means a required configuration key was not set.
	ConfigMissing Kind = iota + 1
	// DiscoveryFailed means the tool server could not be started or listed.
	DiscoveryFailed
	// ModelCallFailed means a chat-completion request failed.
	ModelCallFailed
	// TransportFailed means an HTTP or pipe transport failed.
	TransportFailed
)

func (k Kind) String() string {
	switch k {
	case ConfigMissing:
		return "configuration missing"
	case DiscoveryFailed:
		return "discovery failed"
	case ModelCallFailed:
		return "model call failed"
	case TransportFailed:
		return "transport failed"
	default:
		return "unknown"
	}
}

// Error is a classified failure. Op names the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New returns a classified error wrapping err.
func New(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Missing returns a ConfigMissing error for the given configuration key.
func Missing(key string) error {
	return &Error{Kind: ConfigMissing, Op: key, Err: errors.New("key is not set")}
}

// KindOf returns the kind of the first classified error in err's chain,
// or 0 if there is none.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
