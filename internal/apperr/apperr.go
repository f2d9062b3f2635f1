// Package apperr defines the error kinds from spec.md §7: MPDParseError,
// TransportError, MissingSegment, ConfigError, and TransportUnsupported.
// Each wraps an underlying cause so callers can still inspect it with
// errors.Unwrap. errors.As can recover the *Error, and so its Kind, from a
// wrapped chain; the package-level Is checks err itself without unwrapping.
package apperr

import "fmt"

type Kind int

const (
	KindMPDParse Kind = iota
	KindTransport
	KindMissingSegment
	KindConfig
	KindTransportUnsupported
)

func (k Kind) String() string {
	switch k {
	case KindMPDParse:
		return "MPDParseError"
	case KindTransport:
		return "TransportError"
	case KindMissingSegment:
		return "MissingSegment"
	case KindConfig:
		return "ConfigError"
	case KindTransportUnsupported:
		return "TransportUnsupported"
	default:
		return "UnknownError"
	}
}

// Error is a kind-tagged, wrapped application error.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewMPDParseError(err error) error {
	return &Error{Kind: KindMPDParse, Err: err}
}

func NewTransportError(err error) error {
	return &Error{Kind: KindTransport, Err: err}
}

func NewMissingSegmentError(asID, index int) error {
	return &Error{Kind: KindMissingSegment, Err: fmt.Errorf("no segment %d for adaptation set %d", index, asID)}
}

func NewConfigError(err error) error {
	return &Error{Kind: KindConfig, Err: err}
}

func NewTransportUnsupportedError(op string) error {
	return &Error{Kind: KindTransportUnsupported, Err: fmt.Errorf("operation %q not supported by this transport", op)}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == kind
}
