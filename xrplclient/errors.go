package xrplclient

import (
	"errors"
	"fmt"
)

// ErrorKind tags an error with the taxonomy from the error handling design:
// per-call errors surface on the call's future tagged with one of the first
// five kinds; FrameParseError and TransportError are log-only and never
// escape the package as a returned error.
type ErrorKind int

const (
	KindConfigError ErrorKind = iota
	KindCallRejectedSemantic
	KindCallTimeout
	KindClosedWhileInFlight
	KindConnectionExhausted
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfigError:
		return "ConfigError"
	case KindCallRejectedSemantic:
		return "CallRejectedSemantic"
	case KindCallTimeout:
		return "CallTimeout"
	case KindClosedWhileInFlight:
		return "ClosedWhileInFlight"
	case KindConnectionExhausted:
		return "ConnectionExhausted"
	default:
		return "Unknown"
	}
}

// ClientError wraps a sentinel error with its kind so callers can branch on
// errors.As without string matching, while Error() still returns the exact
// wording a caller depending on message text (see S1/S4 in the spec) needs.
type ClientError struct {
	Kind ErrorKind
	Err  error
}

func (e *ClientError) Error() string { return e.Err.Error() }
func (e *ClientError) Unwrap() error { return e.Err }

func newClientError(kind ErrorKind, err error) *ClientError {
	return &ClientError{Kind: kind, Err: err}
}

var (
	ErrNoEndpoints   = errors.New("No valid WebSocket endpoint(s) specified")
	ErrLedgerOnlyUnsubscribeForbidden = errors.New("Unsubscribing from (just) the ledger stream is not allowed")
	ErrConnectionExhausted            = errors.New("Max. connection attempts exceeded")
	ErrHardClose                      = errors.New("Class (connection) hard close requested")
	ErrAlreadyClosed                  = errors.New("assertion failed: close() called on an already-closed client")
	ErrClosed                         = errors.New("client is closed")
	ErrInvalidRequest                 = errors.New("request must be a JSON object with a string command")
)

var errDeadConnectTimeout = errors.New("dead-connect timer fired before transport opened")

func errCallTimeout(seconds float64) error {
	return fmt.Errorf("Call timeout after %v seconds", seconds) //nolint:stylecheck // exact wording is part of the contract
}
