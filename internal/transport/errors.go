package transport

import (
	"errors"
	"fmt"
)

// ProtocolError reports a malformed exchange: an unknown mode token, a short
// read, or a length mismatch.
type ProtocolError struct {
	Msg string
	Err error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol: %s: %v", e.Msg, e.Err)
	}
	return "protocol: " + e.Msg
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// TransportError reports that a peer could not be reached or the channel to
// it failed: spawn failure, refused connection, broken pipe, or a non-zero
// remote exit.
type TransportError struct {
	Op   string
	Peer string
	Err  error
	// Stderr holds the tail of the remote process's diagnostics, if any.
	Stderr string
}

func (e *TransportError) Error() string {
	msg := fmt.Sprintf("transport %s %s: %v", e.Op, e.Peer, e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsProtocolError returns true if err wraps a ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// IsTransportError returns true if err wraps a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
