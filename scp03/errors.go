package scp03

import (
	"errors"
	"fmt"
)

// ConfigError reports invalid static parameters supplied to NewSession or
// one of the key-loading helpers: wrong key length, invalid i parameter,
// AID out of range, SL not in the permitted set, sequence counter overflow.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("scp03: config error (%s): %s", e.Field, e.Msg)
}

// ProtocolError reports that response bytes don't match the layout the
// GlobalPlatform spec prescribes: wrong length, wrong SCP number, an
// unexpected seq_counter presence/absence, a malformed wrapped response.
type ProtocolError struct {
	Op  string
	Msg string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("scp03: protocol error in %s: %s", e.Op, e.Msg)
}

// AuthError reports a cryptogram or MAC mismatch. It is distinct from
// ProtocolError so a caller can enforce lockout policy on authentication
// failures specifically.
type AuthError struct {
	Op  string
	Msg string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("scp03: auth error in %s: %s", e.Op, e.Msg)
}

// StateError reports an operation invoked out of order: wrap before
// ext_auth, begin_rmac when C-MAC isn't active, R-MAC already active, or
// any operation on a session a prior AuthError has poisoned.
type StateError struct {
	Op    string
	State string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("scp03: state error: %s called in state %s", e.Op, e.State)
}

// BoundsError reports an arithmetic/length overflow: Lc > 0xFF after
// wrapping, R-ENC payload > 0xEF, R-MAC payload > 0xF0.
type BoundsError struct {
	Op   string
	Msg  string
	Want int
	Got  int
}

func (e *BoundsError) Error() string {
	if e.Want != 0 || e.Got != 0 {
		return fmt.Sprintf("scp03: bounds error in %s: %s (limit %d, got %d)", e.Op, e.Msg, e.Want, e.Got)
	}
	return fmt.Sprintf("scp03: bounds error in %s: %s", e.Op, e.Msg)
}

// TransportError wraps an error surfaced verbatim from the transport
// collaborator, or a non-9000/61xx/6Cxx status word treated as fatal for
// the current command.
type TransportError struct {
	SW1, SW2 byte
	Cause    error
}

func (e *TransportError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("scp03: transport error: %v", e.Cause)
	}
	return fmt.Sprintf("scp03: transport error: SW=%02X%02X", e.SW1, e.SW2)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// IsConfigError reports whether err is a *ConfigError.
func IsConfigError(err error) bool {
	var e *ConfigError
	return errors.As(err, &e)
}

// IsProtocolError reports whether err is a *ProtocolError.
func IsProtocolError(err error) bool {
	var e *ProtocolError
	return errors.As(err, &e)
}

// IsAuthError reports whether err is an *AuthError. A caller enforcing
// lockout policy after repeated authentication failures should branch on
// this, not on ProtocolError.
func IsAuthError(err error) bool {
	var e *AuthError
	return errors.As(err, &e)
}

// IsStateError reports whether err is a *StateError.
func IsStateError(err error) bool {
	var e *StateError
	return errors.As(err, &e)
}

// IsBoundsError reports whether err is a *BoundsError.
func IsBoundsError(err error) bool {
	var e *BoundsError
	return errors.As(err, &e)
}

// IsTransportError reports whether err is a *TransportError.
func IsTransportError(err error) bool {
	var e *TransportError
	return errors.As(err, &e)
}
