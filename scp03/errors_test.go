package scp03

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorClassifiers(t *testing.T) {
	cases := []struct {
		name string
		err  error
		is   func(error) bool
	}{
		{"ConfigError", &ConfigError{Field: "i", Msg: "bad"}, IsConfigError},
		{"ProtocolError", &ProtocolError{Op: "Wrap", Msg: "bad"}, IsProtocolError},
		{"AuthError", &AuthError{Op: "Unwrap", Msg: "bad"}, IsAuthError},
		{"StateError", &StateError{Op: "Wrap", State: "Terminal"}, IsStateError},
		{"BoundsError", &BoundsError{Op: "Wrap", Msg: "bad"}, IsBoundsError},
		{"TransportError", &TransportError{SW1: 0x6A, SW2: 0x82}, IsTransportError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if !tc.is(tc.err) {
				t.Fatalf("expected %s to classify its own error", tc.name)
			}
			wrapped := fmt.Errorf("context: %w", tc.err)
			if !tc.is(wrapped) {
				t.Fatalf("expected %s classifier to see through fmt.Errorf wrapping", tc.name)
			}
		})
	}
}

func TestTransportErrorUnwrap(t *testing.T) {
	cause := errors.New("pcsc: card removed")
	te := &TransportError{Cause: cause}
	if !errors.Is(te, cause) {
		t.Fatalf("expected errors.Is to see through TransportError.Unwrap")
	}
}

func TestIsXErrorFalseForUnrelatedType(t *testing.T) {
	plain := errors.New("plain error")
	if IsConfigError(plain) || IsProtocolError(plain) || IsAuthError(plain) ||
		IsStateError(plain) || IsBoundsError(plain) || IsTransportError(plain) {
		t.Fatalf("expected all classifiers to reject an unrelated error type")
	}
}
