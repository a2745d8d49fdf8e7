package scp03

import (
	"bytes"
	"testing"
)

func TestDEKRejectsShortKey(t *testing.T) {
	_, err := NewDEK(make([]byte, 10))
	if !IsConfigError(err) {
		t.Fatalf("expected ConfigError for short DEK key, got %v", err)
	}
}

func TestDEKEncryptDecryptRoundTrip(t *testing.T) {
	d, err := NewDEK(mustHex(t, "9876543210404142434445464748494A"))
	if err != nil {
		t.Fatalf("NewDEK returned error: %v", err)
	}

	for _, plain := range [][]byte{
		{},
		{0x01},
		bytes.Repeat([]byte{0xAB}, 16),
		bytes.Repeat([]byte{0xCD}, 31),
	} {
		enc, err := d.Encrypt(plain)
		if err != nil {
			t.Fatalf("Encrypt returned error: %v", err)
		}
		if len(enc)%16 != 0 {
			t.Fatalf("expected ciphertext block-aligned, got %d bytes", len(enc))
		}
		dec, err := d.Decrypt(enc)
		if err != nil {
			t.Fatalf("Decrypt returned error: %v", err)
		}
		unpadded, err := unpad80(dec)
		if err != nil {
			t.Fatalf("unpad80 returned error: %v", err)
		}
		if !bytes.Equal(unpadded, plain) {
			t.Fatalf("round-trip mismatch: got %X, want %X", unpadded, plain)
		}
	}
}

func TestDEKEncryptAlwaysPadsEvenWhenBlockAligned(t *testing.T) {
	d, err := NewDEK(mustHex(t, "404142434445464748494A4B4C4D4E4F"))
	if err != nil {
		t.Fatalf("NewDEK returned error: %v", err)
	}
	plain := bytes.Repeat([]byte{0x11}, 16)
	enc, err := d.Encrypt(plain)
	if err != nil {
		t.Fatalf("Encrypt returned error: %v", err)
	}
	if len(enc) != 32 {
		t.Fatalf("expected a full extra padding block for already-aligned input, got %d bytes", len(enc))
	}
}
