package scp03

import (
	"bytes"
	"testing"
)

func TestKDFDeterministic(t *testing.T) {
	key := mustHex(t, "404142434445464748494a4b4c4d4e4f")
	ctx := mustHex(t, "0807060504030201a3f5f144d19be66e")

	a, err := kdf(key, ddcSENC, 128, ctx)
	if err != nil {
		t.Fatalf("kdf returned error: %v", err)
	}
	b, err := kdf(key, ddcSENC, 128, ctx)
	if err != nil {
		t.Fatalf("kdf returned error: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("kdf is not deterministic: %X != %X", a, b)
	}
}

func TestKDFLengthTruncation(t *testing.T) {
	key := mustHex(t, "404142434445464748494a4b4c4d4e4f")
	out, err := kdf(key, ddcCardCrypto, 64, []byte("context"))
	if err != nil {
		t.Fatalf("kdf returned error: %v", err)
	}
	if len(out) != 8 {
		t.Fatalf("expected 8-byte output for L=64, got %d bytes", len(out))
	}
}

func TestKDFDifferentConstantsDiffer(t *testing.T) {
	key := mustHex(t, "404142434445464748494a4b4c4d4e4f")
	ctx := []byte("same context")
	a, err := kdf(key, ddcSENC, 128, ctx)
	if err != nil {
		t.Fatalf("kdf returned error: %v", err)
	}
	b, err := kdf(key, ddcSMAC, 128, ctx)
	if err != nil {
		t.Fatalf("kdf returned error: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Fatalf("kdf output must depend on the derivation constant")
	}
}
