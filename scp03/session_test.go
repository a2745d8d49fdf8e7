package scp03

import "testing"

func TestNewSessionRejectsShortKey(t *testing.T) {
	keys := sharedTestKeys(t)
	keys.ENC = keys.ENC[:15]
	_, err := NewSession(SessionConfig{Keys: keys})
	if !IsConfigError(err) {
		t.Fatalf("expected ConfigError for short ENC key, got %v", err)
	}
}

func TestNewSessionRejectsRFUIBits(t *testing.T) {
	keys := sharedTestKeys(t)
	_, err := NewSession(SessionConfig{Keys: keys, I: 0x08})
	if !IsConfigError(err) {
		t.Fatalf("expected ConfigError for RFU bits in i, got %v", err)
	}
}

func TestNewSessionRejectsRENCWithoutRMAC(t *testing.T) {
	keys := sharedTestKeys(t)
	_, err := NewSession(SessionConfig{Keys: keys, I: iPseudoRandom | 0x40})
	if !IsConfigError(err) {
		t.Fatalf("expected ConfigError for R-ENC without R-MAC in i, got %v", err)
	}
}

func TestNewSessionRejectsShortAID(t *testing.T) {
	keys := sharedTestKeys(t)
	_, err := NewSession(SessionConfig{Keys: keys, SDAID: []byte{0x01, 0x02, 0x03}})
	if !IsConfigError(err) {
		t.Fatalf("expected ConfigError for AID shorter than 5 bytes, got %v", err)
	}
}

func TestNewSessionDefaultsApplied(t *testing.T) {
	keys := sharedTestKeys(t)
	keys.KeyVersion = 0
	s, err := NewSession(SessionConfig{Keys: keys})
	if err != nil {
		t.Fatalf("NewSession returned error: %v", err)
	}
	if s.keys.KeyVersion != DefaultKeyVersion {
		t.Fatalf("expected default key version %#x, got %#x", DefaultKeyVersion, s.keys.KeyVersion)
	}
	if s.i != DefaultI {
		t.Fatalf("expected default i %#x, got %#x", DefaultI, s.i)
	}
}

func TestClaForChannelLow(t *testing.T) {
	cases := []struct {
		logCh  int
		secure bool
		b8     byte
		want   byte
	}{
		{0, false, 0x80, 0x80},
		{0, true, 0x80, 0x84},
		{3, true, 0x80, 0x87},
		{3, false, 0x00, 0x03},
	}
	for _, tc := range cases {
		got := claForChannel(tc.logCh, tc.secure, tc.b8)
		if got != tc.want {
			t.Fatalf("claForChannel(%d, %v, %#x) = %#x, want %#x", tc.logCh, tc.secure, tc.b8, got, tc.want)
		}
	}
}

func TestClaForChannelHigh(t *testing.T) {
	cases := []struct {
		logCh  int
		secure bool
		b8     byte
		want   byte
	}{
		{4, false, 0x80, 0xC0},
		{4, true, 0x80, 0xE0},
		{19, true, 0x00, 0x6F},
	}
	for _, tc := range cases {
		got := claForChannel(tc.logCh, tc.secure, tc.b8)
		if got != tc.want {
			t.Fatalf("claForChannel(%d, %v, %#x) = %#x, want %#x", tc.logCh, tc.secure, tc.b8, got, tc.want)
		}
	}
}

func TestLogicalChannelFromCLARoundTrip(t *testing.T) {
	for ch := 0; ch < 20; ch++ {
		b8 := byte(0x80)
		if ch >= 16 {
			b8 = 0x00
		}
		cla := claForChannel(ch, true, b8)
		got := logicalChannelFromCLA(cla)
		if got != ch {
			t.Fatalf("logicalChannelFromCLA(claForChannel(%d, ...)) = %d, want %d", ch, got, ch)
		}
	}
}

func TestSessionCloseZeroisesKeyMaterial(t *testing.T) {
	s := authenticatedSession(t, SLCMAC)
	s.Close()
	for _, b := range s.sEnc {
		if b != 0 {
			t.Fatalf("expected S_ENC zeroised after Close")
		}
	}
	for _, b := range s.sMac {
		if b != 0 {
			t.Fatalf("expected S_MAC zeroised after Close")
		}
	}
	if _, err := s.Wrap([]byte{0x00, 0xCA, 0x00, 0x00, 0x00}); !IsStateError(err) {
		t.Fatalf("expected StateError calling Wrap on a closed session, got %v", err)
	}
}
