package scp03

import "crypto/subtle"

// ServerUnwrap is the symmetric mirror of Wrap, from the card's point of
// view: it expects the secure-messaging bit already set in CLA, verifies
// C-MAC first (the MAC covers the encrypted Lc, so it must be checked
// before anything is decrypted), then decrypts C-ENC data and strips
// padding. It returns the full cleartext APDU — CLA with the
// secure-messaging bit cleared, INS, P1, P2, recomputed Lc, and plaintext
// data — so that ServerUnwrap(Wrap(apdu)) reproduces apdu exactly once
// cmd_count and MAC_chain are rewound to their pre-Wrap values. It is
// exercised by test code and by applet emulators standing in for a real
// card; production host code never calls it.
func (s *Session) ServerUnwrap(apdu []byte) ([]byte, error) {
	if s.state != stateAuthenticated {
		return nil, &StateError{Op: "ServerUnwrap", State: s.state.String()}
	}
	if len(apdu) < 5 {
		return nil, &ProtocolError{Op: "ServerUnwrap", Msg: "APDU shorter than 5 bytes"}
	}
	cla, ins, p1, p2, lc := apdu[0], apdu[1], apdu[2], apdu[3], int(apdu[4])
	if len(apdu) != 5+lc {
		return nil, &ProtocolError{Op: "ServerUnwrap", Msg: "Lc does not match actual data length"}
	}
	data := apdu[5:]
	scla := (cla & 0x80) | 0x04

	s.cmdCount++

	if s.sl&SLCMAC != 0 {
		if len(data) < 8 {
			return nil, &ProtocolError{Op: "ServerUnwrap", Msg: "command shorter than C-MAC tag"}
		}
		plain := data[:len(data)-8]
		tag := data[len(data)-8:]

		dataToSign := make([]byte, 0, len(s.macChain)+4+1+len(plain))
		dataToSign = append(dataToSign, s.macChain...)
		dataToSign = append(dataToSign, scla, ins, p1, p2, byte(lc))
		dataToSign = append(dataToSign, plain...)

		full, err := cmac(s.sMac, dataToSign)
		if err != nil {
			return nil, err
		}
		if subtle.ConstantTimeCompare(full[:8], tag) != 1 {
			s.state = stateTerminal
			return nil, &AuthError{Op: "ServerUnwrap", Msg: "C-MAC verification failed"}
		}
		s.macChain = full
		data = plain
	}

	if s.sl&SLCENC != 0 && len(data) > 0 {
		if len(data)%16 != 0 {
			return nil, &ProtocolError{Op: "ServerUnwrap", Msg: "C-ENC payload not block aligned"}
		}
		icv, err := aesECBEncryptBlock(s.sEnc, counterICV(s.cmdCount, false))
		if err != nil {
			return nil, err
		}
		plain, err := aesCBCDecrypt(s.sEnc, icv, data)
		if err != nil {
			return nil, err
		}
		unpadded, err := unpad80(plain)
		if err != nil {
			return nil, err
		}
		data = unpadded
	}

	if len(data) > 0xFF {
		return nil, &BoundsError{Op: "ServerUnwrap", Msg: "plaintext Lc too long", Want: 0xFF, Got: len(data)}
	}
	logCh := logicalChannelFromCLA(cla)
	b8 := cla & 0x80
	out := make([]byte, 0, 5+len(data))
	out = append(out, claForChannel(logCh, false, b8), ins, p1, p2, byte(len(data)))
	out = append(out, data...)
	return out, nil
}
