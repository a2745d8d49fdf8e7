package scp03

// checkAPDU validates the INS/Lc shape of a cleartext APDU before wrapping,
// and returns Lc. GET RESPONSE (INS 0xC0) is exempt from the
// Lc check since it has no body. INS values whose high nibble is 0x6 or
// 0x9 are rejected — they would collide with the status-word space.
func checkAPDU(apdu []byte) (lc int, err error) {
	if len(apdu) < 5 {
		return 0, &ProtocolError{Op: "checkAPDU", Msg: "APDU shorter than 5 bytes"}
	}
	ins := apdu[1]
	if ins == 0xC0 {
		if len(apdu) != 5 {
			return 0, &ProtocolError{Op: "checkAPDU", Msg: "GET RESPONSE APDU must carry no data"}
		}
		return 0, nil
	}
	if ins&0xF0 == 0x60 || ins&0xF0 == 0x90 {
		return 0, &ProtocolError{Op: "checkAPDU", Msg: "INS byte collides with status-word space"}
	}
	lc = len(apdu) - 5
	if len(apdu) != 5 && int(apdu[4]) != lc {
		return 0, &ProtocolError{Op: "checkAPDU", Msg: "Lc does not match actual data length"}
	}
	return lc, nil
}

// counterICV encodes v as a 16-byte big-endian block: the high 64 bits are
// v>>64 (always zero for our uint64 counter, so effectively zero) and the
// low 64 bits are v. The response variant ORs bit 127 (0x80 into the first
// byte) into the high half to distinguish response ICVs from command ICVs
// sharing the same counter value.
func counterICV(v uint64, response bool) []byte {
	block := make([]byte, 16)
	if response {
		block[0] = 0x80
	}
	block[8] = byte(v >> 56)
	block[9] = byte(v >> 48)
	block[10] = byte(v >> 40)
	block[11] = byte(v >> 32)
	block[12] = byte(v >> 24)
	block[13] = byte(v >> 16)
	block[14] = byte(v >> 8)
	block[15] = byte(v)
	return block
}

// Wrap applies the SCP03 command pipeline to a cleartext APDU: CLA
// rewriting, C-ENC (if SL has the C-ENC bit and there is data), C-MAC
// chaining (if SL has the C-MAC bit), and re-emission with the
// secure-messaging bit set. GET RESPONSE (INS 0xC0) passes through
// unchanged and does not advance cmd_count. Must only be called once the
// session is Authenticated.
func (s *Session) Wrap(apdu []byte) ([]byte, error) {
	if s.state != stateAuthenticated {
		return nil, &StateError{Op: "Wrap", State: s.state.String()}
	}
	lc, err := checkAPDU(apdu)
	if err != nil {
		return nil, err
	}
	if apdu[1] == 0xC0 {
		return apdu, nil
	}

	s.cmdCount++
	cla := apdu[0]
	b8 := cla & 0x80
	scla := b8 | 0x04

	cdata := apdu[5:]
	if s.sl&SLCENC != 0 && lc > 0 {
		icv, err := aesECBEncryptBlock(s.sEnc, counterICV(s.cmdCount, false))
		if err != nil {
			return nil, err
		}
		enc, err := aesCBCEncrypt(s.sEnc, icv, pad80(cdata, 16))
		if err != nil {
			return nil, err
		}
		cdata = enc
		lc = len(cdata)
		if lc > 0xFF {
			return nil, &BoundsError{Op: "Wrap", Msg: "Lc after C-ENC too long", Want: 0xFF, Got: lc}
		}
	}

	if s.sl&SLCMAC != 0 {
		newLc := lc + 8
		if newLc > 0xFF {
			return nil, &BoundsError{Op: "Wrap", Msg: "Lc after C-MAC too long", Want: 0xFF, Got: newLc}
		}
		dataToSign := make([]byte, 0, 16+4+len(cdata))
		dataToSign = append(dataToSign, s.macChain...)
		dataToSign = append(dataToSign, scla, apdu[1], apdu[2], apdu[3], byte(newLc))
		dataToSign = append(dataToSign, cdata...)

		chain, err := cmac(s.sMac, dataToSign)
		if err != nil {
			return nil, err
		}
		s.macChain = chain
		cdata = append(append([]byte(nil), cdata...), s.macChain[:8]...)
		lc = newLc
	}

	out := make([]byte, 0, 5+len(cdata))
	out = append(out, claForChannel(s.logCh, true, b8), apdu[1], apdu[2], apdu[3], byte(lc))
	out = append(out, cdata...)
	return out, nil
}
