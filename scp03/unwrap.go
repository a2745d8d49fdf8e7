package scp03

import "crypto/subtle"

// Unwrap applies the SCP03 response pipeline to a raw card response and its
// status word: R-MAC verification (if the active SL has the R-MAC bit) and
// R-ENC decryption (if the active SL has the R-ENC bit and there is
// encrypted data left after stripping the R-MAC). It does not advance
// MAC_chain — R-MAC is computed over a fixed context of MAC_chain as it
// stood after the command that provoked this response, not chained forward.
//
// A status word other than 0x9000/0x62xx/0x63xx must come with an empty
// resp, which passes through untouched; a non-empty resp with such a
// status word is rejected as malformed. An empty resp with 0x9000/0x62xx/
// 0x63xx also passes through untouched (nothing to unwrap).
func (s *Session) Unwrap(resp []byte, sw1, sw2 byte) ([]byte, error) {
	if s.state != stateAuthenticated {
		return nil, &StateError{Op: "Unwrap", State: s.state.String()}
	}
	sl := s.sl | s.rmacSL

	if !(sw1 == 0x90 && sw2 == 0x00) && sw1 != 0x62 && sw1 != 0x63 {
		if len(resp) != 0 {
			return nil, &ProtocolError{Op: "Unwrap", Msg: "unexpected response data for status word"}
		}
		return resp, nil
	}
	if len(resp) == 0 {
		return resp, nil
	}

	data := resp
	if sl&SLRMAC != 0 {
		if len(data) < 8 {
			return nil, &ProtocolError{Op: "Unwrap", Msg: "response shorter than R-MAC tag"}
		}
		plain := data[:len(data)-8]
		tag := data[len(data)-8:]

		dataToSign := make([]byte, 0, len(s.macChain)+len(plain)+2)
		dataToSign = append(dataToSign, s.macChain...)
		dataToSign = append(dataToSign, plain...)
		dataToSign = append(dataToSign, sw1, sw2)

		full, err := cmac(s.sRmac, dataToSign)
		if err != nil {
			return nil, err
		}
		if subtle.ConstantTimeCompare(full[:8], tag) != 1 {
			s.state = stateTerminal
			return nil, &AuthError{Op: "Unwrap", Msg: "R-MAC verification failed"}
		}
		data = plain
	}

	if sl&SLRENC != 0 && len(data) > 0 {
		if len(data)%16 != 0 {
			return nil, &ProtocolError{Op: "Unwrap", Msg: "R-ENC payload not block aligned"}
		}
		icv, err := aesECBEncryptBlock(s.sEnc, counterICV(s.cmdCount, true))
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

	return data, nil
}
