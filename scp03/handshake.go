package scp03

import (
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"strings"
)

// InitUpdate builds the INITIALIZE UPDATE APDU: CLA || 0x50 || keyVer ||
// 0x00 || 0x08 || host_challenge(8). CLA carries no secure-messaging bit —
// the first INITIALIZE UPDATE is always cleartext. Transitions the session
// from Configured to AwaitingInitResp.
func (s *Session) InitUpdate(hostChallenge [8]byte, logCh int) ([]byte, error) {
	if s.state != stateConfigured {
		return nil, &StateError{Op: "InitUpdate", State: s.state.String()}
	}
	if logCh < 0 || logCh > 19 {
		return nil, &ConfigError{Field: "logCh", Msg: "logical channel must be 0-19"}
	}
	s.logCh = logCh
	s.hostChallenge = hostChallenge

	apdu := make([]byte, 0, 13)
	apdu = append(apdu, claForChannel(logCh, false, 0x80), InsInitUpdate, s.keys.KeyVersion, 0x00, 0x08)
	apdu = append(apdu, hostChallenge[:]...)

	s.state = stateAwaitingInitResp
	return apdu, nil
}

// ParseInitUpdateResponse parses the 29- or 32-byte INITIALIZE UPDATE
// response, derives session keys, and verifies the card cryptogram. On
// success the session moves to KeysDerived. On any mismatch it returns a
// ProtocolError (malformed layout) or AuthError (cryptogram mismatch) and
// moves to Terminal — the card is not to be trusted further on this
// session.
func (s *Session) ParseInitUpdateResponse(resp []byte) error {
	if s.state != stateAwaitingInitResp {
		return &StateError{Op: "ParseInitUpdateResponse", State: s.state.String()}
	}
	if len(resp) != 29 && len(resp) != 32 {
		s.state = stateTerminal
		return &ProtocolError{Op: "ParseInitUpdateResponse", Msg: "response must be 29 or 32 bytes"}
	}

	diverData := resp[0:10]
	keyVer := resp[10]
	scpNum := resp[11]
	i := resp[12]
	cardChallenge := resp[13:21]
	cardCryptogram := resp[21:29]

	if scpNum != 0x03 {
		s.state = stateTerminal
		return &ProtocolError{Op: "ParseInitUpdateResponse", Msg: "SCP number byte must be 0x03"}
	}
	if i&^(iPseudoRandom|iRMACENC) != 0 || (i&iRMACENC != 0 && i&iRMACENC != iRMAC && i&iRMACENC != iRMACENC) {
		s.state = stateTerminal
		return &ProtocolError{Op: "ParseInitUpdateResponse", Msg: "illegal i parameter in response"}
	}

	if i&iPseudoRandom != 0 {
		if len(resp) != 32 {
			s.state = stateTerminal
			return &ProtocolError{Op: "ParseInitUpdateResponse", Msg: "sequence counter must be present when i has pseudo-random bit set"}
		}
		s.seqCounter = uint32(resp[29])<<16 | uint32(resp[30])<<8 | uint32(resp[31])
	} else if len(resp) != 29 {
		s.state = stateTerminal
		return &ProtocolError{Op: "ParseInitUpdateResponse", Msg: "sequence counter shall not be present"}
	}

	s.i = i
	copy(s.diverData[:], diverData)
	_ = keyVer // key version is informational on the response path

	var cc [8]byte
	copy(cc[:], cardChallenge)
	if err := s.deriveKeys(&cc); err != nil {
		s.state = stateTerminal
		return err
	}

	if subtle.ConstantTimeCompare(s.cardCryptogram[:], cardCryptogram) != 1 {
		s.state = stateTerminal
		return &AuthError{Op: "ParseInitUpdateResponse", Msg: "card cryptogram mismatch"}
	}

	s.state = stateKeysDerived
	return nil
}

// deriveKeys computes card_challenge (if pseudo-random), S-ENC, S-MAC,
// S-RMAC, and both cryptograms from host_challenge and card_challenge, and
// resets the MAC chaining value.
func (s *Session) deriveKeys(suppliedCardChallenge *[8]byte) error {
	if s.i&iPseudoRandom != 0 {
		seq := []byte{byte(s.seqCounter >> 16), byte(s.seqCounter >> 8), byte(s.seqCounter)}
		ctx := append(append([]byte(nil), seq...), s.sdAID...)
		derived, err := kdf(s.keys.ENC, ddcCardChallenge, 64, ctx)
		if err != nil {
			return err
		}
		var cc [8]byte
		copy(cc[:], derived)
		if suppliedCardChallenge != nil && *suppliedCardChallenge != cc {
			return &AuthError{Op: "deriveKeys", Msg: "supplied and calculated card challenge differ"}
		}
		s.cardChallenge = cc
	} else {
		if suppliedCardChallenge == nil {
			return &ConfigError{Field: "cardChallenge", Msg: "card challenge required when i lacks pseudo-random bit"}
		}
		s.cardChallenge = *suppliedCardChallenge
	}

	context := append(append([]byte(nil), s.hostChallenge[:]...), s.cardChallenge[:]...)

	var err error
	if s.sEnc, err = kdf(s.keys.ENC, ddcSENC, uint16(8*len(s.keys.ENC)), context); err != nil {
		return err
	}
	if s.sMac, err = kdf(s.keys.MAC, ddcSMAC, uint16(8*len(s.keys.MAC)), context); err != nil {
		return err
	}
	if s.sRmac, err = kdf(s.keys.MAC, ddcSRMAC, uint16(8*len(s.keys.MAC)), context); err != nil {
		return err
	}

	cardCryptogram, err := kdf(s.sMac, ddcCardCrypto, 64, context)
	if err != nil {
		return err
	}
	hostCryptogram, err := kdf(s.sMac, ddcHostCrypto, 64, context)
	if err != nil {
		return err
	}
	copy(s.cardCryptogram[:], cardCryptogram)
	copy(s.hostCryptogram[:], hostCryptogram)

	slog.Debug("session keys derived",
		"hostChallenge", strings.ToUpper(hex.EncodeToString(s.hostChallenge[:])),
		"cardChallenge", strings.ToUpper(hex.EncodeToString(s.cardChallenge[:])),
		"sEnc", strings.ToUpper(hex.EncodeToString(s.sEnc)),
		"sMac", strings.ToUpper(hex.EncodeToString(s.sMac)),
		"sRmac", strings.ToUpper(hex.EncodeToString(s.sRmac)))

	s.macChain = nil
	return nil
}

// ExtAuth validates sl against the negotiated i parameter and the
// permitted SL set, builds the EXTERNAL AUTHENTICATE APDU, and seeds
// MAC_chain. On success the session installs SL, resets rmac_SL and
// cmd_count, and moves to Authenticated.
func (s *Session) ExtAuth(sl SecurityLevel) ([]byte, error) {
	if s.state != stateKeysDerived {
		return nil, &StateError{Op: "ExtAuth", State: s.state.String()}
	}
	if sl&SLRMAC != 0 && s.i&iRMAC == 0 {
		return nil, &ConfigError{Field: "SL", Msg: "R-MAC requested but not supported by i parameter"}
	}
	if sl&SLRENC != 0 && s.i&iRMACENC != iRMACENC {
		return nil, &ConfigError{Field: "SL", Msg: "R-ENC requested but not supported by i parameter"}
	}
	if !validSL[sl] {
		return nil, &ConfigError{Field: "SL", Msg: "security level not in permitted set"}
	}

	dataToSign := make([]byte, 0, 16+5+8)
	dataToSign = append(dataToSign, make([]byte, 16)...)
	dataToSign = append(dataToSign, 0x84, InsExtAuth, byte(sl), 0x00, 0x10)
	dataToSign = append(dataToSign, s.hostCryptogram[:]...)

	chain, err := cmac(s.sMac, dataToSign)
	if err != nil {
		return nil, err
	}
	s.macChain = chain

	apdu := make([]byte, 0, 21)
	apdu = append(apdu, claForChannel(s.logCh, true, 0x80), InsExtAuth, byte(sl), 0x00, 0x10)
	apdu = append(apdu, s.hostCryptogram[:]...)
	apdu = append(apdu, s.macChain[:8]...)

	s.sl = sl
	s.rmacSL = 0
	s.cmdCount = 0
	s.state = stateAuthenticated
	return apdu, nil
}

// BuildBeginRMAC builds the BEGIN R-MAC APDU (INS 0x7A), wraps it through
// the normal command pipeline, and returns the wrapped bytes. rmacSL must
// carry the R-MAC bit and be supported by i; R-ENC requires C-ENC already
// active in SL. rmacSL is NOT installed by this call — ApplyRMAC installs
// it once the caller has confirmed a successful transmission (SW=9000),
// matching the state-transition table's "begin_rmac built/accepted"
// wording.
func (s *Session) BuildBeginRMAC(rmacSL SecurityLevel, salt []byte) ([]byte, error) {
	if s.state != stateAuthenticated {
		return nil, &StateError{Op: "BuildBeginRMAC", State: s.state.String()}
	}
	if rmacSL&SLRMAC == 0 {
		return nil, &ConfigError{Field: "rmacSL", Msg: "P1 for BEGIN R-MAC must carry the R-MAC bit"}
	}
	if rmacSL&^(SLRMAC|SLRENC) != 0 {
		return nil, &ConfigError{Field: "rmacSL", Msg: "RFU bits set in rmacSL"}
	}
	if rmacSL&SLRMAC != 0 && s.i&iRMAC == 0 {
		return nil, &ConfigError{Field: "rmacSL", Msg: "R-MAC not supported by i parameter"}
	}
	if rmacSL&SLRENC != 0 && s.i&iRMACENC != iRMACENC {
		return nil, &ConfigError{Field: "rmacSL", Msg: "R-ENC not supported by i parameter"}
	}
	if s.sl&SLRENC != 0 {
		return nil, &StateError{Op: "BuildBeginRMAC", State: "R-ENC already active in SL"}
	}
	if s.rmacSL&SLRMAC != 0 {
		return nil, &StateError{Op: "BuildBeginRMAC", State: "R-MAC already active"}
	}
	if s.sl&SLCMAC == 0 {
		return nil, &StateError{Op: "BuildBeginRMAC", State: "C-MAC not active"}
	}
	if rmacSL&SLRENC != 0 && s.sl&SLCENC == 0 {
		return nil, &ConfigError{Field: "rmacSL", Msg: "R-ENC requires C-ENC already active in SL"}
	}
	var data []byte
	if salt != nil {
		if len(salt) > 254 {
			return nil, &BoundsError{Op: "BuildBeginRMAC", Msg: "salt too long", Want: 254, Got: len(salt)}
		}
		data = make([]byte, 0, 1+len(salt))
		data = append(data, byte(len(salt)))
		data = append(data, salt...)
	}

	apdu := make([]byte, 0, 5+len(data))
	apdu = append(apdu, claForChannel(s.logCh, false, 0x80), InsBeginRMAC, byte(rmacSL), 0x01, byte(len(data)))
	apdu = append(apdu, data...)

	return s.Wrap(apdu)
}

// ApplyRMAC installs rmacSL into the session once the caller has confirmed
// a successful BEGIN R-MAC transmission. It applies from the next
// wrap/unwrap onward.
func (s *Session) ApplyRMAC(rmacSL SecurityLevel) {
	s.rmacSL = rmacSL
}
