package scp03

import "fmt"

// SecurityLevel encodes the SL byte negotiated at EXTERNAL AUTHENTICATE and
// the i-parameter capability flags, per GlobalPlatform Amendment D.
type SecurityLevel byte

// Security-level bits. CMAC and CENC describe command protection; RMAC and
// RENC describe response protection. CENC requires CMAC; RENC requires
// RMAC.
const (
	SLCMAC SecurityLevel = 0x01
	SLCENC SecurityLevel = 0x02
	SLRMAC SecurityLevel = 0x10
	SLRENC SecurityLevel = 0x20
)

// i-parameter bits.
const (
	iPseudoRandom byte = 0x10 // pseudo-random (counter-derived) card challenge
	iRMAC         byte = 0x20 // R-MAC supported
	iRMACENC      byte = 0x60 // R-MAC + R-ENC supported
)

// DefaultI is the default SCP03Parameter i: pseudo-random card challenge,
// R-MAC and R-ENC capable.
const DefaultI byte = 0x70

// DefaultKeyVersion is the default key-version byte carried by a StaticKeySet.
const DefaultKeyVersion byte = 0x30

// DefaultSDAID is the default security-domain AID used when none is supplied.
var DefaultSDAID = []byte{0xA0, 0x00, 0x00, 0x01, 0x51, 0x00, 0x00, 0x00}

// INS byte constants for SCP03 commands.
const (
	InsInitUpdate = 0x50
	InsExtAuth    = 0x82
	InsBeginRMAC  = 0x7A
	InsEndRMAC    = 0x78
)

var validSL = map[SecurityLevel]bool{
	0:                                 true,
	SLCMAC:                            true,
	SLCMAC | SLCENC:                   true,
	SLCMAC | SLRMAC:                   true,
	SLCMAC | SLCENC | SLRMAC:          true,
	SLCMAC | SLCENC | SLRMAC | SLRENC: true,
}

// StaticKeySet is a triple of AES keys (ENC, MAC, DEK), each 16, 24, or 32
// bytes, plus a key version byte. Immutable once constructed.
type StaticKeySet struct {
	ENC, MAC, DEK []byte
	KeyVersion    byte
}

func (k StaticKeySet) validate() error {
	for name, key := range map[string][]byte{"keyENC": k.ENC, "keyMAC": k.MAC, "keyDEK": k.DEK} {
		if len(key) != 16 && len(key) != 24 && len(key) != 32 {
			return &ConfigError{Field: name, Msg: fmt.Sprintf("AES key must be 16, 24, or 32 bytes, got %d", len(key))}
		}
	}
	return nil
}

// sessionState is the explicit tagged state of a Session, per DESIGN NOTES
// §9: a statically-typed target must represent state explicitly rather than
// inferring it from attribute presence.
type sessionState int

const (
	stateConfigured sessionState = iota
	stateAwaitingInitResp
	stateKeysDerived
	stateAuthenticated
	stateTerminal
)

func (s sessionState) String() string {
	switch s {
	case stateConfigured:
		return "Configured"
	case stateAwaitingInitResp:
		return "AwaitingInitResp"
	case stateKeysDerived:
		return "KeysDerived"
	case stateAuthenticated:
		return "Authenticated"
	case stateTerminal:
		return "Terminal"
	default:
		return "Unknown"
	}
}

// Session holds all state for one SCP03 mutual-authentication run: static
// keys, the negotiated i parameter, the sequence counter, diversification
// data, host/card challenges, derived session keys, the MAC chaining value,
// the command counter, the negotiated security levels, and the logical
// channel.
type Session struct {
	keys StaticKeySet
	i    byte
	sdAID []byte

	seqCounter uint32 // 24-bit
	diverData  [10]byte
	logCh      int

	hostChallenge [8]byte
	cardChallenge [8]byte

	sEnc, sMac, sRmac []byte
	hostCryptogram    [8]byte
	cardCryptogram    [8]byte

	macChain []byte // nil until EXTERNAL AUTHENTICATE
	cmdCount uint64

	sl     SecurityLevel
	rmacSL SecurityLevel

	state sessionState
}

// SessionConfig carries the parameters NewSession validates and freezes
// into a Session.
type SessionConfig struct {
	Keys           StaticKeySet
	I              byte   // 0 selects DefaultI
	SDAID          []byte // nil selects DefaultSDAID
	SeqCounter     uint32 // 24-bit
	DiverData      [10]byte
}

// NewSession validates cfg and returns a fresh Session in the Configured
// state. Construction fails with a *ConfigError on invalid key lengths,
// illegal i flags, an AID outside 5-16 bytes, or a sequence counter that
// doesn't fit in 24 bits.
func NewSession(cfg SessionConfig) (*Session, error) {
	if err := cfg.Keys.validate(); err != nil {
		return nil, err
	}
	if cfg.Keys.KeyVersion == 0 {
		cfg.Keys.KeyVersion = DefaultKeyVersion
	}

	i := cfg.I
	if i == 0 {
		i = DefaultI
	}
	if i&^(iPseudoRandom|iRMACENC) != 0 {
		return nil, &ConfigError{Field: "i", Msg: fmt.Sprintf("RFU bits set in i=%#02x", i)}
	}
	// The only illegal combination of the R-MAC/R-ENC bits (mask 0x60) is
	// 0x40: R-ENC set without R-MAC.
	if i&iRMACENC != 0 && i&iRMACENC != iRMAC && i&iRMACENC != iRMACENC {
		return nil, &ConfigError{Field: "i", Msg: fmt.Sprintf("R-ENC without R-MAC in i=%#02x", i)}
	}

	aid := cfg.SDAID
	if aid == nil {
		aid = DefaultSDAID
	}
	if len(aid) < 5 || len(aid) > 16 {
		return nil, &ConfigError{Field: "SDAID", Msg: fmt.Sprintf("AID must be 5-16 bytes, got %d", len(aid))}
	}

	if cfg.SeqCounter >= 1<<24 {
		return nil, &ConfigError{Field: "SeqCounter", Msg: fmt.Sprintf("sequence counter overflows 24 bits: %#x", cfg.SeqCounter)}
	}

	s := &Session{
		keys:       cfg.Keys,
		i:          i,
		sdAID:      append([]byte(nil), aid...),
		seqCounter: cfg.SeqCounter,
		diverData:  cfg.DiverData,
		state:      stateConfigured,
	}
	return s, nil
}

// LogicalChannel returns the logical channel (0-19) set by the most recent
// InitUpdate call.
func (s *Session) LogicalChannel() int { return s.logCh }

// SecurityLevelActive returns the negotiated SL installed by
// ExternalAuthenticate, OR'd with rmacSL if BEGIN R-MAC has since applied.
func (s *Session) SecurityLevelActive() SecurityLevel { return s.sl | s.rmacSL }

// CommandCount returns the current 64-bit command counter.
func (s *Session) CommandCount() uint64 { return s.cmdCount }

// DEK returns a DEK cipher built from this session's static DEK key. It is
// independent of the session's authentication state.
func (s *Session) DEK() (*DEK, error) { return NewDEK(s.keys.DEK) }

// Close zeroises session key material and challenges. The session is left
// unusable: subsequent operations fail with a StateError.
func (s *Session) Close() {
	zero(s.sEnc)
	zero(s.sMac)
	zero(s.sRmac)
	zero(s.macChain)
	s.hostChallenge = [8]byte{}
	s.cardChallenge = [8]byte{}
	s.hostCryptogram = [8]byte{}
	s.cardCryptogram = [8]byte{}
	s.state = stateTerminal
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// claForChannel derives the CLA byte for logCh (0-19), the ISO
// interindustry bit b8, and whether the secure-messaging bit should be set.
// For ch < 4: CLA = b8 | ch | (secure ? 0x04 : 0). Otherwise:
// CLA = b8 | 0x40 | (ch-4) | (secure ? 0x20 : 0).
func claForChannel(logCh int, secure bool, b8 byte) byte {
	if logCh < 4 {
		v := b8 | byte(logCh)
		if secure {
			v |= 0x04
		}
		return v
	}
	v := b8 | 0x40 | byte(logCh-4)
	if secure {
		v |= 0x20
	}
	return v
}

// logicalChannelFromCLA recovers the logical channel (0-19) from a CLA byte
// using the symmetric rule to claForChannel.
func logicalChannelFromCLA(cla byte) int {
	if cla&0x40 != 0 {
		return 4 + int(cla&0x0F)
	}
	return int(cla & 0x03)
}
