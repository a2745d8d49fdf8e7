package scp03

// DEK represents the Data Encryption Key, an out-of-channel AES key used to
// protect sensitive data (e.g. key-change payloads) independently of any
// Session's negotiated state. Grounded on the original asterix DEK class;
// Encrypt always pads, even when the input is already block-aligned, so
// Decrypt's output is
// never ambiguous about where padding starts.
type DEK struct {
	key []byte
}

// NewDEK wraps a 16/24/32-byte AES key as a DEK.
func NewDEK(key []byte) (*DEK, error) {
	if len(key) != 16 && len(key) != 24 && len(key) != 32 {
		return nil, &ConfigError{Field: "keyDEK", Msg: "AES key must be 16, 24, or 32 bytes"}
	}
	return &DEK{key: key}, nil
}

// Encrypt pads data with 0x80 then zeros to the next 16-byte boundary and
// encrypts it with AES-CBC under a zero IV.
func (d *DEK) Encrypt(data []byte) ([]byte, error) {
	return aesCBCEncrypt(d.key, make([]byte, 16), pad80(data, 16))
}

// Decrypt requires input length a multiple of 16, decrypts with AES-CBC
// under a zero IV, and returns the raw plaintext without stripping padding
// — the caller knows the convention the card used to pad the payload.
func (d *DEK) Decrypt(data []byte) ([]byte, error) {
	if len(data)%16 != 0 {
		return nil, &BoundsError{Op: "DEK.Decrypt", Msg: "ciphertext not a multiple of 16 bytes"}
	}
	return aesCBCDecrypt(d.key, make([]byte, 16), data)
}
