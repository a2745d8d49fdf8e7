package scp03

import "encoding/binary"

// Derivation constants from GlobalPlatform Amendment D §4.1.5, table 4-1.
const (
	ddcCardCrypto    byte = 0x00
	ddcHostCrypto    byte = 0x01
	ddcCardChallenge byte = 0x02
	ddcSENC          byte = 0x04
	ddcSMAC          byte = 0x06
	ddcSRMAC         byte = 0x07
)

// kdf implements the Amendment D §4.1.5 counter-mode key derivation
// function built on CMAC. It produces ceil(L/128) 16-byte CMAC blocks and
// truncates the concatenation to L/8 bytes.
//
// For i = 1, 2, ..., each block is CMAC(key, 0x00^11 || const || 0x00 ||
// L_be16 || i || context); the 11 zero bytes are the label prefix and i is
// a single counter byte starting at 1.
func kdf(key []byte, constByte byte, l uint16, context []byte) ([]byte, error) {
	numBlocks := (int(l) + 127) / 128
	out := make([]byte, 0, numBlocks*16)

	fixed := make([]byte, 0, 11+1+1+2)
	fixed = append(fixed, make([]byte, 11)...)
	fixed = append(fixed, constByte, 0x00)
	fixed = binary.BigEndian.AppendUint16(fixed, l)

	for i := 1; i <= numBlocks; i++ {
		data := make([]byte, 0, len(fixed)+1+len(context))
		data = append(data, fixed...)
		data = append(data, byte(i))
		data = append(data, context...)

		block, err := cmac(key, data)
		if err != nil {
			return nil, err
		}
		out = append(out, block...)
	}

	byteLen := int(l) / 8
	if byteLen > len(out) {
		byteLen = len(out)
	}
	return out[:byteLen], nil
}
