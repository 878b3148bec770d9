package keys

import (
	"encoding/base32"
	"fmt"
)

// strkey version bytes (value << 3 so the base32 form starts with a fixed
// letter: G for accounts, S for seeds).
const (
	versionAccount byte = 6 << 3  // 'G'
	versionSeed    byte = 18 << 3 // 'S'
)

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// encodeStrkey wraps a 32-byte payload as version || payload || crc16 and
// base32-encodes it.
func encodeStrkey(version byte, payload []byte) string {
	raw := make([]byte, 0, 1+len(payload)+2)
	raw = append(raw, version)
	raw = append(raw, payload...)
	crc := crc16(raw)
	raw = append(raw, byte(crc&0xff), byte(crc>>8))
	return b32.EncodeToString(raw)
}

// decodeStrkey reverses encodeStrkey, checking version and checksum.
func decodeStrkey(version byte, s string) ([]byte, error) {
	raw, err := b32.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(raw) != 1+32+2 {
		return nil, fmt.Errorf("%w: wrong length %d", ErrInvalidAddress, len(raw))
	}
	if raw[0] != version {
		return nil, fmt.Errorf("%w: wrong version byte 0x%02x", ErrInvalidAddress, raw[0])
	}
	body, check := raw[:len(raw)-2], raw[len(raw)-2:]
	crc := crc16(body)
	if check[0] != byte(crc&0xff) || check[1] != byte(crc>>8) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrInvalidAddress)
	}
	return body[1:], nil
}

// crc16 is CRC16-CCITT (XModem), polynomial 0x1021, zero seed.
func crc16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
