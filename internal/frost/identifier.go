package frost

import "encoding/binary"

// Curve distinguishes the two FROST ciphersuite variants this wallet
// core supports. Dynamic dispatch over Curve is the one capability set
// exposed to callers regardless of which ciphersuite backs a wallet.
type Curve string

const (
	CurveSecp256k1 Curve = "secp256k1"
	CurveEd25519   Curve = "ed25519"
)

// identifierSize is the fixed width of a FROST participant identifier
// as carried on the wire.
const identifierSize = 32

// EncodeIdentifier converts a 1-based participant index into the
// 32-byte FROST identifier for the given ciphersuite. The two curves
// use incompatible byte layouts and must never be confused:
//
//	secp256k1: big-endian u32 in bytes [28:32), all else zero.
//	ed25519:   little-endian u16 in bytes [0:2), all else zero.
func EncodeIdentifier(curve Curve, index uint16) [identifierSize]byte {
	var id [identifierSize]byte
	switch curve {
	case CurveSecp256k1:
		binary.BigEndian.PutUint32(id[28:32], uint32(index))
	case CurveEd25519:
		binary.LittleEndian.PutUint16(id[0:2], index)
	}
	return id
}

// DecodeIdentifier recovers the participant index from a 32-byte FROST
// identifier. Returns false if the non-index bytes are not all zero,
// since that indicates either curve confusion or a corrupt identifier.
func DecodeIdentifier(curve Curve, id [identifierSize]byte) (uint16, bool) {
	switch curve {
	case CurveSecp256k1:
		for i := 0; i < 28; i++ {
			if id[i] != 0 {
				return 0, false
			}
		}
		return uint16(binary.BigEndian.Uint32(id[28:32])), true
	case CurveEd25519:
		for i := 2; i < identifierSize; i++ {
			if id[i] != 0 {
				return 0, false
			}
		}
		return binary.LittleEndian.Uint16(id[0:2]), true
	default:
		return 0, false
	}
}

// IdentifierHex is the lowercase hex form used as a JSON map key in
// round-2 package maps.
func IdentifierHex(curve Curve, index uint16) string {
	id := EncodeIdentifier(curve, index)
	const hexDigits = "0123456789abcdef"
	out := make([]byte, identifierSize*2)
	for i, b := range id {
		out[i*2] = hexDigits[b>>4]
		out[i*2+1] = hexDigits[b&0x0f]
	}
	return string(out)
}
