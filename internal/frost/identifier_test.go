package frost

import "testing"

func TestEncodeIdentifierSecp256k1Layout(t *testing.T) {
	id := EncodeIdentifier(CurveSecp256k1, 3)
	for i := 0; i < 28; i++ {
		if id[i] != 0 {
			t.Fatalf("expected byte %d to be zero, got %d", i, id[i])
		}
	}
	if id[31] != 3 {
		t.Fatalf("expected big-endian u32 with value 3 in last 4 bytes, got %v", id[28:32])
	}
}

func TestEncodeIdentifierEd25519Layout(t *testing.T) {
	id := EncodeIdentifier(CurveEd25519, 3)
	if id[0] != 3 || id[1] != 0 {
		t.Fatalf("expected little-endian u16 with value 3 in first 2 bytes, got %v", id[0:2])
	}
	for i := 2; i < identifierSize; i++ {
		if id[i] != 0 {
			t.Fatalf("expected byte %d to be zero, got %d", i, id[i])
		}
	}
}

func TestIdentifierRoundTrip(t *testing.T) {
	for _, curve := range []Curve{CurveSecp256k1, CurveEd25519} {
		for index := uint16(1); index <= 255; index++ {
			id := EncodeIdentifier(curve, index)
			got, ok := DecodeIdentifier(curve, id)
			if !ok {
				t.Fatalf("%s: expected decodable identifier for index %d", curve, index)
			}
			if got != index {
				t.Fatalf("%s: roundtrip mismatch: want %d got %d", curve, index, got)
			}
		}
	}
}

func TestIdentifiersNeverConfusedAcrossCurves(t *testing.T) {
	secp := EncodeIdentifier(CurveSecp256k1, 1)
	ed := EncodeIdentifier(CurveEd25519, 1)
	if secp == ed {
		t.Fatal("secp256k1 and ed25519 identifiers for the same index must differ")
	}
	// An ed25519-encoded identifier must not decode cleanly as secp256k1
	// unless the index happens to be zero (all-zero case), and vice versa.
	if _, ok := DecodeIdentifier(CurveSecp256k1, ed); ok {
		t.Fatal("ed25519 identifier should not decode as a valid secp256k1 identifier")
	}
}

func TestIdentifierHexLength(t *testing.T) {
	h := IdentifierHex(CurveSecp256k1, 1)
	if len(h) != identifierSize*2 {
		t.Fatalf("expected %d hex chars, got %d", identifierSize*2, len(h))
	}
}
