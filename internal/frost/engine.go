// Package frost wraps the external FROST ciphersuite implementations
// behind one capability set, dispatched per ciphersuite at wallet
// creation.
//
// Package frost never re-derives cryptography: round computation is
// delegated to github.com/bnb-chain/tss-lib/v2. Curve-specific scalar
// and address-encoding helpers use github.com/btcsuite/btcd/btcec/v2
// (secp256k1) and filippo.io/edwards25519 (ed25519).
package frost

import "github.com/collider/walletcore/internal/walleterr"

// Round1Package is the opaque, hex-encoded output of a single party's
// DKG round 1.
type Round1Package string

// Round2PackageMap maps the recipient's 32-byte FROST identifier (hex)
// to the opaque per-recipient round-2 package intended for them.
type Round2PackageMap map[string]string

// KeyPackage is this node's private FROST signing share, opaque to
// everything above the engine.
type KeyPackage []byte

// PublicKeyPackage is the group verification material, identical
// across all participants after a successful DKG.
type PublicKeyPackage []byte

// DKGResult is produced by a successful finalize_dkg call.
type DKGResult struct {
	KeyPackage        KeyPackage
	PublicKeyPackage  PublicKeyPackage
	GroupVerifyingKey []byte
}

// Commitment is a signer's FROST round-1 signing commitment.
type Commitment string

// SignatureShare is one signer's contribution to the final signature.
type SignatureShare string

// Engine is the per-ciphersuite capability set consumed by the session
// protocol. A concrete Engine is created fresh per DKG or signing
// session and is not reused across sessions.
type Engine interface {
	Curve() Curve

	// DKG
	InitDKG(index, total, threshold uint16) error
	GenerateRound1() (Round1Package, error)
	AddRound1Package(senderIndex uint16, pkg Round1Package) error
	CanStartRound2() bool
	GenerateRound2() (Round2PackageMap, error)
	AddRound2Package(senderIndex uint16, pkg string) error
	CanFinalize() bool
	FinalizeDKG() (*DKGResult, error)

	// Persistence helpers
	ImportKeystore(data []byte) error
	ExportKeystore() ([]byte, error)

	// Address derivation
	EthereumAddress() (string, error)
	SolanaAddress() (string, error)

	// Signing. InitSigning prepares the engine to act as one of the
	// selected signers over a fixed message, given the full signer set
	// (SignerSelection); the key material consumed is
	// whatever ImportKeystore previously loaded.
	InitSigning(index, total uint16, signerIndices []uint16, messageHex string) error
	SigningCommit() (Commitment, error)
	AddCommitment(senderIndex uint16, c Commitment) error
	Sign() (SignatureShare, error)
	AddSignatureShare(senderIndex uint16, share SignatureShare) error
	CanAggregate() bool
	AggregateSignature() ([]byte, error)
}

// NewEngine constructs a fresh Engine for the given ciphersuite.
func NewEngine(curve Curve) (Engine, error) {
	switch curve {
	case CurveSecp256k1:
		return newSecp256k1Engine(), nil
	case CurveEd25519:
		return newEd25519Engine(), nil
	default:
		return nil, walleterr.EngineFailure("NewEngine", errUnsupportedCurve(curve))
	}
}

type errUnsupportedCurve Curve

func (e errUnsupportedCurve) Error() string {
	return "unsupported curve: " + string(e)
}
