package keystore

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/collider/walletcore/internal/walleterr"
)

// transportEnvelope is the optional structured wrapper allowed around
// the raw blob when a caller explicitly moves a share off-device
// (export, backup). The canonical on-disk form is always the raw byte
// string; this envelope exists only for transport.
type transportEnvelope struct {
	Version   int               `json:"version"`
	Encrypted bool              `json:"encrypted"`
	Algorithm string            `json:"algorithm"`
	Data      string            `json:"data"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

const envelopeAlgorithm = "AES-256-GCM"
const envelopeVersion = 1

// WrapForTransport produces the JSON envelope form of a raw blob. Used
// only by exportWallet/createBackup — the keystore's own persistence
// always stores the raw layout.
func WrapForTransport(rawBlob []byte, metadata map[string]string) ([]byte, error) {
	env := transportEnvelope{
		Version:   envelopeVersion,
		Encrypted: true,
		Algorithm: envelopeAlgorithm,
		Data:      base64.StdEncoding.EncodeToString(rawBlob),
		Metadata:  metadata,
	}
	out, err := json.Marshal(env)
	if err != nil {
		return nil, walleterr.StorageFailure(err)
	}
	return out, nil
}

// UnwrapTransport accepts either a raw salt||nonce||ciphertext byte
// string or a wrapped JSON envelope and always returns the raw form,
// per the dual-acceptance decision recorded in DESIGN.md.
func UnwrapTransport(data []byte) ([]byte, error) {
	var env transportEnvelope
	if err := json.Unmarshal(data, &env); err == nil && env.Data != "" {
		raw, err := base64.StdEncoding.DecodeString(env.Data)
		if err != nil {
			return nil, walleterr.StorageFailure(err)
		}
		return raw, nil
	}
	// Not a JSON envelope: treat as the raw layout already.
	return data, nil
}

// keyShareRecord is the serialized plaintext payload of an Encrypted
// Share Blob.
type keyShareRecord struct {
	Version           int       `json:"version"`
	Curve             string    `json:"curve"`
	ParticipantIndex  int       `json:"participant_index"`
	TotalParticipants int       `json:"total_participants"`
	Threshold         int       `json:"threshold"`
	Participants      []string  `json:"participants"`
	KeyPackage        []byte    `json:"key_package"`
	PublicKeyPackage  []byte    `json:"public_key_package"`
	GroupPublicKey    []byte    `json:"group_public_key"`
	SessionID         string    `json:"session_id"`
	DeviceID          string    `json:"device_id"`
	CreatedAt         time.Time `json:"created_at"`
	EthereumAddress   string    `json:"ethereum_address,omitempty"`
	SolanaAddress     string    `json:"solana_address,omitempty"`
	LastUsed          time.Time `json:"last_used"`
	BackupDate        time.Time `json:"backup_date,omitempty"`
}

func marshalRecord(r *keyShareRecord) ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, walleterr.StorageFailure(err)
	}
	return b, nil
}

func unmarshalRecord(data []byte) (*keyShareRecord, error) {
	var r keyShareRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, walleterr.StorageFailure(err)
	}
	return &r, nil
}
