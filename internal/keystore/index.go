package keystore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/collider/walletcore/internal/walleterr"
)

// WalletMetadata is the indexed, non-sensitive view of a KeyShare
// Record used for listing wallets without touching ciphertext.
type WalletMetadata struct {
	ID             string `json:"id"`
	DisplayName    string `json:"display_name"`
	Blockchain     string `json:"blockchain"`
	PrimaryAddress string `json:"primary_address"`
	SessionID      string `json:"session_id"`
	IsActive       bool   `json:"is_active"`
	HasBackup      bool   `json:"has_backup"`
}

// index is the Keystore Index singleton. An entry in Wallets exists
// iff a persisted encrypted share exists for that id; the two are
// always mutated together.
type index struct {
	Version          int              `json:"version"`
	DeviceID         string           `json:"device_id"`
	Wallets          []WalletMetadata `json:"wallets"`
	ActiveWalletID   string           `json:"active_wallet_id,omitempty"`
	IsEncrypted      bool             `json:"is_encrypted"`
	EncryptionMethod string           `json:"encryption_method"`
	LastModified     time.Time        `json:"last_modified"`
}

const indexVersion = 1

func newIndex(deviceID string) *index {
	return &index{
		Version:          indexVersion,
		DeviceID:         deviceID,
		Wallets:          []WalletMetadata{},
		IsEncrypted:      true,
		EncryptionMethod: "password",
		LastModified:     time.Time{},
	}
}

func (ix *index) find(walletID string) (int, bool) {
	for i, w := range ix.Wallets {
		if w.ID == walletID {
			return i, true
		}
	}
	return -1, false
}

// indexPath is where the Keystore Index is persisted, alongside the
// per-wallet encrypted blobs, one directory per keystore.
func indexPath(basePath string) string {
	return filepath.Join(basePath, "index.json")
}

func loadIndex(basePath, deviceID string) (*index, error) {
	data, err := os.ReadFile(indexPath(basePath))
	if os.IsNotExist(err) {
		return newIndex(deviceID), nil
	}
	if err != nil {
		return nil, walleterr.StorageFailure(err)
	}
	var ix index
	if err := json.Unmarshal(data, &ix); err != nil {
		return nil, walleterr.StorageFailure(err)
	}
	return &ix, nil
}

func saveIndex(basePath string, ix *index) error {
	data, err := json.MarshalIndent(ix, "", "  ")
	if err != nil {
		return walleterr.StorageFailure(err)
	}
	if err := os.MkdirAll(basePath, 0700); err != nil {
		return walleterr.StorageFailure(err)
	}
	tmp := indexPath(basePath) + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return walleterr.StorageFailure(err)
	}
	// Write-then-rename: a crash mid-write must never leave a torn index
	// on disk, only the old file or the new one.
	if err := os.Rename(tmp, indexPath(basePath)); err != nil {
		return walleterr.StorageFailure(err)
	}
	return nil
}
