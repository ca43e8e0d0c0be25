package keystore

import (
	"crypto/rand"
	"time"

	"github.com/collider/walletcore/internal/walleterr"
)

// Backup is a portable export of one or more wallets: their Wallet
// Metadata and unchanged Encrypted Share Blobs. Re-encryption is not
// required on export — the importer must know the original password.
type Backup struct {
	Version    int               `json:"version"`
	DeviceID   string            `json:"device_id"`
	ExportedAt time.Time         `json:"exported_at"`
	Wallets    []WalletMetadata  `json:"wallets"`
	Blobs      map[string]string `json:"blobs"` // walletID -> JSON transport envelope (base64 blob inside)
}

const backupVersion = 1

// ExportWallet produces a single-wallet Backup.
func (s *Store) ExportWallet(walletID string) (*Backup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index.find(walletID)
	if !ok {
		return nil, walleterr.WalletNotFound(walletID)
	}
	blob, err := s.blobs.get(walletID)
	if err != nil {
		return nil, err
	}
	envelope, err := WrapForTransport(blob, map[string]string{"wallet_id": walletID})
	if err != nil {
		return nil, err
	}

	return &Backup{
		Version:    backupVersion,
		DeviceID:   s.deviceID,
		ExportedAt: time.Now(),
		Wallets:    []WalletMetadata{s.index.Wallets[i]},
		Blobs:      map[string]string{walletID: string(envelope)},
	}, nil
}

// CreateBackup produces a Backup covering every wallet in the index.
func (s *Store) CreateBackup() (*Backup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	blobs := make(map[string]string, len(s.index.Wallets))
	wallets := make([]WalletMetadata, 0, len(s.index.Wallets))
	for _, w := range s.index.Wallets {
		blob, err := s.blobs.get(w.ID)
		if err != nil {
			return nil, err
		}
		envelope, err := WrapForTransport(blob, map[string]string{"wallet_id": w.ID})
		if err != nil {
			return nil, err
		}
		blobs[w.ID] = string(envelope)
		wallets = append(wallets, w)
	}

	return &Backup{
		Version:    backupVersion,
		DeviceID:   s.deviceID,
		ExportedAt: time.Now(),
		Wallets:    wallets,
		Blobs:      blobs,
	}, nil
}

// ImportWallet decrypts each backup entry with password to verify it,
// then inserts it under its original wallet id, or a conflict-resolved
// one if that id is already present.
func (s *Store) ImportWallet(backup *Backup, password string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	imported := make([]string, 0, len(backup.Wallets))
	for _, meta := range backup.Wallets {
		envelope, ok := backup.Blobs[meta.ID]
		if !ok {
			continue
		}
		raw, err := UnwrapTransport([]byte(envelope))
		if err != nil {
			return imported, err
		}
		plaintext, err := openBlob([]byte(password), raw)
		if err != nil {
			return imported, walleterr.DecryptionFailed(err)
		}
		rec, err := unmarshalRecord(plaintext)
		if err != nil {
			return imported, err
		}

		targetID := meta.ID
		if _, exists := s.index.find(targetID); exists {
			targetID = targetID + "-imported-" + randomSuffix()
		}

		resealed, err := sealBlob([]byte(password), plaintext)
		if err != nil {
			return imported, err
		}
		if err := s.blobs.put(targetID, resealed); err != nil {
			return imported, err
		}

		meta.ID = targetID
		s.index.Wallets = append(s.index.Wallets, meta)
		s.plaintextCache[targetID] = rec
		imported = append(imported, targetID)
	}

	s.index.LastModified = time.Now()
	if err := saveIndex(s.basePath, s.index); err != nil {
		return imported, err
	}
	return imported, nil
}

func randomSuffix() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "0"
	}
	const digits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = digits[c>>4]
		out[i*2+1] = digits[c&0x0f]
	}
	return string(out)
}
