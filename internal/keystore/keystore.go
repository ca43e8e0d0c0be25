// Package keystore persists encrypted FROST key shares and the
// Keystore Index: Locked/Unlocked state, deferred password
// verification, atomic multi-step writes, backup/restore.
package keystore

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/collider/walletcore/internal/walleterr"
)

// state models the keystore lifecycle: Locked (initial) → Unlocked → Locked.
type state int

const (
	stateLocked state = iota
	stateUnlocked
)

// Store is a single device's keystore: one Keystore Index plus one
// encrypted blob per wallet. All mutations are serialized through a
// single logical mutex.
type Store struct {
	mu sync.Mutex

	basePath string
	deviceID string

	st       state
	password []byte

	index *index
	blobs blobStore

	// plaintextCache holds decrypted KeyShare Records for the unlock
	// lifetime only; lock() zeroizes both this and password.
	plaintextCache map[string]*keyShareRecord
}

// New constructs a Store rooted at basePath. It does not touch disk;
// call Initialize to create or load the Keystore Index.
func New(basePath string) *Store {
	return &Store{
		basePath:       basePath,
		blobs:          &fileBlobStore{basePath: basePath},
		plaintextCache: make(map[string]*keyShareRecord),
		st:             stateLocked,
	}
}

// NewPostgres constructs a Store whose per-wallet encrypted blobs live
// in PostgreSQL instead of basePath's filesystem. The Keystore Index
// itself stays file-backed at basePath: only share ciphertext moves
// into a shared database.
func NewPostgres(basePath, databaseURL string) (*Store, error) {
	blobs, err := newPostgresBlobStore(databaseURL)
	if err != nil {
		return nil, err
	}
	return &Store{
		basePath:       basePath,
		blobs:          blobs,
		plaintextCache: make(map[string]*keyShareRecord),
		st:             stateLocked,
	}, nil
}

// Initialize associates the process with a device id and creates the
// Keystore Index if absent.
func (s *Store) Initialize(deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deviceID = deviceID
	ix, err := loadIndex(s.basePath, deviceID)
	if err != nil {
		return err
	}
	s.index = ix
	return s.sweepDanglingBlobs()
}

// sweepDanglingBlobs removes any encrypted blob left with no matching
// index entry, so a crash never leaves unreferenced ciphertext behind.
// AddWallet writes the blob before the index entry that references it,
// so a crash between the two leaves an orphaned blob here to reclaim.
// RemoveWallet writes the index first and deletes the blob last, for
// the opposite reason: a crash there must never leave an index entry
// pointing at a blob that is already gone, and any blob left behind by
// that ordering is an orphan this sweep also cleans up.
func (s *Store) sweepDanglingBlobs() error {
	ids, err := s.blobs.listIDs()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, ok := s.index.find(id); !ok {
			if err := s.blobs.delete(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// Unlock records password and marks the keystore unlocked. No key is
// derived and no password is verified here: every blob carries its own
// salt, so sealBlob/openBlob derive the key per blob, and a wrong
// password surfaces only at the first AEAD decrypt of any share.
func (s *Store) Unlock(password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.password = []byte(password)
	s.st = stateUnlocked
	return nil
}

// Lock zeroizes the held password and the cached plaintext share map.
func (s *Store) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.password {
		s.password[i] = 0
	}
	s.password = nil
	for id, rec := range s.plaintextCache {
		zeroRecord(rec)
		delete(s.plaintextCache, id)
	}
	s.st = stateLocked
}

func zeroRecord(r *keyShareRecord) {
	for i := range r.KeyPackage {
		r.KeyPackage[i] = 0
	}
}

func (s *Store) requireUnlocked() error {
	if s.st != stateUnlocked {
		return walleterr.KeystoreLocked()
	}
	return nil
}

// AddWallet encrypts and persists a fresh wallet entry. Fails if
// walletID already exists (no silent overwrite).
func (s *Store) AddWallet(walletID string, record KeyShareInput, metadata WalletMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireUnlocked(); err != nil {
		return err
	}
	if _, ok := s.index.find(walletID); ok {
		return walleterr.WalletAlreadyExists(walletID)
	}

	rec := &keyShareRecord{
		Version:           1,
		Curve:             record.Curve,
		ParticipantIndex:  record.ParticipantIndex,
		TotalParticipants: record.TotalParticipants,
		Threshold:         record.Threshold,
		Participants:      record.Participants,
		KeyPackage:        record.KeyPackage,
		PublicKeyPackage:  record.PublicKeyPackage,
		GroupPublicKey:    record.GroupPublicKey,
		SessionID:         record.SessionID,
		DeviceID:          s.deviceID,
		CreatedAt:         record.CreatedAt,
		EthereumAddress:   record.EthereumAddress,
		SolanaAddress:     record.SolanaAddress,
		LastUsed:          record.CreatedAt,
	}

	plaintext, err := marshalRecord(rec)
	if err != nil {
		return err
	}
	blob, err := sealBlob(s.password, plaintext)
	if err != nil {
		return err
	}

	// The blob backend persists ciphertext first; the index update that
	// references it happens last, so a crash mid-way leaves no dangling
	// index entry.
	if err := s.blobs.put(walletID, blob); err != nil {
		return err
	}

	metadata.ID = walletID
	s.index.Wallets = append(s.index.Wallets, metadata)
	s.index.LastModified = time.Now()
	if err := saveIndex(s.basePath, s.index); err != nil {
		return err
	}

	s.plaintextCache[walletID] = rec
	return nil
}

// GetWallet reads Wallet Metadata only, never touching ciphertext.
func (s *Store) GetWallet(walletID string) (*WalletMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index.find(walletID)
	if !ok {
		return nil, walleterr.WalletNotFound(walletID)
	}
	w := s.index.Wallets[i]
	return &w, nil
}

// GetWallets returns all Wallet Metadata entries.
func (s *Store) GetWallets() []WalletMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]WalletMetadata, len(s.index.Wallets))
	copy(out, s.index.Wallets)
	return out
}

// KeyShareInput is the data addWallet needs; CreatedAt defaults to the
// caller's clock, matching how the session protocol commits a freshly
// finalized DKG artifact.
type KeyShareInput struct {
	Curve             string
	ParticipantIndex  int
	TotalParticipants int
	Threshold         int
	Participants      []string
	KeyPackage        []byte
	PublicKeyPackage  []byte
	GroupPublicKey    []byte
	SessionID         string
	EthereumAddress   string
	SolanaAddress     string
	CreatedAt         time.Time
}

// GetKeyShare returns cached plaintext if present; otherwise loads and
// decrypts the encrypted blob and caches it for the unlock lifetime.
// Fails with KeystoreLocked if the store is locked.
func (s *Store) GetKeyShare(walletID string) (*KeyShareInput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireUnlocked(); err != nil {
		return nil, err
	}
	if _, ok := s.index.find(walletID); !ok {
		return nil, walleterr.WalletNotFound(walletID)
	}

	rec, ok := s.plaintextCache[walletID]
	if !ok {
		blob, err := s.blobs.get(walletID)
		if err != nil {
			return nil, err
		}
		plaintext, err := openBlob(s.password, blob)
		if err != nil {
			return nil, err
		}
		rec, err = unmarshalRecord(plaintext)
		if err != nil {
			return nil, err
		}
		s.plaintextCache[walletID] = rec
	}

	return &KeyShareInput{
		Curve:             rec.Curve,
		ParticipantIndex:  rec.ParticipantIndex,
		TotalParticipants: rec.TotalParticipants,
		Threshold:         rec.Threshold,
		Participants:      rec.Participants,
		KeyPackage:        rec.KeyPackage,
		PublicKeyPackage:  rec.PublicKeyPackage,
		GroupPublicKey:    rec.GroupPublicKey,
		SessionID:         rec.SessionID,
		EthereumAddress:   rec.EthereumAddress,
		SolanaAddress:     rec.SolanaAddress,
		CreatedAt:         rec.CreatedAt,
	}, nil
}

// RemoveWallet removes both the encrypted blob and the Metadata entry.
// Atomic to the outside observer: the index write happens first, so a
// crash mid-way never leaves an index entry referencing a missing
// blob; a blob orphaned by a crash between the index write and the
// delete below is reclaimed by Initialize's sweepDanglingBlobs.
func (s *Store) RemoveWallet(walletID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index.find(walletID)
	if !ok {
		return walleterr.WalletNotFound(walletID)
	}

	s.index.Wallets = append(s.index.Wallets[:i], s.index.Wallets[i+1:]...)
	if s.index.ActiveWalletID == walletID {
		s.index.ActiveWalletID = ""
	}
	s.index.LastModified = time.Now()
	if err := saveIndex(s.basePath, s.index); err != nil {
		return err
	}

	if err := s.blobs.delete(walletID); err != nil {
		return err
	}

	delete(s.plaintextCache, walletID)
	return nil
}

func blobPath(basePath, walletID string) string {
	return filepath.Join(basePath, fmt.Sprintf("%s.blob", walletID))
}
