package keystore

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/collider/walletcore/internal/walleterr"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir, err := os.MkdirTemp("", "walletcore-keystore-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	s := New(dir)
	if err := s.Initialize("device-1"); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	return s
}

func sampleInput() KeyShareInput {
	return KeyShareInput{
		Curve:             "secp256k1",
		ParticipantIndex:  1,
		TotalParticipants: 3,
		Threshold:         2,
		Participants:      []string{"device-1", "device-2", "device-3"},
		KeyPackage:        []byte("super-secret-share"),
		PublicKeyPackage:  []byte("public-package"),
		GroupPublicKey:    []byte("group-key"),
		SessionID:         "session-1",
		EthereumAddress:   "0xabc",
		CreatedAt:         time.Now(),
	}
}

func TestGetKeyShareFailsWhileLocked(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetKeyShare("wallet-1"); !errors.Is(err, walleterr.New(walleterr.KindKeystoreLocked)) {
		t.Fatalf("expected KeystoreLocked, got %v", err)
	}
}

func TestAddWalletThenGetKeyShareRoundTrips(t *testing.T) {
	s := newTestStore(t)
	if err := s.Unlock("correct horse battery staple"); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}

	in := sampleInput()
	meta := WalletMetadata{DisplayName: "Main Wallet", Blockchain: "ethereum", PrimaryAddress: "0xabc"}
	if err := s.AddWallet("wallet-1", in, meta); err != nil {
		t.Fatalf("AddWallet failed: %v", err)
	}

	got, err := s.GetKeyShare("wallet-1")
	if err != nil {
		t.Fatalf("GetKeyShare failed: %v", err)
	}
	if string(got.KeyPackage) != string(in.KeyPackage) {
		t.Fatalf("key package mismatch: got %q want %q", got.KeyPackage, in.KeyPackage)
	}
}

func TestAddWalletRejectsDuplicateID(t *testing.T) {
	s := newTestStore(t)
	if err := s.Unlock("pw"); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	in := sampleInput()
	meta := WalletMetadata{DisplayName: "Main Wallet"}
	if err := s.AddWallet("wallet-1", in, meta); err != nil {
		t.Fatalf("first AddWallet failed: %v", err)
	}
	if err := s.AddWallet("wallet-1", in, meta); !errors.Is(err, walleterr.New(walleterr.KindWalletAlreadyExists)) {
		t.Fatalf("expected WalletAlreadyExists, got %v", err)
	}
}

func TestWrongPasswordFailsAtFirstDecrypt(t *testing.T) {
	s := newTestStore(t)
	if err := s.Unlock("correct password"); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	in := sampleInput()
	if err := s.AddWallet("wallet-1", in, WalletMetadata{}); err != nil {
		t.Fatalf("AddWallet failed: %v", err)
	}
	s.Lock()

	// Unlock never verifies the password — it always succeeds.
	if err := s.Unlock("wrong password"); err != nil {
		t.Fatalf("Unlock should never fail outright, got %v", err)
	}
	if _, err := s.GetKeyShare("wallet-1"); err == nil {
		t.Fatal("expected decryption failure with the wrong password")
	}
}

func TestRemoveWalletRemovesBothBlobAndIndexEntry(t *testing.T) {
	s := newTestStore(t)
	if err := s.Unlock("pw"); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	in := sampleInput()
	if err := s.AddWallet("wallet-1", in, WalletMetadata{}); err != nil {
		t.Fatalf("AddWallet failed: %v", err)
	}
	if err := s.RemoveWallet("wallet-1"); err != nil {
		t.Fatalf("RemoveWallet failed: %v", err)
	}
	if _, err := s.GetWallet("wallet-1"); !errors.Is(err, walleterr.New(walleterr.KindWalletNotFound)) {
		t.Fatalf("expected WalletNotFound after removal, got %v", err)
	}
}

func TestLockZeroizesCache(t *testing.T) {
	s := newTestStore(t)
	if err := s.Unlock("pw"); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	in := sampleInput()
	if err := s.AddWallet("wallet-1", in, WalletMetadata{}); err != nil {
		t.Fatalf("AddWallet failed: %v", err)
	}
	s.Lock()
	if len(s.plaintextCache) != 0 {
		t.Fatal("expected plaintext cache to be cleared on lock")
	}
	if _, err := s.GetKeyShare("wallet-1"); !errors.Is(err, walleterr.New(walleterr.KindKeystoreLocked)) {
		t.Fatalf("expected KeystoreLocked after lock, got %v", err)
	}
}

func TestExportAndImportRoundTrip(t *testing.T) {
	s := newTestStore(t)
	if err := s.Unlock("shared-secret"); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	in := sampleInput()
	if err := s.AddWallet("wallet-1", in, WalletMetadata{DisplayName: "Main"}); err != nil {
		t.Fatalf("AddWallet failed: %v", err)
	}

	backup, err := s.ExportWallet("wallet-1")
	if err != nil {
		t.Fatalf("ExportWallet failed: %v", err)
	}

	other := newTestStore(t)
	if err := other.Unlock("shared-secret"); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	imported, err := other.ImportWallet(backup, "shared-secret")
	if err != nil {
		t.Fatalf("ImportWallet failed: %v", err)
	}
	if len(imported) != 1 {
		t.Fatalf("expected 1 imported wallet, got %d", len(imported))
	}
	got, err := other.GetKeyShare(imported[0])
	if err != nil {
		t.Fatalf("GetKeyShare after import failed: %v", err)
	}
	if string(got.KeyPackage) != string(in.KeyPackage) {
		t.Fatal("imported key package does not match original")
	}
}

func TestRawAndWrappedBlobsBothAccepted(t *testing.T) {
	raw := []byte("0123456789abcdef01234567ciphertext-and-tag")
	wrapped, err := WrapForTransport(raw, nil)
	if err != nil {
		t.Fatalf("WrapForTransport failed: %v", err)
	}

	gotFromWrapped, err := UnwrapTransport(wrapped)
	if err != nil {
		t.Fatalf("UnwrapTransport(wrapped) failed: %v", err)
	}
	if string(gotFromWrapped) != string(raw) {
		t.Fatal("unwrapped transport envelope did not recover the original raw blob")
	}

	gotFromRaw, err := UnwrapTransport(raw)
	if err != nil {
		t.Fatalf("UnwrapTransport(raw) failed: %v", err)
	}
	if string(gotFromRaw) != string(raw) {
		t.Fatal("UnwrapTransport must pass through an already-raw blob unchanged")
	}
}
