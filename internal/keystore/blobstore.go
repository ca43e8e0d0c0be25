package keystore

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/collider/walletcore/internal/walleterr"
)

// blobStore persists one opaque encrypted blob per wallet id. Store
// drives it the same way regardless of backend; fileBlobStore
// (default) and postgresBlobStore are the two concrete shapes, holding
// one KeyShare Record ciphertext per wallet.
type blobStore interface {
	put(walletID string, blob []byte) error
	get(walletID string) ([]byte, error)
	delete(walletID string) error
	listIDs() ([]string, error)
}

// fileBlobStore writes each wallet's ciphertext to its own file under
// basePath, using a tentative-write-then-rename so a crash mid-write
// never leaves a torn file visible.
type fileBlobStore struct {
	basePath string
}

func (f *fileBlobStore) put(walletID string, blob []byte) error {
	if err := os.MkdirAll(f.basePath, 0700); err != nil {
		return walleterr.StorageFailure(err)
	}
	tentative := blobPath(f.basePath, walletID) + ".tmp"
	if err := os.WriteFile(tentative, blob, 0600); err != nil {
		return walleterr.StorageFailure(err)
	}
	if err := os.Rename(tentative, blobPath(f.basePath, walletID)); err != nil {
		return walleterr.StorageFailure(err)
	}
	return nil
}

func (f *fileBlobStore) get(walletID string) ([]byte, error) {
	blob, err := os.ReadFile(blobPath(f.basePath, walletID))
	if err != nil {
		return nil, walleterr.StorageFailure(err)
	}
	return blob, nil
}

func (f *fileBlobStore) delete(walletID string) error {
	if err := os.Remove(blobPath(f.basePath, walletID)); err != nil && !os.IsNotExist(err) {
		return walleterr.StorageFailure(err)
	}
	return nil
}

// listIDs enumerates every wallet id with a persisted blob file,
// derived from the "<wallet_id>.blob" filename convention blobPath
// establishes. Used only by the post-init dangling-ciphertext sweep.
func (f *fileBlobStore) listIDs() ([]string, error) {
	entries, err := os.ReadDir(f.basePath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, walleterr.StorageFailure(err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".blob") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(filepath.Base(name), ".blob"))
	}
	return ids, nil
}
