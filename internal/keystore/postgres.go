package keystore

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/collider/walletcore/internal/walleterr"
)

// postgresBlobStore is the Postgres-backed alternative to
// fileBlobStore: one row per wallet, upsert on conflict. The blob
// itself is already the fully sealed AES-256-GCM ciphertext produced
// by crypto.go — this layer only moves bytes in and out of a database
// column, it never encrypts.
type postgresBlobStore struct {
	db *sql.DB
}

const postgresBlobTable = `
CREATE TABLE IF NOT EXISTS wallet_key_shares (
	wallet_id VARCHAR(128) PRIMARY KEY,
	encrypted_data BYTEA NOT NULL,
	created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
)`

// newPostgresBlobStore dials databaseURL (appending sslmode=disable
// when the caller hasn't specified one) and ensures the blob table
// exists.
func newPostgresBlobStore(databaseURL string) (*postgresBlobStore, error) {
	if !strings.Contains(databaseURL, "sslmode=") {
		if strings.Contains(databaseURL, "?") {
			databaseURL += "&sslmode=disable"
		} else {
			databaseURL += "?sslmode=disable"
		}
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, walleterr.StorageFailure(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, walleterr.StorageFailure(err)
	}
	if _, err := db.ExecContext(ctx, postgresBlobTable); err != nil {
		return nil, walleterr.StorageFailure(err)
	}

	return &postgresBlobStore{db: db}, nil
}

func (p *postgresBlobStore) put(walletID string, blob []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO wallet_key_shares (wallet_id, encrypted_data, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (wallet_id) DO UPDATE SET
			encrypted_data = EXCLUDED.encrypted_data,
			updated_at = NOW()
	`, walletID, blob)
	if err != nil {
		return walleterr.StorageFailure(err)
	}
	return nil
}

func (p *postgresBlobStore) get(walletID string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var blob []byte
	err := p.db.QueryRowContext(ctx,
		"SELECT encrypted_data FROM wallet_key_shares WHERE wallet_id = $1", walletID,
	).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, walleterr.WalletNotFound(walletID)
	}
	if err != nil {
		return nil, walleterr.StorageFailure(err)
	}
	return blob, nil
}

func (p *postgresBlobStore) delete(walletID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := p.db.ExecContext(ctx, "DELETE FROM wallet_key_shares WHERE wallet_id = $1", walletID); err != nil {
		return walleterr.StorageFailure(err)
	}
	return nil
}

// listIDs enumerates every wallet id with a row in the blob table. Used
// only by the post-init dangling-ciphertext sweep.
func (p *postgresBlobStore) listIDs() ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	rows, err := p.db.QueryContext(ctx, "SELECT wallet_id FROM wallet_key_shares")
	if err != nil {
		return nil, walleterr.StorageFailure(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, walleterr.StorageFailure(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, walleterr.StorageFailure(err)
	}
	return ids, nil
}

// Close releases the underlying database connection. A no-op for a
// file-backed Store.
func (s *Store) Close() error {
	if pg, ok := s.blobs.(*postgresBlobStore); ok {
		return pg.db.Close()
	}
	return nil
}
