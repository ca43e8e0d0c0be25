package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"github.com/collider/walletcore/internal/walleterr"
)

const (
	pbkdf2Iterations = 100000
	keySize          = 32 // AES-256
	saltSize         = 16
	nonceSize        = 12 // GCM standard
)

// deriveKey applies PBKDF2-HMAC-SHA256 to a password and salt, for
// byte-compatibility with the reference CLI keystore.
func deriveKey(password []byte, salt []byte) []byte {
	return pbkdf2.Key(password, salt, pbkdf2Iterations, keySize, sha256.New)
}

// sealBlob encrypts plaintext under password with a freshly generated
// salt and nonce, returning the raw
// salt(16)||nonce(12)||ciphertext_with_tag layout required for CLI
// interop.
func sealBlob(password, plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, walleterr.StorageFailure(err)
	}

	key := deriveKey(password, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, walleterr.StorageFailure(err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, walleterr.StorageFailure(err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, walleterr.StorageFailure(err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	out := make([]byte, 0, saltSize+nonceSize+len(ciphertext))
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out, nil
}

// openBlob decrypts a raw salt(16)||nonce(12)||ciphertext_with_tag blob.
// A wrong password is only detectable here, by GCM tag mismatch —
// unlock() never verifies the password up front.
func openBlob(password, blob []byte) ([]byte, error) {
	if len(blob) < saltSize+nonceSize {
		return nil, walleterr.DecryptionFailed(errShortBlob)
	}
	salt := blob[:saltSize]
	nonce := blob[saltSize : saltSize+nonceSize]
	ciphertext := blob[saltSize+nonceSize:]

	key := deriveKey(password, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, walleterr.DecryptionFailed(err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, walleterr.DecryptionFailed(err)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, walleterr.DecryptionFailed(err)
	}
	return plaintext, nil
}

type blobError string

func (e blobError) Error() string { return string(e) }

const errShortBlob = blobError("encrypted blob shorter than salt+nonce")
