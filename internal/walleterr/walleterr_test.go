package walleterr

import (
	"errors"
	"testing"
)

func TestKeystoreLockedMessage(t *testing.T) {
	err := KeystoreLocked()
	if err.Error() != "Keystore is locked" {
		t.Fatalf("expected fixed literal, got %q", err.Error())
	}
}

func TestErrorIsMatchesByKind(t *testing.T) {
	err := WalletNotFound("wallet-1")
	if !errors.Is(err, New(KindWalletNotFound)) {
		t.Fatal("expected errors.Is to match on Kind alone")
	}
	if errors.Is(err, New(KindWalletAlreadyExists)) {
		t.Fatal("expected errors.Is to reject a different Kind")
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := StorageFailure(cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected Unwrap to expose the cause")
	}
}

func TestNoSensitiveFieldsInMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
	}{
		{"wallet not found", WalletNotFound("w1")},
		{"mismatch", WalletParameterMismatch("2-of-3", "2-of-2")},
		{"protocol violation", ProtocolViolation("bob", "Round1InProgress", "malformed package")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, banned := range []string{"password", "salt", "nonce"} {
				if containsFold(msg, banned) {
					t.Errorf("message %q must not mention %q", msg, banned)
				}
			}
		})
	}
}

func containsFold(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := 0; j < len(needle); j++ {
			a, b := haystack[i+j], needle[j]
			if 'A' <= a && a <= 'Z' {
				a += 'a' - 'A'
			}
			if 'A' <= b && b <= 'Z' {
				b += 'a' - 'A'
			}
			if a != b {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
