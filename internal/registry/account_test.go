package registry

import (
	"path/filepath"
	"testing"
)

func newAccountRegistry(t *testing.T) *AccountRegistry {
	t.Helper()
	r, err := NewAccountRegistry(filepath.Join(t.TempDir(), "accounts.json"))
	if err != nil {
		t.Fatalf("NewAccountRegistry: %v", err)
	}
	return r
}

func TestAccountAddGetRemove(t *testing.T) {
	r := newAccountRegistry(t)

	acc := Account{ID: "w1", Address: "0xAbC", Blockchain: "ethereum", DisplayName: "Wallet 1"}
	if err := r.AddAccount(acc); err != nil {
		t.Fatalf("AddAccount: %v", err)
	}
	if err := r.AddAccount(acc); err == nil {
		t.Fatalf("expected error adding duplicate id")
	}

	got, ok := r.GetAccountByID("w1")
	if !ok {
		t.Fatalf("GetAccountByID: not found")
	}
	if got.Created.IsZero() {
		t.Fatalf("expected Created to be stamped")
	}

	if err := r.RemoveAccount("w1"); err != nil {
		t.Fatalf("RemoveAccount: %v", err)
	}
	if _, ok := r.GetAccountByID("w1"); ok {
		t.Fatalf("expected account removed")
	}
}

func TestAccountUniqueBlockchainAddress(t *testing.T) {
	r := newAccountRegistry(t)
	if err := r.AddAccount(Account{ID: "w1", Address: "0xAbC", Blockchain: "ethereum"}); err != nil {
		t.Fatalf("AddAccount: %v", err)
	}
	if err := r.AddAccount(Account{ID: "w2", Address: "0xabc", Blockchain: "ethereum"}); err == nil {
		t.Fatalf("expected collision error for same blockchain+lowercased address")
	}
	// Same address under a different blockchain is allowed.
	if err := r.AddAccount(Account{ID: "w3", Address: "0xAbC", Blockchain: "polygon"}); err != nil {
		t.Fatalf("expected same address under different blockchain to succeed: %v", err)
	}
}

func TestAccountCurrentReassignmentOnRemove(t *testing.T) {
	r := newAccountRegistry(t)
	for _, id := range []string{"w1", "w2", "w3"} {
		if err := r.AddAccount(Account{ID: id, Address: id, Blockchain: "ethereum"}); err != nil {
			t.Fatalf("AddAccount(%s): %v", id, err)
		}
	}
	if err := r.SetCurrentAccount("w2"); err != nil {
		t.Fatalf("SetCurrentAccount: %v", err)
	}
	if err := r.RemoveAccount("w2"); err != nil {
		t.Fatalf("RemoveAccount: %v", err)
	}
	cur, ok := r.GetCurrentAccount()
	if !ok {
		t.Fatalf("expected a reassigned current account")
	}
	if cur.ID == "w2" {
		t.Fatalf("current account should not be the removed one")
	}
}

func TestAccountChangeNotification(t *testing.T) {
	r := newAccountRegistry(t)
	var calls int
	r.OnChange(func(accounts []Account, current string) {
		calls++
	})
	if err := r.AddAccount(Account{ID: "w1", Address: "0xAbC", Blockchain: "ethereum"}); err != nil {
		t.Fatalf("AddAccount: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 notification, got %d", calls)
	}
}
