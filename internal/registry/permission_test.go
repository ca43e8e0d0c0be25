package registry

import (
	"path/filepath"
	"reflect"
	"testing"
)

func newPermissionRegistry(t *testing.T) *PermissionRegistry {
	t.Helper()
	r, err := NewPermissionRegistry(filepath.Join(t.TempDir(), "permissions.json"))
	if err != nil {
		t.Fatalf("NewPermissionRegistry: %v", err)
	}
	return r
}

// Scenario 4 : full permission lifecycle.
func TestPermissionLifecycle(t *testing.T) {
	r := newPermissionRegistry(t)
	origin := "https://d.example"

	if err := r.ConnectAccounts(origin, []string{"0xAbC", "0xDEF"}, "1"); err != nil {
		t.Fatalf("ConnectAccounts: %v", err)
	}
	got := r.GetConnectedAccounts(origin)
	want := []string{"0xabc", "0xdef"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("GetConnectedAccounts = %v, want %v", got, want)
	}

	if err := r.AddAccount(origin, "0xAbC", "1"); err != nil {
		t.Fatalf("AddAccount: %v", err)
	}
	if got := r.GetConnectedAccounts(origin); len(got) != 2 {
		t.Fatalf("expected length 2 after duplicate add, got %v", got)
	}

	if err := r.DisconnectAccount(origin, "0xabc"); err != nil {
		t.Fatalf("DisconnectAccount: %v", err)
	}
	if got, want := r.GetConnectedAccounts(origin), []string{"0xdef"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("GetConnectedAccounts = %v, want %v", got, want)
	}

	if err := r.DisconnectAccount(origin, "0xdef"); err != nil {
		t.Fatalf("DisconnectAccount: %v", err)
	}
	if got := r.GetConnectedAccounts(origin); len(got) != 0 {
		t.Fatalf("expected empty after removing last account, got %v", got)
	}
	if perms := r.GetAllPermissions(); len(perms) != 0 {
		t.Fatalf("expected Permission Entry removed, got %v", perms)
	}
}

// Addresses are always lowercased on insertion.
func TestPermissionNormalization(t *testing.T) {
	r := newPermissionRegistry(t)
	if err := r.ConnectAccounts("https://a.example", []string{"0xAAA", "0xBBB"}, "1"); err != nil {
		t.Fatalf("ConnectAccounts: %v", err)
	}
	for _, e := range r.GetAllPermissions() {
		for _, a := range e.ConnectedAccounts {
			if a != toLowerASCII(a) {
				t.Fatalf("found non-lowercase address %q", a)
			}
		}
	}
}

func toLowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func TestPermissionUnknownOriginIsEmptyNotError(t *testing.T) {
	r := newPermissionRegistry(t)
	if got := r.GetConnectedAccounts(""); got != nil {
		t.Fatalf("expected nil for empty origin, got %v", got)
	}
	if got := r.GetConnectedAccounts("https://unknown.example"); got != nil {
		t.Fatalf("expected nil for unknown origin, got %v", got)
	}
	if err := r.UpdateChainId("https://unknown.example", "5"); err != nil {
		t.Fatalf("UpdateChainId on unknown origin should be a no-op, got %v", err)
	}
}

func TestPermissionPersistsAcrossReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "permissions.json")

	r1, err := NewPermissionRegistry(path)
	if err != nil {
		t.Fatalf("NewPermissionRegistry: %v", err)
	}
	if err := r1.ConnectAccounts("https://a.example", []string{"0xAbC"}, "1"); err != nil {
		t.Fatalf("ConnectAccounts: %v", err)
	}

	r2, err := NewPermissionRegistry(path)
	if err != nil {
		t.Fatalf("reload NewPermissionRegistry: %v", err)
	}
	if got := r2.GetConnectedAccounts("https://a.example"); len(got) != 1 || got[0] != "0xabc" {
		t.Fatalf("reloaded registry missing connected account, got %v", got)
	}
}
