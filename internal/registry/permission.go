package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/collider/walletcore/internal/walleterr"
)

// PermissionEntry is the per-origin authorization record.
// connected_accounts is lowercased on insertion and preserves
// insertion order.
type PermissionEntry struct {
	Origin            string    `json:"origin"`
	ConnectedAccounts []string  `json:"connected_accounts"`
	ChainID           string    `json:"chain_id"`
	GrantedAt         time.Time `json:"granted_at"`
}

// PermissionRegistry is the origin-scoped authorization store, sharing
// the mutex-guarded-map-plus-persist idiom used by AccountRegistry.
type PermissionRegistry struct {
	mu sync.Mutex

	path    string
	entries map[string]*PermissionEntry // keyed by origin, exact match
	order   []string
}

type permissionFile struct {
	Entries []PermissionEntry `json:"entries"`
}

// NewPermissionRegistry constructs a registry persisted at path.
func NewPermissionRegistry(path string) (*PermissionRegistry, error) {
	r := &PermissionRegistry{
		path:    path,
		entries: make(map[string]*PermissionEntry),
	}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *PermissionRegistry) load() error {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return walleterr.StorageFailure(err)
	}
	var f permissionFile
	if err := json.Unmarshal(data, &f); err != nil {
		return walleterr.StorageFailure(err)
	}
	for i := range f.Entries {
		e := f.Entries[i]
		r.entries[e.Origin] = &e
		r.order = append(r.order, e.Origin)
	}
	return nil
}

func (r *PermissionRegistry) persist() error {
	f := permissionFile{}
	for _, origin := range r.order {
		f.Entries = append(f.Entries, *r.entries[origin])
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return walleterr.StorageFailure(err)
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0700); err != nil {
		return walleterr.StorageFailure(err)
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return walleterr.StorageFailure(err)
	}
	return os.Rename(tmp, r.path)
}

// ConnectAccounts upserts accounts for origin, merging into the
// existing set. Addresses are lowercased on insertion.
func (r *PermissionRegistry) ConnectAccounts(origin string, accounts []string, chainID string) error {
	if origin == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[origin]
	if !ok {
		entry = &PermissionEntry{Origin: origin, ChainID: chainID, GrantedAt: time.Now()}
		r.entries[origin] = entry
		r.order = append(r.order, origin)
	} else if chainID != "" {
		entry.ChainID = chainID
	}
	for _, a := range accounts {
		appendLowercaseIfAbsent(entry, a)
	}
	return r.persistOrRollback()
}

func appendLowercaseIfAbsent(entry *PermissionEntry, address string) {
	lower := strings.ToLower(address)
	for _, existing := range entry.ConnectedAccounts {
		if existing == lower {
			return
		}
	}
	entry.ConnectedAccounts = append(entry.ConnectedAccounts, lower)
}

// AddAccount connects a single account, equivalent to ConnectAccounts
// with a one-element slice.
func (r *PermissionRegistry) AddAccount(origin, account, chainID string) error {
	return r.ConnectAccounts(origin, []string{account}, chainID)
}

// DisconnectAccount removes one account from origin's connected set.
// Removing the last account removes the Permission Entry entirely.
func (r *PermissionRegistry) DisconnectAccount(origin, account string) error {
	if origin == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[origin]
	if !ok {
		return nil
	}
	lower := strings.ToLower(account)
	for i, existing := range entry.ConnectedAccounts {
		if existing == lower {
			entry.ConnectedAccounts = append(entry.ConnectedAccounts[:i], entry.ConnectedAccounts[i+1:]...)
			break
		}
	}
	if len(entry.ConnectedAccounts) == 0 {
		r.removeOriginLocked(origin)
	}
	return r.persistOrRollback()
}

// DisconnectAccounts removes the entire Permission Entry for origin.
func (r *PermissionRegistry) DisconnectAccounts(origin string) error {
	if origin == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[origin]; !ok {
		return nil
	}
	r.removeOriginLocked(origin)
	return r.persistOrRollback()
}

func (r *PermissionRegistry) removeOriginLocked(origin string) {
	delete(r.entries, origin)
	for i, existing := range r.order {
		if existing == origin {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// GetConnectedAccounts returns the connected, lowercased addresses for
// origin. A missing or empty origin yields an empty slice, never an
// error.
func (r *PermissionRegistry) GetConnectedAccounts(origin string) []string {
	if origin == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[origin]
	if !ok {
		return nil
	}
	out := make([]string, len(entry.ConnectedAccounts))
	copy(out, entry.ConnectedAccounts)
	return out
}

// IsAccountConnected reports whether account is connected for origin.
func (r *PermissionRegistry) IsAccountConnected(origin, account string) bool {
	for _, a := range r.GetConnectedAccounts(origin) {
		if a == strings.ToLower(account) {
			return true
		}
	}
	return false
}

// GetConnectedDApps returns every origin that has account connected.
func (r *PermissionRegistry) GetConnectedDApps(account string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	lower := strings.ToLower(account)
	var out []string
	for _, origin := range r.order {
		for _, a := range r.entries[origin].ConnectedAccounts {
			if a == lower {
				out = append(out, origin)
				break
			}
		}
	}
	return out
}

// GetAllPermissions returns every Permission Entry, in insertion order.
func (r *PermissionRegistry) GetAllPermissions() []PermissionEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]PermissionEntry, 0, len(r.order))
	for _, origin := range r.order {
		out = append(out, *r.entries[origin])
	}
	return out
}

// UpdateChainId updates the chain id recorded for origin. A no-op on
// an unknown origin.
func (r *PermissionRegistry) UpdateChainId(origin, chainID string) error {
	if origin == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[origin]
	if !ok {
		return nil
	}
	entry.ChainID = chainID
	return r.persistOrRollback()
}

// ClearAllPermissions removes every Permission Entry.
func (r *PermissionRegistry) ClearAllPermissions() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = make(map[string]*PermissionEntry)
	r.order = nil
	return r.persistOrRollback()
}

func (r *PermissionRegistry) persistOrRollback() error {
	if err := r.persist(); err != nil {
		return err
	}
	return nil
}
