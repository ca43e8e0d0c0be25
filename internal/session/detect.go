package session

import (
	"strconv"
	"strings"

	"github.com/collider/walletcore/internal/keystore"
	"github.com/collider/walletcore/internal/walleterr"
)

// Kind distinguishes whether a newly proposed session is a DKG or a
// Signing session.
type Kind int

const (
	KindDKG Kind = iota
	KindSigning
)

// DetectIntent implements the session auto-detection rule: a session
// proposed with session_id = X is Signing over wallet X if a wallet by
// that id (or, per the migration path, by matching display name)
// exists with matching (threshold, total, participants); otherwise it
// is DKG. On a mismatch, the session must fail immediately with
// WalletParameterMismatch before any cryptographic work.
func DetectIntent(store *keystore.Store, sessionID string, total, threshold uint16, participants []string) (Kind, error) {
	wallet, err := store.GetWallet(sessionID)
	if err != nil {
		if walleterrIsNotFound(err) {
			if resolved, ok := resolveByDisplayName(store, sessionID); ok {
				wallet = resolved
			} else {
				return KindDKG, nil
			}
		} else {
			return KindDKG, err
		}
	}

	share, err := store.GetKeyShare(wallet.ID)
	if err != nil {
		// The wallet exists in the index but its share can't be read
		// right now (locked, or storage failure) — surface as-is; the
		// caller decides whether to retry after unlocking.
		return KindSigning, err
	}

	if uint16(share.Threshold) != threshold || uint16(share.TotalParticipants) != total || !sameParticipants(share.Participants, participants) {
		return KindSigning, walleterr.WalletParameterMismatch(
			formatWalletParams(share.Threshold, share.TotalParticipants, share.Participants),
			formatWalletParams(int(threshold), int(total), participants),
		)
	}

	return KindSigning, nil
}

// resolveByDisplayName supports the display-name migration path: older
// wallets may have been indexed before display-name-as-session-id was
// supported, so a session_id that doesn't match any wallet's id is also
// checked against display names before falling back to DKG.
func resolveByDisplayName(store *keystore.Store, sessionID string) (*keystore.WalletMetadata, bool) {
	for _, w := range store.GetWallets() {
		if w.DisplayName == sessionID {
			wCopy := w
			return &wCopy, true
		}
	}
	return nil, false
}

func sameParticipants(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func formatWalletParams(threshold, total int, participants []string) string {
	return "threshold=" + strconv.Itoa(threshold) +
		",total=" + strconv.Itoa(total) +
		",participants=[" + strings.Join(participants, ",") + "]"
}

func walleterrIsNotFound(err error) bool {
	werr, ok := err.(*walleterr.Error)
	return ok && werr.Kind == walleterr.KindWalletNotFound
}
