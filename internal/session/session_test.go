package session

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/collider/walletcore/internal/frost"
	"github.com/collider/walletcore/internal/keystore"
	"github.com/collider/walletcore/internal/walleterr"
)

func newTestStore(t *testing.T) *keystore.Store {
	t.Helper()
	store := keystore.New(filepath.Join(t.TempDir(), "keystore"))
	if err := store.Initialize("device-1"); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := store.Unlock("pw"); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	return store
}

// Threshold and participant-count validation rejects a malformed
// proposal before any session or engine is constructed.
func TestValidateProposalRejectsBadThreshold(t *testing.T) {
	cases := []struct {
		name         string
		total        uint16
		threshold    uint16
		participants []string
	}{
		{"threshold zero", 3, 0, []string{"a", "b", "c"}},
		{"threshold exceeds total", 3, 4, []string{"a", "b", "c"}},
		{"participant count mismatch", 3, 2, []string{"a", "b"}},
		{"duplicate participant", 3, 2, []string{"a", "a", "b"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewDKGSession("s1", "a", "a", tc.total, tc.threshold, tc.participants, frost.CurveSecp256k1)
			werr, ok := err.(*walleterr.Error)
			if !ok || werr.Kind != walleterr.KindInvalidProposal {
				t.Fatalf("expected InvalidProposal, got %v", err)
			}
		})
	}
}

func TestNewDKGSessionRejectsSelfNotInParticipants(t *testing.T) {
	_, err := NewDKGSession("s1", "a", "ghost", 3, 2, []string{"a", "b", "c"}, frost.CurveSecp256k1)
	werr, ok := err.(*walleterr.Error)
	if !ok || werr.Kind != walleterr.KindInvalidProposal {
		t.Fatalf("expected InvalidProposal, got %v", err)
	}
}

func TestDKGAcceptTransitionsToMeshForming(t *testing.T) {
	sess, err := NewDKGSession("s1", "a", "a", 3, 2, []string{"a", "b", "c"}, frost.CurveSecp256k1)
	if err != nil {
		t.Fatalf("NewDKGSession: %v", err)
	}
	if sess.State != DKGProposed {
		t.Fatalf("expected Proposed, got %v", sess.State)
	}

	sess.Accept("a")
	if sess.State != DKGAwaitingAcceptances {
		t.Fatalf("expected AwaitingAcceptances after first accept, got %v", sess.State)
	}

	sess.Accept("b")
	if sess.State != DKGAwaitingAcceptances {
		t.Fatalf("expected still AwaitingAcceptances with one peer outstanding, got %v", sess.State)
	}

	sess.Accept("c")
	if sess.State != DKGMeshForming {
		t.Fatalf("expected MeshForming once everyone accepted, got %v", sess.State)
	}
}

// DKG Round 1 never starts until every peer channel is open AND a
// MeshReady has been received from every peer.
func TestMeshGatesRound1(t *testing.T) {
	sess, err := NewDKGSession("s1", "a", "a", 3, 2, []string{"a", "b", "c"}, frost.CurveSecp256k1)
	if err != nil {
		t.Fatalf("NewDKGSession: %v", err)
	}
	sess.Accept("a")
	sess.Accept("b")
	sess.Accept("c")
	if sess.State != DKGMeshForming {
		t.Fatalf("expected MeshForming, got %v", sess.State)
	}

	if _, ok, err := sess.MaybeEnterRound1(); ok || err != nil {
		t.Fatalf("expected Round1 not to start before mesh is ready, ok=%v err=%v", ok, err)
	}

	mesh := sess.Mesh()
	mesh.ChannelOpened("b")
	mesh.ChannelOpened("c")
	if _, ok, err := sess.MaybeEnterRound1(); ok || err != nil {
		t.Fatalf("expected Round1 not to start with channels open but no MeshReady received, ok=%v err=%v", ok, err)
	}

	mesh.MeshReadyReceived("b")
	if _, ok, err := sess.MaybeEnterRound1(); ok || err != nil {
		t.Fatalf("expected Round1 not to start with only one peer's MeshReady received, ok=%v err=%v", ok, err)
	}

	mesh.MeshReadyReceived("c")
	if !mesh.Ready() {
		t.Fatalf("expected mesh ready once every peer channel is open and MeshReady received")
	}

	// Once the mesh gate opens, MaybeEnterRound1 hands off to the real
	// FROST engine (tss-lib party keygen, which runs on its own
	// goroutine and takes real wall-clock time) — exercised in
	// cmd/walletcore-devnet rather than asserted here precisely to
	// avoid a timing-dependent unit test.
}

func TestMeshReadySentExactlyOnce(t *testing.T) {
	mesh := NewMeshTracker([]string{"b", "c"})
	mesh.LocallyAccepted()
	mesh.ChannelOpened("b")
	if mesh.ShouldSendMeshReady() {
		t.Fatalf("expected no MeshReady before every peer channel is open")
	}
	mesh.ChannelOpened("c")
	if !mesh.ShouldSendMeshReady() {
		t.Fatalf("expected MeshReady once every peer channel is open and locally accepted")
	}
	if mesh.ShouldSendMeshReady() {
		t.Fatalf("expected MeshReady to fire only once")
	}
}

func TestReceiveRound1RejectsSelfAsSender(t *testing.T) {
	sess, err := NewDKGSession("s1", "a", "a", 3, 2, []string{"a", "b", "c"}, frost.CurveSecp256k1)
	if err != nil {
		t.Fatalf("NewDKGSession: %v", err)
	}
	err = sess.ReceiveRound1("a", frost.Round1Package("anything"))
	werr, ok := err.(*walleterr.Error)
	if !ok || werr.Kind != walleterr.KindProtocolViolation {
		t.Fatalf("expected ProtocolViolation for self-sender, got %v", err)
	}
}

func TestReceiveRound1RejectsUnknownSender(t *testing.T) {
	sess, err := NewDKGSession("s1", "a", "a", 3, 2, []string{"a", "b", "c"}, frost.CurveSecp256k1)
	if err != nil {
		t.Fatalf("NewDKGSession: %v", err)
	}
	err = sess.ReceiveRound1("ghost", frost.Round1Package("anything"))
	werr, ok := err.(*walleterr.Error)
	if !ok || werr.Kind != walleterr.KindProtocolViolation {
		t.Fatalf("expected ProtocolViolation for unknown sender, got %v", err)
	}
}

func TestDKGCancelFailsSession(t *testing.T) {
	sess, err := NewDKGSession("s1", "a", "a", 3, 2, []string{"a", "b", "c"}, frost.CurveSecp256k1)
	if err != nil {
		t.Fatalf("NewDKGSession: %v", err)
	}
	if err := sess.Cancel(); err == nil {
		t.Fatalf("expected Cancel to return an error result")
	}
	if sess.State != DKGFailed || sess.Reason != ReasonCancelled {
		t.Fatalf("expected Failed(cancelled), got state=%v reason=%v", sess.State, sess.Reason)
	}
}

// A proposal whose session_id matches an existing wallet, but whose
// parameters don't, fails immediately as a WalletParameterMismatch
// rather than silently becoming a fresh DKG.
func TestDetectIntentWalletParameterMismatch(t *testing.T) {
	store := newTestStore(t)
	participants := []string{"a", "b", "c"}
	if err := store.AddWallet("wallet-1", keystore.KeyShareInput{
		Curve:             string(frost.CurveSecp256k1),
		ParticipantIndex:  1,
		TotalParticipants: 3,
		Threshold:         2,
		Participants:      participants,
		KeyPackage:        []byte("key-package"),
		PublicKeyPackage:  []byte("pub-package"),
		GroupPublicKey:    []byte("group-pub"),
		SessionID:         "wallet-1",
		EthereumAddress:   "0xabc",
		CreatedAt:         time.Now(),
	}, keystore.WalletMetadata{
		ID:             "wallet-1",
		DisplayName:    "wallet-1",
		Blockchain:     "ethereum",
		PrimaryAddress: "0xabc",
		SessionID:      "wallet-1",
		IsActive:       true,
	}); err != nil {
		t.Fatalf("AddWallet: %v", err)
	}

	// Matching parameters: Signing.
	kind, err := DetectIntent(store, "wallet-1", 3, 2, participants)
	if err != nil {
		t.Fatalf("DetectIntent (matching): %v", err)
	}
	if kind != KindSigning {
		t.Fatalf("expected KindSigning for matching parameters, got %v", kind)
	}

	// Mismatched threshold: must fail immediately.
	_, err = DetectIntent(store, "wallet-1", 3, 3, participants)
	werr, ok := err.(*walleterr.Error)
	if !ok || werr.Kind != walleterr.KindWalletParameterMismatch {
		t.Fatalf("expected WalletParameterMismatch, got %v", err)
	}

	// Mismatched participant set.
	_, err = DetectIntent(store, "wallet-1", 3, 2, []string{"a", "b", "d"})
	werr, ok = err.(*walleterr.Error)
	if !ok || werr.Kind != walleterr.KindWalletParameterMismatch {
		t.Fatalf("expected WalletParameterMismatch for participant set change, got %v", err)
	}
}

func TestDetectIntentUnknownSessionIsDKG(t *testing.T) {
	store := newTestStore(t)
	kind, err := DetectIntent(store, "brand-new-session", 3, 2, []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("DetectIntent: %v", err)
	}
	if kind != KindDKG {
		t.Fatalf("expected KindDKG for an unknown session id, got %v", kind)
	}
}

func TestSigningRespondReachesSignerSelectionAtThreshold(t *testing.T) {
	participants := []string{"a", "b", "c"}
	sess, err := NewSigningSession("wallet-1", "a", "a", "wallet-1", 3, 2, participants, "68656c6c6f", frost.CurveSecp256k1)
	if err != nil {
		t.Fatalf("NewSigningSession: %v", err)
	}
	if sess.State != SigningRequested {
		t.Fatalf("expected Requested, got %v", sess.State)
	}

	sess.Respond("a", true)
	if sess.State != SigningAcceptancePhase {
		t.Fatalf("expected AcceptancePhase, got %v", sess.State)
	}

	if _, ok := sess.MaybeSelectSigners(); ok {
		t.Fatalf("expected no selection before threshold acceptances are in")
	}

	sess.Respond("b", true)
	selected, ok := sess.MaybeSelectSigners()
	if !ok {
		t.Fatalf("expected selection once threshold acceptances are in")
	}
	if len(selected) != 2 || selected[0] != "a" {
		t.Fatalf("expected initiator-first selection of size 2, got %v", selected)
	}
	if sess.State != SigningSignerSelection {
		t.Fatalf("expected SignerSelection, got %v", sess.State)
	}
}

func TestSigningReceiveCommitmentRejectsNonSelectedSigner(t *testing.T) {
	participants := []string{"a", "b", "c"}
	sess, err := NewSigningSession("wallet-1", "a", "a", "wallet-1", 3, 2, participants, "68656c6c6f", frost.CurveSecp256k1)
	if err != nil {
		t.Fatalf("NewSigningSession: %v", err)
	}
	sess.ApplySelection([]string{"a", "b"})

	err = sess.ReceiveCommitment("c", frost.Commitment("anything"))
	werr, ok := err.(*walleterr.Error)
	if !ok || werr.Kind != walleterr.KindProtocolViolation {
		t.Fatalf("expected ProtocolViolation for a non-selected signer's commitment, got %v", err)
	}
}

func TestSigningCancelFailsSession(t *testing.T) {
	sess, err := NewSigningSession("wallet-1", "a", "a", "wallet-1", 3, 2, []string{"a", "b", "c"}, "68656c6c6f", frost.CurveSecp256k1)
	if err != nil {
		t.Fatalf("NewSigningSession: %v", err)
	}
	if err := sess.Cancel(); err == nil {
		t.Fatalf("expected Cancel to return an error result")
	}
	if sess.State != SigningFailed || sess.Reason != ReasonCancelled {
		t.Fatalf("expected Failed(cancelled), got state=%v reason=%v", sess.State, sess.Reason)
	}
}

func TestApplyAggregatedSignatureIsIdempotent(t *testing.T) {
	sess, err := NewSigningSession("wallet-1", "a", "a", "wallet-1", 3, 2, []string{"a", "b", "c"}, "68656c6c6f", frost.CurveSecp256k1)
	if err != nil {
		t.Fatalf("NewSigningSession: %v", err)
	}
	sess.ApplyAggregatedSignature()
	sess.ApplyAggregatedSignature()
	if sess.State != SigningComplete {
		t.Fatalf("expected Complete, got %v", sess.State)
	}
}
