package session

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/collider/walletcore/internal/frost"
	"github.com/collider/walletcore/internal/keystore"
	"github.com/collider/walletcore/internal/registry"
	"github.com/collider/walletcore/internal/transport"
	"github.com/collider/walletcore/internal/walleterr"
)

// inviteTTL bounds the Session Invite inbox: an invite older than this
// is pruned from PendingInvites rather than answered.
const inviteTTL = 5 * time.Minute

// Timeouts holds the per-phase deadlines.
type Timeouts struct {
	ProposalAcceptance time.Duration
	DKGRound           time.Duration
	SigningRound       time.Duration
}

// DefaultTimeouts mirrors stated defaults.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		ProposalAcceptance: DefaultProposalAcceptanceTimeout,
		DKGRound:           DefaultDKGRoundTimeout,
		SigningRound:       DefaultSigningRoundTimeout,
	}
}

// SessionInvite is a pending proposal that includes this device but
// was not proposed by it, kept in a time-bounded inbox.
type SessionInvite struct {
	SessionID    string
	Kind         Kind
	ProposerID   string
	Total        uint16
	Threshold    uint16
	Participants []string
	Curve        frost.Curve
	MessageHex   string // non-empty only for a detected Signing invite
	ReceivedAt   time.Time
}

func (inv SessionInvite) expired(now time.Time) bool {
	return now.Sub(inv.ReceivedAt) > inviteTTL
}

// Relayer is the signaling-plane capability the Manager needs: send a
// payload to a specific peer. *transport.Signaling satisfies this; a
// devnet/test harness can supply an in-process implementation instead
// of a real WebSocket connection.
type Relayer interface {
	Relay(to string, payload transport.RelayPayload) error
}

// Manager is the single process-wide Session Protocol authority: an
// explicit init/teardown service rather than a global. Its mutex guards
// the maps of live DKG and Signing sessions and is released once a
// session is looked up; each session's own mutex linearizes that
// session's state transitions. It is the one component that reaches
// across transport, the FROST engine wrapper, and the keystore.
type Manager struct {
	mu sync.Mutex

	selfID    string
	store     *keystore.Store
	accounts  *registry.AccountRegistry
	signaling Relayer
	direct    *transport.DirectChannels
	logger    *zap.Logger
	timeouts  Timeouts

	dkgSessions     map[string]*DKGSession
	signingSessions map[string]*SigningSession
	invites         map[string]*SessionInvite

	closed chan struct{}
}

// NewManager constructs a Manager for selfID. accounts may be nil if
// the host does not maintain an Account Registry.
func NewManager(selfID string, store *keystore.Store, accounts *registry.AccountRegistry, signaling Relayer, direct *transport.DirectChannels, logger *zap.Logger, timeouts Timeouts) *Manager {
	return &Manager{
		selfID:          selfID,
		store:           store,
		accounts:        accounts,
		signaling:       signaling,
		direct:          direct,
		logger:          logger,
		timeouts:        timeouts,
		dkgSessions:     make(map[string]*DKGSession),
		signingSessions: make(map[string]*SigningSession),
		invites:         make(map[string]*SessionInvite),
		closed:          make(chan struct{}),
	}
}

// Teardown stops background timeout watchers. Safe to call once.
func (m *Manager) Teardown() {
	close(m.closed)
}

func (m *Manager) broadcastRelay(participants []string, payload transport.RelayPayload) {
	for _, p := range participants {
		if p == m.selfID {
			continue
		}
		if m.signaling != nil {
			m.signaling.Relay(p, payload)
		}
	}
}

func (m *Manager) broadcastDirect(participants []string, msg transport.DirectMessage) {
	for _, p := range participants {
		if p == m.selfID {
			continue
		}
		if m.direct != nil {
			if err := m.direct.Send(p, msg); err != nil && m.logger != nil {
				m.logger.Warn("direct send failed", zap.String("peer", p), zap.String("type", msg.WebrtcMsgType), zap.Error(err))
			}
		}
	}
}

// Propose implements the local propose() call: validates and
// auto-detects DKG vs Signing, constructs the matching session, and
// broadcasts SessionProposal to every other participant.
func (m *Manager) Propose(sessionID string, total, threshold uint16, participants []string, curve frost.Curve, messageHex string) error {
	if err := validateProposal(total, threshold, participants); err != nil {
		return err
	}

	kind, err := DetectIntent(m.store, sessionID, total, threshold, participants)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch kind {
	case KindDKG:
		sess, err := NewDKGSession(sessionID, m.selfID, m.selfID, total, threshold, participants, curve)
		if err != nil {
			return err
		}
		m.dkgSessions[sessionID] = sess
		sess.Accept(m.selfID)
		m.maybeSendMeshReady(sessionID, sess)
		m.watchDKGTimeout(sessionID)
	case KindSigning:
		sess, err := m.newSigningFromWallet(sessionID, m.selfID, total, threshold, participants, messageHex, curve)
		if err != nil {
			return err
		}
		m.signingSessions[sessionID] = sess
		sess.Respond(m.selfID, true)
		m.watchSigningTimeout(sessionID)
	}

	detectedWallet := ""
	if kind == KindSigning {
		detectedWallet = sessionID
	}
	m.broadcastRelay(participants, transport.RelayPayload{
		WebsocketMsgType: transport.RelayTypeSessionProposal,
		SessionID:        sessionID,
		Total:            total,
		Threshold:        threshold,
		Participants:     participants,
		Curve:            string(curve),
		MessageHex:       messageHex,
		DetectedWallet:   detectedWallet,
	})
	return nil
}

// newSigningFromWallet loads the wallet's key share into a fresh
// signing engine before the session can drive any round.
func (m *Manager) newSigningFromWallet(sessionID, initiatorID string, total, threshold uint16, participants []string, messageHex string, curve frost.Curve) (*SigningSession, error) {
	share, err := m.store.GetKeyShare(sessionID)
	if err != nil {
		return nil, err
	}
	sess, err := NewSigningSession(sessionID, initiatorID, m.selfID, sessionID, total, threshold, participants, messageHex, curve)
	if err != nil {
		return nil, err
	}
	if err := sess.engine.ImportKeystore(share.KeyPackage); err != nil {
		return nil, walleterr.EngineFailure("import_keystore", err)
	}
	return sess, nil
}

// HandleRelay processes an inbound signaling relay payload from from.
func (m *Manager) HandleRelay(from string, payload transport.RelayPayload) error {
	switch payload.WebsocketMsgType {
	case transport.RelayTypeSessionProposal:
		return m.handleSessionProposal(from, payload)
	case transport.RelayTypeSessionResponse:
		return m.handleSessionResponse(from, payload)
	case transport.RelayTypeWebRTCSignal:
		// Connection-establishment descriptors are the embedding host's
		// responsibility; the session protocol never inspects
		// Offer/Answer/Candidate bodies.
		return nil
	default:
		if m.logger != nil {
			m.logger.Warn("unrecognized relay payload", zap.String("from", from), zap.String("type", payload.WebsocketMsgType))
		}
		return nil
	}
}

func (m *Manager) handleSessionProposal(from string, payload transport.RelayPayload) error {
	if from == m.selfID {
		return nil
	}

	kind, err := DetectIntent(m.store, payload.SessionID, payload.Total, payload.Threshold, payload.Participants)
	if werr, ok := err.(*walleterr.Error); ok && werr.Kind == walleterr.KindWalletParameterMismatch {
		// Fail immediately, before any cryptographic work.
		return err
	} else if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.invites[payload.SessionID] = &SessionInvite{
		SessionID:    payload.SessionID,
		Kind:         kind,
		ProposerID:   from,
		Total:        payload.Total,
		Threshold:    payload.Threshold,
		Participants: payload.Participants,
		Curve:        frost.Curve(payload.Curve),
		MessageHex:   payload.MessageHex,
		ReceivedAt:   time.Now(),
	}
	return nil
}

func (m *Manager) handleSessionResponse(from string, payload transport.RelayPayload) error {
	m.mu.Lock()
	dkgSess, isDKG := m.dkgSessions[payload.SessionID]
	signSess, isSigning := m.signingSessions[payload.SessionID]
	m.mu.Unlock()

	switch {
	case isDKG:
		if payload.Accepted {
			dkgSess.Accept(from)
			m.maybeSendMeshReady(payload.SessionID, dkgSess)
		}
	case isSigning:
		signSess.Respond(from, payload.Accepted)
		m.maybeSelectSigners(payload.SessionID, signSess)
	}
	return nil
}

// PendingInvites returns unexpired Session Invites, oldest first.
func (m *Manager) PendingInvites() []SessionInvite {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	out := make([]SessionInvite, 0, len(m.invites))
	for id, inv := range m.invites {
		if inv.expired(now) {
			delete(m.invites, id)
			continue
		}
		out = append(out, *inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.Before(out[j].ReceivedAt) })
	return out
}

// AcceptInvite answers a pending invite affirmatively: it independently
// re-verifies intent, builds the matching session, and broadcasts
// SessionResponse{accepted:true} to every other participant.
func (m *Manager) AcceptInvite(sessionID string) error {
	m.mu.Lock()
	inv, ok := m.invites[sessionID]
	if ok {
		delete(m.invites, sessionID)
	}
	m.mu.Unlock()
	if !ok {
		return walleterr.InvalidProposal("no pending invite for session " + sessionID)
	}

	kind, err := DetectIntent(m.store, inv.SessionID, inv.Total, inv.Threshold, inv.Participants)
	if err != nil {
		return err
	}

	m.mu.Lock()
	switch kind {
	case KindDKG:
		sess, err := NewDKGSession(inv.SessionID, inv.ProposerID, m.selfID, inv.Total, inv.Threshold, inv.Participants, inv.Curve)
		if err != nil {
			m.mu.Unlock()
			return err
		}
		m.dkgSessions[inv.SessionID] = sess
		// The proposal itself is the proposer's acceptance; a receiving
		// node treats the proposer as already accepted without waiting
		// on a separate SessionResponse that will never arrive for them.
		sess.Accept(inv.ProposerID)
		sess.Accept(m.selfID)
		m.maybeSendMeshReady(inv.SessionID, sess)
		m.watchDKGTimeout(inv.SessionID)
	case KindSigning:
		sess, err := m.newSigningFromWallet(inv.SessionID, inv.ProposerID, inv.Total, inv.Threshold, inv.Participants, inv.MessageHex, inv.Curve)
		if err != nil {
			m.mu.Unlock()
			return err
		}
		m.signingSessions[inv.SessionID] = sess
		sess.Respond(inv.ProposerID, true)
		sess.Respond(m.selfID, true)
		m.watchSigningTimeout(inv.SessionID)
		m.maybeSelectSigners(inv.SessionID, sess)
	}
	m.mu.Unlock()

	m.broadcastRelay(inv.Participants, transport.RelayPayload{
		WebsocketMsgType: transport.RelayTypeSessionResponse,
		SessionID:        sessionID,
		Accepted:         true,
	})
	return nil
}

// RejectInvite answers a pending invite negatively; no session is
// created on this node.
func (m *Manager) RejectInvite(sessionID string) error {
	m.mu.Lock()
	inv, ok := m.invites[sessionID]
	if ok {
		delete(m.invites, sessionID)
	}
	m.mu.Unlock()
	if !ok {
		return walleterr.InvalidProposal("no pending invite for session " + sessionID)
	}

	m.broadcastRelay(inv.Participants, transport.RelayPayload{
		WebsocketMsgType: transport.RelayTypeSessionResponse,
		SessionID:        sessionID,
		Accepted:         false,
	})
	return nil
}

// ChannelOpened notifies the Mesh Tracker of sessionID that the direct
// channel to peer is open , and sends MeshReady once both
// halves of the gate are satisfied.
func (m *Manager) ChannelOpened(sessionID, peer string) {
	m.mu.Lock()
	sess, ok := m.dkgSessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return
	}

	sess.Mesh().ChannelOpened(peer)
	m.maybeSendMeshReady(sessionID, sess)
	m.maybeEnterRound1(sessionID, sess)
}

// maybeSendMeshReady re-evaluates the MeshReady gate (all peer channels
// open AND local acceptance) and broadcasts it the one time both
// halves become true. Arrival order of the two halves is not fixed —
// a node may finish accepting before or after its channels finish
// opening — so this is called from both the channel-open path and
// every place local acceptance completes, not just one of them.
func (m *Manager) maybeSendMeshReady(sessionID string, sess *DKGSession) {
	if sess.Mesh().ShouldSendMeshReady() {
		m.broadcastDirect(sess.Participants, transport.DirectMessage{
			WebrtcMsgType: transport.DirectTypeMeshReady,
			SessionID:     sessionID,
			DeviceID:      m.selfID,
		})
	}
}

// ChannelClosed notifies the Mesh Tracker that the direct channel to
// peer dropped.
func (m *Manager) ChannelClosed(sessionID, peer string) {
	m.mu.Lock()
	sess, ok := m.dkgSessions[sessionID]
	m.mu.Unlock()
	if ok {
		sess.Mesh().ChannelClosed(peer)
	}
}

// HandleDirectMessage dispatches one inbound direct-channel message for
// sessionID. Malformed or unrecognized envelopes are logged and
// dropped, never fatal to the session.
func (m *Manager) HandleDirectMessage(sessionID string, msg transport.DirectMessage) {
	if !transport.ValidateEnvelope(&msg) {
		if m.logger != nil {
			m.logger.Warn("dropping invalid direct message", zap.String("session_id", sessionID))
		}
		return
	}

	m.mu.Lock()
	dkgSess, isDKG := m.dkgSessions[sessionID]
	signSess, isSigning := m.signingSessions[sessionID]
	m.mu.Unlock()

	switch {
	case isDKG:
		m.handleDKGDirectMessage(sessionID, dkgSess, msg)
	case isSigning:
		m.handleSigningDirectMessage(sessionID, signSess, msg)
	default:
		if m.logger != nil {
			m.logger.Warn("direct message for unknown session", zap.String("session_id", sessionID))
		}
	}
}

func (m *Manager) handleDKGDirectMessage(sessionID string, sess *DKGSession, msg transport.DirectMessage) {
	switch msg.WebrtcMsgType {
	case transport.DirectTypeMeshReady:
		sess.Mesh().MeshReadyReceived(msg.DeviceID)
		m.maybeEnterRound1(sessionID, sess)
	case transport.DirectTypeDkgRound1Package:
		if err := sess.ReceiveRound1(msg.DeviceID, frost.Round1Package(msg.Package)); err != nil && m.logger != nil {
			m.logger.Info("round1 package rejected", zap.String("peer", msg.DeviceID), zap.Error(err))
		}
		m.maybeEnterRound2(sessionID, sess)
	case transport.DirectTypeDkgRound2Package:
		if err := sess.ReceiveRound2(msg.DeviceID, msg.Package); err != nil && m.logger != nil {
			m.logger.Info("round2 package rejected", zap.String("peer", msg.DeviceID), zap.Error(err))
		}
		m.maybeFinalizeDKG(sessionID, sess)
	case transport.DirectTypeDkgPackageRequest, transport.DirectTypeDkgPackageResend, transport.DirectTypeSimpleMessage:
		// Resend/diagnostic plumbing is a host-driven retry aid layered
		// on top of this state machine; no core state transition here.
	}
}

func (m *Manager) maybeEnterRound1(sessionID string, sess *DKGSession) {
	pkg, ok, err := sess.MaybeEnterRound1()
	if err != nil {
		m.logFailure(sessionID, err)
		return
	}
	if !ok {
		return
	}
	m.broadcastDirect(sess.Participants, transport.DirectMessage{
		WebrtcMsgType: transport.DirectTypeDkgRound1Package,
		SessionID:     sessionID,
		DeviceID:      m.selfID,
		Package:       string(pkg),
	})
}

func (m *Manager) maybeEnterRound2(sessionID string, sess *DKGSession) {
	pkgs, ok, err := sess.MaybeEnterRound2()
	if err != nil {
		m.logFailure(sessionID, err)
		return
	}
	if !ok {
		return
	}
	for _, peer := range otherPeers(sess.Participants, m.selfID) {
		idx, _ := indexOf(sess.Participants, peer)
		recipientHex := frost.IdentifierHex(sess.Curve, idx+1)
		pkg, ok := pkgs[recipientHex]
		if !ok {
			continue
		}
		if m.direct != nil {
			if err := m.direct.Send(peer, transport.DirectMessage{
				WebrtcMsgType: transport.DirectTypeDkgRound2Package,
				SessionID:     sessionID,
				DeviceID:      m.selfID,
				Package:       pkg,
			}); err != nil && m.logger != nil {
				m.logger.Warn("round2 send failed", zap.String("peer", peer), zap.Error(err))
			}
		}
	}
}

func (m *Manager) maybeFinalizeDKG(sessionID string, sess *DKGSession) {
	result, ok, err := sess.MaybeFinalize()
	if err != nil {
		m.logFailure(sessionID, err)
		return
	}
	if !ok {
		return
	}

	eth, _ := sess.engine.EthereumAddress()
	sol, _ := sess.engine.SolanaAddress()

	input := keystore.KeyShareInput{
		Curve:             string(sess.Curve),
		ParticipantIndex:  int(sess.selfIndex),
		TotalParticipants: int(sess.Total),
		Threshold:         int(sess.Threshold),
		Participants:      sess.Participants,
		KeyPackage:        result.KeyPackage,
		PublicKeyPackage:  result.PublicKeyPackage,
		GroupPublicKey:    result.GroupVerifyingKey,
		SessionID:         sessionID,
		EthereumAddress:   eth,
		SolanaAddress:     sol,
		CreatedAt:         time.Now(),
	}

	primaryAddress := eth
	blockchain := "ethereum"
	if primaryAddress == "" {
		primaryAddress = sol
		blockchain = "solana"
	}

	meta := keystore.WalletMetadata{
		DisplayName:    sessionID,
		Blockchain:     blockchain,
		PrimaryAddress: primaryAddress,
		SessionID:      sessionID,
		IsActive:       true,
	}

	if err := m.store.AddWallet(sessionID, input, meta); err != nil {
		m.logFailure(sessionID, err)
		return
	}

	if m.accounts != nil {
		_ = m.accounts.AddAccount(registry.Account{
			ID:          sessionID,
			Address:     primaryAddress,
			DisplayName: sessionID,
			Blockchain:  blockchain,
			PublicKey:   fmt.Sprintf("%x", result.GroupVerifyingKey),
		})
	}
}

func (m *Manager) handleSigningDirectMessage(sessionID string, sess *SigningSession, msg transport.DirectMessage) {
	switch msg.WebrtcMsgType {
	case transport.DirectTypeSigningAcceptance:
		sess.Respond(msg.DeviceID, msg.Accepted)
		m.maybeSelectSigners(sessionID, sess)
	case transport.DirectTypeSignerSelection:
		sess.ApplySelection(msg.SelectedSigners)
		m.maybeCommit(sessionID, sess)
	case transport.DirectTypeSigningCommitment:
		if err := sess.ReceiveCommitment(msg.SenderIdentifier, frost.Commitment(msg.Commitment)); err != nil && m.logger != nil {
			m.logger.Info("commitment rejected", zap.String("peer", msg.SenderIdentifier), zap.Error(err))
		}
		m.maybeProduceShare(sessionID, sess)
	case transport.DirectTypeSignatureShare:
		if err := sess.ReceiveShare(msg.SenderIdentifier, frost.SignatureShare(msg.Share)); err != nil && m.logger != nil {
			m.logger.Info("share rejected", zap.String("peer", msg.SenderIdentifier), zap.Error(err))
		}
		m.maybeAggregate(sessionID, sess)
	case transport.DirectTypeAggregatedSignature:
		sess.ApplyAggregatedSignature()
	case transport.DirectTypeSigningRequest:
		// The signaling-plane SessionProposal is what actually creates a
		// Signing session on every node (see handleSessionProposal); a
		// direct-channel SigningRequest is diagnostic/host plumbing with
		// no additional state transition here.
	}
}

func (m *Manager) maybeSelectSigners(sessionID string, sess *SigningSession) {
	selected, ok := sess.MaybeSelectSigners()
	if !ok {
		return
	}
	m.broadcastDirect(sess.Participants, transport.DirectMessage{
		WebrtcMsgType:   transport.DirectTypeSignerSelection,
		SessionID:       sessionID,
		SelectedSigners: selected,
	})
	m.maybeCommit(sessionID, sess)
}

func (m *Manager) maybeCommit(sessionID string, sess *SigningSession) {
	commitment, ok, err := sess.MaybeCommit()
	if err != nil {
		m.logFailure(sessionID, err)
		return
	}
	if !ok {
		return
	}
	m.broadcastDirect(sess.selectedSigners, transport.DirectMessage{
		WebrtcMsgType:    transport.DirectTypeSigningCommitment,
		SessionID:        sessionID,
		SenderIdentifier: m.selfID,
		Commitment:       string(commitment),
	})
}

func (m *Manager) maybeProduceShare(sessionID string, sess *SigningSession) {
	share, ok, err := sess.MaybeProduceShare()
	if err != nil {
		m.logFailure(sessionID, err)
		return
	}
	if !ok {
		return
	}
	m.broadcastDirect(sess.selectedSigners, transport.DirectMessage{
		WebrtcMsgType:    transport.DirectTypeSignatureShare,
		SessionID:        sessionID,
		SenderIdentifier: m.selfID,
		Share:            string(share),
	})
}

func (m *Manager) maybeAggregate(sessionID string, sess *SigningSession) {
	sig, ok, err := sess.MaybeAggregate()
	if err != nil {
		m.logFailure(sessionID, err)
		return
	}
	if !ok {
		return
	}
	m.broadcastDirect(sess.selectedSigners, transport.DirectMessage{
		WebrtcMsgType: transport.DirectTypeAggregatedSignature,
		SessionID:     sessionID,
		Signature:     fmt.Sprintf("%x", sig),
	})
}

func (m *Manager) logFailure(sessionID string, err error) {
	if m.logger != nil {
		m.logger.Warn("session failed", zap.String("session_id", sessionID), zap.Error(err))
	}
}

// CancelDKG cancels a live DKG session: closes its direct channels and
// leaves no partial keystore entry.
func (m *Manager) CancelDKG(sessionID string) error {
	m.mu.Lock()
	sess, ok := m.dkgSessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return walleterr.InvalidProposal("unknown session " + sessionID)
	}
	err := sess.Cancel()
	for _, p := range otherPeers(sess.Participants, m.selfID) {
		if m.direct != nil {
			m.direct.CloseSession(p)
		}
	}
	return err
}

// CancelSigning cancels a live Signing session, same semantics as
// CancelDKG.
func (m *Manager) CancelSigning(sessionID string) error {
	m.mu.Lock()
	sess, ok := m.signingSessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return walleterr.InvalidProposal("unknown session " + sessionID)
	}
	err := sess.Cancel()
	for _, p := range otherPeers(sess.Participants, m.selfID) {
		if m.direct != nil {
			m.direct.CloseSession(p)
		}
	}
	return err
}

// watchDKGTimeout runs two deadlines for sessionID. When the
// ProposalAcceptance deadline elapses, a session still in Proposed or
// AwaitingAcceptances fails with timeout_proposal. Otherwise a single
// DKGRound deadline starts at that moment, and any session not yet
// Complete or Failed when it elapses fails with timeout_dkg_round. The
// DKGRound deadline is not restarted per round: it covers mesh forming,
// both rounds and finalization together.
func (m *Manager) watchDKGTimeout(sessionID string) {
	go func() {
		timer := time.NewTimer(m.timeouts.ProposalAcceptance)
		defer timer.Stop()
		select {
		case <-m.closed:
			return
		case <-timer.C:
		}

		m.mu.Lock()
		sess, ok := m.dkgSessions[sessionID]
		m.mu.Unlock()
		if !ok {
			return
		}
		sess.mu.Lock()
		state := sess.State
		sess.mu.Unlock()
		if state == DKGProposed || state == DKGAwaitingAcceptances {
			sess.mu.Lock()
			_ = sess.fail(ReasonTimeoutProposal)
			sess.mu.Unlock()
			return
		}

		roundTimer := time.NewTimer(m.timeouts.DKGRound)
		defer roundTimer.Stop()
		select {
		case <-m.closed:
			return
		case <-roundTimer.C:
		}
		sess.mu.Lock()
		defer sess.mu.Unlock()
		switch sess.State {
		case DKGComplete, DKGFailed:
		default:
			_ = sess.fail(ReasonTimeoutDKGRound)
		}
	}()
}

func (m *Manager) watchSigningTimeout(sessionID string) {
	go func() {
		timer := time.NewTimer(m.timeouts.SigningRound)
		defer timer.Stop()
		select {
		case <-m.closed:
			return
		case <-timer.C:
		}

		m.mu.Lock()
		sess, ok := m.signingSessions[sessionID]
		m.mu.Unlock()
		if !ok {
			return
		}
		sess.mu.Lock()
		defer sess.mu.Unlock()
		switch sess.State {
		case SigningComplete, SigningFailed:
		default:
			_ = sess.fail(ReasonTimeoutSigningRound)
		}
	}()
}

// DKGSessionState returns the current state of a live DKG session, for
// host introspection (e.g. a CLI progress display).
func (m *Manager) DKGSessionState(sessionID string) (DKGState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.dkgSessions[sessionID]
	if !ok {
		return DKGIdle, false
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.State, true
}

// SigningSessionState returns the current state of a live Signing
// session, for host introspection.
func (m *Manager) SigningSessionState(sessionID string) (SigningState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.signingSessions[sessionID]
	if !ok {
		return SigningIdle, false
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.State, true
}
