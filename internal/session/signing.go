package session

import (
	"sort"
	"sync"
	"time"

	"github.com/collider/walletcore/internal/frost"
	"github.com/collider/walletcore/internal/walleterr"
)

// SigningSession drives one cooperative signing session over a
// wallet's existing key share, from Requested through Complete or
// Failed.
type SigningSession struct {
	mu sync.Mutex

	SessionID    string
	InitiatorID  string
	SelfID       string
	WalletID     string
	Total        uint16
	Threshold    uint16
	Participants []string // full wallet participant set
	MessageHex   string
	Curve        frost.Curve

	State  SigningState
	Reason FailureReason

	accepted        map[string]bool
	rejected        map[string]bool
	selectedSigners []string // initiator first, then ascending participant_index order

	engine frost.Engine

	selfIndex           uint16
	commitmentsReceived map[string]bool
	sharesReceived      map[string]bool
	aggregated          bool

	StartedAt time.Time
}

func NewSigningSession(sessionID, initiatorID, selfID, walletID string, total, threshold uint16, participants []string, messageHex string, curve frost.Curve) (*SigningSession, error) {
	if err := validateProposal(total, threshold, participants); err != nil {
		return nil, err
	}
	selfIndex, ok := indexOf(participants, selfID)
	if !ok {
		return nil, walleterr.InvalidProposal("self not present in participants")
	}
	engine, err := frost.NewEngine(curve)
	if err != nil {
		return nil, err
	}

	return &SigningSession{
		SessionID:           sessionID,
		InitiatorID:         initiatorID,
		SelfID:              selfID,
		WalletID:            walletID,
		Total:               total,
		Threshold:           threshold,
		Participants:        participants,
		MessageHex:          messageHex,
		Curve:               curve,
		State:               SigningRequested,
		accepted:            make(map[string]bool),
		rejected:            make(map[string]bool),
		engine:              engine,
		selfIndex:           selfIndex + 1,
		commitmentsReceived: make(map[string]bool),
		sharesReceived:      make(map[string]bool),
		StartedAt:           time.Now(),
	}, nil
}

// Respond records an acceptance or rejection response and transitions
// Requested -> AcceptancePhase. The move on to SignerSelection is made
// by MaybeSelectSigners.
func (s *SigningSession) Respond(peer string, accept bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if accept {
		s.accepted[peer] = true
	} else {
		s.rejected[peer] = true
	}
	if s.State == SigningRequested {
		s.State = SigningAcceptancePhase
	}
}

// MaybeSelectSigners transitions AcceptancePhase -> SignerSelection
// once enough acceptances are in. It returns false on every node other
// than the initiator; the selection policy is initiator-first, then ascending participant_index
// order among the remaining accepting participants.
func (s *SigningSession) MaybeSelectSigners() ([]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State != SigningAcceptancePhase {
		return nil, false
	}
	if s.SelfID != s.InitiatorID {
		return nil, false
	}
	if len(s.accepted) < int(s.Threshold) {
		return nil, false
	}

	selected := []string{s.InitiatorID}
	var rest []string
	for p := range s.accepted {
		if p == s.InitiatorID {
			continue
		}
		rest = append(rest, p)
	}
	sort.Slice(rest, func(i, j int) bool {
		ii, _ := indexOf(s.Participants, rest[i])
		jj, _ := indexOf(s.Participants, rest[j])
		return ii < jj
	})
	for _, p := range rest {
		if len(selected) >= int(s.Threshold) {
			break
		}
		selected = append(selected, p)
	}

	s.selectedSigners = selected
	s.State = SigningSignerSelection
	return selected, true
}

// ApplySelection is called on non-initiator nodes when a
// SignerSelection message arrives.
func (s *SigningSession) ApplySelection(selected []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State != SigningAcceptancePhase && s.State != SigningRequested {
		return
	}
	s.selectedSigners = selected
	s.State = SigningSignerSelection
}

func (s *SigningSession) isSelected(id string) bool {
	for _, p := range s.selectedSigners {
		if p == id {
			return true
		}
	}
	return false
}

// MaybeCommit transitions SignerSelection -> CommitmentPhase for a
// selected signer, generating and returning its FROST commitment.
// Non-selected participants observe but never contribute.
func (s *SigningSession) MaybeCommit() (frost.Commitment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State != SigningSignerSelection || !s.isSelected(s.SelfID) {
		return "", false, nil
	}

	signerIndices := make([]uint16, 0, len(s.selectedSigners))
	for _, p := range s.selectedSigners {
		idx, _ := indexOf(s.Participants, p)
		signerIndices = append(signerIndices, idx+1)
	}
	if err := s.engine.InitSigning(s.selfIndex, s.Total, signerIndices, s.MessageHex); err != nil {
		return "", false, s.fail(ReasonEngineFailure)
	}
	commitment, err := s.engine.SigningCommit()
	if err != nil {
		return "", false, s.fail(ReasonEngineFailure)
	}
	s.State = SigningCommitmentPhase
	return commitment, true, nil
}

// ReceiveCommitment applies an inbound commitment from another
// selected signer.
func (s *SigningSession) ReceiveCommitment(sender string, c frost.Commitment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isSelected(sender) {
		return walleterr.ProtocolViolation(sender, s.State.String(), "commitment from non-selected signer")
	}
	senderIndex, _ := indexOf(s.Participants, sender)
	if err := s.engine.AddCommitment(senderIndex+1, c); err != nil {
		return walleterr.ProtocolViolation(sender, s.State.String(), "rejected commitment")
	}
	s.commitmentsReceived[sender] = true
	return nil
}

func (s *SigningSession) allCommitmentsReceived() bool {
	for _, p := range s.selectedSigners {
		if p == s.SelfID {
			continue
		}
		if !s.commitmentsReceived[p] {
			return false
		}
	}
	return true
}

// MaybeProduceShare transitions CommitmentPhase -> SharePhase once all
// other selected signers' commitments have arrived.
func (s *SigningSession) MaybeProduceShare() (frost.SignatureShare, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State != SigningCommitmentPhase || !s.allCommitmentsReceived() {
		return "", false, nil
	}
	share, err := s.engine.Sign()
	if err != nil {
		return "", false, s.fail(ReasonEngineFailure)
	}
	s.State = SigningSharePhase
	return share, true, nil
}

// ReceiveShare applies an inbound signature share from another
// selected signer.
func (s *SigningSession) ReceiveShare(sender string, share frost.SignatureShare) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isSelected(sender) {
		return walleterr.ProtocolViolation(sender, s.State.String(), "share from non-selected signer")
	}
	senderIndex, _ := indexOf(s.Participants, sender)
	if err := s.engine.AddSignatureShare(senderIndex+1, share); err != nil {
		return walleterr.ProtocolViolation(sender, s.State.String(), "rejected signature share")
	}
	s.sharesReceived[sender] = true
	return nil
}

func (s *SigningSession) allSharesReceived() bool {
	for _, p := range s.selectedSigners {
		if p == s.SelfID {
			continue
		}
		if !s.sharesReceived[p] {
			return false
		}
	}
	return true
}

// MaybeAggregate transitions SharePhase -> AggregationPhase -> Complete.
// Any selected signer with all shares may aggregate; duplicate
// aggregations are idempotent.
func (s *SigningSession) MaybeAggregate() ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.aggregated {
		return nil, false, nil
	}
	if s.State != SigningSharePhase || !s.allSharesReceived() {
		return nil, false, nil
	}
	s.State = SigningAggregationPhase
	if !s.engine.CanAggregate() {
		s.State = SigningSharePhase
		return nil, false, nil
	}
	sig, err := s.engine.AggregateSignature()
	if err != nil {
		return nil, false, s.fail(ReasonEngineFailure)
	}
	s.aggregated = true
	s.State = SigningComplete
	return sig, true, nil
}

// ApplyAggregatedSignature records a signature broadcast by another
// aggregator; idempotent.
func (s *SigningSession) ApplyAggregatedSignature() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.aggregated {
		return
	}
	s.aggregated = true
	s.State = SigningComplete
}

func (s *SigningSession) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fail(ReasonCancelled)
}

func (s *SigningSession) fail(reason FailureReason) error {
	s.State = SigningFailed
	s.Reason = reason
	switch reason {
	case ReasonCancelled:
		return walleterr.Cancelled()
	case ReasonEngineFailure:
		return walleterr.EngineFailure(s.SessionID, nil)
	default:
		return walleterr.ProtocolViolation("", s.State.String(), string(reason))
	}
}
