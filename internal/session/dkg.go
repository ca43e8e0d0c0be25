package session

import (
	"sync"
	"time"

	"github.com/collider/walletcore/internal/frost"
	"github.com/collider/walletcore/internal/walleterr"
)

// DKGSession drives one Distributed Key Generation session from
// Proposed through Complete or Failed. It never touches the
// signaling/direct-channel wire types directly — the owning Manager
// feeds it events and consumes its outbound intents, keeping this
// type pure state-machine logic, testable without any transport.
type DKGSession struct {
	mu sync.Mutex

	SessionID    string
	ProposerID   string
	SelfID       string
	Total        uint16
	Threshold    uint16
	Participants []string // ordered, includes proposer
	Curve        frost.Curve

	State  DKGState
	Reason FailureReason

	accepted map[string]bool
	mesh     *MeshTracker
	engine   frost.Engine

	selfIndex uint16
	// round1Sent guards the "own package added exactly once" rule: the
	// engine learns its own package only through generate_round1, never
	// through add_round1_package.
	round1Sent bool

	round1PeersReceived map[string]bool
	round2PeersReceived map[string]bool

	violationsBySender map[string]int

	StartedAt time.Time
}

// NewDKGSession validates the proposal (threshold/total/participant
// invariants) and constructs a fresh session in state Proposed.
func NewDKGSession(sessionID, proposerID, selfID string, total, threshold uint16, participants []string, curve frost.Curve) (*DKGSession, error) {
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

	return &DKGSession{
		SessionID:           sessionID,
		ProposerID:          proposerID,
		SelfID:              selfID,
		Total:               total,
		Threshold:           threshold,
		Participants:        participants,
		Curve:               curve,
		State:               DKGProposed,
		accepted:            make(map[string]bool),
		mesh:                NewMeshTracker(otherPeers(participants, selfID)),
		engine:              engine,
		selfIndex:           selfIndex + 1, // 1-based
		round1PeersReceived: make(map[string]bool),
		round2PeersReceived: make(map[string]bool),
		violationsBySender:  make(map[string]int),
		StartedAt:           time.Now(),
	}, nil
}

func validateProposal(total, threshold uint16, participants []string) error {
	if threshold < 1 || threshold > total {
		return walleterr.InvalidProposal("threshold must satisfy 1 <= threshold <= total")
	}
	if int(total) != len(participants) {
		return walleterr.InvalidProposal("participants length must equal total")
	}
	seen := make(map[string]bool, len(participants))
	for _, p := range participants {
		if seen[p] {
			return walleterr.InvalidProposal("participants must be unique")
		}
		seen[p] = true
	}
	return nil
}

func indexOf(participants []string, id string) (uint16, bool) {
	for i, p := range participants {
		if p == id {
			return uint16(i), true
		}
	}
	return 0, false
}

func otherPeers(participants []string, self string) []string {
	out := make([]string, 0, len(participants)-1)
	for _, p := range participants {
		if p != self {
			out = append(out, p)
		}
	}
	return out
}

// Accept records the proposer's own acceptance or an inbound
// SessionResponse, and advances AwaitingAcceptances -> MeshForming
// once every participant has accepted.
func (d *DKGSession) Accept(peer string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.accepted[peer] = true
	if d.State == DKGProposed {
		d.State = DKGAwaitingAcceptances
	}
	if d.allAccepted() {
		d.mesh.LocallyAccepted()
		if d.State == DKGAwaitingAcceptances {
			d.State = DKGMeshForming
		}
	}
}

func (d *DKGSession) allAccepted() bool {
	for _, p := range d.Participants {
		if !d.accepted[p] {
			return false
		}
	}
	return true
}

// Mesh exposes the session's MeshTracker so the Manager can feed it
// channel-open and MeshReady events.
func (d *DKGSession) Mesh() *MeshTracker { return d.mesh }

// MaybeEnterRound1 transitions MeshForming -> Round1InProgress once
// mesh readiness is established, and generates this node's own Round 1
// package exactly once. Returns the package to broadcast, or ("", false)
// if not yet ready.
func (d *DKGSession) MaybeEnterRound1() (frost.Round1Package, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.State != DKGMeshForming || !d.mesh.Ready() {
		return "", false, nil
	}
	if d.round1Sent {
		return "", false, nil
	}

	if err := d.engine.InitDKG(d.selfIndex, d.Total, d.Threshold); err != nil {
		return "", false, d.fail(ReasonEngineFailure)
	}
	pkg, err := d.engine.GenerateRound1()
	if err != nil {
		return "", false, d.fail(ReasonEngineFailure)
	}
	d.round1Sent = true
	d.State = DKGRound1InProgress
	return pkg, true, nil
}

// ReceiveRound1 applies an inbound Round 1 package from sender. It
// never accepts a package claiming to be from this node, enforced
// defensively here in addition to the engine's own check.
func (d *DKGSession) ReceiveRound1(sender string, pkg frost.Round1Package) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if sender == d.SelfID {
		return walleterr.ProtocolViolation(sender, d.State.String(), "peer claimed to be self")
	}
	senderIndex, ok := indexOf(d.Participants, sender)
	if !ok {
		return walleterr.ProtocolViolation(sender, d.State.String(), "unknown sender")
	}

	if err := d.engine.AddRound1Package(senderIndex+1, pkg); err != nil {
		return d.recordViolation(sender)
	}
	d.round1PeersReceived[sender] = true

	if d.allRound1Received() && d.State == DKGRound1InProgress {
		d.State = DKGRound1Complete
	}
	return nil
}

func (d *DKGSession) allRound1Received() bool {
	for _, p := range d.Participants {
		if p == d.SelfID {
			continue
		}
		if !d.round1PeersReceived[p] {
			return false
		}
	}
	return true
}

// MaybeEnterRound2 transitions Round1Complete -> Round2InProgress and
// returns the per-recipient package map to send.
func (d *DKGSession) MaybeEnterRound2() (frost.Round2PackageMap, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.State != DKGRound1Complete {
		return nil, false, nil
	}
	if !d.engine.CanStartRound2() {
		return nil, false, nil
	}

	pkgs, err := d.engine.GenerateRound2()
	if err != nil {
		return nil, false, d.fail(ReasonEngineFailure)
	}
	d.State = DKGRound2InProgress
	return pkgs, true, nil
}

// ReceiveRound2 applies an inbound Round 2 package addressed to this
// node from sender.
func (d *DKGSession) ReceiveRound2(sender, pkg string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	senderIndex, ok := indexOf(d.Participants, sender)
	if !ok {
		return walleterr.ProtocolViolation(sender, d.State.String(), "unknown sender")
	}
	if err := d.engine.AddRound2Package(senderIndex+1, pkg); err != nil {
		return d.recordViolation(sender)
	}
	d.round2PeersReceived[sender] = true

	if d.allRound2Received() && d.State == DKGRound2InProgress {
		d.State = DKGRound2Complete
	}
	return nil
}

func (d *DKGSession) allRound2Received() bool {
	for _, p := range d.Participants {
		if p == d.SelfID {
			continue
		}
		if !d.round2PeersReceived[p] {
			return false
		}
	}
	return true
}

// MaybeFinalize transitions Round2Complete -> Finalizing -> Complete,
// returning the finalized DKG artifact.
func (d *DKGSession) MaybeFinalize() (*frost.DKGResult, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.State != DKGRound2Complete {
		return nil, false, nil
	}
	d.State = DKGFinalizing
	if !d.engine.CanFinalize() {
		d.State = DKGRound2Complete
		return nil, false, nil
	}
	result, err := d.engine.FinalizeDKG()
	if err != nil {
		return nil, false, d.fail(ReasonEngineFailure)
	}
	d.State = DKGComplete
	return result, true, nil
}

func (d *DKGSession) recordViolation(sender string) error {
	d.violationsBySender[sender]++
	if d.violationsBySender[sender] >= 2 {
		return d.fail(ReasonSenderProtocolViolation)
	}
	return walleterr.ProtocolViolation(sender, d.State.String(), "malformed or rejected package")
}

// Cancel transitions the session to Failed(cancelled). The session's
// MeshTracker is left as it is.
func (d *DKGSession) Cancel() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fail(ReasonCancelled)
}

func (d *DKGSession) fail(reason FailureReason) error {
	d.State = DKGFailed
	d.Reason = reason
	switch reason {
	case ReasonCancelled:
		return walleterr.Cancelled()
	case ReasonEngineFailure:
		return walleterr.EngineFailure(d.SessionID, nil)
	default:
		return walleterr.ProtocolViolation("", d.State.String(), string(reason))
	}
}
