package session

import "sync"

// MeshTracker tracks, per session, channel-open and mesh-ready state.
// It is deliberately decoupled from the owning Session: neither owns
// the other. The Session owns protocol state; the Tracker owns the
// channel/readiness sets.
type MeshTracker struct {
	mu sync.Mutex

	channelOpen       map[string]bool // peer -> open
	meshReadySent     bool
	meshReadyReceived map[string]bool // peer -> received
	peers             []string
	locallyAccepted   bool
}

func NewMeshTracker(peers []string) *MeshTracker {
	return &MeshTracker{
		channelOpen:       make(map[string]bool, len(peers)),
		meshReadyReceived: make(map[string]bool, len(peers)),
		peers:             peers,
	}
}

// ChannelOpened records that the direct channel to peer is open.
func (m *MeshTracker) ChannelOpened(peer string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channelOpen[peer] = true
}

// ChannelClosed records that the direct channel to peer dropped.
func (m *MeshTracker) ChannelClosed(peer string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channelOpen[peer] = false
}

// MeshReadyReceived records an inbound MeshReady from peer. Idempotent.
func (m *MeshTracker) MeshReadyReceived(peer string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meshReadyReceived[peer] = true
}

// LocallyAccepted marks this node as having accepted the session, one
// of the two conditions required before MeshReady is sent.
func (m *MeshTracker) LocallyAccepted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locallyAccepted = true
}

// ShouldSendMeshReady reports whether conditions (i) all peer direct
// channels open and (ii) local acceptance are both met, and this node
// has not already sent MeshReady for this session. Sends exactly once.
func (m *MeshTracker) ShouldSendMeshReady() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.meshReadySent || !m.locallyAccepted {
		return false
	}
	for _, p := range m.peers {
		if !m.channelOpen[p] {
			return false
		}
	}
	m.meshReadySent = true
	return true
}

// Ready reports whether mesh readiness covers all participants: every
// peer's channel is open AND every peer's MeshReady has been received.
// This is the gate on DKG Round 1.
func (m *MeshTracker) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.peers {
		if !m.channelOpen[p] || !m.meshReadyReceived[p] {
			return false
		}
	}
	return true
}
