package transport

import (
	"sync"

	"go.uber.org/zap"

	"github.com/collider/walletcore/internal/walleterr"
)

// DefaultBufferedWindow is the fallback for NewDirectChannels when
// given a non-positive limit; see buffered_msg_limit, §6.5.
const DefaultBufferedWindow = 256

// channelState mirrors the lifecycle a real WebRTC data channel goes
// through; this layer never negotiates the channel itself (offer/
// answer/candidate exchange is a host responsibility) — it only reacts
// to "channel opened for peer X" / "inbound message from peer X"
// events the host reports.
type channelState int

const (
	channelPending channelState = iota
	channelOpen
	channelClosed
)

type peerChannel struct {
	state   channelState
	queue   []DirectMessage
	inbox   chan DirectMessage
}

// DirectChannels manages the per-peer direct-channel plane: messages
// from a given sender to a given receiver are delivered in send order;
// there is no ordering guarantee across senders.
type DirectChannels struct {
	mu            sync.Mutex
	logger        *zap.Logger
	bufferedLimit int
	peers         map[string]*peerChannel
}

// NewDirectChannels constructs a DirectChannels plane. bufferedLimit
// comes from config.Config's buffered_msg_limit; a non-positive value
// falls back to DefaultBufferedWindow.
func NewDirectChannels(bufferedLimit int, logger *zap.Logger) *DirectChannels {
	if bufferedLimit <= 0 {
		bufferedLimit = DefaultBufferedWindow
	}
	return &DirectChannels{
		logger:        logger,
		bufferedLimit: bufferedLimit,
		peers:         make(map[string]*peerChannel),
	}
}

func (d *DirectChannels) peerFor(peer string) *peerChannel {
	pc, ok := d.peers[peer]
	if !ok {
		pc = &peerChannel{inbox: make(chan DirectMessage, d.bufferedLimit)}
		d.peers[peer] = pc
	}
	return pc
}

// Open marks a peer's channel open and flushes any messages queued
// while it was pending.
func (d *DirectChannels) Open(peer string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	pc := d.peerFor(peer)
	pc.state = channelOpen
	for _, msg := range pc.queue {
		d.deliverLocked(pc, msg)
	}
	pc.queue = nil
}

// Closed marks a peer's channel closed; pending outbound messages are
// discarded and reported via the returned count.
func (d *DirectChannels) Closed(peer string) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	pc := d.peerFor(peer)
	pc.state = channelClosed
	dropped := len(pc.queue)
	pc.queue = nil
	return dropped
}

// Send delivers msg to peer if its channel is open; otherwise it is
// queued up to the bounded window and discarded with a warning beyond
// that.
func (d *DirectChannels) Send(peer string, msg DirectMessage) error {
	if !ValidateEnvelope(&msg) {
		return walleterr.ProtocolViolation(peer, "transport", "unrecognized direct message type")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	pc := d.peerFor(peer)
	switch pc.state {
	case channelOpen:
		d.deliverLocked(pc, msg)
		return nil
	case channelClosed:
		return walleterr.TransportClosed(peer)
	default:
		if len(pc.queue) >= d.bufferedLimit {
			d.logger.Warn("direct channel buffer full, discarding message",
				zap.String("peer", peer), zap.String("type", msg.WebrtcMsgType))
			return walleterr.TransportClosed(peer)
		}
		pc.queue = append(pc.queue, msg)
		return nil
	}
}

func (d *DirectChannels) deliverLocked(pc *peerChannel, msg DirectMessage) {
	select {
	case pc.inbox <- msg:
	default:
		d.logger.Warn("direct channel inbox full, dropping message", zap.String("type", msg.WebrtcMsgType))
	}
}

// Inbox returns the channel of messages received from peer.
func (d *DirectChannels) Inbox(peer string) <-chan DirectMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.peerFor(peer).inbox
}

// Deliver is called by the host when an inbound message arrives from
// peer over its (host-managed) direct channel.
func (d *DirectChannels) Deliver(peer string, msg DirectMessage) {
	d.mu.Lock()
	pc := d.peerFor(peer)
	d.mu.Unlock()

	select {
	case pc.inbox <- msg:
	default:
		d.logger.Warn("direct channel inbox full, dropping inbound message", zap.String("peer", peer))
	}
}

// CloseSession flushes queued outbound messages for peer then closes
// its channel: cancellation closes direct channels for the session
// after flushing.
func (d *DirectChannels) CloseSession(peer string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	pc := d.peerFor(peer)
	for _, msg := range pc.queue {
		d.deliverLocked(pc, msg)
	}
	pc.queue = nil
	pc.state = channelClosed
}
