// Command walletcore-devnet is an in-process multi-device harness that
// exercises a full DKG followed by a cooperative signing round, end to
// end, without any real network or UI. It exists to demonstrate
// internal/session.Manager driving internal/frost, internal/transport,
// and internal/keystore together, run as an executable rather than only
// as tests.
//
// It carries no CLI surface beyond flags to pick participant count,
// threshold, and curve: this is a demo/integration driver, not the
// reference CLI.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/collider/walletcore/internal/config"
	"github.com/collider/walletcore/internal/frost"
	"github.com/collider/walletcore/internal/keystore"
	"github.com/collider/walletcore/internal/registry"
	"github.com/collider/walletcore/internal/session"
	"github.com/collider/walletcore/internal/transport"
)

func main() {
	total := flag.Int("total", 3, "total participants")
	threshold := flag.Int("threshold", 2, "signing threshold")
	curveFlag := flag.String("curve", "secp256k1", "ciphersuite: secp256k1 or ed25519")
	dataDir := flag.String("data-dir", "./data/devnet", "directory for per-device keystores")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	configPath := flag.String("config", "", "optional config file (WALLETCORE_ env vars always apply)")
	flag.Parse()

	logger := setupLogger(*logLevel)
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("config load failed", zap.Error(err))
	}

	curve := frost.CurveSecp256k1
	if *curveFlag == "ed25519" {
		curve = frost.CurveEd25519
	}

	net, err := newDevnet(*total, *threshold, curve, *dataDir, cfg, logger)
	if err != nil {
		logger.Fatal("devnet setup failed", zap.Error(err))
	}

	sessionID := uuid.NewString()
	if err := net.runDKG(sessionID); err != nil {
		logger.Fatal("DKG failed", zap.Error(err))
	}

	if err := net.runSigning(sessionID, "68656c6c6f" /* "hello" */); err != nil {
		logger.Fatal("signing failed", zap.Error(err))
	}

	logger.Info("devnet run complete")
}

func setupLogger(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := cfg.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	return logger
}

// device is one simulated participant: its own keystore, account
// registry, direct-channel plane, and Manager.
type device struct {
	id       string
	store    *keystore.Store
	accounts *registry.AccountRegistry
	direct   *transport.DirectChannels
	manager  *session.Manager
}

// devnet wires N devices together with an in-process relay bus
// standing in for the signaling plane (WebSocket signaling server),
// and pre-opens every pairwise direct channel (connection
// establishment is a host responsibility, and this harness is the
// host).
type devnet struct {
	total        int
	threshold    int
	curve        frost.Curve
	participants []string
	devices      map[string]*device
	logger       *zap.Logger
}

func newDevnet(total, threshold int, curve frost.Curve, dataDir string, cfg *config.Config, logger *zap.Logger) (*devnet, error) {
	n := &devnet{
		total:     total,
		threshold: threshold,
		curve:     curve,
		devices:   make(map[string]*device),
		logger:    logger,
	}

	for i := 0; i < total; i++ {
		id := fmt.Sprintf("device-%d", i+1)
		n.participants = append(n.participants, id)

		base := filepath.Join(dataDir, id)
		if err := os.MkdirAll(base, 0700); err != nil {
			return nil, err
		}

		store := keystore.New(filepath.Join(base, "keystore"))
		if err := store.Initialize(id); err != nil {
			return nil, err
		}
		if err := store.Unlock("devnet-password"); err != nil {
			return nil, err
		}

		accounts, err := registry.NewAccountRegistry(filepath.Join(base, "accounts.json"))
		if err != nil {
			return nil, err
		}

		direct := transport.NewDirectChannels(cfg.BufferedMsgLimit, logger)

		n.devices[id] = &device{
			id:       id,
			store:    store,
			accounts: accounts,
			direct:   direct,
		}
	}

	// Every device's Relayer forwards straight into its peers' Manager
	// instances — an in-process stand-in for the signaling server.
	for _, d := range n.devices {
		d := d
		relayer := relayerFunc(func(to string, payload transport.RelayPayload) error {
			peer, ok := n.devices[to]
			if !ok {
				return nil
			}
			return peer.manager.HandleRelay(d.id, payload)
		})
		timeouts := session.Timeouts{
			ProposalAcceptance: cfg.ProposalTimeout,
			DKGRound:           cfg.DKGRoundTimeout,
			SigningRound:       cfg.SigningRoundTimeout,
		}
		d.manager = session.NewManager(d.id, d.store, d.accounts, relayer, d.direct, logger, timeouts)
	}

	// Pre-open every pairwise direct channel. A device's own Send()
	// queues into its local Inbox(peer) slot — the "what I'd ship to
	// peer over a real WebRTC channel" queue; it is not visible to
	// peer until something moves it there. n.wire below plays the
	// network's part: it drains each sender's Inbox(peer) and calls
	// Deliver on the peer's own DirectChannels, landing the message in
	// the peer's Inbox(sender) slot. n.pumpInbox then drains that and
	// hands it to the peer's Manager.
	for _, d := range n.devices {
		for _, peerID := range n.participants {
			if peerID == d.id {
				continue
			}
			d.direct.Open(peerID)
		}
	}
	for _, sender := range n.devices {
		for _, peerID := range n.participants {
			if peerID == sender.id {
				continue
			}
			receiver := n.devices[peerID]
			go n.wire(sender, receiver)
		}
	}
	for _, d := range n.devices {
		go n.pumpInbox(d)
	}

	return n, nil
}

type relayerFunc func(to string, payload transport.RelayPayload) error

func (f relayerFunc) Relay(to string, payload transport.RelayPayload) error { return f(to, payload) }

// wire simulates the physical link from sender to receiver: it drains
// whatever sender queued for receiver and hands it to receiver's own
// DirectChannels as an inbound arrival from sender.
func (n *devnet) wire(sender, receiver *device) {
	for msg := range sender.direct.Inbox(receiver.id) {
		receiver.direct.Deliver(sender.id, msg)
	}
}

// pumpInbox drains, for every peer, the messages d's DirectChannels
// recorded as delivered from that peer and feeds them to d's Manager,
// keyed by the message's own SessionID field.
func (n *devnet) pumpInbox(d *device) {
	for _, peerID := range n.participants {
		if peerID == d.id {
			continue
		}
		peerID := peerID
		go func() {
			for msg := range d.direct.Inbox(peerID) {
				d.manager.HandleDirectMessage(msg.SessionID, msg)
			}
		}()
	}
}

// acceptAllInvites polls until every non-proposer device has accepted
// sessionID's invite, accepting each exactly once as it arrives. A
// device's invite may land on a later tick than a sibling's — the loop
// must keep polling until every non-proposer has accepted, not stop at
// the first one to do so.
func (n *devnet) acceptAllInvites(sessionID, proposerID string) error {
	accepted := make(map[string]bool, len(n.devices)-1)
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		for id, d := range n.devices {
			if id == proposerID || accepted[id] {
				continue
			}
			for _, inv := range d.manager.PendingInvites() {
				if inv.SessionID == sessionID {
					if err := d.manager.AcceptInvite(sessionID); err != nil {
						return err
					}
					accepted[id] = true
				}
			}
		}
		if len(accepted) == len(n.devices)-1 {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return fmt.Errorf("not every participant accepted session %s before deadline", sessionID)
}

func (n *devnet) announceChannelsOpen(sessionID string) {
	for _, d := range n.devices {
		for _, peerID := range n.participants {
			if peerID == d.id {
				continue
			}
			d.manager.ChannelOpened(sessionID, peerID)
		}
	}
}

// runDKG proposes a DKG session from the first participant, has every
// other device accept its invite, announces every pairwise channel as
// open, and polls until every device reaches DKGComplete or a fixed
// 10-second deadline passes.
func (n *devnet) runDKG(sessionID string) error {
	proposer := n.devices[n.participants[0]]
	if err := proposer.manager.Propose(sessionID, uint16(n.total), uint16(n.threshold), n.participants, n.curve, ""); err != nil {
		return err
	}

	if err := n.acceptAllInvites(sessionID, proposer.id); err != nil {
		return err
	}

	n.announceChannelsOpen(sessionID)

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		done := true
		for _, d := range n.devices {
			state, ok := d.manager.DKGSessionState(sessionID)
			if !ok || state != session.DKGComplete {
				done = false
			}
		}
		if done {
			n.logger.Info("DKG complete", zap.String("session_id", sessionID))
			return nil
		}
		time.Sleep(20 * time.Millisecond)
	}
	return fmt.Errorf("DKG did not complete before deadline")
}

// runSigning proposes a signing session over the wallet produced by
// runDKG, accepting on every device (a real deployment may see a mixed
// accept/reject set; this harness keeps it simple and accepts
// everywhere) and polls until signing completes.
func (n *devnet) runSigning(walletID, messageHex string) error {
	proposer := n.devices[n.participants[0]]
	if err := proposer.manager.Propose(walletID, uint16(n.total), uint16(n.threshold), n.participants, n.curve, messageHex); err != nil {
		return err
	}

	if err := n.acceptAllInvites(walletID, proposer.id); err != nil {
		return err
	}

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		anyComplete := false
		for _, d := range n.devices {
			if state, ok := d.manager.SigningSessionState(walletID); ok && state == session.SigningComplete {
				anyComplete = true
			}
		}
		if anyComplete {
			n.logger.Info("signing complete", zap.String("session_id", walletID))
			return nil
		}
		time.Sleep(20 * time.Millisecond)
	}
	return fmt.Errorf("signing did not complete before deadline")
}
