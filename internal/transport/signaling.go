package transport

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/collider/walletcore/internal/walleterr"
)

// Default reconnect backoff schedule, used when NewSignaling is given
// a zero Duration for either bound (see reconnect_backoff_initial_ms /
// _max_ms, §6.5).
const (
	DefaultReconnectMinBackoff = 500 * time.Millisecond
	DefaultReconnectMaxBackoff = 30 * time.Second
)

// Signaling is the single persistent duplex connection to the
// well-known signaling endpoint. It is shared among all sessions and
// owned by the Transport layer; sessions subscribe to its events but
// never mutate the connection directly.
type Signaling struct {
	url      string
	deviceID string
	logger   *zap.Logger

	minBackoff time.Duration
	maxBackoff time.Duration

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	inbound chan InboundRelay
	devices chan []string
}

// InboundRelay pairs a relay payload with the device id the signaling
// server reported it came from.
type InboundRelay struct {
	From    string
	Payload RelayPayload
}

// NewSignaling constructs a Signaling client. Connect must be called
// before any messages flow. minBackoff/maxBackoff come from
// config.Config's reconnect_backoff_initial_ms/_max_ms; a zero value
// for either falls back to the package default.
func NewSignaling(url, deviceID string, minBackoff, maxBackoff time.Duration, logger *zap.Logger) *Signaling {
	if minBackoff <= 0 {
		minBackoff = DefaultReconnectMinBackoff
	}
	if maxBackoff <= 0 {
		maxBackoff = DefaultReconnectMaxBackoff
	}
	return &Signaling{
		url:        url,
		deviceID:   deviceID,
		logger:     logger,
		minBackoff: minBackoff,
		maxBackoff: maxBackoff,
		inbound:    make(chan InboundRelay, 64),
		devices:    make(chan []string, 8),
	}
}

// Inbound is the stream of relay payloads addressed to this device.
func (s *Signaling) Inbound() <-chan InboundRelay { return s.inbound }

// Devices is the stream of device-list responses.
func (s *Signaling) Devices() <-chan []string { return s.devices }

// Connect dials the signaling endpoint, registers this device, and
// starts the reconnect-on-loss read loop. It returns once the first
// connection attempt succeeds.
func (s *Signaling) Connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(s.url, nil)
	if err != nil {
		return walleterr.TransportClosed(s.url)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	if err := s.register(); err != nil {
		return err
	}

	go s.readLoop()
	return nil
}

func (s *Signaling) register() error {
	return s.send(SignalingMessage{Type: SignalingTypeRegister, DeviceID: s.deviceID})
}

// ListDevices requests the current device list from the signaling
// server; the response arrives on Devices().
func (s *Signaling) ListDevices() error {
	return s.send(SignalingMessage{Type: SignalingTypeListDevices})
}

// Relay sends a payload to a specific peer over the signaling plane.
func (s *Signaling) Relay(to string, payload RelayPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return walleterr.TransportClosed(to)
	}
	return s.send(SignalingMessage{Type: SignalingTypeRelay, To: to, Data: data})
}

func (s *Signaling) send(msg SignalingMessage) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return walleterr.TransportClosed(s.deviceID)
	}
	if err := conn.WriteJSON(msg); err != nil {
		return walleterr.TransportClosed(s.deviceID)
	}
	return nil
}

// readLoop owns the connection's read side. On any read error it
// applies capped exponential backoff and reconnects, re-registering
// and re-requesting the device list. Active sessions are preserved
// across a reconnect; only the signaling connection itself is
// replaced.
func (s *Signaling) readLoop() {
	backoff := s.minBackoff
	for {
		s.mu.Lock()
		conn := s.conn
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return
		}
		if conn == nil {
			time.Sleep(backoff)
			if err := s.reconnect(); err != nil {
				backoff = s.nextBackoff(backoff)
				continue
			}
			backoff = s.minBackoff
			continue
		}

		var msg SignalingMessage
		if err := conn.ReadJSON(&msg); err != nil {
			s.logger.Warn("signaling read failed, reconnecting", zap.Error(err))
			s.mu.Lock()
			s.conn = nil
			s.mu.Unlock()
			continue
		}

		s.dispatch(msg)
	}
}

func (s *Signaling) dispatch(msg SignalingMessage) {
	switch msg.Type {
	case SignalingTypeDevices:
		select {
		case s.devices <- msg.Devices:
		default:
			s.logger.Warn("dropping device list update, channel full")
		}
	case SignalingTypeRelay:
		var payload RelayPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			s.logger.Warn("malformed relay payload", zap.Error(err))
			return
		}
		select {
		case s.inbound <- InboundRelay{From: msg.From, Payload: payload}:
		default:
			s.logger.Warn("dropping inbound relay message, channel full")
		}
	case SignalingTypeError:
		s.logger.Warn("signaling server error", zap.String("error", msg.Error))
	}
}

func (s *Signaling) reconnect() error {
	conn, _, err := websocket.DefaultDialer.Dial(s.url, nil)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	if err := s.register(); err != nil {
		return err
	}
	return s.ListDevices()
}

func (s *Signaling) nextBackoff(cur time.Duration) time.Duration {
	next := cur * 2
	if next > s.maxBackoff {
		return s.maxBackoff
	}
	return next
}

// Close permanently shuts down the signaling connection.
func (s *Signaling) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
