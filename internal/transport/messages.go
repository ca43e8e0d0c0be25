// Package transport implements two communication planes: a signaling
// plane (a persistent duplex connection to a well-known endpoint, used
// to discover peers and exchange connection descriptors) and a
// direct-channel plane (per-peer application messages). On the
// signaling plane a dedicated goroutine reads the gorilla/websocket
// connection and feeds a channel consumed by the caller; writes are
// made synchronously by the caller. The direct-channel plane is a set
// of buffered Go channels with no goroutine of its own.
package transport

import "encoding/json"

// SignalingMessage is a client<->server message on the signaling plane,
// internally tagged by Type.
type SignalingMessage struct {
	Type     string          `json:"type"`
	DeviceID string          `json:"device_id,omitempty"`
	To       string          `json:"to,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	Devices  []string        `json:"devices,omitempty"`
	From     string          `json:"from,omitempty"`
	Error    string          `json:"error,omitempty"`
}

const (
	SignalingTypeRegister    = "register"
	SignalingTypeListDevices = "list_devices"
	SignalingTypeRelay       = "relay"
	SignalingTypeDevices     = "devices"
	SignalingTypeError       = "error"
)

// RelayPayload is the payload carried inside a relay message, tagged by
// WebsocketMsgType.
type RelayPayload struct {
	WebsocketMsgType string          `json:"websocket_msg_type"`
	SessionID        string          `json:"session_id,omitempty"`
	Total            uint16          `json:"total,omitempty"`
	Threshold        uint16          `json:"threshold,omitempty"`
	Participants     []string        `json:"participants,omitempty"`
	Accepted         bool            `json:"accepted,omitempty"`
	Curve            string          `json:"curve,omitempty"`
	MessageHex       string          `json:"message_hex,omitempty"`
	Signal           json.RawMessage `json:"signal,omitempty"`
	// DetectedWallet is the proposer's auto-detection hint: the
	// initiator populates it so receivers can independently re-verify
	// rather than trusting the proposer's classification. Empty for a
	// proposal the initiator itself detected as DKG.
	DetectedWallet string `json:"detected_wallet,omitempty"`
}

const (
	RelayTypeSessionProposal = "SessionProposal"
	RelayTypeSessionResponse = "SessionResponse"
	RelayTypeWebRTCSignal    = "WebRTCSignal"
)

// DirectMessage is an application-level message exchanged over a direct
// channel, tagged by WebrtcMsgType.
type DirectMessage struct {
	WebrtcMsgType    string          `json:"webrtc_msg_type"`
	DeviceID         string          `json:"device_id,omitempty"`
	SessionID        string          `json:"session_id,omitempty"`
	Text             string          `json:"text,omitempty"`
	Package          string          `json:"package,omitempty"`
	SigningID        string          `json:"signing_id,omitempty"`
	TransactionData  string          `json:"transaction_data,omitempty"`
	RequiredSigners  int             `json:"required_signers,omitempty"`
	Accepted         bool            `json:"accepted,omitempty"`
	SelectedSigners  []string        `json:"selected_signers,omitempty"`
	SenderIdentifier string          `json:"sender_identifier,omitempty"`
	Commitment       string          `json:"commitment,omitempty"`
	Share            string          `json:"share,omitempty"`
	Signature        string          `json:"signature,omitempty"`
	Round            int             `json:"round,omitempty"`
	Requester        string          `json:"requester,omitempty"`
	Raw              json.RawMessage `json:"-"`
}

const (
	DirectTypeChannelOpen         = "ChannelOpen"
	DirectTypeMeshReady           = "MeshReady"
	DirectTypeSimpleMessage       = "SimpleMessage"
	DirectTypeDkgRound1Package    = "DkgRound1Package"
	DirectTypeDkgRound2Package    = "DkgRound2Package"
	DirectTypeSigningRequest      = "SigningRequest"
	DirectTypeSigningAcceptance   = "SigningAcceptance"
	DirectTypeSignerSelection     = "SignerSelection"
	DirectTypeSigningCommitment   = "SigningCommitment"
	DirectTypeSignatureShare      = "SignatureShare"
	DirectTypeAggregatedSignature = "AggregatedSignature"
	DirectTypeDkgPackageRequest   = "DkgPackageRequest"
	DirectTypeDkgPackageResend    = "DkgPackageResend"
)

var validDirectTypes = map[string]bool{
	DirectTypeChannelOpen:         true,
	DirectTypeMeshReady:           true,
	DirectTypeSimpleMessage:       true,
	DirectTypeDkgRound1Package:    true,
	DirectTypeDkgRound2Package:    true,
	DirectTypeSigningRequest:      true,
	DirectTypeSigningAcceptance:   true,
	DirectTypeSignerSelection:     true,
	DirectTypeSigningCommitment:   true,
	DirectTypeSignatureShare:      true,
	DirectTypeAggregatedSignature: true,
	DirectTypeDkgPackageRequest:   true,
	DirectTypeDkgPackageResend:    true,
}

// ValidateEnvelope is the structured-validation layer a real host needs
// at the transport boundary: it rejects direct messages with an
// unrecognized or missing tag before they ever reach the session
// protocol, rather than letting a malformed peer payload propagate into
// state-machine logic.
func ValidateEnvelope(msg *DirectMessage) bool {
	if msg == nil {
		return false
	}
	return validDirectTypes[msg.WebrtcMsgType]
}
