// Package walleterr defines the stable error-kind taxonomy shared by the
// session protocol, transport, keystore, and registry packages.
package walleterr

import "fmt"

// Kind is a stable identifier for an error category. Kinds are part of
// the cross-host contract: callers match on Kind, never on Error()
// text, since the text may be localized or reworded by a host.
type Kind string

const (
	KindInvalidProposal         Kind = "InvalidProposal"
	KindWalletParameterMismatch Kind = "WalletParameterMismatch"
	KindKeystoreLocked          Kind = "KeystoreLocked"
	KindWalletNotFound          Kind = "WalletNotFound"
	KindWalletAlreadyExists     Kind = "WalletAlreadyExists"
	KindDecryptionFailed        Kind = "DecryptionFailed"
	KindStorageFailure          Kind = "StorageFailure"
	KindProtocolViolation       Kind = "ProtocolViolation"
	KindTimeout                 Kind = "Timeout"
	KindTransportClosed         Kind = "TransportClosed"
	KindEngineFailure           Kind = "EngineFailure"
	KindCancelled               Kind = "Cancelled"
)

// Error is the structured error type surfaced to callers. It never
// carries key material, password text, salt, or nonce in any field
// that flows into Error().
type Error struct {
	Kind Kind

	// Optional structured context, populated depending on Kind.
	WalletID string
	Peer     string
	Phase    string
	Detail   string
	Expected string
	Actual   string
	Cause    error
}

func (e *Error) Error() string {
	if e.Kind == KindKeystoreLocked {
		return "Keystore is locked"
	}

	switch e.Kind {
	case KindWalletNotFound:
		return fmt.Sprintf("wallet not found: %s", e.WalletID)
	case KindWalletAlreadyExists:
		return fmt.Sprintf("wallet already exists: %s", e.WalletID)
	case KindWalletParameterMismatch:
		return fmt.Sprintf("wallet parameter mismatch: expected %s, got %s", e.Expected, e.Actual)
	case KindProtocolViolation:
		return fmt.Sprintf("protocol violation from %s in phase %s: %s", e.Peer, e.Phase, e.Detail)
	case KindTimeout:
		return fmt.Sprintf("timeout in phase %s", e.Phase)
	case KindTransportClosed:
		return fmt.Sprintf("transport closed for peer %s", e.Peer)
	case KindEngineFailure:
		return fmt.Sprintf("engine failure in %s", e.Detail)
	case KindStorageFailure:
		if e.Cause != nil {
			return fmt.Sprintf("storage failure: %v", e.Cause)
		}
		return "storage failure"
	case KindInvalidProposal:
		return fmt.Sprintf("invalid proposal: %s", e.Detail)
	case KindCancelled:
		return "operation cancelled"
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// Is supports errors.Is(err, &Error{Kind: KindX}) comparisons by Kind
// alone, ignoring the other fields.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func New(kind Kind) *Error { return &Error{Kind: kind} }

func WalletNotFound(walletID string) *Error {
	return &Error{Kind: KindWalletNotFound, WalletID: walletID}
}

func WalletAlreadyExists(walletID string) *Error {
	return &Error{Kind: KindWalletAlreadyExists, WalletID: walletID}
}

func WalletParameterMismatch(expected, actual string) *Error {
	return &Error{Kind: KindWalletParameterMismatch, Expected: expected, Actual: actual}
}

func ProtocolViolation(peer, phase, detail string) *Error {
	return &Error{Kind: KindProtocolViolation, Peer: peer, Phase: phase, Detail: detail}
}

func Timeout(phase string) *Error {
	return &Error{Kind: KindTimeout, Phase: phase}
}

func TransportClosed(peer string) *Error {
	return &Error{Kind: KindTransportClosed, Peer: peer}
}

func EngineFailure(op string, cause error) *Error {
	return &Error{Kind: KindEngineFailure, Detail: op, Cause: cause}
}

func StorageFailure(cause error) *Error {
	return &Error{Kind: KindStorageFailure, Cause: cause}
}

func InvalidProposal(detail string) *Error {
	return &Error{Kind: KindInvalidProposal, Detail: detail}
}

func Cancelled() *Error {
	return &Error{Kind: KindCancelled}
}

func DecryptionFailed(cause error) *Error {
	return &Error{Kind: KindDecryptionFailed, Cause: cause}
}

func KeystoreLocked() *Error {
	return &Error{Kind: KindKeystoreLocked}
}
