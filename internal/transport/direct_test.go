package transport

import (
	"testing"

	"go.uber.org/zap"
)

func TestMessagesQueuedBeforeOpenAreFlushedInOrder(t *testing.T) {
	d := NewDirectChannels(0, zap.NewNop())

	if err := d.Send("peer-1", DirectMessage{WebrtcMsgType: DirectTypeSimpleMessage, Text: "first"}); err != nil {
		t.Fatalf("unexpected error queuing first message: %v", err)
	}
	if err := d.Send("peer-1", DirectMessage{WebrtcMsgType: DirectTypeSimpleMessage, Text: "second"}); err != nil {
		t.Fatalf("unexpected error queuing second message: %v", err)
	}

	d.Open("peer-1")

	inbox := d.Inbox("peer-1")
	first := <-inbox
	second := <-inbox
	if first.Text != "first" || second.Text != "second" {
		t.Fatalf("expected in-order delivery, got %q then %q", first.Text, second.Text)
	}
}

func TestSendAfterCloseFails(t *testing.T) {
	d := NewDirectChannels(0, zap.NewNop())
	d.Open("peer-1")
	d.Closed("peer-1")

	if err := d.Send("peer-1", DirectMessage{WebrtcMsgType: DirectTypeSimpleMessage, Text: "late"}); err == nil {
		t.Fatal("expected an error sending to a closed channel")
	}
}

func TestSendRejectsUnrecognizedMessageType(t *testing.T) {
	d := NewDirectChannels(0, zap.NewNop())
	if err := d.Send("peer-1", DirectMessage{WebrtcMsgType: "NotARealType"}); err == nil {
		t.Fatal("expected ValidateEnvelope to reject an unrecognized message type")
	}
}

func TestCloseSessionFlushesThenCloses(t *testing.T) {
	d := NewDirectChannels(0, zap.NewNop())
	if err := d.Send("peer-1", DirectMessage{WebrtcMsgType: DirectTypeMeshReady, SessionID: "s1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	d.CloseSession("peer-1")

	select {
	case msg := <-d.Inbox("peer-1"):
		if msg.WebrtcMsgType != DirectTypeMeshReady {
			t.Fatalf("expected flushed MeshReady, got %v", msg.WebrtcMsgType)
		}
	default:
		t.Fatal("expected the queued message to have been flushed on session close")
	}

	if err := d.Send("peer-1", DirectMessage{WebrtcMsgType: DirectTypeSimpleMessage}); err == nil {
		t.Fatal("expected sends after CloseSession to fail")
	}
}

func TestValidateEnvelopeRejectsNil(t *testing.T) {
	if ValidateEnvelope(nil) {
		t.Fatal("expected a nil message to be rejected")
	}
}
