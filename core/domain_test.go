package core

import (
	"encoding/json"
	"testing"
	"time"
)

func TestRecipientStatusListPreservesOrder(t *testing.T) {
	payload := []byte(`{"zed":"sent","alpha":"delivered","mike":"read"}`)
	var list RecipientStatusList
	if err := json.Unmarshal(payload, &list); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	wantOrder := []string{"zed", "alpha", "mike"}
	got := list.UserIDs()
	if len(got) != len(wantOrder) {
		t.Fatalf("unexpected length: %d", len(got))
	}
	for i, id := range wantOrder {
		if got[i] != id {
			t.Fatalf("position %d: got %q want %q", i, got[i], id)
		}
	}

	encoded, err := json.Marshal(list)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(encoded) != string(payload) {
		t.Fatalf("round trip reordered entries: %s", encoded)
	}
}

func TestRecipientStatusListRejectsUnknownStatus(t *testing.T) {
	var list RecipientStatusList
	if err := json.Unmarshal([]byte(`{"a":"vanished"}`), &list); err == nil {
		t.Fatalf("expected error for unknown status")
	}
	if err := json.Unmarshal([]byte(`["a","b"]`), &list); err == nil {
		t.Fatalf("expected error for non-object payload")
	}
}

func TestParticipantIsService(t *testing.T) {
	if !(Participant{Name: "Broadcast Bot"}).IsService() {
		t.Fatalf("named participant without user id is a service")
	}
	if (Participant{UserID: "u1", Name: "Ana"}).IsService() {
		t.Fatalf("participant with a user id is never a service")
	}
	if (Participant{}).IsService() {
		t.Fatalf("empty participant is not a service")
	}
}

func TestDecodeEventMessageShape(t *testing.T) {
	body := []byte(`{
		"event": {"type": "message.sent", "created_at": "2026-04-09T16:00:00Z"},
		"message": {
			"id": "msg-1",
			"sender": {"user_id": "u-send"},
			"recipient_status": {"u-a": "sent", "u-b": "delivered"},
			"parts": [{"body": "hi", "mime_type": "text/plain"}],
			"extra_field": {"untouched": true}
		},
		"config": {"name": "orders:receipts"}
	}`)
	event, err := DecodeEvent(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if event.Type != EventMessageSent {
		t.Fatalf("unexpected type: %q", event.Type)
	}
	if event.TargetName != "orders:receipts" {
		t.Fatalf("unexpected target name: %q", event.TargetName)
	}
	if event.Message == nil || event.Message.ID != "msg-1" {
		t.Fatalf("message not decoded: %+v", event.Message)
	}
	if status, ok := event.Message.Recipients.Get("u-b"); !ok || status != StatusDelivered {
		t.Fatalf("recipient status lost: %v %v", status, ok)
	}
	if len(event.Message.Raw) == 0 {
		t.Fatalf("raw payload should be retained")
	}
	// Fields the engine does not model must survive via Raw.
	var raw map[string]any
	if err := json.Unmarshal(event.Message.Raw, &raw); err != nil {
		t.Fatalf("raw decode: %v", err)
	}
	if _, ok := raw["extra_field"]; !ok {
		t.Fatalf("extra fields dropped from raw payload")
	}
}

func TestDecodeEventConversationShape(t *testing.T) {
	body := []byte(`{
		"event": {"type": "conversation.created", "created_at": 1744214400000},
		"conversation": {"id": "conv-1", "participants": ["a", "b"]}
	}`)
	event, err := DecodeEvent(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !event.Type.IsConversationEvent() {
		t.Fatalf("expected conversation event")
	}
	if event.Message != nil {
		t.Fatalf("conversation event should carry no message")
	}
	if event.Conversation == nil || event.Conversation.ID != "conv-1" {
		t.Fatalf("conversation not decoded: %+v", event.Conversation)
	}
	want := time.UnixMilli(1744214400000).UTC()
	if !event.CreatedAt.Equal(want) {
		t.Fatalf("unix millis timestamp: got %v want %v", event.CreatedAt, want)
	}
}

func TestDecodeEventRejectsBadPayloads(t *testing.T) {
	for _, body := range []string{
		`not json`,
		`{"event": {"created_at": "2026-04-09T16:00:00Z"}}`,
		`{"event": {"type": "message.sent", "created_at": "yesterday"}}`,
	} {
		if _, err := DecodeEvent([]byte(body)); err == nil {
			t.Fatalf("expected decode error for %s", body)
		}
	}
}

func TestMessageSnapshotRoundTripKeepsRawVerbatim(t *testing.T) {
	original := []byte(`{"id":"m1","sender":{"user_id":"u"},"recipient_status":{"r1":"sent"},"vendor_tag":"x"}`)
	var snapshot MessageSnapshot
	if err := json.Unmarshal(original, &snapshot); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	encoded, err := json.Marshal(snapshot)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(encoded) != string(original) {
		t.Fatalf("snapshot payload rewritten:\n got %s\nwant %s", encoded, original)
	}
}

func TestSnapshotKeyLayout(t *testing.T) {
	if got := SnapshotKey(DefaultSnapshotKeyPrefix, "orders", "msg-1"); got != "receipts-orders-msg-1" {
		t.Fatalf("unexpected key: %q", got)
	}
}
