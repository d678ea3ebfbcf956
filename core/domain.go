package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type EventType string

const (
	EventMessageSent      EventType = "message.sent"
	EventMessageDelivered EventType = "message.delivered"
	EventMessageRead      EventType = "message.read"
	EventMessageDeleted   EventType = "message.deleted"
)

const conversationEventPrefix = "conversation."

func (t EventType) IsMessageEvent() bool {
	switch t {
	case EventMessageSent, EventMessageDelivered, EventMessageRead, EventMessageDeleted:
		return true
	default:
		return false
	}
}

func (t EventType) IsConversationEvent() bool {
	return strings.HasPrefix(string(t), conversationEventPrefix)
}

// Status is a recipient's last-known position in the delivery lifecycle.
type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
)

func ParseStatus(value string) (Status, error) {
	switch Status(strings.TrimSpace(strings.ToLower(value))) {
	case StatusSent:
		return StatusSent, nil
	case StatusDelivered:
		return StatusDelivered, nil
	case StatusRead:
		return StatusRead, nil
	default:
		return "", fmt.Errorf("core: unknown recipient status %q", value)
	}
}

// StatusSet is an unordered membership set, not an ordered threshold:
// {sent, delivered} means "anyone who has not yet read".
type StatusSet map[Status]struct{}

func NewStatusSet(statuses ...Status) StatusSet {
	set := make(StatusSet, len(statuses))
	for _, status := range statuses {
		set[status] = struct{}{}
	}
	return set
}

func ParseStatusSet(values []string) (StatusSet, error) {
	set := make(StatusSet, len(values))
	for _, value := range values {
		status, err := ParseStatus(value)
		if err != nil {
			return nil, err
		}
		set[status] = struct{}{}
	}
	return set, nil
}

func (s StatusSet) Contains(status Status) bool {
	if len(s) == 0 {
		return false
	}
	_, ok := s[status]
	return ok
}

func (s StatusSet) Values() []Status {
	out := make([]Status, 0, len(s))
	for _, candidate := range []Status{StatusSent, StatusDelivered, StatusRead} {
		if s.Contains(candidate) {
			out = append(out, candidate)
		}
	}
	return out
}

// Participant identifies a message sender. Platform-operated services
// carry a Name and no UserID; human senders carry a UserID.
type Participant struct {
	UserID string `json:"user_id,omitempty"`
	Name   string `json:"name,omitempty"`
}

func (p Participant) IsService() bool {
	return strings.TrimSpace(p.UserID) == "" && strings.TrimSpace(p.Name) != ""
}

type RecipientState struct {
	UserID string
	Status Status
}

// RecipientStatusList preserves the insertion order of the platform's
// recipient_status object. Go maps shuffle iteration order, and the
// evaluator must report recipients in stored order, so the JSON codec
// walks the object token by token.
type RecipientStatusList []RecipientState

func (l RecipientStatusList) Get(userID string) (Status, bool) {
	for _, entry := range l {
		if entry.UserID == userID {
			return entry.Status, true
		}
	}
	return "", false
}

func (l *RecipientStatusList) Set(userID string, status Status) {
	if l == nil {
		return
	}
	for i, entry := range *l {
		if entry.UserID == userID {
			(*l)[i].Status = status
			return
		}
	}
	*l = append(*l, RecipientState{UserID: userID, Status: status})
}

func (l RecipientStatusList) UserIDs() []string {
	out := make([]string, 0, len(l))
	for _, entry := range l {
		out = append(out, entry.UserID)
	}
	return out
}

func (l RecipientStatusList) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, entry := range l {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(entry.UserID)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		value, err := json.Marshal(string(entry.Status))
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (l *RecipientStatusList) UnmarshalJSON(data []byte) error {
	if l == nil {
		return fmt.Errorf("core: recipient status list is nil")
	}
	decoder := json.NewDecoder(bytes.NewReader(data))
	token, err := decoder.Token()
	if err != nil {
		return fmt.Errorf("core: decode recipient status: %w", err)
	}
	if token == nil {
		*l = nil
		return nil
	}
	if delim, ok := token.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("core: recipient status must be a JSON object")
	}
	out := RecipientStatusList{}
	for decoder.More() {
		keyToken, err := decoder.Token()
		if err != nil {
			return fmt.Errorf("core: decode recipient status key: %w", err)
		}
		key, ok := keyToken.(string)
		if !ok {
			return fmt.Errorf("core: recipient status key must be a string")
		}
		var raw string
		if err := decoder.Decode(&raw); err != nil {
			return fmt.Errorf("core: decode recipient status value for %q: %w", key, err)
		}
		status, err := ParseStatus(raw)
		if err != nil {
			return err
		}
		out = append(out, RecipientState{UserID: key, Status: status})
	}
	if _, err := decoder.Token(); err != nil {
		return fmt.Errorf("core: decode recipient status close: %w", err)
	}
	*l = out
	return nil
}

type MessagePart struct {
	Body     string `json:"body,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// MessageSnapshot is the last-known full record of a message. Raw keeps
// the platform payload verbatim; downstream consumers receive it
// untouched, and fields the engine does not inspect survive the
// store-and-replay round trip.
type MessageSnapshot struct {
	ID         string
	Sender     Participant
	Recipients RecipientStatusList
	Parts      []MessagePart
	Raw        json.RawMessage
}

type messageSnapshotWire struct {
	ID         string              `json:"id"`
	Sender     Participant         `json:"sender"`
	Recipients RecipientStatusList `json:"recipient_status"`
	Parts      []MessagePart       `json:"parts,omitempty"`
}

func (s MessageSnapshot) MarshalJSON() ([]byte, error) {
	if len(s.Raw) > 0 {
		return append(json.RawMessage(nil), s.Raw...), nil
	}
	return json.Marshal(messageSnapshotWire{
		ID:         s.ID,
		Sender:     s.Sender,
		Recipients: s.Recipients,
		Parts:      s.Parts,
	})
}

func (s *MessageSnapshot) UnmarshalJSON(data []byte) error {
	if s == nil {
		return fmt.Errorf("core: message snapshot is nil")
	}
	wire := messageSnapshotWire{}
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("core: decode message snapshot: %w", err)
	}
	s.ID = strings.TrimSpace(wire.ID)
	s.Sender = wire.Sender
	s.Recipients = wire.Recipients
	s.Parts = wire.Parts
	s.Raw = append(json.RawMessage(nil), data...)
	return nil
}

type Conversation struct {
	ID           string          `json:"id"`
	Participants []string        `json:"participants,omitempty"`
	Raw          json.RawMessage `json:"-"`
}

// Event is a decoded inbound webhook delivery.
type Event struct {
	Type         EventType
	CreatedAt    time.Time
	Message      *MessageSnapshot
	Conversation *Conversation
	// TargetName is the webhook configuration name the platform
	// addressed, used to detect stale registrations.
	TargetName string
}

type eventWire struct {
	Event struct {
		Type      string          `json:"type"`
		CreatedAt json.RawMessage `json:"created_at"`
	} `json:"event"`
	Message      json.RawMessage `json:"message"`
	Conversation json.RawMessage `json:"conversation"`
	Config       struct {
		Name string `json:"name"`
	} `json:"config"`
}

// DecodeEvent parses the platform delivery body
// {event:{type,created_at}, message?, conversation?, config:{name}}.
func DecodeEvent(body []byte) (Event, error) {
	wire := eventWire{}
	if err := json.Unmarshal(body, &wire); err != nil {
		return Event{}, fmt.Errorf("core: decode event payload: %w", err)
	}
	eventType := EventType(strings.TrimSpace(wire.Event.Type))
	if eventType == "" {
		return Event{}, fmt.Errorf("core: event type is required")
	}
	createdAt, err := parseEventTimestamp(wire.Event.CreatedAt)
	if err != nil {
		return Event{}, err
	}

	out := Event{
		Type:       eventType,
		CreatedAt:  createdAt,
		TargetName: strings.TrimSpace(wire.Config.Name),
	}
	if len(wire.Message) > 0 && !bytes.Equal(bytes.TrimSpace(wire.Message), []byte("null")) {
		message := &MessageSnapshot{}
		if err := json.Unmarshal(wire.Message, message); err != nil {
			return Event{}, err
		}
		out.Message = message
	}
	if len(wire.Conversation) > 0 && !bytes.Equal(bytes.TrimSpace(wire.Conversation), []byte("null")) {
		conversation := &Conversation{}
		if err := json.Unmarshal(wire.Conversation, conversation); err != nil {
			return Event{}, fmt.Errorf("core: decode conversation: %w", err)
		}
		conversation.Raw = append(json.RawMessage(nil), wire.Conversation...)
		out.Conversation = conversation
	}
	return out, nil
}

// parseEventTimestamp accepts RFC3339 strings and unix millisecond
// numbers; the platform has shipped both shapes.
func parseEventTimestamp(raw json.RawMessage) (time.Time, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return time.Time{}, nil
	}
	if trimmed[0] == '"' {
		var value string
		if err := json.Unmarshal(trimmed, &value); err != nil {
			return time.Time{}, fmt.Errorf("core: decode event created_at: %w", err)
		}
		parsed, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(value))
		if err != nil {
			return time.Time{}, fmt.Errorf("core: parse event created_at %q: %w", value, err)
		}
		return parsed.UTC(), nil
	}
	millis, err := strconv.ParseInt(string(trimmed), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("core: parse event created_at %q: %w", trimmed, err)
	}
	return time.UnixMilli(millis).UTC(), nil
}

// IdentityRecord is a resolved user identity attached to notifications.
type IdentityRecord struct {
	UserID      string         `json:"user_id"`
	DisplayName string         `json:"display_name,omitempty"`
	Email       string         `json:"email,omitempty"`
	AvatarURL   string         `json:"avatar_url,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// NotificationJob is the consolidated downstream payload, published at
// most once per (hook, message) per delay window under the original
// hook name.
type NotificationJob struct {
	Hook       string                     `json:"hook"`
	Message    MessageSnapshot            `json:"message"`
	Recipients []string                   `json:"recipients"`
	Identities map[string]*IdentityRecord `json:"identities"`
}

// DefaultSnapshotKeyPrefix is the fixed key namespace for stored
// message snapshots.
const DefaultSnapshotKeyPrefix = "receipts"

// SnapshotKey renders the persisted key layout
// <prefix>-<hookName>-<messageId>.
func SnapshotKey(prefix string, hookName string, messageID string) string {
	return strings.TrimSpace(prefix) + "-" + strings.TrimSpace(hookName) + "-" + strings.TrimSpace(messageID)
}
