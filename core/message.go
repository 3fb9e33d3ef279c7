package core

import (
	"fmt"
	"time"
)

// SystemName is the reserved recipient addressing the coordinating system
// rather than a named agent.
const SystemName = "system"

// MessageType classifies the intent of a message.
type MessageType string

const (
	MessageTypeTaskRequest  MessageType = "task_request"
	MessageTypeTaskResponse MessageType = "task_response"
	MessageTypeStatusUpdate MessageType = "status_update"
	MessageTypeCoordination MessageType = "coordination"
	MessageTypeError        MessageType = "error"
	MessageTypeInfo         MessageType = "info"
)

// Valid reports whether the type is one of the known message types.
func (m MessageType) Valid() bool {
	switch m {
	case MessageTypeTaskRequest, MessageTypeTaskResponse, MessageTypeStatusUpdate,
		MessageTypeCoordination, MessageTypeError, MessageTypeInfo:
		return true
	default:
		return false
	}
}

// MessageOptions configures a Message.
type MessageOptions struct {
	// ReplyTo references the ID of the message this one answers.
	ReplyTo string

	// Metadata carries free-form envelope attributes.
	Metadata map[string]any
}

// Message is an addressed, timestamped envelope for asynchronous
// coordination between agents and the system. Messages are values; treat
// them as immutable after construction.
type Message struct {
	ID        string         `json:"id"`
	Sender    string         `json:"sender"`
	Recipient string         `json:"recipient"`
	Type      MessageType    `json:"message_type"`
	Content   any            `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	ReplyTo   string         `json:"reply_to,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewMessage creates a message with a generated ID and UTC timestamp.
func NewMessage(sender, recipient string, mt MessageType, content any, optFns ...func(o *MessageOptions)) Message {
	opts := MessageOptions{}

	for _, fn := range optFns {
		fn(&opts)
	}

	return Message{
		ID:        NewID(),
		Sender:    sender,
		Recipient: recipient,
		Type:      mt,
		Content:   content,
		Timestamp: time.Now().UTC(),
		ReplyTo:   opts.ReplyTo,
		Metadata:  opts.Metadata,
	}
}

// ToMap renders the message as a flat field-keyed map with the timestamp as
// RFC 3339 text, mirroring Task.ToMap.
func (m Message) ToMap() map[string]any {
	var replyTo any
	if m.ReplyTo != "" {
		replyTo = m.ReplyTo
	}

	return map[string]any{
		"id":           m.ID,
		"sender":       m.Sender,
		"recipient":    m.Recipient,
		"message_type": string(m.Type),
		"content":      m.Content,
		"timestamp":    formatTime(m.Timestamp),
		"reply_to":     replyTo,
		"metadata":     m.Metadata,
	}
}

// MessageFromMap reconstructs a message from its flat map representation.
// It errors on missing addressing fields and unknown message types.
func MessageFromMap(data map[string]any) (Message, error) {
	id, ok := data["id"].(string)
	if !ok || id == "" {
		return Message{}, fmt.Errorf("message map missing id")
	}

	sender, ok := data["sender"].(string)
	if !ok || sender == "" {
		return Message{}, fmt.Errorf("message map missing sender")
	}

	recipient, ok := data["recipient"].(string)
	if !ok || recipient == "" {
		return Message{}, fmt.Errorf("message map missing recipient")
	}

	rawType, _ := data["message_type"].(string)

	mt := MessageType(rawType)
	if !mt.Valid() {
		return Message{}, fmt.Errorf("unknown message type %q", rawType)
	}

	timestamp, err := parseTime(data["timestamp"])
	if err != nil {
		return Message{}, fmt.Errorf("message map has invalid timestamp: %w", err)
	}

	if timestamp.IsZero() {
		return Message{}, fmt.Errorf("message map missing timestamp")
	}

	replyTo, _ := data["reply_to"].(string)

	return Message{
		ID:        id,
		Sender:    sender,
		Recipient: recipient,
		Type:      mt,
		Content:   data["content"],
		Timestamp: timestamp,
		ReplyTo:   replyTo,
		Metadata:  toStringMap(data["metadata"]),
	}, nil
}
