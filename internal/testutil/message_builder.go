package testutil

import (
	"time"

	"github.com/hupe1980/taskmesh/core"
)

// MessageBuilder helps construct messages with fluent chaining for tests.
// Example:
//
//	msg := NewMessageBuilder("alice", "bob").Type(core.MessageTypeTaskRequest).Content("go").Build()
type MessageBuilder struct {
	sender    string
	recipient string
	mt        core.MessageType
	content   any
	replyTo   string
	metadata  map[string]any
	timestamp *time.Time
}

// NewMessageBuilder creates a builder with default type info.
func NewMessageBuilder(sender, recipient string) *MessageBuilder {
	return &MessageBuilder{sender: sender, recipient: recipient, mt: core.MessageTypeInfo}
}

// Type sets the message type (chainable).
func (b *MessageBuilder) Type(mt core.MessageType) *MessageBuilder { b.mt = mt; return b }

// Content sets the message payload (chainable).
func (b *MessageBuilder) Content(c any) *MessageBuilder { b.content = c; return b }

// ReplyTo links the message to the one it answers (chainable).
func (b *MessageBuilder) ReplyTo(id string) *MessageBuilder { b.replyTo = id; return b }

// Meta sets or overwrites a metadata key/value pair (chainable).
func (b *MessageBuilder) Meta(key string, val any) *MessageBuilder {
	if b.metadata == nil {
		b.metadata = map[string]any{}
	}
	b.metadata[key] = val
	return b
}

// Timestamp pins the message timestamp (chainable). Use in tests where
// history ordering matters.
func (b *MessageBuilder) Timestamp(ts time.Time) *MessageBuilder { b.timestamp = &ts; return b }

// Build constructs the core.Message value.
func (b *MessageBuilder) Build() core.Message {
	msg := core.NewMessage(b.sender, b.recipient, b.mt, b.content, func(o *core.MessageOptions) {
		o.ReplyTo = b.replyTo
		o.Metadata = b.metadata
	})

	if b.timestamp != nil {
		msg.Timestamp = *b.timestamp
	}

	return msg
}
