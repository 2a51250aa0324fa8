// Package channels defines the transport contracts for WhatsHound messaging
// channels. The assistant only deals in text, so the surface is small: a
// Messenger can deliver a reply, a Channel can additionally maintain a
// connection and emit incoming messages (the direct WhatsApp bridge). The
// Twilio webhook path needs only Messenger.
package channels

import (
	"context"
	"fmt"
	"time"
)

// IncomingMessage represents a text message received from a channel.
type IncomingMessage struct {
	// ID is the unique message identifier in the source channel. Used for
	// webhook retry deduplication.
	ID string

	// Channel identifies the source channel (e.g. "whatsapp", "twilio").
	Channel string

	// From is the sender identifier on the platform.
	From string

	// FromName is the sender display name (if available).
	FromName string

	// Content is the text content of the message.
	Content string

	// Timestamp is when the message was sent.
	Timestamp time.Time
}

// OutgoingMessage represents a reply to be sent through a channel.
type OutgoingMessage struct {
	// Content is the text content of the message.
	Content string

	// ReplyTo contains the ID of the message being replied to.
	ReplyTo string
}

// Messenger delivers outgoing messages. Implemented by every channel and by
// the scheduler's notification path.
type Messenger interface {
	// Name returns the channel identifier (e.g. "twilio", "whatsapp").
	Name() string

	// Send delivers a message to the specified recipient.
	Send(ctx context.Context, to string, message *OutgoingMessage) error
}

// Channel extends Messenger with connection lifecycle and inbound delivery.
type Channel interface {
	Messenger

	// Connect establishes the connection to the messaging platform.
	Connect(ctx context.Context) error

	// Disconnect gracefully closes the connection.
	Disconnect() error

	// Receive returns a Go channel that emits incoming messages.
	Receive() <-chan *IncomingMessage

	// IsConnected returns true if the channel is connected.
	IsConnected() bool

	// Health returns the channel health status.
	Health() HealthStatus
}

// HealthStatus represents the health state of a channel.
type HealthStatus struct {
	Connected     bool
	LastMessageAt time.Time
	ErrorCount    int
	Details       map[string]any
}

// Errors.
var (
	ErrChannelDisconnected = fmt.Errorf("channel is not connected")
	ErrSendFailed          = fmt.Errorf("failed to send message")
	ErrConnectionFailed    = fmt.Errorf("failed to connect to channel")
)
