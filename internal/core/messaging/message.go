package messaging

import (
	"time"

	"github.com/google/uuid"
)

// Message is a single payload published to a channel. Messages are
// immutable once the store has assigned their identity and sequence.
type Message struct {
	ID         string    `json:"id"`
	Channel    string    `json:"channel"`
	Type       string    `json:"type,omitempty"`
	Payload    []byte    `json:"payload"`
	Sequence   int64     `json:"sequence"`
	IngestedAt time.Time `json:"ingested_at"`
}

// NewMessageID returns a random message identifier.
func NewMessageID() string {
	return uuid.NewString()
}

// Expired reports whether the message has outlived ttl at now.
func (m Message) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(m.IngestedAt) >= ttl
}

// Response is the single answer to a subscription request.
type Response struct {
	RequestID  string    `json:"request_id"`
	ClientID   string    `json:"client_id"`
	Channels   []string  `json:"channels"`
	Messages   []Message `json:"messages"`
	TimedOut   bool      `json:"timed_out"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// Empty reports whether the response carries no messages.
func (r Response) Empty() bool {
	return len(r.Messages) == 0
}

// ChannelInfo summarizes the retained messages of one channel.
type ChannelInfo struct {
	Name         string    `json:"name"`
	Messages     int       `json:"messages"`
	LastSequence int64     `json:"last_sequence"`
	UpdatedAt    time.Time `json:"updated_at"`
}
