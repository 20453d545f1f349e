package messaging

import "time"

// ActivityType represents the type of messaging activity.
type ActivityType string

const (
	ActivityPublish   ActivityType = "publish"
	ActivitySubscribe ActivityType = "subscribe"
	ActivityResolve   ActivityType = "resolve"
	ActivityCancel    ActivityType = "cancel"
)

// Activity is a journal entry describing broker traffic. It records
// identifiers and counts only, never payloads.
type Activity struct {
	ID        string       `json:"id"`
	Type      ActivityType `json:"type"`
	Channels  []string     `json:"channels,omitempty"`
	ClientID  string       `json:"client_id,omitempty"`
	RequestID string       `json:"request_id,omitempty"`
	MessageID string       `json:"message_id,omitempty"` // For publish events
	Sequence  int64        `json:"sequence,omitempty"`
	Count     int          `json:"count,omitempty"` // Messages delivered by a resolve
	TimedOut  bool         `json:"timed_out,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// ActivityStore defines persistence operations for activity events.
type ActivityStore interface {
	// Record records an activity event.
	Record(activity Activity) error
	// List returns recent activity events, newest first.
	// Limit of 0 returns all events.
	List(limit int) ([]Activity, error)
	// ListSince returns activity events since the given time, newest first.
	ListSince(since time.Time, limit int) ([]Activity, error)
}
