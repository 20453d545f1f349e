package messaging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMessage_Expired(t *testing.T) {
	ingested := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	msg := Message{IngestedAt: ingested}

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"fresh", ingested, false},
		{"just before ttl", ingested.Add(30*time.Second - time.Nanosecond), false},
		{"at ttl", ingested.Add(30 * time.Second), true},
		{"after ttl", ingested.Add(time.Minute), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, msg.Expired(tt.now, 30*time.Second))
		})
	}
}

func TestNewMessageID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		id := NewMessageID()
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestResponse_Empty(t *testing.T) {
	assert.True(t, Response{}.Empty())
	assert.False(t, Response{Messages: []Message{{ID: "m"}}}.Empty())
}
