package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hay-kot/perch/internal/core/messaging"
)

func TestFilterActivity(t *testing.T) {
	events := []messaging.Activity{
		{ID: "1", Type: messaging.ActivityPublish},
		{ID: "2", Type: messaging.ActivityResolve},
		{ID: "3", Type: messaging.ActivityPublish},
		{ID: "4", Type: messaging.ActivityCancel},
	}

	ids := func(as []messaging.Activity) []string {
		out := make([]string, len(as))
		for i, a := range as {
			out[i] = a.ID
		}
		return out
	}

	assert.Equal(t, []string{"1", "2", "3", "4"}, ids(filterActivity(events, nil, 0)))
	assert.Equal(t, []string{"1", "2"}, ids(filterActivity(events, nil, 2)))
	assert.Equal(t, []string{"1", "3"}, ids(filterActivity(events, []string{"publish"}, 0)))
	assert.Equal(t, []string{"2"}, ids(filterActivity(events, []string{"resolve", "cancel"}, 1)))
}

func TestActivityDetail(t *testing.T) {
	tests := []struct {
		event messaging.Activity
		want  string
	}{
		{messaging.Activity{Type: messaging.ActivityPublish, MessageID: "m1", Sequence: 7}, "message m1 seq 7"},
		{messaging.Activity{Type: messaging.ActivityResolve, Count: 3}, "3 message(s)"},
		{messaging.Activity{Type: messaging.ActivityResolve, TimedOut: true}, "timed out"},
		{messaging.Activity{Type: messaging.ActivityCancel, Count: 1}, "dropped 1"},
		{messaging.Activity{Type: messaging.ActivitySubscribe, RequestID: "r1"}, "r1"},
		{messaging.Activity{Type: messaging.ActivitySubscribe}, "-"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, activityDetail(tt.event))
	}
}
