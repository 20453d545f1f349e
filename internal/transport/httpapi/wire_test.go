package httpapi

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/perch/internal/core/messaging"
)

func TestNewEntry_Payloads(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		wire     string
		encoding string
	}{
		{"object", `{"a":1}`, `{"a":1}`, EncodingJSON},
		{"number", `42`, `42`, EncodingJSON},
		{"json string", `"hi"`, `"hi"`, EncodingJSON},
		{"indented json", "{\n  \"a\": 1\n}", `"{\n  \"a\": 1\n}"`, EncodingText},
		{"plain text", `hello world`, `"hello world"`, EncodingText},
		{"empty", ``, `""`, EncodingText},
		{"binary", "\xff\xfe\x00A", `"//4AQQ=="`, EncodingBase64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEntry(messaging.Message{ID: "m1", Channel: "c", Payload: []byte(tt.payload)})
			assert.JSONEq(t, tt.wire, string(e.Payload))
			assert.Equal(t, tt.encoding, e.PayloadEncoding)
		})
	}
}

func TestEntry_RoundTrip(t *testing.T) {
	payloads := map[string][]byte{
		"binary":       {0xff, 0xfe, 0x00, 'A'},
		"json string":  []byte(`"hello"`),
		"plain text":   []byte("hello"),
		"object":       []byte(`{"a":1}`),
		"indented":     []byte("{\n  \"a\": 1\n}\n"),
		"html in json": []byte(`{"body":"<b>&</b>"}`),
		"empty":        {},
	}

	for name, payload := range payloads {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, encodeJSON(&buf, NewEntry(messaging.Message{ID: "m1", Payload: payload})))

			var got Entry
			require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
			assert.Equal(t, string(payload), string(got.Bytes()))
		})
	}
}

func TestEntry_BytesWithoutEncoding(t *testing.T) {
	e := Entry{Payload: json.RawMessage(`"quoted"`)}
	assert.Equal(t, `"quoted"`, string(e.Bytes()))
}

func TestNewPollResponse(t *testing.T) {
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	resp := NewPollResponse(messaging.Response{
		RequestID: "r1",
		ClientID:  "c1",
		Messages: []messaging.Message{
			{ID: "m1", Channel: "jobs", Sequence: 7, IngestedAt: at, Payload: []byte("x")},
		},
	})

	assert.Equal(t, "r1", resp.RequestID)
	assert.False(t, resp.TimedOut)
	assert.Len(t, resp.Messages, 1)
	assert.Equal(t, time.UTC, resp.Messages[0].PublishedAt.Location())

	empty := NewPollResponse(messaging.Response{TimedOut: true})
	assert.NotNil(t, empty.Messages)
	assert.True(t, empty.TimedOut)
}

func TestACL(t *testing.T) {
	acl, err := NewACL([]string{"jobs/*", "events/**", "health"})
	assert.NoError(t, err)

	tests := []struct {
		channel string
		allowed bool
	}{
		{"jobs/build", true},
		{"jobs/build/linux", false},
		{"events/a/b/c", true},
		{"health", true},
		{"healthz", false},
		{"other", false},
	}

	for _, tt := range tests {
		t.Run(tt.channel, func(t *testing.T) {
			assert.Equal(t, tt.allowed, acl.Allowed(tt.channel))
		})
	}

	open, err := NewACL(nil)
	assert.NoError(t, err)
	assert.True(t, open.Allowed("anything"))

	_, err = NewACL([]string{"broken/[a"})
	assert.Error(t, err)
}
