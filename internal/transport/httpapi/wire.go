package httpapi

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"time"
	"unicode/utf8"

	"github.com/hay-kot/perch/internal/core/messaging"
)

// Payload encodings. They tell a reader how Entry.Payload maps back to the
// published bytes.
const (
	// EncodingJSON carries a valid JSON body verbatim.
	EncodingJSON = "json"
	// EncodingText carries a UTF-8 body as a JSON string.
	EncodingText = "text"
	// EncodingBase64 carries any other body as a base64 JSON string.
	EncodingBase64 = "base64"
)

// Entry is a message as it appears on the wire.
type Entry struct {
	ID          string    `json:"id"`
	Channel     string    `json:"channel"`
	Type        string    `json:"type,omitempty"`
	Sequence    int64     `json:"sequence"`
	PublishedAt time.Time `json:"published_at"`
	// Payload holds the published body in the form PayloadEncoding names.
	Payload         json.RawMessage `json:"payload"`
	PayloadEncoding string          `json:"payload_encoding"`
}

// Bytes returns the payload exactly as it was published. An entry without
// an encoding is treated as json.
func (e Entry) Bytes() []byte {
	switch e.PayloadEncoding {
	case EncodingText:
		var s string
		if err := json.Unmarshal(e.Payload, &s); err == nil {
			return []byte(s)
		}
	case EncodingBase64:
		var s string
		if err := json.Unmarshal(e.Payload, &s); err == nil {
			if raw, err := base64.StdEncoding.DecodeString(s); err == nil {
				return raw
			}
		}
	}
	return e.Payload
}

// EntryView is the flattened form of an Entry handed to user templates.
type EntryView struct {
	ID          string
	Channel     string
	Type        string
	Sequence    int64
	PublishedAt time.Time
	Payload     string
}

// View returns the template data for e.
func (e Entry) View() EntryView {
	return EntryView{
		ID:          e.ID,
		Channel:     e.Channel,
		Type:        e.Type,
		Sequence:    e.Sequence,
		PublishedAt: e.PublishedAt,
		Payload:     string(e.Bytes()),
	}
}

// PollResponse is the body of a resolved long-poll.
type PollResponse struct {
	RequestID string  `json:"request_id"`
	ClientID  string  `json:"client_id"`
	TimedOut  bool    `json:"timed_out"`
	Messages  []Entry `json:"messages"`
}

// PublishResponse acknowledges a published message.
type PublishResponse struct {
	ID       string `json:"id"`
	Channel  string `json:"channel"`
	Sequence int64  `json:"sequence"`
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewEntry converts a stored message to its wire form. Compact JSON travels
// verbatim, other UTF-8 text as a JSON string and anything else as base64.
func NewEntry(m messaging.Message) Entry {
	e := Entry{
		ID:          m.ID,
		Channel:     m.Channel,
		Type:        m.Type,
		Sequence:    m.Sequence,
		PublishedAt: m.IngestedAt.UTC(),
	}

	switch {
	case isCompactJSON(m.Payload):
		e.Payload = json.RawMessage(m.Payload)
		e.PayloadEncoding = EncodingJSON
	case utf8.Valid(m.Payload):
		e.Payload, _ = json.Marshal(string(m.Payload))
		e.PayloadEncoding = EncodingText
	default:
		e.Payload, _ = json.Marshal(base64.StdEncoding.EncodeToString(m.Payload))
		e.PayloadEncoding = EncodingBase64
	}

	return e
}

// isCompactJSON reports whether b is valid JSON that the encoder will emit
// unchanged. Indented or padded JSON would be compacted on the way out.
func isCompactJSON(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, b); err != nil {
		return false
	}
	return bytes.Equal(buf.Bytes(), b)
}

// encodeJSON writes v as one line of JSON. HTML characters are left alone so
// json payloads reach the reader byte for byte.
func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// NewPollResponse converts a broker response to its wire form.
func NewPollResponse(resp messaging.Response) PollResponse {
	entries := make([]Entry, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		entries = append(entries, NewEntry(m))
	}

	return PollResponse{
		RequestID: resp.RequestID,
		ClientID:  resp.ClientID,
		TimedOut:  resp.TimedOut,
		Messages:  entries,
	}
}
