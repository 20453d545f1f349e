package commands

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/perch/internal/transport/httpapi"
)

func subEntry() httpapi.Entry {
	return httpapi.Entry{
		ID:              "m-1",
		Channel:         "jobs/build",
		Type:            "started",
		Sequence:        7,
		PublishedAt:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Payload:         json.RawMessage(`"hello world"`),
		PayloadEncoding: httpapi.EncodingText,
	}
}

func TestEntryPrinter_JSONLines(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, entryPrinter{}.print(&buf, subEntry()))

	var got httpapi.Entry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "jobs/build", got.Channel)
	assert.Equal(t, int64(7), got.Sequence)
	assert.True(t, strings.HasSuffix(buf.String(), "\n"))
}

func TestEntryPrinter_Format(t *testing.T) {
	var buf bytes.Buffer
	p := entryPrinter{format: "{{ .Channel }}#{{ .Sequence }}: {{ .Payload }}", styled: true}
	require.NoError(t, p.print(&buf, subEntry()))

	assert.Equal(t, "jobs/build#7: hello world\n", buf.String())
}

func TestEntryPrinter_BadFormat(t *testing.T) {
	var buf bytes.Buffer
	err := entryPrinter{format: "{{ .Nope"}.print(&buf, subEntry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--format")
}

func TestEntryPrinter_Styled(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, entryPrinter{styled: true}.print(&buf, subEntry()))

	out := buf.String()
	assert.Contains(t, out, "jobs/build")
	assert.Contains(t, out, "#7")
	assert.Contains(t, out, "started")
	assert.Contains(t, out, "hello world")
	assert.Contains(t, out, "───")
}

func TestIsTerminal_NonFile(t *testing.T) {
	assert.False(t, isTerminal(&bytes.Buffer{}))
}
