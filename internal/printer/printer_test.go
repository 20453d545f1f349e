package printer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/hay-kot/criterio"
	"github.com/stretchr/testify/assert"
)

func TestPrinter_PlainWhenNotTerminal(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf)

	p.Successf("saved %d", 3)
	p.Warnf("careful")
	p.Errorf("broken")

	assert.Equal(t, "✔ saved 3\n• careful\n✘ broken\n", buf.String())
	assert.NotContains(t, buf.String(), "\033[")
}

func TestPrinter_WithColor(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf).WithColor(true)

	p.Infof("hello")
	assert.Equal(t, ColorGray+Dot+" hello"+ColorReset+"\n", buf.String())
	assert.Equal(t, ColorBold+"x"+ColorReset, p.Bold("x"))
}

func TestPrinter_Items(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf)

	p.Section("Server")
	p.CheckItem("http://127.0.0.1:7420", "healthy")
	p.WarnItem("Stats", "")
	p.FailItem("Identities", "corrupt")

	want := strings.Join([]string{
		"Server",
		"  ✔ http://127.0.0.1:7420: healthy",
		"  • Stats",
		"  ✘ Identities: corrupt",
		"",
	}, "\n")
	assert.Equal(t, want, buf.String())
}

func TestPrinter_FatalError(t *testing.T) {
	var buf bytes.Buffer
	New(&buf).FatalError(errors.New("connection refused"))

	assert.Equal(t, "╭ Error\n│ connection refused\n╵\n", buf.String())
}

func TestPrinter_FatalErrorFieldErrors(t *testing.T) {
	var errs criterio.FieldErrorsBuilder
	errs = errs.Append("broker.request_timeout", errors.New("must not be negative"))
	err := fmt.Errorf("load config: %w", errs.ToError())

	var buf bytes.Buffer
	New(&buf).FatalError(err)

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "╭ Validation Error\n│ load config\n"))
	assert.Contains(t, out, "│ ✘ broker.request_timeout: must not be negative\n")
}

func TestCtx_FallsBackToDefault(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf)

	assert.Same(t, p, Ctx(NewContext(context.Background(), p)))
	assert.NotNil(t, Ctx(context.Background()))
}
