// Package printer writes styled status output for the perch CLI.
package printer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hay-kot/criterio"
	"golang.org/x/term"
)

// ANSI escapes for the Tokyo Night palette.
const (
	ColorReset     = "\033[0m"
	ColorRed       = "\033[38;2;247;118;142m" // #f7768e
	ColorGreen     = "\033[38;2;158;206;106m" // #9ece6a
	ColorYellow    = "\033[38;2;224;175;104m" // #e0af68
	ColorGray      = "\033[38;2;86;95;137m"   // #565f89
	ColorBold      = "\033[1m"
	ColorUnderline = "\033[4m"
)

// Symbols
const (
	Check = "✔"
	Cross = "✘"
	Dot   = "•"
)

type ctxKey struct{}

// Printer writes human facing status lines. It never writes log output.
type Printer struct {
	w     io.Writer
	color bool
}

// New creates a Printer writing to w. Colors are used only when w is a
// terminal and NO_COLOR is unset.
func New(w io.Writer) *Printer {
	return &Printer{w: w, color: useColor(w)}
}

// WithColor forces colors on or off.
func (p *Printer) WithColor(enabled bool) *Printer {
	p.color = enabled
	return p
}

func useColor(w io.Writer) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	f, ok := w.(interface{ Fd() uintptr })
	return ok && term.IsTerminal(int(f.Fd()))
}

// NewContext attaches p to ctx.
func NewContext(ctx context.Context, p *Printer) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// Ctx returns the printer attached to ctx, or a stderr printer.
func Ctx(ctx context.Context) *Printer {
	if p, ok := ctx.Value(ctxKey{}).(*Printer); ok {
		return p
	}
	return New(os.Stderr)
}

// FatalError renders err in a box. Validation errors get one line per
// field. It does not exit.
func (p *Printer) FatalError(err error) {
	if err == nil {
		return
	}

	var fieldErrs criterio.FieldErrors
	if !errors.As(err, &fieldErrs) {
		p.box("Error", []string{p.colorize(ColorGray, err.Error())})
		return
	}

	var body []string
	if prefix := errorPrefix(err, fieldErrs); prefix != "" {
		body = append(body, p.colorize(ColorGray, prefix), "")
	}
	for _, fe := range fieldErrs {
		line := p.colorize(ColorRed, Cross) + " "
		if fe.Field != "" {
			line += p.colorize(ColorGray, fe.Field+": ")
		}
		body = append(body, line+fe.Err.Error())
	}

	p.box("Validation Error", body)
}

// errorPrefix returns the wrapping context of err in front of the field
// errors, e.g. "load config" for "load config: invalid config: ...".
func errorPrefix(err error, fieldErrs criterio.FieldErrors) string {
	full, inner := err.Error(), fieldErrs.Error()
	idx := strings.Index(full, inner)
	if idx <= 0 {
		return ""
	}
	return strings.TrimSuffix(full[:idx], ": ")
}

func (p *Printer) box(title string, body []string) {
	bar := p.colorize(ColorRed, "│")

	var b strings.Builder
	b.WriteString(p.colorize(ColorRed, "╭ "+title) + "\n")
	for _, line := range body {
		if line == "" {
			b.WriteString(bar + "\n")
			continue
		}
		b.WriteString(bar + " " + line + "\n")
	}
	b.WriteString(p.colorize(ColorRed, "╵") + "\n")

	_, _ = io.WriteString(p.w, b.String())
}

func (p *Printer) println(s string) {
	_, _ = fmt.Fprintln(p.w, s)
}

func (p *Printer) status(color, symbol, format string, args ...any) {
	p.println(p.colorize(color, symbol+" "+fmt.Sprintf(format, args...)))
}

// Errorf prints a red failure line.
func (p *Printer) Errorf(format string, args ...any) {
	p.status(ColorRed, Cross, format, args...)
}

// Successf prints a green success line.
func (p *Printer) Successf(format string, args ...any) {
	p.status(ColorGreen, Check, format, args...)
}

// Infof prints a gray note.
func (p *Printer) Infof(format string, args ...any) {
	p.status(ColorGray, Dot, format, args...)
}

// Warnf prints a yellow warning.
func (p *Printer) Warnf(format string, args ...any) {
	p.status(ColorYellow, Dot, format, args...)
}

// Printf prints an unstyled line.
func (p *Printer) Printf(format string, args ...any) {
	p.println(fmt.Sprintf(format, args...))
}

func (p *Printer) colorize(color, text string) string {
	if !p.color {
		return text
	}
	return color + text + ColorReset
}

// Bold makes text bold.
func (p *Printer) Bold(text string) string {
	return p.colorize(ColorBold, text)
}

// Section prints an underlined heading.
func (p *Printer) Section(title string) {
	p.println(p.colorize(ColorBold+ColorUnderline, title))
}

// CheckItem prints an indented passing item.
func (p *Printer) CheckItem(label, detail string) {
	p.item(ColorGreen, Check, label, detail)
}

// WarnItem prints an indented warning item.
func (p *Printer) WarnItem(label, detail string) {
	p.item(ColorYellow, Dot, label, detail)
}

// FailItem prints an indented failing item.
func (p *Printer) FailItem(label, detail string) {
	p.item(ColorRed, Cross, label, detail)
}

func (p *Printer) item(color, symbol, label, detail string) {
	line := "  " + p.colorize(color, symbol) + " " + label
	if detail != "" {
		line += ": " + detail
	}
	p.println(line)
}
