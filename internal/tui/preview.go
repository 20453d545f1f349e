package tui

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/hay-kot/perch/internal/transport/httpapi"
)

// Preview modal layout constants.
const (
	previewMaxWidth  = 100 // maximum modal width in columns
	previewMaxHeight = 30  // maximum modal height in rows
	previewMargin    = 4   // margin from screen edges
	previewChrome    = 8   // rows for title, metadata, help, and spacing
	previewPadding   = 4   // padding inside content area
	glamourGutter    = 2
)

// PreviewModal shows a single entry with its payload rendered through glamour.
type PreviewModal struct {
	entry    httpapi.Entry
	viewport viewport.Model
}

// NewPreviewModal builds a preview sized for a width x height screen.
func NewPreviewModal(e httpapi.Entry, width, height int) PreviewModal {
	modalWidth := min(width-previewMargin, previewMaxWidth)
	modalHeight := min(height-previewMargin, previewMaxHeight)

	vp := viewport.New(modalWidth-previewPadding, max(modalHeight-previewChrome, 1))
	vp.Style = lipgloss.NewStyle()

	m := PreviewModal{entry: e, viewport: vp}
	m.viewport.SetContent(renderPayload(e, modalWidth-previewPadding-glamourGutter))
	return m
}

// payloadMarkdown turns a payload into markdown. JSON is indented and fenced
// so glamour highlights it, binary payloads show their base64 form and
// anything else is rendered as markdown text.
func payloadMarkdown(e httpapi.Entry) string {
	raw := e.Bytes()

	if e.PayloadEncoding == httpapi.EncodingBase64 {
		return fmt.Sprintf("_binary payload, %d bytes_\n\n```\n%s\n```", len(raw), strings.Trim(string(e.Payload), `"`))
	}

	if json.Valid(raw) && !isJSONString(raw) {
		var buf bytes.Buffer
		if err := json.Indent(&buf, raw, "", "  "); err == nil {
			return "```json\n" + buf.String() + "\n```"
		}
	}
	return string(raw)
}

func isJSONString(raw []byte) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '"'
}

func renderPayload(e httpapi.Entry, width int) string {
	md := payloadMarkdown(e)

	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("tokyo-night"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return md
	}

	rendered, err := renderer.Render(md)
	if err != nil {
		return md
	}

	content := strings.TrimSpace(rendered)
	return trimDecorative(content)
}

// Update forwards a tea message (mouse wheel, page keys) to the viewport.
func (m *PreviewModal) Update(msg any) {
	m.viewport, _ = m.viewport.Update(msg)
}

func (m *PreviewModal) ScrollUp()   { m.viewport.ScrollUp(1) }
func (m *PreviewModal) ScrollDown() { m.viewport.ScrollDown(1) }

// Entry returns the previewed entry.
func (m PreviewModal) Entry() httpapi.Entry {
	return m.entry
}

// Overlay renders the modal centered on a width x height screen.
func (m PreviewModal) Overlay(width, height int) string {
	modalWidth := min(width-previewMargin, previewMaxWidth)
	modalHeight := min(height-previewMargin, previewMaxHeight)

	channel := lipgloss.NewStyle().
		Foreground(colorForString(m.entry.Channel)).
		Bold(true).
		Render("[" + m.entry.Channel + "]")
	metadata := fmt.Sprintf("%s %s %s %s %s",
		channel,
		typeStyle.Render(orDash(m.entry.Type)),
		mutedStyle.Render(fmt.Sprintf("seq %d", m.entry.Sequence)),
		iconDot,
		mutedStyle.Render(m.entry.PublishedAt.Local().Format("2006-01-02 15:04:05")),
	)
	id := mutedStyle.Italic(true).Render("id: " + m.entry.ID)

	scroll := ""
	if m.viewport.TotalLineCount() > m.viewport.VisibleLineCount() {
		scroll = mutedStyle.Render(fmt.Sprintf(" (%.0f%%)", m.viewport.ScrollPercent()*100))
	}

	content := lipgloss.JoinVertical(
		lipgloss.Left,
		modalTitleStyle.Render("Message"+scroll),
		"",
		metadata,
		id,
		previewDividerStyle.Render(strings.Repeat("─", modalWidth-previewPadding)),
		m.viewport.View(),
		modalHelpStyle.Render("[↑/↓/j/k] scroll  [enter/esc] close"),
	)

	modal := modalStyle.Width(modalWidth).Height(modalHeight).Render(content)
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, modal)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// isDecorativeLine reports whether a line holds only rules or spaces once
// ANSI codes are stripped.
func isDecorativeLine(line string) bool {
	stripped := strings.TrimSpace(ansiPattern.ReplaceAllString(line, ""))
	for _, r := range stripped {
		if r != '─' && r != '━' && r != '-' && r != '=' {
			return false
		}
	}
	return true
}

// trimDecorative drops glamour's leading and trailing rule lines.
func trimDecorative(content string) string {
	lines := strings.Split(content, "\n")
	start, end := 0, len(lines)
	for start < end && isDecorativeLine(lines[start]) {
		start++
	}
	for end > start && isDecorativeLine(lines[end-1]) {
		end--
	}
	return strings.Join(lines[start:end], "\n")
}
