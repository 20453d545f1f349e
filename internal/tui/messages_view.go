package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/hay-kot/perch/internal/transport/httpapi"
)

// Column widths for the compact entry list.
const (
	colTime    = 8  // "14:32:01"
	colChannel = 18 // "[jobs/build     ]"
	colType    = 12
	colSeq     = 6
	colAge     = 4 // "2m", "1h", "3d"
	colGaps    = 5
)

// MessagesView is a compact single-line-per-entry renderer:
//
//	time [channel] type seq payload_preview...   age
type MessagesView struct {
	entries    []httpapi.Entry
	cursor     int
	width      int
	height     int
	offset     int
	filtering  bool
	filter     string
	filteredAt []int
	now        func() time.Time
}

// NewMessagesView creates an empty view.
func NewMessagesView() *MessagesView {
	return &MessagesView{
		filteredAt: make([]int, 0),
		now:        time.Now,
	}
}

// SetEntries replaces the displayed entries, keeping the cursor in range.
func (v *MessagesView) SetEntries(entries []httpapi.Entry) {
	v.entries = entries
	v.applyFilter()
	if len(v.filteredAt) == 0 {
		v.cursor = 0
	} else if v.cursor >= len(v.filteredAt) {
		v.cursor = len(v.filteredAt) - 1
	}
	v.clampOffset()
}

// Len returns the number of entries held, ignoring the filter.
func (v *MessagesView) Len() int {
	return len(v.entries)
}

// SetSize sets the viewport dimensions.
func (v *MessagesView) SetSize(width, height int) {
	v.width = width
	v.height = height
	v.clampOffset()
}

func (v *MessagesView) visibleLines() int {
	// column header + help line
	reserved := 2
	if v.filtering || v.filter != "" {
		reserved++
	}
	return max(v.height-reserved, 1)
}

func (v *MessagesView) clampOffset() {
	visible := v.visibleLines()

	if v.cursor < v.offset {
		v.offset = v.cursor
	} else if v.cursor >= v.offset+visible {
		v.offset = v.cursor - visible + 1
	}

	maxOffset := max(len(v.filteredAt)-visible, 0)
	v.offset = min(max(v.offset, 0), maxOffset)
}

// MoveUp moves the cursor up.
func (v *MessagesView) MoveUp() {
	if v.cursor > 0 {
		v.cursor--
		v.clampOffset()
	}
}

// MoveDown moves the cursor down.
func (v *MessagesView) MoveDown() {
	if v.cursor < len(v.filteredAt)-1 {
		v.cursor++
		v.clampOffset()
	}
}

// GotoTop selects the oldest visible entry.
func (v *MessagesView) GotoTop() {
	v.cursor = 0
	v.clampOffset()
}

// GotoBottom selects the newest visible entry.
func (v *MessagesView) GotoBottom() {
	if len(v.filteredAt) > 0 {
		v.cursor = len(v.filteredAt) - 1
		v.clampOffset()
	}
}

// AtBottom reports whether the newest visible entry is selected.
func (v *MessagesView) AtBottom() bool {
	return len(v.filteredAt) == 0 || v.cursor == len(v.filteredAt)-1
}

// Selected returns the selected entry, or nil if none.
func (v *MessagesView) Selected() *httpapi.Entry {
	if len(v.filteredAt) == 0 || v.cursor >= len(v.filteredAt) {
		return nil
	}
	idx := v.filteredAt[v.cursor]
	if idx >= len(v.entries) {
		return nil
	}
	return &v.entries[idx]
}

// StartFilter begins filter input mode.
func (v *MessagesView) StartFilter() {
	v.filtering = true
	v.filter = ""
	v.applyFilter()
}

// CancelFilter leaves filter mode and clears the filter.
func (v *MessagesView) CancelFilter() {
	v.filtering = false
	v.filter = ""
	v.applyFilter()
}

// ConfirmFilter keeps the current filter and leaves input mode.
func (v *MessagesView) ConfirmFilter() {
	v.filtering = false
}

// IsFiltering reports whether filter input is active.
func (v *MessagesView) IsFiltering() bool {
	return v.filtering
}

// Filter returns the active filter text.
func (v *MessagesView) Filter() string {
	return v.filter
}

// AddFilterRunes appends typed runes to the filter.
func (v *MessagesView) AddFilterRunes(rs []rune) {
	v.filter += string(rs)
	v.applyFilter()
}

// DeleteFilterRune removes the last rune from the filter.
func (v *MessagesView) DeleteFilterRune() {
	rs := []rune(v.filter)
	if len(rs) == 0 {
		return
	}
	v.filter = string(rs[:len(rs)-1])
	v.applyFilter()
}

func (v *MessagesView) applyFilter() {
	v.filteredAt = v.filteredAt[:0]
	filter := strings.ToLower(v.filter)

	for i := range v.entries {
		if filter == "" || matchesFilter(&v.entries[i], filter) {
			v.filteredAt = append(v.filteredAt, i)
		}
	}

	if v.cursor >= len(v.filteredAt) {
		v.cursor = max(len(v.filteredAt)-1, 0)
	}
	v.clampOffset()
}

func matchesFilter(e *httpapi.Entry, filter string) bool {
	return strings.Contains(strings.ToLower(e.Channel), filter) ||
		strings.Contains(strings.ToLower(e.Type), filter) ||
		strings.Contains(strings.ToLower(string(e.Bytes())), filter)
}

// View renders the list.
func (v *MessagesView) View() string {
	var b strings.Builder

	contentWidth := max(v.width-colTime-colChannel-colType-colSeq-colAge-colGaps-4, 20)

	if v.filtering {
		b.WriteString(" ")
		b.WriteString(filterPromptStyle.Render("Filter: "))
		b.WriteString(v.filter)
		b.WriteString("▎\n")
	} else if v.filter != "" {
		b.WriteString(" ")
		b.WriteString(mutedStyle.Render("Filter: " + v.filter))
		b.WriteString("\n")
	}

	header := fmt.Sprintf("%-*s %-*s %-*s %*s %-*s %*s",
		colTime, "Time",
		colChannel, "Channel",
		colType, "Type",
		colSeq, "Seq",
		contentWidth, "Payload",
		colAge, "Age",
	)
	b.WriteString("  ")
	b.WriteString(headerStyle.Render(header))
	b.WriteString("\n")

	rendered := 0
	if len(v.filteredAt) == 0 {
		if len(v.entries) == 0 {
			b.WriteString(mutedStyle.Render("  Waiting for messages"))
		} else {
			b.WriteString(mutedStyle.Render("  No matching messages"))
		}
		b.WriteString("\n")
		rendered = 1
	} else {
		end := min(v.offset+v.visibleLines(), len(v.filteredAt))
		for i := v.offset; i < end; i++ {
			e := &v.entries[v.filteredAt[i]]
			b.WriteString(v.renderLine(e, i == v.cursor, contentWidth))
			b.WriteString("\n")
			rendered++
		}
	}

	for i := rendered; i < v.visibleLines(); i++ {
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Render("↑/↓ navigate • g/G top/follow • enter preview • / filter • q quit"))

	return b.String()
}

func (v *MessagesView) renderLine(e *httpapi.Entry, selected bool, contentW int) string {
	var b strings.Builder

	if selected {
		b.WriteString(selectedBorderStyle.Render("┃"))
		b.WriteString(" ")
	} else {
		b.WriteString("  ")
	}

	b.WriteString(mutedStyle.Render(e.PublishedAt.Local().Format("15:04:05")))
	b.WriteString(" ")

	channel := truncate(e.Channel, colChannel-2)
	channelStyle := lipgloss.NewStyle().Foreground(colorForString(e.Channel))
	b.WriteString(channelStyle.Render(fmt.Sprintf("[%-*s]", colChannel-2, channel)))
	b.WriteString(" ")

	b.WriteString(typeStyle.Render(fmt.Sprintf("%-*s", colType, truncate(e.Type, colType))))
	b.WriteString(" ")

	b.WriteString(mutedStyle.Render(fmt.Sprintf("%*s", colSeq, strconv.FormatInt(e.Sequence, 10))))
	b.WriteString(" ")

	payload := strings.NewReplacer("\n", " ", "\r", " ", "\t", " ").Replace(string(e.Bytes()))
	style := payloadStyle
	if selected {
		style = style.Bold(true)
	}
	b.WriteString(style.Render(fmt.Sprintf("%-*s", contentW, truncate(payload, contentW))))
	b.WriteString(" ")

	b.WriteString(mutedStyle.Render(fmt.Sprintf("%*s", colAge, formatAge(v.now().Sub(e.PublishedAt)))))

	return b.String()
}

// truncate shortens s to at most n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	rs := []rune(s)
	if n <= 0 || len(rs) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(rs[:n-1]) + "…"
}

// formatAge renders d as a short relative age.
func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", max(int(d.Seconds()), 0))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
