package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hay-kot/perch/internal/client"
	"github.com/hay-kot/perch/internal/core/config"
	"github.com/hay-kot/perch/internal/transport/httpapi"
)

// uiState represents the current state of the viewer.
type uiState int

const (
	stateNormal uiState = iota
	statePreviewing
	stateConfirming
)

// Key constants for event handling.
const (
	keyEnter = "enter"
	keyEsc   = "esc"
	keyCtrlC = "ctrl+c"
)

const defaultRetryDelay = time.Second

// Client is the subset of the perch client the viewer needs.
type Client interface {
	Publisher
	Poll(ctx context.Context, clientID string, channels []string) (httpapi.PollResponse, error)
}

// Options configures the viewer.
type Options struct {
	ClientID    string
	Channels    []string
	MaxEntries  int
	Keybindings map[string]config.Keybinding
	// RetryDelay is the pause after a failed poll before polling again.
	RetryDelay time.Duration
}

// pollResultMsg carries the outcome of one long-poll.
type pollResultMsg struct {
	resp httpapi.PollResponse
	err  error
}

// retryPollMsg triggers a poll after a failure.
type retryPollMsg struct{}

// actionDoneMsg is sent when a keybinding action finishes.
type actionDoneMsg struct {
	output string
	err    error
}

// Model is the Bubble Tea model behind `perch tail`. It keeps exactly one
// long-poll outstanding and issues the next as soon as the previous resolves.
type Model struct {
	ctx    context.Context
	cancel context.CancelFunc
	client Client
	opts   Options

	view    *MessagesView
	handler *KeybindingHandler
	help    help.Model
	spinner spinner.Model

	state   uiState
	preview PreviewModal
	modal   Modal
	pending Action

	entries  []httpapi.Entry
	follow   bool
	polls    int
	err      error
	fatal    error
	flash    string
	width    int
	height   int
	quitting bool
}

// New creates a viewer polling cl for opts.Channels.
func New(ctx context.Context, cl Client, opts Options) Model {
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}

	ctx, cancel := context.WithCancel(ctx)

	h := help.New()
	h.Styles.ShortKey = mutedStyle
	h.Styles.ShortDesc = mutedStyle
	h.Styles.ShortSeparator = mutedStyle
	h.ShortSeparator = " • "

	sp := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(colorBlue)),
	)

	return Model{
		ctx:     ctx,
		cancel:  cancel,
		client:  cl,
		opts:    opts,
		view:    NewMessagesView(),
		handler: NewKeybindingHandler(opts.Keybindings, cl),
		help:    h,
		spinner: sp,
		follow:  true,
	}
}

// Err returns the error that stopped polling, if any.
func (m Model) Err() error {
	return m.fatal
}

// Init starts the first poll.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.poll(), m.spinner.Tick)
}

func (m Model) poll() tea.Cmd {
	ctx, cl, opts := m.ctx, m.client, m.opts
	return func() tea.Msg {
		resp, err := cl.Poll(ctx, opts.ClientID, opts.Channels)
		return pollResultMsg{resp: resp, err: err}
	}
}

func (m Model) execute(action Action) tea.Cmd {
	ctx, h := m.ctx, m.handler
	return func() tea.Msg {
		out, err := h.Execute(ctx, action)
		return actionDoneMsg{output: out, err: err}
	}
}

// Update handles incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.view.SetSize(msg.Width, max(msg.Height-2, 1))
		return m, nil

	case pollResultMsg:
		return m.handlePoll(msg)

	case retryPollMsg:
		return m, m.poll()

	case actionDoneMsg:
		if msg.err != nil {
			m.flash = errorStyle.Render(msg.err.Error())
		} else {
			m.flash = connectedStyle.Render(firstLine(msg.output))
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	if m.state == statePreviewing {
		m.preview.Update(msg)
	}
	return m, nil
}

func (m Model) handlePoll(msg pollResultMsg) (tea.Model, tea.Cmd) {
	if m.ctx.Err() != nil {
		return m, nil
	}

	if msg.err != nil {
		m.err = msg.err
		var se *client.StatusError
		if errors.As(msg.err, &se) && se.Permanent() {
			m.fatal = msg.err
			return m, nil
		}
		return m, tea.Tick(m.opts.RetryDelay, func(time.Time) tea.Msg {
			return retryPollMsg{}
		})
	}

	m.err = nil
	m.polls++
	if len(msg.resp.Messages) > 0 {
		m.entries = append(m.entries, msg.resp.Messages...)
		if m.opts.MaxEntries > 0 && len(m.entries) > m.opts.MaxEntries {
			m.entries = m.entries[len(m.entries)-m.opts.MaxEntries:]
		}
		m.view.SetEntries(m.entries)
		if m.follow {
			m.view.GotoBottom()
		}
	}

	return m, m.poll()
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	k := msg.String()
	if k == keyCtrlC {
		return m.quit()
	}

	switch m.state {
	case statePreviewing:
		switch k {
		case keyEnter, keyEsc, "q":
			m.state = stateNormal
		case "up", "k":
			m.preview.ScrollUp()
		case "down", "j":
			m.preview.ScrollDown()
		default:
			m.preview.Update(msg)
		}
		return m, nil

	case stateConfirming:
		switch k {
		case "left", "right", "h", "l", "tab":
			m.modal.ToggleSelection()
		case keyEnter:
			m.state = stateNormal
			if m.modal.ConfirmSelected() {
				return m, m.execute(m.pending)
			}
		case keyEsc, "q":
			m.state = stateNormal
		}
		return m, nil
	}

	if m.view.IsFiltering() {
		switch msg.Type {
		case tea.KeyEsc:
			m.view.CancelFilter()
		case tea.KeyEnter:
			m.view.ConfirmFilter()
		case tea.KeyBackspace:
			m.view.DeleteFilterRune()
		case tea.KeySpace:
			m.view.AddFilterRunes([]rune{' '})
		case tea.KeyRunes:
			m.view.AddFilterRunes(msg.Runes)
		}
		return m, nil
	}

	switch k {
	case "q":
		return m.quit()
	case "up", "k":
		m.view.MoveUp()
		m.follow = m.view.AtBottom()
	case "down", "j":
		m.view.MoveDown()
		m.follow = m.view.AtBottom()
	case "g":
		m.view.GotoTop()
		m.follow = m.view.AtBottom()
	case "G":
		m.view.GotoBottom()
		m.follow = true
	case "/":
		m.view.StartFilter()
	case keyEsc:
		if m.view.Filter() != "" {
			m.view.CancelFilter()
		}
		m.flash = ""
	case keyEnter:
		if e := m.view.Selected(); e != nil {
			m.preview = NewPreviewModal(*e, m.width, m.height)
			m.state = statePreviewing
		}
	default:
		e := m.view.Selected()
		if e == nil {
			return m, nil
		}
		action, ok := m.handler.Resolve(k, *e)
		if !ok {
			return m, nil
		}
		if action.NeedsConfirm() {
			m.pending = action
			m.modal = NewModal(action.Help, action.Confirm)
			m.state = stateConfirming
			return m, nil
		}
		return m, m.execute(action)
	}

	return m, nil
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.quitting = true
	m.cancel()
	return m, tea.Quit
}

// View renders the viewer.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	switch m.state {
	case statePreviewing:
		return m.preview.Overlay(m.width, m.height)
	case stateConfirming:
		return m.modal.Overlay(m.listView(), m.width, m.height)
	}

	return m.listView()
}

// listView renders the list screen without overlays.
func (m Model) listView() string {
	var b strings.Builder
	b.WriteString(m.headerLine())
	b.WriteString("\n")
	b.WriteString(m.view.View())
	b.WriteString("\n")
	b.WriteString(m.footerLine())
	return b.String()
}

func (m Model) headerLine() string {
	title := titleStyle.Render("perch tail")
	channels := mutedStyle.Render(strings.Join(m.opts.Channels, ", "))

	var status string
	switch {
	case m.fatal != nil:
		status = errorStyle.Render("stopped: " + m.fatal.Error())
	case m.err != nil:
		status = errorStyle.Render(fmt.Sprintf("retrying in %s: %v", m.opts.RetryDelay, m.err))
	default:
		status = m.spinner.View() + connectedStyle.Render("listening as "+m.opts.ClientID)
	}

	count := mutedStyle.Render(fmt.Sprintf("%d messages", m.view.Len()))
	return fmt.Sprintf("%s %s %s %s %s %s", title, channels, iconDot, status, iconDot, count)
}

func (m Model) footerLine() string {
	if m.flash != "" {
		return " " + m.flash
	}
	return " " + m.help.ShortHelpView(m.handler.KeyBindings())
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	if s == "" {
		return "done"
	}
	return s
}
