package tui

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hay-kot/perch/internal/client"
	"github.com/hay-kot/perch/internal/core/config"
	"github.com/hay-kot/perch/internal/transport/httpapi"
)

type pollCall struct {
	clientID string
	channels []string
}

type fakeClient struct {
	fakePublisher
	calls []pollCall
	resp  httpapi.PollResponse
	err   error
}

func (f *fakeClient) Poll(_ context.Context, clientID string, channels []string) (httpapi.PollResponse, error) {
	f.calls = append(f.calls, pollCall{clientID: clientID, channels: channels})
	return f.resp, f.err
}

func newTestModel(t *testing.T, cl *fakeClient, opts Options) Model {
	t.Helper()
	if opts.ClientID == "" {
		opts.ClientID = "viewer"
	}
	if len(opts.Channels) == 0 {
		opts.Channels = []string{"jobs/build"}
	}
	m := New(context.Background(), cl, opts)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 20})
	return updated.(Model)
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	updated, cmd := m.Update(msg)
	return updated.(Model), cmd
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestModel_PollAppendsAndRepolls(t *testing.T) {
	cl := &fakeClient{resp: httpapi.PollResponse{Messages: entriesFor("a", "b")}}
	m := newTestModel(t, cl, Options{})

	msg := m.poll()()
	if len(cl.calls) != 1 || cl.calls[0].clientID != "viewer" || cl.calls[0].channels[0] != "jobs/build" {
		t.Fatalf("unexpected poll calls: %+v", cl.calls)
	}

	m, cmd := update(t, m, msg)
	if cmd == nil {
		t.Fatal("expected the next poll to be scheduled")
	}
	if m.view.Len() != 2 {
		t.Errorf("view holds %d entries, want 2", m.view.Len())
	}
	if got := m.view.Selected().ID; got != "b" {
		t.Errorf("follow mode should select newest, got %q", got)
	}

	if _, ok := cmd().(pollResultMsg); !ok {
		t.Error("next command should poll")
	}
	if len(cl.calls) != 2 {
		t.Errorf("got %d polls, want 2", len(cl.calls))
	}
}

func TestModel_MaxEntries(t *testing.T) {
	cl := &fakeClient{}
	m := newTestModel(t, cl, Options{MaxEntries: 3})

	m, _ = update(t, m, pollResultMsg{resp: httpapi.PollResponse{Messages: entriesFor("1", "2")}})
	m, _ = update(t, m, pollResultMsg{resp: httpapi.PollResponse{Messages: entriesFor("3", "4")}})

	if m.view.Len() != 3 {
		t.Fatalf("view holds %d entries, want 3", m.view.Len())
	}
	m.view.GotoTop()
	if got := m.view.Selected().ID; got != "2" {
		t.Errorf("oldest kept entry = %q, want 2", got)
	}
}

func TestModel_TimedOutPollKeepsListening(t *testing.T) {
	m := newTestModel(t, &fakeClient{}, Options{})

	m, cmd := update(t, m, pollResultMsg{resp: httpapi.PollResponse{TimedOut: true}})
	if cmd == nil {
		t.Fatal("expected another poll after a timeout")
	}
	if m.view.Len() != 0 {
		t.Error("timed out poll should add nothing")
	}
	if !strings.Contains(m.View(), "listening as viewer") {
		t.Error("header should show listening status")
	}
}

func TestModel_TransientErrorRetries(t *testing.T) {
	m := newTestModel(t, &fakeClient{}, Options{})

	m, cmd := update(t, m, pollResultMsg{err: errors.New("connection refused")})
	if cmd == nil {
		t.Fatal("expected a retry to be scheduled")
	}
	if m.Err() != nil {
		t.Error("transient errors should not stop the viewer")
	}
	if !strings.Contains(m.View(), "retrying") {
		t.Error("header should show the retry")
	}

	m, _ = update(t, m, pollResultMsg{})
	if strings.Contains(m.View(), "retrying") {
		t.Error("successful poll should clear the error")
	}
}

func TestModel_PermanentErrorStops(t *testing.T) {
	m := newTestModel(t, &fakeClient{}, Options{})

	err := &client.StatusError{Code: http.StatusForbidden, Message: "channel not allowed"}
	m, cmd := update(t, m, pollResultMsg{err: err})
	if cmd != nil {
		t.Error("permanent errors should not be retried")
	}
	if !errors.Is(m.Err(), client.ErrStatus) {
		t.Errorf("Err() = %v, want status error", m.Err())
	}
}

func TestModel_IgnoresResultsAfterQuit(t *testing.T) {
	m := newTestModel(t, &fakeClient{}, Options{})

	m, cmd := update(t, m, keyMsg("q"))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if m.View() != "" {
		t.Error("quitting model should render nothing")
	}

	m, cmd = update(t, m, pollResultMsg{resp: httpapi.PollResponse{Messages: entriesFor("late")}})
	if cmd != nil || m.view.Len() != 0 {
		t.Error("results after quit should be dropped")
	}
}

func TestModel_PreviewAndFilterKeys(t *testing.T) {
	m := newTestModel(t, &fakeClient{}, Options{})
	m, _ = update(t, m, pollResultMsg{resp: httpapi.PollResponse{Messages: entriesFor("alpha", "beta")}})

	m, _ = update(t, m, keyMsg("enter"))
	if m.state != statePreviewing {
		t.Fatal("enter should open the preview")
	}
	if got := m.preview.Entry().ID; got != "beta" {
		t.Errorf("preview shows %q, want beta", got)
	}
	m, _ = update(t, m, keyMsg("q"))
	if m.state != stateNormal {
		t.Fatal("q should close the preview, not quit")
	}

	m, _ = update(t, m, keyMsg("/"))
	m, _ = update(t, m, keyMsg("q"))
	if m.quitting {
		t.Fatal("q while filtering should be typed, not quit")
	}
	if m.view.Filter() != "q" {
		t.Errorf("filter = %q, want q", m.view.Filter())
	}
	m, _ = update(t, m, keyMsg("esc"))
	if m.view.IsFiltering() || m.view.Filter() != "" {
		t.Error("esc should cancel the filter")
	}

	m, _ = update(t, m, keyMsg("k"))
	if m.follow {
		t.Error("moving up should leave follow mode")
	}
	m, _ = update(t, m, keyMsg("G"))
	if !m.follow {
		t.Error("G should resume follow mode")
	}
}

func TestModel_ConfirmedRepublish(t *testing.T) {
	cl := &fakeClient{}
	m := newTestModel(t, cl, Options{
		Keybindings: map[string]config.Keybinding{
			"p": {Action: config.ActionRepublish, Confirm: "Again?"},
		},
	})
	m, _ = update(t, m, pollResultMsg{resp: httpapi.PollResponse{Messages: entriesFor("payload")}})

	m, cmd := update(t, m, keyMsg("p"))
	if m.state != stateConfirming || cmd != nil {
		t.Fatal("binding with confirm should open the modal")
	}

	m, cmd = update(t, m, keyMsg("enter"))
	if cmd == nil {
		t.Fatal("confirming should execute the action")
	}
	done := cmd().(actionDoneMsg)
	if done.err != nil {
		t.Fatalf("action failed: %v", done.err)
	}
	if cl.channel != "ch/payload" || cl.payload != "payload" {
		t.Errorf("republished %q to %q", cl.payload, cl.channel)
	}

	m, _ = update(t, m, done)
	if !strings.Contains(m.View(), "republished to ch/payload") {
		t.Error("footer should show the action result")
	}
}

func TestModel_CancelledConfirm(t *testing.T) {
	cl := &fakeClient{}
	m := newTestModel(t, cl, Options{
		Keybindings: map[string]config.Keybinding{
			"p": {Action: config.ActionRepublish, Confirm: "Again?"},
		},
	})
	m, _ = update(t, m, pollResultMsg{resp: httpapi.PollResponse{Messages: entriesFor("x")}})

	m, _ = update(t, m, keyMsg("p"))
	m, _ = update(t, m, keyMsg("l"))
	m, cmd := update(t, m, keyMsg("enter"))
	if cmd != nil || m.state != stateNormal {
		t.Error("choosing cancel should close the modal without running")
	}
	if cl.channel != "" {
		t.Error("nothing should be published")
	}
}
