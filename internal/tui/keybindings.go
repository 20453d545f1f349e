package tui

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/charmbracelet/bubbles/key"

	"github.com/hay-kot/perch/internal/core/config"
	"github.com/hay-kot/perch/internal/transport/httpapi"
	"github.com/hay-kot/perch/pkg/executil"
	"github.com/hay-kot/perch/pkg/tmpl"
)

// ActionType identifies the kind of action a keybinding triggers.
type ActionType int

const (
	ActionTypeNone ActionType = iota
	ActionTypeRepublish
	ActionTypeShell
)

// Action is a resolved keybinding ready for execution.
type Action struct {
	Type     ActionType
	Key      string
	Help     string
	Confirm  string // non-empty if confirmation required
	ShellCmd string // rendered command for shell actions
	Entry    httpapi.Entry
}

// NeedsConfirm returns true if the action requires user confirmation.
func (a Action) NeedsConfirm() bool {
	return a.Confirm != ""
}

// Publisher republishes entries for the built-in republish action.
type Publisher interface {
	Publish(ctx context.Context, channel, typ string, payload []byte) (httpapi.PublishResponse, error)
}

// KeybindingHandler resolves keybindings to actions.
type KeybindingHandler struct {
	keybindings map[string]config.Keybinding
	publisher   Publisher
	exec        executil.Executor
}

// NewKeybindingHandler creates a handler for the configured bindings.
func NewKeybindingHandler(keybindings map[string]config.Keybinding, publisher Publisher) *KeybindingHandler {
	return &KeybindingHandler{
		keybindings: keybindings,
		publisher:   publisher,
		exec:        executil.RealExecutor{},
	}
}

// WithExecutor replaces the executor used for shell actions.
func (h *KeybindingHandler) WithExecutor(e executil.Executor) *KeybindingHandler {
	h.exec = e
	return h
}

// Resolve maps a key press on the given entry to an action.
func (h *KeybindingHandler) Resolve(key string, entry httpapi.Entry) (Action, bool) {
	kb, exists := h.keybindings[key]
	if !exists {
		return Action{}, false
	}

	action := Action{
		Key:     key,
		Help:    helpFor(kb),
		Confirm: kb.Confirm,
		Entry:   entry,
	}

	if kb.Action == config.ActionRepublish {
		action.Type = ActionTypeRepublish
		return action, true
	}

	if kb.Sh == "" {
		return Action{}, false
	}

	action.Type = ActionTypeShell
	rendered, err := tmpl.Render(kb.Sh, entry.View())
	if err != nil {
		action.ShellCmd = fmt.Sprintf("echo %s", tmpl.ShellQuote("template error: "+err.Error()))
		return action, true
	}
	action.ShellCmd = rendered
	return action, true
}

// Execute runs the given action.
func (h *KeybindingHandler) Execute(ctx context.Context, action Action) (string, error) {
	switch action.Type {
	case ActionTypeRepublish:
		if h.publisher == nil {
			return "", fmt.Errorf("republish: no publisher configured")
		}
		e := action.Entry
		ack, err := h.publisher.Publish(ctx, e.Channel, e.Type, e.Bytes())
		if err != nil {
			return "", fmt.Errorf("republish: %w", err)
		}
		return fmt.Sprintf("republished to %s as %s", ack.Channel, ack.ID), nil
	case ActionTypeShell:
		out, err := h.exec.Run(ctx, executil.ShellCommand(action.ShellCmd, entryEnv(action.Entry)...))
		if err != nil {
			return string(out), fmt.Errorf("%s: %w", action.Key, err)
		}
		return string(out), nil
	default:
		return "", fmt.Errorf("action type %d not supported", action.Type)
	}
}

// entryEnv exposes the selected message to shell bindings.
func entryEnv(e httpapi.Entry) []string {
	return []string{
		"PERCH_MESSAGE_ID=" + e.ID,
		"PERCH_CHANNEL=" + e.Channel,
		"PERCH_TYPE=" + e.Type,
		"PERCH_SEQUENCE=" + strconv.FormatInt(e.Sequence, 10),
	}
}

// KeyBindings returns key.Binding values for the bubbles help view.
func (h *KeybindingHandler) KeyBindings() []key.Binding {
	keys := slices.Sorted(maps.Keys(h.keybindings))
	bindings := make([]key.Binding, 0, len(keys))

	for _, k := range keys {
		bindings = append(bindings, key.NewBinding(
			key.WithKeys(k),
			key.WithHelp(k, helpFor(h.keybindings[k])),
		))
	}

	return bindings
}

func helpFor(kb config.Keybinding) string {
	switch {
	case kb.Help != "":
		return kb.Help
	case kb.Action != "":
		return kb.Action
	default:
		return "shell"
	}
}
