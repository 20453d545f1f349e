package commands

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"

	"github.com/hay-kot/perch/internal/core/validate"
	"github.com/hay-kot/perch/internal/tui"
	"github.com/hay-kot/perch/pkg/randid"
)

type TailCmd struct {
	flags *Flags

	channels []string
	identity string
	clientID string
}

// NewTailCmd creates a new tail command.
func NewTailCmd(flags *Flags) *TailCmd {
	return &TailCmd{flags: flags}
}

// Register adds the tail command to the application.
func (cmd *TailCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "tail",
		Usage:     "Watch channels in an interactive viewer",
		UsageText: "perch tail --channel <name> [--channel <name>...]",
		Description: `Opens a full-screen viewer that long-polls the given channels and lists
messages as they arrive.

By default the viewer polls under a fresh random client ID, so it sees every
message without taking deliveries away from other subscribers. Pass
--identity or --client-id to consume as a known client instead.

Keys: ↑/↓ move, g/G jump to oldest/newest, enter previews the payload,
/ filters, q quits. Extra bindings come from tail.keybindings in the config;
"p" republishes the selected message by default.`,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:        "channel",
				Aliases:     []string{"c"},
				Usage:       "channel to watch (repeatable)",
				Required:    true,
				Destination: &cmd.channels,
			},
			&cli.StringFlag{
				Name:        "identity",
				Aliases:     []string{"i"},
				Usage:       "named identity to poll as",
				Destination: &cmd.identity,
			},
			&cli.StringFlag{
				Name:        "client-id",
				Usage:       "poll as this exact client ID",
				Destination: &cmd.clientID,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *TailCmd) run(ctx context.Context, _ *cli.Command) error {
	for _, ch := range cmd.channels {
		if err := validate.ChannelName(ch); err != nil {
			return err
		}
	}

	clientID := "tail-" + randid.Generate(8)
	if cmd.identity != "" || cmd.clientID != "" {
		var err error
		clientID, err = cmd.flags.ResolveClientID(ctx, cmd.identity, cmd.clientID)
		if err != nil {
			return err
		}
	}

	cl, err := cmd.flags.Client()
	if err != nil {
		return err
	}

	cfg := cmd.flags.Config
	m := tui.New(ctx, cl, tui.Options{
		ClientID:    clientID,
		Channels:    cmd.channels,
		MaxEntries:  cfg.Tail.MaxEntries,
		Keybindings: cfg.Tail.Keybindings,
		RetryDelay:  cfg.Client.MaxRetryDelay,
	})

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil {
		return fmt.Errorf("run viewer: %w", err)
	}

	if fm, ok := final.(tui.Model); ok && fm.Err() != nil {
		return fm.Err()
	}
	return nil
}
