package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/hay-kot/perch/internal/core/validate"
	"github.com/hay-kot/perch/internal/forms"
)

type PubCmd struct {
	flags *Flags

	channel string
	typ     string
	file    string
	fields  []string
	quiet   bool
}

// NewPubCmd creates a new pub command.
func NewPubCmd(flags *Flags) *PubCmd {
	return &PubCmd{flags: flags}
}

// Register adds the pub command to the application.
func (cmd *PubCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "pub",
		Usage:     "Publish a message to a channel",
		UsageText: "perch pub --channel <name> [payload]",
		Description: `Publishes a message to the specified channel.

The payload can be provided as:
- A command-line argument
- From a file with -f/--file
- As a JSON object built from --field name=value pairs
- From stdin if no argument is provided

When stdin is a terminal and no payload is given, an interactive form asks
for the channel, type, and payload.

Examples:
  perch pub --channel build "Build starting"
  perch pub -c jobs/build -F id=42 -F targets=linux,darwin
  echo '{"ok":true}' | perch pub --channel results
  perch pub -c logs -f build.log --type text/plain`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "channel",
				Aliases:     []string{"c"},
				Usage:       "channel to publish to",
				Destination: &cmd.channel,
			},
			&cli.StringFlag{
				Name:        "type",
				Aliases:     []string{"t"},
				Usage:       "message type (defaults to the payload's content type)",
				Destination: &cmd.typ,
			},
			&cli.StringFlag{
				Name:        "file",
				Aliases:     []string{"f"},
				Usage:       "read payload from file",
				Destination: &cmd.file,
			},
			&cli.StringSliceFlag{
				Name:        "field",
				Aliases:     []string{"F"},
				Usage:       "add a name=value pair to a JSON object payload (repeatable)",
				Destination: &cmd.fields,
			},
			&cli.BoolFlag{
				Name:        "quiet",
				Aliases:     []string{"q"},
				Usage:       "do not print the published message ID",
				Destination: &cmd.quiet,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *PubCmd) run(ctx context.Context, c *cli.Command) error {
	cl, err := cmd.flags.Client()
	if err != nil {
		return err
	}

	var (
		channel = cmd.channel
		typ     = cmd.typ
		payload []byte
	)

	switch {
	case c.NArg() >= 1:
		payload = []byte(c.Args().Get(0))
	case cmd.file != "":
		payload, err = os.ReadFile(cmd.file)
		if err != nil {
			return fmt.Errorf("read file: %w", err)
		}
	case len(cmd.fields) > 0:
		payload, err = forms.ParseFields(cmd.fields)
		if err != nil {
			return err
		}
	case term.IsTerminal(int(os.Stdin.Fd())):
		form := &forms.Publish{Channel: channel, Type: typ}

		var known []string
		if infos, err := cl.Channels(ctx); err == nil {
			for _, info := range infos {
				known = append(known, info.Name)
			}
		}

		if err := form.Run(known); err != nil {
			return err
		}
		channel, typ, payload = form.Channel, form.Type, []byte(form.Payload)
	default:
		payload, err = io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
	}

	if channel == "" {
		return errors.New("--channel is required")
	}
	if err := validate.ChannelName(channel); err != nil {
		return err
	}

	ack, err := cl.Publish(ctx, channel, typ, payload)
	if err != nil {
		return err
	}

	if !cmd.quiet {
		_, _ = fmt.Fprintln(c.Root().Writer, ack.ID)
	}
	log.Debug().
		Str("id", ack.ID).
		Str("channel", ack.Channel).
		Int64("sequence", ack.Sequence).
		Msg("published")

	return nil
}
