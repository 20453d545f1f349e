package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/hay-kot/perch/internal/core/validate"
	"github.com/hay-kot/perch/internal/styles"
	"github.com/hay-kot/perch/internal/transport/httpapi"
	"github.com/hay-kot/perch/pkg/tmpl"
)

type SubCmd struct {
	flags *Flags

	channels []string
	identity string
	clientID string
	wait     bool
	timeout  time.Duration
	format   string
	plain    bool
}

// errDone stops the listen loop after --wait received its batch.
var errDone = errors.New("done")

// NewSubCmd creates a new sub command.
func NewSubCmd(flags *Flags) *SubCmd {
	return &SubCmd{flags: flags}
}

// Register adds the sub command to the application.
func (cmd *SubCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "sub",
		Usage:     "Receive messages from channels",
		UsageText: "perch sub --channel <name> [--channel <name>...] [--wait]",
		Description: `Long-polls the server and prints every message as it arrives.

Each message is delivered once per client. The client ID comes from a named
identity stored in the data directory (--identity, default "default"), so
repeated invocations pick up where the last one left off. Use --client-id to
poll as an explicit ID instead.

On a terminal each message is printed as a short styled block; otherwise, or
with --plain, messages are printed as JSON lines. --format overrides both. The template
receives the message with the fields .ID .Channel .Type .Sequence
.PublishedAt and .Payload (string), plus the functions shq and json.

Examples:
  perch sub --channel build
  perch sub -c jobs/build -c jobs/test --format '{{ .Channel }}: {{ .Payload }}'
  perch sub --wait --channel handoff --timeout 10m`,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:        "channel",
				Aliases:     []string{"c"},
				Usage:       "channel to subscribe to (repeatable)",
				Required:    true,
				Destination: &cmd.channels,
			},
			&cli.StringFlag{
				Name:        "identity",
				Aliases:     []string{"i"},
				Usage:       "named identity to poll as (overrides client.identity)",
				Sources:     cli.EnvVars("PERCH_IDENTITY"),
				Destination: &cmd.identity,
			},
			&cli.StringFlag{
				Name:        "client-id",
				Usage:       "poll as this exact client ID",
				Destination: &cmd.clientID,
			},
			&cli.BoolFlag{
				Name:        "wait",
				Aliases:     []string{"w"},
				Usage:       "exit after the first batch of messages",
				Destination: &cmd.wait,
			},
			&cli.DurationFlag{
				Name:        "timeout",
				Usage:       "give up after this long (0 waits forever)",
				Destination: &cmd.timeout,
			},
			&cli.StringFlag{
				Name:        "format",
				Usage:       "Go template used to print each message",
				Destination: &cmd.format,
			},
			&cli.BoolFlag{
				Name:        "plain",
				Usage:       "print JSON lines even on a terminal",
				Destination: &cmd.plain,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *SubCmd) run(ctx context.Context, c *cli.Command) error {
	for _, ch := range cmd.channels {
		if err := validate.ChannelName(ch); err != nil {
			return err
		}
	}

	clientID, err := cmd.flags.ResolveClientID(ctx, cmd.identity, cmd.clientID)
	if err != nil {
		return err
	}

	cl, err := cmd.flags.Client()
	if err != nil {
		return err
	}

	if cmd.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cmd.timeout)
		defer cancel()
	}

	out := c.Root().Writer
	p := entryPrinter{format: cmd.format, styled: !cmd.plain && isTerminal(out)}
	log.Debug().Str("client", clientID).Strs("channels", cmd.channels).Msg("subscribing")

	err = cl.Listen(ctx, clientID, cmd.channels, func(resp httpapi.PollResponse) error {
		for _, entry := range resp.Messages {
			if err := p.print(out, entry); err != nil {
				return err
			}
		}
		if cmd.wait {
			return errDone
		}
		return nil
	})

	switch {
	case errors.Is(err, errDone):
		return nil
	case errors.Is(err, context.DeadlineExceeded) && cmd.timeout > 0:
		if cmd.wait {
			return fmt.Errorf("timeout waiting for messages on %s", strings.Join(cmd.channels, ", "))
		}
		return nil
	case errors.Is(err, context.Canceled):
		return nil
	default:
		return err
	}
}

// entryPrinter writes received messages in one of three forms: a user
// template, a styled block for terminals, or JSON lines.
type entryPrinter struct {
	format string
	styled bool
}

func (p entryPrinter) print(w io.Writer, e httpapi.Entry) error {
	switch {
	case p.format != "":
		out, err := tmpl.Render(p.format, e.View())
		if err != nil {
			return fmt.Errorf("render --format: %w", err)
		}
		_, err = fmt.Fprintln(w, out)
		return err
	case p.styled:
		_, err := fmt.Fprintln(w, styledEntry(e))
		return err
	default:
		return json.NewEncoder(w).Encode(e)
	}
}

const dividerWidth = 40

func styledEntry(e httpapi.Entry) string {
	var b strings.Builder

	b.WriteString(styles.TimestampStyle.Render(e.PublishedAt.Local().Format("15:04:05")))
	b.WriteString(" ")
	b.WriteString(styles.ChannelStyle.Render(e.Channel))
	b.WriteString(" ")
	b.WriteString(styles.SequenceStyle.Render("#" + strconv.FormatInt(e.Sequence, 10)))
	if e.Type != "" {
		b.WriteString(" ")
		b.WriteString(e.Type)
	}
	b.WriteString("\n")
	b.WriteString(strings.TrimRight(string(e.Bytes()), "\n"))
	b.WriteString("\n")
	b.WriteString(styles.DividerStyle.Render(strings.Repeat("─", dividerWidth)))

	return b.String()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
