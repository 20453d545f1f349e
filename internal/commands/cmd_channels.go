package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/perch/internal/printer"
)

type ChannelsCmd struct {
	flags *Flags
	json  bool
}

// NewChannelsCmd creates a new channels command
func NewChannelsCmd(flags *Flags) *ChannelsCmd {
	return &ChannelsCmd{flags: flags}
}

// Register adds the channels and stats commands to the application
func (cmd *ChannelsCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands,
		&cli.Command{
			Name:        "channels",
			Aliases:     []string{"ls"},
			Usage:       "List channels on the server",
			UsageText:   "perch channels [--json]",
			Description: "Displays a table of channels currently holding unexpired messages.",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:        "json",
					Usage:       "output as JSON",
					Destination: &cmd.json,
				},
			},
			Action: cmd.run,
		},
		&cli.Command{
			Name:        "stats",
			Usage:       "Show broker statistics",
			UsageText:   "perch stats",
			Description: "Prints the server's broker counters as JSON.",
			Action:      cmd.runStats,
		},
	)

	return app
}

func (cmd *ChannelsCmd) run(ctx context.Context, c *cli.Command) error {
	cl, err := cmd.flags.Client()
	if err != nil {
		return err
	}

	channels, err := cl.Channels(ctx)
	if err != nil {
		return fmt.Errorf("list channels: %w", err)
	}

	out := c.Root().Writer

	if cmd.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(channels)
	}

	if len(channels) == 0 {
		printer.Ctx(ctx).Infof("No channels with pending messages")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CHANNEL\tMESSAGES\tLAST SEQ\tUPDATED")

	for _, ch := range channels {
		updated := ch.UpdatedAt.Local().Format(time.TimeOnly)
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", ch.Name, ch.Messages, ch.LastSequence, updated)
	}

	return w.Flush()
}

func (cmd *ChannelsCmd) runStats(ctx context.Context, c *cli.Command) error {
	cl, err := cmd.flags.Client()
	if err != nil {
		return err
	}

	stats, err := cl.Stats(ctx)
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}

	enc := json.NewEncoder(c.Root().Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(stats)
}
