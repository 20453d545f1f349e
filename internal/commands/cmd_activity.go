package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/perch/internal/core/messaging"
	"github.com/hay-kot/perch/internal/printer"
)

type ActivityCmd struct {
	flags *Flags

	last  int
	since time.Duration
	types []string
	json  bool
}

// NewActivityCmd creates a new activity command
func NewActivityCmd(flags *Flags) *ActivityCmd {
	return &ActivityCmd{flags: flags}
}

// Register adds the activity command to the application
func (cmd *ActivityCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "activity",
		Usage:     "Show the broker activity journal",
		UsageText: "perch activity [--last N] [--since 10m] [--type publish]",
		Description: `Reads the activity journal written by 'perch serve' when activity.enabled
is set. Events are listed newest first.`,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:        "last",
				Aliases:     []string{"n"},
				Usage:       "number of events to show (0 for all)",
				Value:       50,
				Destination: &cmd.last,
			},
			&cli.DurationFlag{
				Name:        "since",
				Usage:       "only show events newer than this",
				Destination: &cmd.since,
			},
			&cli.StringSliceFlag{
				Name:        "type",
				Aliases:     []string{"t"},
				Usage:       "only show these event types (publish, subscribe, resolve, cancel)",
				Destination: &cmd.types,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "output as JSON lines",
				Destination: &cmd.json,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *ActivityCmd) run(ctx context.Context, c *cli.Command) error {
	p := printer.Ctx(ctx)

	if !cmd.flags.Config.Activity.Enabled {
		p.Warnf("activity.enabled is off; the journal may be stale or empty")
	}

	var since time.Time
	if cmd.since > 0 {
		since = time.Now().Add(-cmd.since)
	}

	// Type filtering happens here, so the store must not apply the limit.
	limit := cmd.last
	if len(cmd.types) > 0 {
		limit = 0
	}

	events, err := cmd.flags.ActivityStore().ListSince(since, limit)
	if err != nil {
		return fmt.Errorf("read activity: %w", err)
	}

	events = filterActivity(events, cmd.types, cmd.last)

	out := c.Root().Writer

	if cmd.json {
		enc := json.NewEncoder(out)
		for _, e := range events {
			if err := enc.Encode(e); err != nil {
				return err
			}
		}
		return nil
	}

	if len(events) == 0 {
		p.Infof("No activity recorded")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TIME\tTYPE\tCLIENT\tCHANNELS\tDETAIL")
	for _, e := range events {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.Local().Format("15:04:05.000"),
			e.Type,
			orDash(e.ClientID),
			orDash(strings.Join(e.Channels, ",")),
			activityDetail(e),
		)
	}
	return w.Flush()
}

// filterActivity keeps events whose type is in types (all when empty), up to
// limit events (all when limit <= 0).
func filterActivity(events []messaging.Activity, types []string, limit int) []messaging.Activity {
	out := make([]messaging.Activity, 0, len(events))
	for _, e := range events {
		if len(types) > 0 && !slices.Contains(types, string(e.Type)) {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func activityDetail(e messaging.Activity) string {
	switch e.Type {
	case messaging.ActivityPublish:
		return fmt.Sprintf("message %s seq %d", e.MessageID, e.Sequence)
	case messaging.ActivityResolve:
		if e.TimedOut {
			return "timed out"
		}
		return fmt.Sprintf("%d message(s)", e.Count)
	case messaging.ActivityCancel:
		return fmt.Sprintf("dropped %d", e.Count)
	default:
		return orDash(e.RequestID)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
