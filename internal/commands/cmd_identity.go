package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/perch/internal/core/messaging"
	"github.com/hay-kot/perch/internal/printer"
)

type IdentityCmd struct {
	flags *Flags
	json  bool
}

// NewIdentityCmd creates a new identity command
func NewIdentityCmd(flags *Flags) *IdentityCmd {
	return &IdentityCmd{flags: flags}
}

// Register adds the identity command to the application
func (cmd *IdentityCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "identity",
		Usage: "Manage named subscriber identities",
		Description: `Identities map a name to the client ID used when polling. They are created
on first use by 'perch sub' and stored in the data directory.

Removing an identity makes its next use start over with a new client ID,
which receives every unexpired message again.`,
		Commands: []*cli.Command{
			{
				Name:      "ls",
				Usage:     "List identities",
				UsageText: "perch identity ls [--json]",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:        "json",
						Usage:       "output as JSON",
						Destination: &cmd.json,
					},
				},
				Action: cmd.runList,
			},
			{
				Name:      "rm",
				Usage:     "Remove an identity",
				UsageText: "perch identity rm <name>",
				Action:    cmd.runRemove,
			},
		},
	})

	return app
}

func (cmd *IdentityCmd) runList(ctx context.Context, c *cli.Command) error {
	idents, err := cmd.flags.IdentityStore().List(ctx)
	if err != nil {
		return fmt.Errorf("list identities: %w", err)
	}

	out := c.Root().Writer

	if cmd.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(idents)
	}

	if len(idents) == 0 {
		printer.Ctx(ctx).Infof("No identities yet")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tCLIENT ID\tLAST USED")
	for _, ident := range idents {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", ident.Name, ident.ClientID, ident.LastUsedAt.Local().Format(time.DateTime))
	}
	return w.Flush()
}

func (cmd *IdentityCmd) runRemove(ctx context.Context, c *cli.Command) error {
	name := c.Args().First()
	if name == "" {
		return cli.Exit("identity name is required", 1)
	}

	err := cmd.flags.IdentityStore().Delete(ctx, name)
	switch {
	case errors.Is(err, messaging.ErrIdentityNotFound):
		return fmt.Errorf("no identity named %q", name)
	case err != nil:
		return fmt.Errorf("remove identity: %w", err)
	}

	printer.Ctx(ctx).Successf("Removed identity %s", name)
	return nil
}
