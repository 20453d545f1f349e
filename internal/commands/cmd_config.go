package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/hay-kot/perch/internal/commands/doctor"
	"github.com/hay-kot/perch/internal/printer"
)

var errConfigNotLoaded = errors.New("configuration not loaded")

type ConfigCmd struct {
	flags  *Flags
	format string
}

// NewConfigCmd creates the config command group.
func NewConfigCmd(flags *Flags) *ConfigCmd {
	return &ConfigCmd{flags: flags}
}

// Register adds the config commands to the application.
func (cmd *ConfigCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "config",
		Usage: "Inspect the configuration",
		Commands: []*cli.Command{
			{
				Name:        "validate",
				Usage:       "Validate the configuration file",
				UsageText:   "perch config validate [--format text|json]",
				Description: "Checks durations, channel patterns, keybinding templates, the listen address and the data directory.",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "format",
						Usage:       "output format (text, json)",
						Value:       "text",
						Destination: &cmd.format,
					},
				},
				Action: cmd.runValidate,
			},
			{
				Name:        "show",
				Usage:       "Print the effective configuration",
				UsageText:   "perch config show",
				Description: "Prints the configuration after defaults are applied, as YAML.",
				Action:      cmd.runShow,
			},
		},
	})

	return app
}

func (cmd *ConfigCmd) runValidate(ctx context.Context, c *cli.Command) error {
	if cmd.flags.Config == nil {
		return errConfigNotLoaded
	}

	result := doctor.NewConfigCheck(cmd.flags.Config, cmd.flags.ConfigPath).Run(ctx)

	var errs, warns []doctor.Finding
	for _, f := range result.Items {
		switch f.Status {
		case doctor.StatusFail:
			errs = append(errs, f)
		case doctor.StatusWarn:
			warns = append(warns, f)
		}
	}

	if cmd.format == "json" {
		enc := json.NewEncoder(c.Root().Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Valid    bool             `json:"valid"`
			Errors   []doctor.Finding `json:"errors,omitempty"`
			Warnings []doctor.Finding `json:"warnings,omitempty"`
		}{len(errs) == 0, errs, warns})
	}

	p := printer.Ctx(ctx)
	if len(errs) > 0 {
		p.Section("Errors")
		for _, f := range errs {
			p.FailItem(f.Label, f.Detail)
		}
		p.Printf("")
	}
	if len(warns) > 0 {
		p.Section("Warnings")
		for _, f := range warns {
			p.WarnItem(f.Label, f.Detail)
		}
		p.Printf("")
	}

	switch {
	case len(errs) > 0:
		p.Errorf("%d error(s), %d warning(s)", len(errs), len(warns))
		return cli.Exit("", 1)
	case len(warns) > 0:
		p.Successf("Configuration is valid (%d warning(s))", len(warns))
	default:
		p.Successf("Configuration is valid")
	}
	return nil
}

func (cmd *ConfigCmd) runShow(_ context.Context, c *cli.Command) error {
	if cmd.flags.Config == nil {
		return errConfigNotLoaded
	}

	enc := yaml.NewEncoder(c.Root().Writer)
	enc.SetIndent(2)
	if err := enc.Encode(cmd.flags.Config); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}
