package commands

import (
	"context"
	"encoding/json"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/perch/internal/commands/doctor"
	"github.com/hay-kot/perch/internal/printer"
)

type DoctorCmd struct {
	flags  *Flags
	format string
	fix    bool
}

func NewDoctorCmd(flags *Flags) *DoctorCmd {
	return &DoctorCmd{flags: flags}
}

func (cmd *DoctorCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:        "doctor",
		Usage:       "Run health checks on your perch setup",
		UsageText:   "perch doctor [options]",
		Description: "Runs diagnostic checks on configuration, local stores, and the configured server.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "format",
				Usage:       "output format (text, json)",
				Value:       "text",
				Destination: &cmd.format,
			},
			&cli.BoolFlag{
				Name:        "fix",
				Usage:       "delete leftover files from interrupted writes",
				Destination: &cmd.fix,
			},
		},
		Action: cmd.run,
	})
	return app
}

func (cmd *DoctorCmd) run(ctx context.Context, c *cli.Command) error {
	cfg := cmd.flags.Config

	checks := []doctor.Check{
		doctor.NewConfigCheck(cfg, cmd.flags.ConfigPath),
	}

	var activity doctor.ActivityLister
	if cfg.Activity.Enabled {
		activity = cmd.flags.ActivityStore()
	}
	checks = append(checks,
		doctor.NewStoreCheck(cmd.flags.IdentityStore(), activity),
		doctor.NewLeftoverCheck(cfg.DataDir, cmd.fix),
	)

	if cl, err := cmd.flags.Client(); err == nil {
		checks = append(checks, doctor.NewServerCheck(cl, 5*time.Second))
	}

	report := doctor.Run(ctx, checks...)

	if cmd.format == "json" {
		enc := json.NewEncoder(c.Root().Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Healthy bool `json:"healthy"`
			doctor.Report
		}{report.Healthy(), report})
	}

	return cmd.outputText(ctx, report)
}

func (cmd *DoctorCmd) outputText(ctx context.Context, report doctor.Report) error {
	p := printer.Ctx(ctx)

	for _, result := range report.Results {
		p.Section(result.Name)

		for _, f := range result.Items {
			switch f.Status {
			case doctor.StatusPass:
				p.CheckItem(f.Label, f.Detail)
			case doctor.StatusWarn:
				p.WarnItem(f.Label, f.Detail)
			case doctor.StatusFail:
				p.FailItem(f.Label, f.Detail)
			}
		}

		p.Printf("")
	}

	p.Printf("Summary: %d passed, %d warnings, %d failed", report.Passed, report.Warned, report.Failed)

	if report.Fixable > 0 && !cmd.fix {
		p.Infof("%d issue(s) can be fixed with 'perch doctor --fix'", report.Fixable)
	}

	if !report.Healthy() {
		return cli.Exit("", 1)
	}

	return nil
}
