package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/hay-kot/perch/internal/broker"
	"github.com/hay-kot/perch/internal/styles"
	"github.com/hay-kot/perch/internal/transport/httpapi"
)

type ServeCmd struct {
	flags *Flags
	addr  string
}

// NewServeCmd creates a new serve command.
func NewServeCmd(flags *Flags) *ServeCmd {
	return &ServeCmd{flags: flags}
}

// Register adds the serve command to the application.
func (cmd *ServeCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "serve",
		Usage:     "Run the broker and its HTTP API",
		UsageText: "perch serve [--addr host:port]",
		Description: `Runs the message broker behind an HTTP long-poll API until interrupted.

Subscribers poll GET /poll?client=<id>&channel=<name>; the request is held
until unseen messages arrive, then answered with everything that arrives
within the buffer window. Producers POST to /publish/<channel>.

On SIGINT or SIGTERM every held poll is answered with what it has and the
server shuts down gracefully.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Aliases:     []string{"a"},
				Usage:       "listen address (overrides server.addr)",
				Sources:     cli.EnvVars("PERCH_ADDR"),
				Destination: &cmd.addr,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *ServeCmd) run(ctx context.Context, _ *cli.Command) error {
	cfg := cmd.flags.Config

	addr := cfg.Server.Addr
	if cmd.addr != "" {
		addr = cmd.addr
	}

	opts := []broker.Option{
		broker.WithLogger(log.With().Str("component", "broker").Logger()),
	}
	if cfg.Activity.Enabled {
		opts = append(opts, broker.WithActivity(cmd.flags.ActivityStore()))
	}

	b, err := broker.New(broker.Options{
		MessageTimeout:        cfg.Broker.MessageTimeout,
		BufferTimeout:         cfg.Broker.BufferTimeout,
		RequestTimeout:        cfg.Broker.RequestTimeout,
		SweepInterval:         cfg.Broker.SweepInterval,
		ClaimShards:           cfg.Broker.ClaimShards,
		MaxMessagesPerChannel: cfg.Broker.MaxMessagesPerChannel,
	}, opts...)
	if err != nil {
		return err
	}

	srv, err := httpapi.New(b, cfg.Server, log.With().Str("component", "http").Logger())
	if err != nil {
		b.Close()
		return fmt.Errorf("create server: %w", err)
	}

	if term.IsTerminal(int(os.Stderr.Fd())) {
		fmt.Fprintln(os.Stderr, styles.BannerStyle.Render(styles.Banner))
		fmt.Fprintln(os.Stderr)
	}

	for _, w := range cfg.Warnings() {
		log.Warn().Str("category", w.Category).Str("item", w.Item).Msg(w.Message)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(ctx, addr, cfg.Server.ShutdownTimeout)
	})
	g.Go(func() error {
		reportStats(ctx, b, statsInterval)
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	// Run closes the broker on shutdown; this covers a failed listen.
	b.Close()
	return nil
}

const statsInterval = time.Minute

// reportStats logs broker statistics periodically until ctx ends.
func reportStats(ctx context.Context, b *broker.Broker, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	var last broker.Stats
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := b.Stats()
			if s == last {
				continue
			}
			last = s
			log.Debug().
				Int("messages", s.Messages).
				Int("channels", s.Channels).
				Int("pending", s.Pending).
				Uint64("published", s.Published).
				Uint64("delivered", s.Delivered).
				Msg("broker stats")
		}
	}
}
