package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/hay-kot/perch/internal/core/config"
)

type DocCmd struct {
	flags *Flags
	plain bool
}

func NewDocCmd(flags *Flags) *DocCmd {
	return &DocCmd{flags: flags}
}

func (cmd *DocCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "doc",
		Usage: "Protocol and configuration reference",
		Description: `Access reference documentation for perch.

Use 'perch doc protocol' to see the HTTP long-poll protocol.
Use 'perch doc config' to see every configuration key with its default.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "plain",
				Usage:       "print raw markdown even on a terminal",
				Destination: &cmd.plain,
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "protocol",
				Usage: "Show the HTTP protocol used by clients",
				Description: `Outputs the endpoints, parameters, and delivery rules of a perch
server, for writing clients in other languages.`,
				Action: cmd.runProtocol,
			},
			{
				Name:   "config",
				Usage:  "Show the configuration reference",
				Action: cmd.runConfig,
			},
		},
	})
	return app
}

func (cmd *DocCmd) runProtocol(_ context.Context, c *cli.Command) error {
	return cmd.render(c.Root().Writer, protocolGuide)
}

func (cmd *DocCmd) runConfig(_ context.Context, c *cli.Command) error {
	defaults, err := yaml.Marshal(config.DefaultConfig())
	if err != nil {
		return fmt.Errorf("encode defaults: %w", err)
	}

	guide := configGuideHeader + "```yaml\n" + string(defaults) + "```\n" + configGuideNotes
	return cmd.render(c.Root().Writer, guide)
}

// render writes markdown to w, styled through glamour when stdout is a
// terminal.
func (cmd *DocCmd) render(w io.Writer, markdown string) error {
	if cmd.plain || !term.IsTerminal(int(os.Stdout.Fd())) {
		_, err := io.WriteString(w, markdown)
		return err
	}

	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		width = 80
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("tokyo-night"),
		glamour.WithWordWrap(min(width, 100)),
	)
	if err != nil {
		return fmt.Errorf("create renderer: %w", err)
	}

	out, err := r.Render(markdown)
	if err != nil {
		return fmt.Errorf("render markdown: %w", err)
	}

	_, err = io.WriteString(w, out)
	return err
}

var protocolGuide = strings.ReplaceAll(`# Perch HTTP Protocol

A perch server is a long-poll message broker. Publishers post messages to
named channels; subscribers hold a request open until messages arrive.

## Publishing

~~~
POST /publish/{channel}?type={type}
Content-Type: application/json
~~~

The request body is the payload and is stored byte for byte. ''type'' is
optional and defaults to the body's media type. The server answers
''202 Accepted'', or ''503'' once it is shutting down:

~~~json
{"id": "0c6f...", "channel": "jobs/build", "sequence": 42}
~~~

Channel names may contain ''/'' but not glob characters, whitespace, empty
segments, or a leading or trailing slash.

## Subscribing

~~~
GET /poll?client={client-id}&channel={a}&channel={b}
~~~

The request blocks until a message is available on any listed channel, or
the request timeout passes. Once the first message arrives, the server keeps
collecting for a short buffer window, restarting the window on each new
message, so bursts come back in one response:

~~~json
{
  "request_id": "7a1b...",
  "client_id": "worker-1",
  "timed_out": false,
  "messages": [
    {"id": "0c6f...", "channel": "jobs/build", "type": "application/json",
     "sequence": 42, "published_at": "2024-05-01T12:00:00Z", "payload": {"ok": true},
     "payload_encoding": "json"}
  ]
}
~~~

''payload_encoding'' tells you how to get the published bytes back:

| Encoding | Payload field |
|----------|---------------|
| ''json'' | the body itself, when it was compact JSON |
| ''text'' | a JSON string holding the UTF-8 body |
| ''base64'' | a JSON string holding the base64 of a binary body |

A response with ''"timed_out": true'' carries an empty ''messages'' array.
Poll again immediately in either case.

## Delivery Rules

- Each message is delivered **at most once per client ID**. Two clients
  polling the same channel each receive every message.
- A message published before a poll is still delivered if it has not
  expired (''broker.message_timeout'', default 30s).
- Closing the connection cancels the poll. Messages it had already
  collected count as delivered to that client and are not sent again.
- Messages in a response are ordered by publish sequence.

## Errors

Errors are JSON objects: ''{"error": "..."}''.

| Status | Meaning |
| ------ | ------- |
| 400 | invalid client ID, channel name, or missing channel |
| 403 | channel not in ''server.allowed_channels'' |
| 413 | payload larger than ''server.max_payload_bytes'' |
| 503 | server shutting down; retry against the restarted server |

## Other Endpoints

- ''GET /channels'': channels holding messages, with counts and last sequence
- ''GET /stats'': broker counters as JSON
- ''GET /healthz'': plain ''ok''
- ''GET /metrics'': Prometheus metrics
`, "''", "`")

const configGuideHeader = `# Perch Configuration

perch reads ` + "`config.yaml`" + ` from ` + "`$XDG_CONFIG_HOME/perch`" + ` (override with
` + "`--config`" + ` or ` + "`PERCH_CONFIG`" + `). Every key is optional; these are the defaults:

`

const configGuideNotes = `
## Notes

- Durations use Go syntax: ` + "`50ms`, `30s`, `5m`" + `. Zero means "use the default";
  negative values are rejected.
- ` + "`server.allowed_channels`" + ` takes glob patterns such as ` + "`jobs/*`" + ` or ` + "`events/**`" + `.
- ` + "`tail.keybindings`" + ` maps a key to either ` + "`action: republish`" + ` or an ` + "`sh`" + `
  template. Templates see ` + "`.ID .Channel .Type .Sequence .PublishedAt .Payload`" + `
  and the functions ` + "`shq`, `json`, and `trunc`" + `. The command also gets
  ` + "`PERCH_MESSAGE_ID`, `PERCH_CHANNEL`, `PERCH_TYPE` and `PERCH_SEQUENCE`" + ` in its environment.
`
