package doctor

import (
	"context"
	"fmt"
	"time"

	"github.com/hay-kot/perch/internal/broker"
)

// ServerAPI is the part of the client used to reach a running server.
type ServerAPI interface {
	URL() string
	Health(ctx context.Context) error
	Stats(ctx context.Context) (broker.Stats, error)
}

// ServerCheck verifies the configured server answers. An unreachable server
// is a warning, since most commands only need it while they run.
type ServerCheck struct {
	api     ServerAPI
	timeout time.Duration
}

// NewServerCheck creates a new server reachability check.
func NewServerCheck(api ServerAPI, timeout time.Duration) *ServerCheck {
	return &ServerCheck{api: api, timeout: timeout}
}

func (c *ServerCheck) Name() string {
	return "Server"
}

func (c *ServerCheck) Run(ctx context.Context) Result {
	result := Result{Name: c.Name()}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	if err := c.api.Health(ctx); err != nil {
		result.warn(c.api.URL(), fmt.Sprintf("not reachable: %v", err))
		return result
	}
	result.pass(c.api.URL(), "healthy")

	stats, err := c.api.Stats(ctx)
	if err != nil {
		result.warn("Stats", err.Error())
		return result
	}
	result.pass("Stats", fmt.Sprintf("%d messages in %d channels, %d pending polls",
		stats.Messages, stats.Channels, stats.Pending))

	return result
}
