// Package executil runs external commands behind an interface so callers
// can be tested without spawning processes.
package executil

import (
	"context"
	"fmt"
	"os"
	"os/exec"
)

// Command is a process to run. Env entries are KEY=value pairs added to the
// current environment.
type Command struct {
	Name string
	Args []string
	Env  []string
}

// ShellCommand returns a Command running script with sh -c.
func ShellCommand(script string, env ...string) Command {
	return Command{Name: "sh", Args: []string{"-c", script}, Env: env}
}

// Executor runs external commands.
type Executor interface {
	// Run executes c and returns its combined output.
	Run(ctx context.Context, c Command) ([]byte, error)
}

// RealExecutor runs commands with os/exec.
type RealExecutor struct{}

// Run executes c and returns its combined output. Output is returned even
// when the command fails.
func (RealExecutor) Run(ctx context.Context, c Command) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}

	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("exec %s: %w", c.Name, err)
	}
	return out, nil
}
