package executil

import (
	"context"
	"sync"
)

// RecordingExecutor records commands instead of running them. Respond, when
// set, supplies the output and error for each command.
type RecordingExecutor struct {
	Respond func(Command) ([]byte, error)

	mu       sync.Mutex
	commands []Command
}

// Run records c and returns Respond's answer.
func (e *RecordingExecutor) Run(_ context.Context, c Command) ([]byte, error) {
	e.mu.Lock()
	e.commands = append(e.commands, c)
	e.mu.Unlock()

	if e.Respond == nil {
		return nil, nil
	}
	return e.Respond(c)
}

// Commands returns the commands recorded so far.
func (e *RecordingExecutor) Commands() []Command {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Command(nil), e.commands...)
}

// Reset clears recorded commands.
func (e *RecordingExecutor) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.commands = nil
}
