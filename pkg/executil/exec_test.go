package executil

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestRealExecutor_Shell(t *testing.T) {
	out, err := RealExecutor{}.Run(context.Background(), ShellCommand("printf hello"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if string(out) != "hello" {
		t.Errorf("Run() output = %q, want hello", out)
	}

	out, err = RealExecutor{}.Run(context.Background(), ShellCommand("echo oops >&2; exit 2"))
	if err == nil {
		t.Fatal("expected error for non-zero exit")
	}
	if !strings.Contains(string(out), "oops") {
		t.Errorf("output should include stderr, got %q", out)
	}
}

func TestRealExecutor_Env(t *testing.T) {
	out, err := RealExecutor{}.Run(context.Background(),
		ShellCommand(`printf %s "$PERCH_TEST_VALUE"`, "PERCH_TEST_VALUE=from-env"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if string(out) != "from-env" {
		t.Errorf("Run() output = %q, want from-env", out)
	}
}

func TestRecordingExecutor(t *testing.T) {
	boom := errors.New("boom")
	e := &RecordingExecutor{
		Respond: func(c Command) ([]byte, error) {
			if c.Name == "false" {
				return nil, boom
			}
			return []byte("ok"), nil
		},
	}

	out, err := e.Run(context.Background(), ShellCommand("echo hi", "A=1"))
	if err != nil || string(out) != "ok" {
		t.Errorf("Run() = %q, %v", out, err)
	}
	if _, err := e.Run(context.Background(), Command{Name: "false"}); !errors.Is(err, boom) {
		t.Errorf("Run(false) error = %v, want boom", err)
	}

	cmds := e.Commands()
	if len(cmds) != 2 {
		t.Fatalf("recorded %d commands, want 2", len(cmds))
	}
	if got := cmds[0]; got.Name != "sh" || len(got.Args) != 2 || got.Args[1] != "echo hi" || got.Env[0] != "A=1" {
		t.Errorf("first command = %+v", got)
	}

	e.Reset()
	if len(e.Commands()) != 0 {
		t.Error("Reset should clear commands")
	}
}
