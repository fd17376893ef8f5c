package cluster

import (
	"bytes"
	"context"
	"os/exec"
)

// CommandRunner executes an external command given as an argv slice
// (never a shell string, per spec.md §4.3) and returns its stdout/stderr
// as bytes, decoded to UTF-8 only at the boundary where a caller needs to
// report or capture them.
//
// Grounded on cmd/cli/setup/service_manager.go's CommandExecutor: a real
// implementation backed by os/exec, split from the interface so tests can
// substitute a fake without spawning processes.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner is the production CommandRunner.
type ExecRunner struct{}

var _ CommandRunner = ExecRunner{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}
