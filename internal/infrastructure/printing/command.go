package printing

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
)

// CommandResult holds the captured output of a finished command
type CommandResult struct {
	Stdout []byte
	Stderr []byte
}

// Diagnostic returns trimmed stderr, falling back to stdout when stderr is empty
func (r *CommandResult) Diagnostic() string {
	if r == nil {
		return ""
	}
	if msg := strings.TrimSpace(string(r.Stderr)); msg != "" {
		return msg
	}
	return strings.TrimSpace(string(r.Stdout))
}

// CommandRunner runs an external program and waits for it to exit
type CommandRunner interface {
	// Run always returns the captured output, even when err is non-nil
	Run(ctx context.Context, name string, args ...string) (*CommandResult, error)
}

// ExecRunner runs commands with os/exec
type ExecRunner struct{}

// Run executes name with args, killing it when ctx is done
func (ExecRunner) Run(ctx context.Context, name string, args ...string) (*CommandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return &CommandResult{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}, err
}
