// Package ffmpeg wraps the ffmpeg and ffprobe binaries used to reconcile,
// merge and concatenate segment clips.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes one external command and returns its stdout. A failed
// command returns a *CommandError carrying stderr.
type Runner interface {
	Run(ctx context.Context, bin string, args ...string) ([]byte, error)
}

// CommandError is a non-zero exit from an external tool.
type CommandError struct {
	Bin    string
	Args   []string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if len(msg) > 500 {
		msg = "..." + msg[len(msg)-500:]
	}
	if msg == "" {
		return fmt.Sprintf("%s: %v", e.Bin, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Bin, e.Err, msg)
}

func (e *CommandError) Unwrap() error { return e.Err }

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, bin string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); errors.Is(ctxErr, context.DeadlineExceeded) {
			err = fmt.Errorf("timed out: %w", ctxErr)
		}
		return stdout.Bytes(), &CommandError{Bin: bin, Args: args, Stderr: stderr.String(), Err: err}
	}
	return stdout.Bytes(), nil
}
