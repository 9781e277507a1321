// Package analyzers runs external smart-contract analyzers and normalizes
// their JSON output into engine findings.
package analyzers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrBinaryNotFound is returned when an analyzer binary is not installed.
var ErrBinaryNotFound = errors.New("analyzer binary not found")

// CommandRunner executes a command and returns its stdout. It exists so
// tests can replace process execution.
type CommandRunner func(ctx context.Context, dir, name string, args ...string) (stdout []byte, exitCode int, err error)

// ExecRunner runs the command with os/exec.
func ExecRunner(ctx context.Context, dir, name string, args ...string) ([]byte, int, error) {
	if _, err := exec.LookPath(name); err != nil {
		return nil, -1, fmt.Errorf("%w: %s", ErrBinaryNotFound, name)
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	log.Debug().
		Str("binary", name).
		Strs("args", args).
		Dur("duration", time.Since(start)).
		Int("stdout_bytes", stdout.Len()).
		Msg("Analyzer finished")

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// Most analyzers exit non-zero when they report findings.
		return stdout.Bytes(), exitErr.ExitCode(), nil
	}
	if err != nil {
		return nil, -1, fmt.Errorf("%s: %w (stderr: %s)", name, err, truncate(stderr.String(), 512))
	}
	return stdout.Bytes(), 0, nil
}

// Command describes how to invoke one analyzer binary.
type Command struct {
	Binary  string
	Args    []string
	Timeout time.Duration
	Runner  CommandRunner
}

func (c Command) run(ctx context.Context, dir string, args ...string) ([]byte, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	runner := c.Runner
	if runner == nil {
		runner = ExecRunner
	}
	out, code, err := runner(ctx, dir, c.Binary, append(append([]string(nil), c.Args...), args...)...)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%s: %w", c.Binary, ctx.Err())
	}
	if len(bytes.TrimSpace(out)) == 0 && code != 0 {
		return nil, fmt.Errorf("%s exited with status %d and no output", c.Binary, code)
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
