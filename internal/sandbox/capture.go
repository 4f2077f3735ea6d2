package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"codelab/internal/toolchain"
)

// CaptureResult is the buffered outcome of a non-interactive run.
type CaptureResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
}

// Capture runs a command to completion with the given stdin and captures both
// output streams. Used by grading, where output is compared rather than
// streamed. The child is killed when the timeout elapses.
func Capture(ctx context.Context, command toolchain.Command, dir, stdin string, timeout time.Duration) (*CaptureResult, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, command.Path, command.Args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "PYTHONUNBUFFERED=1")
	cmd.Stdin = strings.NewReader(stdin)
	hideConsole(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := &CaptureResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		TimedOut: errors.Is(ctx.Err(), context.DeadlineExceeded),
	}
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrToolNotFound, command.Tool)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			if res.ExitCode < 0 {
				res.ExitCode = 1
			}
			return res, nil
		}
		if res.TimedOut {
			res.ExitCode = 1
			return res, nil
		}
		return nil, err
	}
	return res, nil
}
