// CodeLab process supervisor
// Drives compile and run stages for one source file with streamed I/O

package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"codelab/internal/logging"
	"codelab/internal/toolchain"
)

// CompileResult is the outcome of a compile stage.
type CompileResult struct {
	Success bool
	Stderr  string
}

// RunSpec describes a run stage with streaming callbacks.
type RunSpec struct {
	Command toolchain.Command
	Dir     string
	Env     map[string]string

	OnStdout func(chunk string)
	OnStderr func(chunk string)
	OnExit   func(exitCode int)
}

// Process is a handle to a running child.
type Process struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser

	mu     sync.Mutex
	killed bool
	done   chan struct{}
}

// ErrToolNotFound marks a spawn failure caused by a missing executable.
var ErrToolNotFound = errors.New("tool not found")

// Compile runs a compile command to completion and captures stderr. A missing
// compiler maps to ErrToolNotFound with the tool name in the message.
func Compile(ctx context.Context, command toolchain.Command) (*CompileResult, error) {
	cmd := exec.CommandContext(ctx, command.Path, command.Args...)
	hideConsole(cmd)

	var stderr bytes.Buffer
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrToolNotFound, command.Tool)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &CompileResult{Success: false, Stderr: stderr.String()}, nil
		}
		return nil, err
	}
	return &CompileResult{Success: true, Stderr: stderr.String()}, nil
}

// Start launches a run command with piped stdio. Stdout and stderr chunks are
// forwarded per OS read; the exit callback fires exactly once, after both
// output streams are drained.
func Start(spec RunSpec) (*Process, error) {
	cmd := buildRunCmd(spec.Command)
	cmd.Dir = spec.Dir

	env := os.Environ()
	// Defeat block buffering on Python children.
	env = append(env, "PYTHONUNBUFFERED=1")
	for k, v := range spec.Env {
		env = append(env, k+"="+v)
	}
	cmd.Env = env
	hideConsole(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrToolNotFound, spec.Command.Tool)
		}
		return nil, err
	}

	p := &Process{cmd: cmd, stdin: stdin, done: make(chan struct{})}

	var pumps sync.WaitGroup
	pumps.Add(2)
	go pump(stdout, spec.OnStdout, &pumps)
	go pump(stderr, spec.OnStderr, &pumps)

	go func() {
		pumps.Wait()
		err := cmd.Wait()
		close(p.done)

		code := 0
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
			if code < 0 {
				// Terminated by signal.
				code = 1
			}
		} else if err != nil {
			code = 1
		}
		if spec.OnExit != nil {
			spec.OnExit(code)
		}
	}()

	return p, nil
}

// pump forwards reads chunk by chunk in OS arrival order.
func pump(r io.Reader, forward func(string), wg *sync.WaitGroup) {
	defer wg.Done()
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 && forward != nil {
			forward(string(buf[:n]))
		}
		if err != nil {
			return
		}
	}
}

// WriteStdin writes a chunk to the child's stdin if it is still open.
func (p *Process) WriteStdin(data string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.killed {
		return errors.New("process is ending")
	}
	_, err := io.WriteString(p.stdin, data)
	return err
}

// Kill sends a termination signal. A second call is a no-op: the child is
// already ending.
func (p *Process) Kill() {
	p.mu.Lock()
	if p.killed {
		p.mu.Unlock()
		return
	}
	p.killed = true
	p.mu.Unlock()

	p.stdin.Close()
	if p.cmd.Process != nil {
		if err := terminate(p.cmd); err != nil {
			logging.S().Debugw("terminate failed", "pid", p.cmd.Process.Pid, "error", err)
		}
	}
}

// Done is closed once the child has exited and its pipes are drained.
func (p *Process) Done() <-chan struct{} { return p.done }

// Cleanup removes a per-run workspace, best effort. A short grace period lets
// the OS release file handles first.
func Cleanup(dir string) {
	if dir == "" || !strings.Contains(dir, workspacePrefix) {
		return
	}
	time.Sleep(50 * time.Millisecond)
	if err := os.RemoveAll(dir); err != nil {
		logging.S().Debugw("workspace cleanup failed", "dir", dir, "error", err)
	}
}

const workspacePrefix = "codelab-run-"

// NewWorkspace creates a fresh temp directory for one run. Paths are never
// reused after cleanup.
func NewWorkspace() (string, error) {
	return os.MkdirTemp(os.TempDir(), workspacePrefix)
}

func isNotFound(err error) bool {
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		return errors.Is(execErr.Err, exec.ErrNotFound) || os.IsNotExist(execErr.Err)
	}
	return errors.Is(err, os.ErrNotExist)
}
