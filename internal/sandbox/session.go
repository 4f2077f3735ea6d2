// CodeLab sandbox session
// Per-connection code-execution state machine on top of the supervisor

package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codelab/internal/logging"
	"codelab/internal/metrics"
	"codelab/internal/toolchain"
)

// Emitter delivers sandbox events to the owning connection.
type Emitter interface {
	Emit(event string, payload interface{})
}

// Events emitted to the owning connection only.
const (
	EventOutput  = "sandbox-output"
	EventDone    = "sandbox-done"
	EventError   = "sandbox-error"
	EventStopped = "sandbox-stopped"
)

// OutputPayload is the payload of a sandbox-output event.
type OutputPayload struct {
	Type string `json:"type"` // stdout, stderr, system
	Data string `json:"data"`
}

// DonePayload is the payload of a sandbox-done event.
type DonePayload struct {
	ExitCode int `json:"exitCode"`
}

// Session owns at most one running child for one socket connection.
type Session struct {
	emitter Emitter

	mu        sync.Mutex
	proc      *Process
	workspace string
}

// NewSession creates a sandbox session bound to a connection's emitter.
func NewSession(emitter Emitter) *Session {
	return &Session{emitter: emitter}
}

// Run executes one source. Any prior child for this connection is terminated
// and detached first; its late exit events are suppressed.
func (s *Session) Run(ctx context.Context, language, code string) {
	s.detachAndKill()

	lang, err := toolchain.Lookup(language)
	if err != nil {
		s.emitError(err.Error())
		return
	}
	started := time.Now()

	workspace, err := NewWorkspace()
	if err != nil {
		s.emitError("could not create workspace")
		return
	}

	if lang.Key == "c" {
		code = EnsureUnbufferedStdout(code)
	}
	srcPath := filepath.Join(workspace, lang.SourceFile)
	if err := os.WriteFile(srcPath, []byte(code), 0o644); err != nil {
		s.emitError("could not write source file")
		Cleanup(workspace)
		return
	}

	// Register the workspace before the compile stage so a stop or
	// disconnect arriving mid-compile cancels this run instead of hitting an
	// idle session.
	s.mu.Lock()
	s.workspace = workspace
	s.mu.Unlock()

	if lang.Compiled {
		s.emitIfCurrent(workspace, EventOutput, OutputPayload{
			Type: "system",
			Data: fmt.Sprintf("Compiling %s...", lang.Display),
		})
		compileCmd, err := lang.CompileCommand(workspace)
		if err != nil {
			if s.release(workspace) {
				s.emitError(err.Error())
				Cleanup(workspace)
			}
			return
		}
		result, err := Compile(ctx, compileCmd)
		if err != nil {
			if !s.release(workspace) {
				// Stopped mid-compile; the stop path already cleaned up.
				return
			}
			if errors.Is(err, ErrToolNotFound) {
				s.emitError(err.Error())
			} else {
				s.emitError("compilation could not start")
				logging.S().Errorw("compile stage failed", "language", lang.Key, "error", err)
			}
			Cleanup(workspace)
			return
		}
		if !result.Success {
			if !s.release(workspace) {
				return
			}
			metrics.Get().RecordSandboxRun(lang.Key, "compile_error", time.Since(started))
			s.emitter.Emit(EventOutput, OutputPayload{Type: "stderr", Data: result.Stderr})
			s.emitter.Emit(EventDone, DonePayload{ExitCode: 1})
			Cleanup(workspace)
			return
		}
		if !s.stillCurrent(workspace) {
			return
		}
	}

	proc, err := Start(RunSpec{
		Command: lang.RunCommand(workspace),
		Dir:     workspace,
		OnStdout: func(chunk string) {
			s.emitIfCurrent(workspace, EventOutput, OutputPayload{Type: "stdout", Data: chunk})
		},
		OnStderr: func(chunk string) {
			s.emitIfCurrent(workspace, EventOutput, OutputPayload{Type: "stderr", Data: chunk})
		},
		OnExit: func(exitCode int) {
			metrics.Get().SandboxesInFlight.Dec()
			outcome := "completed"
			if exitCode != 0 {
				outcome = "nonzero_exit"
			}
			metrics.Get().RecordSandboxRun(lang.Key, outcome, time.Since(started))
			if s.release(workspace) {
				s.emitter.Emit(EventDone, DonePayload{ExitCode: exitCode})
			}
			Cleanup(workspace)
		},
	})
	if err != nil {
		if !s.release(workspace) {
			return
		}
		if errors.Is(err, ErrToolNotFound) {
			s.emitError(err.Error())
		} else {
			s.emitError("program could not start")
			logging.S().Errorw("run stage failed", "language", lang.Key, "error", err)
		}
		Cleanup(workspace)
		return
	}

	metrics.Get().SandboxesInFlight.Inc()

	s.mu.Lock()
	if s.workspace == workspace {
		s.proc = proc
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	// Stopped while launching.
	proc.Kill()
}

// WriteInput forwards one line of client input to the child's stdin. A
// trailing newline is appended the way a terminal would.
func (s *Session) WriteInput(input string) {
	s.mu.Lock()
	proc := s.proc
	s.mu.Unlock()
	if proc == nil {
		return
	}
	if err := proc.WriteStdin(input + "\n"); err != nil {
		logging.S().Debugw("stdin write failed", "error", err)
	}
}

// Stop terminates the current child, if any, and emits sandbox-stopped once.
// Stopping an idle session is a no-op.
func (s *Session) Stop() {
	if s.detachAndKill() {
		s.emitter.Emit(EventStopped, nil)
	}
}

// Shutdown terminates the current child without emitting. Called on
// disconnect.
func (s *Session) Shutdown() {
	s.detachAndKill()
}

// detachAndKill removes the current child from the session and terminates
// it. Reports whether there was one.
func (s *Session) detachAndKill() bool {
	s.mu.Lock()
	proc := s.proc
	workspace := s.workspace
	s.proc = nil
	s.workspace = ""
	s.mu.Unlock()

	if workspace == "" {
		return false
	}
	if proc != nil {
		proc.Kill()
	}
	Cleanup(workspace)
	return true
}

// stillCurrent reports whether the given workspace is still this session's
// active run.
func (s *Session) stillCurrent(workspace string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workspace == workspace
}

// release clears the session state if the given workspace is still the
// current one. Reports whether it was, meaning exit events should be emitted.
func (s *Session) release(workspace string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.workspace != workspace {
		return false
	}
	s.proc = nil
	s.workspace = ""
	return true
}

// emitIfCurrent drops output from a detached prior run.
func (s *Session) emitIfCurrent(workspace, event string, payload interface{}) {
	s.mu.Lock()
	current := s.workspace == workspace
	s.mu.Unlock()
	if current {
		s.emitter.Emit(event, payload)
	}
}

func (s *Session) emitError(msg string) {
	s.emitter.Emit(EventError, map[string]string{"error": msg})
}
