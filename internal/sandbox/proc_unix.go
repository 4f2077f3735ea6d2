//go:build !windows

package sandbox

import (
	"os/exec"
	"syscall"

	"codelab/internal/toolchain"
)

// buildRunCmd spawns the tool directly on Unix.
func buildRunCmd(command toolchain.Command) *exec.Cmd {
	return exec.Command(command.Path, command.Args...)
}

// hideConsole detaches the child into its own process group so a TERM reaches
// the whole tree and the child has no controlling terminal.
func hideConsole(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// terminate sends TERM to the child's process group.
func terminate(cmd *exec.Cmd) error {
	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err == nil {
		return syscall.Kill(-pgid, syscall.SIGTERM)
	}
	return cmd.Process.Signal(syscall.SIGTERM)
}
