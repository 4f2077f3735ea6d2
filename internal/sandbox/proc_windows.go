//go:build windows

package sandbox

import (
	"os/exec"
	"strings"
	"syscall"

	"codelab/internal/toolchain"
)

// buildRunCmd spawns .exe binaries through cmd.exe so exec bits are honored;
// everything else runs directly.
func buildRunCmd(command toolchain.Command) *exec.Cmd {
	if strings.HasSuffix(strings.ToLower(command.Path), ".exe") {
		args := append([]string{"/C", command.Path}, command.Args...)
		return exec.Command("cmd.exe", args...)
	}
	return exec.Command(command.Path, command.Args...)
}

// hideConsole prevents a console window from popping up for the child.
func hideConsole(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true}
}

// terminate kills the child; Windows has no TERM equivalent for console apps.
func terminate(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}
