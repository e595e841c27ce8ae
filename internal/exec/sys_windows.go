//go:build windows
// +build windows

package exec

import (
	"os/exec"
	"syscall"
)

func setSetpgid(cmd *exec.Cmd) {}

// signalGroup has no portable equivalent on Windows; the manager
// falls back to killing the process directly.
func signalGroup(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
