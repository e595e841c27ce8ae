//go:build !windows
// +build !windows

package exec

import (
	"os"
	"os/exec"
	"syscall"
)

// setSetpgid puts the child in its own process group so the
// executor can signal the whole subtree (shell plus whatever it
// spawns) rather than just the immediate shell process.
func setSetpgid(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// signalGroup delivers sig to cmd's process group.
func signalGroup(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd.Process == nil {
		return nil
	}
	p, err := os.FindProcess(-cmd.Process.Pid)
	if err != nil {
		return err
	}
	return p.Signal(sig)
}
