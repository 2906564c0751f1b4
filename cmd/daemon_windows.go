//go:build windows

package cmd

import (
	"os"
	"os/exec"
	"syscall"
)

const createNewProcessGroup = 0x00000200

// setDaemonAttrs puts the daemon in its own process group so Ctrl+C in the
// starting console does not reach it.
func setDaemonAttrs(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: createNewProcessGroup}
}

// shutdownSignals stop 'daemon run', 'timer watch', 'focus watch' and 'mcp'.
func shutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}
