//go:build windows

package daemon

import (
	"fmt"
	"os"
	"syscall"
)

// Windows has no graceful termination signal for a detached process, so
// Stop goes straight to terminating it.
const (
	termSignal = syscall.SIGKILL
	killSignal = syscall.SIGKILL
)

// IsRunning reads the PID file and probes the process. FindProcess always
// succeeds on Windows, so liveness comes from the zero signal.
func (p *PIDFile) IsRunning() (int, bool) {
	pid, err := p.Read()
	if err != nil {
		return 0, false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return pid, false
	}
	return pid, proc.Signal(syscall.Signal(0)) == nil
}

// Signal sends sig to the process in the PID file. Only SIGKILL is
// delivered reliably.
func (p *PIDFile) Signal(sig syscall.Signal) error {
	pid, err := p.Read()
	if err != nil {
		return fmt.Errorf("read PID file: %w", err)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process %d: %w", pid, err)
	}
	return proc.Signal(sig)
}
