// Package process supervises a single child process: the upstream service
// the debugging proxy optionally spawns and owns for its lifetime.
package process

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"
)

// gracePeriod is how long Stop waits after SIGTERM before escalating to a
// forced kill.
const gracePeriod = 100 * time.Millisecond

// Manager supervises one child process at a time. Start is a no-op if a
// child is already running; Stop always clears the stored handle before
// returning, even on error.
type Manager struct {
	mu      sync.Mutex
	cmd     *exec.Cmd
	command []string
}

// New creates a Manager for the given argv. An empty command means no
// upstream process is managed; Start then returns an error.
func New(command []string) *Manager {
	return &Manager{command: command}
}

// Start spawns the child with stdout/stderr inherited and stdin redirected
// from the null device. It is a no-op if a child is already present.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cmd != nil {
		return nil
	}
	if len(m.command) == 0 {
		return fmt.Errorf("process: no command specified")
	}

	devNull, err := os.Open(os.DevNull)
	if err != nil {
		return fmt.Errorf("process: open null device: %w", err)
	}

	cmd := exec.Command(m.command[0], m.command[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = devNull

	if err := cmd.Start(); err != nil {
		_ = devNull.Close()
		return fmt.Errorf("process: failed to start command %v: %w", m.command, err)
	}

	m.cmd = cmd
	return nil
}

// Stop terminates the running child, if any: graceful-then-forceful on
// Unix, the platform's forced-termination primitive elsewhere. The stored
// handle is cleared unconditionally. Reap errors are swallowed; only a
// failed forced kill is returned, for the caller to log.
func (m *Manager) Stop() error {
	m.mu.Lock()
	cmd := m.cmd
	m.cmd = nil
	m.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return stopProcess(cmd, gracePeriod)
}

// IsRunning performs a non-blocking status check. If the child has exited,
// the stored handle is cleared and false is returned. A failure to query
// the status is treated conservatively as "not running".
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cmd == nil || m.cmd.Process == nil {
		return false
	}

	exited, err := processExited(m.cmd)
	if err != nil || exited {
		m.cmd = nil
		return false
	}
	return true
}

// PID returns the child's process id, or (0, false) if no child is running.
func (m *Manager) PID() (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cmd == nil || m.cmd.Process == nil {
		return 0, false
	}
	return m.cmd.Process.Pid, true
}

// Restart stops the current child (if any), waits one grace period, then
// starts a new one. A failure during Start propagates; by that point the
// prior child is always gone.
func (m *Manager) Restart() error {
	if err := m.Stop(); err != nil {
		return err
	}
	time.Sleep(gracePeriod)
	return m.Start()
}
