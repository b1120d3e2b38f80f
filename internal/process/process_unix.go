//go:build !windows

package process

import (
	"fmt"
	"os/exec"
	"time"

	"golang.org/x/sys/unix"
)

// stopProcess sends SIGTERM, waits up to grace for the child to exit, and
// escalates to SIGKILL if it hasn't.
func stopProcess(cmd *exec.Cmd, grace time.Duration) error {
	// Process may already be gone; still attempt to reap it below.
	_ = cmd.Process.Signal(unix.SIGTERM)

	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(grace):
	}

	if err := cmd.Process.Kill(); err != nil {
		return fmt.Errorf("process: force kill failed: %w", err)
	}
	<-done
	return nil
}

// processExited reports whether the child has already exited, reaping it
// (WNOHANG) if so, without blocking on a still-running child.
func processExited(cmd *exec.Cmd) (bool, error) {
	var status unix.WaitStatus
	pid, err := unix.Wait4(cmd.Process.Pid, &status, unix.WNOHANG, nil)
	if err != nil {
		// ECHILD means something else already reaped it (e.g. our own
		// Stop-path Wait goroutine); treat that as exited.
		return true, nil
	}
	if pid == 0 {
		return false, nil
	}
	return true, nil
}
