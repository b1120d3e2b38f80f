//go:build windows

package process

import (
	"os/exec"
	"time"
)

// stopProcess uses the platform's forced-termination primitive; Windows has
// no graceful-signal equivalent to SIGTERM for arbitrary processes, so the
// grace window is skipped and Kill is applied directly.
func stopProcess(cmd *exec.Cmd, grace time.Duration) error {
	_ = grace
	if err := cmd.Process.Kill(); err != nil {
		return err
	}
	_ = cmd.Wait()
	return nil
}

// processExited reports whether the child has already exited.
func processExited(cmd *exec.Cmd) (bool, error) {
	if cmd.ProcessState != nil {
		return true, nil
	}
	return false, nil
}
