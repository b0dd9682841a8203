//go:build !unix

package process

import "os/exec"

func setProcessGroup(*exec.Cmd) {}

// signalProcessGroup kills the child outright; there is no polite signal
// to send on this platform.
func signalProcessGroup(cmd *exec.Cmd, _ bool) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
