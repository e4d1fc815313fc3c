//go:build !unix

package sandbox

import "os/exec"

// setProcessGroup is a no-op off UNIX; the sandbox is UNIX-only per
// spec and this build only exists so the package still compiles
// elsewhere for tooling purposes.
func setProcessGroup(cmd *exec.Cmd) {}

// killProcessGroup falls back to killing just the direct child.
func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	cmd.Process.Kill()
}
