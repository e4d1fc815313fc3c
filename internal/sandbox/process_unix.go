//go:build unix

package sandbox

import (
	"os/exec"
	"syscall"
)

// setProcessGroup marks cmd to start in its own session, so its pid
// doubles as the process group id for teardown. This is the Go
// equivalent of Python's start_new_session=True.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

// killProcessGroup sends SIGKILL to the whole process group, reaping
// any orphaned grandchildren the submission spawned. Safe to call more
// than once; ESRCH (already dead) is not an error here.
func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}
