//go:build !windows

package llmproc

import (
	"os/exec"
	"syscall"
)

// applySpawnOptions implements SpawnOptions.NewSession on POSIX by starting
// the subprocess in its own process group, so the whole tree can be
// terminated as a unit (spec §4.1: "starts in a new process group").
func applySpawnOptions(cmd *exec.Cmd, opts SpawnOptions) {
	if cmd == nil || !opts.NewSession {
		return
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcessTree sends SIGTERM (graceful) or SIGKILL (force) to the entire
// process group rooted at the subprocess.
func killProcessTree(cmd *exec.Cmd, force bool) error {
	if cmd == nil || cmd.Process == nil {
		return errNilCmd
	}
	sig := syscall.SIGTERM
	if force {
		sig = syscall.SIGKILL
	}
	// Negative pid targets the whole process group created by Setpgid.
	_ = syscall.Kill(-cmd.Process.Pid, sig)
	_ = syscall.Kill(cmd.Process.Pid, sig)
	return nil
}
