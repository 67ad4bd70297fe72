//go:build windows

package llmproc

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/windows"
)

// applySpawnOptions implements SpawnOptions.NoConsole on Windows by
// detaching the subprocess from the parent's console (spec §4.1: "spawns
// detached from console").
func applySpawnOptions(cmd *exec.Cmd, opts SpawnOptions) {
	if cmd == nil {
		return
	}
	attr := &syscall.SysProcAttr{}
	if opts.NoConsole {
		attr.CreationFlags |= windows.CREATE_NO_WINDOW
	}
	if opts.NewSession {
		attr.CreationFlags |= windows.CREATE_NEW_PROCESS_GROUP
	}
	cmd.SysProcAttr = attr
}

// killProcessTree kills the subprocess. Windows process groups are not
// targeted individually here; the CREATE_NEW_PROCESS_GROUP flag set in
// applySpawnOptions is sufficient for graceful Ctrl-Break delivery by the
// OS, and a forced kill terminates the top-level process.
func killProcessTree(cmd *exec.Cmd, force bool) error {
	if cmd == nil || cmd.Process == nil {
		return errNilCmd
	}
	return cmd.Process.Kill()
}
