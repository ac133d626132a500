//go:build unix && !linux

package browser

import (
	"os/exec"
	"syscall"
)

// setProcessGroup starts Chrome in its own process group so a terminal
// Ctrl-C reaches only recsched.
func setProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}
