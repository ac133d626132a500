package browser

import (
	"os/exec"
	"syscall"
)

// setProcessGroup starts Chrome in its own process group so a terminal
// Ctrl-C reaches only recsched. Pdeathsig still takes Chrome down if
// recsched itself dies.
func setProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
	cmd.SysProcAttr.Pdeathsig = syscall.SIGKILL
}
