package browser

import (
	"os/exec"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetProcessGroupKeepsParentDeathSignal(t *testing.T) {
	cmd := exec.Command("chrome")
	setProcessGroup(cmd)
	assert.Equal(t, syscall.SIGKILL, cmd.SysProcAttr.Pdeathsig)
}
