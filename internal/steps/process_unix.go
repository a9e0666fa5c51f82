//go:build unix

package steps

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// configureProcessGroup запускает процесс в новой группе и при отмене
// контекста убивает всю группу.
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return killProcessGroup(cmd)
	}
}

// killProcessGroup убивает группу процесса вместе с потомками.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	// Отрицательный pid — сигнал всей группе.
	err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	if errors.Is(err, syscall.ESRCH) {
		return os.ErrProcessDone
	}
	return err
}
