//go:build unix

package proc

import (
	"os/exec"
	"syscall"
)

type processSignal func(cmd *exec.Cmd) error

func pauseSignal(cmd *exec.Cmd) error {
	return cmd.Process.Signal(syscall.SIGSTOP)
}

func resumeSignal(cmd *exec.Cmd) error {
	return cmd.Process.Signal(syscall.SIGCONT)
}
