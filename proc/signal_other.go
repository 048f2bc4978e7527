//go:build !unix

package proc

import (
	"errors"
	"os/exec"
)

type processSignal func(cmd *exec.Cmd) error

var errSuspendUnsupported = errors.New("pausing a stream is not supported on this platform")

func pauseSignal(*exec.Cmd) error  { return errSuspendUnsupported }
func resumeSignal(*exec.Cmd) error { return errSuspendUnsupported }
