//go:build !windows

package process

import (
	"os"
	"os/exec"
	"syscall"
)

func prepare(*exec.Cmd) {}

// terminate asks the process to exit.
func terminate(p *os.Process) error {
	return p.Signal(syscall.SIGTERM)
}
