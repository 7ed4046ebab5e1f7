//go:build windows

package process

import (
	"os"
	"os/exec"
	"syscall"
)

const createNoWindow = 0x08000000

// prepare hides the console window that would flash for each tool run.
func prepare(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: createNoWindow,
	}
}

// terminate stops the process. Windows has no SIGTERM for console tools.
func terminate(p *os.Process) error {
	return p.Kill()
}
