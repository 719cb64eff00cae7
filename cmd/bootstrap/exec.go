package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// handoff replaces the current process with argv. It only returns on error.
func handoff(argv []string) error {
	if len(argv) == 0 {
		return errors.New("empty server command")
	}
	path, err := exec.LookPath(argv[0])
	if err != nil {
		return fmt.Errorf("resolve %s: %w", argv[0], err)
	}
	return syscall.Exec(path, argv, os.Environ())
}
