// Package daemon tracks the background API server through a PID file.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// ErrNotRunning is returned when no live process is recorded in the PID file.
var ErrNotRunning = errors.New("server is not running")

// PIDFile manages a PID file for daemon process tracking.
type PIDFile struct {
	Path string
}

// NewPIDFile creates a PIDFile manager for the given path.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{Path: path}
}

// Write writes the current process's PID to the file.
func (p *PIDFile) Write() error {
	return p.WritePID(os.Getpid())
}

// WritePID writes the given PID to the file.
func (p *PIDFile) WritePID(pid int) error {
	return os.WriteFile(p.Path, []byte(strconv.Itoa(pid)+"\n"), 0o644)
}

// Read reads the PID from the file.
func (p *PIDFile) Read() (int, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file content: %w", err)
	}
	return pid, nil
}

// Remove deletes the PID file.
func (p *PIDFile) Remove() error {
	return os.Remove(p.Path)
}

// Stop sends term, waits up to grace for the process to exit, then sends kill.
// The PID file is removed once the process is gone. A stale PID file is
// cleaned up and reported as ErrNotRunning.
func (p *PIDFile) Stop(term, kill syscall.Signal, grace time.Duration) error {
	pid, running := p.IsRunning()
	if !running {
		if pid != 0 {
			_ = p.Remove()
		}
		return ErrNotRunning
	}

	if err := p.Signal(term); err != nil {
		return fmt.Errorf("signal %d: %w", pid, err)
	}

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if _, alive := p.IsRunning(); !alive {
			_ = p.Remove()
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	if err := p.Signal(kill); err != nil {
		return fmt.Errorf("kill %d: %w", pid, err)
	}
	_ = p.Remove()
	return nil
}
