package app

import (
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// HotReloader watches the running binary and fires a callback when a
// newer build appears, so a development session can prompt for restart
// after recompilation.
type HotReloader struct {
	execPath string
	baseline time.Time
	interval time.Duration
	stopCh   chan struct{}

	onNewBinary func()
}

// NewHotReloader watches the current executable. Returns nil if the
// executable path cannot be determined.
func NewHotReloader(interval time.Duration) *HotReloader {
	execPath, err := os.Executable()
	if err != nil {
		return nil
	}
	// go build replaces the file behind the symlink; watch the target.
	if real, err := filepath.EvalSymlinks(execPath); err == nil {
		execPath = real
	}
	info, err := os.Stat(execPath)
	if err != nil {
		return nil
	}
	return &HotReloader{
		execPath: execPath,
		baseline: info.ModTime(),
		interval: interval,
	}
}

// OnNewBinary sets the callback invoked from the watcher goroutine
// when a newer binary is detected.
func (h *HotReloader) OnNewBinary(callback func()) {
	h.onNewBinary = callback
}

// ExecPath returns the watched executable path.
func (h *HotReloader) ExecPath() string { return h.execPath }

// Baseline returns the binary's modification time at program start.
func (h *HotReloader) Baseline() time.Time { return h.baseline }

// Start begins watching in a background goroutine.
func (h *HotReloader) Start() {
	h.stopCh = make(chan struct{})
	go h.watch()
}

// Stop ends the watcher goroutine.
func (h *HotReloader) Stop() {
	close(h.stopCh)
}

func (h *HotReloader) watch() {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			info, err := os.Stat(h.execPath)
			if err != nil {
				continue
			}
			if info.ModTime().After(h.baseline) && h.onNewBinary != nil {
				h.onNewBinary()
				// Fire once per detection.
				return
			}
		}
	}
}

// ResetBaseline accepts the current binary as the baseline, used when
// the user declines a restart.
func (h *HotReloader) ResetBaseline() {
	if info, err := os.Stat(h.execPath); err == nil {
		h.baseline = info.ModTime()
	}
}

// Restart replaces the current process with a fresh instance of the
// binary, preserving arguments and environment. Does not return on
// success.
func (h *HotReloader) Restart() error {
	return syscall.Exec(h.execPath, os.Args, os.Environ())
}
