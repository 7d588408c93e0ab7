package browser

import (
	"fmt"
	"os/exec"
	"time"
)

// startXvfb launches the virtual display for headful mode.
func (m *Manager) startXvfb() error {
	if m.xvfb != nil {
		return nil
	}

	display := m.cfg.XvfbDisplay
	cmd := exec.Command("Xvfb", display, "-screen", "0", "1920x1080x24", "-ac")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start xvfb: %w", err)
	}
	m.xvfb = cmd

	time.Sleep(500 * time.Millisecond)

	m.cfg.Logger.Info("browser: xvfb started", "display", display, "pid", cmd.Process.Pid)
	return nil
}

func (m *Manager) stopXvfb() {
	if m.xvfb == nil {
		return
	}
	if m.xvfb.Process != nil {
		m.xvfb.Process.Kill()
		m.xvfb.Wait()
	}
	m.cfg.Logger.Info("browser: xvfb stopped")
	m.xvfb = nil
}
