package rules

import (
	"docvet/internal/fileio"
	"docvet/internal/logging"
)

// StartWatcher begins watching the rules directory; yaml changes trigger
// Reload. Safe to call once; a second call is a no-op.
func (m *Manager) StartWatcher() error {
	m.watchMu.Lock()
	defer m.watchMu.Unlock()
	if m.watcher != nil {
		return nil
	}

	w, err := fileio.NewWatcher(m.dir, []string{".yaml", ".yml"}, m.Reload)
	if err != nil {
		return err
	}
	m.watcher = w
	logging.Rules("watching rules directory: %s", m.dir)
	return nil
}

// StopWatcher stops the directory watcher if one is running.
func (m *Manager) StopWatcher() {
	m.watchMu.Lock()
	defer m.watchMu.Unlock()
	if m.watcher == nil {
		return
	}
	m.watcher.Stop()
	m.watcher = nil
}
