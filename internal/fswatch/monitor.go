// Package fswatch implements the observational filesystem monitor: it
// watches the processing directory for create/rename events and logs
// each at DEBUG. It never drives job creation — jobs are created
// directly by the client listener on successful upload (spec.md Open
// Question (c)); this activity exists purely for forensic visibility.
package fswatch

import (
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/ocx/avscan/internal/logging"
	"github.com/ocx/avscan/internal/state"
)

// Monitor watches one directory for CREATE and MOVED_TO (rename-into)
// events.
type Monitor struct {
	watcher *fsnotify.Watcher
	log     *logging.Logger
	st      *state.State
}

// New creates a Monitor watching dir. The caller must call Close when
// done with it; closing the watcher also makes a running Run loop return.
func New(dir string, log *logging.Logger, st *state.State) (*Monitor, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}
	return &Monitor{watcher: w, log: log, st: st}, nil
}

// Close releases the underlying watcher.
func (m *Monitor) Close() error {
	return m.watcher.Close()
}

// Run blocks until the shutdown flag is set, logging every CREATE or
// rename-into event at DEBUG. It polls the shutdown flag at ≤1s cadence
// via a fallback timer alongside the watcher's event channel.
func (m *Monitor) Run() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for !m.st.Shutdown.IsSet() {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Rename) != 0 {
				m.log.Debug("filesystem event observed", "path", event.Name, "op", event.Op.String())
			}
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.log.Warning("filesystem watch error", "error", err)
		case <-ticker.C:
			// wake solely to re-check the shutdown flag
		}
	}
}
