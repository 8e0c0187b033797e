// Package state holds the shared, internally-synchronized aggregates
// passed explicitly to every long-lived activity: the client registry,
// the job registry, server statistics, the log level, and the shutdown
// flag. Each mutable sub-aggregate owns its own mutex; the fixed lock
// order clients -> jobs -> stats -> log is never violated by any call
// site in this module, and no activity holds more than one of these
// mutexes across a blocking I/O call.
package state

import "sync"

// State is the single shared aggregate constructed once by the
// supervisor and handed to the four activities. It deliberately has no
// hidden package-level singleton: every activity receives it explicitly.
type State struct {
	Clients  *ClientRegistry
	Jobs     *JobRegistry
	Stats    *Statistics
	LogLevel *LevelFlag
	Shutdown *ShutdownFlag

	// JobSignal is signalled once per successful enqueue so the job
	// processor can wake immediately instead of waiting for its 1s timer.
	JobSignal chan struct{}

	// AdminConn serializes the single-admin-at-a-time invariant; it is
	// guarded by AdminMu, which sits logically alongside the clients lock
	// in the fixed order (admin session bookkeeping never interleaves with
	// jobs/stats/log locking).
	AdminMu   sync.Mutex
	AdminConn any // net.Conn, typed loosely to avoid an import cycle with adminsrv
}

// New constructs an empty, ready-to-use State with the given initial log
// level.
func New(initialLevel LogLevel) *State {
	return &State{
		Clients:   NewClientRegistry(),
		Jobs:      NewJobRegistry(),
		Stats:     NewStatistics(),
		LogLevel:  NewLevelFlag(initialLevel),
		Shutdown:  &ShutdownFlag{},
		JobSignal: make(chan struct{}, JobCapacity),
	}
}

// SignalJob wakes the job processor. It never blocks: the channel is
// buffered to job-table capacity and a full buffer just means the
// processor already has work queued.
func (s *State) SignalJob() {
	select {
	case s.JobSignal <- struct{}{}:
	default:
	}
}
