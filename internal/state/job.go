package state

import (
	"sync"
	"time"
)

// JobCapacity is the fixed size of the job registry.
const JobCapacity = 1000

// JobStatus is the terminal-monotonic status of a scan job:
// PENDING -> PROCESSING -> (COMPLETED|ERROR).
type JobStatus int

const (
	JobPending JobStatus = iota
	JobProcessing
	JobCompleted
	JobError
)

func (s JobStatus) String() string {
	switch s {
	case JobPending:
		return "PENDING"
	case JobProcessing:
		return "PROCESSING"
	case JobCompleted:
		return "COMPLETED"
	case JobError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether s is a terminal status (COMPLETED or ERROR).
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobError
}

// Job is one uploaded-file scan job. Once a terminal status is observed,
// Verdict is read-only.
type Job struct {
	ID          int64
	Owner       ClientRef
	HasOwner    bool
	Filename    string
	PayloadPath string
	SessionKey  string // opaque reference to the wrapped session key, if any
	Size        int64
	Status      JobStatus
	Verdict     string
	CreatedAt   time.Time
	CompletedAt time.Time
}

// JobRegistry is the bounded, mutex-guarded job table. Jobs are assigned
// ids in strictly increasing order at enqueue time; the job processor
// always claims the oldest PENDING job first.
type JobRegistry struct {
	mu     sync.Mutex
	nextID int64
	jobs   map[int64]*Job
	order  []int64 // insertion order, oldest first
}

// NewJobRegistry returns an empty job registry.
func NewJobRegistry() *JobRegistry {
	return &JobRegistry{jobs: make(map[int64]*Job, JobCapacity)}
}

// Enqueue creates a new PENDING job. It returns ErrResourceExhausted once
// the table is full.
func (r *JobRegistry) Enqueue(owner ClientRef, hasOwner bool, filename, path string, size int64, sessionKey string) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.jobs) >= JobCapacity {
		return nil, ErrResourceExhausted
	}

	r.nextID++
	j := &Job{
		ID:          r.nextID,
		Owner:       owner,
		HasOwner:    hasOwner,
		Filename:    filename,
		PayloadPath: path,
		SessionKey:  sessionKey,
		Size:        size,
		Status:      JobPending,
		CreatedAt:   time.Now(),
	}
	r.jobs[j.ID] = j
	r.order = append(r.order, j.ID)
	return j, nil
}

// Get returns a snapshot copy of the job with the given id.
func (r *JobRegistry) Get(id int64) (Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

// ClaimOldestPending finds the oldest PENDING job in id order and
// atomically transitions it to PROCESSING, returning a snapshot. This is
// the single CAS point that guarantees at most one worker ever processes
// a given job, even with multiple worker goroutines.
func (r *JobRegistry) ClaimOldestPending() (Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.order {
		j := r.jobs[id]
		if j != nil && j.Status == JobPending {
			j.Status = JobProcessing
			return *j, true
		}
	}
	return Job{}, false
}

// Complete writes the terminal verdict for a job and transitions it to
// COMPLETED or ERROR. isError selects ERROR over COMPLETED; the verdict
// string is the scan result line. Complete is a no-op (returns
// false) if the job is unknown or already terminal, preserving the
// monotonic-status invariant.
func (r *JobRegistry) Complete(id int64, verdict string, isError bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completeLocked(id, verdict, isError)
}

// CompleteWithStats behaves like Complete but records the scan outcome in
// stats while still holding the jobs mutex, per the jobs-then-stats nested
// lock order: a terminal job status must never become observable via Get
// before its corresponding Statistics increment lands, or a reader can see
// a COMPLETED job whose scan the GET_STATS/metrics counters don't yet
// reflect.
func (r *JobRegistry) CompleteWithStats(id int64, verdict string, isError, infected bool, stats *Statistics) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	ok := r.completeLocked(id, verdict, isError)
	if ok {
		stats.ScanCompleted(infected, isError)
	}
	return ok
}

// completeLocked must be called with mu held.
func (r *JobRegistry) completeLocked(id int64, verdict string, isError bool) bool {
	j, ok := r.jobs[id]
	if !ok || j.Status.Terminal() {
		return false
	}
	j.Verdict = verdict
	j.CompletedAt = time.Now()
	if isError {
		j.Status = JobError
	} else {
		j.Status = JobCompleted
	}
	return true
}

// ClearOwner disassociates a job from its owning client slot, used when a
// client disconnects while its job is still in flight; the job outlives
// the connection that created it.
func (r *JobRegistry) ClearOwner(ref ClientRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.order {
		j := r.jobs[id]
		if j.HasOwner && j.Owner == ref {
			j.HasOwner = false
		}
	}
}

// CountByStatus returns the number of jobs currently in the given status.
// It lets a caller check jobs_in(PROCESSING) <= number_of_workers.
func (r *JobRegistry) CountByStatus(status JobStatus) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, id := range r.order {
		if r.jobs[id].Status == status {
			n++
		}
	}
	return n
}
