package process

import (
	"sort"
	"sync"
	"time"
)

// ProcessState represents the lifecycle state of a launched child
type ProcessState int

const (
	// ProcessStateUnknown - handle was never launched by this table
	ProcessStateUnknown ProcessState = iota
	// ProcessStateRunning - launched, not yet reaped
	ProcessStateRunning
	// ProcessStateReaped - termination status collected; pid may be reused
	ProcessStateReaped
)

// String returns the string representation of a ProcessState
func (ps ProcessState) String() string {
	switch ps {
	case ProcessStateRunning:
		return "Running"
	case ProcessStateReaped:
		return "Reaped"
	default:
		return "Unknown"
	}
}

// ProcessStatus is a snapshot of one table entry
type ProcessStatus struct {
	Handle     Handle
	Entry      string
	State      ProcessState
	LaunchedAt time.Time
	ReapedAt   time.Time
	Exit       ExitStatus
}

// Table tracks the children a process has launched so that each handle is
// reaped at most once. A Launcher and its Reapers share one Table.
type Table struct {
	mu       sync.Mutex
	seq      uint64
	statuses map[int]*processStatus
}

// Internal state tracking per pid
type processStatus struct {
	handle Handle
	entry  string

	launchedAt time.Time
	reapedAt   time.Time

	exit ExitStatus
}

// State returns the current state of the process
func (ps *processStatus) State() ProcessState {
	if !ps.reapedAt.IsZero() {
		return ProcessStateReaped
	}
	return ProcessStateRunning
}

func (ps *processStatus) snapshot() ProcessStatus {
	return ProcessStatus{
		Handle:     ps.handle,
		Entry:      ps.entry,
		State:      ps.State(),
		LaunchedAt: ps.launchedAt,
		ReapedAt:   ps.reapedAt,
		Exit:       ps.exit,
	}
}

// NewTable creates an empty process table
func NewTable() *Table {
	return &Table{
		statuses: make(map[int]*processStatus),
	}
}

// add records a freshly launched pid and returns its handle.
// An older, reaped entry for the same pid is replaced.
func (t *Table) add(pid int, entry string) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.seq++
	h := Handle{pid: pid, seq: t.seq}
	t.statuses[pid] = &processStatus{
		handle:     h,
		entry:      entry,
		launchedAt: time.Now(),
	}
	return h
}

// checkWaitable returns an InvalidState error unless h is running
func (t *Table) checkWaitable(h Handle) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	status, exists := t.statuses[h.pid]
	if !exists || !h.IsValid() {
		return errUnknownHandle(h)
	}
	if status.handle.seq != h.seq {
		// pid was reused by a later launch; this handle was reaped before that
		return errAlreadyReaped(h)
	}
	if status.State() == ProcessStateReaped {
		return errAlreadyReaped(h)
	}
	return nil
}

// markReaped records the exit status for pid. known is false for pids the
// table never launched.
func (t *Table) markReaped(pid int, exit ExitStatus) (status ProcessStatus, known bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ps, exists := t.statuses[pid]
	if !exists || ps.State() == ProcessStateReaped {
		return ProcessStatus{
			Handle:   Handle{pid: pid},
			State:    ProcessStateReaped,
			ReapedAt: time.Now(),
			Exit:     exit,
		}, false
	}

	ps.reapedAt = time.Now()
	ps.exit = exit
	return ps.snapshot(), true
}

// markLost records that h's status was collected by another waiter. The
// exit status is unknown. It reports whether h was still running.
func (t *Table) markLost(h Handle) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	ps, exists := t.statuses[h.pid]
	if !exists || ps.handle.seq != h.seq || ps.State() == ProcessStateReaped {
		return false
	}
	ps.reapedAt = time.Now()
	ps.exit = ExitStatus{Code: -1}
	return true
}

// Status returns the current status of a handle
func (t *Table) Status(h Handle) (ProcessStatus, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ps, exists := t.statuses[h.pid]
	if !exists || ps.handle.seq != h.seq {
		return ProcessStatus{}, false
	}
	return ps.snapshot(), true
}

// Pending returns handles launched and not yet reaped, oldest first
func (t *Table) Pending() []Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	pending := make([]*processStatus, 0, len(t.statuses))
	for _, ps := range t.statuses {
		if ps.State() == ProcessStateRunning {
			pending = append(pending, ps)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].handle.seq < pending[j].handle.seq
	})

	handles := make([]Handle, len(pending))
	for i, ps := range pending {
		handles[i] = ps.handle
	}
	return handles
}

// Live returns the number of running children
func (t *Table) Live() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, ps := range t.statuses {
		if ps.State() == ProcessStateRunning {
			n++
		}
	}
	return n
}
