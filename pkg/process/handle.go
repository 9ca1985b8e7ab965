package process

import (
	"fmt"
	"syscall"
	"time"
)

// Handle identifies a child process launched by this process.
// The zero Handle is invalid.
type Handle struct {
	pid int
	// seq distinguishes launches that were given the same pid after reuse
	seq uint64
}

// Pid returns the operating system process id
func (h Handle) Pid() int {
	return h.pid
}

// IsValid returns true if the handle refers to a launched process
func (h Handle) IsValid() bool {
	return h.pid > 0
}

// String returns the string representation of a Handle
func (h Handle) String() string {
	return fmt.Sprintf("pid:%d", h.pid)
}

// End names one endpoint of a Pipe
type End int

const (
	// ReadEnd is the endpoint data is read from
	ReadEnd End = iota
	// WriteEnd is the endpoint data is written to
	WriteEnd
)

// String returns the string representation of an End
func (e End) String() string {
	switch e {
	case ReadEnd:
		return "read"
	case WriteEnd:
		return "write"
	default:
		return "unknown"
	}
}

// RoleKind is the outcome of duplication as seen by one process
type RoleKind int

const (
	// RoleInvalid is the zero value and is never returned with a nil error
	RoleInvalid RoleKind = iota
	// RoleParent - the original process, holding the child's handle
	RoleParent
	// RoleChild - the new process
	RoleChild
)

// String returns the string representation of a RoleKind
func (k RoleKind) String() string {
	switch k {
	case RoleParent:
		return "Parent"
	case RoleChild:
		return "Child"
	default:
		return "Invalid"
	}
}

// Role is the tagged variant {Parent(handle), Child}.
type Role struct {
	kind   RoleKind
	handle Handle
}

func parentRole(h Handle) Role {
	return Role{kind: RoleParent, handle: h}
}

func childRole() Role {
	return Role{kind: RoleChild}
}

// Kind returns which variant this Role is
func (r Role) Kind() RoleKind {
	return r.kind
}

// IsParent returns true for Parent(handle)
func (r Role) IsParent() bool {
	return r.kind == RoleParent
}

// IsChild returns true for Child
func (r Role) IsChild() bool {
	return r.kind == RoleChild
}

// Handle returns the child's handle. ok is false unless the Role is Parent.
func (r Role) Handle() (h Handle, ok bool) {
	if r.kind != RoleParent {
		return Handle{}, false
	}
	return r.handle, true
}

// String returns the string representation of a Role
func (r Role) String() string {
	if r.kind == RoleParent {
		return fmt.Sprintf("Parent(%s)", r.handle)
	}
	return r.kind.String()
}

// ExitStatus describes how a process terminated
type ExitStatus struct {
	Exited     bool
	Code       int
	Signaled   bool
	Signal     syscall.Signal
	CoreDumped bool
}

// Success returns true if the process exited normally with status 0
func (s ExitStatus) Success() bool {
	return s.Exited && s.Code == 0
}

// String returns the string representation of an ExitStatus
func (s ExitStatus) String() string {
	switch {
	case s.Exited:
		return fmt.Sprintf("exit status %d", s.Code)
	case s.Signaled && s.CoreDumped:
		return fmt.Sprintf("signal: %v (core dumped)", s.Signal)
	case s.Signaled:
		return fmt.Sprintf("signal: %v", s.Signal)
	default:
		return "unknown status"
	}
}

// ExitReport is produced by the Reaper for the waiting process only
type ExitReport struct {
	Handle Handle
	Status ExitStatus

	// Entry is the registered child entry the process ran, if known
	Entry string
	// Lifetime is the time between launch and reap, if known
	Lifetime time.Duration
}
