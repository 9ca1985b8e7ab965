package process

import (
	"errors"
	"fmt"
)

// Exit statuses used by child processes that terminate on a fatal path.
// The values follow sysexits(3) and the shell's convention for exec failures.
const (
	ExitOK                = 0
	ExitFailure           = 1
	ExitInvalidState      = 70
	ExitResourceExhausted = 71
	ExitIOError           = 74
	ExitPermissionDenied  = 126
	ExitImageNotFound     = 127
)

// ExitStatusFor maps an error to the distinct exit status a child should
// terminate with. A nil error maps to ExitOK.
func ExitStatusFor(err error) int {
	if err == nil {
		return ExitOK
	}

	var perr *Error
	if !errors.As(err, &perr) {
		return ExitFailure
	}

	switch perr.Code {
	case ErrorCodeImageNotFound:
		return ExitImageNotFound
	case ErrorCodePermissionDenied:
		return ExitPermissionDenied
	case ErrorCodeIOError:
		return ExitIOError
	case ErrorCodeResourceExhausted:
		return ExitResourceExhausted
	case ErrorCodeInvalidState:
		return ExitInvalidState
	default:
		return ExitFailure
	}
}

var fatalExitCodes = map[int]ErrorCode{
	ExitInvalidState:      ErrorCodeInvalidState,
	ExitResourceExhausted: ErrorCodeResourceExhausted,
	ExitIOError:           ErrorCodeIOError,
	ExitPermissionDenied:  ErrorCodePermissionDenied,
	ExitImageNotFound:     ErrorCodeImageNotFound,
}

// ErrorForExit turns a child that exited on a fatal path into an error that
// ExitStatusFor maps back to the same status. Clean exits, other exit codes
// and signals give nil.
func ErrorForExit(r ExitReport) error {
	if !r.Status.Exited {
		return nil
	}
	code, fatal := fatalExitCodes[r.Status.Code]
	if !fatal {
		return nil
	}

	entry := r.Entry
	if entry == "" {
		entry = "child"
	}
	return NewError(code, fmt.Sprintf("%s %s %s", entry, r.Handle, r.Status)).
		WithContext("pid", r.Handle.Pid()).
		WithContext("exit_code", r.Status.Code)
}
