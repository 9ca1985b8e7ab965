package process

import (
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"sort"
	"strings"
	"syscall"
)

// Error represents a process lifecycle error with additional context for troubleshooting.
type Error struct {
	// Code identifies the error type
	Code ErrorCode

	// Message is the primary error message
	Message string

	// Context provides additional details
	Context map[string]interface{}

	// Cause is the underlying error (if any)
	Cause error

	// Suggestion provides actionable guidance for resolving the error
	Suggestion string
}

// ErrorCode identifies categories of errors
type ErrorCode string

const (
	// ErrorCodeResourceExhausted: the OS refused to create a process or descriptor
	ErrorCodeResourceExhausted ErrorCode = "RESOURCE_EXHAUSTED"
	// ErrorCodeImageNotFound: image replacement target is missing
	ErrorCodeImageNotFound ErrorCode = "IMAGE_NOT_FOUND"
	// ErrorCodePermissionDenied: image replacement target is not executable
	ErrorCodePermissionDenied ErrorCode = "PERMISSION_DENIED"
	// ErrorCodeIOError: pipe or file read/write/close failure
	ErrorCodeIOError ErrorCode = "IO_ERROR"
	// ErrorCodeInvalidState: caller programming error (double close, unknown handle)
	ErrorCodeInvalidState ErrorCode = "INVALID_STATE"
)

// Sentinels for errors.Is. Any *Error with the same Code matches.
var (
	ErrResourceExhausted = &Error{Code: ErrorCodeResourceExhausted}
	ErrImageNotFound     = &Error{Code: ErrorCodeImageNotFound}
	ErrPermissionDenied  = &Error{Code: ErrorCodePermissionDenied}
	ErrIOError           = &Error{Code: ErrorCodeIOError}
	ErrInvalidState      = &Error{Code: ErrorCodeInvalidState}
)

// ErrNoChildren is returned by WaitAny when the caller has no unreaped children.
var ErrNoChildren = errors.New("no child processes")

// Error implements the error interface
func (e *Error) Error() string {
	var parts []string

	msg := e.Message
	if msg == "" {
		msg = strings.ToLower(strings.ReplaceAll(string(e.Code), "_", " "))
	}
	parts = append(parts, fmt.Sprintf("[%s] %s", e.Code, msg))

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var contextParts []string
		for _, k := range keys {
			contextParts = append(contextParts, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		parts = append(parts, fmt.Sprintf("Context: %s", strings.Join(contextParts, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause: %v", e.Cause))
	}

	if e.Suggestion != "" {
		parts = append(parts, fmt.Sprintf("Suggestion: %s", e.Suggestion))
	}

	return strings.Join(parts, "; ")
}

// Unwrap returns the underlying error for errors.Is/As compatibility
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewError creates a new Error with the given code and message
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds context information to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithCause adds the underlying cause to the error
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithSuggestion adds an actionable suggestion to the error
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestion = suggestion
	return e
}

// errResourceExhausted creates an error for a refused process or descriptor allocation
func errResourceExhausted(op string, cause error) *Error {
	return NewError(ErrorCodeResourceExhausted,
		fmt.Sprintf("%s: operating system resource limit reached", op)).
		WithContext("op", op).
		WithCause(cause).
		WithSuggestion("Check process and descriptor limits: ulimit -u; ulimit -n")
}

// errIO creates an error for a failed read, write, or close
func errIO(op string, cause error) *Error {
	return NewError(ErrorCodeIOError, fmt.Sprintf("%s failed", op)).
		WithContext("op", op).
		WithCause(cause)
}

// errDoubleClose creates an error for closing a pipe end that is already closed
func errDoubleClose(end End) *Error {
	return NewError(ErrorCodeInvalidState,
		fmt.Sprintf("pipe %s end already closed", end)).
		WithContext("end", end.String()).
		WithSuggestion("Close each pipe end exactly once in every process that holds it")
}

// errEndClosed creates an error for using a pipe end after closing it
func errEndClosed(op string, end End) *Error {
	return NewError(ErrorCodeInvalidState,
		fmt.Sprintf("%s on closed pipe %s end", op, end)).
		WithContext("op", op).
		WithContext("end", end.String())
}

// errUnknownHandle creates an error for waiting on a handle this process never launched
func errUnknownHandle(h Handle) *Error {
	return NewError(ErrorCodeInvalidState,
		fmt.Sprintf("process %s was not launched by this process", h)).
		WithContext("pid", h.Pid()).
		WithSuggestion("Only wait for handles returned by Launcher.Launch")
}

// errAlreadyReaped creates an error for waiting on a handle twice
func errAlreadyReaped(h Handle) *Error {
	return NewError(ErrorCodeInvalidState,
		fmt.Sprintf("process %s was already reaped", h)).
		WithContext("pid", h.Pid()).
		WithSuggestion("Reap each child exactly once; its pid may already belong to another process")
}

// errImage classifies an image replacement failure
func errImage(program string, cause error) *Error {
	if errors.Is(cause, fs.ErrPermission) || errors.Is(cause, syscall.ENOEXEC) {
		return NewError(ErrorCodePermissionDenied,
			fmt.Sprintf("program '%s' is not executable", program)).
			WithContext("program", program).
			WithCause(cause).
			WithSuggestion(fmt.Sprintf("Make the program runnable: chmod +x %s", program))
	}
	if errors.Is(cause, exec.ErrNotFound) || errors.Is(cause, fs.ErrNotExist) {
		return NewError(ErrorCodeImageNotFound,
			fmt.Sprintf("program '%s' not found", program)).
			WithContext("program", program).
			WithCause(cause).
			WithSuggestion("Verify the program is installed and on PATH")
	}
	return errIO(fmt.Sprintf("replace image with %s", program), cause)
}

// classifyErrno maps a failed system call to the error taxonomy
func classifyErrno(op string, err error) *Error {
	switch {
	case errors.Is(err, syscall.EMFILE),
		errors.Is(err, syscall.ENFILE),
		errors.Is(err, syscall.ENOMEM),
		errors.Is(err, syscall.EAGAIN):
		return errResourceExhausted(op, err)
	default:
		return errIO(op, err)
	}
}
