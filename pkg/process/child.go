//go:build linux

package process

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"

	"golang.org/x/sys/unix"
)

// Child is the child-side view of a launch. Only the body registered for
// the launched entry receives one, so operations that are meaningful only
// in the child, such as image replacement, live here.
type Child struct {
	entry string
	runID string
	args  []string
	pipes []*Pipe
	files []*SharedFile

	logger *slog.Logger
}

func newChild() (*Child, error) {
	entry := os.Getenv(envEntry)
	runID := os.Getenv(envRunID)

	logger := slog.New(childLogHandler(os.Getenv(envLogLevel), os.Getenv(envLogFormat))).
		With("run_id", runID, "entry", entry, "pid", os.Getpid())

	npipes, err := envCount(envPipes)
	if err != nil {
		return nil, err
	}
	nfiles, err := envCount(envFiles)
	if err != nil {
		return nil, err
	}

	pipeOpts := []PipeOption{
		WithStrictClose(os.Getenv(envPipePolicy) != pipePolicyLenient),
		WithPipeLogger(logger),
	}

	c := &Child{
		entry:  entry,
		runID:  runID,
		args:   os.Args[1:],
		logger: logger,
	}

	fd := firstInheritedFD
	for i := 0; i < npipes; i++ {
		c.pipes = append(c.pipes, newPipe(fd, fd+1, pipeOpts...))
		fd += 2
	}
	for i := 0; i < nfiles; i++ {
		c.files = append(c.files, &SharedFile{f: os.NewFile(uintptr(fd), fmt.Sprintf("shared-%d", i))})
		fd++
	}

	return c, nil
}

// childLogHandler writes to stderr at the level and in the format the
// parent handed down. Unparseable values fall back to info and JSON.
func childLogHandler(level, format string) slog.Handler {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == LogFormatText {
		return slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.NewJSONHandler(os.Stderr, opts)
}

func envCount(key string) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, NewError(ErrorCodeInvalidState, "malformed launch environment").
			WithContext("variable", key).
			WithContext("value", v)
	}
	return n, nil
}

// Role always returns Child
func (c *Child) Role() Role {
	return childRole()
}

// Entry returns the registered entry this child is running
func (c *Child) Entry() string {
	return c.entry
}

// RunID returns the correlation id of the launching run
func (c *Child) RunID() string {
	return c.runID
}

// Args returns the arguments given with WithArgs
func (c *Child) Args() []string {
	return c.args
}

// Pid returns this process's id
func (c *Child) Pid() int {
	return os.Getpid()
}

// Stdout returns descriptor 1
func (c *Child) Stdout() *os.File {
	return os.Stdout
}

// Stderr returns descriptor 2
func (c *Child) Stderr() *os.File {
	return os.Stderr
}

// Logger returns a logger tagged with run_id, entry and pid
func (c *Child) Logger() *slog.Logger {
	return c.logger
}

// Pipe returns the i-th pipe passed with WithPipe. Both ends are open.
func (c *Child) Pipe(i int) (*Pipe, error) {
	if i < 0 || i >= len(c.pipes) {
		return nil, NewError(ErrorCodeInvalidState,
			fmt.Sprintf("child has no pipe %d", i)).
			WithContext("pipes", len(c.pipes))
	}
	return c.pipes[i], nil
}

// SharedFile returns the i-th file passed with WithSharedFile
func (c *Child) SharedFile(i int) (*SharedFile, error) {
	if i < 0 || i >= len(c.files) {
		return nil, NewError(ErrorCodeInvalidState,
			fmt.Sprintf("child has no shared file %d", i)).
			WithContext("files", len(c.files))
	}
	return c.files[i], nil
}

// Reaper returns a reaper for this child's own children
func (c *Child) Reaper() *Reaper {
	return NewReaper(WithLogger(c.logger))
}

// ReplaceImage resolves program with the PATH search and replaces this
// process's image with it, passing argv after the program name. It never
// returns on success. Inherited descriptors stay open across the exec.
func (c *Child) ReplaceImage(program string, argv ...string) error {
	path, err := exec.LookPath(program)
	if err != nil {
		return c.imageFailed(program, err)
	}
	return c.replace(program, path, append([]string{program}, argv...), withoutChildEnv(os.Environ()))
}

// ReplaceImageEnv replaces this process's image with the program at path,
// without PATH search, using argv and env verbatim.
func (c *Child) ReplaceImageEnv(path string, argv, env []string) error {
	if len(argv) == 0 {
		argv = []string{path}
	}
	return c.replace(path, path, argv, env)
}

func (c *Child) replace(program, path string, argv, env []string) error {
	c.logger.Debug("replacing image", "program", program, "path", path, "argv", argv)
	if err := unix.Exec(path, argv, env); err != nil {
		return c.imageFailed(program, err)
	}
	return nil
}

func (c *Child) imageFailed(program string, cause error) error {
	err := errImage(program, cause)
	c.logger.Error("image replacement failed", "program", program, "error", err)
	return err
}

// RedirectStdout opens path create/write-only/truncate with mode 0600 and
// installs it as descriptor 1. Output written after the call goes to path.
func (c *Child) RedirectStdout(path string) error {
	fd, err := unix.Open(path, unix.O_CREAT|unix.O_WRONLY|unix.O_TRUNC|unix.O_CLOEXEC, 0o600)
	if err != nil {
		return errIO("open "+path, err).WithContext("path", path)
	}
	defer unix.Close(fd)

	// Dup3 clears close-on-exec on the new descriptor.
	if err := unix.Dup3(fd, 1, 0); err != nil {
		return errIO("redirect stdout", err).WithContext("path", path)
	}
	return nil
}

// CloseStdout closes descriptor 1. Later writes to Stdout fail.
func (c *Child) CloseStdout() error {
	if err := unix.Close(1); err != nil {
		return errIO("close stdout", err)
	}
	return nil
}
