//go:build linux

package process

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"syscall"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/jrepp/proclife/pkg/process"

// Launcher duplicates the calling program into child processes.
//
// Go cannot safely fork a running runtime, so a launch re-executes the
// current binary with the requested entry named in the child's
// environment. The child begins in Dispatch, which runs the body
// registered for that entry; the parent gets Parent(handle) back at the
// call site.
type Launcher struct {
	executable  string
	runID       string
	logFormat   string
	strictPipes bool

	table   *Table
	logger  *slog.Logger
	metrics MetricsCollector
	tracer  trace.Tracer
}

// NewLauncher creates a launcher for the running executable
func NewLauncher(opts ...Option) (*Launcher, error) {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}

	if s.executable == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve executable: %w", err)
		}
		s.executable = exe
	}
	if s.table == nil {
		s.table = NewTable()
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}
	if s.runID == "" {
		s.runID = os.Getenv(envRunID)
	}
	if s.runID == "" {
		s.runID = uuid.NewString()
	}
	if s.logFormat == "" {
		s.logFormat = os.Getenv(envLogFormat)
	}
	switch s.logFormat {
	case "":
		s.logFormat = LogFormatJSON
	case LogFormatJSON, LogFormatText:
	default:
		return nil, NewError(ErrorCodeInvalidState, fmt.Sprintf("unknown child log format %q", s.logFormat)).
			WithContext("format", s.logFormat)
	}

	return &Launcher{
		executable:  s.executable,
		runID:       s.runID,
		logFormat:   s.logFormat,
		strictPipes: s.strictPipes,
		table:       s.table,
		logger:      s.logger,
		metrics:     s.metrics,
		tracer:      s.tracer,
	}, nil
}

// Launch starts a child running the registered entry. The caller always
// receives Parent(handle); the child is entered through Dispatch with a
// Child role. A failed launch creates no child and must be treated as
// fatal by the caller.
func (l *Launcher) Launch(entry string, opts ...LaunchOption) (Role, error) {
	return l.LaunchContext(context.Background(), entry, opts...)
}

// LaunchContext is Launch with a parent context for tracing. The context
// does not cancel the launch.
func (l *Launcher) LaunchContext(ctx context.Context, entry string, opts ...LaunchOption) (Role, error) {
	_, span := l.tracer.Start(ctx, "process.Launch",
		trace.WithAttributes(attribute.String("process.entry", entry)))
	defer span.End()

	role, err := l.launch(entry, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Role{}, err
	}

	h, _ := role.Handle()
	span.SetAttributes(attribute.Int("process.pid", h.Pid()))
	return role, nil
}

func (l *Launcher) launch(entry string, opts []LaunchOption) (Role, error) {
	if entry == "" {
		return Role{}, NewError(ErrorCodeInvalidState, "launch requires an entry name")
	}

	cfg := launchConfig{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	files := []uintptr{cfg.stdin.Fd(), cfg.stdout.Fd(), cfg.stderr.Fd()}
	for _, p := range cfg.pipes {
		readFD, writeFD, err := p.descriptors()
		if err != nil {
			l.metrics.LaunchFailed(entry, ErrorCodeInvalidState)
			return Role{}, err
		}
		files = append(files, uintptr(readFD), uintptr(writeFD))
	}
	for _, f := range cfg.files {
		files = append(files, f.descriptor())
	}

	policy := pipePolicyStrict
	if !l.strictPipes {
		policy = pipePolicyLenient
	}

	env := withoutChildEnv(os.Environ())
	env = append(env, cfg.env...)
	env = append(env,
		envEntry+"="+entry,
		envPipes+"="+strconv.Itoa(len(cfg.pipes)),
		envFiles+"="+strconv.Itoa(len(cfg.files)),
		envRunID+"="+l.runID,
		envLogLevel+"="+l.childLogLevel(),
		envLogFormat+"="+l.logFormat,
		envPipePolicy+"="+policy,
	)

	argv := append([]string{l.executable}, cfg.args...)

	pid, err := syscall.ForkExec(l.executable, argv, &syscall.ProcAttr{
		Env:   env,
		Files: files,
	})
	if err != nil {
		perr := classifyErrno("launch "+entry, err)
		l.metrics.LaunchFailed(entry, perr.Code)
		l.logger.Error("launch failed", "entry", entry, "error", perr)
		return Role{}, perr
	}

	h := l.table.add(pid, entry)
	l.metrics.ProcessLaunched(entry)
	l.metrics.LiveProcesses(l.table.Live())

	l.logger.Debug("launched child",
		"entry", entry,
		"pid", pid,
		"pipes", len(cfg.pipes),
		"shared_files", len(cfg.files),
		"run_id", l.runID)

	return parentRole(h), nil
}

// childLogLevel is the lowest level our own logger has enabled
func (l *Launcher) childLogLevel() string {
	for _, lvl := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn} {
		if l.logger.Enabled(context.Background(), lvl) {
			return lvl.String()
		}
	}
	return slog.LevelError.String()
}

// Reaper returns a Reaper sharing this launcher's table, logger and metrics
func (l *Launcher) Reaper() *Reaper {
	return NewReaper(
		WithTable(l.table),
		WithLogger(l.logger),
		WithMetricsCollector(l.metrics),
		WithTracer(l.tracer),
	)
}

// Table returns the launcher's process table
func (l *Launcher) Table() *Table {
	return l.table
}

// RunID returns the correlation id passed to children
func (l *Launcher) RunID() string {
	return l.runID
}

// Executable returns the binary that children re-execute
func (l *Launcher) Executable() string {
	return l.executable
}
