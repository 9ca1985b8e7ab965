//go:build linux

package process

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sys/unix"
)

// Reaper collects the termination status of direct children. Blocked waits
// have no timeout; only the child's termination releases them.
type Reaper struct {
	table   *Table
	logger  *slog.Logger
	metrics MetricsCollector
	tracer  trace.Tracer
}

// NewReaper creates a reaper. Without WithTable it tracks nothing it did not
// reap itself, so WaitFor only succeeds for handles from a shared table.
func NewReaper(opts ...Option) *Reaper {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	if s.table == nil {
		s.table = NewTable()
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}

	return &Reaper{
		table:   s.table,
		logger:  s.logger,
		metrics: s.metrics,
		tracer:  s.tracer,
	}
}

// WaitAny blocks until some direct child terminates. A caller with no
// unreaped children gets ErrNoChildren immediately.
func (r *Reaper) WaitAny() (ExitReport, error) {
	_, span := r.tracer.Start(context.Background(), "process.WaitAny")
	defer span.End()

	pid, ws, err := wait4(-1, 0)
	if err == unix.ECHILD {
		return ExitReport{}, ErrNoChildren
	}
	if err != nil {
		span.RecordError(err)
		return ExitReport{}, errIO("wait for any child", err)
	}

	report := r.complete(pid, ws)
	span.SetAttributes(attribute.Int("process.pid", pid))
	return report, nil
}

// WaitFor blocks until the child behind h terminates. Other children stay
// pending. Handles this table did not launch, or already reaped, fail with
// InvalidState.
func (r *Reaper) WaitFor(h Handle) (ExitReport, error) {
	_, span := r.tracer.Start(context.Background(), "process.WaitFor",
		trace.WithAttributes(attribute.Int("process.pid", h.Pid())))
	defer span.End()

	if err := r.table.checkWaitable(h); err != nil {
		span.RecordError(err)
		return ExitReport{}, err
	}

	pid, ws, err := wait4(h.pid, 0)
	if err == unix.ECHILD {
		// Reaped behind our back, e.g. by a concurrent WaitAny.
		r.lost(h)
		return ExitReport{}, errAlreadyReaped(h)
	}
	if err != nil {
		span.RecordError(err)
		return ExitReport{}, errIO("wait for "+h.String(), err)
	}

	return r.complete(pid, ws), nil
}

// TryWaitFor reaps h if it has terminated, without blocking. done is false
// while the child is still running.
func (r *Reaper) TryWaitFor(h Handle) (report ExitReport, done bool, err error) {
	if err := r.table.checkWaitable(h); err != nil {
		return ExitReport{}, false, err
	}

	pid, ws, err := wait4(h.pid, unix.WNOHANG)
	if err == unix.ECHILD {
		r.lost(h)
		return ExitReport{}, false, errAlreadyReaped(h)
	}
	if err != nil {
		return ExitReport{}, false, errIO("poll "+h.String(), err)
	}
	if pid == 0 {
		return ExitReport{}, false, nil
	}

	return r.complete(pid, ws), true, nil
}

// Pending returns handles launched through the shared table and not yet reaped
func (r *Reaper) Pending() []Handle {
	return r.table.Pending()
}

func (r *Reaper) complete(pid int, ws unix.WaitStatus) ExitReport {
	exit := exitStatusFrom(ws)
	status, known := r.table.markReaped(pid, exit)
	if !known {
		r.logger.Warn("reaped a child this table did not launch", "pid", pid, "status", exit.String())
	}

	lifetime := status.ReapedAt.Sub(status.LaunchedAt)
	if status.LaunchedAt.IsZero() {
		lifetime = 0
	}

	r.metrics.ProcessReaped(status.Entry, exit, lifetime)
	r.metrics.LiveProcesses(r.table.Live())

	r.logger.Debug("reaped child",
		"pid", pid,
		"entry", status.Entry,
		"status", exit.String(),
		"lifetime", lifetime)

	return ExitReport{
		Handle:   status.Handle,
		Status:   exit,
		Entry:    status.Entry,
		Lifetime: lifetime,
	}
}

// lost closes the table entry of a child whose status was collected elsewhere
func (r *Reaper) lost(h Handle) {
	if !r.table.markLost(h) {
		return
	}
	r.logger.Warn("child was reaped outside this table", "pid", h.Pid())
	r.metrics.LiveProcesses(r.table.Live())
}

func wait4(pid int, options int) (int, unix.WaitStatus, error) {
	var ws unix.WaitStatus
	for {
		wpid, err := unix.Wait4(pid, &ws, options, nil)
		if err == unix.EINTR {
			continue
		}
		return wpid, ws, err
	}
}

func exitStatusFrom(ws unix.WaitStatus) ExitStatus {
	switch {
	case ws.Exited():
		return ExitStatus{Exited: true, Code: ws.ExitStatus()}
	case ws.Signaled():
		return ExitStatus{
			Signaled:   true,
			Signal:     ws.Signal(),
			CoreDumped: ws.CoreDump(),
		}
	default:
		return ExitStatus{Code: -1}
	}
}
