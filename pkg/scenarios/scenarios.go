//go:build linux

// Package scenarios is a catalog of small programs that show how process
// creation, image replacement, waiting and pipes compose. Each scenario has
// a parent body, run in the calling process, and child bodies registered as
// process entries, so any binary that imports this package must call
// process.Dispatch first.
package scenarios

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/jrepp/proclife/pkg/process"
)

// Scenario is one named demonstration
type Scenario struct {
	Name        string
	Description string

	// Deterministic is false when the output order depends on the scheduler
	Deterministic bool

	Run func(ctx context.Context, env *Env) error
}

// Settings holds the tunables shared by all scenarios
type Settings struct {
	// WCTarget is the file counted by the wc scenarios
	WCTarget string
	// RedirectOutput is where wc-redirect sends the child's stdout
	RedirectOutput string
	// SharedFile is the file both processes write in shared-file
	SharedFile string
	// RaceJitter is the mean delay before the parent prints in race
	// scenarios. Zero disables it.
	RaceJitter time.Duration
	// PipeOptions configure the pipe created by the pipe scenario
	PipeOptions []process.PipeOption
}

// DefaultSettings returns the settings used when nothing is configured
func DefaultSettings() Settings {
	return Settings{
		WCTarget:       "go.mod",
		RedirectOutput: "forking.output",
		SharedFile:     "q2.txt",
		RaceJitter:     25 * time.Millisecond,
	}
}

// Env is what a scenario's parent body works with
type Env struct {
	Launcher *process.Launcher
	Reaper   *process.Reaper

	// Stdout is the parent's output and every child's descriptor 1
	Stdout *os.File
	Logger *slog.Logger

	Settings Settings

	reports []process.ExitReport
}

// NewEnv creates an Env whose Reaper shares l's table. A nil stdout uses
// os.Stdout and a nil logger uses slog.Default().
func NewEnv(l *process.Launcher, stdout *os.File, logger *slog.Logger, settings Settings) *Env {
	if stdout == nil {
		stdout = os.Stdout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Env{
		Launcher: l,
		Reaper:   l.Reaper(),
		Stdout:   stdout,
		Logger:   logger,
		Settings: settings,
	}
}

// Reports returns the exit reports collected so far, in reap order
func (e *Env) Reports() []process.ExitReport {
	return e.reports
}

func (e *Env) printf(format string, args ...any) {
	fmt.Fprintf(e.Stdout, format, args...)
}

// launch starts entry with the Env's stdout as the child's descriptor 1
func (e *Env) launch(ctx context.Context, entry string, opts ...process.LaunchOption) (process.Handle, error) {
	opts = append([]process.LaunchOption{process.WithStdio(nil, e.Stdout, nil)}, opts...)

	role, err := e.Launcher.LaunchContext(ctx, entry, opts...)
	if err != nil {
		return process.Handle{}, fmt.Errorf("launch %s: %w", entry, err)
	}
	h, _ := role.Handle()
	return h, nil
}

// wait reaps h and records its report
func (e *Env) wait(h process.Handle) (process.ExitReport, error) {
	report, err := e.Reaper.WaitFor(h)
	if err != nil {
		return report, fmt.Errorf("wait for %s: %w", h, err)
	}
	e.record(report)
	return report, nil
}

func (e *Env) record(reports ...process.ExitReport) {
	for _, report := range reports {
		if !report.Status.Success() {
			e.Logger.Warn("child did not succeed",
				"entry", report.Entry,
				"pid", report.Handle.Pid(),
				"status", report.Status.String())
		}
	}
	e.reports = append(e.reports, reports...)
}

var catalog = []Scenario{
	simpleFork,
	forkAndWait,
	execWC,
	wcRedirect,
	variableIsolation,
	sharedFile,
	printOrder,
	execLS,
	waitInChild,
	waitPID,
	closedStdout,
	pipeMessage,
}

// All returns every scenario in catalog order
func All() []Scenario {
	out := make([]Scenario, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup finds a scenario by name
func Lookup(name string) (Scenario, bool) {
	for _, s := range catalog {
		if s.Name == name {
			return s, true
		}
	}
	return Scenario{}, false
}

// Capture runs s with a fresh pipe as stdout and returns everything the
// parent and its children wrote to it, along with the exit reports.
func Capture(ctx context.Context, s Scenario, l *process.Launcher, logger *slog.Logger, settings Settings) (string, []process.ExitReport, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return "", nil, fmt.Errorf("create capture pipe: %w", err)
	}
	defer r.Close()

	type readResult struct {
		data []byte
		err  error
	}
	done := make(chan readResult, 1)
	go func() {
		data, err := io.ReadAll(r)
		done <- readResult{data: data, err: err}
	}()

	env := NewEnv(l, w, logger, settings)
	runErr := s.Run(ctx, env)

	// Every child holding w has been reaped, so closing ours ends the stream.
	w.Close()
	res := <-done

	if runErr != nil {
		return string(res.data), env.Reports(), runErr
	}
	if res.err != nil {
		return string(res.data), env.Reports(), fmt.Errorf("read captured output: %w", res.err)
	}
	return string(res.data), env.Reports(), nil
}

// hasArgs reports whether c was launched with at least n arguments, logging
// the misuse when it was not
func hasArgs(c *process.Child, n int) bool {
	if len(c.Args()) >= n {
		return true
	}
	c.Logger().Error("child launched with too few arguments",
		"want", n,
		"got", len(c.Args()))
	return false
}
