//go:build linux

// Package coordinator moves a message between independently scheduled
// children over one pipe. The parent only sets the pipe up and reaps; it
// never reads or writes the pipe itself.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jrepp/proclife/pkg/process"
)

// DefaultMessage is the sender's message in the two-children pipe program
const DefaultMessage = "Hello from p1\n"

// DefaultReceiveLimit bounds what a receiver reads in one message
const DefaultReceiveLimit = 100

// Endpoint names a registered child entry and its arguments
type Endpoint struct {
	Entry string
	Args  []string
}

// Plan describes one sender and its receivers sharing a pipe
type Plan struct {
	Sender    Endpoint
	Receivers []Endpoint

	// Stdout becomes every child's descriptor 1. Nil keeps os.Stdout.
	Stdout *os.File
}

// Result holds the exit reports of every child in launch order
type Result struct {
	Reports []process.ExitReport
}

// Success returns true if every child exited with status 0
func (r *Result) Success() bool {
	for _, report := range r.Reports {
		if !report.Status.Success() {
			return false
		}
	}
	return len(r.Reports) > 0
}

// Coordinator runs Plans
type Coordinator struct {
	launcher *process.Launcher
	reaper   *process.Reaper
	logger   *slog.Logger
	tracer   trace.Tracer
	pipeOpts []process.PipeOption
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithReaper sets the reaper; it must share the launcher's table
func WithReaper(r *process.Reaper) Option {
	return func(c *Coordinator) {
		if r != nil {
			c.reaper = r
		}
	}
}

// WithPipeOptions sets the options for the pipe each Run creates
func WithPipeOptions(opts ...process.PipeOption) Option {
	return func(c *Coordinator) {
		c.pipeOpts = append(c.pipeOpts, opts...)
	}
}

// WithTracer sets the OpenTelemetry tracer
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Coordinator) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

// New creates a Coordinator launching children with l
func New(l *process.Launcher, opts ...Option) *Coordinator {
	c := &Coordinator{
		launcher: l,
		logger:   slog.Default(),
		tracer:   otel.Tracer("github.com/jrepp/proclife/pkg/coordinator"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.reaper == nil {
		c.reaper = l.Reaper()
	}
	return c
}

// Run sets up one pipe, launches the sender and then every receiver with
// it, closes the parent's copies of both ends and reaps every child in
// launch order. A launch failure closes the pipe, reaps the children
// already launched and returns the launch error.
func (c *Coordinator) Run(ctx context.Context, plan Plan) (*Result, error) {
	if err := validate(plan); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctx, span := c.tracer.Start(ctx, "coordinator.Run",
		trace.WithAttributes(
			attribute.String("coordinator.sender", plan.Sender.Entry),
			attribute.Int("coordinator.receivers", len(plan.Receivers)),
		))
	defer span.End()

	pipe, err := process.NewPipe(c.pipeOpts...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("create coordinator pipe: %w", err)
	}

	endpoints := append([]Endpoint{plan.Sender}, plan.Receivers...)
	handles := make([]process.Handle, 0, len(endpoints))

	for _, ep := range endpoints {
		role, err := c.launcher.LaunchContext(ctx, ep.Entry,
			process.WithArgs(ep.Args...),
			process.WithPipe(pipe),
			process.WithStdio(nil, plan.Stdout, nil))
		if err != nil {
			c.logger.Error("launch failed, abandoning plan", "entry", ep.Entry, "error", err)
			c.closeParentEnds(pipe)
			result, _ := c.reap(handles)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return result, err
		}

		h, _ := role.Handle()
		handles = append(handles, h)
		c.logger.Debug("launched endpoint", "entry", ep.Entry, "pid", h.Pid())
	}

	// The parent does not take part in the exchange. Holding the write end
	// would keep receivers from ever seeing end-of-stream.
	c.closeParentEnds(pipe)

	result, err := c.reap(handles)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}
	return result, nil
}

func validate(plan Plan) error {
	if plan.Sender.Entry == "" {
		return process.NewError(process.ErrorCodeInvalidState, "plan has no sender")
	}
	if len(plan.Receivers) == 0 {
		return process.NewError(process.ErrorCodeInvalidState, "plan has no receivers").
			WithContext("sender", plan.Sender.Entry)
	}
	for i, r := range plan.Receivers {
		if r.Entry == "" {
			return process.NewError(process.ErrorCodeInvalidState,
				fmt.Sprintf("receiver %d has no entry", i))
		}
	}
	return nil
}

// closeParentEnds closes both distinct ends; failures are logged and ignored
func (c *Coordinator) closeParentEnds(pipe *process.Pipe) {
	for _, end := range []process.End{process.ReadEnd, process.WriteEnd} {
		if !pipe.IsOpen(end) {
			continue
		}
		if err := pipe.Close(end); err != nil {
			c.logger.Warn("closing parent pipe end failed", "end", end.String(), "error", err)
		}
	}
}

func (c *Coordinator) reap(handles []process.Handle) (*Result, error) {
	result := &Result{Reports: make([]process.ExitReport, 0, len(handles))}
	var errs []error

	for _, h := range handles {
		report, err := c.reaper.WaitFor(h)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		result.Reports = append(result.Reports, report)
		c.logger.Debug("endpoint finished", "pid", h.Pid(), "status", report.Status.String())
	}

	return result, errors.Join(errs...)
}
