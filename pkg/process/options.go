//go:build linux

package process

import (
	"log/slog"
	"os"

	"go.opentelemetry.io/otel/trace"
)

// Option configures a Launcher or Reaper
type Option func(*settings)

type settings struct {
	logger      *slog.Logger
	metrics     MetricsCollector
	table       *Table
	tracer      trace.Tracer
	executable  string
	runID       string
	logFormat   string
	strictPipes bool
}

func defaultSettings() settings {
	return settings{
		logger:      slog.Default(),
		metrics:     NewNoopMetricsCollector(),
		strictPipes: true,
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsCollector sets the metrics collector
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(s *settings) {
		if mc != nil {
			s.metrics = mc
		}
	}
}

// WithTable shares a process table between a Launcher and Reapers
func WithTable(t *Table) Option {
	return func(s *settings) {
		s.table = t
	}
}

// WithTracer sets the OpenTelemetry tracer used for launch and reap spans
func WithTracer(tracer trace.Tracer) Option {
	return func(s *settings) {
		s.tracer = tracer
	}
}

// WithExecutable overrides the binary re-executed for children.
// Defaults to os.Executable().
func WithExecutable(path string) Option {
	return func(s *settings) {
		s.executable = path
	}
}

// WithRunID sets the correlation id handed to every child
func WithRunID(id string) Option {
	return func(s *settings) {
		s.runID = id
	}
}

// WithLenientChildPipes makes pipes reconstructed in children use the
// lenient double-close policy
func WithLenientChildPipes() Option {
	return func(s *settings) {
		s.strictPipes = false
	}
}

// WithChildLogFormat sets the format children log in, LogFormatJSON or
// LogFormatText. Without it a launcher inherits the format it was itself
// launched with, or uses JSON.
func WithChildLogFormat(format string) Option {
	return func(s *settings) {
		s.logFormat = format
	}
}

// LaunchOption configures a single launch
type LaunchOption func(*launchConfig)

type launchConfig struct {
	args   []string
	env    []string
	pipes  []*Pipe
	files  []*SharedFile
	stdin  *os.File
	stdout *os.File
	stderr *os.File
}

// WithArgs sets the arguments the child sees in Child.Args
func WithArgs(args ...string) LaunchOption {
	return func(c *launchConfig) {
		c.args = append(c.args, args...)
	}
}

// WithEnv adds KEY=VALUE pairs to the child's environment
func WithEnv(env ...string) LaunchOption {
	return func(c *launchConfig) {
		c.env = append(c.env, env...)
	}
}

// WithPipe makes the child inherit both endpoints of p.
// The child retrieves it with Child.Pipe in the order pipes were added.
func WithPipe(p *Pipe) LaunchOption {
	return func(c *launchConfig) {
		c.pipes = append(c.pipes, p)
	}
}

// WithSharedFile hands the child a copy of an open file descriptor.
// Both processes then write through the same file offset.
func WithSharedFile(f *SharedFile) LaunchOption {
	return func(c *launchConfig) {
		c.files = append(c.files, f)
	}
}

// WithStdio sets the child's descriptors 0, 1 and 2. A nil file keeps the
// parent's corresponding standard stream.
func WithStdio(stdin, stdout, stderr *os.File) LaunchOption {
	return func(c *launchConfig) {
		if stdin != nil {
			c.stdin = stdin
		}
		if stdout != nil {
			c.stdout = stdout
		}
		if stderr != nil {
			c.stderr = stderr
		}
	}
}

// PipeOption configures a Pipe
type PipeOption func(*Pipe)

// WithLenientClose makes a double close log a warning and return nil
// instead of failing with InvalidState
func WithLenientClose() PipeOption {
	return func(p *Pipe) {
		p.strict = false
	}
}

// WithStrictClose selects the double-close policy explicitly
func WithStrictClose(strict bool) PipeOption {
	return func(p *Pipe) {
		p.strict = strict
	}
}

// WithPipeLogger sets the logger used for double-close diagnostics
func WithPipeLogger(logger *slog.Logger) PipeOption {
	return func(p *Pipe) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithPipeMetrics sets the metrics collector for pipe events
func WithPipeMetrics(mc MetricsCollector) PipeOption {
	return func(p *Pipe) {
		if mc != nil {
			p.metrics = mc
		}
	}
}
