//go:build linux

package process

import (
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sys/unix"
)

// Pipe is a unidirectional byte channel. It owns two descriptors until each
// is closed. Launching a child with WithPipe gives the child its own copies
// of both; each process must close the copies it does not use.
//
// A Pipe is safe for use by multiple goroutines, but a Close of an end while
// another goroutine is blocked reading or writing it has undefined results.
type Pipe struct {
	mu   sync.Mutex
	fds  [2]int
	open [2]bool

	strict  bool
	logger  *slog.Logger
	metrics MetricsCollector
}

// NewPipe creates a pipe. Both descriptors are close-on-exec, so only
// launches that name the pipe inherit it.
func NewPipe(opts ...PipeOption) (*Pipe, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC); err != nil {
		return nil, classifyErrno("create pipe", err)
	}
	return newPipe(fds[0], fds[1], opts...), nil
}

func newPipe(readFD, writeFD int, opts ...PipeOption) *Pipe {
	p := &Pipe{
		fds:     [2]int{readFD, writeFD},
		open:    [2]bool{true, true},
		strict:  true,
		logger:  slog.Default(),
		metrics: NewNoopMetricsCollector(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// IsOpen returns true if this process still holds end
func (p *Pipe) IsOpen(end End) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open[end]
}

// fd returns the descriptor for end, or an InvalidState error if closed
func (p *Pipe) fd(op string, end End) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.open[end] {
		return -1, errEndClosed(op, end)
	}
	return p.fds[end], nil
}

// Close releases this process's copy of end. Closing an end twice is a
// caller error: InvalidState under the strict policy, a logged no-op under
// the lenient one.
func (p *Pipe) Close(end End) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.open[end] {
		p.metrics.PipeDoubleClose(end)
		if p.strict {
			return errDoubleClose(end)
		}
		p.logger.Warn("pipe end already closed, ignoring", "end", end.String())
		return nil
	}

	fd := p.fds[end]
	p.open[end] = false
	p.fds[end] = -1

	// The descriptor is released even when close reports an error.
	if err := unix.Close(fd); err != nil {
		return errIO("close pipe "+end.String()+" end", err)
	}

	p.metrics.PipeClosed(end)
	return nil
}

// CloseAll closes every end this process still holds
func (p *Pipe) CloseAll() error {
	var errs []error
	for _, end := range []End{ReadEnd, WriteEnd} {
		if !p.IsOpen(end) {
			continue
		}
		if err := p.Close(end); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Write performs one write to the write end and returns the bytes written.
// It blocks while the pipe buffer is full.
func (p *Pipe) Write(b []byte) (int, error) {
	fd, err := p.fd("write", WriteEnd)
	if err != nil {
		return 0, err
	}

	for {
		n, err := unix.Write(fd, b)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, errIO("write pipe", err)
		}
		return n, nil
	}
}

// Read performs one read from the read end. It blocks until data is
// available or every copy of the write end, in every process, is closed;
// in the latter case it returns 0 and a nil error (end-of-stream).
func (p *Pipe) Read(b []byte) (int, error) {
	fd, err := p.fd("read", ReadEnd)
	if err != nil {
		return 0, err
	}

	for {
		n, err := unix.Read(fd, b)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, errIO("read pipe", err)
		}
		return n, nil
	}
}

// ReadAll reads until end-of-stream
func (p *Pipe) ReadAll() ([]byte, error) {
	var out []byte
	buf := make([]byte, 512)
	for {
		n, err := p.Read(buf)
		if err != nil {
			return out, err
		}
		if n == 0 {
			return out, nil
		}
		out = append(out, buf[:n]...)
	}
}

// descriptors returns both descriptors for inheritance by a child
func (p *Pipe) descriptors() (readFD, writeFD int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, end := range []End{ReadEnd, WriteEnd} {
		if !p.open[end] {
			return -1, -1, errEndClosed("launch with pipe", end)
		}
	}
	return p.fds[ReadEnd], p.fds[WriteEnd], nil
}
