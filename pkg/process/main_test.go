//go:build linux

package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// Child bodies used by the tests in this package. They run in re-executed
// copies of the test binary.
func init() {
	Register("test-exit", func(c *Child) int {
		code, _ := strconv.Atoi(c.Args()[0])
		return code
	})

	Register("test-log", func(c *Child) int {
		c.Logger().Debug("debug line")
		c.Logger().Warn("warn line", "k", "v")
		return 0
	})

	Register("test-print", func(c *Child) int {
		fmt.Fprintln(c.Stdout(), strings.Join(c.Args(), " "))
		return 0
	})

	Register("test-env", func(c *Child) int {
		fmt.Fprintln(c.Stdout(), os.Getenv(c.Args()[0]))
		return 0
	})

	Register("test-pipe-write", func(c *Child) int {
		p, err := c.Pipe(0)
		if err != nil {
			return ExitStatusFor(err)
		}
		_ = p.Close(ReadEnd)
		if _, err := p.Write([]byte(c.Args()[0])); err != nil {
			return ExitStatusFor(err)
		}
		return ExitStatusFor(p.Close(WriteEnd))
	})

	Register("test-pipe-read", func(c *Child) int {
		p, err := c.Pipe(0)
		if err != nil {
			return ExitStatusFor(err)
		}
		_ = p.Close(WriteEnd)
		msg, err := p.ReadAll()
		if err != nil {
			return ExitStatusFor(err)
		}
		fmt.Fprintf(c.Stdout(), "got %q\n", msg)
		return 0
	})

	Register("test-double-close", func(c *Child) int {
		p, err := c.Pipe(0)
		if err != nil {
			return ExitStatusFor(err)
		}
		_ = p.Close(ReadEnd)
		return ExitStatusFor(p.Close(ReadEnd))
	})

	Register("test-shared-file", func(c *Child) int {
		f, err := c.SharedFile(0)
		if err != nil {
			return ExitStatusFor(err)
		}
		_, err = f.Write([]byte(c.Args()[0]))
		return ExitStatusFor(err)
	})

	Register("test-exec", func(c *Child) int {
		err := c.ReplaceImage(c.Args()[0], c.Args()[1:]...)
		return ExitStatusFor(err)
	})

	Register("test-exec-path", func(c *Child) int {
		err := c.ReplaceImageEnv(c.Args()[0], c.Args(), nil)
		return ExitStatusFor(err)
	})

	Register("test-redirect", func(c *Child) int {
		if err := c.RedirectStdout(c.Args()[0]); err != nil {
			return ExitStatusFor(err)
		}
		fmt.Fprintln(c.Stdout(), "redirected")
		return 0
	})

	Register("test-close-stdout", func(c *Child) int {
		if err := c.CloseStdout(); err != nil {
			return ExitStatusFor(err)
		}
		if _, err := fmt.Fprintln(c.Stdout(), "lost"); err == nil {
			return ExitFailure
		}
		return 0
	})

	Register("test-wait-any", func(c *Child) int {
		_, err := c.Reaper().WaitAny()
		if errors.Is(err, ErrNoChildren) {
			return 0
		}
		return ExitFailure
	})

	Register("test-kill-self", func(c *Child) int {
		_ = unix.Kill(c.Pid(), unix.SIGKILL)
		select {}
	})

	Register("test-pipe-count", func(c *Child) int {
		if _, err := c.Pipe(1); err == nil {
			return ExitFailure
		}
		_, err := c.Pipe(0)
		return ExitStatusFor(err)
	})
}

func TestMain(m *testing.M) {
	Dispatch()
	os.Exit(m.Run())
}

// stdoutCapture collects a child's descriptor 1 through an os.Pipe
type stdoutCapture struct {
	r *os.File
	w *os.File
}

func newStdoutCapture(t *testing.T) *stdoutCapture {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() {
		r.Close()
		w.Close()
	})
	return &stdoutCapture{r: r, w: w}
}

func (sc *stdoutCapture) option() LaunchOption {
	return WithStdio(nil, sc.w, nil)
}

// String closes the parent's write end and returns everything written.
// Call it only after every child holding the write end has been reaped.
func (sc *stdoutCapture) String(t *testing.T) string {
	t.Helper()
	require.NoError(t, sc.w.Close())
	out, err := io.ReadAll(sc.r)
	require.NoError(t, err)
	return string(out)
}

func newTestLauncher(t *testing.T, opts ...Option) *Launcher {
	t.Helper()
	l, err := NewLauncher(opts...)
	require.NoError(t, err)
	return l
}

func launchHandle(t *testing.T, l *Launcher, entry string, opts ...LaunchOption) Handle {
	t.Helper()
	role, err := l.Launch(entry, opts...)
	require.NoError(t, err)
	require.True(t, role.IsParent())
	h, ok := role.Handle()
	require.True(t, ok)
	return h
}
