//go:build linux

package coordinator

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrepp/proclife/pkg/process"
)

func init() {
	process.Register("coordinator-test-send", func(c *process.Child) int {
		msg := DefaultMessage
		if len(c.Args()) > 0 {
			msg = c.Args()[0]
		}
		return Send(c, []byte(msg))
	})
	process.Register("coordinator-test-receive", func(c *process.Child) int {
		return Receive(c, 0, c.Stdout())
	})
	process.Register("coordinator-test-receive-small", func(c *process.Child) int {
		return Receive(c, 5, c.Stdout())
	})
	process.Register("coordinator-test-receive-unwritable", func(c *process.Child) int {
		out, err := os.Open(os.DevNull)
		if err != nil {
			return process.ExitFailure
		}
		defer out.Close()
		return Receive(c, 0, out)
	})
}

func TestMain(m *testing.M) {
	process.Dispatch()
	os.Exit(m.Run())
}

func captureStdout(t *testing.T) (*os.File, func() string) {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() {
		r.Close()
		w.Close()
	})
	return w, func() string {
		require.NoError(t, w.Close())
		out, err := io.ReadAll(r)
		require.NoError(t, err)
		return string(out)
	}
}

func newLauncher(t *testing.T, opts ...process.Option) *process.Launcher {
	t.Helper()
	l, err := process.NewLauncher(opts...)
	require.NoError(t, err)
	return l
}

func TestRun_SenderToReceiver(t *testing.T) {
	l := newLauncher(t)
	stdout, output := captureStdout(t)

	result, err := New(l).Run(context.Background(), Plan{
		Sender:    Endpoint{Entry: "coordinator-test-send"},
		Receivers: []Endpoint{{Entry: "coordinator-test-receive"}},
		Stdout:    stdout,
	})
	require.NoError(t, err)
	require.Len(t, result.Reports, 2)
	assert.True(t, result.Success())
	assert.Equal(t, "coordinator-test-send", result.Reports[0].Entry)
	assert.Equal(t, "coordinator-test-receive", result.Reports[1].Entry)
	assert.Empty(t, l.Table().Pending())

	assert.Equal(t, "p2 just received: Hello from p1\n", output())
}

func TestRun_ReceiveLimit(t *testing.T) {
	l := newLauncher(t)
	stdout, output := captureStdout(t)

	result, err := New(l).Run(context.Background(), Plan{
		Sender:    Endpoint{Entry: "coordinator-test-send"},
		Receivers: []Endpoint{{Entry: "coordinator-test-receive-small"}},
		Stdout:    stdout,
	})
	require.NoError(t, err)
	assert.True(t, result.Success())

	assert.Equal(t, "p2 just received: Hello", output())
}

func TestRun_ReceiverReportFails(t *testing.T) {
	l := newLauncher(t)

	result, err := New(l).Run(context.Background(), Plan{
		Sender:    Endpoint{Entry: "coordinator-test-send"},
		Receivers: []Endpoint{{Entry: "coordinator-test-receive-unwritable"}},
	})
	require.NoError(t, err)
	require.Len(t, result.Reports, 2)
	assert.False(t, result.Success())
	assert.True(t, result.Reports[0].Status.Success())
	assert.Equal(t, process.ExitIOError, result.Reports[1].Status.Code)
}

func TestRun_EmptyMessage(t *testing.T) {
	l := newLauncher(t)
	stdout, output := captureStdout(t)

	result, err := New(l, WithPipeOptions(process.WithLenientClose())).Run(context.Background(), Plan{
		Sender:    Endpoint{Entry: "coordinator-test-send", Args: []string{""}},
		Receivers: []Endpoint{{Entry: "coordinator-test-receive"}},
		Stdout:    stdout,
	})
	require.NoError(t, err)
	assert.True(t, result.Success())

	// the receiver sees end-of-stream once the sender exits
	assert.Equal(t, "p2 just received: ", output())
}

func TestRun_InvalidPlan(t *testing.T) {
	c := New(newLauncher(t))

	tests := []struct {
		name string
		plan Plan
	}{
		{"no sender", Plan{Receivers: []Endpoint{{Entry: "coordinator-test-receive"}}}},
		{"no receivers", Plan{Sender: Endpoint{Entry: "coordinator-test-send"}}},
		{"empty receiver", Plan{
			Sender:    Endpoint{Entry: "coordinator-test-send"},
			Receivers: []Endpoint{{}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Run(context.Background(), tt.plan)
			assert.ErrorIs(t, err, process.ErrInvalidState)
		})
	}
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(newLauncher(t)).Run(ctx, Plan{
		Sender:    Endpoint{Entry: "coordinator-test-send"},
		Receivers: []Endpoint{{Entry: "coordinator-test-receive"}},
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_LaunchFailure(t *testing.T) {
	l := newLauncher(t, process.WithExecutable(filepath.Join(t.TempDir(), "missing")))

	result, err := New(l).Run(context.Background(), Plan{
		Sender:    Endpoint{Entry: "coordinator-test-send"},
		Receivers: []Endpoint{{Entry: "coordinator-test-receive"}},
	})
	require.Error(t, err)
	require.NotNil(t, result)
	assert.Empty(t, result.Reports)
	assert.False(t, result.Success())
}

func TestResult_Success(t *testing.T) {
	ok := process.ExitReport{Status: process.ExitStatus{Exited: true}}
	failed := process.ExitReport{Status: process.ExitStatus{Exited: true, Code: 74}}

	assert.False(t, (&Result{}).Success())
	assert.True(t, (&Result{Reports: []process.ExitReport{ok, ok}}).Success())
	assert.False(t, (&Result{Reports: []process.ExitReport{ok, failed}}).Success())
}
