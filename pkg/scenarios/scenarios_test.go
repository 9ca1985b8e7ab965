//go:build linux

package scenarios

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrepp/proclife/pkg/process"
)

func TestMain(m *testing.M) {
	process.Dispatch()
	os.Exit(m.Run())
}

func testSettings(t *testing.T) Settings {
	t.Helper()
	dir := t.TempDir()

	target := filepath.Join(dir, "words.txt")
	require.NoError(t, os.WriteFile(target, []byte("one two\nthree\n"), 0600))

	s := DefaultSettings()
	s.WCTarget = target
	s.RedirectOutput = filepath.Join(dir, "forking.output")
	s.SharedFile = filepath.Join(dir, "q2.txt")
	s.RaceJitter = 0
	return s
}

func runScenario(t *testing.T, name string, settings Settings) (string, []process.ExitReport) {
	t.Helper()

	s, ok := Lookup(name)
	require.True(t, ok, "scenario %s", name)

	l, err := process.NewLauncher()
	require.NoError(t, err)

	out, reports, err := Capture(context.Background(), s, l, nil, settings)
	require.NoError(t, err)
	assert.Empty(t, l.Table().Pending(), "every child is reaped")
	return out, reports
}

func lines(out string) []string {
	return strings.Split(strings.TrimSuffix(out, "\n"), "\n")
}

func TestCatalog(t *testing.T) {
	names := make([]string, 0, len(All()))
	for _, s := range All() {
		names = append(names, s.Name)
		assert.NotEmpty(t, s.Description, s.Name)
		assert.NotNil(t, s.Run, s.Name)
	}

	assert.Equal(t, []string{
		"simple-fork", "fork-and-wait", "exec-wc", "wc-redirect",
		"variable-isolation", "shared-file", "print-order", "exec-ls",
		"wait-in-child", "waitpid", "closed-stdout", "pipe",
	}, names)

	s, ok := Lookup("pipe")
	require.True(t, ok)
	assert.True(t, s.Deterministic)

	s, ok = Lookup("print-order")
	require.True(t, ok)
	assert.False(t, s.Deterministic)

	_, ok = Lookup("no-such-scenario")
	assert.False(t, ok)
}

func TestSimpleFork(t *testing.T) {
	out, reports := runScenario(t, "simple-fork", testSettings(t))
	require.Len(t, reports, 1)
	child := reports[0].Handle.Pid()

	got := lines(out)
	require.Len(t, got, 3)
	assert.Equal(t, fmt.Sprintf("Hello World (pid: %d)", os.Getpid()), got[0])
	assert.ElementsMatch(t, []string{
		fmt.Sprintf("Hello, I am child (pid: %d)", child),
		fmt.Sprintf("Hello, I am parent of %d (pid: %d)", child, os.Getpid()),
	}, got[1:])
}

func TestForkAndWait(t *testing.T) {
	out, reports := runScenario(t, "fork-and-wait", testSettings(t))
	require.Len(t, reports, 1)
	child := reports[0].Handle.Pid()

	assert.Equal(t, fmt.Sprintf(
		"Hello World (pid: %d)\nHello, I am child (pid: %d)\nHello, I am parent of %d (rc_wait:%d) (pid:%d)\n",
		os.Getpid(), child, child, child, os.Getpid()), out)
}

func TestExecWC(t *testing.T) {
	settings := testSettings(t)
	out, reports := runScenario(t, "exec-wc", settings)
	require.Len(t, reports, 1)
	assert.True(t, reports[0].Status.Success())

	got := lines(out)
	require.Len(t, got, 4)
	assert.Contains(t, got[1], "Hello, I am child")
	assert.Equal(t, []string{"2", "3", "14", settings.WCTarget}, strings.Fields(got[2]))
	assert.Contains(t, got[3], "rc_wait: ")
	assert.NotContains(t, out, "This shouldn't print out")
}

func TestExecWC_MissingTarget(t *testing.T) {
	settings := testSettings(t)
	settings.WCTarget = filepath.Join(t.TempDir(), "absent")

	_, reports := runScenario(t, "exec-wc", settings)
	require.Len(t, reports, 1)
	assert.True(t, reports[0].Status.Exited)
	assert.NotZero(t, reports[0].Status.Code)
}

func TestWCRedirect(t *testing.T) {
	settings := testSettings(t)
	out, reports := runScenario(t, "wc-redirect", settings)
	require.Len(t, reports, 1)
	assert.True(t, reports[0].Status.Success())
	assert.Empty(t, out)

	data, err := os.ReadFile(settings.RedirectOutput)
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "3", "14", settings.WCTarget}, strings.Fields(string(data)))

	info, err := os.Stat(settings.RedirectOutput)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestVariableIsolation(t *testing.T) {
	out, reports := runScenario(t, "variable-isolation", testSettings(t))
	require.Len(t, reports, 1)

	assert.Equal(t, fmt.Sprintf("x = 5 (pid: %d)\nx = 200 (pid: %d)\n",
		reports[0].Handle.Pid(), os.Getpid()), out)
}

func TestSharedFile(t *testing.T) {
	settings := testSettings(t)
	out, reports := runScenario(t, "shared-file", settings)
	require.Len(t, reports, 1)
	assert.True(t, reports[0].Status.Success())
	assert.Empty(t, out)

	data, err := os.ReadFile(settings.SharedFile)
	require.NoError(t, err)
	assert.Contains(t, []string{"child\nparent\n", "parent\nchild\n"}, string(data))
}

func TestPrintOrder(t *testing.T) {
	out, _ := runScenario(t, "print-order", testSettings(t))

	got := lines(out)
	sort.Strings(got)
	assert.Equal(t, []string{"Goodbye", "Hello"}, got)
}

func TestExecLS(t *testing.T) {
	out, reports := runScenario(t, "exec-ls", testSettings(t))
	require.Len(t, reports, 2)
	for _, r := range reports {
		assert.True(t, r.Status.Success(), r.Entry)
	}

	got := lines(out)
	assert.Equal(t, fmt.Sprintf("Child calling some execs (pid: %d)", reports[0].Handle.Pid()), got[0])
	assert.True(t, strings.HasPrefix(got[1], "total"), got[1])
	assert.Equal(t, fmt.Sprintf("Parent calling some execs (pid: %d)", os.Getpid()), got[len(got)-2])
	assert.Equal(t, "hi", got[len(got)-1])
}

func TestWaitInChild(t *testing.T) {
	out, reports := runScenario(t, "wait-in-child", testSettings(t))
	require.Len(t, reports, 1)
	assert.True(t, reports[0].Status.Success())

	assert.Equal(t, fmt.Sprintf("Hi, I'm parent. Child (pid: %d) just finished\n", reports[0].Handle.Pid()), out)
}

func TestWaitPID(t *testing.T) {
	out, reports := runScenario(t, "waitpid", testSettings(t))
	require.Len(t, reports, 2)

	p2, p1 := reports[0], reports[1]
	p2Line := fmt.Sprintf("Hey! I'm child p2 (pid: %d)", p2.Handle.Pid())
	parentLine := fmt.Sprintf("Hey! I'm parent (pid: %d)", os.Getpid())

	got := lines(out)
	require.Len(t, got, 3)
	assert.Contains(t, got, fmt.Sprintf("Hey! I'm child p1 (pid: %d)", p1.Handle.Pid()))

	indexOf := func(s string) int {
		for i, line := range got {
			if line == s {
				return i
			}
		}
		return -1
	}
	require.NotEqual(t, -1, indexOf(p2Line))
	assert.Less(t, indexOf(p2Line), indexOf(parentLine))
}

func TestClosedStdout(t *testing.T) {
	out, reports := runScenario(t, "closed-stdout", testSettings(t))
	require.Len(t, reports, 1)
	assert.True(t, reports[0].Status.Success())

	assert.Equal(t, "But this will\n", out)
}

func TestPipe(t *testing.T) {
	settings := testSettings(t)
	settings.PipeOptions = []process.PipeOption{process.WithLenientClose()}

	out, reports := runScenario(t, "pipe", settings)
	require.Len(t, reports, 2)
	for _, r := range reports {
		assert.True(t, r.Status.Success(), r.Entry)
	}

	assert.Equal(t, "p2 just received: Hello from p1\n", out)
}

func TestChildEntries_MissingArgs(t *testing.T) {
	for _, entry := range []string{entryVariable, entryWCRedirect} {
		t.Run(entry, func(t *testing.T) {
			l, err := process.NewLauncher()
			require.NoError(t, err)

			devnull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
			require.NoError(t, err)
			defer devnull.Close()

			role, err := l.Launch(entry, process.WithStdio(nil, devnull, devnull))
			require.NoError(t, err)
			h, ok := role.Handle()
			require.True(t, ok)

			report, err := l.Reaper().WaitFor(h)
			require.NoError(t, err)
			assert.Equal(t, process.ExitInvalidState, report.Status.Code)
		})
	}
}

func TestForkAndWait_AlwaysOrdered(t *testing.T) {
	trials := 100
	if testing.Short() {
		trials = 10
	}

	s, _ := Lookup("fork-and-wait")
	l, err := process.NewLauncher()
	require.NoError(t, err)
	settings := testSettings(t)

	outputs, err := Trials(context.Background(), trials, 4, func(ctx context.Context, _ int) (string, error) {
		out, _, err := Capture(ctx, s, l, nil, settings)
		return out, err
	})
	require.NoError(t, err)
	require.Len(t, outputs, trials)

	for _, out := range outputs {
		got := lines(out)
		require.Len(t, got, 3)
		assert.True(t, strings.HasPrefix(got[1], "Hello, I am child"), out)
		assert.True(t, strings.HasPrefix(got[2], "Hello, I am parent"), out)
	}
}

func TestPrintOrder_BothOrderingsAppear(t *testing.T) {
	if testing.Short() {
		t.Skip("race trials skipped in short mode")
	}

	l, err := process.NewLauncher()
	require.NoError(t, err)
	settings := testSettings(t)

	// Calibrate the parent's delay to how long a child takes to start
	// printing on this machine.
	wait, _ := Lookup("fork-and-wait")
	var samples []time.Duration
	for i := 0; i < 5; i++ {
		start := time.Now()
		_, _, err := Capture(context.Background(), wait, l, nil, settings)
		require.NoError(t, err)
		samples = append(samples, time.Since(start))
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	settings.RaceJitter = min(max(samples[len(samples)/2], 5*time.Millisecond), 200*time.Millisecond)

	race, _ := Lookup("print-order")
	outputs, err := Trials(context.Background(), 100, 4, func(ctx context.Context, _ int) (string, error) {
		out, _, err := Capture(ctx, race, l, nil, settings)
		return out, err
	})
	require.NoError(t, err)

	seen := map[string]int{}
	for _, out := range outputs {
		seen[out]++
	}
	assert.Len(t, seen, 2, "orderings seen: %v", seen)
	assert.Contains(t, seen, "Hello\nGoodbye\n")
	assert.Contains(t, seen, "Goodbye\nHello\n")
}
