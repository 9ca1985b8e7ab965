//go:build linux

package scenarios

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/jrepp/proclife/pkg/coordinator"
	"github.com/jrepp/proclife/pkg/process"
)

const (
	entryVariable     = "scenarios/variable"
	entrySharedWriter = "scenarios/shared-writer"
	entryHello        = "scenarios/hello"
	entryLS           = "scenarios/ls"
	entryEcho         = "scenarios/echo"
	entryWaitAny      = "scenarios/wait-any"
	entryWaitPID      = "scenarios/waitpid-child"
	entryClosedStdout = "scenarios/closed-stdout"
	entryPipeSender   = "scenarios/pipe-sender"
	entryPipeReceiver = "scenarios/pipe-receiver"
)

// fallbackEcho is used when echo is not on PATH
const fallbackEcho = "/usr/bin/echo"

func init() {
	process.Register(entryVariable, func(c *process.Child) int {
		if !hasArgs(c, 1) {
			return process.ExitInvalidState
		}
		x, err := strconv.Atoi(c.Args()[0])
		if err != nil {
			c.Logger().Error("bad variable value", "value", c.Args()[0])
			return process.ExitFailure
		}
		c.Logger().Debug("inherited variable", "x", x)

		x = 5
		fmt.Fprintf(c.Stdout(), "x = %d (pid: %d)\n", x, c.Pid())
		return process.ExitOK
	})

	process.Register(entrySharedWriter, func(c *process.Child) int {
		f, err := c.SharedFile(0)
		if err != nil {
			return process.ExitStatusFor(err)
		}
		_, err = f.Write([]byte("child\n"))
		return process.ExitStatusFor(err)
	})

	process.Register(entryHello, func(c *process.Child) int {
		fmt.Fprintln(c.Stdout(), "Hello")
		return process.ExitOK
	})

	process.Register(entryLS, func(c *process.Child) int {
		fmt.Fprintf(c.Stdout(), "Child calling some execs (pid: %d)\n", c.Pid())
		return process.ExitStatusFor(c.ReplaceImage("ls", "-la"))
	})

	process.Register(entryEcho, func(c *process.Child) int {
		path, err := exec.LookPath("echo")
		if err != nil {
			path = fallbackEcho
		}
		return process.ExitStatusFor(c.ReplaceImageEnv(path, []string{"echo", "hi"}, []string{}))
	})

	process.Register(entryWaitAny, func(c *process.Child) int {
		_, err := c.Reaper().WaitAny()
		if !errors.Is(err, process.ErrNoChildren) {
			c.Logger().Error("wait in a childless process did not report no children", "error", err)
			return process.ExitInvalidState
		}
		return process.ExitOK
	})

	process.Register(entryWaitPID, func(c *process.Child) int {
		fmt.Fprintf(c.Stdout(), "Hey! I'm child %s (pid: %d)\n", c.Args()[0], c.Pid())
		return process.ExitOK
	})

	process.Register(entryClosedStdout, func(c *process.Child) int {
		if err := c.CloseStdout(); err != nil {
			return process.ExitStatusFor(err)
		}
		if _, err := fmt.Fprintln(c.Stdout(), "This won't print"); err != nil {
			c.Logger().Debug("print after closing stdout failed", "error", err)
		}
		return process.ExitOK
	})

	process.Register(entryPipeSender, func(c *process.Child) int {
		return coordinator.Send(c, []byte(coordinator.DefaultMessage))
	})

	process.Register(entryPipeReceiver, func(c *process.Child) int {
		return coordinator.Receive(c, coordinator.DefaultReceiveLimit, c.Stdout())
	})
}

var variableIsolation = Scenario{
	Name:          "variable-isolation",
	Description:   "child and parent change their own copy of x",
	Deterministic: true,
	Run: func(ctx context.Context, env *Env) error {
		x := 100

		h, err := env.launch(ctx, entryVariable, process.WithArgs(strconv.Itoa(x)))
		if err != nil {
			return err
		}
		if _, err := env.wait(h); err != nil {
			return err
		}

		x = 200
		env.printf("x = %d (pid: %d)\n", x, os.Getpid())
		return nil
	},
}

var sharedFile = Scenario{
	Name:        "shared-file",
	Description: "parent and child write to one open file; the first scheduled writes first",
	Run: func(ctx context.Context, env *Env) error {
		f, err := process.OpenSharedFile(env.Settings.SharedFile)
		if err != nil {
			return fmt.Errorf("open shared file: %w", err)
		}
		defer f.Close()

		h, err := env.launch(ctx, entrySharedWriter, process.WithSharedFile(f))
		if err != nil {
			return err
		}

		if err := raceDelay(ctx, env.Settings.RaceJitter); err != nil {
			return err
		}
		if _, err := f.Write([]byte("parent\n")); err != nil {
			return err
		}

		_, err = env.wait(h)
		return err
	},
}

var printOrder = Scenario{
	Name:        "print-order",
	Description: "child prints Hello, parent prints Goodbye, without waiting",
	Run: func(ctx context.Context, env *Env) error {
		h, err := env.launch(ctx, entryHello)
		if err != nil {
			return err
		}

		if err := raceDelay(ctx, env.Settings.RaceJitter); err != nil {
			return err
		}
		env.printf("Goodbye\n")

		_, err = env.wait(h)
		return err
	},
}

var execLS = Scenario{
	Name:          "exec-ls",
	Description:   "child replaces its image with ls; a second child runs echo with an empty environment",
	Deterministic: true,
	Run: func(ctx context.Context, env *Env) error {
		h, err := env.launch(ctx, entryLS)
		if err != nil {
			return err
		}
		if _, err := env.wait(h); err != nil {
			return err
		}

		env.printf("Parent calling some execs (pid: %d)\n", os.Getpid())

		// The parent keeps its own image; the echo runs in a child instead.
		h, err = env.launch(ctx, entryEcho)
		if err != nil {
			return err
		}
		_, err = env.wait(h)
		return err
	},
}

var waitInChild = Scenario{
	Name:          "wait-in-child",
	Description:   "a childless child waits and returns at once; the parent reports the finished child",
	Deterministic: true,
	Run: func(ctx context.Context, env *Env) error {
		h, err := env.launch(ctx, entryWaitAny)
		if err != nil {
			return err
		}

		report, err := env.wait(h)
		if err != nil {
			return err
		}
		env.printf("Hi, I'm parent. Child (pid: %d) just finished\n", report.Handle.Pid())
		return nil
	},
}

var waitPID = Scenario{
	Name:        "waitpid",
	Description: "two children; the parent waits for the second one only, then collects the first",
	Run: func(ctx context.Context, env *Env) error {
		p1, err := env.launch(ctx, entryWaitPID, process.WithArgs("p1"))
		if err != nil {
			return err
		}
		p2, err := env.launch(ctx, entryWaitPID, process.WithArgs("p2"))
		if err != nil {
			_, _ = env.wait(p1)
			return err
		}

		if _, err := env.wait(p2); err != nil {
			return err
		}
		env.printf("Hey! I'm parent (pid: %d)\n", os.Getpid())

		_, err = env.wait(p1)
		return err
	},
}

var closedStdout = Scenario{
	Name:          "closed-stdout",
	Description:   "child closes stdout so its print is lost; the parent's print is not",
	Deterministic: true,
	Run: func(ctx context.Context, env *Env) error {
		h, err := env.launch(ctx, entryClosedStdout)
		if err != nil {
			return err
		}
		if _, err := env.wait(h); err != nil {
			return err
		}

		env.printf("But this will\n")
		return nil
	},
}

var pipeMessage = Scenario{
	Name:          "pipe",
	Description:   "one child sends a message to another over a pipe",
	Deterministic: true,
	Run: func(ctx context.Context, env *Env) error {
		c := coordinator.New(env.Launcher,
			coordinator.WithReaper(env.Reaper),
			coordinator.WithLogger(env.Logger),
			coordinator.WithPipeOptions(env.Settings.PipeOptions...))

		result, err := c.Run(ctx, coordinator.Plan{
			Sender:    coordinator.Endpoint{Entry: entryPipeSender},
			Receivers: []coordinator.Endpoint{{Entry: entryPipeReceiver}},
			Stdout:    env.Stdout,
		})
		if result != nil {
			env.record(result.Reports...)
		}
		return err
	},
}
