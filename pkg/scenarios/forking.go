//go:build linux

package scenarios

import (
	"context"
	"fmt"
	"os"

	"github.com/jrepp/proclife/pkg/process"
)

const (
	entryGreeter    = "scenarios/greeter"
	entryWC         = "scenarios/wc"
	entryWCRedirect = "scenarios/wc-redirect"
)

func init() {
	process.Register(entryGreeter, func(c *process.Child) int {
		fmt.Fprintf(c.Stdout(), "Hello, I am child (pid: %d)\n", c.Pid())
		return process.ExitOK
	})

	process.Register(entryWC, func(c *process.Child) int {
		fmt.Fprintf(c.Stdout(), "Hello, I am child (pid: %d)\n", c.Pid())
		err := c.ReplaceImage("wc", c.Args()...)
		fmt.Fprintln(c.Stdout(), "This shouldn't print out")
		return process.ExitStatusFor(err)
	})

	process.Register(entryWCRedirect, func(c *process.Child) int {
		if !hasArgs(c, 2) {
			return process.ExitInvalidState
		}
		args := c.Args()
		if err := c.RedirectStdout(args[0]); err != nil {
			c.Logger().Error("redirecting stdout failed", "error", err)
			return process.ExitStatusFor(err)
		}
		return process.ExitStatusFor(c.ReplaceImage("wc", args[1:]...))
	})
}

var simpleFork = Scenario{
	Name:        "simple-fork",
	Description: "parent and child print without waiting; order is up to the scheduler",
	Run: func(ctx context.Context, env *Env) error {
		env.printf("Hello World (pid: %d)\n", os.Getpid())

		h, err := env.launch(ctx, entryGreeter)
		if err != nil {
			return err
		}

		if err := raceDelay(ctx, env.Settings.RaceJitter); err != nil {
			return err
		}
		env.printf("Hello, I am parent of %d (pid: %d)\n", h.Pid(), os.Getpid())

		_, err = env.wait(h)
		return err
	},
}

var forkAndWait = Scenario{
	Name:          "fork-and-wait",
	Description:   "parent waits for the child before printing, so the child always prints first",
	Deterministic: true,
	Run: func(ctx context.Context, env *Env) error {
		env.printf("Hello World (pid: %d)\n", os.Getpid())

		h, err := env.launch(ctx, entryGreeter)
		if err != nil {
			return err
		}

		report, err := env.wait(h)
		if err != nil {
			return err
		}
		env.printf("Hello, I am parent of %d (rc_wait:%d) (pid:%d)\n",
			h.Pid(), report.Handle.Pid(), os.Getpid())
		return nil
	},
}

var execWC = Scenario{
	Name:          "exec-wc",
	Description:   "child replaces its image with wc; the parent waits",
	Deterministic: true,
	Run: func(ctx context.Context, env *Env) error {
		env.printf("Hello World (pid: %d)\n", os.Getpid())

		h, err := env.launch(ctx, entryWC, process.WithArgs(env.Settings.WCTarget))
		if err != nil {
			return err
		}

		report, err := env.wait(h)
		if err != nil {
			return err
		}
		env.printf("Hello, I am parent of %d (rc_wait: %d) (pid: %d)\n",
			h.Pid(), report.Handle.Pid(), os.Getpid())
		return nil
	},
}

var wcRedirect = Scenario{
	Name:          "wc-redirect",
	Description:   "child sends its stdout to a file, then replaces its image with wc",
	Deterministic: true,
	Run: func(ctx context.Context, env *Env) error {
		h, err := env.launch(ctx, entryWCRedirect,
			process.WithArgs(env.Settings.RedirectOutput, env.Settings.WCTarget))
		if err != nil {
			return err
		}

		if _, err := env.wait(h); err != nil {
			return err
		}
		env.Logger.Info("wc output written", "path", env.Settings.RedirectOutput)
		return nil
	},
}
