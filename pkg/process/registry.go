//go:build linux

package process

import (
	"fmt"
	"os"
	"sort"
	"sync"
)

// ChildFunc is the body a child runs after a launch. Its return value is
// the child's exit status.
type ChildFunc func(c *Child) int

var (
	registryMu sync.RWMutex
	registry   = make(map[string]ChildFunc)
)

// Register makes body launchable under name. It is intended to be called
// from init functions and panics if name is empty or already taken.
func Register(name string, body ChildFunc) {
	if name == "" {
		panic("process: Register with empty entry name")
	}
	if body == nil {
		panic(fmt.Sprintf("process: Register %q with nil body", name))
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("process: entry %q registered twice", name))
	}
	registry[name] = body
}

// Registered returns the names of all registered entries in sorted order
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookup(name string) (ChildFunc, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	body, ok := registry[name]
	return body, ok
}

// IsChildProcess returns true if this process was started by Launch
func IsChildProcess() bool {
	return os.Getenv(envEntry) != ""
}

// Dispatch runs the registered entry named by the launch environment and
// exits with its status. It returns immediately in a process that was not
// started by Launch. Call it first in main, and from TestMain in tests
// that launch children.
func Dispatch() {
	if !IsChildProcess() {
		return
	}
	os.Exit(dispatch())
}

func dispatch() int {
	c, err := newChild()
	if err != nil {
		fmt.Fprintf(os.Stderr, "proclife child: %v\n", err)
		return ExitStatusFor(err)
	}

	body, ok := lookup(c.entry)
	if !ok {
		c.logger.Error("no body registered for entry")
		return ExitInvalidState
	}

	c.logger.Debug("child started", "args", c.args)
	status := body(c)
	c.logger.Debug("child finished", "status", status)
	return status
}
