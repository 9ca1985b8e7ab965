// Package process creates child processes, replaces their program image,
// and collects their termination status.
//
// A launch re-executes the running binary. The child enters through
// Dispatch, which must be the first call in main (and in TestMain for test
// binaries), and runs the body registered for the launched entry:
//
//	func init() {
//		process.Register("greeter", func(c *process.Child) int {
//			fmt.Fprintf(c.Stdout(), "Hello, I am child (pid: %d)\n", c.Pid())
//			return 0
//		})
//	}
//
//	func main() {
//		process.Dispatch()
//
//		l, err := process.NewLauncher()
//		...
//		role, err := l.Launch("greeter")
//		h, _ := role.Handle()
//		report, err := l.Reaper().WaitFor(h)
//	}
//
// The parent receives Parent(handle) from Launch; the child only ever sees
// the Child role. Each handle is reaped at most once, enforced by the Table
// a Launcher shares with its Reapers.
//
// Pipes are created close-on-exec and inherited only by launches that name
// them with WithPipe. Every process holding a pipe holds both ends, and
// must close the ends it does not use; a reader sees end-of-stream only
// once every copy of the write end is closed.
package process
