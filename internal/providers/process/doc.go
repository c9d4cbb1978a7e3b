// Package process launches the automation host as a child process.
//
// The child runs under a pseudo-terminal so hosts that expect an
// interactive terminal behave normally. The newest output is kept in a
// ring buffer for diagnostics.
//
// A Process satisfies the session's Process and ExitNotifier ports: Kill
// sends SIGKILL without waiting, and Exited is closed once the child has
// been reaped, which lets session teardown bound the wait.
//
// Example Usage:
//
//	proc, err := process.Start(process.Options{
//		Command: "node",
//		Args:    []string{"host.js"},
//	})
//	sess.SetProcess(proc)
package process
