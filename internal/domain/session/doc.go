// Package session manages the lifecycle of automation sessions.
//
// A Registry maps caller-supplied ids to Sessions. A session is created on
// first GetOrCreate, refreshed by every tool call, and torn down when it is
// deleted, when a lookup finds it expired, or by the periodic sweep.
//
// Teardown always runs every step in order:
//
//  1. render the session report (failures are only logged)
//  2. dispose the session logger
//  3. disconnect the automation connection
//  4. kill the child process and wait for its exit
//  5. clear the element cache
//
// Failures of steps 2-5 are returned together as a *TeardownError.
//
// Example Usage:
//
//	registry := session.NewRegistry(log, session.Options{Timeout: 30 * time.Minute})
//	defer registry.Dispose(ctx)
//
//	sess, err := registry.GetOrCreate("agent-1", nil)
//	err = registry.Delete(ctx, "agent-1")
package session
