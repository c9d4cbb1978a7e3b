/*
Package resilience provides a circuit breaker for graceful degradation.

# Overview

The breaker stops calling into a failing subsystem once a failure threshold
is reached. It latches: once open it stays open. The telemetry file writer
uses it so that three consecutive write failures, or a forced Trip on disk
exhaustion, disable the writer for the rest of the session.

# Features

- Consecutive failure threshold
- Forced trips with a recorded reason
- Open callback for monitoring
- Thread-safe operations

# Usage

	breaker := resilience.New("log-writer", resilience.Settings{Threshold: 3})

	if breaker.Open() {
		return
	}
	if err := writeBatch(); err != nil {
		if breaker.Failure() {
			disable()
		}
		return
	}
	breaker.Success()

# States

	Closed --[Threshold failures | Trip]-> Open
*/
package resilience
