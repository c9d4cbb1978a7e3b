//go:build !(linux || darwin || freebsd)

package telemetry

import "errors"

func freeSpace(string) (uint64, error) {
	return 0, errors.New("disk space probe not supported on this platform")
}
