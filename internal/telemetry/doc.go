/*
Package telemetry is the per-session logging sink.

Every session owns one root Logger. Entries below the configured threshold
are discarded. The rest are mirrored to the process console logger (zap)
and, when file logging is enabled, buffered by a FileWriter that appends
newline-delimited JSON to <output>/logs/session-<id>.log.

# File writer

  - Entries are flushed when the buffer fills, on a fixed interval, and on
    Dispose.
  - At most one flush runs at a time. A flush requested while another is
    running returns immediately.
  - Free space is probed before each write. Below 100MB a warning is
    logged, below 10MB the writer disables itself.
  - The active file is rotated to <path>.<timestamp> once it exceeds the
    size limit, and optionally gzip-compressed.
  - A failed write re-buffers the newest entries that fit. Three
    consecutive failures, or ENOSPC, disable the writer permanently.

Writer failures never reach the caller of a log method.
*/
package telemetry
