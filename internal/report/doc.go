// Package report renders end-of-session reports.
//
// A report summarizes the call history a session kept while reporting was
// enabled: totals and success rate, per-tool timing, every failure with its
// snapshot directory, and the calls in order. Reports are written as
// report.json or report.yaml in the session's output directory.
package report
