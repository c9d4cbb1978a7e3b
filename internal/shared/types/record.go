package types

import "time"

// ToolCallRecord summarizes one instrumented tool call.
type ToolCallRecord struct {
	Timestamp time.Time     `json:"timestamp" yaml:"timestamp"`
	Tool      string        `json:"tool" yaml:"tool"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
	Success   bool          `json:"success" yaml:"success"`
	Result    interface{}   `json:"result,omitempty" yaml:"result,omitempty"`
	Error     *CallError    `json:"error,omitempty" yaml:"error,omitempty"`
}

// CallError is the failure half of a ToolCallRecord.
type CallError struct {
	Message      string `json:"message" yaml:"message"`
	SnapshotPath string `json:"snapshot_path,omitempty" yaml:"snapshot_path,omitempty"`
}
