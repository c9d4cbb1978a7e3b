package utils

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/bytedance/sonic"
)

// Request size limits (in bytes)
const (
	MaxArgsSize  = 1 * 1024 * 1024 // 1MB - tool arguments
	MaxArgsDepth = 32
	MaxIDLength  = 128
)

var (
	// SessionIDPattern allows alphanumeric, dots, hyphens, underscores
	SessionIDPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
	// ToolNamePattern allows the namespace.tool format
	ToolNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+(\.[a-zA-Z0-9_-]+)*$`)
)

// ValidateString validates a string field with length and content checks
func ValidateString(value, fieldName string, minLen, maxLen int, required bool) error {
	if required && value == "" {
		return fmt.Errorf("%s is required", fieldName)
	}

	if value == "" && !required {
		return nil
	}

	length := utf8.RuneCountInString(value)
	if length < minLen {
		return fmt.Errorf("%s must be at least %d characters", fieldName, minLen)
	}
	if length > maxLen {
		return fmt.Errorf("%s must not exceed %d characters", fieldName, maxLen)
	}

	if strings.Contains(value, "\x00") {
		return fmt.Errorf("%s contains invalid characters", fieldName)
	}

	return nil
}

// ValidateSessionID validates a caller-supplied session id
func ValidateSessionID(id string) error {
	if err := ValidateString(id, "session_id", 1, MaxIDLength, true); err != nil {
		return err
	}
	if id == "." || id == ".." || !SessionIDPattern.MatchString(id) {
		return fmt.Errorf("session_id contains invalid characters (only alphanumeric, dots, hyphens, and underscores allowed)")
	}
	return nil
}

// ValidateToolName validates a tool name in namespace.tool form
func ValidateToolName(name string) error {
	if err := ValidateString(name, "tool", 1, MaxIDLength, true); err != nil {
		return err
	}
	if !ToolNamePattern.MatchString(name) {
		return fmt.Errorf("tool contains invalid characters (only alphanumeric, dots, hyphens, and underscores allowed)")
	}
	return nil
}

// ValidateArgs checks encoded size and nesting depth of tool arguments.
func ValidateArgs(args map[string]interface{}) error {
	if len(args) == 0 {
		return nil
	}

	if err := ValidateJSONDepth(args, MaxArgsDepth); err != nil {
		return fmt.Errorf("args validation failed: %w", err)
	}

	data, err := sonic.Marshal(args)
	if err != nil {
		return fmt.Errorf("args are not serializable: %w", err)
	}
	if len(data) > MaxArgsSize {
		return fmt.Errorf("args size %d bytes exceeds maximum %d bytes", len(data), MaxArgsSize)
	}
	return nil
}

// ValidateJSONDepth checks if JSON nesting depth is within limits
func ValidateJSONDepth(data interface{}, maxDepth int) error {
	return checkDepth(data, 0, maxDepth)
}

func checkDepth(data interface{}, currentDepth int, maxDepth int) error {
	if currentDepth > maxDepth {
		return fmt.Errorf("JSON nesting depth %d exceeds maximum %d", currentDepth, maxDepth)
	}

	switch v := data.(type) {
	case map[string]interface{}:
		for _, value := range v {
			if err := checkDepth(value, currentDepth+1, maxDepth); err != nil {
				return err
			}
		}
	case []interface{}:
		for _, value := range v {
			if err := checkDepth(value, currentDepth+1, maxDepth); err != nil {
				return err
			}
		}
	}

	return nil
}
