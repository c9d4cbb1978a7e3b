package instrument

import (
	"fmt"
	"regexp"
	"unicode/utf8"
)

const (
	// MaxDepth is the deepest nesting level kept by sanitization.
	MaxDepth = 5
	// MaxStringBytes is the longest string kept verbatim.
	MaxStringBytes = 1024
	// MaxResultItems is the longest result sequence kept in full.
	MaxResultItems = 10

	Redacted           = "[REDACTED]"
	SanitizationFailed = "[Sanitization failed]"
	DepthExceeded      = "[Max depth exceeded]"
)

var sensitiveKey = regexp.MustCompile(`(?i)(passw(or)?d|token|secret|api[-_]?key|auth|session[-_]?id|jwt|openid|cookie|credential|private[-_]?key|access[-_]?key)`)

// IsSensitiveKey reports whether values under key must never be logged.
func IsSensitiveKey(key string) bool {
	return sensitiveKey.MatchString(key)
}

// Sanitize returns a log-safe copy of v. It never panics.
func Sanitize(v interface{}) (out interface{}) {
	defer func() {
		if r := recover(); r != nil {
			out = SanitizationFailed
		}
	}()
	return render(NewNode(v))
}

// SanitizeArgs sanitizes tool call arguments.
func SanitizeArgs(args map[string]interface{}) interface{} {
	if args == nil {
		return map[string]interface{}{}
	}
	return Sanitize(args)
}

// SanitizeResult sanitizes a tool result. Top-level sequences longer than
// MaxResultItems keep their first items followed by a "+N more" marker.
func SanitizeResult(v interface{}) (out interface{}) {
	defer func() {
		if r := recover(); r != nil {
			out = SanitizationFailed
		}
	}()

	n := NewNode(v)
	if n.Kind == KindSequence && len(n.Items) > MaxResultItems {
		items := make([]interface{}, 0, MaxResultItems+1)
		for _, item := range n.Items[:MaxResultItems] {
			items = append(items, render(item))
		}
		items = append(items, fmt.Sprintf("... +%d more", len(n.Items)-MaxResultItems))
		return items
	}
	return render(n)
}

func render(n Node) interface{} {
	switch n.Kind {
	case KindNull:
		return nil
	case KindScalar:
		return n.Scalar
	case KindString:
		return truncate(n.Text)
	case KindBytes:
		return fmt.Sprintf("[Buffer: %d bytes]", n.Size)
	case KindSequence:
		items := make([]interface{}, len(n.Items))
		for i, item := range n.Items {
			items[i] = render(item)
		}
		return items
	case KindMapping:
		m := make(map[string]interface{}, len(n.Fields))
		for _, f := range n.Fields {
			if IsSensitiveKey(f.Key) {
				m[f.Key] = Redacted
				continue
			}
			m[f.Key] = render(f.Value)
		}
		return m
	case KindElided:
		return DepthExceeded
	default:
		return "[" + n.Text + "]"
	}
}

// truncate cuts s to MaxStringBytes on a rune boundary.
func truncate(s string) string {
	if len(s) <= MaxStringBytes {
		return s
	}
	cut := MaxStringBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return fmt.Sprintf("%s... (%d bytes total)", s[:cut], len(s))
}
