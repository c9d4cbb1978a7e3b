package instrument

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type panickyError struct{}

func (panickyError) Error() string { panic("no message") }

// Redaction is decided per key: a mapping under a non-sensitive key is
// kept and only its sensitive entries are replaced.
func TestSanitizeRedactsSensitiveKeysOnly(t *testing.T) {
	out := Sanitize(map[string]interface{}{
		"password": "x",
		"nested":   map[string]interface{}{"token": "y", "page": 2},
		"auth":     map[string]interface{}{"user": "a", "pass": "b"},
		"selector": "#login",
	})

	m, ok := out.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, Redacted, m["password"])
	assert.Equal(t, "#login", m["selector"])
	assert.Equal(t, Redacted, m["auth"], "sensitive key replaces the whole value")

	nested, ok := m["nested"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, Redacted, nested["token"])
	assert.Equal(t, 2, nested["page"])
}

type cyclicNode struct {
	Name string
	Next *cyclicNode
}

func TestSanitizeCycles(t *testing.T) {
	var x interface{}
	x = &x
	assert.Equal(t, "[Circular]", SanitizeResult(x))

	n := &cyclicNode{Name: "a"}
	n.Next = n
	out, ok := Sanitize(n).(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "a", out["Name"])
	assert.Equal(t, "[Circular]", out["Next"])

	m := map[string]interface{}{"k": "v"}
	m["self"] = m
	assert.NotPanics(t, func() { Sanitize(m) })
}

func TestSanitizeSharedPointerIsNotCircular(t *testing.T) {
	shared := &cyclicNode{Name: "s"}
	out := Sanitize([]*cyclicNode{shared, shared}).([]interface{})
	require.Len(t, out, 2)
	for _, item := range out {
		assert.Equal(t, "s", item.(map[string]interface{})["Name"])
	}
}

func TestIsSensitiveKey(t *testing.T) {
	for _, key := range []string{"password", "PASSWD", "accessToken", "client_secret", "api-key", "apiKey", "Authorization", "session_id", "sessionId", "jwt", "openid", "Cookie", "credentials", "private_key", "accessKey"} {
		assert.True(t, IsSensitiveKey(key), key)
	}
	for _, key := range []string{"selector", "url", "text", "timeout"} {
		assert.False(t, IsSensitiveKey(key), key)
	}
}

func TestSanitizeTruncatesLongStrings(t *testing.T) {
	out := Sanitize(map[string]interface{}{"text": strings.Repeat("a", 2000)})

	s := out.(map[string]interface{})["text"].(string)
	assert.True(t, strings.HasPrefix(s, strings.Repeat("a", MaxStringBytes)))
	assert.True(t, strings.HasSuffix(s, "(2000 bytes total)"))
	assert.Equal(t, MaxStringBytes+len("... (2000 bytes total)"), len(s))
}

func TestSanitizeTruncatesOnRuneBoundary(t *testing.T) {
	s := Sanitize(strings.Repeat("a", MaxStringBytes-1) + strings.Repeat("é", 600)).(string)
	assert.True(t, strings.HasPrefix(s, strings.Repeat("a", MaxStringBytes-1)+"..."))
}

func TestSanitizeBytes(t *testing.T) {
	assert.Equal(t, "[Buffer: 3 bytes]", Sanitize([]byte{1, 2, 3}))
	assert.Equal(t, "[Buffer: 4 bytes]", Sanitize([4]byte{}))
}

func TestSanitizeDepthLimit(t *testing.T) {
	var v interface{} = "leaf"
	for i := 0; i < MaxDepth+3; i++ {
		v = map[string]interface{}{"a": v}
	}

	cur := Sanitize(v)
	for i := 0; i < MaxDepth; i++ {
		m, ok := cur.(map[string]interface{})
		require.True(t, ok, "level %d", i)
		cur = m["a"]
	}
	assert.Equal(t, DepthExceeded, cur.(map[string]interface{})["a"])
}

func TestSanitizeStructsAndSpecialTypes(t *testing.T) {
	type target struct {
		Selector string `json:"selector"`
		Secret   string `json:"secret"`
		Skipped  string `json:"-"`
		Plain    int
		hidden   string
	}
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	out := Sanitize(map[string]interface{}{
		"target": &target{Selector: "#a", Secret: "s", Skipped: "x", Plain: 1, hidden: "h"},
		"when":   at,
		"err":    errors.New("failed"),
		"ch":     make(chan int),
		"nil":    nil,
	}).(map[string]interface{})

	assert.Equal(t, map[string]interface{}{
		"selector": "#a",
		"secret":   Redacted,
		"Plain":    1,
	}, out["target"])
	assert.Equal(t, "2024-01-02T03:04:05Z", out["when"])
	assert.Equal(t, "failed", out["err"])
	assert.Equal(t, "[chan int]", out["ch"])
	assert.Nil(t, out["nil"])
}

func TestSanitizeNeverPanics(t *testing.T) {
	assert.NotPanics(t, func() {
		assert.Equal(t, SanitizationFailed, Sanitize(map[string]interface{}{"e": panickyError{}}))
		assert.Equal(t, SanitizationFailed, SanitizeResult(panickyError{}))
	})
}

func TestSanitizeArgsNil(t *testing.T) {
	assert.Equal(t, map[string]interface{}{}, SanitizeArgs(nil))
}

func TestSanitizeResultTruncatesLongSequences(t *testing.T) {
	items := make([]int, 25)
	for i := range items {
		items[i] = i
	}

	out := SanitizeResult(items).([]interface{})
	require.Len(t, out, MaxResultItems+1)
	assert.Equal(t, 0, out[0])
	assert.Equal(t, 9, out[9])
	assert.Equal(t, "... +15 more", out[10])

	short := SanitizeResult([]string{"a", "b"}).([]interface{})
	assert.Equal(t, []interface{}{"a", "b"}, short)
}
