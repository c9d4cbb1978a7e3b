package process

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBufferKeepsNewestBytes(t *testing.T) {
	tests := []struct {
		name   string
		size   int
		writes []string
		want   string
	}{
		{name: "empty", size: 4, want: ""},
		{name: "partial", size: 8, writes: []string{"abc"}, want: "abc"},
		{name: "exactly full", size: 4, writes: []string{"ab", "cd"}, want: "abcd"},
		{name: "wraps", size: 4, writes: []string{"abc", "def"}, want: "cdef"},
		{name: "oversized write", size: 3, writes: []string{"abcdefg"}, want: "efg"},
		{name: "oversized after wrap", size: 3, writes: []string{"ab", "wxyz"}, want: "xyz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuffer(tt.size)
			for _, w := range tt.writes {
				n, err := b.Write([]byte(w))
				assert.NoError(t, err)
				assert.Equal(t, len(w), n)
			}
			assert.Equal(t, tt.want, string(b.Bytes()))
		})
	}
}

func TestNewBufferDefaultSize(t *testing.T) {
	b := NewBuffer(0)
	assert.Equal(t, DefaultBufferSize, b.size)
}
