package process

import "sync"

// Buffer is a thread-safe ring buffer holding the newest process output.
type Buffer struct {
	mu   sync.Mutex
	data []byte
	size int
	head int
	full bool
}

// NewBuffer creates a ring buffer of size bytes
func NewBuffer(size int) *Buffer {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Buffer{
		data: make([]byte, size),
		size: size,
	}
}

// Write appends p, overwriting the oldest bytes once full.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(p)
	if n >= b.size {
		copy(b.data, p[n-b.size:])
		b.head = 0
		b.full = true
		return n, nil
	}

	for _, c := range p {
		b.data[b.head] = c
		b.head = (b.head + 1) % b.size
		if b.head == 0 {
			b.full = true
		}
	}
	return n, nil
}

// Bytes returns a copy of the buffered output, oldest first.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.full {
		out := make([]byte, b.head)
		copy(out, b.data[:b.head])
		return out
	}

	out := make([]byte, b.size)
	n := copy(out, b.data[b.head:])
	copy(out[n:], b.data[:b.head])
	return out
}
