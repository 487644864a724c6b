package capture

import "sync"

// Buffer accumulates audio fragments in delivery order.
type Buffer struct {
	mu     sync.Mutex
	chunks [][]byte
	size   int
}

// NewBuffer creates an empty fragment buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Append stores a copy of the fragment. Empty fragments are ignored.
func (b *Buffer) Append(fragment []byte) {
	if len(fragment) == 0 {
		return
	}
	c := make([]byte, len(fragment))
	copy(c, fragment)

	b.mu.Lock()
	b.chunks = append(b.chunks, c)
	b.size += len(c)
	b.mu.Unlock()
}

// Bytes returns the concatenation of every fragment appended since the last Reset.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]byte, 0, b.size)
	for _, c := range b.chunks {
		out = append(out, c...)
	}
	return out
}

// Len returns the total number of buffered bytes.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Count returns the number of buffered fragments.
func (b *Buffer) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.chunks)
}

// Reset drops all buffered fragments.
func (b *Buffer) Reset() {
	b.mu.Lock()
	b.chunks = nil
	b.size = 0
	b.mu.Unlock()
}
