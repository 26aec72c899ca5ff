package websocket

// compactThreshold is the consumed prefix size after which Append
// moves the unread bytes back to the start of the backing array.
const compactThreshold = 4096

// Buffer is an append only byte buffer with a read cursor.
// It is the substrate the handshake parser and frame codec consume.
//
// Slices returned by Read and Peek alias the buffer and are only
// valid until the next call to Append.
//
// A Buffer is not safe for concurrent use.
type Buffer struct {
	data   []byte
	cursor int
}

// Append extends the buffer with p.
func (b *Buffer) Append(p []byte) {
	if b.cursor >= compactThreshold && b.cursor*2 >= len(b.data) {
		n := copy(b.data, b.data[b.cursor:])
		b.data = b.data[:n]
		b.cursor = 0
	}
	b.data = append(b.data, p...)
}

// Available returns the number of unread bytes.
func (b *Buffer) Available() int {
	return len(b.data) - b.cursor
}

// Read returns up to n unread bytes and advances the cursor past them.
// It never fails. Callers must handle short reads by waiting for more
// bytes to be appended.
func (b *Buffer) Read(n int) []byte {
	p := b.Peek(n)
	b.cursor += len(p)
	return p
}

// Peek is like Read but does not advance the cursor.
func (b *Buffer) Peek(n int) []byte {
	if n < 0 {
		n = 0
	}
	if n > b.Available() {
		n = b.Available()
	}
	return b.data[b.cursor : b.cursor+n : b.cursor+n]
}

// Discard advances the cursor by up to n bytes and returns how many
// were skipped.
func (b *Buffer) Discard(n int) int {
	return len(b.Read(n))
}

// Bytes returns all unread bytes without consuming them.
func (b *Buffer) Bytes() []byte {
	return b.Peek(b.Available())
}

// Reset empties the buffer, keeping its allocation.
func (b *Buffer) Reset() {
	b.data = b.data[:0]
	b.cursor = 0
}
