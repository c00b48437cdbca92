// Package xorbuf implements the byte-level transform and cursor-backed
// buffer used to de-obfuscate the ByteBlaster wire stream.
//
// Every byte transmitted by a QBT server is XORed with 0xFF. The transform
// is its own inverse, so encode and decode share one implementation.
package xorbuf

const xorMask = 0xFF

// Encode returns b with every byte XORed against 0xFF.
func Encode(b []byte) []byte {
	return Decode(b)
}

// Decode returns b with every byte XORed against 0xFF. XOR with a constant
// mask is self-inverse, so Decode and Encode are the same operation; both
// names exist so call sites read naturally.
func Decode(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[i] = v ^ xorMask
	}
	return out
}

// EncodeString XOR-encodes the ASCII bytes of s.
func EncodeString(s string) []byte {
	return Encode([]byte(s))
}

// DecodeString XOR-decodes b into a string.
func DecodeString(b []byte) string {
	return string(Decode(b))
}

// Buffer is a cursor-backed byte buffer that accumulates XOR-decoded bytes
// as they arrive from the wire and lets the decoder peek, read, and skip.
// Peek returns a view into the backing slice without consuming; Read
// returns a copy and advances the read cursor; Skip advances it without
// copying. Only [Buffer.Compact] reclaims consumed space.
type Buffer struct {
	data []byte
	pos  int
}

// Append XOR-decodes data and appends it to the buffer.
func (b *Buffer) Append(data []byte) {
	b.data = append(b.data, Decode(data)...)
}

// Available returns the number of unread bytes.
func (b *Buffer) Available() int {
	return len(b.data) - b.pos
}

// Peek returns up to n bytes starting offset bytes past the read cursor,
// without consuming them. It never returns more than is available and
// never panics on out-of-range offsets.
func (b *Buffer) Peek(n, offset int) []byte {
	start := b.pos + offset
	if start >= len(b.data) {
		return nil
	}
	end := start + n
	if end > len(b.data) {
		end = len(b.data)
	}
	return b.data[start:end]
}

// Read consumes and returns up to n bytes from the front of the buffer.
func (b *Buffer) Read(n int) []byte {
	avail := b.Available()
	if n > avail {
		n = avail
	}
	out := make([]byte, n)
	copy(out, b.data[b.pos:b.pos+n])
	b.pos += n
	return out
}

// Skip advances the read cursor by up to n bytes and returns how many were
// actually skipped.
func (b *Buffer) Skip(n int) int {
	avail := b.Available()
	if n > avail {
		n = avail
	}
	b.pos += n
	return n
}

// Compact drops already-consumed bytes from the backing slice. Safe to call
// at any time; it never discards unread data.
func (b *Buffer) Compact() {
	if b.pos == 0 {
		return
	}
	remaining := b.data[b.pos:]
	compacted := make([]byte, len(remaining))
	copy(compacted, remaining)
	b.data = compacted
	b.pos = 0
}

// Clear discards all buffered data.
func (b *Buffer) Clear() {
	b.data = nil
	b.pos = 0
}
