package xorbuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	original := []byte("ByteBlaster123")
	encoded := Encode(original)
	assert.NotEqual(t, original, encoded)
	assert.Equal(t, original, Decode(encoded))
	// XOR with a constant mask is symmetric.
	assert.Equal(t, original, Encode(encoded))
}

func TestEncodeDecodeString(t *testing.T) {
	text := "ByteBlast Client|NM-user@example.com|V2"
	encoded := EncodeString(text)
	assert.Equal(t, text, DecodeString(encoded))
}

func TestBufferBasicUsage(t *testing.T) {
	original := []byte("TestBuffer")
	var buf Buffer
	buf.Append(Encode(original))

	assert.Equal(t, len(original), buf.Available())

	peeked := buf.Peek(4, 0)
	assert.Equal(t, original[:4], peeked)
	assert.Equal(t, len(original), buf.Available())

	read := buf.Read(4)
	assert.Equal(t, original[:4], read)
	assert.Equal(t, len(original)-4, buf.Available())

	buf.Append(Encode([]byte("123")))
	assert.Equal(t, len(original)-4+3, buf.Available())

	rest := buf.Read(100)
	assert.Equal(t, append([]byte{}, append(original[4:], "123"...)...), rest)
	assert.Equal(t, 0, buf.Available())

	buf.Append(Encode([]byte("skipme")))
	skipped := buf.Skip(3)
	assert.Equal(t, 3, skipped)
	assert.Equal(t, len("skipme")-3, buf.Available())

	buf.Clear()
	assert.Equal(t, 0, buf.Available())

	buf.Append(Encode([]byte("abcdef")))
	_ = buf.Read(2)
	buf.Compact()
	assert.Equal(t, 4, buf.Available())
	assert.Equal(t, []byte("cdef"), buf.Read(4))
	assert.Equal(t, 0, buf.Available())
}

func TestBufferPeekOffsetAndBounds(t *testing.T) {
	var buf Buffer
	buf.Append(Encode([]byte("abcdefgh")))

	assert.Equal(t, []byte("cde"), buf.Peek(3, 2))
	assert.Equal(t, []byte("gh"), buf.Peek(100, 6))
	assert.Nil(t, buf.Peek(2, 100))
}

func TestBufferSyncMarkerStraddlesChunks(t *testing.T) {
	var buf Buffer
	buf.Append(Encode([]byte{0x00, 0x00, 0x00}))
	assert.Equal(t, 3, buf.Available())
	buf.Append(Encode([]byte{0x00, 0x00, 0x00}))
	assert.Equal(t, 6, buf.Available())
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0}, buf.Peek(6, 0))
}
