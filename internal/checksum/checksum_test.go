package checksum

import (
	"bytes"
	"compress/zlib"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateMatchesAdditiveSum(t *testing.T) {
	data := []byte("The quick brown fox jumps over the lazy dog")
	var want uint32
	for _, b := range data {
		want += uint32(b)
	}
	assert.Equal(t, uint16(want&0xFFFF), Calculate(data))
}

func TestVerify(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5}
	assert.True(t, Verify(data, Calculate(data)))
	assert.False(t, Verify(data, Calculate(data)+1))
}

func TestLooksCompressed(t *testing.T) {
	assert.True(t, LooksCompressed([]byte{0x78, 0x9C, 0x01}))
	assert.True(t, LooksCompressed([]byte{0x78, 0xDA}))
	assert.True(t, LooksCompressed([]byte{0x78, 0x01, 0x02}))
	assert.False(t, LooksCompressed([]byte{0x00, 0x01}))
	assert.False(t, LooksCompressed([]byte{0x78}))
}

func TestInflateRoundTrip(t *testing.T) {
	original := []byte("repeated weather bulletin text repeated weather bulletin text")
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, err := w.Write(original)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	got, err := Inflate(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, original, got)
}

func TestInflateSkipHeader(t *testing.T) {
	original := []byte("bulletin payload")
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, err := w.Write(original)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	header := []byte{0xAA, 0xBB}
	prefixed := append(append([]byte{}, header...), buf.Bytes()...)

	got, err := InflateSkipHeader(prefixed, len(header))
	require.NoError(t, err)
	assert.Equal(t, original, got)

	_, err = InflateSkipHeader(header, len(header)+10)
	assert.ErrorIs(t, err, ErrHeaderTooShort)
}

func TestInflateInvalidData(t *testing.T) {
	_, err := Inflate([]byte{0x00, 0x01, 0x02})
	assert.Error(t, err)
}
