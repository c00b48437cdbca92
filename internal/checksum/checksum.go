// Package checksum implements the QBT additive 16-bit checksum and the
// zlib-inflate helper used for V2 compressed data blocks.
package checksum

import (
	"bytes"
	"compress/zlib"
	"errors"
	"io"
)

// ErrHeaderTooShort is returned by InflateSkipHeader when the input is
// shorter than the header it is asked to skip.
var ErrHeaderTooShort = errors.New("checksum: data shorter than skip-header length")

// Calculate returns the QBT 16-bit additive checksum: the sum of all bytes,
// masked to 16 bits.
func Calculate(data []byte) uint16 {
	var sum uint32
	for _, b := range data {
		sum += uint32(b)
	}
	return uint16(sum & 0xFFFF)
}

// Verify reports whether data's checksum matches expected (already masked
// to 16 bits by the caller where appropriate).
func Verify(data []byte, expected uint16) bool {
	return Calculate(data) == expected
}

// zlib magic two-byte headers QBT servers are observed to emit.
var compressedPrefixes = [][2]byte{
	{0x78, 0x9C},
	{0x78, 0xDA},
	{0x78, 0x01},
}

// LooksCompressed reports whether content begins with a recognized zlib
// header, per spec §4.1.1.
func LooksCompressed(content []byte) bool {
	if len(content) < 2 {
		return false
	}
	for _, prefix := range compressedPrefixes {
		if content[0] == prefix[0] && content[1] == prefix[1] {
			return true
		}
	}
	return false
}

// Inflate decompresses a zlib stream.
func Inflate(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// InflateSkipHeader decompresses a zlib stream that is prefixed by an extra
// skipHeaderBytes-byte header the caller already knows is not part of the
// zlib stream itself.
func InflateSkipHeader(data []byte, skipHeaderBytes int) ([]byte, error) {
	if len(data) < skipHeaderBytes {
		return nil, ErrHeaderTooShort
	}
	return Inflate(data[skipHeaderBytes:])
}
