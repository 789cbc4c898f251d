package store

import (
	"errors"
	"io"

	"github.com/ssargent/kmall/pkg/codec"
)

// grow returns buf resized to n bytes. Capacity grows in whole blocks so a
// run of slightly larger records does not reallocate every time.
func grow(buf []byte, n, block int) []byte {
	if n <= cap(buf) {
		return buf[:n]
	}
	if block <= 0 {
		block = codec.ScratchBlockSize
	}
	size := (n/block + 1) * block
	grown := make([]byte, n, size)
	copy(grown, buf)
	return grown
}

// streamBuffer is a sliding window over an io.Reader. Bytes between pos
// and len(data) have been read but not consumed.
type streamBuffer struct {
	r     io.Reader
	data  []byte
	pos   int
	block int
	eof   bool
}

// fill makes at least n unconsumed bytes available. It returns io.EOF when
// the reader ends first; the bytes that did arrive stay available.
func (b *streamBuffer) fill(n int) error {
	for len(b.data)-b.pos < n {
		if b.eof {
			return io.EOF
		}
		if b.pos > 0 {
			m := copy(b.data, b.data[b.pos:])
			b.data = b.data[:m]
			b.pos = 0
		}
		have := len(b.data)
		want := max(n, b.block)
		b.data = grow(b.data, want, b.block)
		got, err := io.ReadAtLeast(b.r, b.data[have:want], 1)
		b.data = b.data[:have+got]
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				b.eof = true
				continue
			}
			return err
		}
	}
	return nil
}

// peek returns the next n unconsumed bytes. fill(n) must have succeeded.
func (b *streamBuffer) peek(n int) []byte { return b.data[b.pos : b.pos+n] }

// buffered returns the number of unconsumed bytes.
func (b *streamBuffer) buffered() int { return len(b.data) - b.pos }

// discard consumes n bytes.
func (b *streamBuffer) discard(n int) { b.pos += n }
