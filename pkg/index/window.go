package index

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ssargent/kmall/pkg/codec"
)

// window is a read buffer over a chunk of an io.ReaderAt.
type window struct {
	ctx   context.Context
	src   io.ReaderAt
	size  int64
	chunk int
	buf   []byte
	base  int64 // file offset of buf[0]
}

func newWindow(ctx context.Context, src io.ReaderAt, size int64, chunk int) *window {
	if chunk < codec.HeaderSize*2 {
		chunk = DefaultChunkSize
	}
	return &window{ctx: ctx, src: src, size: size, chunk: chunk}
}

// at returns the n bytes at off. The slice is only valid until the next
// call.
func (w *window) at(off int64, n int) ([]byte, error) {
	if off < 0 || off+int64(n) > w.size {
		return nil, io.ErrUnexpectedEOF
	}
	if off >= w.base && off+int64(n) <= w.base+int64(len(w.buf)) {
		start := int(off - w.base)
		return w.buf[start : start+n], nil
	}
	if err := w.load(off, n); err != nil {
		return nil, err
	}
	return w.buf[:n], nil
}

func (w *window) load(off int64, need int) error {
	if err := w.ctx.Err(); err != nil {
		return err
	}
	want := w.chunk
	if need > want {
		want = need
	}
	if rest := w.size - off; int64(want) > rest {
		want = int(rest)
	}
	if cap(w.buf) < want {
		w.buf = make([]byte, want)
	}
	w.buf = w.buf[:want]
	n, err := w.src.ReadAt(w.buf, off)
	if n < want {
		if err == nil || errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return fmt.Errorf("read %d bytes at offset %d: %w", want, off, err)
	}
	w.base = off
	return nil
}

// nextCandidate returns the smallest offset c >= from at which a header
// could start, i.e. where the type tag's sync character sits at c+4. It
// returns the file size when there is none.
func (w *window) nextCandidate(from int64) (int64, error) {
	for pos := from + 4; pos < w.size; {
		n := w.chunk
		if rest := w.size - pos; int64(n) > rest {
			n = int(rest)
		}
		b, err := w.at(pos, n)
		if err != nil {
			return 0, err
		}
		if i := bytes.IndexByte(b, codec.SyncChar); i >= 0 {
			return pos + int64(i) - 4, nil
		}
		pos += int64(n)
	}
	return w.size, nil
}
