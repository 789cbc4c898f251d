package store

import (
	"bytes"
	"context"
	"io"

	"github.com/ssargent/kmall/pkg/codec"
	"github.com/ssargent/kmall/pkg/index"
)

// StreamReader reads logical records from a live datagram stream in
// arrival order. There is no index: the sender must already deliver the
// fragments of each ping together. Bytes that do not form a valid datagram
// are skipped until the next header.
//
// A StreamReader is not safe for concurrent use. Records it returns are
// valid until the next call to Next.
type StreamReader struct {
	session
	in       streamBuffer
	offset   int64 // stream offset of the next unconsumed byte
	skipFrom int64 // start of the current skipped run, -1 when none
	closed   bool
}

// NewStreamReader reads datagrams from r. config.FilePath, ChunkSize,
// PingWindow and Cache are ignored.
func NewStreamReader(r io.Reader, config ReaderConfig) *StreamReader {
	block := config.BlockSize
	if block <= 0 {
		block = codec.ScratchBlockSize
	}
	s := &StreamReader{
		session:  newSession(config),
		in:       streamBuffer{r: r, block: block},
		skipFrom: -1,
	}
	if config.Order != nil {
		s.codec = codec.NewRecordCodec(config.Order)
	}
	return s
}

// Next returns the next logical record. It returns io.EOF when the stream
// ends; a ping still accumulating at that point is discarded.
func (r *StreamReader) Next(ctx context.Context) (*LogicalRecord, error) {
	if r.closed {
		return nil, ErrClosed
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := r.in.fill(codec.HeaderSize); err != nil {
			if err == io.EOF {
				return nil, r.finish()
			}
			return nil, err
		}
		head := r.in.peek(codec.HeaderSize)
		if r.codec == nil {
			order, _ := codec.SniffByteOrder(head)
			if order == nil {
				r.slide()
				continue
			}
			r.codec = codec.NewRecordCodec(order)
		}

		h, kind := r.codec.ParseHeader(head)
		if kind == codec.KindUnknown {
			r.slide()
			continue
		}
		n := int(h.NumBytes)
		if n < codec.MinRecordSize || n > MaxStreamRecordSize {
			r.corrupt(h, kind)
			r.skip(index.HeaderSkip)
			continue
		}
		if err := r.in.fill(n); err != nil {
			if err == io.EOF {
				r.corrupt(h, kind)
				r.skip(r.in.buffered())
				return nil, r.finish()
			}
			return nil, err
		}
		data := r.in.peek(n)
		if !codec.TrailerMatches(data, r.codec.Order()) {
			r.corrupt(h, kind)
			r.skip(index.HeaderSkip)
			continue
		}

		r.resynced()
		at := r.offset
		lr, err := r.handle(data, kind, at)
		r.in.discard(n)
		r.offset += int64(n)
		if err != nil {
			if IsRecoverable(err) {
				r.drop(err)
				continue
			}
			return nil, err
		}
		if lr != nil {
			return lr, nil
		}
	}
}

// slide skips to the next byte that could start a header.
func (r *StreamReader) slide() {
	b := r.in.peek(r.in.buffered())
	if i := bytes.IndexByte(b[5:], codec.SyncChar); i >= 0 {
		r.skip(i + 1)
		return
	}
	r.skip(len(b) - 4)
}

func (r *StreamReader) skip(n int) {
	if r.skipFrom < 0 {
		r.skipFrom = r.offset
	}
	r.in.discard(n)
	r.offset += int64(n)
}

func (r *StreamReader) resynced() {
	if r.skipFrom < 0 {
		return
	}
	r.observe(index.Event{Type: index.EventResync, Offset: r.skipFrom, Length: r.offset - r.skipFrom})
	r.skipFrom = -1
}

func (r *StreamReader) corrupt(h codec.Header, kind codec.Kind) {
	if r.skipFrom < 0 {
		r.skipFrom = r.offset
	}
	r.observe(index.Event{Type: index.EventCorruptHeader, Offset: r.offset, Length: int64(h.NumBytes), Kind: kind})
}

// finish accounts for trailing bytes at the end of the stream.
func (r *StreamReader) finish() error {
	if n := r.in.buffered(); n > 0 {
		r.skip(n)
	}
	r.resynced()
	return io.EOF
}

// Stats returns what the reader has done so far.
func (r *StreamReader) Stats() ReaderStats { return r.snapshot() }

// Pending reports whether a ping is accumulating.
func (r *StreamReader) Pending() bool { return r.reasm.Pending() }

// Offset returns the number of stream bytes consumed.
func (r *StreamReader) Offset() int64 { return r.offset }

// Iterator returns a streaming iterator for logical records
func (r *StreamReader) Iterator(ctx context.Context) LogicalIterator {
	return &logicalIterator{ctx: ctx, next: r.Next}
}

// Close marks the reader closed. The underlying reader is owned by the
// caller.
func (r *StreamReader) Close() error {
	r.closed = true
	return nil
}
