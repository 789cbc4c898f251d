package store

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ssargent/kmall/pkg/codec"
	"github.com/ssargent/kmall/pkg/index"
)

// FileReader reads the logical records of a KMALL file in canonical order.
// The file is indexed once, on first use, and each indexed datagram is
// then read, decoded and passed through the ping reassembler.
//
// A FileReader is not safe for concurrent use. Records it returns are valid
// until the next call to Next.
type FileReader struct {
	session
	file   *os.File
	size   int64
	table   *index.Table
	next    int
	planned int // last entry of the ping declared to the reassembler
	buf     []byte
	closed  bool
}

// OpenFile opens the file named by config.FilePath for reading.
func OpenFile(config ReaderConfig) (*FileReader, error) {
	file, err := os.Open(config.FilePath)
	if err != nil {
		return nil, err
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	return &FileReader{
		session: newSession(config),
		file:    file,
		size:    stat.Size(),
		planned: -1,
	}, nil
}

// Index builds the file's index table, or loads it from the configured
// cache. It is idempotent.
func (r *FileReader) Index(ctx context.Context) error {
	if r.closed {
		return ErrClosed
	}
	if r.table != nil {
		return nil
	}
	if r.codec == nil {
		order, err := r.byteOrder()
		if err != nil {
			return err
		}
		r.codec = codec.NewRecordCodec(order)
	}

	key, err := r.cacheKey()
	if err != nil {
		return err
	}
	if r.config.Cache != nil {
		t, err := r.config.Cache.Load(key)
		if err != nil {
			return fmt.Errorf("load cached index: %w", err)
		}
		r.table = t
	}
	if r.table == nil {
		t, err := index.Build(ctx, r.file, r.size, index.Options{
			Order:      r.codec.Order(),
			ChunkSize:  r.config.ChunkSize,
			PingWindow: r.config.PingWindow,
			Observer:   r.config.Observer,
		})
		if err != nil {
			return fmt.Errorf("index %s: %w", r.config.FilePath, err)
		}
		r.table = t
		if r.config.Cache != nil {
			if err := r.config.Cache.Save(key, t); err != nil {
				return fmt.Errorf("save cached index: %w", err)
			}
		}
	}

	report := r.table.Report()
	r.stats.Skipped = report.SkippedBytes
	r.stats.Resyncs = report.ResyncEvents
	r.stats.Corrupted = report.CorruptHeaders
	return nil
}

// byteOrder returns the configured order or sniffs it from the first
// header. An unreadable or ambiguous header falls back to little-endian.
func (r *FileReader) byteOrder() (codec.ByteOrder, error) {
	if r.config.Order != nil {
		return r.config.Order, nil
	}
	head := make([]byte, codec.HeaderSize)
	n, err := r.file.ReadAt(head, 0)
	if err != nil && err != io.EOF {
		return nil, err
	}
	if order, ok := codec.SniffByteOrder(head[:n]); ok {
		return order, nil
	}
	return nil, nil
}

// cacheKey identifies this file's contents for the index cache.
func (r *FileReader) cacheKey() (string, error) {
	path, err := filepath.Abs(r.config.FilePath)
	if err != nil {
		return "", err
	}
	stat, err := r.file.Stat()
	if err != nil {
		return "", err
	}
	order := "little"
	if r.codec.Order().Uint16([]byte{0, 1}) == 1 {
		order = "big"
	}
	return fmt.Sprintf("%s|%d|%d|%s", path, stat.Size(), stat.ModTime().UnixNano(), order), nil
}

// Next returns the next logical record. It returns io.EOF when the index
// is exhausted; a ping still accumulating at that point is discarded.
// Damaged records are dropped and reported through config.OnDrop.
func (r *FileReader) Next(ctx context.Context) (*LogicalRecord, error) {
	if err := r.Index(ctx); err != nil {
		return nil, err
	}
	for r.next < r.table.Len() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e := r.table.Entry(r.next)
		if e.Kind.IsPingFragment() && r.next > r.planned {
			r.planPing(r.next)
		}
		r.next++

		r.buf = grow(r.buf, int(e.Size()), r.config.BlockSize)
		if _, err := r.file.ReadAt(r.buf, e.Offset); err != nil {
			return nil, fmt.Errorf("read %s record at offset %d: %w", e.Kind, e.Offset, err)
		}
		lr, err := r.handle(r.buf, e.Kind, e.Offset)
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
	return nil, io.EOF
}

// Rewind restarts reading from the first entry. Pending fragments are
// discarded.
func (r *FileReader) Rewind() {
	r.next = 0
	r.planned = -1
	r.reasm.Reset()
}

// planPing declares to the reassembler the fragments the index holds for
// the ping whose first entry is i. Canonical order keeps them together at
// one ping time. Water column and extension fans are waited for only when
// every fan the ping declares was indexed.
func (r *FileReader) planPing(i int) {
	first := r.table.Entry(i)
	fans := max(int(first.FansPerPing), 1)
	counts := make(map[codec.Kind]int, 4)
	r.planned = i
	for j := i; j < r.table.Len(); j++ {
		e := r.table.Entry(j)
		if e.PingTime != first.PingTime {
			break
		}
		if !e.Kind.IsPingFragment() || e.PingCounter != first.PingCounter {
			continue
		}
		counts[e.Kind]++
		r.planned = j
	}
	r.reasm.ExpectPing(first.PingCounter,
		counts[codec.KindMWC] >= fans,
		counts[codec.KindXMS] > 0,
		counts[codec.KindXMT] >= fans)
}

// Table returns the index table, or nil before Index.
func (r *FileReader) Table() *index.Table { return r.table }

// Stats returns what the reader has done so far.
func (r *FileReader) Stats() ReaderStats { return r.snapshot() }

// Pending reports whether a ping is accumulating.
func (r *FileReader) Pending() bool { return r.reasm.Pending() }

// Path returns the file path
func (r *FileReader) Path() string { return r.config.FilePath }

// Iterator returns a streaming iterator for logical records
func (r *FileReader) Iterator(ctx context.Context) LogicalIterator {
	return &logicalIterator{ctx: ctx, next: r.Next}
}

// Close closes the file reader
func (r *FileReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.file.Close()
}

// logicalIterator implements LogicalIterator over a Next function
type logicalIterator struct {
	ctx    context.Context
	next   func(context.Context) (*LogicalRecord, error)
	record *LogicalRecord
	err    error
}

func (it *logicalIterator) Next() bool {
	if it.err != nil {
		return false
	}
	it.record, it.err = it.next(it.ctx)
	if it.err == io.EOF {
		it.err = nil
		it.next = func(context.Context) (*LogicalRecord, error) { return nil, io.EOF }
		return false
	}
	return it.err == nil
}

func (it *logicalIterator) Record() *LogicalRecord {
	return it.record
}

func (it *logicalIterator) Err() error {
	return it.err
}

func (it *logicalIterator) Close() error {
	// Don't close the underlying reader as it's owned by the caller
	return nil
}
