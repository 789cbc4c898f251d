package store

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ssargent/kmall/pkg/codec"
)

// Writer emits logical records as KMALL datagrams. The first record of a
// session is preceded by an XMB marker declaring the MB-System extensions,
// unless the caller writes its own XMB first. A ping is written as one
// datagram per fragment: bathymetry fans, then water column fans, then
// extension fans, then the pseudo-sidescan record.
type Writer struct {
	file       *os.File // nil when writing to a caller's io.Writer
	writer     *bufio.Writer
	codec      *codec.RecordCodec
	fsyncTimer *time.Timer
	config     WriterConfig
	mutex      sync.Mutex
	buf        []byte
	offset     int64 // Current write offset
	started    bool
	closed     bool
	written    map[codec.Kind]int64
}

// NewWriter writes to w. Sync only flushes; the caller owns w.
func NewWriter(w io.Writer, config WriterConfig) *Writer {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultBufferSize
	}
	return &Writer{
		writer:  bufio.NewWriterSize(w, config.BufferSize),
		codec:   codec.NewRecordCodec(config.Order),
		config:  config,
		written: make(map[codec.Kind]int64),
	}
}

// CreateFile creates (or truncates) the file named by config.FilePath and
// returns a Writer for it.
func CreateFile(config WriterConfig) (*Writer, error) {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(config.FilePath), 0750); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(config.FilePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, err
	}

	writer := NewWriter(file, config)
	writer.file = file

	// Set up fsync timer if interval is configured
	if config.FsyncInterval > 0 {
		writer.fsyncTimer = time.AfterFunc(config.FsyncInterval, func() {
			writer.mutex.Lock()
			defer writer.mutex.Unlock()
			writer.sync() // Ignore error in timer callback
		})
	}

	return writer, nil
}

// Write emits one logical record and returns the offset of its first
// datagram.
func (w *Writer) Write(lr *LogicalRecord) (int64, error) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.closed {
		return 0, ErrClosed
	}
	if lr == nil || (lr.Record == nil && lr.Ping == nil) {
		return 0, ErrNilRecord
	}

	if !w.started {
		w.started = true
		if lr.Kind != codec.KindXMB {
			if err := w.put(w.marker(lr)); err != nil {
				return 0, err
			}
		}
	}

	start := w.offset
	if lr.Ping == nil {
		if err := w.put(lr.Record); err != nil {
			return 0, err
		}
		return start, w.afterWrite()
	}

	p := lr.Ping
	for _, m := range p.MRZ {
		if err := w.put(m); err != nil {
			return 0, err
		}
	}
	for _, m := range p.MWC {
		if err := w.put(m); err != nil {
			return 0, err
		}
	}
	for _, x := range p.XMT {
		if err := w.put(x); err != nil {
			return 0, err
		}
	}
	if p.XMS != nil {
		if err := w.put(p.XMS); err != nil {
			return 0, err
		}
	}
	return start, w.afterWrite()
}

// WriteRecord emits one datagram as is, without a marker.
func (w *Writer) WriteRecord(rec codec.Record) (int64, error) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.closed {
		return 0, ErrClosed
	}
	if rec == nil {
		return 0, ErrNilRecord
	}
	w.started = true
	start := w.offset
	if err := w.put(rec); err != nil {
		return 0, err
	}
	return start, w.afterWrite()
}

// marker builds the session's XMB record, stamped with the time of the
// first record.
func (w *Writer) marker(first *LogicalRecord) *codec.XMB {
	var h codec.Header
	if first.Record != nil {
		h = *first.Record.RecordHeader()
	} else if len(first.Ping.MRZ) > 0 {
		h = first.Ping.MRZ[0].Header
	}
	return &codec.XMB{
		Header: codec.Header{
			Version:       0,
			SystemID:      h.SystemID,
			EchoSounderID: h.EchoSounderID,
			TimeSec:       h.TimeSec,
			TimeNanosec:   h.TimeNanosec,
		},
		Extensions:      w.config.Extensions,
		WaterColumn:     w.config.WaterColumn,
		SoftwareVersion: w.config.SoftwareVersion,
	}
}

func (w *Writer) put(rec codec.Record) error {
	var err error
	w.buf, err = w.codec.AppendEncode(w.buf[:0], rec)
	if err != nil {
		return &codec.RecordError{Kind: rec.Kind(), Offset: w.offset, Err: err}
	}
	n, err := w.writer.Write(w.buf)
	w.offset += int64(n)
	if err != nil {
		return fmt.Errorf("write %s record: %w", rec.Kind(), err)
	}
	w.written[rec.Kind()]++
	return nil
}

func (w *Writer) afterWrite() error {
	if w.file == nil {
		return nil
	}
	// Sync immediately if no fsync interval configured
	if w.config.FsyncInterval == 0 {
		return w.sync()
	}
	// Reset fsync timer
	if w.fsyncTimer != nil {
		w.fsyncTimer.Reset(w.config.FsyncInterval)
	}
	return nil
}

// Flush writes buffered datagrams to the underlying writer.
func (w *Writer) Flush() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.writer.Flush()
}

// Sync forces a fsync to disk
func (w *Writer) Sync() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.sync()
}

// sync performs the actual fsync operation (internal method)
func (w *Writer) sync() error {
	// Flush buffered writes
	if err := w.writer.Flush(); err != nil {
		return err
	}
	if w.file == nil {
		return nil
	}

	// Fsync to disk
	return w.file.Sync()
}

// Close flushes the writer and, for a file it created, syncs and closes
// the file.
func (w *Writer) Close() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	// Cancel fsync timer
	if w.fsyncTimer != nil {
		w.fsyncTimer.Stop()
	}

	// Final sync
	if err := w.sync(); err != nil {
		if w.file != nil {
			w.file.Close()
		}
		return err
	}
	if w.file == nil {
		return nil
	}
	return w.file.Close()
}

// Size returns the number of bytes written
func (w *Writer) Size() int64 {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.offset
}

// Written returns the number of datagrams written per kind.
func (w *Writer) Written() map[codec.Kind]int64 {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	out := make(map[codec.Kind]int64, len(w.written))
	for k, v := range w.written {
		out[k] = v
	}
	return out
}

// Path returns the file path
func (w *Writer) Path() string {
	return w.config.FilePath
}
