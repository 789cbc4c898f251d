package index

import (
	"time"

	"github.com/ssargent/kmall/pkg/codec"
)

// Entry locates one valid datagram in a file. Entries are produced once by
// Build and never change afterwards.
type Entry struct {
	Time          float64 // datagram time, seconds
	PingTime      float64 // earliest time of the ping this fragment belongs to; Time for other kinds
	Kind          codec.Kind
	Header        codec.Header
	Offset        int64 // byte offset of the datagram in the file
	PingCounter   uint16
	FansPerPing   uint8
	FanIndex      uint8
	SwathsPerPing uint8
	ScanOrder     int // position in file order
}

// Size is the datagram length in bytes.
func (e Entry) Size() int64 { return int64(e.Header.NumBytes) }

// End is the offset just past the datagram.
func (e Entry) End() int64 { return e.Offset + e.Size() }

// ScanReport summarises one indexing pass.
type ScanReport struct {
	FileSize       int64         `json:"file_size"`
	Records        int64         `json:"records"`
	SkippedBytes   int64         `json:"skipped_bytes"`   // bytes outside any valid datagram
	CorruptHeaders int64         `json:"corrupt_headers"` // headers whose trailing length disagreed
	ResyncEvents   int64         `json:"resync_events"`   // contiguous runs of skipped bytes
	ScanTime       time.Duration `json:"scan_time"`
}

// EventType distinguishes scan diagnostics.
type EventType int

const (
	// EventResync reports a run of bytes skipped while looking for the
	// next datagram header.
	EventResync EventType = iota
	// EventCorruptHeader reports a header whose declared length is not
	// repeated at the end of the datagram.
	EventCorruptHeader
)

func (t EventType) String() string {
	switch t {
	case EventResync:
		return "resync"
	case EventCorruptHeader:
		return "corrupt_header"
	}
	return "unknown"
}

// Event is a diagnostic raised during a scan.
type Event struct {
	Type   EventType
	Offset int64
	Length int64      // skipped bytes for EventResync, declared length for EventCorruptHeader
	Kind   codec.Kind // classified kind of a corrupt header
}

// Observer receives scan diagnostics as they happen.
type Observer func(Event)

// Options configures Build.
type Options struct {
	Order      codec.ByteOrder // nil selects little-endian
	ChunkSize  int             // read size, default DefaultChunkSize
	PingWindow float64         // seconds within which fragments with one counter form one ping
	Observer   Observer
}

// Defaults.
const (
	DefaultChunkSize  = 1 << 20
	DefaultPingWindow = 60.0

	// HeaderSkip is how far the scan advances past a header whose
	// trailing length does not match before resynchronising.
	HeaderSkip = 8

	// EntryBlockSize is the growth increment of the entry table.
	EntryBlockSize = 4096
)

// Errors
var (
	// ErrCorruptHeader classifies corrupt header events. It is reported
	// through the Observer and the ScanReport, never returned by Build.
	ErrCorruptHeader = &IndexError{"corrupt datagram header"}
	// ErrBadTable is returned when a serialised table cannot be read.
	ErrBadTable = &IndexError{"malformed index table"}
)

// IndexError represents an index error
type IndexError struct {
	Message string
}

func (e *IndexError) Error() string {
	return e.Message
}
