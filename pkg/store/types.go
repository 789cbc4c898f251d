package store

import (
	"errors"
	"time"

	"github.com/ssargent/kmall/pkg/codec"
	"github.com/ssargent/kmall/pkg/index"
)

// LogicalRecord is what a reader delivers: either one standalone record or
// one completed ping. For a ping, Kind is codec.KindMRZ, Record is the
// first bathymetry fan and Ping holds every fragment.
type LogicalRecord struct {
	Kind   codec.Kind
	Record codec.Record
	Ping   *Ping
}

// Time returns the record time in seconds.
func (r *LogicalRecord) Time() float64 {
	if r.Ping != nil {
		return r.Ping.Time
	}
	return r.Record.RecordHeader().Time()
}

// Ping is one complete multibeam ping assembled from its fragments. Fan
// slices are indexed by receiver fan.
type Ping struct {
	PingCounter uint16
	Time        float64 // earliest bathymetry fan time
	MRZ         []*codec.MRZ
	MWC         []*codec.MWC // empty unless the stream carries water column
	XMT         []*codec.XMT // empty unless the stream carries extensions
	XMS         *codec.XMS

	MRZRead, MRZNeeded int
	MWCRead, MWCNeeded int
}

// ReaderConfig holds configuration for file and stream readers
type ReaderConfig struct {
	FilePath   string          // Path to the KMALL file, file mode only
	Order      codec.ByteOrder // nil sniffs the order from the first header
	ChunkSize  int             // Index scan read size
	PingWindow float64         // Seconds within which one ping counter is one ping
	BlockSize  int             // Growth increment of the record buffer
	Sinks      Sinks
	Cache      IndexCache
	Observer   index.Observer // Scan and resync diagnostics
	OnDrop     func(*codec.RecordError)
}

// WriterConfig holds configuration for the writer
type WriterConfig struct {
	FilePath        string          // Path of the file to create, CreateFile only
	Order           codec.ByteOrder // nil writes little-endian
	FsyncInterval   time.Duration   // How often to fsync (0 = every write)
	BufferSize      int             // Write buffer size
	Extensions      bool            // Marker declares MB-System extensions
	WaterColumn     bool            // Marker declares water column records
	SoftwareVersion string          // Written into the marker record
}

// IndexCache persists index tables between sessions. Load returns nil and
// no error on a miss.
type IndexCache interface {
	Load(key string) (*index.Table, error)
	Save(key string, t *index.Table) error
}

// LogicalIterator provides streaming access to logical records
type LogicalIterator interface {
	Next() bool
	Record() *LogicalRecord
	Err() error
	Close() error
}

// ReaderStats counts what a reader has done so far.
type ReaderStats struct {
	Decoded   map[codec.Kind]int64 `json:"decoded"`
	Dropped   int64                `json:"dropped"`
	Pings     int64                `json:"pings"`
	Skipped   int64                `json:"skipped_bytes"`
	Resyncs   int64                `json:"resync_events"`
	Corrupted int64                `json:"corrupt_headers"`
}

// Defaults.
const (
	DefaultBufferSize = 64 * 1024

	// MaxStreamRecordSize bounds the length a live stream header may
	// declare before it is treated as corrupt.
	MaxStreamRecordSize = 1 << 24
)

// Errors
var (
	ErrClosed = &StoreError{"session closed"}
	// ErrStaleFragment is reported for a fragment of a ping that has
	// already been delivered.
	ErrStaleFragment = &StoreError{"fragment of a delivered ping"}
	ErrNilRecord     = &StoreError{"nil record"}
)

// StoreError represents a reader or writer error
type StoreError struct {
	Message string
}

func (e *StoreError) Error() string {
	return e.Message
}

// IsRecoverable reports whether err only costs one record, so a session
// may drop it and carry on.
func IsRecoverable(err error) bool {
	return codec.IsRecoverable(err) || errors.Is(err, ErrStaleFragment)
}
