package index

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/ssargent/kmall/pkg/codec"
)

// Table is the ordered result of one indexing pass. It is read-only after
// Build returns and safe for concurrent readers.
type Table struct {
	entries []Entry
	report  ScanReport
	pings   *roaring.Bitmap
}

func newTable(entries []Entry, report ScanReport) *Table {
	pings := roaring.New()
	for i := range entries {
		if entries[i].Kind.IsPingFragment() {
			pings.Add(uint32(entries[i].PingCounter))
		}
	}
	return &Table{entries: entries, report: report, pings: pings}
}

// Len returns the number of entries.
func (t *Table) Len() int { return len(t.entries) }

// Entry returns the i-th entry in canonical order.
func (t *Table) Entry(i int) Entry { return t.entries[i] }

// Entries returns the entries in canonical order. The slice must not be
// modified.
func (t *Table) Entries() []Entry { return t.entries }

// Report returns the scan diagnostics.
func (t *Table) Report() ScanReport { return t.report }

// Pings returns the set of ping counters seen in ping fragments. The
// bitmap is shared; callers that modify it must Clone it first.
func (t *Table) Pings() *roaring.Bitmap { return t.pings }

// Stats counts entries per kind.
func (t *Table) Stats() map[codec.Kind]int {
	out := make(map[codec.Kind]int)
	for i := range t.entries {
		out[t.entries[i].Kind]++
	}
	return out
}

// Serialised table layout, little-endian:
//
//	magic "KMIX" | version u16 | report | count u32 | entries
const (
	tableMagic     = "KMIX"
	tableVersion   = 1
	tableHeadSize  = 4 + 2 + 6*8 + 4
	tableEntrySize = 8 + 8 + codec.HeaderSize + 8 + 2 + 1 + 1 + 1 + 4
)

// MarshalBinary implements encoding.BinaryMarshaler.
func (t *Table) MarshalBinary() ([]byte, error) {
	le := binary.LittleEndian
	buf := make([]byte, 0, tableHeadSize+len(t.entries)*tableEntrySize)
	buf = append(buf, tableMagic...)
	buf = le.AppendUint16(buf, tableVersion)
	r := t.report
	for _, v := range []int64{r.FileSize, r.Records, r.SkippedBytes, r.CorruptHeaders, r.ResyncEvents, int64(r.ScanTime)} {
		buf = le.AppendUint64(buf, uint64(v))
	}
	buf = le.AppendUint32(buf, uint32(len(t.entries)))
	for i := range t.entries {
		e := &t.entries[i]
		buf = le.AppendUint64(buf, math.Float64bits(e.Time))
		buf = le.AppendUint64(buf, math.Float64bits(e.PingTime))
		buf = codec.AppendHeader(buf, e.Header, le)
		buf = le.AppendUint64(buf, uint64(e.Offset))
		buf = le.AppendUint16(buf, e.PingCounter)
		buf = append(buf, e.FansPerPing, e.FanIndex, e.SwathsPerPing)
		buf = le.AppendUint32(buf, uint32(e.ScanOrder))
	}
	return buf, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (t *Table) UnmarshalBinary(data []byte) error {
	le := binary.LittleEndian
	if len(data) < tableHeadSize || string(data[:4]) != tableMagic {
		return ErrBadTable
	}
	if v := le.Uint16(data[4:]); v != tableVersion {
		return fmt.Errorf("%w: version %d", ErrBadTable, v)
	}
	off := 6
	var vals [6]int64
	for i := range vals {
		vals[i] = int64(le.Uint64(data[off:]))
		off += 8
	}
	n := int(le.Uint32(data[off:]))
	off += 4
	if len(data)-off != n*tableEntrySize {
		return fmt.Errorf("%w: %d entries do not fit in %d bytes", ErrBadTable, n, len(data)-off)
	}

	entries := make([]Entry, n)
	for i := range entries {
		e := &entries[i]
		b := data[off : off+tableEntrySize]
		e.Time = math.Float64frombits(le.Uint64(b[0:]))
		e.PingTime = math.Float64frombits(le.Uint64(b[8:]))
		e.Header, e.Kind = codec.ParseHeader(b[16:], le)
		p := 16 + codec.HeaderSize
		e.Offset = int64(le.Uint64(b[p:]))
		e.PingCounter = le.Uint16(b[p+8:])
		e.FansPerPing = b[p+10]
		e.FanIndex = b[p+11]
		e.SwathsPerPing = b[p+12]
		e.ScanOrder = int(le.Uint32(b[p+13:]))
		if e.Kind == codec.KindUnknown {
			return fmt.Errorf("%w: entry %d has unknown kind", ErrBadTable, i)
		}
		off += tableEntrySize
	}

	*t = *newTable(entries, ScanReport{
		FileSize:       vals[0],
		Records:        vals[1],
		SkippedBytes:   vals[2],
		CorruptHeaders: vals[3],
		ResyncEvents:   vals[4],
		ScanTime:       time.Duration(vals[5]),
	})
	return nil
}
