package index

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/ssargent/kmall/pkg/codec"
)

// pingPeekSize covers the partition and common part of a ping fragment.
const pingPeekSize = codec.HeaderSize + codec.PartitionSize + 8

// Build scans size bytes of src once, locating every valid datagram, and
// returns the entries in canonical read order.
//
// Bytes that do not belong to a valid datagram are skipped: an unknown
// header makes the scan slide forward to the next possible header, and a
// header whose trailing length disagrees is skipped by HeaderSkip bytes
// before sliding resumes. Skipped runs and corrupt headers are counted in
// the table's ScanReport and passed to opts.Observer. Reaching the end of
// src is the normal end of the scan; only read failures are returned.
func Build(ctx context.Context, src io.ReaderAt, size int64, opts Options) (*Table, error) {
	start := time.Now()
	order := opts.Order
	if order == nil {
		order = binary.LittleEndian
	}
	s := &scanner{
		w:        newWindow(ctx, src, size, opts.ChunkSize),
		order:    order,
		observer: opts.Observer,
		skipFrom: -1,
	}
	if err := s.run(); err != nil {
		return nil, err
	}

	window := opts.PingWindow
	if window <= 0 {
		window = DefaultPingWindow
	}
	assignPingTimes(s.entries, window)
	Sort(s.entries)

	s.report.FileSize = size
	s.report.Records = int64(len(s.entries))
	s.report.ScanTime = time.Since(start)
	return newTable(s.entries, s.report), nil
}

type scanner struct {
	w        *window
	order    codec.ByteOrder
	observer Observer
	entries  []Entry
	report   ScanReport
	skipFrom int64 // start of the current skipped run, -1 when none
}

func (s *scanner) run() error {
	size := s.w.size
	pos := int64(0)
	for pos+codec.MinRecordSize <= size {
		hb, err := s.w.at(pos, codec.HeaderSize)
		if err != nil {
			return err
		}
		h, kind := codec.ParseHeader(hb, s.order)
		if kind == codec.KindUnknown {
			s.skipping(pos)
			next, err := s.w.nextCandidate(pos + 1)
			if err != nil {
				return err
			}
			pos = next
			continue
		}

		n := int64(h.NumBytes)
		if n < codec.MinRecordSize || pos+n > size {
			s.corrupt(pos, h, kind)
			pos += HeaderSkip
			continue
		}
		tb, err := s.w.at(pos+n-codec.EndSize, codec.EndSize)
		if err != nil {
			return err
		}
		if s.order.Uint32(tb) != h.NumBytes {
			s.corrupt(pos, h, kind)
			pos += HeaderSkip
			continue
		}

		s.resynced(pos)
		e := Entry{
			Time:      h.Time(),
			Kind:      kind,
			Header:    h,
			Offset:    pos,
			ScanOrder: len(s.entries),
		}
		if kind.IsPingFragment() {
			peek := pingPeekSize
			if int64(peek) > n {
				peek = int(n)
			}
			b, err := s.w.at(pos, peek)
			if err != nil {
				return err
			}
			if f, ok := codec.PeekPingFields(b, kind, s.order); ok {
				e.PingCounter = f.PingCnt
				e.FansPerPing = f.FansPerPing
				e.FanIndex = f.FanIndex
				e.SwathsPerPing = f.SwathsPerPing
			}
		}
		s.add(e)
		pos += n
	}
	if pos < size {
		s.skipping(pos)
	}
	s.resynced(size)
	return nil
}

func (s *scanner) add(e Entry) {
	if len(s.entries) == cap(s.entries) {
		grown := make([]Entry, len(s.entries), cap(s.entries)+EntryBlockSize)
		copy(grown, s.entries)
		s.entries = grown
	}
	s.entries = append(s.entries, e)
}

// skipping marks pos as inside a run of skipped bytes.
func (s *scanner) skipping(pos int64) {
	if s.skipFrom < 0 {
		s.skipFrom = pos
	}
}

// resynced closes the current skipped run at pos.
func (s *scanner) resynced(pos int64) {
	if s.skipFrom < 0 {
		return
	}
	n := pos - s.skipFrom
	s.report.SkippedBytes += n
	s.report.ResyncEvents++
	if s.observer != nil {
		s.observer(Event{Type: EventResync, Offset: s.skipFrom, Length: n})
	}
	s.skipFrom = -1
}

func (s *scanner) corrupt(pos int64, h codec.Header, kind codec.Kind) {
	s.skipping(pos)
	s.report.CorruptHeaders++
	if s.observer != nil {
		s.observer(Event{Type: EventCorruptHeader, Offset: pos, Length: int64(h.NumBytes), Kind: kind})
	}
}

// assignPingTimes sets PingTime on every entry. Fragments sharing a ping
// counter and lying within window seconds of each other are one ping and
// get the earliest of their times, so counter wrap-around does not merge
// distinct pings.
func assignPingTimes(entries []Entry, window float64) {
	var frags []int
	for i := range entries {
		entries[i].PingTime = entries[i].Time
		if entries[i].Kind.IsPingFragment() {
			frags = append(frags, i)
		}
	}
	sort.Slice(frags, func(a, b int) bool {
		ea, eb := &entries[frags[a]], &entries[frags[b]]
		if ea.PingCounter != eb.PingCounter {
			return ea.PingCounter < eb.PingCounter
		}
		if ea.Time != eb.Time {
			return ea.Time < eb.Time
		}
		return ea.ScanOrder < eb.ScanOrder
	})
	for i := 0; i < len(frags); {
		first := &entries[frags[i]]
		j := i + 1
		for j < len(frags) {
			e := &entries[frags[j]]
			if e.PingCounter != first.PingCounter || e.Time-first.Time > window {
				break
			}
			e.PingTime = first.Time
			j++
		}
		i = j
	}
}

// String implements fmt.Stringer.
func (r ScanReport) String() string {
	return fmt.Sprintf("%d records, %d skipped bytes in %d runs, %d corrupt headers",
		r.Records, r.SkippedBytes, r.ResyncEvents, r.CorruptHeaders)
}
