package store

import (
	"errors"

	"github.com/ssargent/kmall/pkg/codec"
	"github.com/ssargent/kmall/pkg/index"
)

// session is the per-source state shared by file and stream readers: one
// codec, one reassembler, and the scratch records standalone kinds are
// decoded into.
type session struct {
	codec   *codec.RecordCodec
	reasm   *Reassembler
	scratch map[codec.Kind]codec.Record
	config  ReaderConfig
	stats   ReaderStats
}

func newSession(config ReaderConfig) session {
	return session{
		reasm:   NewReassembler(),
		scratch: make(map[codec.Kind]codec.Record),
		config:  config,
		stats:   ReaderStats{Decoded: make(map[codec.Kind]int64)},
	}
}

// handle decodes one verified datagram and feeds it to the reassembler. It
// returns nil when the datagram was absorbed into a pending ping.
func (s *session) handle(data []byte, kind codec.Kind, offset int64) (*LogicalRecord, error) {
	if err := codec.CheckPartition(data, kind, s.codec.Order()); err != nil {
		return nil, &codec.RecordError{Kind: kind, Offset: offset, Err: err}
	}
	rec := s.record(data, kind)
	if err := s.codec.DecodeInto(rec, data); err != nil {
		return nil, &codec.RecordError{Kind: kind, Offset: offset, Err: err}
	}
	s.stats.Decoded[kind]++

	lr, err := s.reasm.Add(rec)
	if err != nil {
		var re *codec.RecordError
		if errors.As(err, &re) {
			re.Offset = offset
		}
		return nil, err
	}
	if lr == nil {
		return nil, nil
	}
	if lr.Ping != nil {
		s.stats.Pings++
	} else {
		s.config.Sinks.Feed(rec)
	}
	return lr, nil
}

// record returns the record to decode data into. Ping fragments go into
// the reassembler's fan slots, other kinds into one scratch record each.
func (s *session) record(data []byte, kind codec.Kind) codec.Record {
	if kind.IsPingFragment() {
		f, _ := codec.PeekPingFields(data, kind, s.codec.Order())
		return s.reasm.Spare(kind, int(f.FanIndex))
	}
	rec, ok := s.scratch[kind]
	if !ok {
		rec = codec.NewRecord(kind)
		s.scratch[kind] = rec
	}
	return rec
}

func (s *session) drop(err error) {
	s.stats.Dropped++
	var re *codec.RecordError
	if s.config.OnDrop != nil && errors.As(err, &re) {
		s.config.OnDrop(re)
	}
}

func (s *session) observe(e index.Event) {
	switch e.Type {
	case index.EventResync:
		s.stats.Skipped += e.Length
		s.stats.Resyncs++
	case index.EventCorruptHeader:
		s.stats.Corrupted++
	}
	if s.config.Observer != nil {
		s.config.Observer(e)
	}
}

// snapshot returns a copy of the statistics.
func (s *session) snapshot() ReaderStats {
	out := s.stats
	out.Decoded = make(map[codec.Kind]int64, len(s.stats.Decoded))
	for k, v := range s.stats.Decoded {
		out.Decoded[k] = v
	}
	return out
}
