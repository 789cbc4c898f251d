package store

import (
	"fmt"

	"github.com/ssargent/kmall/pkg/codec"
)

// slot holds one fan's fragment. The record is kept after its ping is
// delivered so the next ping can decode into it.
type slot[T codec.Record] struct {
	rec    T
	ping   uint16
	needed int
	filled bool
}

// fanSlots is the per-fan storage of one fragment kind.
type fanSlots[T codec.Record] struct {
	slots []slot[T]
}

func (f *fanSlots[T]) at(fan int) *slot[T] {
	if fan >= len(f.slots) {
		grown := make([]slot[T], fan+1)
		copy(grown, f.slots)
		f.slots = grown
	}
	return &f.slots[fan]
}

func (f *fanSlots[T]) put(fan int, ping uint16, needed int, rec T) {
	s := f.at(fan)
	s.rec, s.ping, s.needed, s.filled = rec, ping, needed, true
}

// count returns how many fans of ping are held and how many the ping
// declares. Fans beyond the declared count are not counted.
func (f *fanSlots[T]) count(ping uint16) (read, needed int) {
	for i := range f.slots {
		if s := &f.slots[i]; s.filled && s.ping == ping && s.needed > needed {
			needed = s.needed
		}
	}
	for i := 0; i < needed && i < len(f.slots); i++ {
		if s := &f.slots[i]; s.filled && s.ping == ping {
			read++
		}
	}
	return read, needed
}

func (f *fanSlots[T]) collect(dst []T, ping uint16) []T {
	dst = dst[:0]
	for i := range f.slots {
		if s := &f.slots[i]; s.filled && s.ping == ping {
			dst = append(dst, s.rec)
		}
	}
	return dst
}

func (f *fanSlots[T]) release() {
	for i := range f.slots {
		f.slots[i].filled = false
	}
}

func (f *fanSlots[T]) pending() bool {
	for i := range f.slots {
		if f.slots[i].filled {
			return true
		}
	}
	return false
}

// Reassembler collects ping fragments, delivered in canonical order, into
// complete pings.
//
// A ping declares how many fans make it up, counting every swath, and one
// datagram of each fragment kind carries each fan. A ping is complete when
// every bathymetry fan it declares is held, every water column fan too once
// water column has been seen, and the pseudo-sidescan record once the
// stream is known to carry extensions. Water column is discovered from the
// file marker or from the first water column fragment, extensions from the
// marker or the first pseudo-sidescan record. A reader that knows a ping's
// fragments in advance declares them with ExpectPing instead. Only
// bathymetry, water column and pseudo-sidescan fragments trigger
// completion, and a delivery discards any older partial ping.
//
// The records of a delivered ping stay owned by the Reassembler and are
// reused for later pings; they are valid until the next fragment of a
// different ping is decoded into them.
type Reassembler struct {
	mrz fanSlots[*codec.MRZ]
	mwc fanSlots[*codec.MWC]
	xmt fanSlots[*codec.XMT]
	xms slot[*codec.XMS]

	watercolumn bool
	extensions  bool
	plan        pingPlan

	delivered    bool
	lastDelivery uint16
	ping         Ping
}

// pingPlan is what a reader knows a ping carries before it is read.
type pingPlan struct {
	set         bool
	ping        uint16
	watercolumn bool
	extensions  bool
	xmt         bool
}

// NewReassembler returns an empty Reassembler.
func NewReassembler() *Reassembler {
	return &Reassembler{}
}

// WaterColumn reports whether the stream is known to carry water column.
func (r *Reassembler) WaterColumn() bool { return r.watercolumn }

// Extensions reports whether the stream is known to carry MB-System
// extension records.
func (r *Reassembler) Extensions() bool { return r.extensions }

// Pending reports whether fragments are held for a ping that has not
// completed.
func (r *Reassembler) Pending() bool {
	return r.mrz.pending() || r.mwc.pending() || r.xmt.pending() || r.xms.filled
}

// Expect declares stream properties known before the first fragment, such
// as those an index of the whole file reveals.
func (r *Reassembler) Expect(watercolumn, extensions bool) {
	r.watercolumn = r.watercolumn || watercolumn
	r.extensions = r.extensions || extensions
}

// ExpectPing declares which optional fragments the next occurrence of ping
// carries. It overrides the stream-wide flags for that ping only, so a ping
// without water column completes on its bathymetry even after water column
// has been seen, and a ping with extension fans waits for all of them.
func (r *Reassembler) ExpectPing(ping uint16, watercolumn, extensions, xmt bool) {
	r.plan = pingPlan{set: true, ping: ping, watercolumn: watercolumn, extensions: extensions, xmt: xmt}
}

// Spare returns a record of the given ping fragment kind to decode the
// fragment for fan into. The storage of a delivered ping is reused; a fan
// still held for a pending ping is left alone and a new record is returned,
// so a fragment that fails to decode never erases one that did.
func (r *Reassembler) Spare(kind codec.Kind, fan int) codec.Record {
	switch kind {
	case codec.KindMRZ:
		if s := r.mrz.at(fan); s.rec != nil && !s.filled {
			return s.rec
		}
	case codec.KindMWC:
		if s := r.mwc.at(fan); s.rec != nil && !s.filled {
			return s.rec
		}
	case codec.KindXMT:
		if s := r.xmt.at(fan); s.rec != nil && !s.filled {
			return s.rec
		}
	case codec.KindXMS:
		if r.xms.rec != nil && !r.xms.filled {
			return r.xms.rec
		}
	}
	return codec.NewRecord(kind)
}

// Add feeds one decoded record. Records that are not ping fragments are
// returned at once as standalone logical records. A ping fragment returns
// nil until its ping completes, then the whole ping.
func (r *Reassembler) Add(rec codec.Record) (*LogicalRecord, error) {
	if rec == nil {
		return nil, ErrNilRecord
	}
	switch v := rec.(type) {
	case *codec.MRZ:
		if err := r.checkStale(v.Kind(), v.PingCounter()); err != nil {
			return nil, err
		}
		r.mrz.put(v.FanIndex(), v.PingCounter(), max(v.FansPerPing(), 1), v)
		return r.complete(v.PingCounter()), nil
	case *codec.MWC:
		r.watercolumn = true
		if err := r.checkStale(v.Kind(), v.PingCounter()); err != nil {
			return nil, err
		}
		r.mwc.put(v.FanIndex(), v.PingCounter(), max(v.FansPerPing(), 1), v)
		return r.complete(v.PingCounter()), nil
	case *codec.XMT:
		if err := r.checkStale(v.Kind(), v.PingCounter()); err != nil {
			return nil, err
		}
		r.xmt.put(v.FanIndex(), v.PingCounter(), max(v.FansPerPing(), 1), v)
		if r.planned(v.PingCounter()) && r.plan.xmt {
			return r.complete(v.PingCounter()), nil
		}
		return nil, nil
	case *codec.XMS:
		r.extensions = true
		if err := r.checkStale(v.Kind(), v.PingCounter()); err != nil {
			return nil, err
		}
		r.xms = slot[*codec.XMS]{rec: v, ping: v.PingCounter(), needed: 1, filled: true}
		return r.complete(v.PingCounter()), nil
	case *codec.XMB:
		r.extensions = r.extensions || v.Extensions
		r.watercolumn = r.watercolumn || v.WaterColumn
	}
	return &LogicalRecord{Kind: rec.Kind(), Record: rec}, nil
}

func (r *Reassembler) checkStale(kind codec.Kind, ping uint16) error {
	if r.delivered && ping == r.lastDelivery {
		return &codec.RecordError{Kind: kind, Offset: -1, Err: fmt.Errorf("%w: ping %d", ErrStaleFragment, ping)}
	}
	return nil
}

func (r *Reassembler) planned(ping uint16) bool {
	return r.plan.set && r.plan.ping == ping
}

// complete delivers ping when it has everything it needs.
func (r *Reassembler) complete(ping uint16) *LogicalRecord {
	watercolumn, extensions := r.watercolumn, r.extensions
	if r.planned(ping) {
		watercolumn, extensions = r.plan.watercolumn, r.plan.extensions
		if r.plan.xmt {
			if read, needed := r.xmt.count(ping); needed == 0 || read != needed {
				return nil
			}
		}
	}

	mrzRead, mrzNeeded := r.mrz.count(ping)
	if mrzNeeded == 0 || mrzRead != mrzNeeded {
		return nil
	}
	mwcRead, mwcNeeded := r.mwc.count(ping)
	if watercolumn && (mwcNeeded == 0 || mwcRead != mwcNeeded) {
		return nil
	}
	if extensions && !(r.xms.filled && r.xms.ping == ping) {
		return nil
	}

	p := &r.ping
	p.PingCounter = ping
	p.MRZ = r.mrz.collect(p.MRZ, ping)
	p.MWC = r.mwc.collect(p.MWC, ping)
	p.XMT = r.xmt.collect(p.XMT, ping)
	p.XMS = nil
	if r.xms.filled && r.xms.ping == ping {
		p.XMS = r.xms.rec
	}
	p.MRZRead, p.MRZNeeded = mrzRead, mrzNeeded
	p.MWCRead, p.MWCNeeded = mwcRead, mwcNeeded
	p.Time = p.MRZ[0].Header.Time()
	for _, m := range p.MRZ[1:] {
		if t := m.Header.Time(); t < p.Time {
			p.Time = t
		}
	}

	// Older partial pings can no longer complete.
	r.mrz.release()
	r.mwc.release()
	r.xmt.release()
	r.xms.filled = false
	r.plan = pingPlan{}
	r.delivered, r.lastDelivery = true, ping
	return &LogicalRecord{Kind: codec.KindMRZ, Record: p.MRZ[0], Ping: p}
}

// Reset forgets all held fragments and discovered stream properties.
func (r *Reassembler) Reset() {
	*r = Reassembler{}
}
