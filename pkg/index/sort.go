package index

import (
	"sort"

	"github.com/ssargent/kmall/pkg/codec"
)

// rank places file level metadata ahead of survey data: comments first,
// then installation parameters, runtime parameters, sound velocity
// profiles, calibration files and the MB-System marker.
func rank(k codec.Kind) int {
	switch k {
	case codec.KindXMC:
		return 0
	case codec.KindIIP:
		return 1
	case codec.KindIOP:
		return 2
	case codec.KindSVP:
		return 3
	case codec.KindFCF:
		return 4
	case codec.KindXMB:
		return 5
	}
	return 6
}

// precedence orders the fragments of one ping.
func precedence(k codec.Kind) int {
	switch k {
	case codec.KindMRZ:
		return 0
	case codec.KindXMT:
		return 1
	case codec.KindXMS:
		return 2
	case codec.KindMWC:
		return 3
	}
	return 4
}

// Less reports whether a precedes b in canonical read order.
//
// Metadata kinds sort by rank. Everything else sorts by time, where a ping
// fragment uses its ping time so that all fragments of one ping are
// adjacent. Fragments of one ping are ordered MRZ, XMT, XMS, MWC and by
// fan index within a kind. Scan order breaks any remaining tie, which
// makes the order total.
func Less(a, b *Entry) bool {
	if ra, rb := rank(a.Kind), rank(b.Kind); ra != rb {
		return ra < rb
	}
	ta, tb := sortTime(a), sortTime(b)
	if ta != tb {
		return ta < tb
	}
	pa, pb := a.Kind.IsPingFragment(), b.Kind.IsPingFragment()
	if pa != pb {
		return !pa
	}
	if pa {
		if a.PingCounter != b.PingCounter {
			return a.PingCounter < b.PingCounter
		}
		if ka, kb := precedence(a.Kind), precedence(b.Kind); ka != kb {
			return ka < kb
		}
		if a.FanIndex != b.FanIndex {
			return a.FanIndex < b.FanIndex
		}
	}
	return a.ScanOrder < b.ScanOrder
}

func sortTime(e *Entry) float64 {
	if e.Kind.IsPingFragment() {
		return e.PingTime
	}
	return e.Time
}

// Sort orders entries canonically.
func Sort(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool { return Less(&entries[i], &entries[j]) })
}
