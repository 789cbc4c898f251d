package codec

import (
	"encoding/binary"
	"fmt"
)

// Wire layout sizes.
const (
	HeaderSize    = 20 // fixed datagram header
	PartitionSize = 4  // numOfDgms + dgmNum
	EndSize       = 4  // repeated numBytesDgm

	// MinRecordSize is the smallest record that can hold a header and the
	// trailing length.
	MinRecordSize = HeaderSize + EndSize
)

// Header is the fixed 20 byte header that starts every datagram.
type Header struct {
	NumBytes      uint32  // total length, including both length fields
	Type          [4]byte // ASCII tag, e.g. "#MRZ"
	Version       uint8
	SystemID      uint8
	EchoSounderID uint16
	TimeSec       uint32
	TimeNanosec   uint32
}

// RecordHeader returns h. Every record embeds a Header, so this method is
// promoted to all of them.
func (h *Header) RecordHeader() *Header { return h }

// Kind classifies the header's type tag.
func (h Header) Kind() Kind { return KindFromTag(h.Type) }

// Time returns the datagram time as seconds since the Unix epoch.
func (h Header) Time() float64 {
	return float64(h.TimeSec) + float64(h.TimeNanosec)*1e-9
}

// String implements fmt.Stringer.
func (h Header) String() string {
	return fmt.Sprintf("%s v%d len=%d t=%d.%09d", h.Kind(), h.Version, h.NumBytes, h.TimeSec, h.TimeNanosec)
}

// ParseHeader decodes the header at the start of b and classifies it. It
// never fails: a short buffer or an unrecognised tag yields KindUnknown,
// which callers use to drive resynchronisation.
func ParseHeader(b []byte, order ByteOrder) (Header, Kind) {
	var h Header
	if len(b) < HeaderSize {
		return h, KindUnknown
	}
	if order == nil {
		order = binary.LittleEndian
	}
	h.NumBytes = order.Uint32(b[0:4])
	copy(h.Type[:], b[4:8])
	h.Version = b[8]
	h.SystemID = b[9]
	h.EchoSounderID = order.Uint16(b[10:12])
	h.TimeSec = order.Uint32(b[12:16])
	h.TimeNanosec = order.Uint32(b[16:20])
	return h, KindFromTag(h.Type)
}

// AppendHeader appends the wire form of h to dst.
func AppendHeader(dst []byte, h Header, order ByteOrder) []byte {
	dst = order.AppendUint32(dst, h.NumBytes)
	dst = append(dst, h.Type[:]...)
	dst = append(dst, h.Version, h.SystemID)
	dst = order.AppendUint16(dst, h.EchoSounderID)
	dst = order.AppendUint32(dst, h.TimeSec)
	dst = order.AppendUint32(dst, h.TimeNanosec)
	return dst
}

// TrailerMatches reports whether the last four bytes of record repeat the
// length declared in its header.
func TrailerMatches(record []byte, order ByteOrder) bool {
	if len(record) < MinRecordSize {
		return false
	}
	n := order.Uint32(record[0:4])
	if int(n) != len(record) {
		return false
	}
	return order.Uint32(record[len(record)-EndSize:]) == n
}
