package codec

import (
	"encoding/binary"
	"fmt"
)

// Record is one decoded datagram. The set of implementations is closed:
// every Kind maps to exactly one concrete type in this package.
type Record interface {
	Kind() Kind
	RecordHeader() *Header
	decode(d *decoder) error
	encode(e *encoder) error
}

// Fragment is a record carrying one receiver fan of a logical ping.
type Fragment interface {
	Record
	PingCounter() uint16
	FanIndex() int
	FansPerPing() int
}

// NewRecord returns an empty record of the given kind.
func NewRecord(kind Kind) Record {
	switch kind {
	case KindIIP:
		return &IIP{}
	case KindIOP:
		return &IOP{}
	case KindIBE:
		return &IBE{}
	case KindIBR:
		return &IBR{}
	case KindIBS:
		return &IBS{}
	case KindSPO:
		return &SPO{}
	case KindSKM:
		return &SKM{}
	case KindSVP:
		return &SVP{}
	case KindSVT:
		return &SVT{}
	case KindSCL:
		return &SCL{}
	case KindSDE:
		return &SDE{}
	case KindSHI:
		return &SHI{}
	case KindSHA:
		return &SHA{}
	case KindMRZ:
		return &MRZ{}
	case KindMWC:
		return &MWC{}
	case KindCPO:
		return &CPO{}
	case KindCHE:
		return &CHE{}
	case KindFCF:
		return &FCF{}
	case KindXMB:
		return &XMB{}
	case KindXMT:
		return &XMT{}
	case KindXMC:
		return &XMC{}
	case KindXMS:
		return &XMS{}
	case KindUnknown:
		return &Unknown{}
	}
	return &Unknown{}
}

// RecordCodec translates between datagram bytes and records.
type RecordCodec struct {
	order ByteOrder
}

// NewRecordCodec creates a codec for the given byte order. A nil order
// selects little-endian, the order Kongsberg systems write.
func NewRecordCodec(order ByteOrder) *RecordCodec {
	if order == nil {
		order = binary.LittleEndian
	}
	return &RecordCodec{order: order}
}

// Order returns the codec's byte order.
func (c *RecordCodec) Order() ByteOrder { return c.order }

// ParseHeader classifies the header at the start of b.
func (c *RecordCodec) ParseHeader(b []byte) (Header, Kind) {
	return ParseHeader(b, c.order)
}

// Decode decodes one complete datagram into a new record.
func (c *RecordCodec) Decode(data []byte) (Record, error) {
	h, kind, err := c.checkFrame(data)
	if err != nil {
		return nil, err
	}
	rec := NewRecord(kind)
	if err := c.decodeFrame(rec, h, data); err != nil {
		return nil, err
	}
	return rec, nil
}

// DecodeInto decodes data into rec, reusing the capacity of its arrays.
// rec's kind must match the datagram's.
func (c *RecordCodec) DecodeInto(rec Record, data []byte) error {
	h, kind, err := c.checkFrame(data)
	if err != nil {
		return err
	}
	if rec.Kind() != kind {
		return fmt.Errorf("%w: datagram is %s, record is %s", ErrKindMismatch, kind, rec.Kind())
	}
	return c.decodeFrame(rec, h, data)
}

func (c *RecordCodec) checkFrame(data []byte) (Header, Kind, error) {
	if len(data) < MinRecordSize {
		return Header{}, KindUnknown, fmt.Errorf("%w: %d bytes is shorter than a datagram", ErrBadData, len(data))
	}
	h, kind := ParseHeader(data, c.order)
	if int(h.NumBytes) != len(data) {
		return h, kind, fmt.Errorf("%w: header declares %d bytes, have %d", ErrBadData, h.NumBytes, len(data))
	}
	if !TrailerMatches(data, c.order) {
		return h, kind, fmt.Errorf("%w: trailing length does not match header", ErrBadData)
	}
	return h, kind, nil
}

func (c *RecordCodec) decodeFrame(rec Record, h Header, data []byte) error {
	*rec.RecordHeader() = h
	d := newDecoder(data, c.order)
	if err := rec.decode(d); err != nil {
		return err
	}
	return d.err
}

// Encode serialises rec into a new datagram. The header's length and tag,
// and every size field inside the body, are recomputed from the record's
// contents; the record's header is updated to match.
func (c *RecordCodec) Encode(rec Record) ([]byte, error) {
	return c.AppendEncode(nil, rec)
}

// AppendEncode appends the datagram for rec to dst.
func (c *RecordCodec) AppendEncode(dst []byte, rec Record) ([]byte, error) {
	h := rec.RecordHeader()
	kind := rec.Kind()
	e := &encoder{buf: dst, start: len(dst), order: c.order}
	if kind != KindUnknown {
		h.Type = kind.Tag()
	}
	e.buf = AppendHeader(e.buf, *h, c.order)
	if err := rec.encode(e); err != nil {
		return dst, err
	}
	out, err := e.finish()
	if err != nil {
		return dst, err
	}
	h.NumBytes = uint32(len(out) - len(dst))
	return out, nil
}

// PartitionCount returns the number of transport packets a partitioned
// datagram declares it was split into. ok is false for kinds without a
// partition sub-part or when data is too short.
func PartitionCount(data []byte, kind Kind, order ByteOrder) (n int, ok bool) {
	if !kind.IsPartitioned() || len(data) < HeaderSize+PartitionSize {
		return 0, false
	}
	return int(order.Uint16(data[HeaderSize:])), true
}

// CheckPartition returns ErrUnintelligible when a partitioned datagram
// spans more than one transport packet.
func CheckPartition(data []byte, kind Kind, order ByteOrder) error {
	n, ok := PartitionCount(data, kind, order)
	if ok && n != 1 {
		return fmt.Errorf("%w: %s datagram split into %d packets", ErrUnintelligible, kind, n)
	}
	return nil
}
