package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// ByteOrder reads and appends multi-byte wire values. binary.LittleEndian
// and binary.BigEndian both satisfy it.
type ByteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// ParseByteOrder maps "little", "big" (and the aliases "le", "be") to a
// ByteOrder.
func ParseByteOrder(s string) (ByteOrder, error) {
	switch strings.ToLower(s) {
	case "", "little", "le", "little-endian":
		return binary.LittleEndian, nil
	case "big", "be", "big-endian":
		return binary.BigEndian, nil
	}
	return nil, fmt.Errorf("unknown byte order %q", s)
}

// SniffByteOrder guesses the byte order of a datagram from its header: the
// order under which the declared length is plausible wins. Little-endian
// is preferred when both are.
func SniffByteOrder(header []byte) (ByteOrder, bool) {
	if len(header) < HeaderSize {
		return nil, false
	}
	var tag [4]byte
	copy(tag[:], header[4:8])
	if KindFromTag(tag) == KindUnknown {
		return nil, false
	}
	const maxPlausible = 1 << 26
	le := binary.LittleEndian.Uint32(header)
	if le >= MinRecordSize && le < maxPlausible {
		return binary.LittleEndian, true
	}
	be := binary.BigEndian.Uint32(header)
	if be >= MinRecordSize && be < maxPlausible {
		return binary.BigEndian, true
	}
	return nil, false
}

// decoder is a bounds-checked read cursor over one datagram. The first
// overrun is latched in err and every later read returns zero, so decode
// routines check the error once per sub-part rather than per field.
type decoder struct {
	buf   []byte
	off   int
	end   int // exclusive limit of the body, i.e. before the trailing length
	order ByteOrder
	err   error
}

func newDecoder(record []byte, order ByteOrder) *decoder {
	end := len(record) - EndSize
	if end < HeaderSize {
		end = len(record)
	}
	return &decoder{buf: record, off: HeaderSize, end: end, order: order}
}

func (d *decoder) fail(need int) {
	if d.err == nil {
		d.err = fmt.Errorf("%w: read of %d bytes at offset %d exceeds body end %d", ErrBadData, need, d.off, d.end)
	}
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || d.off+n > d.end {
		d.fail(n)
		return nil
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b
}

// seek moves the cursor to an absolute record offset. Sub-parts use it to
// jump past the number of bytes they declared.
func (d *decoder) seek(off int) {
	if d.err != nil {
		return
	}
	if off < HeaderSize || off > d.end {
		d.err = fmt.Errorf("%w: declared offset %d outside body [%d,%d]", ErrBadData, off, HeaderSize, d.end)
		return
	}
	d.off = off
}

func (d *decoder) skip(n int) { d.take(n) }

// endPart closes a sub-part that started at start and declared its own
// size. Declared bytes not consumed by known fields are skipped, which is
// how fields appended by newer format revisions are ignored.
func (d *decoder) endPart(start int, declared uint16) {
	if d.err != nil {
		return
	}
	limit := start + int(declared)
	if d.off > limit {
		d.err = fmt.Errorf("%w: sub-part at %d declares %d bytes but its fields need %d", ErrBadData, start, declared, d.off-start)
		return
	}
	d.seek(limit)
}

// has reports whether need more bytes fit before limit. Optional trailing
// fields of a sub-part are only read when the declared size covers them.
func (d *decoder) has(limit, need int) bool {
	return d.err == nil && d.off+need <= limit
}

// remaining is the number of body bytes left before the trailing length.
func (d *decoder) remaining() int {
	if d.err != nil || d.off > d.end {
		return 0
	}
	return d.end - d.off
}

func (d *decoder) u8() uint8 {
	if b := d.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (d *decoder) i8() int8 { return int8(d.u8()) }

func (d *decoder) u16() uint16 {
	if b := d.take(2); b != nil {
		return d.order.Uint16(b)
	}
	return 0
}

func (d *decoder) i16() int16 { return int16(d.u16()) }

func (d *decoder) u32() uint32 {
	if b := d.take(4); b != nil {
		return d.order.Uint32(b)
	}
	return 0
}

func (d *decoder) i32() int32 { return int32(d.u32()) }

func (d *decoder) f32() float32 { return math.Float32frombits(d.u32()) }

func (d *decoder) f64() float64 {
	if b := d.take(8); b != nil {
		return math.Float64frombits(d.order.Uint64(b))
	}
	return 0
}

func (d *decoder) tag() [4]byte {
	var t [4]byte
	copy(t[:], d.take(4))
	return t
}

// bytes copies n bytes into dst, reusing its capacity.
func (d *decoder) bytes(dst []byte, n int) []byte {
	b := d.take(n)
	if b == nil {
		return dst[:0]
	}
	return append(dst[:0], b...)
}

// cstring reads n bytes and returns them up to the first NUL.
func (d *decoder) cstring(n int) string {
	b := d.take(n)
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// encoder appends one datagram. Size fields are written as placeholders
// and patched once the sub-part they describe is complete.
type encoder struct {
	buf   []byte
	start int
	order ByteOrder
}

// pos is the current offset relative to the start of the datagram.
func (e *encoder) pos() int { return len(e.buf) - e.start }

func (e *encoder) u8(v uint8) { e.buf = append(e.buf, v) }
func (e *encoder) i8(v int8) { e.buf = append(e.buf, uint8(v)) }
func (e *encoder) u16(v uint16) { e.buf = e.order.AppendUint16(e.buf, v) }
func (e *encoder) i16(v int16) { e.u16(uint16(v)) }
func (e *encoder) u32(v uint32) { e.buf = e.order.AppendUint32(e.buf, v) }
func (e *encoder) i32(v int32) { e.u32(uint32(v)) }
func (e *encoder) f32(v float32) {
	e.u32(math.Float32bits(v))
}
func (e *encoder) f64(v float64) {
	e.buf = e.order.AppendUint64(e.buf, math.Float64bits(v))
}
func (e *encoder) raw(b []byte) { e.buf = append(e.buf, b...) }
func (e *encoder) zeros(n int) {
	for i := 0; i < n; i++ {
		e.buf = append(e.buf, 0)
	}
}

// fixedString writes s NUL padded to exactly n bytes.
func (e *encoder) fixedString(s string, n int) {
	b := []byte(s)
	if len(b) > n {
		b = b[:n]
	}
	e.raw(b)
	e.zeros(n - len(b))
}

// paddedString writes s NUL terminated and padded to a multiple of four
// bytes.
func (e *encoder) paddedString(s string) {
	e.raw([]byte(s))
	e.zeros(4 - len(s)%4)
}

// sizeSlot reserves a u16 size field and returns its datagram offset.
func (e *encoder) sizeSlot() int {
	at := e.pos()
	e.u16(0)
	return at
}

// patchSize stores the number of bytes written since the slot was
// reserved into that slot.
func (e *encoder) patchSize(slot int) error {
	n := e.pos() - slot
	if n > math.MaxUint16 {
		return fmt.Errorf("%w: sub-part of %d bytes overflows its u16 size field", ErrInconsistent, n)
	}
	e.putU16(slot, uint16(n))
	return nil
}

func (e *encoder) putU16(at int, v uint16) {
	e.order.PutUint16(e.buf[e.start+at:], v)
}

// finish appends the repeated length and patches the header length.
func (e *encoder) finish() ([]byte, error) {
	total := e.pos() + EndSize
	if uint64(total) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: datagram of %d bytes is too large", ErrInconsistent, total)
	}
	e.u32(uint32(total))
	e.order.PutUint32(e.buf[e.start:], uint32(total))
	return e.buf, nil
}
