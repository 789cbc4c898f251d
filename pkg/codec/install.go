package codec

import "fmt"

// Fixed layout sizes of the text carrying installation datagrams.
const (
	IIPVarOffset = HeaderSize + 6 + EndSize
	IOPVarOffset = IIPVarOffset
)

// Params is the body shared by #IIP and #IOP: a short common part followed
// by free-form ASCII text.
type Params struct {
	Header
	Info   uint16
	Status uint16
	Text   string
}

func (p *Params) decode(d *decoder) error {
	start := d.off
	n := d.u16()
	p.Info = d.u16()
	p.Status = d.u16()
	d.endPart(start, n)
	p.Text = string(d.take(d.remaining()))
	return d.err
}

func (p *Params) encode(e *encoder) error {
	slot := e.sizeSlot()
	e.u16(p.Info)
	e.u16(p.Status)
	if err := e.patchSize(slot); err != nil {
		return err
	}
	e.raw([]byte(p.Text))
	return nil
}

// IIP is a #IIP installation parameters datagram.
type IIP struct{ Params }

func (*IIP) Kind() Kind { return KindIIP }

// IOP is a #IOP runtime parameters datagram.
type IOP struct{ Params }

func (*IOP) Kind() Kind { return KindIOP }

// BIST is the body shared by the built-in self test datagrams.
type BIST struct {
	Header
	Info   uint8
	Style  uint8
	Number uint8
	Status int8
	Text   string
}

func (b *BIST) decode(d *decoder) error {
	start := d.off
	n := d.u16()
	b.Info = d.u8()
	b.Style = d.u8()
	b.Number = d.u8()
	b.Status = d.i8()
	d.endPart(start, n)
	b.Text = string(d.take(d.remaining()))
	return d.err
}

func (b *BIST) encode(e *encoder) error {
	slot := e.sizeSlot()
	e.u8(b.Info)
	e.u8(b.Style)
	e.u8(b.Number)
	e.i8(b.Status)
	if err := e.patchSize(slot); err != nil {
		return err
	}
	e.raw([]byte(b.Text))
	return nil
}

// IBE is a #IBE BIST error report.
type IBE struct{ BIST }

func (*IBE) Kind() Kind { return KindIBE }

// IBR is a #IBR BIST reply.
type IBR struct{ BIST }

func (*IBR) Kind() Kind { return KindIBR }

// IBS is a #IBS BIST short reply.
type IBS struct{ BIST }

func (*IBS) Kind() Kind { return KindIBS }

// FCF is a #FCF backscatter calibration file datagram.
type FCF struct {
	Header
	Partition  Partition
	FileStatus int8
	FileName   string
	File       []byte
}

func (*FCF) Kind() Kind { return KindFCF }

func (f *FCF) decode(d *decoder) error {
	f.Partition.decode(d)
	start := d.off
	n := d.u16()
	f.FileStatus = d.i8()
	d.skip(1)
	size := int(d.u32())
	f.FileName = d.cstring(MaxFileNameLength)
	d.endPart(start, n)
	if d.err != nil {
		return d.err
	}
	if size > MaxFileSize || size > d.remaining() {
		return fmt.Errorf("%w: calibration file of %d bytes exceeds datagram", ErrBadData, size)
	}
	f.File = d.bytes(f.File, size)
	return d.err
}

func (f *FCF) encode(e *encoder) error {
	if len(f.FileName) > MaxFileNameLength {
		return fmt.Errorf("%w: file name longer than %d bytes", ErrInconsistent, MaxFileNameLength)
	}
	if len(f.File) > MaxFileSize {
		return fmt.Errorf("%w: calibration file of %d bytes exceeds %d", ErrInconsistent, len(f.File), MaxFileSize)
	}
	f.Partition.encode(e)
	slot := e.sizeSlot()
	e.i8(f.FileStatus)
	e.u8(0)
	e.u32(uint32(len(f.File)))
	e.fixedString(f.FileName, MaxFileNameLength)
	if err := e.patchSize(slot); err != nil {
		return err
	}
	e.raw(f.File)
	return nil
}
