package codec

import (
	"fmt"
	"strings"
)

// Record kinds tagged #XM* are written only by MB-System. Vendor readers
// skip them as unknown datagrams.

const (
	xmbUnusedSize   = 24
	xmcUnusedSize   = 32
	xmsUnusedSize   = 32
	xmtSoundingSize = 24
)

// XMB marks a file as written by MB-System and announces which optional
// datagrams accompany each ping.
type XMB struct {
	Header
	Extensions      bool // each ping ends with XMT fans and a terminal XMS
	WaterColumn     bool // each ping carries MWC fans
	SoftwareVersion string
}

func (*XMB) Kind() Kind { return KindXMB }

func (x *XMB) decode(d *decoder) error {
	x.Extensions = d.i32() != 0
	x.WaterColumn = d.i32() != 0
	d.skip(xmbUnusedSize)
	x.SoftwareVersion = d.cstring(d.remaining())
	return d.err
}

func (x *XMB) encode(e *encoder) error {
	if strings.IndexByte(x.SoftwareVersion, 0) >= 0 {
		return fmt.Errorf("%w: software version contains a NUL byte", ErrInconsistent)
	}
	e.i32(boolInt(x.Extensions))
	e.i32(boolInt(x.WaterColumn))
	e.zeros(xmbUnusedSize)
	e.paddedString(x.SoftwareVersion)
	return nil
}

// XMC is a comment inserted by MB-System. The comment is stored
// NUL-terminated and so cannot itself contain a NUL byte.
type XMC struct {
	Header
	Comment string
}

func (*XMC) Kind() Kind { return KindXMC }

func (x *XMC) decode(d *decoder) error {
	d.skip(xmcUnusedSize)
	x.Comment = d.cstring(d.remaining())
	return d.err
}

func (x *XMC) encode(e *encoder) error {
	if strings.IndexByte(x.Comment, 0) >= 0 {
		return fmt.Errorf("%w: comment contains a NUL byte", ErrInconsistent)
	}
	e.zeros(xmcUnusedSize)
	e.paddedString(x.Comment)
	return nil
}

// XMTPingInfo is the navigation and attitude of the sonar at ping time.
type XMTPingInfo struct {
	Longitude   float64
	Latitude    float64
	SensorDepth float64
	Heading     float64
	Speed       float32
	Roll        float32
	Pitch       float32
	Heave       float32
}

// XMTSounding is one beam's travel time and pointing angles, corrected and
// ready for raytracing.
type XMTSounding struct {
	SoundingIndex    uint16
	TwoWayTravelTime float32
	AngleVertical    float32
	AngleAzimuthal   float32
	BeamHeave        float32
	AlongtrackOffset float32
}

// XMT carries the corrected beam geometry of one MRZ fan.
type XMT struct {
	Header
	Partition Partition
	Common    PingCommon
	PingInfo  XMTPingInfo
	Soundings []XMTSounding
}

func (*XMT) Kind() Kind { return KindXMT }

// PingCounter returns the ping counter.
func (x *XMT) PingCounter() uint16 { return x.Common.PingCnt }

// FanIndex returns the receiver fan index.
func (x *XMT) FanIndex() int { return int(x.Common.RxFanIndex) }

// FansPerPing returns the number of fans in the ping.
func (x *XMT) FansPerPing() int { return int(x.Common.RxFansPerPing) }

func (x *XMT) decode(d *decoder) error {
	x.Partition.decode(d)
	x.Common.decode(d)

	p := &x.PingInfo
	start := d.off
	n := d.u16()
	perSounding := int(d.u16())
	d.skip(4)
	p.Longitude = d.f64()
	p.Latitude = d.f64()
	p.SensorDepth = d.f64()
	p.Heading = d.f64()
	p.Speed = d.f32()
	p.Roll = d.f32()
	p.Pitch = d.f32()
	p.Heave = d.f32()
	num := int(d.i32())
	d.endPart(start, n)
	if d.err != nil {
		return d.err
	}
	if num < 0 || num > MaxBeams+MaxExtraDetections || (num > 0 && perSounding < xmtSoundingSize) ||
		num*perSounding > d.remaining() {
		return fmt.Errorf("%w: %d soundings of %d bytes exceed length %d", ErrBadData, num, perSounding, x.NumBytes)
	}

	x.Soundings = resize(x.Soundings, num)
	for i := range x.Soundings {
		s := &x.Soundings[i]
		at := d.off
		s.SoundingIndex = d.u16()
		d.skip(2)
		s.TwoWayTravelTime = d.f32()
		s.AngleVertical = d.f32()
		s.AngleAzimuthal = d.f32()
		s.BeamHeave = d.f32()
		s.AlongtrackOffset = d.f32()
		d.seek(at + perSounding)
	}
	return d.err
}

func (x *XMT) encode(e *encoder) error {
	x.Partition.encode(e)
	if err := x.Common.encode(e); err != nil {
		return err
	}
	p := &x.PingInfo
	slot := e.sizeSlot()
	e.u16(xmtSoundingSize)
	e.i32(0)
	e.f64(p.Longitude)
	e.f64(p.Latitude)
	e.f64(p.SensorDepth)
	e.f64(p.Heading)
	e.f32(p.Speed)
	e.f32(p.Roll)
	e.f32(p.Pitch)
	e.f32(p.Heave)
	e.i32(int32(len(x.Soundings)))
	if err := e.patchSize(slot); err != nil {
		return err
	}
	for _, s := range x.Soundings {
		e.u16(s.SoundingIndex)
		e.u16(0)
		e.f32(s.TwoWayTravelTime)
		e.f32(s.AngleVertical)
		e.f32(s.AngleAzimuthal)
		e.f32(s.BeamHeave)
		e.f32(s.AlongtrackOffset)
	}
	return nil
}

// XMS is the pseudo-sidescan computed for a ping. It is the last datagram
// of a ping in files carrying MB-System extensions.
type XMS struct {
	Header
	PingCnt    uint16
	PixelSize  float32 // m
	Sidescan   []float32
	AlongTrack []float32 // m, one per sidescan pixel
}

func (*XMS) Kind() Kind { return KindXMS }

// PingCounter returns the ping counter.
func (x *XMS) PingCounter() uint16 { return x.PingCnt }

func (x *XMS) decode(d *decoder) error {
	x.PingCnt = d.u16()
	d.skip(2)
	x.PixelSize = d.f32()
	pixels := int(d.i32())
	d.skip(xmsUnusedSize)
	if d.err != nil {
		return d.err
	}
	if pixels < 0 || pixels > MaxPixels || pixels*8 > d.remaining() {
		return fmt.Errorf("%w: %d sidescan pixels exceed length %d", ErrBadData, pixels, x.NumBytes)
	}
	x.Sidescan = resize(x.Sidescan, pixels)
	for i := range x.Sidescan {
		x.Sidescan[i] = d.f32()
	}
	x.AlongTrack = resize(x.AlongTrack, pixels)
	for i := range x.AlongTrack {
		x.AlongTrack[i] = d.f32()
	}
	return d.err
}

func (x *XMS) encode(e *encoder) error {
	if len(x.AlongTrack) != len(x.Sidescan) {
		return fmt.Errorf("%w: %d sidescan pixels with %d alongtrack distances", ErrInconsistent, len(x.Sidescan), len(x.AlongTrack))
	}
	if len(x.Sidescan) > MaxPixels {
		return fmt.Errorf("%w: %d sidescan pixels exceed %d", ErrInconsistent, len(x.Sidescan), MaxPixels)
	}
	e.u16(x.PingCnt)
	e.u16(0)
	e.f32(x.PixelSize)
	e.i32(int32(len(x.Sidescan)))
	e.zeros(xmsUnusedSize)
	for _, v := range x.Sidescan {
		e.f32(v)
	}
	for _, v := range x.AlongTrack {
		e.f32(v)
	}
	return nil
}

// Unknown holds the raw body of a datagram whose tag is not recognised, so
// that copy tools can pass it through unchanged.
type Unknown struct {
	Header
	Body []byte
}

func (*Unknown) Kind() Kind { return KindUnknown }

func (u *Unknown) decode(d *decoder) error {
	u.Body = d.bytes(u.Body, d.remaining())
	return d.err
}

func (u *Unknown) encode(e *encoder) error {
	e.raw(u.Body)
	return nil
}

func boolInt(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
