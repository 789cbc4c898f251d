package codec

import "fmt"

// Fixed layout sizes of sensor datagrams: the offset at which each kind's
// trailing raw sensor data begins, plus the trailing length field. The raw
// payload length is NumBytes minus this constant.
const (
	SPOVarOffset = HeaderSize + 8 + 40 + EndSize
	CPOVarOffset = SPOVarOffset
	SCLVarOffset = HeaderSize + 8 + 8 + EndSize
	SDEVarOffset = HeaderSize + 8 + 12 + EndSize // version 0, without position
	SHIVarOffset = HeaderSize + 8 + 6 + EndSize
)

// Position is the body shared by #SPO and #CPO.
type Position struct {
	Header
	Common                SensorCommon
	TimeFromSensorSec     uint32
	TimeFromSensorNanosec uint32
	PosFixQuality         float32 // metres
	Latitude              float64 // degrees
	Longitude             float64 // degrees
	SpeedOverGround       float32 // m/s
	CourseOverGround      float32 // degrees
	EllipsoidHeight       float32 // metres, re reference point
	SensorData            []byte  // raw sensor sentence
}

// SensorTime returns the time stamp reported by the position sensor.
func (p *Position) SensorTime() float64 {
	return float64(p.TimeFromSensorSec) + float64(p.TimeFromSensorNanosec)*1e-9
}

func (p *Position) decode(d *decoder) error {
	p.Common.decode(d)
	p.TimeFromSensorSec = d.u32()
	p.TimeFromSensorNanosec = d.u32()
	p.PosFixQuality = d.f32()
	p.Latitude = d.f64()
	p.Longitude = d.f64()
	p.SpeedOverGround = d.f32()
	p.CourseOverGround = d.f32()
	p.EllipsoidHeight = d.f32()
	p.SensorData = d.bytes(p.SensorData, d.remaining())
	return d.err
}

func (p *Position) encode(e *encoder) error {
	if err := p.Common.encode(e); err != nil {
		return err
	}
	e.u32(p.TimeFromSensorSec)
	e.u32(p.TimeFromSensorNanosec)
	e.f32(p.PosFixQuality)
	e.f64(p.Latitude)
	e.f64(p.Longitude)
	e.f32(p.SpeedOverGround)
	e.f32(p.CourseOverGround)
	e.f32(p.EllipsoidHeight)
	e.raw(p.SensorData)
	return nil
}

// SPO is a #SPO position datagram.
type SPO struct{ Position }

func (*SPO) Kind() Kind { return KindSPO }

// CPO is a #CPO compatibility position datagram.
type CPO struct{ Position }

func (*CPO) Kind() Kind { return KindCPO }

// KMBinary is one attitude and navigation sample in Kongsberg binary
// format.
type KMBinary struct {
	Type            [4]byte // "#KMB"
	Version         uint16
	TimeSec         uint32
	TimeNanosec     uint32
	Status          uint32
	Latitude        float64
	Longitude       float64
	EllipsoidHeight float32
	Roll            float32
	Pitch           float32
	Heading         float32
	Heave           float32
	RollRate        float32
	PitchRate       float32
	YawRate         float32
	VelNorth        float32
	VelEast         float32
	VelDown         float32
	LatitudeError   float32
	LongitudeError  float32
	EllipsoidError  float32
	RollError       float32
	PitchError      float32
	HeadingError    float32
	HeaveError      float32
	NorthAccel      float32
	EastAccel       float32
	DownAccel       float32
}

// Time returns the sample time in seconds.
func (k *KMBinary) Time() float64 {
	return float64(k.TimeSec) + float64(k.TimeNanosec)*1e-9
}

// DelayedHeave is the delayed heave part of an #SKM sample.
type DelayedHeave struct {
	TimeSec     uint32
	TimeNanosec uint32
	Heave       float32
}

// SKMSample is one attitude sample: the KM binary block and its delayed
// heave.
type SKMSample struct {
	KM      KMBinary
	Delayed DelayedHeave
}

// SKM is a #SKM attitude and navigation datagram.
type SKM struct {
	Header
	SensorSystem       uint8
	SensorStatus       uint8
	SensorInputFormat  uint16
	SensorDataContents uint16
	Samples            []SKMSample
}

func (*SKM) Kind() Kind { return KindSKM }

var kmbTag = [4]byte{'#', 'K', 'M', 'B'}

func (s *SKM) decode(d *decoder) error {
	start := d.off
	n := d.u16()
	s.SensorSystem = d.u8()
	s.SensorStatus = d.u8()
	s.SensorInputFormat = d.u16()
	count := int(d.u16())
	perSample := int(d.u16())
	s.SensorDataContents = d.u16()
	d.endPart(start, n)
	if d.err != nil {
		return d.err
	}
	if count > MaxAttitudeSamples || count*perSample > d.remaining() {
		return fmt.Errorf("%w: %d attitude samples of %d bytes exceed datagram", ErrBadData, count, perSample)
	}
	s.Samples = resize(s.Samples, count)
	for i := range s.Samples {
		sampleStart := d.off
		km := &s.Samples[i].KM
		km.Type = d.tag()
		kmBytes := int(d.u16())
		km.Version = d.u16()
		km.TimeSec = d.u32()
		km.TimeNanosec = d.u32()
		km.Status = d.u32()
		km.Latitude = d.f64()
		km.Longitude = d.f64()
		km.EllipsoidHeight = d.f32()
		km.Roll = d.f32()
		km.Pitch = d.f32()
		km.Heading = d.f32()
		km.Heave = d.f32()
		km.RollRate = d.f32()
		km.PitchRate = d.f32()
		km.YawRate = d.f32()
		km.VelNorth = d.f32()
		km.VelEast = d.f32()
		km.VelDown = d.f32()
		km.LatitudeError = d.f32()
		km.LongitudeError = d.f32()
		km.EllipsoidError = d.f32()
		km.RollError = d.f32()
		km.PitchError = d.f32()
		km.HeadingError = d.f32()
		km.HeaveError = d.f32()
		km.NorthAccel = d.f32()
		km.EastAccel = d.f32()
		km.DownAccel = d.f32()
		d.seek(sampleStart + kmBytes)
		dh := &s.Samples[i].Delayed
		dh.TimeSec = d.u32()
		dh.TimeNanosec = d.u32()
		dh.Heave = d.f32()
		d.seek(sampleStart + perSample)
	}
	return d.err
}

func (s *SKM) encode(e *encoder) error {
	const kmBytes = 120
	const perSample = kmBytes + 12
	if len(s.Samples) > MaxAttitudeSamples {
		return fmt.Errorf("%w: %d attitude samples exceed %d", ErrInconsistent, len(s.Samples), MaxAttitudeSamples)
	}
	slot := e.sizeSlot()
	e.u8(s.SensorSystem)
	e.u8(s.SensorStatus)
	e.u16(s.SensorInputFormat)
	e.u16(uint16(len(s.Samples)))
	e.u16(perSample)
	e.u16(s.SensorDataContents)
	if err := e.patchSize(slot); err != nil {
		return err
	}
	for i := range s.Samples {
		km := &s.Samples[i].KM
		tag := km.Type
		if tag == [4]byte{} {
			tag = kmbTag
		}
		e.raw(tag[:])
		e.u16(kmBytes)
		e.u16(km.Version)
		e.u32(km.TimeSec)
		e.u32(km.TimeNanosec)
		e.u32(km.Status)
		e.f64(km.Latitude)
		e.f64(km.Longitude)
		for _, v := range [...]float32{
			km.EllipsoidHeight, km.Roll, km.Pitch, km.Heading, km.Heave,
			km.RollRate, km.PitchRate, km.YawRate,
			km.VelNorth, km.VelEast, km.VelDown,
			km.LatitudeError, km.LongitudeError, km.EllipsoidError,
			km.RollError, km.PitchError, km.HeadingError, km.HeaveError,
			km.NorthAccel, km.EastAccel, km.DownAccel,
		} {
			e.f32(v)
		}
		dh := &s.Samples[i].Delayed
		e.u32(dh.TimeSec)
		e.u32(dh.TimeNanosec)
		e.f32(dh.Heave)
	}
	return nil
}

// SVPPoint is one sound velocity profile sample.
type SVPPoint struct {
	Depth         float32 // metres
	SoundVelocity float32 // m/s
	Temperature   float32 // degrees C
	Salinity      float32
}

const svpPointSize = 20

// SVP is a #SVP sound velocity profile datagram.
type SVP struct {
	Header
	SensorFormat   [4]byte
	ProfileTimeSec uint32 // time the profile was taken
	Latitude       float64
	Longitude      float64
	Points         []SVPPoint
}

func (*SVP) Kind() Kind { return KindSVP }

func (s *SVP) decode(d *decoder) error {
	start := d.off
	n := d.u16()
	count := int(d.u16())
	s.SensorFormat = d.tag()
	s.ProfileTimeSec = d.u32()
	s.Latitude = d.f64()
	s.Longitude = d.f64()
	d.endPart(start, n)
	if d.err != nil {
		return d.err
	}
	if count > MaxSVPPoints || count*svpPointSize > d.remaining() {
		return fmt.Errorf("%w: %d profile points exceed datagram", ErrBadData, count)
	}
	s.Points = resize(s.Points, count)
	for i := range s.Points {
		p := &s.Points[i]
		p.Depth = d.f32()
		p.SoundVelocity = d.f32()
		d.skip(4)
		p.Temperature = d.f32()
		p.Salinity = d.f32()
	}
	return d.err
}

func (s *SVP) encode(e *encoder) error {
	if len(s.Points) > MaxSVPPoints {
		return fmt.Errorf("%w: %d profile points exceed %d", ErrInconsistent, len(s.Points), MaxSVPPoints)
	}
	slot := e.sizeSlot()
	e.u16(uint16(len(s.Points)))
	e.raw(s.SensorFormat[:])
	e.u32(s.ProfileTimeSec)
	e.f64(s.Latitude)
	e.f64(s.Longitude)
	if err := e.patchSize(slot); err != nil {
		return err
	}
	for _, p := range s.Points {
		e.f32(p.Depth)
		e.f32(p.SoundVelocity)
		e.u32(0)
		e.f32(p.Temperature)
		e.f32(p.Salinity)
	}
	return nil
}

// SVTSample is one sound velocity at transducer sample.
type SVTSample struct {
	TimeSec       uint32
	TimeNanosec   uint32
	SoundVelocity float32
	Temperature   float32
	Pressure      float32 // Pa
	Salinity      float32
}

const svtSampleSize = 24

// SVT is a #SVT sound velocity at transducer datagram.
type SVT struct {
	Header
	SensorStatus        uint16
	SensorInputFormat   uint16
	SensorDataContents  uint16
	FilterTime          float32 // seconds
	SoundVelocityOffset float32 // m/s
	Samples             []SVTSample
}

func (*SVT) Kind() Kind { return KindSVT }

func (s *SVT) decode(d *decoder) error {
	start := d.off
	n := d.u16()
	s.SensorStatus = d.u16()
	s.SensorInputFormat = d.u16()
	count := int(d.u16())
	perSample := int(d.u16())
	s.SensorDataContents = d.u16()
	s.FilterTime = d.f32()
	s.SoundVelocityOffset = d.f32()
	d.endPart(start, n)
	if d.err != nil {
		return d.err
	}
	if perSample < svtSampleSize || count*perSample > d.remaining() {
		return fmt.Errorf("%w: %d samples of %d bytes do not fit", ErrBadData, count, perSample)
	}
	s.Samples = resize(s.Samples, count)
	for i := range s.Samples {
		sampleStart := d.off
		v := &s.Samples[i]
		v.TimeSec = d.u32()
		v.TimeNanosec = d.u32()
		v.SoundVelocity = d.f32()
		v.Temperature = d.f32()
		v.Pressure = d.f32()
		v.Salinity = d.f32()
		d.seek(sampleStart + perSample)
	}
	return d.err
}

func (s *SVT) encode(e *encoder) error {
	slot := e.sizeSlot()
	e.u16(s.SensorStatus)
	e.u16(s.SensorInputFormat)
	e.u16(uint16(len(s.Samples)))
	e.u16(svtSampleSize)
	e.u16(s.SensorDataContents)
	e.f32(s.FilterTime)
	e.f32(s.SoundVelocityOffset)
	if err := e.patchSize(slot); err != nil {
		return err
	}
	for _, v := range s.Samples {
		e.u32(v.TimeSec)
		e.u32(v.TimeNanosec)
		e.f32(v.SoundVelocity)
		e.f32(v.Temperature)
		e.f32(v.Pressure)
		e.f32(v.Salinity)
	}
	return nil
}

// SCL is a #SCL clock datagram.
type SCL struct {
	Header
	Common     SensorCommon
	Offset     float32 // seconds
	ClockDevPU int32   // nanoseconds
	SensorData []byte
}

func (*SCL) Kind() Kind { return KindSCL }

func (s *SCL) decode(d *decoder) error {
	s.Common.decode(d)
	s.Offset = d.f32()
	s.ClockDevPU = d.i32()
	s.SensorData = d.bytes(s.SensorData, d.remaining())
	return d.err
}

func (s *SCL) encode(e *encoder) error {
	if err := s.Common.encode(e); err != nil {
		return err
	}
	e.f32(s.Offset)
	e.i32(s.ClockDevPU)
	e.raw(s.SensorData)
	return nil
}

// SDE is a #SDE sensor depth datagram. Latitude and Longitude exist from
// datagram version 1.
type SDE struct {
	Header
	Common     SensorCommon
	DepthUsed  float32 // metres
	Offset     float32
	Scale      float32
	Latitude   float64
	Longitude  float64
	SensorData []byte
}

func (*SDE) Kind() Kind { return KindSDE }

func (s *SDE) decode(d *decoder) error {
	s.Common.decode(d)
	s.DepthUsed = d.f32()
	s.Offset = d.f32()
	s.Scale = d.f32()
	s.Latitude, s.Longitude = 0, 0
	if s.Version >= 1 {
		s.Latitude = d.f64()
		s.Longitude = d.f64()
	}
	s.SensorData = d.bytes(s.SensorData, d.remaining())
	return d.err
}

func (s *SDE) encode(e *encoder) error {
	if err := s.Common.encode(e); err != nil {
		return err
	}
	e.f32(s.DepthUsed)
	e.f32(s.Offset)
	e.f32(s.Scale)
	if s.Version >= 1 {
		e.f64(s.Latitude)
		e.f64(s.Longitude)
	}
	e.raw(s.SensorData)
	return nil
}

// SHI is a #SHI sensor height datagram.
type SHI struct {
	Header
	Common     SensorCommon
	SensorType uint16
	HeightUsed float32 // metres
	SensorData []byte
}

func (*SHI) Kind() Kind { return KindSHI }

func (s *SHI) decode(d *decoder) error {
	s.Common.decode(d)
	s.SensorType = d.u16()
	s.HeightUsed = d.f32()
	s.SensorData = d.bytes(s.SensorData, d.remaining())
	return d.err
}

func (s *SHI) encode(e *encoder) error {
	if err := s.Common.encode(e); err != nil {
		return err
	}
	e.u16(s.SensorType)
	e.f32(s.HeightUsed)
	e.raw(s.SensorData)
	return nil
}

// HeadingSample is one #SHA sample.
type HeadingSample struct {
	TimeSinceRecStart uint32  // nanoseconds after the datagram time
	Heading           float32 // degrees, corrected
	SensorData        []byte
}

// SHA is a #SHA sensor heading datagram. Every sample carries the same
// number of raw sensor bytes.
type SHA struct {
	Header
	Common  SensorCommon
	Samples []HeadingSample
}

func (*SHA) Kind() Kind { return KindSHA }

// SampleTime returns the absolute time of sample i in seconds.
func (s *SHA) SampleTime(i int) float64 {
	return s.Header.Time() + float64(s.Samples[i].TimeSinceRecStart)*1e-9
}

func (s *SHA) decode(d *decoder) error {
	s.Common.decode(d)
	start := d.off
	n := d.u16()
	count := int(d.u16())
	perSample := int(d.u16())
	rawBytes := int(d.u16())
	d.endPart(start, n)
	if d.err != nil {
		return d.err
	}
	if count > MaxHeadingSamples || perSample < 8+rawBytes || count*perSample > d.remaining() {
		return fmt.Errorf("%w: %d heading samples of %d bytes do not fit", ErrBadData, count, perSample)
	}
	s.Samples = resize(s.Samples, count)
	for i := range s.Samples {
		sampleStart := d.off
		h := &s.Samples[i]
		h.TimeSinceRecStart = d.u32()
		h.Heading = d.f32()
		h.SensorData = d.bytes(h.SensorData, rawBytes)
		d.seek(sampleStart + perSample)
	}
	return d.err
}

func (s *SHA) encode(e *encoder) error {
	if len(s.Samples) > MaxHeadingSamples {
		return fmt.Errorf("%w: %d heading samples exceed %d", ErrInconsistent, len(s.Samples), MaxHeadingSamples)
	}
	rawBytes := 0
	if len(s.Samples) > 0 {
		rawBytes = len(s.Samples[0].SensorData)
	}
	for i := range s.Samples {
		if len(s.Samples[i].SensorData) != rawBytes {
			return fmt.Errorf("%w: heading sample %d has %d raw bytes, want %d", ErrInconsistent, i, len(s.Samples[i].SensorData), rawBytes)
		}
	}
	if err := s.Common.encode(e); err != nil {
		return err
	}
	slot := e.sizeSlot()
	e.u16(uint16(len(s.Samples)))
	e.u16(uint16(8 + rawBytes))
	e.u16(uint16(rawBytes))
	if err := e.patchSize(slot); err != nil {
		return err
	}
	for _, h := range s.Samples {
		e.u32(h.TimeSinceRecStart)
		e.f32(h.Heading)
		e.raw(h.SensorData)
	}
	return nil
}

// CHE is a #CHE compatibility heave datagram.
type CHE struct {
	Header
	Common PingCommon
	Heave  float32 // metres
}

func (*CHE) Kind() Kind { return KindCHE }

func (c *CHE) decode(d *decoder) error {
	c.Common.decode(d)
	c.Heave = d.f32()
	return d.err
}

func (c *CHE) encode(e *encoder) error {
	if err := c.Common.encode(e); err != nil {
		return err
	}
	e.f32(c.Heave)
	return nil
}

// resize returns s with length n, reusing its backing array when it is
// large enough. Reused elements keep their own slices so nested buffers
// are recycled too.
func resize[T any](s []T, n int) []T {
	if cap(s) >= n {
		return s[:n]
	}
	out := make([]T, n)
	copy(out, s[:cap(s)])
	return out
}
