package codec

// SensorCommon is the common sub-part of sensor datagrams (#SPO, #SCL,
// #SDE, #SHI, #SHA, #CPO).
type SensorCommon struct {
	SensorSystem uint16
	SensorStatus uint16
}

func (c *SensorCommon) decode(d *decoder) {
	start := d.off
	n := d.u16()
	c.SensorSystem = d.u16()
	c.SensorStatus = d.u16()
	d.skip(2)
	d.endPart(start, n)
}

func (c *SensorCommon) encode(e *encoder) error {
	slot := e.sizeSlot()
	e.u16(c.SensorSystem)
	e.u16(c.SensorStatus)
	e.u16(0)
	return e.patchSize(slot)
}

// Partition records how a multibeam datagram was split for transport.
// Only single-packet datagrams (NumOfDgms == 1) can be decoded.
type Partition struct {
	NumOfDgms uint16
	DgmNum    uint16
}

func (p *Partition) decode(d *decoder) {
	p.NumOfDgms = d.u16()
	p.DgmNum = d.u16()
}

func (p *Partition) encode(e *encoder) {
	n, i := p.NumOfDgms, p.DgmNum
	if n == 0 {
		n, i = 1, 1
	}
	e.u16(n)
	e.u16(i)
}

// PingCommon is the common sub-part of multibeam datagrams (#MRZ, #MWC,
// #XMT, #CHE). It identifies the ping and the receiver fan the datagram
// belongs to.
type PingCommon struct {
	PingCnt            uint16
	RxFansPerPing      uint8
	RxFanIndex         uint8
	SwathsPerPing      uint8
	SwathAlongPosition uint8
	TxTransducerInd    uint8
	RxTransducerInd    uint8
	NumRxTransducers   uint8
	AlgorithmType      uint8
}

func (c *PingCommon) decode(d *decoder) {
	start := d.off
	n := d.u16()
	c.PingCnt = d.u16()
	c.RxFansPerPing = d.u8()
	c.RxFanIndex = d.u8()
	c.SwathsPerPing = d.u8()
	c.SwathAlongPosition = d.u8()
	c.TxTransducerInd = d.u8()
	c.RxTransducerInd = d.u8()
	c.NumRxTransducers = d.u8()
	c.AlgorithmType = d.u8()
	d.endPart(start, n)
}

func (c *PingCommon) encode(e *encoder) error {
	slot := e.sizeSlot()
	e.u16(c.PingCnt)
	e.u8(c.RxFansPerPing)
	e.u8(c.RxFanIndex)
	e.u8(c.SwathsPerPing)
	e.u8(c.SwathAlongPosition)
	e.u8(c.TxTransducerInd)
	e.u8(c.RxTransducerInd)
	e.u8(c.NumRxTransducers)
	e.u8(c.AlgorithmType)
	return e.patchSize(slot)
}

// PingCounter returns the ping counter.
func (c *PingCommon) PingCounter() uint16 { return c.PingCnt }

// FanIndex returns this datagram's receiver fan, 0..FansPerPing-1. Fans
// are numbered across all swaths of the ping.
func (c *PingCommon) FanIndex() int { return int(c.RxFanIndex) }

// FansPerPing returns the number of receiver fans, and so of datagrams,
// that make up the ping.
func (c *PingCommon) FansPerPing() int { return int(c.RxFansPerPing) }

// PingFields is the ping identification of a multibeam datagram, read
// without decoding the rest of it.
type PingFields struct {
	PingCnt            uint16
	FansPerPing        uint8
	FanIndex           uint8
	SwathsPerPing      uint8
	SwathAlongPosition uint8
}

// PeekPingFields extracts the ping identification from the leading bytes
// of a ping fragment datagram. b must start at the datagram header; only
// HeaderSize+PartitionSize+8 bytes are needed.
func PeekPingFields(b []byte, kind Kind, order ByteOrder) (PingFields, bool) {
	var f PingFields
	switch kind {
	case KindMRZ, KindMWC, KindXMT:
		at := HeaderSize + PartitionSize
		if len(b) < at+8 {
			return f, false
		}
		f.PingCnt = order.Uint16(b[at+2:])
		f.FansPerPing = b[at+4]
		f.FanIndex = b[at+5]
		f.SwathsPerPing = b[at+6]
		f.SwathAlongPosition = b[at+7]
		return f, true
	case KindXMS:
		if len(b) < HeaderSize+2 {
			return f, false
		}
		f.PingCnt = order.Uint16(b[HeaderSize:])
		return f, true
	}
	return f, false
}
