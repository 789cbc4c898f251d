package codec

import "fmt"

// Phase encodings of #MWC beam samples.
const (
	PhaseNone    uint8 = 0
	PhaseLowRes  uint8 = 1 // int8 per sample
	PhaseHighRes uint8 = 2 // int16 per sample
)

const mwcTxSectorSize = 16

func mwcBeamSize(version uint8) int {
	if version >= 1 {
		return 16
	}
	return 12
}

// MWCTxSector describes one transmit sector of a water column datagram.
type MWCTxSector struct {
	TiltAngleReTx    float32
	CentreFreq       float32
	TxBeamWidthAlong float32
	TxSectorNum      uint16
}

// MWCRxInfo is the receiver information sub-part of #MWC.
type MWCRxInfo struct {
	PhaseFlag          uint8
	TVGFunctionApplied uint8
	TVGOffset          int8
	SampleFreq         float32
	SoundVelocity      float32
}

// MWCBeam is the water column of one receive beam. Phase holds int8 values
// widened to int16 when the datagram's phase flag is PhaseLowRes.
type MWCBeam struct {
	BeamPointAngReVertical        float32
	StartRangeSampleNum           uint16
	DetectedRangeInSamples        uint16
	BeamTxSectorNum               uint16
	DetectedRangeInSamplesHighRes float32 // version 1 and later
	Amplitude                     []int8
	Phase                         []int16
}

// MWC is a #MWC water column datagram.
type MWC struct {
	Header
	Partition Partition
	Common    PingCommon
	Heave     float32
	TxSectors []MWCTxSector
	RxInfo    MWCRxInfo
	Beams     []MWCBeam
}

func (*MWC) Kind() Kind { return KindMWC }

// PingCounter returns the ping counter.
func (m *MWC) PingCounter() uint16 { return m.Common.PingCnt }

// FanIndex returns the receiver fan index.
func (m *MWC) FanIndex() int { return int(m.Common.RxFanIndex) }

// FansPerPing returns the number of fans in the ping.
func (m *MWC) FansPerPing() int { return int(m.Common.RxFansPerPing) }

func (m *MWC) decode(d *decoder) error {
	m.Partition.decode(d)
	m.Common.decode(d)

	start := d.off
	n := d.u16()
	numSectors := int(d.u16())
	sectorSize := int(d.u16())
	d.skip(2)
	m.Heave = d.f32()
	d.endPart(start, n)
	if d.err != nil {
		return d.err
	}
	if numSectors > MaxTxPulses || (numSectors > 0 && sectorSize < 14) || numSectors*sectorSize > d.remaining() {
		return fmt.Errorf("%w: %d tx sectors of %d bytes do not fit", ErrBadData, numSectors, sectorSize)
	}
	m.TxSectors = resize(m.TxSectors, numSectors)
	for i := range m.TxSectors {
		s := &m.TxSectors[i]
		at := d.off
		s.TiltAngleReTx = d.f32()
		s.CentreFreq = d.f32()
		s.TxBeamWidthAlong = d.f32()
		s.TxSectorNum = d.u16()
		d.seek(at + sectorSize)
	}

	start = d.off
	n = d.u16()
	numBeams := int(d.u16())
	perBeam := int(d.u8())
	m.RxInfo.PhaseFlag = d.u8()
	m.RxInfo.TVGFunctionApplied = d.u8()
	m.RxInfo.TVGOffset = d.i8()
	m.RxInfo.SampleFreq = d.f32()
	m.RxInfo.SoundVelocity = d.f32()
	d.endPart(start, n)
	if d.err != nil {
		return d.err
	}
	if numBeams > MaxBeams || (numBeams > 0 && perBeam < 12) || d.off+numBeams*perBeam > d.end {
		return fmt.Errorf("%w: %d beams of %d bytes exceed length %d", ErrBadData, numBeams, perBeam, m.NumBytes)
	}
	if m.RxInfo.PhaseFlag > PhaseHighRes {
		return fmt.Errorf("%w: phase flag %d", ErrBadData, m.RxInfo.PhaseFlag)
	}

	m.Beams = resize(m.Beams, numBeams)
	for i := range m.Beams {
		b := &m.Beams[i]
		at := d.off
		b.BeamPointAngReVertical = d.f32()
		b.StartRangeSampleNum = d.u16()
		b.DetectedRangeInSamples = d.u16()
		b.BeamTxSectorNum = d.u16()
		numSamples := int(d.u16())
		b.DetectedRangeInSamplesHighRes = 0
		if m.Version >= 1 && d.has(at+perBeam, 4) {
			b.DetectedRangeInSamplesHighRes = d.f32()
		}
		d.seek(at + perBeam)
		if d.err != nil {
			return d.err
		}

		amp := d.take(numSamples)
		b.Amplitude = resize(b.Amplitude, len(amp))
		for j, v := range amp {
			b.Amplitude[j] = int8(v)
		}
		switch m.RxInfo.PhaseFlag {
		case PhaseLowRes:
			b.Phase = resize(b.Phase, numSamples)
			for j := range b.Phase {
				b.Phase[j] = int16(d.i8())
			}
		case PhaseHighRes:
			b.Phase = resize(b.Phase, numSamples)
			for j := range b.Phase {
				b.Phase[j] = d.i16()
			}
		default:
			b.Phase = b.Phase[:0]
		}
		if d.err != nil {
			return d.err
		}
	}
	return nil
}

func (m *MWC) encode(e *encoder) error {
	if len(m.TxSectors) > MaxTxPulses {
		return fmt.Errorf("%w: %d tx sectors exceed %d", ErrInconsistent, len(m.TxSectors), MaxTxPulses)
	}
	if m.RxInfo.PhaseFlag > PhaseHighRes {
		return fmt.Errorf("%w: phase flag %d", ErrInconsistent, m.RxInfo.PhaseFlag)
	}
	for i := range m.Beams {
		b := &m.Beams[i]
		if len(b.Amplitude) > 0xffff {
			return fmt.Errorf("%w: beam %d has %d samples", ErrInconsistent, i, len(b.Amplitude))
		}
		want := len(b.Amplitude)
		if m.RxInfo.PhaseFlag == PhaseNone {
			want = 0
		}
		if len(b.Phase) != want {
			return fmt.Errorf("%w: beam %d has %d amplitude and %d phase samples", ErrInconsistent, i, len(b.Amplitude), len(b.Phase))
		}
	}

	m.Partition.encode(e)
	if err := m.Common.encode(e); err != nil {
		return err
	}

	slot := e.sizeSlot()
	e.u16(uint16(len(m.TxSectors)))
	e.u16(mwcTxSectorSize)
	e.i16(0)
	e.f32(m.Heave)
	if err := e.patchSize(slot); err != nil {
		return err
	}
	for _, s := range m.TxSectors {
		e.f32(s.TiltAngleReTx)
		e.f32(s.CentreFreq)
		e.f32(s.TxBeamWidthAlong)
		e.u16(s.TxSectorNum)
		e.i16(0)
	}

	slot = e.sizeSlot()
	e.u16(uint16(len(m.Beams)))
	e.u8(uint8(mwcBeamSize(m.Version)))
	e.u8(m.RxInfo.PhaseFlag)
	e.u8(m.RxInfo.TVGFunctionApplied)
	e.i8(m.RxInfo.TVGOffset)
	e.f32(m.RxInfo.SampleFreq)
	e.f32(m.RxInfo.SoundVelocity)
	if err := e.patchSize(slot); err != nil {
		return err
	}

	for i := range m.Beams {
		b := &m.Beams[i]
		e.f32(b.BeamPointAngReVertical)
		e.u16(b.StartRangeSampleNum)
		e.u16(b.DetectedRangeInSamples)
		e.u16(b.BeamTxSectorNum)
		e.u16(uint16(len(b.Amplitude)))
		if m.Version >= 1 {
			e.f32(b.DetectedRangeInSamplesHighRes)
		}
		for _, v := range b.Amplitude {
			e.i8(v)
		}
		switch m.RxInfo.PhaseFlag {
		case PhaseLowRes:
			for _, v := range b.Phase {
				e.i8(int8(v))
			}
		case PhaseHighRes:
			for _, v := range b.Phase {
				e.i16(v)
			}
		}
	}
	return nil
}
