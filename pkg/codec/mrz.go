package codec

import "fmt"

// BeamFlag is the per-sounding quality marker. Bit values follow the
// MB-System beam flag convention.
type BeamFlag uint8

// Beam flag bits.
const (
	BeamFlagNone   BeamFlag = 0x00
	BeamFlagFlag   BeamFlag = 0x01
	BeamFlagNull   BeamFlag = 0x02
	BeamFlagManual BeamFlag = 0x04
	BeamFlagFilter BeamFlag = 0x08
	BeamFlagSonar  BeamFlag = 0x10
)

// QualityFactorThreshold is the quality factor above which a sounding is
// flagged by the sonar.
const QualityFactorThreshold = 50

// IsNull reports whether the sounding has no valid detection.
func (f BeamFlag) IsNull() bool { return f&BeamFlagNull != 0 }

// IsFlagged reports whether the sounding was rejected.
func (f BeamFlag) IsFlagged() bool { return f&BeamFlagFlag != 0 }

// IsGood reports whether the sounding is neither null nor flagged.
func (f BeamFlag) IsGood() bool { return !f.IsNull() && !f.IsFlagged() }

// DeriveBeamFlag computes the beam flag of a sounding from its detection
// type and quality factor.
func DeriveBeamFlag(detectionType uint8, qualityFactor float32) BeamFlag {
	switch {
	case detectionType >= 2:
		return BeamFlagNull
	case detectionType == 1:
		return BeamFlagFlag | BeamFlagSonar
	case qualityFactor > QualityFactorThreshold:
		return BeamFlagFlag | BeamFlagSonar
	}
	return BeamFlagNone
}

// MRZPingInfo is the ping information sub-part of #MRZ. The last four
// fields exist from datagram version 1.
type MRZPingInfo struct {
	PingRate                 float32 // Hz
	BeamSpacing              uint8
	DepthMode                uint8
	SubDepthMode             uint8
	DistanceBtwSwath         uint8
	DetectionMode            uint8
	PulseForm                uint8
	FrequencyMode            float32
	FreqRangeLowLim          float32
	FreqRangeHighLim         float32
	MaxTotalTxPulseLength    float32
	MaxEffTxPulseLength      float32
	MaxEffTxBandWidth        float32
	AbsCoeff                 float32 // dB/km
	PortSectorEdge           float32
	StarbSectorEdge          float32
	PortMeanCovDeg           float32
	StarbMeanCovDeg          float32
	PortMeanCovM             int16
	StarbMeanCovM            int16
	ModeAndStabilisation     uint8
	RuntimeFilter1           uint8
	RuntimeFilter2           uint16
	PipeTrackingStatus       uint32
	TransmitArraySizeUsed    float32
	ReceiveArraySizeUsed     float32
	TransmitPower            float32
	SLRampUpTimeRemaining    uint16
	YawAngle                 float32
	HeadingVessel            float32
	SoundSpeedAtTxDepth      float32
	TxTransducerDepth        float32
	ZWaterLevelReRefPoint    float32
	XKmallToAll              float32
	YKmallToAll              float32
	LatLongInfo              uint8
	PosSensorStatus          uint8
	AttitudeSensorStatus     uint8
	Latitude                 float64
	Longitude                float64
	EllipsoidHeight          float32
	BSCorrectionOffset       float32
	LambertsLawApplied       uint8
	IceWindow                uint8
	ActiveModes              uint16
}

// MRZTxSector describes one transmit sector. The last three fields exist
// from datagram version 1.
type MRZTxSector struct {
	TxSectorNumb          uint8
	TxArrNumber           uint8
	TxSubArray            uint8
	SectorTransmitDelay   float32
	TiltAngleReTx         float32
	TxNominalSourceLevel  float32
	TxFocusRange          float32
	CentreFreq            float32
	SignalBandWidth       float32
	TotalSignalLength     float32
	PulseShading          uint8
	SignalWaveForm        uint8
	HighVoltageLevel      float32
	SectorTrackingCorr    float32
	EffectiveSignalLength float32
}

// MRZRxInfo is the receiver information sub-part of #MRZ.
// NumSoundingsMaxMain is derived from the sounding array on encode.
type MRZRxInfo struct {
	NumSoundingsValidMain   uint16
	WCSampleRate            float32
	SeabedImageSampleRate   float32
	BSNormal                float32
	BSOblique               float32
	ExtraDetectionAlarmFlag uint16
	NumExtraDetections      uint16
}

// MRZExtraDetClass describes one extra detection class.
type MRZExtraDetClass struct {
	NumExtraDetInClass uint16
	AlarmFlag          uint8
}

// MRZSounding is one bottom detection.
type MRZSounding struct {
	SoundingIndex              uint16
	TxSectorNumb               uint8
	DetectionType              uint8
	DetectionMethod            uint8
	RejectionInfo1             uint8
	RejectionInfo2             uint8
	PostProcessingInfo         uint8
	DetectionClass             uint8
	DetectionConfidenceLevel   uint8
	BeamflagEnabled            uint8 // non-zero when Beamflag was set by an editor
	Beamflag                   BeamFlag
	RangeFactor                float32
	QualityFactor              float32
	DetectionUncertaintyVer    float32
	DetectionUncertaintyHor    float32
	DetectionWindowLength      float32
	EchoLength                 float32
	WCBeamNumb                 uint16
	WCRangeSamples             uint16
	WCNomBeamAngleAcross       float32
	MeanAbsCoeff               float32
	Reflectivity1              float32
	Reflectivity2              float32
	ReceiverSensitivityApplied float32
	SourceLevelApplied         float32
	BSCalibration              float32
	TVG                        float32
	BeamAngleReRx              float32
	BeamAngleCorrection        float32
	TwoWayTravelTime           float32
	TwoWayTravelTimeCorrection float32
	DeltaLatitude              float32
	DeltaLongitude             float32
	ZReRefPoint                float32
	YReRefPoint                float32
	XReRefPoint                float32
	BeamIncAngleAdj            float32
	RealTimeCleanInfo          uint16
	SIStartRange               uint16
	SICentreSample             uint16
	SINumSamples               uint16
}

const (
	mrzSoundingSize     = 120
	mrzExtraDetInfoSize = 4
)

func mrzTxSectorSize(version uint8) int {
	if version >= 1 {
		return 48
	}
	return 36
}

// MRZ is a #MRZ range and depth datagram: the bathymetry of one receiver
// fan of a ping.
type MRZ struct {
	Header
	Partition       Partition
	Common          PingCommon
	PingInfo        MRZPingInfo
	TxSectors       []MRZTxSector
	RxInfo          MRZRxInfo
	ExtraDetClasses []MRZExtraDetClass
	Soundings       []MRZSounding
	SISamples       []int16 // seabed image samples, SINumSamples per sounding
}

func (*MRZ) Kind() Kind { return KindMRZ }

// PingCounter returns the ping counter.
func (m *MRZ) PingCounter() uint16 { return m.Common.PingCnt }

// FanIndex returns the receiver fan index.
func (m *MRZ) FanIndex() int { return int(m.Common.RxFanIndex) }

// FansPerPing returns the number of fans in the ping.
func (m *MRZ) FansPerPing() int { return int(m.Common.RxFansPerPing) }

// NumMainSoundings is the number of soundings that are not extra
// detections.
func (m *MRZ) NumMainSoundings() int {
	return len(m.Soundings) - int(m.RxInfo.NumExtraDetections)
}

func (m *MRZ) decode(d *decoder) error {
	m.Partition.decode(d)
	m.Common.decode(d)
	numSectors, sectorSize := m.decodePingInfo(d)
	if d.err != nil {
		return d.err
	}
	if numSectors > MaxTxPulses || (numSectors > 0 && sectorSize < 4) || numSectors*sectorSize > d.remaining() {
		return fmt.Errorf("%w: %d tx sectors of %d bytes do not fit", ErrBadData, numSectors, sectorSize)
	}
	m.TxSectors = resize(m.TxSectors, numSectors)
	for i := range m.TxSectors {
		start := d.off
		m.decodeTxSector(d, &m.TxSectors[i], start+sectorSize)
		d.seek(start + sectorSize)
	}

	rxStart := d.off
	rxBytes := d.u16()
	numMain := int(d.u16())
	m.RxInfo.NumSoundingsValidMain = d.u16()
	perSounding := int(d.u16())
	m.RxInfo.WCSampleRate = d.f32()
	m.RxInfo.SeabedImageSampleRate = d.f32()
	m.RxInfo.BSNormal = d.f32()
	m.RxInfo.BSOblique = d.f32()
	m.RxInfo.ExtraDetectionAlarmFlag = d.u16()
	m.RxInfo.NumExtraDetections = d.u16()
	numClasses := int(d.u16())
	perClass := int(d.u16())
	d.endPart(rxStart, rxBytes)
	if d.err != nil {
		return d.err
	}

	classStart := d.off
	soundingStart := classStart + numClasses*perClass
	numSoundings := numMain + int(m.RxInfo.NumExtraDetections)
	if perSounding < mrzSoundingSize || perClass < mrzExtraDetInfoSize ||
		soundingStart+numSoundings*perSounding > d.end {
		return fmt.Errorf("%w: %d soundings of %d bytes after offset %d exceed length %d",
			ErrBadData, numSoundings, perSounding, soundingStart, m.NumBytes)
	}
	if numClasses > MaxExtraDetClasses || numSoundings > MaxBeams+MaxExtraDetections {
		return fmt.Errorf("%w: %d soundings in %d extra classes exceed capacity", ErrBadData, numSoundings, numClasses)
	}

	m.ExtraDetClasses = resize(m.ExtraDetClasses, numClasses)
	for i := range m.ExtraDetClasses {
		start := d.off
		c := &m.ExtraDetClasses[i]
		c.NumExtraDetInClass = d.u16()
		d.skip(1)
		c.AlarmFlag = d.u8()
		d.seek(start + perClass)
	}

	numSI := 0
	m.Soundings = resize(m.Soundings, numSoundings)
	for i := range m.Soundings {
		start := d.off
		s := &m.Soundings[i]
		decodeSounding(d, s)
		if s.BeamflagEnabled == 0 {
			s.Beamflag = DeriveBeamFlag(s.DetectionType, s.QualityFactor)
		}
		numSI += int(s.SINumSamples)
		d.seek(start + perSounding)
	}
	if d.err != nil {
		return d.err
	}
	if numSI > MaxSidescanSamples || numSI*2 > d.remaining() {
		return fmt.Errorf("%w: %d seabed image samples exceed datagram", ErrBadData, numSI)
	}
	m.SISamples = resize(m.SISamples, numSI)
	for i := range m.SISamples {
		m.SISamples[i] = d.i16()
	}
	return d.err
}

func (m *MRZ) decodePingInfo(d *decoder) (numSectors, sectorSize int) {
	p := &m.PingInfo
	start := d.off
	n := d.u16()
	limit := start + int(n)
	d.skip(2)
	p.PingRate = d.f32()
	p.BeamSpacing = d.u8()
	p.DepthMode = d.u8()
	p.SubDepthMode = d.u8()
	p.DistanceBtwSwath = d.u8()
	p.DetectionMode = d.u8()
	p.PulseForm = d.u8()
	d.skip(2)
	p.FrequencyMode = d.f32()
	p.FreqRangeLowLim = d.f32()
	p.FreqRangeHighLim = d.f32()
	p.MaxTotalTxPulseLength = d.f32()
	p.MaxEffTxPulseLength = d.f32()
	p.MaxEffTxBandWidth = d.f32()
	p.AbsCoeff = d.f32()
	p.PortSectorEdge = d.f32()
	p.StarbSectorEdge = d.f32()
	p.PortMeanCovDeg = d.f32()
	p.StarbMeanCovDeg = d.f32()
	p.PortMeanCovM = d.i16()
	p.StarbMeanCovM = d.i16()
	p.ModeAndStabilisation = d.u8()
	p.RuntimeFilter1 = d.u8()
	p.RuntimeFilter2 = d.u16()
	p.PipeTrackingStatus = d.u32()
	p.TransmitArraySizeUsed = d.f32()
	p.ReceiveArraySizeUsed = d.f32()
	p.TransmitPower = d.f32()
	p.SLRampUpTimeRemaining = d.u16()
	d.skip(2)
	p.YawAngle = d.f32()
	numSectors = int(d.u16())
	sectorSize = int(d.u16())
	p.HeadingVessel = d.f32()
	p.SoundSpeedAtTxDepth = d.f32()
	p.TxTransducerDepth = d.f32()
	p.ZWaterLevelReRefPoint = d.f32()
	p.XKmallToAll = d.f32()
	p.YKmallToAll = d.f32()
	p.LatLongInfo = d.u8()
	p.PosSensorStatus = d.u8()
	p.AttitudeSensorStatus = d.u8()
	d.skip(1)
	p.Latitude = d.f64()
	p.Longitude = d.f64()
	p.EllipsoidHeight = d.f32()
	p.BSCorrectionOffset, p.LambertsLawApplied, p.IceWindow, p.ActiveModes = 0, 0, 0, 0
	if m.Version >= 1 && d.has(limit, 8) {
		p.BSCorrectionOffset = d.f32()
		p.LambertsLawApplied = d.u8()
		p.IceWindow = d.u8()
		p.ActiveModes = d.u16()
	}
	d.endPart(start, n)
	return numSectors, sectorSize
}

func (m *MRZ) decodeTxSector(d *decoder, s *MRZTxSector, limit int) {
	s.TxSectorNumb = d.u8()
	s.TxArrNumber = d.u8()
	s.TxSubArray = d.u8()
	d.skip(1)
	s.SectorTransmitDelay = d.f32()
	s.TiltAngleReTx = d.f32()
	s.TxNominalSourceLevel = d.f32()
	s.TxFocusRange = d.f32()
	s.CentreFreq = d.f32()
	s.SignalBandWidth = d.f32()
	s.TotalSignalLength = d.f32()
	s.PulseShading = d.u8()
	s.SignalWaveForm = d.u8()
	d.skip(2)
	s.HighVoltageLevel, s.SectorTrackingCorr, s.EffectiveSignalLength = 0, 0, 0
	if m.Version >= 1 && d.has(limit, 12) {
		s.HighVoltageLevel = d.f32()
		s.SectorTrackingCorr = d.f32()
		s.EffectiveSignalLength = d.f32()
	}
}

func decodeSounding(d *decoder, s *MRZSounding) {
	s.SoundingIndex = d.u16()
	s.TxSectorNumb = d.u8()
	s.DetectionType = d.u8()
	s.DetectionMethod = d.u8()
	s.RejectionInfo1 = d.u8()
	s.RejectionInfo2 = d.u8()
	s.PostProcessingInfo = d.u8()
	s.DetectionClass = d.u8()
	s.DetectionConfidenceLevel = d.u8()
	s.BeamflagEnabled = d.u8()
	s.Beamflag = BeamFlag(d.u8())
	s.RangeFactor = d.f32()
	s.QualityFactor = d.f32()
	s.DetectionUncertaintyVer = d.f32()
	s.DetectionUncertaintyHor = d.f32()
	s.DetectionWindowLength = d.f32()
	s.EchoLength = d.f32()
	s.WCBeamNumb = d.u16()
	s.WCRangeSamples = d.u16()
	s.WCNomBeamAngleAcross = d.f32()
	s.MeanAbsCoeff = d.f32()
	s.Reflectivity1 = d.f32()
	s.Reflectivity2 = d.f32()
	s.ReceiverSensitivityApplied = d.f32()
	s.SourceLevelApplied = d.f32()
	s.BSCalibration = d.f32()
	s.TVG = d.f32()
	s.BeamAngleReRx = d.f32()
	s.BeamAngleCorrection = d.f32()
	s.TwoWayTravelTime = d.f32()
	s.TwoWayTravelTimeCorrection = d.f32()
	s.DeltaLatitude = d.f32()
	s.DeltaLongitude = d.f32()
	s.ZReRefPoint = d.f32()
	s.YReRefPoint = d.f32()
	s.XReRefPoint = d.f32()
	s.BeamIncAngleAdj = d.f32()
	s.RealTimeCleanInfo = d.u16()
	s.SIStartRange = d.u16()
	s.SICentreSample = d.u16()
	s.SINumSamples = d.u16()
}

func (m *MRZ) encode(e *encoder) error {
	numMain := m.NumMainSoundings()
	if numMain < 0 {
		return fmt.Errorf("%w: %d extra detections but only %d soundings", ErrInconsistent, m.RxInfo.NumExtraDetections, len(m.Soundings))
	}
	numSI := 0
	for i := range m.Soundings {
		numSI += int(m.Soundings[i].SINumSamples)
	}
	if numSI != len(m.SISamples) {
		return fmt.Errorf("%w: soundings declare %d seabed image samples, have %d", ErrInconsistent, numSI, len(m.SISamples))
	}

	m.Partition.encode(e)
	if err := m.Common.encode(e); err != nil {
		return err
	}
	if err := m.encodePingInfo(e); err != nil {
		return err
	}
	for i := range m.TxSectors {
		m.encodeTxSector(e, &m.TxSectors[i])
	}

	r := &m.RxInfo
	slot := e.sizeSlot()
	e.u16(uint16(numMain))
	e.u16(r.NumSoundingsValidMain)
	e.u16(mrzSoundingSize)
	e.f32(r.WCSampleRate)
	e.f32(r.SeabedImageSampleRate)
	e.f32(r.BSNormal)
	e.f32(r.BSOblique)
	e.u16(r.ExtraDetectionAlarmFlag)
	e.u16(r.NumExtraDetections)
	e.u16(uint16(len(m.ExtraDetClasses)))
	e.u16(mrzExtraDetInfoSize)
	if err := e.patchSize(slot); err != nil {
		return err
	}
	for _, c := range m.ExtraDetClasses {
		e.u16(c.NumExtraDetInClass)
		e.i8(0)
		e.u8(c.AlarmFlag)
	}
	for i := range m.Soundings {
		encodeSounding(e, &m.Soundings[i])
	}
	for _, v := range m.SISamples {
		e.i16(v)
	}
	return nil
}

func (m *MRZ) encodePingInfo(e *encoder) error {
	if len(m.TxSectors) > MaxTxPulses {
		return fmt.Errorf("%w: %d tx sectors exceed %d", ErrInconsistent, len(m.TxSectors), MaxTxPulses)
	}
	p := &m.PingInfo
	slot := e.sizeSlot()
	e.u16(0)
	e.f32(p.PingRate)
	e.u8(p.BeamSpacing)
	e.u8(p.DepthMode)
	e.u8(p.SubDepthMode)
	e.u8(p.DistanceBtwSwath)
	e.u8(p.DetectionMode)
	e.u8(p.PulseForm)
	e.u16(0)
	e.f32(p.FrequencyMode)
	e.f32(p.FreqRangeLowLim)
	e.f32(p.FreqRangeHighLim)
	e.f32(p.MaxTotalTxPulseLength)
	e.f32(p.MaxEffTxPulseLength)
	e.f32(p.MaxEffTxBandWidth)
	e.f32(p.AbsCoeff)
	e.f32(p.PortSectorEdge)
	e.f32(p.StarbSectorEdge)
	e.f32(p.PortMeanCovDeg)
	e.f32(p.StarbMeanCovDeg)
	e.i16(p.PortMeanCovM)
	e.i16(p.StarbMeanCovM)
	e.u8(p.ModeAndStabilisation)
	e.u8(p.RuntimeFilter1)
	e.u16(p.RuntimeFilter2)
	e.u32(p.PipeTrackingStatus)
	e.f32(p.TransmitArraySizeUsed)
	e.f32(p.ReceiveArraySizeUsed)
	e.f32(p.TransmitPower)
	e.u16(p.SLRampUpTimeRemaining)
	e.u16(0)
	e.f32(p.YawAngle)
	e.u16(uint16(len(m.TxSectors)))
	e.u16(uint16(mrzTxSectorSize(m.Version)))
	e.f32(p.HeadingVessel)
	e.f32(p.SoundSpeedAtTxDepth)
	e.f32(p.TxTransducerDepth)
	e.f32(p.ZWaterLevelReRefPoint)
	e.f32(p.XKmallToAll)
	e.f32(p.YKmallToAll)
	e.u8(p.LatLongInfo)
	e.u8(p.PosSensorStatus)
	e.u8(p.AttitudeSensorStatus)
	e.u8(0)
	e.f64(p.Latitude)
	e.f64(p.Longitude)
	e.f32(p.EllipsoidHeight)
	if m.Version >= 1 {
		e.f32(p.BSCorrectionOffset)
		e.u8(p.LambertsLawApplied)
		e.u8(p.IceWindow)
		e.u16(p.ActiveModes)
	}
	return e.patchSize(slot)
}

func (m *MRZ) encodeTxSector(e *encoder, s *MRZTxSector) {
	e.u8(s.TxSectorNumb)
	e.u8(s.TxArrNumber)
	e.u8(s.TxSubArray)
	e.u8(0)
	e.f32(s.SectorTransmitDelay)
	e.f32(s.TiltAngleReTx)
	e.f32(s.TxNominalSourceLevel)
	e.f32(s.TxFocusRange)
	e.f32(s.CentreFreq)
	e.f32(s.SignalBandWidth)
	e.f32(s.TotalSignalLength)
	e.u8(s.PulseShading)
	e.u8(s.SignalWaveForm)
	e.u16(0)
	if m.Version >= 1 {
		e.f32(s.HighVoltageLevel)
		e.f32(s.SectorTrackingCorr)
		e.f32(s.EffectiveSignalLength)
	}
}

func encodeSounding(e *encoder, s *MRZSounding) {
	e.u16(s.SoundingIndex)
	e.u8(s.TxSectorNumb)
	e.u8(s.DetectionType)
	e.u8(s.DetectionMethod)
	e.u8(s.RejectionInfo1)
	e.u8(s.RejectionInfo2)
	e.u8(s.PostProcessingInfo)
	e.u8(s.DetectionClass)
	e.u8(s.DetectionConfidenceLevel)
	e.u8(s.BeamflagEnabled)
	e.u8(uint8(s.Beamflag))
	e.f32(s.RangeFactor)
	e.f32(s.QualityFactor)
	e.f32(s.DetectionUncertaintyVer)
	e.f32(s.DetectionUncertaintyHor)
	e.f32(s.DetectionWindowLength)
	e.f32(s.EchoLength)
	e.u16(s.WCBeamNumb)
	e.u16(s.WCRangeSamples)
	e.f32(s.WCNomBeamAngleAcross)
	e.f32(s.MeanAbsCoeff)
	e.f32(s.Reflectivity1)
	e.f32(s.Reflectivity2)
	e.f32(s.ReceiverSensitivityApplied)
	e.f32(s.SourceLevelApplied)
	e.f32(s.BSCalibration)
	e.f32(s.TVG)
	e.f32(s.BeamAngleReRx)
	e.f32(s.BeamAngleCorrection)
	e.f32(s.TwoWayTravelTime)
	e.f32(s.TwoWayTravelTimeCorrection)
	e.f32(s.DeltaLatitude)
	e.f32(s.DeltaLongitude)
	e.f32(s.ZReRefPoint)
	e.f32(s.YReRefPoint)
	e.f32(s.XReRefPoint)
	e.f32(s.BeamIncAngleAdj)
	e.u16(s.RealTimeCleanInfo)
	e.u16(s.SIStartRange)
	e.u16(s.SICentreSample)
	e.u16(s.SINumSamples)
}
