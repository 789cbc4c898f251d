// Package codectest builds populated KMALL records and datagram streams for
// tests.
package codectest

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ssargent/kmall/pkg/codec"
)

// Header returns a header of the given version stamped at t seconds.
func Header(version uint8, t float64) codec.Header {
	sec, frac := math.Modf(t)
	return codec.Header{
		Version:       version,
		SystemID:      1,
		EchoSounderID: 2040,
		TimeSec:       uint32(sec),
		TimeNanosec:   uint32(math.Round(frac * 1e9)),
	}
}

func single() codec.Partition { return codec.Partition{NumOfDgms: 1, DgmNum: 1} }

func pingCommon(ping uint16, fans, fan uint8) codec.PingCommon {
	return codec.PingCommon{
		PingCnt:          ping,
		RxFansPerPing:    fans,
		RxFanIndex:       fan,
		SwathsPerPing:    1,
		TxTransducerInd:  0,
		RxTransducerInd:  fan,
		NumRxTransducers: fans,
		AlgorithmType:    1,
	}
}

// MRZ returns a bathymetry fan with two tx sectors, two main soundings,
// one extra detection and seabed image samples. Beam flags are marked as
// editor supplied so they survive a round trip unchanged.
func MRZ(version uint8, ping uint16, fans, fan uint8, t float64) *codec.MRZ {
	m := &codec.MRZ{
		Header:    Header(version, t),
		Partition: single(),
		Common:    pingCommon(ping, fans, fan),
		PingInfo: codec.MRZPingInfo{
			PingRate:            2.5,
			BeamSpacing:         1,
			DepthMode:           3,
			DetectionMode:       1,
			FrequencyMode:       300000,
			AbsCoeff:            61.5,
			PortSectorEdge:      -65,
			StarbSectorEdge:     65,
			PortMeanCovM:        -120,
			StarbMeanCovM:       118,
			PipeTrackingStatus:  7,
			TransmitPower:       -3,
			YawAngle:            0.5,
			HeadingVessel:       91.25,
			SoundSpeedAtTxDepth: 1498.5,
			TxTransducerDepth:   4.2,
			LatLongInfo:         1,
			Latitude:            59.4281,
			Longitude:           10.4853,
			EllipsoidHeight:     41.2,
		},
		TxSectors: []codec.MRZTxSector{
			{TxSectorNumb: 0, TiltAngleReTx: -1.5, CentreFreq: 290000, SignalBandWidth: 5000, TotalSignalLength: 0.0002},
			{TxSectorNumb: 1, TxArrNumber: 1, TiltAngleReTx: 1.5, CentreFreq: 310000, SignalBandWidth: 5000, TotalSignalLength: 0.0002},
		},
		RxInfo: codec.MRZRxInfo{
			NumSoundingsValidMain: 2,
			WCSampleRate:          15000,
			SeabedImageSampleRate: 30000,
			BSNormal:              -20,
			BSOblique:             -30,
			NumExtraDetections:    1,
		},
		ExtraDetClasses: []codec.MRZExtraDetClass{{NumExtraDetInClass: 1, AlarmFlag: 0}},
		Soundings: []codec.MRZSounding{
			sounding(0, 0, 0, 12, 2),
			sounding(1, 1, 0, 30, 0),
			sounding(2, 1, 1, 80, 1),
		},
		SISamples: []int16{-300, -310, -280},
	}
	if version >= 1 {
		m.PingInfo.BSCorrectionOffset = 1.5
		m.PingInfo.LambertsLawApplied = 1
		m.PingInfo.IceWindow = 0
		m.PingInfo.ActiveModes = 3
		for i := range m.TxSectors {
			m.TxSectors[i].HighVoltageLevel = 120
			m.TxSectors[i].SectorTrackingCorr = 0.1
			m.TxSectors[i].EffectiveSignalLength = 0.00015
		}
	}
	return m
}

func sounding(index uint16, sector, detType uint8, quality float32, si uint16) codec.MRZSounding {
	return codec.MRZSounding{
		SoundingIndex:    index,
		TxSectorNumb:     sector,
		DetectionType:    detType,
		DetectionMethod:  1,
		BeamflagEnabled:  1,
		Beamflag:         codec.DeriveBeamFlag(detType, quality),
		QualityFactor:    quality,
		WCBeamNumb:       index,
		WCRangeSamples:   400 + index,
		TwoWayTravelTime: 0.12 + float32(index)*0.001,
		BeamAngleReRx:    -60 + float32(index)*60,
		ZReRefPoint:      90 + float32(index),
		YReRefPoint:      -150 + float32(index)*150,
		XReRefPoint:      0.5,
		SIStartRange:     10,
		SICentreSample:   si / 2,
		SINumSamples:     si,
	}
}

// MWC returns a water column fan with two beams using the given phase
// encoding.
func MWC(version uint8, ping uint16, fans, fan uint8, t float64, phaseFlag uint8) *codec.MWC {
	m := &codec.MWC{
		Header:    Header(version, t),
		Partition: single(),
		Common:    pingCommon(ping, fans, fan),
		Heave:     0.25,
		TxSectors: []codec.MWCTxSector{{TiltAngleReTx: -0.5, CentreFreq: 300000, TxBeamWidthAlong: 1, TxSectorNum: 0}},
		RxInfo: codec.MWCRxInfo{
			PhaseFlag:          phaseFlag,
			TVGFunctionApplied: 30,
			TVGOffset:          -2,
			SampleFreq:         15000,
			SoundVelocity:      1498.5,
		},
		Beams: []codec.MWCBeam{
			{BeamPointAngReVertical: -45, StartRangeSampleNum: 0, DetectedRangeInSamples: 3, Amplitude: []int8{-40, -35, -20, -60}},
			{BeamPointAngReVertical: 45, StartRangeSampleNum: 1, DetectedRangeInSamples: 2, BeamTxSectorNum: 0, Amplitude: []int8{-50, -10, -70}},
		},
	}
	for i := range m.Beams {
		b := &m.Beams[i]
		if version >= 1 {
			b.DetectedRangeInSamplesHighRes = float32(b.DetectedRangeInSamples) + 0.25
		}
		switch phaseFlag {
		case codec.PhaseLowRes:
			b.Phase = make([]int16, len(b.Amplitude))
			for j := range b.Phase {
				b.Phase[j] = int16(j*20 - 100)
			}
		case codec.PhaseHighRes:
			b.Phase = make([]int16, len(b.Amplitude))
			for j := range b.Phase {
				b.Phase[j] = int16(j*2000 - 30000)
			}
		}
	}
	return m
}

// XMT returns a corrected beam fan with three soundings.
func XMT(ping uint16, fans, fan uint8, t float64) *codec.XMT {
	return &codec.XMT{
		Header:    Header(0, t),
		Partition: single(),
		Common:    pingCommon(ping, fans, fan),
		PingInfo: codec.XMTPingInfo{
			Longitude:   10.4853,
			Latitude:    59.4281,
			SensorDepth: 4.2,
			Heading:     91.25,
			Speed:       4.1,
			Roll:        0.5,
			Pitch:       -0.25,
			Heave:       0.1,
		},
		Soundings: []codec.XMTSounding{
			{SoundingIndex: 0, TwoWayTravelTime: 0.12, AngleVertical: 60, AngleAzimuthal: 270},
			{SoundingIndex: 1, TwoWayTravelTime: 0.1, AngleVertical: 0, AngleAzimuthal: 0},
			{SoundingIndex: 2, TwoWayTravelTime: 0.12, AngleVertical: 60, AngleAzimuthal: 90, BeamHeave: 0.01, AlongtrackOffset: 0.2},
		},
	}
}

// XMS returns a pseudo-sidescan record with four pixels.
func XMS(ping uint16, t float64) *codec.XMS {
	return &codec.XMS{
		Header:     Header(0, t),
		PingCnt:    ping,
		PixelSize:  0.5,
		Sidescan:   []float32{-30, -25, -22, -31},
		AlongTrack: []float32{0.1, 0, 0, -0.1},
	}
}

// XMB returns a file marker.
func XMB(extensions, watercolumn bool) *codec.XMB {
	return &codec.XMB{
		Header:          Header(1, 1),
		Extensions:      extensions,
		WaterColumn:     watercolumn,
		SoftwareVersion: "kmall test",
	}
}

// XMC returns a comment record.
func XMC(text string, t float64) *codec.XMC {
	return &codec.XMC{Header: Header(0, t), Comment: text}
}

// SPO returns a position fix.
func SPO(t float64) *codec.SPO {
	return &codec.SPO{Position: codec.Position{
		Header:                Header(0, t),
		Common:                codec.SensorCommon{SensorSystem: 1, SensorStatus: 0},
		TimeFromSensorSec:     uint32(t),
		TimeFromSensorNanosec: 500,
		PosFixQuality:         0.3,
		Latitude:              59.4281,
		Longitude:             10.4853,
		SpeedOverGround:       4.1,
		CourseOverGround:      90.5,
		EllipsoidHeight:       41.2,
		SensorData:            []byte("$GPGGA,120000.00,5925.686,N,01029.118,E,4,12,0.8,0.5,M,40.7,M,,*6A"),
	}}
}

// Samples returns one populated record of every kind at the given datagram
// version.
func Samples(version uint8) []codec.Record {
	h := Header(version, 1700000000.25)
	return []codec.Record{
		&codec.IIP{Params: codec.Params{Header: h, Info: 1, Status: 0, Text: "OSCV:Empty,EMXV:EM2040,PU_0,SN=20012,IP=157.237.20.40:0xffff0000,UDP=1997,TYPE=CPU2,"}},
		&codec.IOP{Params: codec.Params{Header: h, Info: 1, Text: "#-----------------\nDepth Settings: Automatic\n"}},
		&codec.IBE{BIST: codec.BIST{Header: h, Info: 1, Style: 2, Number: 3, Status: -1, Text: "RX unit: FAIL"}},
		&codec.IBR{BIST: codec.BIST{Header: h, Info: 0, Style: 1, Number: 4, Status: 0, Text: "CPU: OK"}},
		&codec.IBS{BIST: codec.BIST{Header: h, Number: 5, Status: 1, Text: "short"}},
		func() codec.Record { s := SPO(1700000000.5); s.Header.Version = version; return s }(),
		&codec.SKM{
			Header:             h,
			SensorSystem:       1,
			SensorStatus:       0,
			SensorInputFormat:  1,
			SensorDataContents: 0xff,
			Samples: []codec.SKMSample{
				{KM: codec.KMBinary{Type: [4]byte{'#', 'K', 'M', 'B'}, Version: 1, TimeSec: 1700000000, TimeNanosec: 1e8, Latitude: 59.4, Longitude: 10.4, Roll: 0.5, Pitch: -0.2, Heading: 91, Heave: 0.1}, Delayed: codec.DelayedHeave{TimeSec: 1700000000, Heave: 0.09}},
				{KM: codec.KMBinary{Type: [4]byte{'#', 'K', 'M', 'B'}, Version: 1, TimeSec: 1700000000, TimeNanosec: 2e8, Latitude: 59.4, Longitude: 10.4, Roll: 0.6, Pitch: -0.1, Heading: 91.5, Heave: 0.12, DownAccel: 9.81}},
			},
		},
		&codec.SVP{Header: h, SensorFormat: [4]byte{'S', '0', '0', ' '}, ProfileTimeSec: 1699990000, Latitude: 59.4, Longitude: 10.4,
			Points: []codec.SVPPoint{{Depth: 0, SoundVelocity: 1495}, {Depth: 50, SoundVelocity: 1490, Temperature: 6.5, Salinity: 34.5}}},
		&codec.SVT{Header: h, SensorStatus: 1, SensorInputFormat: 2, SensorDataContents: 3, FilterTime: 1, SoundVelocityOffset: 0.5,
			Samples: []codec.SVTSample{{TimeSec: 1700000000, SoundVelocity: 1498.5, Temperature: 8, Pressure: 101325, Salinity: 34}}},
		&codec.SCL{Header: h, Common: codec.SensorCommon{SensorSystem: 1}, Offset: 0.001, ClockDevPU: -250, SensorData: []byte("$ZDA,120000.00,14,11,2023,,*4F")},
		&codec.SDE{Header: h, Common: codec.SensorCommon{SensorSystem: 1}, DepthUsed: 4.2, Offset: 0.1, Scale: 1,
			Latitude: latFor(version), Longitude: lonFor(version), SensorData: []byte("$DPT,4.2,0.1*44")},
		&codec.SHI{Header: h, Common: codec.SensorCommon{SensorSystem: 2}, SensorType: 1, HeightUsed: 41.2, SensorData: []byte("height")},
		&codec.SHA{Header: h, Common: codec.SensorCommon{SensorSystem: 1},
			Samples: []codec.HeadingSample{{TimeSinceRecStart: 0, Heading: 91, SensorData: []byte("HDT1")}, {TimeSinceRecStart: 5e7, Heading: 91.2, SensorData: []byte("HDT2")}}},
		MRZ(version, 7, 2, 0, 1700000001),
		MWC(version, 7, 2, 0, 1700000001, codec.PhaseLowRes),
		func() codec.Record { c := SPO(1700000000.5); c.Header.Version = version; return &codec.CPO{Position: c.Position} }(),
		&codec.CHE{Header: h, Common: pingCommon(7, 1, 0), Heave: 0.15},
		&codec.FCF{Header: h, Partition: single(), FileStatus: 1, FileName: "BSCorr_300.txt", File: []byte("# bs correction\n1 2 3\n")},
		XMB(true, true),
		XMT(7, 2, 0, 1700000001),
		XMC("processed with kmall", 1700000002),
		XMS(7, 1700000001),
		&codec.Unknown{Header: codec.Header{Type: [4]byte{'#', 'Z', 'Z', 'Z'}, Version: version, TimeSec: 1700000003}, Body: []byte{1, 2, 3, 4, 5}},
	}
}

func latFor(version uint8) float64 {
	if version >= 1 {
		return 59.4281
	}
	return 0
}

func lonFor(version uint8) float64 {
	if version >= 1 {
		return 10.4853
	}
	return 0
}

// Encode encodes recs back to back into one datagram stream.
func Encode(tb testing.TB, c *codec.RecordCodec, recs ...codec.Record) []byte {
	tb.Helper()
	var out []byte
	for _, rec := range recs {
		var err error
		out, err = c.AppendEncode(out, rec)
		require.NoError(tb, err, "encode %s", rec.Kind())
	}
	return out
}
