package store

import (
	"math"

	"github.com/ssargent/kmall/pkg/codec"
)

// NavigationSink accepts position fixes.
type NavigationSink interface {
	AddNavigation(t, lon, lat, speed float64)
}

// HeadingSink accepts heading samples in degrees.
type HeadingSink interface {
	AddHeading(t, heading float64)
}

// AttitudeSink accepts roll, pitch (degrees) and heave (metres) samples.
type AttitudeSink interface {
	AddAttitude(t, roll, pitch, heave float64)
}

// SensorDepthSink accepts transducer depth samples in metres.
type SensorDepthSink interface {
	AddSensorDepth(t, depth float64)
}

// HeaveSink accepts heave samples in metres.
type HeaveSink interface {
	AddHeave(t, heave float64)
}

// Sinks are fed from standalone sensor records as they are read. Any of
// them may be nil.
type Sinks struct {
	Navigation  NavigationSink
	Heading     HeadingSink
	Attitude    AttitudeSink
	SensorDepth SensorDepthSink
	Heave       HeaveSink
}

// Sinks take speed in km/h.
const speedToKmh = 3.6

// Feed passes the sensor values of rec to the configured sinks.
func (s *Sinks) Feed(rec codec.Record) {
	switch v := rec.(type) {
	case *codec.SPO:
		s.position(&v.Position)
	case *codec.CPO:
		s.position(&v.Position)
	case *codec.SKM:
		for i := range v.Samples {
			km := &v.Samples[i].KM
			t := km.Time()
			if s.Navigation != nil {
				speed := speedToKmh * math.Hypot(float64(km.VelNorth), float64(km.VelEast))
				s.Navigation.AddNavigation(t, km.Longitude, km.Latitude, speed)
			}
			if s.Heading != nil {
				s.Heading.AddHeading(t, float64(km.Heading))
			}
			if s.Attitude != nil {
				s.Attitude.AddAttitude(t, float64(km.Roll), float64(km.Pitch), float64(km.Heave))
			}
		}
	case *codec.SHA:
		if s.Heading != nil {
			for i := range v.Samples {
				s.Heading.AddHeading(v.SampleTime(i), float64(v.Samples[i].Heading))
			}
		}
	case *codec.SDE:
		if s.SensorDepth != nil {
			s.SensorDepth.AddSensorDepth(v.Header.Time(), float64(v.DepthUsed))
		}
	case *codec.CHE:
		if s.Heave != nil {
			s.Heave.AddHeave(v.Header.Time(), float64(v.Heave))
		}
	}
}

func (s *Sinks) position(p *codec.Position) {
	if s.Navigation != nil {
		s.Navigation.AddNavigation(p.Header.Time(), p.Longitude, p.Latitude, speedToKmh*float64(p.SpeedOverGround))
	}
}
