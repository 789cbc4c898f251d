package codec

// Capacity limits of the format. Decoders reject datagrams that declare
// more than these, encoders refuse to produce them.
const (
	MaxBeams           = 1024
	MaxPixels          = 2048
	MaxExtraDetections = 1024
	MaxExtraDetClasses = 11
	MaxSidescanSamples = 60000
	MaxTxPulses        = 9
	MaxAttitudeSamples = 148
	MaxSVPPoints       = 2000
	MaxHeadingSamples  = 1000
	MaxMWCDgms         = 256
	MaxMRZDgms         = 32
	MaxFileNameLength  = 64
	MaxFileSize        = 63000
)

// ScratchBlockSize is the granularity in which record scratch buffers grow.
const ScratchBlockSize = 64000

// FormatInfo is the fixed capability description of the KMALL format.
type FormatInfo struct {
	Name               string `json:"name"`
	ID                 int    `json:"id"`
	System             string `json:"system"`
	Description        string `json:"description"`
	MaxBeamsBath       int    `json:"max_beams_bath"`
	MaxBeamsAmp        int    `json:"max_beams_amp"`
	MaxPixels          int    `json:"max_pixels"`
	MaxExtraDetections int    `json:"max_extra_detections"`
	MaxTxPulses        int    `json:"max_tx_pulses"`
	MaxFans            int    `json:"max_fans"`
	VariableBeams      bool   `json:"variable_beams"`
	TravelTime         bool   `json:"travel_time"`
	BeamFlagging       bool   `json:"beam_flagging"`
}

// DescribeFormat returns the capability metadata of the format.
func DescribeFormat() FormatInfo {
	return FormatInfo{
		Name:               "MBF_KEMKMALL",
		ID:                 261,
		System:             "KMBES",
		Description:        "Kongsberg multibeam echosounder system EM datagram format",
		MaxBeamsBath:       MaxBeams,
		MaxBeamsAmp:        MaxBeams,
		MaxPixels:          MaxPixels,
		MaxExtraDetections: MaxExtraDetections,
		MaxTxPulses:        MaxTxPulses,
		MaxFans:            MaxMRZDgms,
		VariableBeams:      true,
		TravelTime:         true,
		BeamFlagging:       true,
	}
}
