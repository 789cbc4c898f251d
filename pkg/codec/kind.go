package codec

// Kind identifies the type of a KMALL datagram.
type Kind uint8

// Record kinds. The order matches the MB-System datagram enumeration.
const (
	KindUnknown Kind = iota
	KindIIP
	KindIOP
	KindIBE
	KindIBR
	KindIBS
	KindSPO
	KindSKM
	KindSVP
	KindSVT
	KindSCL
	KindSDE
	KindSHI
	KindSHA
	KindMRZ
	KindMWC
	KindCPO
	KindCHE
	KindFCF
	KindXMB
	KindXMT
	KindXMC
	KindXMS

	numKinds
)

// SyncChar is the first byte of every datagram type tag.
const SyncChar = '#'

var kindTags = [numKinds]string{
	KindUnknown: "",
	KindIIP:     "#IIP",
	KindIOP:     "#IOP",
	KindIBE:     "#IBE",
	KindIBR:     "#IBR",
	KindIBS:     "#IBS",
	KindSPO:     "#SPO",
	KindSKM:     "#SKM",
	KindSVP:     "#SVP",
	KindSVT:     "#SVT",
	KindSCL:     "#SCL",
	KindSDE:     "#SDE",
	KindSHI:     "#SHI",
	KindSHA:     "#SHA",
	KindMRZ:     "#MRZ",
	KindMWC:     "#MWC",
	KindCPO:     "#CPO",
	KindCHE:     "#CHE",
	KindFCF:     "#FCF",
	KindXMB:     "#XMB",
	KindXMT:     "#XMT",
	KindXMC:     "#XMC",
	KindXMS:     "#XMS",
}

var tagKinds = func() map[[4]byte]Kind {
	m := make(map[[4]byte]Kind, numKinds)
	for k := KindIIP; k < numKinds; k++ {
		var tag [4]byte
		copy(tag[:], kindTags[k])
		m[tag] = k
	}
	return m
}()

// KindFromTag maps a 4-byte type tag to its Kind. Unrecognised tags map to
// KindUnknown.
func KindFromTag(tag [4]byte) Kind {
	if k, ok := tagKinds[tag]; ok {
		return k
	}
	return KindUnknown
}

// Tag returns the 4-byte wire tag of k. KindUnknown has no tag.
func (k Kind) Tag() [4]byte {
	var tag [4]byte
	if k < numKinds {
		copy(tag[:], kindTags[k])
	}
	return tag
}

// String returns the three letter datagram name, e.g. "MRZ".
func (k Kind) String() string {
	if k == KindUnknown || k >= numKinds {
		return "UNKNOWN"
	}
	return kindTags[k][1:]
}

// Kinds returns every known kind, excluding KindUnknown.
func Kinds() []Kind {
	out := make([]Kind, 0, numKinds-1)
	for k := KindIIP; k < numKinds; k++ {
		out = append(out, k)
	}
	return out
}

// IsPingFragment reports whether records of this kind carry one fragment
// of a logical ping.
func (k Kind) IsPingFragment() bool {
	switch k {
	case KindMRZ, KindMWC, KindXMT, KindXMS:
		return true
	}
	return false
}

// IsPartitioned reports whether records of this kind start with a
// partition sub-part declaring how many transport packets they span.
func (k Kind) IsPartitioned() bool {
	switch k {
	case KindMRZ, KindMWC, KindXMT, KindFCF:
		return true
	}
	return false
}

// IsExtension reports whether k is an MB-System private kind. Vendor
// readers skip these as unknown datagrams.
func (k Kind) IsExtension() bool {
	switch k {
	case KindXMB, KindXMC, KindXMT, KindXMS:
		return true
	}
	return false
}
