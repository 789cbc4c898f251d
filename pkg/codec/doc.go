// Package codec decodes and encodes Kongsberg KMALL datagrams.
//
// A KMALL file or stream is a sequence of self-delimiting datagrams. Each
// one starts with a fixed 20 byte header and ends with a repeat of its
// total length:
//
//	[NumBytes(4)][Type(4)][Version(1)][SystemID(1)][EchoSounderID(2)][TimeSec(4)][TimeNanosec(4)][body][NumBytes(4)]
//
// The type tag is four ASCII characters starting with '#', e.g. "#MRZ".
// ParseHeader classifies a header into a Kind and never fails: unknown
// tags classify as KindUnknown, which readers use to resynchronise.
//
// # Records
//
// Every Kind maps to one concrete record type (MRZ, MWC, SKM, ...) that
// embeds the Header. RecordCodec decodes datagram bytes into records and
// encodes records back:
//
//	c := codec.NewRecordCodec(binary.LittleEndian)
//
//	rec, err := c.Decode(datagram)
//	if err != nil {
//	    return err
//	}
//	if mrz, ok := rec.(*codec.MRZ); ok {
//	    fmt.Println(mrz.PingCounter(), len(mrz.Soundings))
//	}
//
//	out, err := c.Encode(rec)
//
// DecodeInto reuses the arrays of an existing record, which keeps a reader
// that decodes thousands of pings from reallocating sounding and sample
// arrays.
//
// # Sub-part sizes
//
// Bodies are made of sub-parts that declare their own size (common part,
// ping info, per-sector, per-sounding and per-beam entries). The decoder
// always advances by the declared size rather than by the size of the
// fields it knows, so fields appended by newer format revisions are
// skipped. Fields that only exist from a given datagram version are read
// when the header version and the declared size both cover them.
//
// The encoder never trusts size fields: every sub-part size, every array
// count and the total length are recomputed from the record's contents.
// Records therefore do not carry wire size fields at all.
//
// # Errors
//
// ErrBadData reports a datagram whose declared sizes do not fit inside it.
// ErrUnintelligible reports a multibeam datagram split across several
// transport packets. Both invalidate one record only; IsRecoverable tells
// readers to drop it and continue. ErrInconsistent is returned by Encode
// when a record's arrays disagree with each other.
//
// # Byte order
//
// Kongsberg systems write little-endian. The codec is parameterised by a
// ByteOrder so big-endian streams can be read and written as well;
// SniffByteOrder guesses the order from a header.
//
// # Thread Safety
//
// RecordCodec holds no mutable state and is safe for concurrent use.
// Records are not; each belongs to the reader session that decoded it.
package codec
