package codec

import (
	"errors"
	"fmt"
)

// Errors
var (
	// ErrBadData means a record's declared sub-part sizes do not fit in its
	// declared length. The record is dropped; the stream continues.
	ErrBadData = &CodecError{"bad datagram data"}
	// ErrUnintelligible means the record was split across more than one
	// transport packet and cannot be decoded on its own.
	ErrUnintelligible = &CodecError{"unintelligible datagram"}
	// ErrInconsistent means an in-memory record cannot be encoded because
	// its array lengths disagree with each other.
	ErrInconsistent = &CodecError{"inconsistent record"}
	// ErrKindMismatch means a record was decoded from a datagram of a
	// different kind.
	ErrKindMismatch = &CodecError{"datagram kind mismatch"}
)

// CodecError represents a codec error
type CodecError struct {
	Message string
}

func (e *CodecError) Error() string {
	return e.Message
}

// RecordError annotates a codec error with the record it came from.
type RecordError struct {
	Kind   Kind
	Offset int64 // byte offset in the source, -1 when unknown
	Err    error
}

func (e *RecordError) Error() string {
	if e.Offset < 0 {
		return fmt.Sprintf("%s record: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s record at offset %d: %v", e.Kind, e.Offset, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// IsRecoverable reports whether err only invalidates a single record, so a
// reader may drop that record and continue with the next.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrBadData) || errors.Is(err, ErrUnintelligible)
}
