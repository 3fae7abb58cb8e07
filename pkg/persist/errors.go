package persist

import "errors"

var (
	// ErrInvalidMagic is returned when the buffer does not start with a
	// known snapshot magic.
	ErrInvalidMagic = errors.New("invalid snapshot magic")
	// ErrIncompatibleVersion is returned for snapshot versions this
	// build does not understand.
	ErrIncompatibleVersion = errors.New("incompatible snapshot version")
	// ErrTruncatedData is returned when the buffer ends before a
	// declared section does.
	ErrTruncatedData = errors.New("truncated snapshot data")
	// ErrCorrupted is returned on a payload CRC mismatch.
	ErrCorrupted = errors.New("snapshot corrupted: CRC mismatch")
	// ErrUnalignedBuffer is returned by the zero-copy node cast when
	// the byte buffer does not satisfy the node alignment.
	ErrUnalignedBuffer = errors.New("buffer not aligned for node access")
	// ErrMalformed is returned when section contents are internally
	// inconsistent.
	ErrMalformed = errors.New("malformed snapshot section")
)
