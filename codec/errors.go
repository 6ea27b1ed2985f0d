package codec

import "errors"

// Sentinel error kinds wrapped by the more specific errors codec functions
// return; callers can classify with errors.Is.
var (
	// ErrTruncated marks a read past the end of the buffer.
	ErrTruncated = errors.New("codec: truncated buffer")
	// ErrDecode marks any other malformed-encoding condition (bad length,
	// invalid UTF-8, unsupported varint).
	ErrDecode = errors.New("codec: malformed encoding")
	// ErrOversize marks a buffer that exceeds MaxPayloadBytes.
	ErrOversize = errors.New("codec: oversize payload")
)
