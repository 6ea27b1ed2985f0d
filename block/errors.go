package block

import "fmt"

// ErrorCode names a domain error kind returned by the decode and signature
// paths (spec.md §7).
type ErrorCode string

const (
	// ErrDecode marks a malformed buffer, bad length, truncated stream or
	// UTF-8 error while parsing a Block, BlockHeader or SuperBlockSegment.
	ErrDecode ErrorCode = "DECODE_ERROR"
	// ErrOversize marks a serialized payload exceeding the 3 MB ceiling.
	ErrOversize ErrorCode = "OVERSIZE_ERROR"
	// ErrVerify marks a signature failing cryptographic verification.
	ErrVerify ErrorCode = "VERIFY_ERROR"
	// ErrLookup marks a signer public key that could not be resolved from
	// the wallet registry.
	ErrLookup ErrorCode = "LOOKUP_ERROR"
)

// CodecError is the typed error returned by decode and signature-admission
// failures.
type CodecError struct {
	Code ErrorCode
	Msg  string
}

func (e *CodecError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func newErr(code ErrorCode, format string, args ...any) error {
	return &CodecError{Code: code, Msg: fmt.Sprintf(format, args...)}
}
