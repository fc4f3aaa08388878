package wire

import "errors"

var (
	// ErrTruncatedInput is returned when the buffer ends before a value is
	// complete, or a VarInt continuation chain runs past its maximum width.
	ErrTruncatedInput = errors.New("wire: truncated input")
	// ErrInvalidEncoding is returned for malformed values such as negative
	// lengths or strings that are not valid UTF-8.
	ErrInvalidEncoding = errors.New("wire: invalid encoding")
)
