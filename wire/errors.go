package wire

import "errors"

// Every routine in this package reports failure with one of these errors. None of
// them is retryable: the caller should fall back to a full decoder or refuse to
// cache the message.
var (
	ErrShortMessage   = errors.New("dns message shorter than header")
	ErrNoQuestion     = errors.New("dns message has no question")
	ErrTruncated      = errors.New("dns message truncated")
	ErrPointerLoop    = errors.New("too many compression pointers")
	ErrBufferTooSmall = errors.New("name buffer too small")
	ErrBadLabel       = errors.New("reserved label type")
	ErrOverflow       = errors.New("record data overflows message")
)
