package wire

import (
	"bytes"
	"unicode/utf8"
)

const (
	// NameBufferSize covers the 255 octet name limit plus separators.
	NameBufferSize = 256

	// MaxJumps bounds the compression pointers followed while decoding one name.
	MaxJumps = 5
)

var replacementChar = []byte(string(utf8.RuneError))

// SkipName returns the offset immediately following the name that starts at off.
// A compression pointer ends the name and is skipped as a fixed two byte field,
// its target is never visited.
func SkipName(packet []byte, off int) (int, error) {
	if off < 0 {
		return 0, ErrTruncated
	}

	for {
		if off >= len(packet) {
			return 0, ErrTruncated
		}

		c := packet[off]
		switch c & pointerMask {
		case 0x00:
			if c == 0 {
				return off + 1, nil
			}
			off += 1 + int(c)
		case pointerMask:
			if off+2 > len(packet) {
				return 0, ErrTruncated
			}
			return off + 2, nil
		default:
			return 0, ErrBadLabel
		}
	}
}

// Name is a decoded query name: lowercase, dot separated, no trailing dot.
//
// A Name normally borrows the buffer passed to ParseQuick. When the name is not
// valid UTF-8 it owns a copy in which every invalid sequence is replaced with
// U+FFFD. Callers must treat the result as read-only either way, and must not
// reuse the buffer while the Name is alive.
type Name struct {
	b     []byte
	s     string
	owned bool
}

func newName(b []byte) Name {
	if utf8.Valid(b) {
		return Name{b: b}
	}
	return Name{s: string(bytes.ToValidUTF8(b, replacementChar)), owned: true}
}

func (n Name) String() string {
	if n.owned {
		return n.s
	}
	return string(n.b)
}

// Bytes returns the name bytes. In borrowed mode this is a view into the caller's buffer.
func (n Name) Bytes() []byte {
	if n.owned {
		return []byte(n.s)
	}
	return n.b
}

func (n Name) Borrowed() bool { return !n.owned }

func (n Name) Len() int {
	if n.owned {
		return len(n.s)
	}
	return len(n.b)
}

// IsRoot reports whether n is the root name.
func (n Name) IsRoot() bool { return n.Len() == 0 }
