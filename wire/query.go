// Package wire reads and ages raw DNS messages without a full decode. It is the
// fast path used to derive cache keys from queries, decide cacheability from
// responses and rewrite TTLs of cached responses before they are served again.
//
// All functions are pure: they keep no state and never retain the packet.
package wire

import (
	"encoding/binary"

	"github.com/miekg/dns"
)

type QuickQuery struct {
	ID     uint16
	Name   Name
	Qtype  uint16
	Qclass uint16
	EDNS   bool // an OPT record was seen in the additional section
}

// ParseQuick decodes the transaction id, the first question and EDNS presence of
// a query. The normalized name is written into buf, which should hold at least
// NameBufferSize bytes, and the returned Name borrows it.
func ParseQuick(packet, buf []byte) (QuickQuery, error) {
	var q QuickQuery

	if len(packet) < HeaderSize {
		return q, ErrShortMessage
	}

	q.ID = binary.BigEndian.Uint16(packet[0:2])
	qdCount := binary.BigEndian.Uint16(packet[4:6])
	anCount := binary.BigEndian.Uint16(packet[6:8])
	nsCount := binary.BigEndian.Uint16(packet[8:10])
	arCount := binary.BigEndian.Uint16(packet[10:12])

	if qdCount == 0 {
		return q, ErrNoQuestion
	}

	n, off, err := readName(packet, HeaderSize, buf)
	if err != nil {
		return q, err
	}

	if off > len(packet)-qFixedSize {
		return q, ErrTruncated
	}
	q.Qtype = binary.BigEndian.Uint16(packet[off : off+2])
	q.Qclass = binary.BigEndian.Uint16(packet[off+2 : off+4])
	off += qFixedSize

	// Only the usual query shape is scanned. Updates and responses fed to this
	// path keep EDNS false.
	if arCount > 0 && anCount == 0 && nsCount == 0 {
		q.EDNS = scanOPT(packet, off, int(arCount))
	}

	q.Name = newName(buf[:n])
	return q, nil
}

// readName decodes the name at off into buf, lowercasing ASCII letters. It returns
// the number of bytes written and the offset that follows the name in its record.
func readName(packet []byte, off int, buf []byte) (n, next int, err error) {
	var (
		cur    = off
		jumped bool
		jumps  int
	)

	for {
		if cur >= len(packet) {
			return 0, 0, ErrTruncated
		}

		c := packet[cur]
		switch c & pointerMask {
		case 0x00:
		case pointerMask:
			if cur+2 > len(packet) {
				return 0, 0, ErrTruncated
			}
			// bytes after the first pointer belong to the target name
			if !jumped {
				next = cur + 2
				jumped = true
			}
			if jumps++; jumps > MaxJumps {
				return 0, 0, ErrPointerLoop
			}
			cur = int(binary.BigEndian.Uint16(packet[cur:cur+2]) &^ (pointerMask << 8))
			continue
		default:
			return 0, 0, ErrBadLabel
		}

		if c == 0 {
			if !jumped {
				next = cur + 1
			}
			return n, next, nil
		}

		l := int(c)
		cur++
		if cur+l > len(packet) {
			return 0, 0, ErrTruncated
		}

		if n > 0 {
			if n >= len(buf) {
				return 0, 0, ErrBufferTooSmall
			}
			buf[n] = '.'
			n++
		}
		if n+l > len(buf) {
			return 0, 0, ErrBufferTooSmall
		}

		label := packet[cur : cur+l]
		if hasUpper(label) {
			for i, b := range label {
				buf[n+i] = toLower(b)
			}
		} else {
			copy(buf[n:], label)
		}

		n += l
		cur += l
	}
}

// scanOPT looks for an OPT record among the first count additional records at
// off. Any malformed record stops the scan and reports no EDNS.
func scanOPT(packet []byte, off, count int) bool {
	for i := 0; i < count; i++ {
		if off >= len(packet) {
			return false
		}

		next := off + 1 // root owner name
		if packet[off] != 0 {
			var err error
			if next, err = SkipName(packet, off); err != nil {
				return false
			}
		}

		if next > len(packet)-rrFixedSize {
			return false
		}
		if binary.BigEndian.Uint16(packet[next:next+2]) == dns.TypeOPT {
			return true
		}

		end, ok := recordEnd(packet, next)
		if !ok {
			return false
		}
		off = end
	}
	return false
}

func hasUpper(b []byte) bool {
	for _, c := range b {
		if 'A' <= c && c <= 'Z' {
			return true
		}
	}
	return false
}

func toLower(c byte) byte {
	if 'A' <= c && c <= 'Z' {
		return c + 'a' - 'A'
	}
	return c
}
