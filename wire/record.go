package wire

import "encoding/binary"

// recordEnd returns the offset following the resource record whose fixed header
// starts at hdr. The caller has checked that the fixed header is in bounds.
func recordEnd(packet []byte, hdr int) (int, bool) {
	size := rrFixedSize + int(binary.BigEndian.Uint16(packet[hdr+8:hdr+10]))
	if hdr > len(packet)-size {
		return 0, false
	}
	return hdr + size, true
}

func skipQuestions(packet []byte, off, count int) (int, error) {
	var err error
	for i := 0; i < count; i++ {
		if off, err = SkipName(packet, off); err != nil {
			return 0, err
		}
		if off > len(packet)-qFixedSize {
			return 0, ErrTruncated
		}
		off += qFixedSize
	}
	return off, nil
}

// walkRecords visits count resource records starting at off and calls fn with the
// offset of each fixed record header, before the record data is bounds checked.
// It stops at the first malformed record.
func walkRecords(packet []byte, off, count int, fn func(hdr int)) (int, error) {
	var err error
	for i := 0; i < count; i++ {
		if off, err = SkipName(packet, off); err != nil {
			return 0, err
		}
		if off > len(packet)-rrFixedSize {
			return 0, ErrTruncated
		}

		fn(off)

		end, ok := recordEnd(packet, off)
		if !ok {
			return 0, ErrOverflow
		}
		off = end
	}
	return off, nil
}
