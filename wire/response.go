package wire

import (
	"encoding/binary"
	"math"
	"strconv"

	"github.com/miekg/dns"
)

type QuickResponse struct {
	Rcode     int
	MinTTL    uint32 // minimum answer TTL, 0 without answers
	Truncated bool
	Answers   uint16
}

func (r QuickResponse) RcodeString() string {
	if s, ok := dns.RcodeToString[r.Rcode]; ok {
		return s
	}
	return strconv.Itoa(r.Rcode)
}

// ParseResponseQuick extracts the base rcode, the TC flag and the minimum TTL of
// the answer section. Authority and additional records never contribute to MinTTL.
// Any malformed question or answer fails the whole scan, a partial minimum is
// never returned.
func ParseResponseQuick(packet []byte) (QuickResponse, error) {
	var r QuickResponse

	if len(packet) < HeaderSize {
		return r, ErrShortMessage
	}

	r.Truncated = packet[2]&flagTC != 0
	r.Rcode = int(packet[3] & rcodeMask)
	qdCount := binary.BigEndian.Uint16(packet[4:6])
	r.Answers = binary.BigEndian.Uint16(packet[6:8])

	if r.Answers == 0 {
		return r, nil
	}

	off, err := skipQuestions(packet, HeaderSize, int(qdCount))
	if err != nil {
		return QuickResponse{}, err
	}

	var minTTL uint32 = math.MaxUint32
	var seen bool
	_, err = walkRecords(packet, off, int(r.Answers), func(hdr int) {
		seen = true
		minTTL = min(minTTL, binary.BigEndian.Uint32(packet[hdr+4:hdr+8]))
	})
	if err != nil {
		return QuickResponse{}, err
	}

	if seen {
		r.MinTTL = minTTL
	}
	return r, nil
}
