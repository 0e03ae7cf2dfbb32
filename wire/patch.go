package wire

import (
	"encoding/binary"

	"github.com/miekg/dns"
)

// PatchAllTTLs subtracts decrement from the TTL of every answer, authority and
// additional record of packet in place, flooring at zero. Names, record data and
// counts are never touched, so compression pointers stay valid.
//
// The patch is not transactional. When a record is malformed the walk stops and
// the error is returned: records before it keep their new TTL, the rest keep the
// old one. Use PatchAllTTLsAtomic when that is not acceptable.
func PatchAllTTLs(packet []byte, decrement uint32) error {
	if decrement == 0 {
		return nil
	}
	if len(packet) < HeaderSize {
		return ErrShortMessage
	}

	off, err := skipQuestions(packet, HeaderSize, int(binary.BigEndian.Uint16(packet[4:6])))
	if err != nil {
		return err
	}

	_, err = walkRecords(packet, off, recordCount(packet), func(hdr int) {
		patchTTL(packet[hdr+4:hdr+8], decrement)
	})
	return err
}

// TTLPlan holds the offsets of every TTL field of a message. OPT pseudo-records
// are left out, their TTL field carries the extended rcode and EDNS flags.
type TTLPlan struct {
	offsets []int
}

// PlanTTLs walks every record of packet once and records where its TTL lives.
// It fails when any record is malformed, so a plan is only returned for packets
// that PatchAllTTLs would patch completely.
func PlanTTLs(packet []byte) (TTLPlan, error) {
	if len(packet) < HeaderSize {
		return TTLPlan{}, ErrShortMessage
	}

	off, err := skipQuestions(packet, HeaderSize, int(binary.BigEndian.Uint16(packet[4:6])))
	if err != nil {
		return TTLPlan{}, err
	}

	count := recordCount(packet)
	offsets := make([]int, 0, min(count, len(packet)/(rrFixedSize+1)))
	if _, err = walkRecords(packet, off, count, func(hdr int) {
		if binary.BigEndian.Uint16(packet[hdr:hdr+2]) != dns.TypeOPT {
			offsets = append(offsets, hdr+4)
		}
	}); err != nil {
		return TTLPlan{}, err
	}

	return TTLPlan{offsets: offsets}, nil
}

func (p TTLPlan) Len() int { return len(p.offsets) }

// Apply patches every planned TTL of packet. Nothing is written unless every
// offset fits in packet.
func (p TTLPlan) Apply(packet []byte, decrement uint32) error {
	if decrement == 0 {
		return nil
	}

	for _, off := range p.offsets {
		if off < 0 || off > len(packet)-4 {
			return ErrTruncated
		}
	}

	for _, off := range p.offsets {
		patchTTL(packet[off:off+4], decrement)
	}
	return nil
}

// PatchAllTTLsAtomic is PatchAllTTLs that either patches every record or none.
// Unlike PatchAllTTLs it leaves OPT pseudo-records alone.
func PatchAllTTLsAtomic(packet []byte, decrement uint32) error {
	if decrement == 0 {
		return nil
	}

	p, err := PlanTTLs(packet)
	if err != nil {
		return err
	}
	return p.Apply(packet, decrement)
}

func recordCount(packet []byte) int {
	return int(binary.BigEndian.Uint16(packet[6:8])) +
		int(binary.BigEndian.Uint16(packet[8:10])) +
		int(binary.BigEndian.Uint16(packet[10:12]))
}

func patchTTL(field []byte, decrement uint32) {
	ttl := binary.BigEndian.Uint32(field)
	if ttl > decrement {
		ttl -= decrement
	} else {
		ttl = 0
	}
	binary.BigEndian.PutUint32(field, ttl)
}
