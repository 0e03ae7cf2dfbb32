package model

import (
	"strconv"
	"time"

	"github.com/treemana/quickdot/wire"
)

// Key identifies a cached response.
type Key struct {
	// Name is the lowercase query name without trailing dot, empty for root
	Name string

	Qtype  uint16
	Qclass uint16

	// EDNS is true when the query carried an OPT record, responses differ on the wire
	EDNS bool
}

func NewKey(q *wire.QuickQuery) Key {
	return Key{
		Name:   q.Name.String(),
		Qtype:  q.Qtype,
		Qclass: q.Qclass,
		EDNS:   q.EDNS,
	}
}

func (k Key) String() string {
	s := k.Name + "/" + strconv.Itoa(int(k.Qtype)) + "/" + strconv.Itoa(int(k.Qclass))
	if k.EDNS {
		s += "/edns"
	}
	return s
}

type Entry struct {
	// Packet is the raw response as received from upstream, never mutated
	Packet []byte

	// TTLs locates the TTL fields of Packet, aging a hit never walks it again
	TTLs wire.TTLPlan

	Stored int64 // unix second, TTLs in Packet are relative to it
	Expire int64 // unix second
}

func (e *Entry) Expired(now time.Time) bool {
	return now.Unix() >= e.Expire
}

// Age returns the seconds elapsed since the entry was stored, floored at zero.
func (e *Entry) Age(now time.Time) uint32 {
	d := now.Unix() - e.Stored
	if d <= 0 {
		return 0
	}
	if d > int64(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(d)
}
