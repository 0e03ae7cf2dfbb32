package wire

import (
	"net"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

// header builds a 12 byte header with RD set.
func header(id, qd, an, ns, ar uint16) []byte {
	return []byte{
		byte(id >> 8), byte(id), 0x01, 0x00,
		byte(qd >> 8), byte(qd), byte(an >> 8), byte(an),
		byte(ns >> 8), byte(ns), byte(ar >> 8), byte(ar),
	}
}

func packQuery(t *testing.T, name string, qtype uint16, edns bool) []byte {
	t.Helper()
	m := new(dns.Msg)
	m.SetQuestion(name, qtype)
	m.Id = 0x1234
	if edns {
		m.SetEdns0(1232, false)
	}
	b, err := m.Pack()
	require.NoError(t, err)
	return b
}

func newA(name string, ttl uint32, ip string) *dns.A {
	return &dns.A{
		Hdr: dns.RR_Header{Name: name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: ttl},
		A:   net.ParseIP(ip).To4(),
	}
}

func newSOA(name string, ttl uint32) *dns.SOA {
	return &dns.SOA{
		Hdr:     dns.RR_Header{Name: name, Rrtype: dns.TypeSOA, Class: dns.ClassINET, Ttl: ttl},
		Ns:      "ns1." + name,
		Mbox:    "hostmaster." + name,
		Serial:  1,
		Refresh: 1800,
		Retry:   900,
		Expire:  604800,
		Minttl:  60,
	}
}

func packMsg(t *testing.T, m *dns.Msg) []byte {
	t.Helper()
	m.Compress = true
	b, err := m.Pack()
	require.NoError(t, err)
	return b
}

func ttls(t *testing.T, packet []byte) []uint32 {
	t.Helper()
	m := new(dns.Msg)
	require.NoError(t, m.Unpack(packet))
	var out []uint32
	for _, section := range [...][]dns.RR{m.Answer, m.Ns, m.Extra} {
		for _, rr := range section {
			out = append(out, rr.Header().Ttl)
		}
	}
	return out
}
