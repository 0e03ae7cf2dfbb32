package wire

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

// rawResponse builds a response for example.com with one compressed A record per
// ttl. The returned offsets point at each TTL field.
func rawResponse(an, ns, ar uint16, ttls ...uint32) ([]byte, []int) {
	b := header(0, 1, an, ns, ar)
	b[2] |= 0x80
	b = append(b, "\x07example\x03com\x00\x00\x01\x00\x01"...)

	offsets := make([]int, 0, len(ttls))
	for _, ttl := range ttls {
		offsets = append(offsets, len(b)+6)
		b = append(b, 0xc0, 0x0c, 0x00, 0x01, 0x00, 0x01)
		b = binary.BigEndian.AppendUint32(b, ttl)
		b = append(b, 0x00, 0x04, 0x01, 0x02, 0x03, 0x04)
	}
	return b, offsets
}

func ttlAt(b []byte, off int) uint32 {
	return binary.BigEndian.Uint32(b[off : off+4])
}

func TestPatchAllTTLs(t *testing.T) {
	tests := []struct {
		name      string
		an        uint16
		ns        uint16
		ar        uint16
		ttls      []uint32
		decrement uint32
		want      []uint32
	}{
		{name: "basic", an: 1, ttls: []uint32{600}, decrement: 100, want: []uint32{500}},
		{name: "saturating", an: 1, ttls: []uint32{50}, decrement: 100, want: []uint32{0}},
		{name: "exact", an: 1, ttls: []uint32{100}, decrement: 100, want: []uint32{0}},
		{name: "all sections", an: 1, ns: 1, ar: 1, ttls: []uint32{1000, 2000, 3000}, decrement: 500, want: []uint32{500, 1500, 2500}},
		{name: "max ttl", an: 1, ttls: []uint32{0xffffffff}, decrement: 1, want: []uint32{0xfffffffe}},
		{name: "max decrement", an: 2, ttls: []uint32{1, 0xffffffff}, decrement: 0xffffffff, want: []uint32{0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, offsets := rawResponse(tt.an, tt.ns, tt.ar, tt.ttls...)
			require.NoError(t, PatchAllTTLs(b, tt.decrement))
			for i, off := range offsets {
				require.Equal(t, tt.want[i], ttlAt(b, off), "record %d", i)
			}
		})
	}
}

func TestPatchAllTTLsZeroDecrement(t *testing.T) {
	b, _ := rawResponse(1, 1, 1, 1000, 2000, 3000)
	orig := bytes.Clone(b)
	require.NoError(t, PatchAllTTLs(b, 0))
	require.Equal(t, orig, b)

	// garbage is left alone as well
	garbage := []byte{0xde, 0xad}
	require.NoError(t, PatchAllTTLs(garbage, 0))
	require.Equal(t, []byte{0xde, 0xad}, garbage)
}

func TestPatchAllTTLsShort(t *testing.T) {
	b := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	require.ErrorIs(t, PatchAllTTLs(b, 10), ErrShortMessage)
	require.Equal(t, []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, b)
}

func TestPatchAllTTLsOnlyTouchesTTLs(t *testing.T) {
	r := newResponse("www.example.com.", dns.RcodeSuccess,
		&dns.CNAME{
			Hdr:    dns.RR_Header{Name: "www.example.com.", Rrtype: dns.TypeCNAME, Class: dns.ClassINET, Ttl: 3600},
			Target: "web.example.com.",
		},
		newA("web.example.com.", 300, "192.0.2.10"))
	r.Ns = []dns.RR{newSOA("example.com.", 900)}
	r.Extra = []dns.RR{newA("ns1.example.com.", 86400, "192.0.2.53")}
	b := packMsg(t, r)
	orig := bytes.Clone(b)

	plan, err := PlanTTLs(b)
	require.NoError(t, err)
	require.Equal(t, 4, plan.Len())

	require.NoError(t, PatchAllTTLs(b, 120))
	require.Equal(t, []uint32{3480, 180, 780, 86280}, ttls(t, b))

	// every byte outside the TTL fields is unchanged
	for _, off := range plan.offsets {
		copy(b[off:off+4], orig[off:off+4])
	}
	require.Equal(t, orig, b)
}

func TestPatchAllTTLsPartial(t *testing.T) {
	b, offsets := rawResponse(3, 0, 0, 100, 200, 300)
	b = b[:len(b)-2] // cut the last record data

	require.ErrorIs(t, PatchAllTTLs(b, 50), ErrOverflow)
	require.Equal(t, uint32(50), ttlAt(b, offsets[0]))
	require.Equal(t, uint32(150), ttlAt(b, offsets[1]))
	// the broken record was reached before its data was checked
	require.Equal(t, uint32(250), ttlAt(b, offsets[2]))

	b, offsets = rawResponse(3, 0, 0, 100, 200, 300)
	b = b[:offsets[2]] // cut inside the last fixed header

	require.ErrorIs(t, PatchAllTTLs(b, 50), ErrTruncated)
	require.Equal(t, uint32(50), ttlAt(b, offsets[0]))
	require.Equal(t, uint32(150), ttlAt(b, offsets[1]))
}

func TestPatchAllTTLsBadQuestion(t *testing.T) {
	b, _ := rawResponse(1, 0, 0, 100)
	b[12] = 0x3f // label longer than the message
	orig := bytes.Clone(b)

	require.ErrorIs(t, PatchAllTTLs(b, 10), ErrTruncated)
	require.Equal(t, orig, b)
}

func TestPatchAllTTLsAtomic(t *testing.T) {
	b, offsets := rawResponse(3, 0, 0, 100, 200, 300)
	b = b[:len(b)-2]
	orig := bytes.Clone(b)

	require.ErrorIs(t, PatchAllTTLsAtomic(b, 50), ErrOverflow)
	require.Equal(t, orig, b)

	b, offsets = rawResponse(3, 0, 0, 100, 200, 300)
	require.NoError(t, PatchAllTTLsAtomic(b, 150))
	require.Equal(t, uint32(0), ttlAt(b, offsets[0]))
	require.Equal(t, uint32(50), ttlAt(b, offsets[1]))
	require.Equal(t, uint32(150), ttlAt(b, offsets[2]))
}

func TestTTLPlanApply(t *testing.T) {
	b, offsets := rawResponse(2, 0, 0, 100, 200)
	plan, err := PlanTTLs(b)
	require.NoError(t, err)
	require.Equal(t, offsets, plan.offsets)

	// a plan never writes into a buffer it does not fit
	short := bytes.Clone(b[:offsets[1]+2])
	require.ErrorIs(t, plan.Apply(short, 10), ErrTruncated)
	require.Equal(t, b[:offsets[1]+2], short)

	require.NoError(t, plan.Apply(b, 0))
	require.Equal(t, uint32(100), ttlAt(b, offsets[0]))

	require.NoError(t, plan.Apply(b, 10))
	require.Equal(t, uint32(90), ttlAt(b, offsets[0]))
	require.Equal(t, uint32(190), ttlAt(b, offsets[1]))

	_, err = PlanTTLs(b[:5])
	require.ErrorIs(t, err, ErrShortMessage)
}

func TestPlanTTLsSkipsOPT(t *testing.T) {
	r := newResponse("example.com.", dns.RcodeSuccess, newA("example.com.", 300, "192.0.2.1"))
	r.SetEdns0(1232, true)
	b := packMsg(t, r)

	plan, err := PlanTTLs(b)
	require.NoError(t, err)
	require.Equal(t, 1, plan.Len())

	aged := bytes.Clone(b)
	require.NoError(t, plan.Apply(aged, 100))
	m := new(dns.Msg)
	require.NoError(t, m.Unpack(aged))
	require.Equal(t, uint32(200), m.Answer[0].Header().Ttl)
	require.True(t, m.IsEdns0().Do())

	// the plain patcher treats the OPT record like any other
	require.NoError(t, PatchAllTTLs(b, 100))
	require.NoError(t, m.Unpack(b))
	require.Equal(t, uint32(200), m.Answer[0].Header().Ttl)
	require.False(t, m.IsEdns0().Do())
}
