package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadHeader(t *testing.T) {
	b := header(0xabcd, 1, 2, 3, 4)
	b[2] |= flagTC
	b[3] = 0x83 // RA + NXDOMAIN

	h, err := ReadHeader(b)
	require.NoError(t, err)
	require.Equal(t, Header{
		ID:        0xabcd,
		Truncated: true,
		Rcode:     3,
		QDCount:   1,
		ANCount:   2,
		NSCount:   3,
		ARCount:   4,
	}, h)

	_, err = ReadHeader(b[:11])
	require.ErrorIs(t, err, ErrShortMessage)
}

func TestSetID(t *testing.T) {
	b := header(1, 1, 0, 0, 0)
	require.NoError(t, SetID(b, 0xbeef))
	require.Equal(t, []byte{0xbe, 0xef}, b[:2])
	require.Equal(t, header(1, 1, 0, 0, 0)[2:], b[2:])

	require.ErrorIs(t, SetID(make([]byte, 2), 1), ErrShortMessage)
}
