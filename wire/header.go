package wire

import "encoding/binary"

const (
	HeaderSize = 12

	rrFixedSize = 10 // type(2) class(2) ttl(4) rdlength(2)
	qFixedSize  = 4  // type(2) class(2)

	flagTC      = 0x02
	rcodeMask   = 0x0F
	pointerMask = 0xC0
)

type Header struct {
	ID        uint16
	Truncated bool
	Rcode     int // base rcode only, OPT extended bits are not merged
	QDCount   uint16
	ANCount   uint16
	NSCount   uint16
	ARCount   uint16
}

// ReadHeader decodes the fixed 12 byte header of packet.
func ReadHeader(packet []byte) (Header, error) {
	if len(packet) < HeaderSize {
		return Header{}, ErrShortMessage
	}

	return Header{
		ID:        binary.BigEndian.Uint16(packet[0:2]),
		Truncated: packet[2]&flagTC != 0,
		Rcode:     int(packet[3] & rcodeMask),
		QDCount:   binary.BigEndian.Uint16(packet[4:6]),
		ANCount:   binary.BigEndian.Uint16(packet[6:8]),
		NSCount:   binary.BigEndian.Uint16(packet[8:10]),
		ARCount:   binary.BigEndian.Uint16(packet[10:12]),
	}, nil
}

// SetID rewrites the transaction id of packet in place.
func SetID(packet []byte, id uint16) error {
	if len(packet) < HeaderSize {
		return ErrShortMessage
	}
	binary.BigEndian.PutUint16(packet[0:2], id)
	return nil
}
