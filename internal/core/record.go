// Package core defines core data structures with zero external dependencies.
package core

import (
	"encoding/binary"
	"fmt"
	"net/netip"
)

// Protocol identifies the transport protocol of a captured frame.
type Protocol uint8

const (
	ProtocolTCP   Protocol = 1
	ProtocolUDP   Protocol = 2
	ProtocolOther Protocol = 3
)

// String returns the display name of the protocol.
func (p Protocol) String() string {
	switch p {
	case ProtocolTCP:
		return "TCP"
	case ProtocolUDP:
		return "UDP"
	default:
		return "OTHER"
	}
}

// RecordSize is the encoded size of a PacketRecord in bytes.
// The layout is a wire contract: consumers decode by position, not by name.
const RecordSize = 17

// PacketRecord is the fixed-layout summary of one captured frame.
//
// Encoded layout (all multi-byte fields big-endian):
//
//	offset 0  [4] source IPv4 address
//	offset 4  [4] destination IPv4 address
//	offset 8  [2] source port (zero when the transport header is absent or truncated)
//	offset 10 [2] destination port
//	offset 12 [1] protocol (1=TCP, 2=UDP, 3=OTHER)
//	offset 13 [4] captured frame length
//
// Length is the number of bytes actually captured, which may be less than the
// on-wire frame length when the snapshot length truncates the frame.
type PacketRecord struct {
	SrcAddr [4]byte
	DstAddr [4]byte
	SrcPort uint16
	DstPort uint16
	Proto   Protocol
	Length  uint32
}

// SrcIP returns the source address as a netip.Addr.
func (r PacketRecord) SrcIP() netip.Addr {
	return netip.AddrFrom4(r.SrcAddr)
}

// DstIP returns the destination address as a netip.Addr.
func (r PacketRecord) DstIP() netip.Addr {
	return netip.AddrFrom4(r.DstAddr)
}

// AppendBinary appends the positional encoding of r to b.
func (r PacketRecord) AppendBinary(b []byte) []byte {
	b = append(b, r.SrcAddr[:]...)
	b = append(b, r.DstAddr[:]...)
	b = binary.BigEndian.AppendUint16(b, r.SrcPort)
	b = binary.BigEndian.AppendUint16(b, r.DstPort)
	b = append(b, byte(r.Proto))
	b = binary.BigEndian.AppendUint32(b, r.Length)
	return b
}

// MarshalBinary encodes r into its fixed RecordSize-byte layout.
func (r PacketRecord) MarshalBinary() ([]byte, error) {
	return r.AppendBinary(make([]byte, 0, RecordSize)), nil
}

// DecodeRecord decodes a PacketRecord from the first RecordSize bytes of b.
func DecodeRecord(b []byte) (PacketRecord, error) {
	if len(b) < RecordSize {
		return PacketRecord{}, fmt.Errorf("%w: need %d bytes, have %d", ErrFrameTooShort, RecordSize, len(b))
	}

	var r PacketRecord
	copy(r.SrcAddr[:], b[0:4])
	copy(r.DstAddr[:], b[4:8])
	r.SrcPort = binary.BigEndian.Uint16(b[8:10])
	r.DstPort = binary.BigEndian.Uint16(b[10:12])
	r.Proto = Protocol(b[12])
	r.Length = binary.BigEndian.Uint32(b[13:17])
	return r, nil
}

// String renders the record in the form "10.0.0.1:443 -> 10.0.0.2:51000 TCP 60B".
func (r PacketRecord) String() string {
	return fmt.Sprintf("%s:%d -> %s:%d %s %dB",
		r.SrcIP(), r.SrcPort, r.DstIP(), r.DstPort, r.Proto, r.Length)
}
