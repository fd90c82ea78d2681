// Package decoder implements L2-L4 decoding of captured frames into PacketRecords.
package decoder

import (
	"icc.tech/netscope/internal/core"
)

const (
	protocolTCP = 6
	protocolUDP = 17
)

// Decode parses a captured frame and produces its fixed-layout summary record.
//
// Only IPv4 frames produce a record; any other link or network protocol yields
// core.ErrUnsupportedProto. Ports are extracted for TCP/UDP when the frame is
// long enough to contain the transport header, otherwise they stay zero while
// the protocol is still reported. The record length is the captured length of
// the frame, not the header-declared length: snapshot truncation is preserved.
func Decode(data []byte) (core.PacketRecord, error) {
	etherType, payload, err := decodeEthernet(data)
	if err != nil {
		return core.PacketRecord{}, err
	}
	if etherType != etherTypeIPv4 {
		return core.PacketRecord{}, core.ErrUnsupportedProto
	}

	ip, payload, err := decodeIPv4(payload)
	if err != nil {
		return core.PacketRecord{}, err
	}

	rec := core.PacketRecord{
		SrcAddr: ip.src,
		DstAddr: ip.dst,
		Length:  uint32(len(data)),
	}

	switch ip.protocol {
	case protocolTCP:
		rec.Proto = core.ProtocolTCP
	case protocolUDP:
		rec.Proto = core.ProtocolUDP
	default:
		rec.Proto = core.ProtocolOther
	}

	if ip.protocol == protocolTCP || ip.protocol == protocolUDP {
		rec.SrcPort, rec.DstPort = decodePorts(payload)
	}

	return rec, nil
}
