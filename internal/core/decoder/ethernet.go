package decoder

import (
	"encoding/binary"

	"icc.tech/netscope/internal/core"
)

const (
	ethernetHeaderLen = 14
	vlanHeaderLen     = 4

	etherTypeIPv4 = 0x0800
	etherTypeVLAN = 0x8100
	etherTypeQinQ = 0x88A8
)

// decodeEthernet decodes the Ethernet frame header, skipping VLAN tags
// (including QinQ nesting), and returns the effective EtherType and payload.
func decodeEthernet(data []byte) (uint16, []byte, error) {
	if len(data) < ethernetHeaderLen {
		return 0, nil, core.ErrFrameTooShort
	}

	etherType := binary.BigEndian.Uint16(data[12:14])
	offset := ethernetHeaderLen

	for etherType == etherTypeVLAN || etherType == etherTypeQinQ {
		if len(data) < offset+vlanHeaderLen {
			return 0, nil, core.ErrFrameTooShort
		}
		// VLAN header: 2 bytes TCI + 2 bytes inner EtherType
		etherType = binary.BigEndian.Uint16(data[offset+2 : offset+4])
		offset += vlanHeaderLen
	}

	return etherType, data[offset:], nil
}
