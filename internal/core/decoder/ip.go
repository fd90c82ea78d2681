package decoder

import (
	"icc.tech/netscope/internal/core"
)

const ipv4HeaderMinLen = 20

// ipv4Header holds the IPv4 fields the record needs.
type ipv4Header struct {
	src      [4]byte
	dst      [4]byte
	protocol uint8
}

// decodeIPv4 decodes an IPv4 header and returns it with the remaining payload.
func decodeIPv4(data []byte) (ipv4Header, []byte, error) {
	if len(data) < 1 {
		return ipv4Header{}, nil, core.ErrFrameTooShort
	}
	if version := data[0] >> 4; version != 4 {
		return ipv4Header{}, nil, core.ErrUnsupportedProto
	}
	if len(data) < ipv4HeaderMinLen {
		return ipv4Header{}, nil, core.ErrFrameTooShort
	}

	// IHL is in 32-bit words, lower 4 bits of the first byte
	headerLen := int(data[0]&0x0F) * 4
	if headerLen < ipv4HeaderMinLen || len(data) < headerLen {
		return ipv4Header{}, nil, core.ErrFrameTooShort
	}

	var ip ipv4Header
	ip.protocol = data[9]
	copy(ip.src[:], data[12:16])
	copy(ip.dst[:], data[16:20])

	return ip, data[headerLen:], nil
}
