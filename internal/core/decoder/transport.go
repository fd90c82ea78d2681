package decoder

import (
	"encoding/binary"
)

// portsLen covers the source and destination port fields shared by the
// TCP and UDP header layouts.
const portsLen = 4

// decodePorts extracts the source and destination ports from a TCP or UDP
// header. Both layouts start with the two 16-bit port fields. When the frame
// is too short to contain them (snapshot truncation), the ports stay zero;
// truncation is not a decode failure.
func decodePorts(data []byte) (srcPort, dstPort uint16) {
	if len(data) < portsLen {
		return 0, 0
	}
	return binary.BigEndian.Uint16(data[0:2]), binary.BigEndian.Uint16(data[2:4])
}
