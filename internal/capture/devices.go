package capture

import (
	"fmt"

	"github.com/google/gopacket/pcap"

	"icc.tech/netscope/internal/core"
)

// DeviceInfo describes one capturable network interface.
type DeviceInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Addresses   []string `json:"addresses,omitempty"`
	Loopback    bool     `json:"loopback"`
	Up          bool     `json:"up"`
}

// Devices lists the interfaces libpcap can open on this host.
func Devices() ([]DeviceInfo, error) {
	ifs, err := pcap.FindAllDevs()
	if err != nil {
		return nil, fmt.Errorf("%w: list devices: %v", core.ErrDriver, err)
	}

	out := make([]DeviceInfo, 0, len(ifs))
	for _, dev := range ifs {
		info := DeviceInfo{
			Name:        dev.Name,
			Description: dev.Description,
			Loopback:    dev.Flags&0x01 != 0, // PCAP_IF_LOOPBACK
			Up:          dev.Flags&0x02 != 0, // PCAP_IF_UP
		}
		for _, addr := range dev.Addresses {
			if addr.IP != nil {
				info.Addresses = append(info.Addresses, addr.IP.String())
			}
		}
		out = append(out, info)
	}
	return out, nil
}
