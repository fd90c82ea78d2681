package handle

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"icc.tech/netscope/internal/core"
)

func init() {
	Register("pcap", openPcap)
}

// pcapHandle wraps a libpcap live handle.
type pcapHandle struct {
	h         *pcap.Handle
	closeOnce sync.Once
}

func openPcap(opts Options) (Handle, error) {
	timeout := time.Duration(opts.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}

	h, err := pcap.OpenLive(opts.Interface, int32(opts.SnapLen), opts.Promiscuous, timeout)
	if err != nil {
		return nil, classifyOpenError(opts.Interface, err)
	}
	return &pcapHandle{h: h}, nil
}

// classifyOpenError maps libpcap's string-typed open failures onto the
// package sentinels. libpcap reports everything as text, so matching on
// message fragments is the only option.
func classifyOpenError(iface string, err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "no such device") || strings.Contains(msg, "doesn't exist"):
		return fmt.Errorf("%w: %s", core.ErrDeviceNotFound, iface)
	case strings.Contains(msg, "permission denied") || strings.Contains(msg, "operation not permitted"):
		return fmt.Errorf("%w: %s", core.ErrPermissionDenied, iface)
	default:
		return fmt.Errorf("%w: open %s: %v", core.ErrDriver, iface, err)
	}
}

func (p *pcapHandle) ReadFrame() ([]byte, gopacket.CaptureInfo, error) {
	data, ci, err := p.h.ReadPacketData()
	if err != nil {
		if errors.Is(err, pcap.NextErrorTimeoutExpired) {
			return nil, ci, core.ErrReadTimeout
		}
		return nil, ci, fmt.Errorf("%w: %v", core.ErrDriver, err)
	}
	return data, ci, nil
}

func (p *pcapHandle) ApplyFilter(expr string) error {
	if err := p.h.SetBPFFilter(expr); err != nil {
		return fmt.Errorf("%w: %q: %v", core.ErrInvalidFilter, expr, err)
	}
	return nil
}

func (p *pcapHandle) Stats() (Stats, error) {
	s, err := p.h.Stats()
	if err != nil {
		return Stats{}, fmt.Errorf("%w: stats: %v", core.ErrDriver, err)
	}
	return Stats{
		Received: uint64(s.PacketsReceived),
		Dropped:  uint64(s.PacketsDropped + s.PacketsIfDropped),
	}, nil
}

func (p *pcapHandle) LinkType() layers.LinkType {
	return p.h.LinkType()
}

func (p *pcapHandle) Close() error {
	p.closeOnce.Do(func() {
		p.h.Close()
	})
	return nil
}
