// Package handle abstracts the live capture handle behind a small interface so
// the capture loop does not care whether frames come from libpcap or AF_PACKET.
package handle

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Options configures a capture handle at open time.
type Options struct {
	Interface   string
	SnapLen     int
	Promiscuous bool
	TimeoutMs   int // Poll timeout for blocking reads, in milliseconds
}

// Stats is a snapshot of kernel-side capture counters.
type Stats struct {
	Received uint64
	Dropped  uint64
}

// Handle is an open capture handle bound to one network interface.
//
// ReadFrame blocks up to the configured timeout; on timeout it returns
// core.ErrReadTimeout so the caller can poll its stop flag and retry.
// Close is safe to call more than once and safe to call concurrently with a
// blocked ReadFrame.
type Handle interface {
	ReadFrame() (data []byte, ci gopacket.CaptureInfo, err error)
	ApplyFilter(expr string) error
	Stats() (Stats, error)
	LinkType() layers.LinkType
	Close() error
}
