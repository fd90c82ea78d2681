//go:build linux

package handle

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"syscall"

	"github.com/google/gopacket"
	"github.com/google/gopacket/afpacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"golang.org/x/net/bpf"

	"icc.tech/netscope/internal/core"
)

// Default ring buffer budget for the TPacket mmap region.
const afpacketBufferMB = 16

func init() {
	Register("afpacket", openAFPacket)
}

// afpacketHandle wraps a TPACKET_V3 AF_PACKET socket.
type afpacketHandle struct {
	tp        *afpacket.TPacket
	snapLen   int
	closeOnce sync.Once
}

func openAFPacket(opts Options) (Handle, error) {
	if _, err := net.InterfaceByName(opts.Interface); err != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrDeviceNotFound, opts.Interface)
	}

	frameSize, blockSize, numBlocks, err := computeRing(afpacketBufferMB, opts.SnapLen, os.Getpagesize())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrDriver, err)
	}

	timeoutMs := opts.TimeoutMs
	if timeoutMs <= 0 {
		timeoutMs = 500
	}

	tp, err := afpacket.NewTPacket(
		afpacket.OptInterface(opts.Interface),
		afpacket.OptFrameSize(frameSize),
		afpacket.OptBlockSize(blockSize),
		afpacket.OptNumBlocks(numBlocks),
		afpacket.OptPollTimeout(timeoutMs),
		afpacket.SocketRaw,
		afpacket.TPacketVersion3,
	)
	if err != nil {
		if errors.Is(err, syscall.EPERM) || errors.Is(err, syscall.EACCES) {
			return nil, fmt.Errorf("%w: %s", core.ErrPermissionDenied, opts.Interface)
		}
		return nil, fmt.Errorf("%w: open %s: %v", core.ErrDriver, opts.Interface, err)
	}

	return &afpacketHandle{tp: tp, snapLen: opts.SnapLen}, nil
}

func (a *afpacketHandle) ReadFrame() ([]byte, gopacket.CaptureInfo, error) {
	data, ci, err := a.tp.ReadPacketData()
	if err != nil {
		if errors.Is(err, afpacket.ErrTimeout) || errors.Is(err, syscall.EAGAIN) ||
			strings.Contains(strings.ToLower(err.Error()), "timeout") {
			return nil, ci, core.ErrReadTimeout
		}
		return nil, ci, fmt.Errorf("%w: %v", core.ErrDriver, err)
	}
	return data, ci, nil
}

// ApplyFilter compiles the expression with libpcap and installs it as raw
// classic BPF on the socket.
func (a *afpacketHandle) ApplyFilter(expr string) error {
	pcapBPF, err := pcap.CompileBPFFilter(layers.LinkTypeEthernet, a.snapLen, expr)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", core.ErrInvalidFilter, expr, err)
	}
	rawBPF := make([]bpf.RawInstruction, len(pcapBPF))
	for i, inst := range pcapBPF {
		rawBPF[i] = bpf.RawInstruction{
			Op: inst.Code,
			Jt: inst.Jt,
			Jf: inst.Jf,
			K:  inst.K,
		}
	}
	if err := a.tp.SetBPF(rawBPF); err != nil {
		return fmt.Errorf("%w: set bpf: %v", core.ErrDriver, err)
	}
	return nil
}

func (a *afpacketHandle) Stats() (Stats, error) {
	_, v3, err := a.tp.SocketStats()
	if err != nil {
		return Stats{}, fmt.Errorf("%w: stats: %v", core.ErrDriver, err)
	}
	return Stats{
		Received: uint64(v3.Packets()),
		Dropped:  uint64(v3.Drops()),
	}, nil
}

func (a *afpacketHandle) LinkType() layers.LinkType {
	return layers.LinkTypeEthernet
}

func (a *afpacketHandle) Close() error {
	a.closeOnce.Do(func() {
		a.tp.Close()
	})
	return nil
}

// computeRing derives an aligned frame/block geometry for the PACKET_MMAP
// ring from a memory budget and the snapshot length. AF_PACKET requires the
// frame size aligned to TPACKET_ALIGNMENT and the block size to be a multiple
// of both the page size and the frame size.
func computeRing(bufferMB, snapLen, pageSize int) (frameSize, blockSize, numBlocks int, err error) {
	const tpacketAlignment = 16
	const tpacketHdrLen = 52

	if bufferMB <= 0 {
		return 0, 0, 0, fmt.Errorf("buffer size must be positive, got %dMB", bufferMB)
	}
	if snapLen <= 0 {
		return 0, 0, 0, fmt.Errorf("snap length must be positive, got %d", snapLen)
	}
	if pageSize <= 0 || pageSize%tpacketAlignment != 0 {
		return 0, 0, 0, fmt.Errorf("page size must be a positive multiple of %d, got %d", tpacketAlignment, pageSize)
	}

	targetBytes := bufferMB * 1024 * 1024

	rawFrameSize := tpacketHdrLen + snapLen
	frameSize = ((rawFrameSize + tpacketAlignment - 1) / tpacketAlignment) * tpacketAlignment

	minBlockSize := pageSize
	if minBlockSize < frameSize {
		minBlockSize = frameSize
	}

	blockSize = lcm(pageSize, frameSize)

	maxBlockSize := 4 * 1024 * 1024
	if blockSize < minBlockSize {
		blockSize = minBlockSize
	}
	if blockSize > maxBlockSize {
		blockSize = (maxBlockSize / pageSize) * pageSize
	}

	numBlocks = targetBytes / blockSize
	if numBlocks < 1 {
		numBlocks = 1
	}

	if blockSize%frameSize != 0 {
		framesPerBlock := blockSize / frameSize
		if framesPerBlock < 1 {
			framesPerBlock = 1
		}
		blockSize = framesPerBlock * frameSize
		blockSize = ((blockSize + pageSize - 1) / pageSize) * pageSize
	}

	return frameSize, blockSize, numBlocks, nil
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lcm(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	return (a * b) / gcd(a, b)
}
