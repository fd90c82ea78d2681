package handle

import (
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopHandle struct{}

func (nopHandle) ReadFrame() ([]byte, gopacket.CaptureInfo, error) {
	return nil, gopacket.CaptureInfo{}, nil
}
func (nopHandle) ApplyFilter(string) error  { return nil }
func (nopHandle) Stats() (Stats, error)     { return Stats{}, nil }
func (nopHandle) LinkType() layers.LinkType { return layers.LinkTypeEthernet }
func (nopHandle) Close() error              { return nil }

func TestOpenRegisteredKind(t *testing.T) {
	Register("nop", func(opts Options) (Handle, error) {
		return nopHandle{}, nil
	})

	h, err := Open("nop", Options{Interface: "eth0"})
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.NoError(t, h.Close())
}

func TestOpenUnknownKind(t *testing.T) {
	_, err := Open("does-not-exist", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown capture handle kind")
}

func TestKindsIncludesBuiltins(t *testing.T) {
	kinds := Kinds()
	assert.Contains(t, kinds, "pcap")
}
