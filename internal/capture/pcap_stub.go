//go:build !pcap
// +build !pcap

package capture

import (
	"context"
	"fmt"
	"io"
)

// NewPcapSource is a stub implementation when libpcap support is disabled.
// Build with -tags=pcap to enable in-process live capture; the tcpdump
// subprocess source works without it.
func NewPcapSource(ctx context.Context, iface string) (io.ReadCloser, error) {
	return nil, fmt.Errorf("pcap support not enabled: rebuild with -tags=pcap to capture in process")
}
