//go:build pcap
// +build pcap

package capture

import (
	"context"
	"fmt"
	"io"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

// NewPcapSource opens a live capture on a monitor-mode interface and emits
// one line per management probe request, in the same shape tcpdump prints,
// so the downstream parser handles both sources identically.
func NewPcapSource(ctx context.Context, iface string) (io.ReadCloser, error) {
	handle, err := pcap.OpenLive(iface, 256, true, pcap.BlockForever)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s for capture: %w", iface, err)
	}
	if err := handle.SetBPFFilter("type mgt subtype probe-req"); err != nil {
		handle.Close()
		return nil, fmt.Errorf("failed to set BPF filter: %w", err)
	}

	r, w := io.Pipe()
	source := gopacket.NewPacketSource(handle, handle.LinkType())

	go func() {
		defer w.Close()
		defer handle.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case packet, ok := <-source.Packets():
				if !ok {
					return
				}
				line, ok := formatProbeRequest(packet)
				if !ok {
					continue
				}
				if _, err := fmt.Fprintln(w, line); err != nil {
					return
				}
			}
		}
	}()

	return &pcapSource{reader: r, handle: handle}, nil
}

type pcapSource struct {
	reader *io.PipeReader
	handle *pcap.Handle
}

func (s *pcapSource) Read(p []byte) (int, error) { return s.reader.Read(p) }

func (s *pcapSource) Close() error {
	s.handle.Close()
	return s.reader.Close()
}

// formatProbeRequest renders a captured probe request as a tcpdump-style
// line with the fields the parser extracts: source address and signal.
func formatProbeRequest(packet gopacket.Packet) (string, bool) {
	dot11Layer := packet.Layer(layers.LayerTypeDot11)
	if dot11Layer == nil {
		return "", false
	}
	dot11, ok := dot11Layer.(*layers.Dot11)
	if !ok || dot11.Type != layers.Dot11TypeMgmtProbeReq {
		return "", false
	}

	signal := 0
	if rtLayer := packet.Layer(layers.LayerTypeRadioTap); rtLayer != nil {
		if rt, ok := rtLayer.(*layers.RadioTap); ok && rt.Present.DBMAntennaSignal() {
			signal = int(rt.DBMAntennaSignal)
		}
	}

	return fmt.Sprintf("%ddBm signal BSSID:Broadcast DA:Broadcast SA:%s Probe Request",
		signal, dot11.Address2), true
}
