package capture

// Datagram capture to a pcap file. The scanner owns the discovery
// socket, so frames are recorded at the application layer and wrapped
// in synthesized Ethernet/IPv4/UDP headers rather than sniffed off the
// wire. The output opens in Wireshark with its BACnet dissectors.

import (
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Writer records BVLL frames into a pcap file. Safe for use from the
// polling goroutine while the main goroutine holds the handle.
type Writer struct {
	mu    sync.Mutex
	file  *os.File
	pcapw *pcapgo.Writer
	local *net.UDPAddr
	count int
	err   error
}

// NewWriter creates a pcap file for a session bound to local.
func NewWriter(path string, local *net.UDPAddr) (*Writer, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create pcap file: %w", err)
	}
	pcapw := pcapgo.NewWriter(file)
	if err := pcapw.WriteFileHeader(65535, layers.LinkTypeEthernet); err != nil {
		file.Close()
		return nil, fmt.Errorf("write pcap header: %w", err)
	}
	return &Writer{file: file, pcapw: pcapw, local: local}, nil
}

// RecordOutbound records a frame sent from the local socket to dst.
func (w *Writer) RecordOutbound(dst *net.UDPAddr, frame []byte) {
	w.record(w.local, dst, frame)
}

// RecordInbound records a frame received from src on the local socket.
func (w *Writer) RecordInbound(src *net.UDPAddr, frame []byte) {
	w.record(src, w.local, frame)
}

func (w *Writer) record(src, dst *net.UDPAddr, frame []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return
	}

	eth := layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01},
		DstMAC:       net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    ipv4Or(src, net.IPv4zero),
		DstIP:    ipv4Or(dst, net.IPv4bcast),
	}
	udp := layers.UDP{
		SrcPort: layers.UDPPort(src.Port),
		DstPort: layers.UDPPort(dst.Port),
	}
	if err := udp.SetNetworkLayerForChecksum(&ip); err != nil {
		w.err = err
		return
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, &eth, &ip, &udp, gopacket.Payload(frame)); err != nil {
		w.err = err
		return
	}

	data := buf.Bytes()
	ci := gopacket.CaptureInfo{
		Timestamp:     time.Now(),
		CaptureLength: len(data),
		Length:        len(data),
	}
	if err := w.pcapw.WritePacket(ci, data); err != nil {
		w.err = err
		return
	}
	w.count++
}

func ipv4Or(addr *net.UDPAddr, fallback net.IP) net.IP {
	if addr != nil {
		if ip := addr.IP.To4(); ip != nil {
			return ip
		}
	}
	return fallback
}

// Count returns the number of frames written so far.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Close flushes and closes the pcap file, surfacing any write error
// deferred during recording.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if cerr := w.file.Close(); w.err == nil {
		w.err = cerr
	}
	return w.err
}
