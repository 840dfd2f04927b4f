package bacclient

// Shared BACnet types and protocol limits

import (
	"encoding/binary"
	"fmt"
	"net"
	"strings"
)

const (
	// MaxInstance is the largest object instance number (22 bits).
	MaxInstance uint32 = 4194303

	// MaxMPDU is the receive buffer size for one BACnet/IP datagram.
	MaxMPDU = 1500

	// DefaultUDPPort is the standard BACnet/IP port (0xBAC0).
	DefaultUDPPort = 47808

	objectTypeDevice = 8
)

// Address identifies a peer across the datalink and network layers.
// For BACnet/IP the MAC is the 4-byte IPv4 address followed by the
// 2-byte UDP port. Net and Adr are populated when the reply crossed a
// router and carried a source network address.
type Address struct {
	MAC []byte
	Net uint16
	Adr []byte
}

func (a Address) String() string {
	if len(a.MAC) == 6 {
		ip := net.IP(a.MAC[:4])
		port := binary.BigEndian.Uint16(a.MAC[4:6])
		if a.Net != 0 {
			return fmt.Sprintf("%s:%d (net %d)", ip, port, a.Net)
		}
		return fmt.Sprintf("%s:%d", ip, port)
	}
	parts := make([]string, len(a.MAC))
	for i, b := range a.MAC {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, ":")
}
