package bacclient

// BACnet/IP datalink (ASHRAE 135 Annex J) over a single UDP socket

import (
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"time"

	bacerrors "github.com/tturner/bacscan/internal/errors"
	"github.com/tturner/bacscan/internal/logging"
)

// DatagramRecorder mirrors sent and received BVLL frames, e.g. into a
// pcap file.
type DatagramRecorder interface {
	RecordOutbound(dst *net.UDPAddr, frame []byte)
	RecordInbound(src *net.UDPAddr, frame []byte)
}

// BIPOptions configures the datalink. The zero value listens on the
// standard port and broadcasts on all interfaces.
type BIPOptions struct {
	Port      int
	Interface string // limit the broadcast to one interface

	// Registering with a BBMD makes this client a foreign device on a
	// routed network; broadcasts are then distributed by the BBMD.
	BBMDAddress    string
	BBMDPort       int
	BBMDTTLSeconds int

	Logger   *logging.Logger
	Recorder DatagramRecorder
}

// BIPDatalink sends Who-Is broadcasts and receives BVLL frames.
type BIPDatalink struct {
	conn      *net.UDPConn
	port      int
	broadcast *net.UDPAddr
	bbmd      *net.UDPAddr
	log       *logging.Logger
	recorder  DatagramRecorder
	raw       [MaxMPDU]byte
}

// NewBIPDatalink opens the UDP socket and, when a BBMD is configured,
// registers as a foreign device. A failure here is fatal for the whole
// run: no session can start without a datalink.
func NewBIPDatalink(opts BIPOptions) (*BIPDatalink, error) {
	port := opts.Port
	if port == 0 {
		port = DefaultUDPPort
	}
	log := opts.Logger
	if log == nil {
		log, _ = logging.NewLogger(logging.LogLevelSilent, "")
	}

	broadcast := &net.UDPAddr{IP: net.IPv4bcast, Port: port}
	if opts.Interface != "" {
		ip, err := interfaceBroadcastIP(opts.Interface)
		if err != nil {
			return nil, err
		}
		broadcast = &net.UDPAddr{IP: ip, Port: port}
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: port})
	if err != nil {
		return nil, bacerrors.WrapDatalinkError(err, port)
	}

	d := &BIPDatalink{
		conn:      conn,
		port:      port,
		broadcast: broadcast,
		log:       log,
		recorder:  opts.Recorder,
	}

	if opts.BBMDAddress != "" {
		if err := d.registerForeignDevice(opts); err != nil {
			conn.Close()
			return nil, err
		}
	}

	return d, nil
}

// interfaceBroadcastIP finds the IPv4 subnet broadcast address of a
// named interface.
func interfaceBroadcastIP(name string) (net.IP, error) {
	ief, err := net.InterfaceByName(name)
	if err != nil {
		return nil, fmt.Errorf("interface %s: %w", name, err)
	}
	addrs, err := ief.Addrs()
	if err != nil {
		return nil, fmt.Errorf("get interface addresses: %w", err)
	}
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() || ipnet.IP.To4() == nil {
			continue
		}
		ip := ipnet.IP.To4()
		mask := ipnet.Mask
		broadcast := make(net.IP, 4)
		for i := range ip {
			broadcast[i] = ip[i] | ^mask[i]
		}
		return broadcast, nil
	}
	return nil, fmt.Errorf("no IPv4 address found on interface %s", name)
}

// registerForeignDevice sends a Register-Foreign-Device request to the
// BBMD. Registration is fire-and-forget; the BVLC-Result arrives on
// the same socket and is handled by the receive path.
func (d *BIPDatalink) registerForeignDevice(opts BIPOptions) error {
	bbmdPort := opts.BBMDPort
	if bbmdPort == 0 {
		bbmdPort = DefaultUDPPort
	}
	ttl := opts.BBMDTTLSeconds
	if ttl == 0 {
		ttl = 60000
	}
	if ttl > 0xFFFF {
		ttl = 0xFFFF
	}

	addr, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(opts.BBMDAddress, strconv.Itoa(bbmdPort)))
	if err != nil {
		return bacerrors.WrapBBMDError(err, opts.BBMDAddress, bbmdPort)
	}

	frame := EncodeRegisterForeignDevice(uint16(ttl))
	if d.recorder != nil {
		d.recorder.RecordOutbound(addr, frame)
	}
	if _, err := d.conn.WriteToUDP(frame, addr); err != nil {
		return bacerrors.WrapBBMDError(err, opts.BBMDAddress, bbmdPort)
	}

	d.bbmd = addr
	d.log.Info("Registering with BBMD at %s for %d seconds", addr, ttl)
	return nil
}

// SetRecorder attaches a datagram recorder. Must be called before the
// session starts polling.
func (d *BIPDatalink) SetRecorder(r DatagramRecorder) {
	d.recorder = r
}

// LocalAddr returns the bound UDP address.
func (d *BIPDatalink) LocalAddr() *net.UDPAddr {
	return d.conn.LocalAddr().(*net.UDPAddr)
}

// SendWhoIs broadcasts one Who-Is request covering [low, high].
// Foreign devices route the broadcast through their BBMD instead.
func (d *BIPDatalink) SendWhoIs(low, high uint32) error {
	npdu := NewGlobalBroadcastNPDU().Encode()
	payload := append(npdu, EncodeWhoIs(low, high)...)

	var frame []byte
	var dst *net.UDPAddr
	if d.bbmd != nil {
		frame = EncodeBVLC(BVLCDistributeBroadcastToNetwork, payload)
		dst = d.bbmd
	} else {
		frame = EncodeBVLC(BVLCOriginalBroadcastNPDU, payload)
		dst = d.broadcast
	}

	d.log.LogHex("Who-Is", frame)
	if d.recorder != nil {
		d.recorder.RecordOutbound(dst, frame)
	}
	if _, err := d.conn.WriteToUDP(frame, dst); err != nil {
		return fmt.Errorf("send Who-Is broadcast: %w", err)
	}
	return nil
}

// Receive waits up to timeout for one datagram and copies its NPDU
// into buf. Returns n == 0 on idle timeout and for BVLL frames that
// carry no NPDU (results, BBMD maintenance traffic).
func (d *BIPDatalink) Receive(buf []byte, timeout time.Duration) (int, Address, error) {
	if err := d.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, Address{}, fmt.Errorf("set read deadline: %w", err)
	}

	n, src, err := d.conn.ReadFromUDP(d.raw[:])
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return 0, Address{}, nil
		}
		return 0, Address{}, err
	}

	if d.recorder != nil {
		d.recorder.RecordInbound(src, d.raw[:n])
	}

	function, body, err := DecodeBVLC(d.raw[:n])
	if err != nil {
		d.log.Debug("non-BVLL datagram from %s: %v", src, err)
		return 0, Address{}, nil
	}

	switch function {
	case BVLCOriginalUnicastNPDU, BVLCOriginalBroadcastNPDU:
		return copy(buf, body), bipAddress(src), nil

	case BVLCForwardedNPDU:
		origin, npdu, err := DecodeForwardedNPDU(body)
		if err != nil {
			d.log.Debug("bad Forwarded-NPDU from %s: %v", src, err)
			return 0, Address{}, nil
		}
		return copy(buf, npdu), origin, nil

	case BVLCResult:
		code, err := DecodeBVLCResult(body)
		if err != nil {
			d.log.Debug("bad BVLC-Result from %s: %v", src, err)
		} else if code != 0 {
			d.log.Error("BVLC-Result from %s: 0x%04X", src, code)
		} else {
			d.log.Verbose("BVLC-Result from %s: success", src)
		}
		return 0, Address{}, nil

	default:
		// BBMD table maintenance and other BVLL functions are not
		// part of discovery.
		return 0, Address{}, nil
	}
}

// Close releases the socket.
func (d *BIPDatalink) Close() error {
	return d.conn.Close()
}

// bipAddress converts a UDP source address into a 6-byte B/IP MAC.
func bipAddress(src *net.UDPAddr) Address {
	mac := make([]byte, 6)
	copy(mac, src.IP.To4())
	binary.BigEndian.PutUint16(mac[4:], uint16(src.Port))
	return Address{MAC: mac}
}
