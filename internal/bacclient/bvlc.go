package bacclient

// BACnet/IP virtual link layer handling (ASHRAE 135 Annex J)

import (
	"encoding/binary"
	"fmt"
)

const bvlcTypeBACnetIP = 0x81

// BVLL function codes
const (
	BVLCResult                       = 0x00
	BVLCForwardedNPDU                = 0x04
	BVLCRegisterForeignDevice        = 0x05
	BVLCDistributeBroadcastToNetwork = 0x09
	BVLCOriginalUnicastNPDU          = 0x0A
	BVLCOriginalBroadcastNPDU        = 0x0B
)

// EncodeBVLC wraps an NPDU (or function-specific body) in the 4-byte
// BVLL header:
// - Type (1 byte, always 0x81 for BACnet/IP)
// - Function (1 byte)
// - Length (2 bytes, big-endian, includes the header itself)
func EncodeBVLC(function byte, body []byte) []byte {
	frame := make([]byte, 4+len(body))
	frame[0] = bvlcTypeBACnetIP
	frame[1] = function
	binary.BigEndian.PutUint16(frame[2:4], uint16(4+len(body)))
	copy(frame[4:], body)
	return frame
}

// DecodeBVLC validates the BVLL header and returns the function code
// and body.
func DecodeBVLC(frame []byte) (byte, []byte, error) {
	if len(frame) < 4 {
		return 0, nil, fmt.Errorf("BVLL frame too short: %d bytes (minimum 4)", len(frame))
	}
	if frame[0] != bvlcTypeBACnetIP {
		return 0, nil, fmt.Errorf("not a BACnet/IP frame: type 0x%02X", frame[0])
	}
	length := int(binary.BigEndian.Uint16(frame[2:4]))
	if length != len(frame) {
		return 0, nil, fmt.Errorf("BVLL length mismatch: header says %d, got %d bytes", length, len(frame))
	}
	return frame[1], frame[4:], nil
}

// EncodeRegisterForeignDevice builds a Register-Foreign-Device frame.
// The body is the requested time-to-live in seconds (2 bytes).
func EncodeRegisterForeignDevice(ttlSeconds uint16) []byte {
	body := make([]byte, 2)
	binary.BigEndian.PutUint16(body, ttlSeconds)
	return EncodeBVLC(BVLCRegisterForeignDevice, body)
}

// DecodeBVLCResult extracts the result code from a BVLC-Result body.
// 0x0000 is success; anything else is a NAK for the preceding request.
func DecodeBVLCResult(body []byte) (uint16, error) {
	if len(body) < 2 {
		return 0, fmt.Errorf("BVLC-Result body too short: %d bytes", len(body))
	}
	return binary.BigEndian.Uint16(body[0:2]), nil
}

// DecodeForwardedNPDU splits a Forwarded-NPDU body into the originating
// B/IP address (6 bytes: IPv4 + port) and the NPDU that follows it.
// BBMDs use this function to relay broadcasts to foreign devices.
func DecodeForwardedNPDU(body []byte) (Address, []byte, error) {
	if len(body) < 6 {
		return Address{}, nil, fmt.Errorf("Forwarded-NPDU body too short: %d bytes", len(body))
	}
	mac := make([]byte, 6)
	copy(mac, body[0:6])
	return Address{MAC: mac}, body[6:], nil
}
