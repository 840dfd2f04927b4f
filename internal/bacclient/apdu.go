package bacclient

// APDU encode/decode for the discovery services (ASHRAE 135 clauses 20, 21)

import "fmt"

// APDU PDU types (upper nibble of the first APDU octet)
const (
	pduTypeConfirmedRequest   = 0x00
	pduTypeUnconfirmedRequest = 0x10
	pduTypeSimpleAck          = 0x20
	pduTypeComplexAck         = 0x30
	pduTypeSegmentAck         = 0x40
	pduTypeError              = 0x50
	pduTypeReject             = 0x60
	pduTypeAbort              = 0x70
)

// Unconfirmed service choices
const (
	ServiceUnconfirmedIAm   = 0
	ServiceUnconfirmedWhoIs = 8
)

// Segmentation support values carried in I-Am
const (
	SegmentedBoth     = 0
	SegmentedTransmit = 1
	SegmentedReceive  = 2
	NoSegmentation    = 3
)

// Event is one decoded inbound protocol event.
type Event interface{ event() }

// IAmEvent is a successful identification reply from one device.
type IAmEvent struct {
	DeviceID     uint32
	MaxAPDU      uint16
	Segmentation byte
	VendorID     uint16
	Source       Address
}

// AbortEvent reports that a peer terminated an exchange.
type AbortEvent struct {
	InvokeID byte
	Reason   byte
	Server   bool
	Source   Address
}

// RejectEvent reports that a peer refused a confirmed request.
type RejectEvent struct {
	InvokeID byte
	Reason   byte
	Source   Address
}

// UnrecognizedServiceEvent reports a confirmed request for a service
// this client does not implement. Expected background noise on a busy
// network, never fatal.
type UnrecognizedServiceEvent struct {
	Service  byte
	InvokeID byte
	Source   Address
}

func (IAmEvent) event()                 {}
func (AbortEvent) event()               {}
func (RejectEvent) event()              {}
func (UnrecognizedServiceEvent) event() {}

// EncodeWhoIs builds a Who-Is request APDU covering [low, high]:
// - PDU type unconfirmed request (0x10)
// - Service choice 8 (Who-Is)
// - Context tag 0: device-instance-range-low-limit (unsigned)
// - Context tag 1: device-instance-range-high-limit (unsigned)
func EncodeWhoIs(low, high uint32) []byte {
	apdu := []byte{pduTypeUnconfirmedRequest, ServiceUnconfirmedWhoIs}
	apdu = appendContextUnsigned(apdu, 0, low)
	apdu = appendContextUnsigned(apdu, 1, high)
	return apdu
}

// EncodeIAm builds an I-Am APDU. The production path only decodes I-Am;
// the encoder keeps the codec symmetric for tests and loopback checks.
func EncodeIAm(deviceID uint32, maxAPDU uint16, segmentation byte, vendorID uint16) []byte {
	apdu := []byte{pduTypeUnconfirmedRequest, ServiceUnconfirmedIAm}
	apdu = appendAppObjectID(apdu, objectTypeDevice, deviceID)
	apdu = appendAppUnsigned(apdu, uint32(maxAPDU))
	apdu = appendAppEnumerated(apdu, segmentation)
	apdu = appendAppUnsigned(apdu, uint32(vendorID))
	return apdu
}

// DecodeDatagram strips the network layer from one inbound datagram and
// decodes the APDU, if any, into at most one event. A nil event with a
// nil error means the message is valid but irrelevant to discovery.
func DecodeDatagram(src Address, data []byte) (Event, error) {
	npdu, offset, err := DecodeNPDU(data)
	if err != nil {
		return nil, err
	}
	if npdu.NetworkMessage {
		// Router-to-router traffic carries no APDU.
		return nil, nil
	}
	if npdu.HasSource {
		src.Net = npdu.SNet
		src.Adr = npdu.SAdr
	}
	if offset >= len(data) {
		return nil, fmt.Errorf("NPDU without APDU")
	}
	return DecodeAPDU(src, data[offset:])
}

// DecodeAPDU maps one APDU to at most one discovery event.
func DecodeAPDU(src Address, apdu []byte) (Event, error) {
	if len(apdu) == 0 {
		return nil, fmt.Errorf("empty APDU")
	}

	switch apdu[0] & 0xF0 {
	case pduTypeUnconfirmedRequest:
		if len(apdu) < 2 {
			return nil, fmt.Errorf("truncated unconfirmed request")
		}
		if apdu[1] == ServiceUnconfirmedIAm {
			return decodeIAm(src, apdu[2:])
		}
		// Who-Is and other unconfirmed broadcasts from peers are not
		// answered by a discovery client.
		return nil, nil

	case pduTypeConfirmedRequest:
		return decodeConfirmedRequest(src, apdu)

	case pduTypeReject:
		if len(apdu) < 3 {
			return nil, fmt.Errorf("truncated reject PDU")
		}
		return RejectEvent{InvokeID: apdu[1], Reason: apdu[2], Source: src}, nil

	case pduTypeAbort:
		if len(apdu) < 3 {
			return nil, fmt.Errorf("truncated abort PDU")
		}
		return AbortEvent{
			InvokeID: apdu[1],
			Reason:   apdu[2],
			Server:   apdu[0]&0x01 != 0,
			Source:   src,
		}, nil

	default:
		// Acks and error PDUs belong to exchanges this client never
		// starts; ignore them for forward compatibility.
		return nil, nil
	}
}

// decodeConfirmedRequest surfaces inbound confirmed requests as
// unrecognized-service diagnostics. Confirmed request layout:
// - Octet 0: PDU type | SEG (bit 3) | MOR (bit 2) | SA (bit 1)
// - Octet 1: max segments / max APDU length accepted
// - Octet 2: invoke ID
// - Octets 3-4: sequence number + window size (segmented only)
// - Next octet: service choice
func decodeConfirmedRequest(src Address, apdu []byte) (Event, error) {
	segmented := apdu[0]&0x08 != 0
	idx := 3
	if segmented {
		idx += 2
	}
	if len(apdu) <= idx {
		return nil, fmt.Errorf("truncated confirmed request")
	}
	return UnrecognizedServiceEvent{Service: apdu[idx], InvokeID: apdu[2], Source: src}, nil
}

// decodeIAm parses the four required I-Am parameters:
// - Object identifier (application tag 12): device object + instance
// - Max APDU length accepted (application tag 2, unsigned)
// - Segmentation supported (application tag 9, enumerated)
// - Vendor ID (application tag 2, unsigned)
func decodeIAm(src Address, body []byte) (Event, error) {
	objType, instance, rest, err := decodeAppObjectID(body)
	if err != nil {
		return nil, fmt.Errorf("I-Am object identifier: %w", err)
	}
	if objType != objectTypeDevice {
		return nil, fmt.Errorf("I-Am object is not a device: type %d", objType)
	}
	maxAPDU, rest, err := decodeAppUnsigned(rest)
	if err != nil {
		return nil, fmt.Errorf("I-Am max APDU: %w", err)
	}
	segmentation, rest, err := decodeAppEnumerated(rest)
	if err != nil {
		return nil, fmt.Errorf("I-Am segmentation: %w", err)
	}
	vendorID, _, err := decodeAppUnsigned(rest)
	if err != nil {
		return nil, fmt.Errorf("I-Am vendor ID: %w", err)
	}

	return IAmEvent{
		DeviceID:     instance,
		MaxAPDU:      uint16(maxAPDU),
		Segmentation: segmentation,
		VendorID:     uint16(vendorID),
		Source:       src,
	}, nil
}

// Tag octet layout (clause 20.2.1): tag number (bits 7-4),
// class (bit 3: 0 application, 1 context), length (bits 2-0 for
// values < 5).

const (
	appTagUnsigned   = 2
	appTagEnumerated = 9
	appTagObjectID   = 12
)

func unsignedLen(v uint32) int {
	switch {
	case v < 0x100:
		return 1
	case v < 0x10000:
		return 2
	case v < 0x1000000:
		return 3
	default:
		return 4
	}
}

func appendUnsignedBytes(out []byte, v uint32, n int) []byte {
	for i := n - 1; i >= 0; i-- {
		out = append(out, byte(v>>(8*i)))
	}
	return out
}

func appendContextUnsigned(out []byte, tagNumber byte, v uint32) []byte {
	n := unsignedLen(v)
	out = append(out, tagNumber<<4|0x08|byte(n))
	return appendUnsignedBytes(out, v, n)
}

func appendAppUnsigned(out []byte, v uint32) []byte {
	n := unsignedLen(v)
	out = append(out, appTagUnsigned<<4|byte(n))
	return appendUnsignedBytes(out, v, n)
}

func appendAppEnumerated(out []byte, v byte) []byte {
	return append(out, appTagEnumerated<<4|1, v)
}

func appendAppObjectID(out []byte, objectType uint16, instance uint32) []byte {
	out = append(out, appTagObjectID<<4|4)
	id := uint32(objectType)<<22 | (instance & MaxInstance)
	return appendUnsignedBytes(out, id, 4)
}

func decodeAppTag(data []byte, wantTag byte) (uint32, []byte, error) {
	if len(data) == 0 {
		return 0, nil, fmt.Errorf("missing tag")
	}
	tag := data[0]
	if tag&0x08 != 0 {
		return 0, nil, fmt.Errorf("expected application tag, got context tag %d", tag>>4)
	}
	if tag>>4 != wantTag {
		return 0, nil, fmt.Errorf("expected tag %d, got tag %d", wantTag, tag>>4)
	}
	length := int(tag & 0x07)
	if length == 0 || length > 4 {
		return 0, nil, fmt.Errorf("unsupported tag length %d", length)
	}
	if len(data) < 1+length {
		return 0, nil, fmt.Errorf("truncated tag value")
	}
	var v uint32
	for _, b := range data[1 : 1+length] {
		v = v<<8 | uint32(b)
	}
	return v, data[1+length:], nil
}

func decodeAppUnsigned(data []byte) (uint32, []byte, error) {
	return decodeAppTag(data, appTagUnsigned)
}

func decodeAppEnumerated(data []byte) (byte, []byte, error) {
	v, rest, err := decodeAppTag(data, appTagEnumerated)
	return byte(v), rest, err
}

func decodeAppObjectID(data []byte) (uint16, uint32, []byte, error) {
	v, rest, err := decodeAppTag(data, appTagObjectID)
	if err != nil {
		return 0, 0, nil, err
	}
	return uint16(v >> 22), v & MaxInstance, rest, nil
}
