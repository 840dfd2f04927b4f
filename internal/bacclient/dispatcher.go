package bacclient

// Event dispatch for inbound protocol events

import "github.com/tturner/bacscan/internal/logging"

// Handlers receives decoded inbound events. It replaces the reference
// stack's per-service handler registration with a single interface.
type Handlers interface {
	HandleIAm(IAmEvent)
	HandleAbort(AbortEvent)
	HandleReject(RejectEvent)
	HandleUnrecognizedService(UnrecognizedServiceEvent)
}

// DispatchEvent forwards ev to the matching handler. Event kinds
// without a handler are dropped, so unmodeled traffic never fails a
// session.
func DispatchEvent(ev Event, h Handlers) {
	switch ev := ev.(type) {
	case IAmEvent:
		h.HandleIAm(ev)
	case AbortEvent:
		h.HandleAbort(ev)
	case RejectEvent:
		h.HandleReject(ev)
	case UnrecognizedServiceEvent:
		h.HandleUnrecognizedService(ev)
	}
}

// Dispatcher applies discovery semantics to inbound events: I-Am fills
// the address cache, abort and reject flag a fatal error, anything
// else is diagnostic noise.
type Dispatcher struct {
	cache *AddressCache
	log   *logging.Logger
	fatal bool

	iAmCount          int
	duplicateCount    int
	unrecognizedCount int
}

// NewDispatcher creates a dispatcher feeding the given cache.
func NewDispatcher(cache *AddressCache, log *logging.Logger) *Dispatcher {
	return &Dispatcher{cache: cache, log: log}
}

// HandleIAm records the responding device. Replies arriving after a
// fatal error are dropped; the session is already terminating.
func (d *Dispatcher) HandleIAm(ev IAmEvent) {
	if d.fatal {
		return
	}
	d.iAmCount++
	if d.cache.Add(ev.DeviceID, ev.Source, ev.MaxAPDU) {
		d.log.Verbose("I-Am from device %d at %s (max APDU %d, vendor %d)",
			ev.DeviceID, ev.Source, ev.MaxAPDU, ev.VendorID)
	} else {
		d.duplicateCount++
		d.log.Debug("duplicate I-Am from device %d ignored", ev.DeviceID)
	}
}

// HandleAbort reports the abort reason and flags the session fatal.
func (d *Dispatcher) HandleAbort(ev AbortEvent) {
	d.log.Error("BACnet Abort: %s", AbortReasonName(ev.Reason))
	d.fatal = true
}

// HandleReject reports the reject reason and flags the session fatal.
func (d *Dispatcher) HandleReject(ev RejectEvent) {
	d.log.Error("BACnet Reject: %s", RejectReasonName(ev.Reason))
	d.fatal = true
}

// HandleUnrecognizedService logs the request for protocol diagnostics.
// This class of event must not abort an otherwise healthy discovery.
func (d *Dispatcher) HandleUnrecognizedService(ev UnrecognizedServiceEvent) {
	d.unrecognizedCount++
	d.log.Verbose("unrecognized confirmed service 0x%02X from %s", ev.Service, ev.Source)
}

// FatalError reports whether an abort or reject has been seen. The
// flag is never cleared within a session.
func (d *Dispatcher) FatalError() bool {
	return d.fatal
}
