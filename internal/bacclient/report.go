package bacclient

// Session result reporting

import (
	"fmt"
	"io"
)

// ReportEntry is one discovered device in the session result.
type ReportEntry struct {
	DeviceID uint32 `json:"device_id"`
	Address  string `json:"address"`
	Network  uint16 `json:"network,omitempty"`
	MaxAPDU  uint16 `json:"max_apdu"`
}

// Report summarizes the cache in discovery order.
func Report(cache *AddressCache) []ReportEntry {
	entries := make([]ReportEntry, 0, cache.Size())
	for _, rec := range cache.Records() {
		entries = append(entries, ReportEntry{
			DeviceID: rec.DeviceID,
			Address:  rec.Address.String(),
			Network:  rec.Address.Net,
			MaxAPDU:  rec.MaxAPDU,
		})
	}
	return entries
}

// WriteDeviceList writes device IDs one per line in discovery order.
// This is the machine-readable session output: no header, no trailing
// summary, first-discovered device first.
func WriteDeviceList(w io.Writer, cache *AddressCache) error {
	for id := range cache.DeviceIDs() {
		if _, err := fmt.Fprintf(w, "%d\n", id); err != nil {
			return err
		}
	}
	return nil
}

// WriteDeviceTable writes a human-readable table of the session result.
func WriteDeviceTable(w io.Writer, cache *AddressCache) error {
	if _, err := fmt.Fprintf(w, "%-8s %-22s %-6s %-8s\n", "Device", "Address", "Net", "MaxAPDU"); err != nil {
		return err
	}
	for _, rec := range cache.Records() {
		if _, err := fmt.Fprintf(w, "%-8d %-22s %-6d %-8d\n",
			rec.DeviceID, rec.Address, rec.Address.Net, rec.MaxAPDU); err != nil {
			return err
		}
	}
	return nil
}
