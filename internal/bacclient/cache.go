package bacclient

// Address cache: insert-once table of discovered devices

import (
	"iter"
	"slices"
)

// DefaultCacheCapacity matches the address table size of the reference
// stack's datalink layer.
const DefaultCacheCapacity = 255

// DeviceRecord is one distinct responding device.
type DeviceRecord struct {
	DeviceID uint32
	Address  Address
	MaxAPDU  uint16
}

// AddressCache maps device instance numbers to their resolved network
// addresses. Each instance is recorded once per session; later
// sightings and anything past capacity are dropped without error,
// discovery being best-effort.
type AddressCache struct {
	capacity int
	index    map[uint32]int
	records  []DeviceRecord
}

// NewAddressCache creates a cache holding at most capacity devices.
// Non-positive capacities fall back to DefaultCacheCapacity.
func NewAddressCache(capacity int) *AddressCache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &AddressCache{
		capacity: capacity,
		index:    make(map[uint32]int),
	}
}

// Add records a device the first time its instance number is seen and
// reports whether a new record was created. Existing records are never
// mutated.
func (c *AddressCache) Add(deviceID uint32, addr Address, maxAPDU uint16) bool {
	if _, ok := c.index[deviceID]; ok {
		return false
	}
	if len(c.records) >= c.capacity {
		return false
	}
	c.index[deviceID] = len(c.records)
	c.records = append(c.records, DeviceRecord{DeviceID: deviceID, Address: addr, MaxAPDU: maxAPDU})
	return true
}

// Get resolves a previously discovered device by instance number.
func (c *AddressCache) Get(deviceID uint32) (DeviceRecord, bool) {
	i, ok := c.index[deviceID]
	if !ok {
		return DeviceRecord{}, false
	}
	return c.records[i], true
}

// DeviceIDs iterates instance numbers in discovery order. The sequence
// is restartable; each range re-walks the records from the start.
func (c *AddressCache) DeviceIDs() iter.Seq[uint32] {
	return func(yield func(uint32) bool) {
		for _, rec := range c.records {
			if !yield(rec.DeviceID) {
				return
			}
		}
	}
}

// Records returns a copy of the discovered devices in discovery order.
func (c *AddressCache) Records() []DeviceRecord {
	return slices.Clone(c.records)
}

// Size returns the number of recorded devices.
func (c *AddressCache) Size() int {
	return len(c.records)
}
