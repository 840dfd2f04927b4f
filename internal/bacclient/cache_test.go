package bacclient

import (
	"slices"
	"testing"
)

func cacheAddr(last byte) Address {
	return Address{MAC: []byte{192, 168, 1, last, 0xBA, 0xC0}}
}

func TestAddressCacheInsertOnce(t *testing.T) {
	cache := NewAddressCache(16)

	if !cache.Add(100, cacheAddr(10), 480) {
		t.Fatal("first Add returned false")
	}
	// A later sighting, even with a different address, never updates
	// the record.
	if cache.Add(100, cacheAddr(99), 206) {
		t.Error("duplicate Add returned true")
	}

	rec, ok := cache.Get(100)
	if !ok {
		t.Fatal("Get(100) missed")
	}
	if rec.Address.String() != "192.168.1.10:47808" {
		t.Errorf("address = %s, want the first sighting", rec.Address)
	}
	if rec.MaxAPDU != 480 {
		t.Errorf("MaxAPDU = %d, want 480", rec.MaxAPDU)
	}
	if cache.Size() != 1 {
		t.Errorf("Size = %d, want 1", cache.Size())
	}
}

func TestAddressCacheDiscoveryOrder(t *testing.T) {
	cache := NewAddressCache(16)
	for _, id := range []uint32{300, 100, 200} {
		cache.Add(id, cacheAddr(byte(id/10)), 480)
	}

	got := slices.Collect(cache.DeviceIDs())
	want := []uint32{300, 100, 200}
	if !slices.Equal(got, want) {
		t.Errorf("DeviceIDs = %v, want %v", got, want)
	}
}

func TestAddressCacheEnumerationRestartable(t *testing.T) {
	cache := NewAddressCache(16)
	cache.Add(1, cacheAddr(1), 480)
	cache.Add(2, cacheAddr(2), 480)

	seq := cache.DeviceIDs()
	first := slices.Collect(seq)
	second := slices.Collect(seq)
	if !slices.Equal(first, second) {
		t.Errorf("second pass %v differs from first %v", second, first)
	}

	// Early break then a fresh walk from the start.
	for range seq {
		break
	}
	if got := slices.Collect(seq); !slices.Equal(got, []uint32{1, 2}) {
		t.Errorf("walk after break = %v, want [1 2]", got)
	}
}

func TestAddressCacheCapacitySaturation(t *testing.T) {
	const capacity = 4
	cache := NewAddressCache(capacity)

	for id := uint32(0); id < capacity+5; id++ {
		added := cache.Add(id, cacheAddr(byte(id)), 480)
		if wantAdded := id < capacity; added != wantAdded {
			t.Errorf("Add(%d) = %v, want %v", id, added, wantAdded)
		}
	}

	if cache.Size() != capacity {
		t.Errorf("Size = %d, want %d", cache.Size(), capacity)
	}
	// Saturation drops new devices but existing records stay readable.
	if _, ok := cache.Get(capacity - 1); !ok {
		t.Error("record admitted before saturation is gone")
	}
	if _, ok := cache.Get(capacity); ok {
		t.Error("record past capacity was admitted")
	}
}

func TestAddressCacheDefaultCapacity(t *testing.T) {
	for _, capacity := range []int{0, -1} {
		cache := NewAddressCache(capacity)
		for id := uint32(0); id < DefaultCacheCapacity+1; id++ {
			cache.Add(id, cacheAddr(byte(id)), 480)
		}
		if cache.Size() != DefaultCacheCapacity {
			t.Errorf("NewAddressCache(%d): Size = %d, want %d", capacity, cache.Size(), DefaultCacheCapacity)
		}
	}
}

func TestAddressCacheRecordsSnapshot(t *testing.T) {
	cache := NewAddressCache(16)
	cache.Add(5, cacheAddr(5), 480)

	snap := cache.Records()
	cache.Add(6, cacheAddr(6), 480)
	if len(snap) != 1 {
		t.Errorf("snapshot grew with the cache: %d records", len(snap))
	}
}
