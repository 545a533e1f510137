package knot

import (
	"fmt"
	"sync"

	bloomFilter "github.com/bits-and-blooms/bloom/v3"
)

// Deduper suppresses repeated pushes of the same (sensor, payload)
// pair per device, guarding against a node that resends a reading
// after a lost acknowledgment. Each device gets its own Bloom filter,
// sized and reset per the configured capacity/probability/usage
// thresholds; a filter nearing capacity is cleared rather than left to
// degrade into false positives.
type Deduper struct {
	mu       sync.Mutex
	filters  map[string]*bloomFilter.BloomFilter
	capacity uint
	fpRate   float64
	// resetUsage is the fraction of capacity (0..1) at which a
	// device's filter is cleared before adding the next entry.
	resetUsage float32
}

// NewDeduper builds a Deduper. capacity and fpRate size each device's
// Bloom filter; resetUsage (0..1) is the usage fraction that triggers
// clearing it.
func NewDeduper(capacity uint, fpRate float64, resetUsage float32) *Deduper {
	return &Deduper{
		filters:    make(map[string]*bloomFilter.BloomFilter),
		capacity:   capacity,
		fpRate:     fpRate,
		resetUsage: resetUsage,
	}
}

// Seen reports whether (sensorID, payload) was already observed for
// uuid, and records it for next time if not. A device's filter is
// created lazily on its first reading.
func (d *Deduper) Seen(uuid string, sensorID uint8, payload []byte) bool {
	key := []byte(fmt.Sprintf("%d_%x", sensorID, payload))

	d.mu.Lock()
	defer d.mu.Unlock()

	filter, ok := d.filters[uuid]
	if !ok {
		filter = bloomFilter.NewWithEstimates(d.capacity, d.fpRate)
		d.filters[uuid] = filter
	}

	if filter.Test(key) {
		return true
	}

	d.resetIfSaturated(uuid)
	d.filters[uuid].Add(key)
	return false
}

// Forget drops uuid's filter, releasing its memory once the device
// unregisters.
func (d *Deduper) Forget(uuid string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.filters, uuid)
}

func (d *Deduper) resetIfSaturated(uuid string) {
	filter := d.filters[uuid]
	usage := float32(filter.ApproximatedSize()) / float32(d.capacity)
	if usage*100 >= d.resetUsage*100 {
		filter.ClearAll()
	}
}
