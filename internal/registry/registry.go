// Package registry holds the process-wide set of known devices and
// their last-observed state. The registry is the only shared mutable
// resource in the control engine; all access is serialized here so no
// other component does its own locking.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/martinsuchenak/bulbs/internal/model"
)

// Registry is a concurrency-safe map from address to device. There is
// never more than one entry per address. Callers always receive copies;
// internal storage is never exposed by reference.
type Registry struct {
	mu      sync.RWMutex
	devices map[model.Address]model.Device
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		devices: make(map[model.Address]model.Device),
	}
}

// Upsert inserts or overwrites the entry for device.Address.
// Last write wins.
func (r *Registry) Upsert(device model.Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices[device.Address] = device
}

// UpsertState records a successful command result or status query for
// addr, marking the device reachable. A device seen for the first time
// is created. The device name, which the wire protocol does not carry,
// is preserved.
func (r *Registry) UpsertState(addr model.Address, state model.DeviceState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d := r.devices[addr]
	d.Address = addr
	d.State = state
	d.Health = model.HealthReachable
	d.LastSeen = time.Now()
	r.devices[addr] = d
}

// MarkUnreachable flags an existing or new entry for addr as
// unreachable without touching its last-known state.
func (r *Registry) MarkUnreachable(addr model.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[addr]
	if !ok {
		d = model.Device{Address: addr, Health: model.HealthUnknown}
	}
	d.Health = model.HealthUnreachable
	r.devices[addr] = d
}

// Get returns a copy of the entry for addr.
func (r *Registry) Get(addr model.Address) (model.Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[addr]
	return d, ok
}

// Remove drops the entry for addr. Removal policy (say, after repeated
// failures) belongs to the caller.
func (r *Registry) Remove(addr model.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.devices, addr)
}

// Len reports the number of known devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// Snapshot returns a copy of every device, sorted by address for
// deterministic display.
func (r *Registry) Snapshot() []model.Device {
	r.mu.RLock()
	out := make([]model.Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Address.Less(out[j].Address)
	})
	return out
}

// Addresses returns the sorted addresses of every known device.
func (r *Registry) Addresses() []model.Address {
	devices := r.Snapshot()
	addrs := make([]model.Address, len(devices))
	for i, d := range devices {
		addrs[i] = d.Address
	}
	return addrs
}
