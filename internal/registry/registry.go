// Package registry maintains the authoritative set of currently-seen
// devices. The registry is the only mutable shared state on the radio path:
// producers commit sightings, a periodic sweep reclaims expired records, and
// consumers read immutable snapshots.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/banshee-data/presence.report/internal/sniff"
	"github.com/banshee-data/presence.report/internal/timeutil"
)

// DefaultTTL is how long a device stays present after its last sighting.
const DefaultTTL = 5 * time.Second

// Device is one currently-present device. Values returned from the registry
// are copies; mutating them has no effect on registry state.
type Device struct {
	MAC         string    `json:"mac"`
	Vendor      string    `json:"vendor"`
	Signal      int       `json:"signal_dbm"`
	LastSeen    time.Time `json:"last_seen"`
	Trusted     bool      `json:"trusted"`
	TrustedName string    `json:"trusted_name,omitempty"`
}

// DisplayName returns the operator-assigned name for trusted devices and the
// vendor label otherwise, matching what the device table shows.
func (d Device) DisplayName() string {
	if d.Trusted && d.TrustedName != "" {
		return d.TrustedName
	}
	return d.Vendor
}

// Registry tracks present devices with TTL-based eviction. All methods are
// safe for concurrent use. Presence is judged against the TTL on every read,
// so query results do not depend on sweep cadence; the sweep only reclaims
// memory.
// The registry lock is held only across map commits and snapshot copies,
// never across parsing or image work.
type Registry struct {
	mu      sync.Mutex
	clock   timeutil.Clock
	ttl     time.Duration
	devices map[string]Device
}

// New creates a Registry with the given clock and TTL. A non-positive TTL
// falls back to DefaultTTL.
func New(clock timeutil.Clock, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{
		clock:   clock,
		ttl:     ttl,
		devices: make(map[string]Device),
	}
}

// TTL returns the configured eviction timeout.
func (r *Registry) TTL() time.Duration {
	return r.ttl
}

// Apply commits one sighting, creating the record on first sight and
// refreshing signal and last-seen on every subsequent one. LastSeen is
// monotonically non-decreasing: a sighting older than the record's current
// LastSeen refreshes the signal but does not move time backwards, so two
// producers racing on the same mac always leave the later timestamp.
func (r *Registry) Apply(s sniff.Sighting, vendor string, trusted bool, trustedName string) Device {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[s.MAC]
	if !ok {
		d = Device{MAC: s.MAC}
	}
	d.Vendor = vendor
	d.Signal = s.Signal
	d.Trusted = trusted
	d.TrustedName = trustedName
	if s.ObservedAt.After(d.LastSeen) {
		d.LastSeen = s.ObservedAt
	}
	r.devices[s.MAC] = d
	return d
}

// Present reports whether mac is currently present: sighted, and younger
// than the TTL.
func (r *Registry) Present(mac string) bool {
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[mac]
	return ok && now.Sub(d.LastSeen) < r.ttl
}

// Snapshot returns a copy of all currently-present devices, sorted by MAC
// for deterministic output. Expired records are excluded even if the sweep
// has not yet removed them.
func (r *Registry) Snapshot() []Device {
	now := r.clock.Now()

	r.mu.Lock()
	out := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		if now.Sub(d.LastSeen) < r.ttl {
			out = append(out, d)
		}
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].MAC < out[j].MAC })
	return out
}

// Sweep removes all records whose age meets or exceeds the TTL in one pass
// and returns the evicted devices.
func (r *Registry) Sweep() []Device {
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted []Device
	for mac, d := range r.devices {
		if now.Sub(d.LastSeen) >= r.ttl {
			evicted = append(evicted, d)
			delete(r.devices, mac)
		}
	}
	return evicted
}

// Len reports the number of tracked records, including any that have expired
// but not yet been swept. Exposed for tests and diagnostics.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.devices)
}
