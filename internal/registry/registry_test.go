package registry

import (
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/presence.report/internal/sniff"
	"github.com/banshee-data/presence.report/internal/timeutil"
)

var t0 = time.Date(2025, 3, 15, 18, 47, 3, 0, time.UTC)

func sighting(mac string, signal int, at time.Time) sniff.Sighting {
	return sniff.Sighting{MAC: mac, Signal: signal, ObservedAt: at}
}

func TestApplyCreatesAndRefreshes(t *testing.T) {
	clock := timeutil.NewMockClock(t0)
	r := New(clock, 5*time.Second)

	r.Apply(sighting("4c:23:1a:05:bd:d4", -69, t0), "Unknown", false, "")
	if !r.Present("4c:23:1a:05:bd:d4") {
		t.Fatal("device absent after first sighting")
	}

	later := t0.Add(2 * time.Second)
	clock.Set(later)
	d := r.Apply(sighting("4c:23:1a:05:bd:d4", -60, later), "Unknown", false, "")

	if d.Signal != -60 {
		t.Errorf("Signal = %d, want -60", d.Signal)
	}
	if !d.LastSeen.Equal(later) {
		t.Errorf("LastSeen = %v, want %v", d.LastSeen, later)
	}
	if got := len(r.Snapshot()); got != 1 {
		t.Errorf("snapshot has %d devices, want 1", got)
	}
}

func TestTTLPresenceIndependentOfSweep(t *testing.T) {
	clock := timeutil.NewMockClock(t0)
	r := New(clock, 5*time.Second)
	r.Apply(sighting("4c:23:1a:05:bd:d4", -69, t0), "Unknown", false, "")

	// Present strictly before t0+TTL, absent at and after, with no sweep
	// ever running.
	clock.Set(t0.Add(4999 * time.Millisecond))
	if !r.Present("4c:23:1a:05:bd:d4") {
		t.Error("device absent just before TTL expiry")
	}
	clock.Set(t0.Add(5 * time.Second))
	if r.Present("4c:23:1a:05:bd:d4") {
		t.Error("device present at exactly TTL")
	}
	if got := len(r.Snapshot()); got != 0 {
		t.Errorf("snapshot has %d devices after expiry, want 0", got)
	}
	// The record still occupies memory until a sweep runs.
	if r.Len() != 1 {
		t.Errorf("Len = %d before sweep, want 1", r.Len())
	}
}

func TestSweepEvictsExpired(t *testing.T) {
	clock := timeutil.NewMockClock(t0)
	r := New(clock, 5*time.Second)
	r.Apply(sighting("4c:23:1a:05:bd:d4", -69, t0), "Unknown", false, "")
	r.Apply(sighting("66:97:d8:9a:e3:7d", -72, t0.Add(3*time.Second)), "Unknown", false, "")

	clock.Set(t0.Add(6 * time.Second))
	evicted := r.Sweep()

	if len(evicted) != 1 || evicted[0].MAC != "4c:23:1a:05:bd:d4" {
		t.Fatalf("evicted = %+v, want just 4c:23:1a:05:bd:d4", evicted)
	}
	if r.Len() != 1 {
		t.Errorf("Len after sweep = %d, want 1", r.Len())
	}
	if !r.Present("66:97:d8:9a:e3:7d") {
		t.Error("younger device was evicted")
	}
}

func TestTrustTagReevaluatedPerSighting(t *testing.T) {
	clock := timeutil.NewMockClock(t0)
	r := New(clock, 5*time.Second)

	d := r.Apply(sighting("4c:23:1a:05:bd:d4", -69, t0), "Unknown", false, "")
	if d.Trusted {
		t.Fatal("device trusted before registration")
	}

	// Operator registers trust mid-session; the next sighting retags.
	d = r.Apply(sighting("4c:23:1a:05:bd:d4", -69, t0.Add(time.Second)), "Unknown", true, "Alice")
	if !d.Trusted || d.TrustedName != "Alice" {
		t.Errorf("device = %+v, want trusted with name Alice", d)
	}
	if got := d.DisplayName(); got != "Alice" {
		t.Errorf("DisplayName = %q, want Alice", got)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	clock := timeutil.NewMockClock(t0)
	r := New(clock, 5*time.Second)
	r.Apply(sighting("4c:23:1a:05:bd:d4", -69, t0), "Unknown", false, "")

	snap := r.Snapshot()
	snap[0].Signal = 0
	snap[0].MAC = "mutated"

	want := []Device{{
		MAC:      "4c:23:1a:05:bd:d4",
		Vendor:   "Unknown",
		Signal:   -69,
		LastSeen: t0,
	}}
	if diff := cmp.Diff(want, r.Snapshot()); diff != "" {
		t.Errorf("registry state changed via snapshot (-want +got):\n%s", diff)
	}
}

func TestSnapshotSortedByMAC(t *testing.T) {
	clock := timeutil.NewMockClock(t0)
	r := New(clock, 5*time.Second)
	r.Apply(sighting("cc:cc:cc:00:00:01", -50, t0), "Unknown", false, "")
	r.Apply(sighting("aa:aa:aa:00:00:01", -60, t0), "Unknown", false, "")
	r.Apply(sighting("bb:bb:bb:00:00:01", -70, t0), "Unknown", false, "")

	snap := r.Snapshot()
	for i := 1; i < len(snap); i++ {
		if snap[i-1].MAC > snap[i].MAC {
			t.Fatalf("snapshot not sorted: %q before %q", snap[i-1].MAC, snap[i].MAC)
		}
	}
}

func TestConcurrentApplySameMAC(t *testing.T) {
	clock := timeutil.NewMockClock(t0)
	r := New(clock, time.Minute)

	earlier := t0.Add(time.Second)
	later := t0.Add(2 * time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Apply(sighting("4c:23:1a:05:bd:d4", -69, earlier), "Unknown", false, "")
		}()
		go func() {
			defer wg.Done()
			r.Apply(sighting("4c:23:1a:05:bd:d4", -60, later), "Unknown", false, "")
		}()
	}
	wg.Wait()

	snap := r.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("snapshot has %d records for one mac, want 1", len(snap))
	}
	if !snap[0].LastSeen.Equal(later) {
		t.Errorf("LastSeen = %v, want the later timestamp %v", snap[0].LastSeen, later)
	}
}

func TestZeroTTLFallsBackToDefault(t *testing.T) {
	r := New(timeutil.NewMockClock(t0), 0)
	if r.TTL() != DefaultTTL {
		t.Errorf("TTL = %v, want %v", r.TTL(), DefaultTTL)
	}
}
