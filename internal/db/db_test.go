package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "presence.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrationsApply(t *testing.T) {
	db := newTestDB(t)

	version, dirty, err := db.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion: %v", err)
	}
	if dirty {
		t.Error("database dirty after clean migration")
	}
	if version == 0 {
		t.Error("no migrations applied")
	}

	// reapplying is a no-op
	if err := db.MigrateUp(); err != nil {
		t.Errorf("second MigrateUp: %v", err)
	}
}

func TestRecordAndQuerySightings(t *testing.T) {
	db := newTestDB(t)
	now := time.Now().UTC().Truncate(time.Second)

	sightings := []Sighting{
		{MAC: "aa:bb:cc:dd:ee:ff", Vendor: "Samsung", SignalDBm: -42, Trusted: true, Name: "phone", ObservedAt: now},
		{MAC: "11:22:33:44:55:66", Vendor: "Unknown", SignalDBm: -77, ObservedAt: now.Add(-time.Second)},
		{MAC: "aa:bb:cc:dd:ee:ff", Vendor: "Samsung", SignalDBm: -45, Trusted: true, Name: "phone", ObservedAt: now.Add(-2 * time.Hour)},
	}
	for _, s := range sightings {
		if _, err := db.RecordSighting(s); err != nil {
			t.Fatalf("RecordSighting: %v", err)
		}
	}

	recent, err := db.RecentSightings(now.Add(-time.Minute), 10)
	if err != nil {
		t.Fatalf("RecentSightings: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("got %d recent sightings, want 2", len(recent))
	}
	if recent[0].MAC != "aa:bb:cc:dd:ee:ff" {
		t.Errorf("newest sighting = %s, want aa:bb:cc:dd:ee:ff", recent[0].MAC)
	}
	if !recent[0].Trusted || recent[0].Name != "phone" {
		t.Errorf("trust fields not round-tripped: %+v", recent[0])
	}

	series, err := db.SignalSeries("aa:bb:cc:dd:ee:ff", now.Add(-3*time.Hour))
	if err != nil {
		t.Fatalf("SignalSeries: %v", err)
	}
	if len(series) != 2 {
		t.Fatalf("got %d series points, want 2", len(series))
	}
	if !series[0].ObservedAt.Before(series[1].ObservedAt) {
		t.Error("series not in ascending time order")
	}
}

func TestCountByTrust(t *testing.T) {
	db := newTestDB(t)
	now := time.Now().UTC()

	for _, s := range []Sighting{
		{MAC: "aa:aa:aa:aa:aa:aa", SignalDBm: -40, Trusted: true, ObservedAt: now},
		{MAC: "aa:aa:aa:aa:aa:aa", SignalDBm: -41, Trusted: true, ObservedAt: now},
		{MAC: "bb:bb:bb:bb:bb:bb", SignalDBm: -60, ObservedAt: now},
		{MAC: "cc:cc:cc:cc:cc:cc", SignalDBm: -61, ObservedAt: now},
	} {
		if _, err := db.RecordSighting(s); err != nil {
			t.Fatalf("RecordSighting: %v", err)
		}
	}

	counts, err := db.CountByTrust(now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("CountByTrust: %v", err)
	}
	if counts.Trusted != 1 || counts.Untrusted != 2 {
		t.Errorf("counts = %+v, want trusted 1, untrusted 2", counts)
	}
}

func TestRecordAndQueryReports(t *testing.T) {
	db := newTestDB(t)
	now := time.Now().UTC().Truncate(time.Second)

	fd, mean := 32.96, 30.03
	_, err := db.RecordReport(Report{FrameDiff: &fd, Mean: &mean, GeneratedAt: now})
	require.NoError(t, err)
	// all methods disabled
	_, err = db.RecordReport(Report{GeneratedAt: now.Add(time.Second)})
	require.NoError(t, err)

	reports, err := db.ReportSeries(now.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, reports, 2)

	require.NotNil(t, reports[0].FrameDiff)
	assert.Equal(t, fd, *reports[0].FrameDiff)
	assert.Nil(t, reports[0].BackgroundSub, "disabled method should scan as nil")
	assert.Nil(t, reports[1].Mean, "mean should be nil when all methods disabled")
}

func TestDeviceCounts(t *testing.T) {
	db := newTestDB(t)
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	for _, s := range []Sighting{
		{MAC: "aa:aa:aa:aa:aa:aa", SignalDBm: -40, ObservedAt: base},
		{MAC: "bb:bb:bb:bb:bb:bb", SignalDBm: -50, ObservedAt: base.Add(10 * time.Second)},
		{MAC: "aa:aa:aa:aa:aa:aa", SignalDBm: -42, ObservedAt: base.Add(90 * time.Second)},
	} {
		if _, err := db.RecordSighting(s); err != nil {
			t.Fatalf("RecordSighting: %v", err)
		}
	}

	buckets, err := db.DeviceCounts(base.Add(-time.Minute), time.Minute)
	if err != nil {
		t.Fatalf("DeviceCounts: %v", err)
	}
	if len(buckets) != 2 {
		t.Fatalf("got %d buckets, want 2", len(buckets))
	}
	if buckets[0].Devices != 2 {
		t.Errorf("first bucket devices = %d, want 2", buckets[0].Devices)
	}
	if buckets[1].Devices != 1 {
		t.Errorf("second bucket devices = %d, want 1", buckets[1].Devices)
	}
}
