// Package db persists sightings and detection reports to sqlite for the API
// and chart layers to query.
package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type DB struct {
	*sql.DB
}

// NewDB opens (creating if necessary) the sqlite database at path and runs
// any pending migrations.
func NewDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// modernc sqlite mishandles concurrent writers on a single file;
	// serialize through one connection.
	sqlDB.SetMaxOpenConns(1)

	db := &DB{sqlDB}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return db, nil
}

// Sighting is one persisted probe-request observation.
type Sighting struct {
	ID         string    `json:"id"`
	MAC        string    `json:"mac"`
	Vendor     string    `json:"vendor"`
	SignalDBm  int       `json:"signal_dbm"`
	Trusted    bool      `json:"trusted"`
	Name       string    `json:"name,omitempty"`
	ObservedAt time.Time `json:"observed_at"`
}

// Report is one persisted free-space evaluation. Method percentages are nil
// when the method was disabled at evaluation time.
type Report struct {
	ID            string    `json:"id"`
	FrameDiff     *float64  `json:"frame_differencing"`
	BackgroundSub *float64  `json:"background_subtraction"`
	Contour       *float64  `json:"contour_detection"`
	SSIM          *float64  `json:"ssim"`
	Mean          *float64  `json:"mean"`
	GeneratedAt   time.Time `json:"generated_at"`
}

// RecordSighting inserts one observation, assigning it a fresh row ID.
func (db *DB) RecordSighting(s Sighting) (string, error) {
	id := uuid.NewString()
	_, err := db.Exec(
		`INSERT INTO sightings (id, mac, vendor, signal_dbm, trusted, name, observed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, s.MAC, s.Vendor, s.SignalDBm, s.Trusted, s.Name, s.ObservedAt.UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to record sighting: %w", err)
	}
	return id, nil
}

// RecordReport inserts one free-space evaluation.
func (db *DB) RecordReport(r Report) (string, error) {
	id := uuid.NewString()
	_, err := db.Exec(
		`INSERT INTO reports (id, frame_diff, background_sub, contour, ssim, mean, generated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, r.FrameDiff, r.BackgroundSub, r.Contour, r.SSIM, r.Mean, r.GeneratedAt.UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to record report: %w", err)
	}
	return id, nil
}

// RecentSightings returns sightings observed at or after since, newest first,
// capped at limit rows.
func (db *DB) RecentSightings(since time.Time, limit int) ([]Sighting, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := db.Query(
		`SELECT id, mac, vendor, signal_dbm, trusted, name, observed_at
		 FROM sightings WHERE observed_at >= ?
		 ORDER BY observed_at DESC LIMIT ?`,
		since.UTC(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query sightings: %w", err)
	}
	defer rows.Close()

	var out []Sighting
	for rows.Next() {
		var s Sighting
		if err := rows.Scan(&s.ID, &s.MAC, &s.Vendor, &s.SignalDBm, &s.Trusted, &s.Name, &s.ObservedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sighting: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SignalSeries returns the readings for one device since the given instant,
// oldest first. Used by the signal-over-time chart.
func (db *DB) SignalSeries(mac string, since time.Time) ([]Sighting, error) {
	rows, err := db.Query(
		`SELECT id, mac, vendor, signal_dbm, trusted, name, observed_at
		 FROM sightings WHERE mac = ? AND observed_at >= ?
		 ORDER BY observed_at ASC`,
		mac, since.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query signal series: %w", err)
	}
	defer rows.Close()

	var out []Sighting
	for rows.Next() {
		var s Sighting
		if err := rows.Scan(&s.ID, &s.MAC, &s.Vendor, &s.SignalDBm, &s.Trusted, &s.Name, &s.ObservedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sighting: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// TrustCounts holds how many distinct trusted and untrusted devices were
// sighted in a window.
type TrustCounts struct {
	Trusted   int `json:"trusted"`
	Untrusted int `json:"untrusted"`
}

// CountByTrust returns distinct device counts, split by trust, since the
// given instant.
func (db *DB) CountByTrust(since time.Time) (TrustCounts, error) {
	var c TrustCounts
	err := db.QueryRow(
		`SELECT
			COUNT(DISTINCT CASE WHEN trusted THEN mac END),
			COUNT(DISTINCT CASE WHEN NOT trusted THEN mac END)
		 FROM sightings WHERE observed_at >= ?`,
		since.UTC(),
	).Scan(&c.Trusted, &c.Untrusted)
	if err != nil {
		return c, fmt.Errorf("failed to count devices by trust: %w", err)
	}
	return c, nil
}

// ReportSeries returns evaluations since the given instant, oldest first.
func (db *DB) ReportSeries(since time.Time) ([]Report, error) {
	rows, err := db.Query(
		`SELECT id, frame_diff, background_sub, contour, ssim, mean, generated_at
		 FROM reports WHERE generated_at >= ?
		 ORDER BY generated_at ASC`,
		since.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	var out []Report
	for rows.Next() {
		var r Report
		if err := rows.Scan(&r.ID, &r.FrameDiff, &r.BackgroundSub, &r.Contour, &r.SSIM, &r.Mean, &r.GeneratedAt); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeviceCountBucket is a per-interval distinct device count for the activity
// chart.
type DeviceCountBucket struct {
	Bucket  time.Time `json:"bucket"`
	Devices int       `json:"devices"`
}

// DeviceCounts buckets distinct devices per interval since the given instant.
func (db *DB) DeviceCounts(since time.Time, interval time.Duration) ([]DeviceCountBucket, error) {
	if interval <= 0 {
		interval = time.Minute
	}
	seconds := int64(interval / time.Second)
	rows, err := db.Query(
		`SELECT (CAST(strftime('%s', observed_at) AS INTEGER) / ?) * ? AS bucket,
			COUNT(DISTINCT mac)
		 FROM sightings WHERE observed_at >= ?
		 GROUP BY bucket ORDER BY bucket ASC`,
		seconds, seconds, since.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query device counts: %w", err)
	}
	defer rows.Close()

	var out []DeviceCountBucket
	for rows.Next() {
		var unix int64
		var b DeviceCountBucket
		if err := rows.Scan(&unix, &b.Devices); err != nil {
			return nil, fmt.Errorf("failed to scan device count: %w", err)
		}
		b.Bucket = time.Unix(unix, 0).UTC()
		out = append(out, b)
	}
	return out, rows.Err()
}
