package charts

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/presence.report/internal/db"
)

func newTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.NewDB(filepath.Join(t.TempDir(), "presence.db"))
	if err != nil {
		t.Fatalf("db.NewDB: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func seedHistory(t *testing.T, database *db.DB) {
	t.Helper()
	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		_, err := database.RecordSighting(db.Sighting{
			MAC:        "aa:bb:cc:dd:ee:ff",
			Vendor:     "Samsung",
			SignalDBm:  -40 - i,
			Trusted:    true,
			Name:       "phone",
			ObservedAt: now.Add(time.Duration(-i) * time.Minute),
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	mean := 30.0
	if _, err := database.RecordReport(db.Report{Mean: &mean, GeneratedAt: now}); err != nil {
		t.Fatal(err)
	}
}

func serve(t *testing.T, database *db.DB, path string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	NewHandler(database).Attach(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestSignalChart(t *testing.T) {
	database := newTestDB(t)
	seedHistory(t, database)

	rec := serve(t, database, "/charts/signal?mac=aa:bb:cc:dd:ee:ff")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), "Signal Strength Over Time") {
		t.Error("chart title missing from rendered HTML")
	}
}

func TestSignalChartRequiresMAC(t *testing.T) {
	rec := serve(t, newTestDB(t), "/charts/signal")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestFreeSpaceChart(t *testing.T) {
	database := newTestDB(t)
	seedHistory(t, database)

	rec := serve(t, database, "/charts/freespace")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), "Free Space Trend") {
		t.Error("chart title missing from rendered HTML")
	}
}

func TestFreeSpaceChartEmptyWindow(t *testing.T) {
	rec := serve(t, newTestDB(t), "/charts/freespace")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestActivityAndTrustCharts(t *testing.T) {
	database := newTestDB(t)
	seedHistory(t, database)

	for _, path := range []string{"/charts/activity", "/charts/trust", "/charts"} {
		rec := serve(t, database, path)
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d, body %s", path, rec.Code, rec.Body)
		}
	}
}

func TestSaveTrendPNG(t *testing.T) {
	database := newTestDB(t)
	seedHistory(t, database)

	dir := t.TempDir()
	file, err := SaveTrendPNG(database, time.Now().Add(-time.Hour), dir)
	if err != nil {
		t.Fatalf("SaveTrendPNG: %v", err)
	}
	info, err := os.Stat(file)
	if err != nil {
		t.Fatalf("stat output: %v", err)
	}
	if info.Size() == 0 {
		t.Error("plot file is empty")
	}
}

func TestSaveTrendPNGNoData(t *testing.T) {
	if _, err := SaveTrendPNG(newTestDB(t), time.Now().Add(-time.Hour), t.TempDir()); err == nil {
		t.Error("expected error with no reports")
	}
}
