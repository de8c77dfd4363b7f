package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/presence.report/internal/capture"
	"github.com/banshee-data/presence.report/internal/coord"
	"github.com/banshee-data/presence.report/internal/db"
	"github.com/banshee-data/presence.report/internal/fusion"
	"github.com/banshee-data/presence.report/internal/radio"
	"github.com/banshee-data/presence.report/internal/registry"
	"github.com/banshee-data/presence.report/internal/version"
)

// ANSI escape codes for request log colouring
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	c   *coord.Coordinator
	mux capture.Muxer // optional; nil disables /api/tail
	db  *db.DB        // optional; nil disables history endpoints
}

func NewServer(c *coord.Coordinator, mux capture.Muxer, database *db.DB) *Server {
	return &Server{
		c:   c,
		mux: mux,
		db:  database,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/devices", s.listDevices)
	mux.HandleFunc("/api/report", s.showReport)
	mux.HandleFunc("/api/baseline", s.captureBaseline)
	mux.HandleFunc("/api/trust", s.trustHandler)
	mux.HandleFunc("/api/methods", s.methodsHandler)
	mux.HandleFunc("/api/secure", s.secureHandler)
	mux.HandleFunc("/api/settings", s.settingsHandler)
	mux.HandleFunc("/api/history/sightings", s.listSightings)
	mux.HandleFunc("/api/history/reports", s.listReports)
	mux.HandleFunc("/api/tail", s.tailHandler)
	mux.HandleFunc("/api/version", s.showVersion)
	return mux
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	json.NewEncoder(w).Encode(map[string]string{
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
	})
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// DeviceAPI is the wire representation of a present device. It extends the
// registry view with the path-loss distance estimate.
type DeviceAPI struct {
	MAC            string    `json:"mac"`
	Name           string    `json:"name"`
	Vendor         string    `json:"vendor"`
	SignalDBm      int       `json:"signal_dbm"`
	Trusted        bool      `json:"trusted"`
	LastSeen       time.Time `json:"last_seen"`
	DistanceMeters float64   `json:"distance_meters"`
	WithinRadius   bool      `json:"within_radius"`
}

func deviceToAPI(d registry.Device, settings radio.Settings) DeviceAPI {
	return DeviceAPI{
		MAC:            d.MAC,
		Name:           d.DisplayName(),
		Vendor:         d.Vendor,
		SignalDBm:      d.Signal,
		Trusted:        d.Trusted,
		LastSeen:       d.LastSeen,
		DistanceMeters: radio.EstimateDistance(d.Signal, settings),
		WithinRadius:   radio.WithinRadius(d.Signal, settings),
	}
}

func (s *Server) listDevices(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	settings := s.c.RadioSettings()
	devices := s.c.Devices()
	apiDevices := make([]DeviceAPI, len(devices))
	for i, d := range devices {
		apiDevices[i] = deviceToAPI(d, settings)
	}

	if err := json.NewEncoder(w).Encode(apiDevices); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write devices")
		return
	}
}

func (s *Server) showReport(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	report := s.c.LastReport()
	if report == nil {
		s.writeJSONError(w, http.StatusNotFound, "No report available yet")
		return
	}
	if err := json.NewEncoder(w).Encode(report); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write report")
		return
	}
}

func (s *Server) captureBaseline(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.c.CaptureBaseline(r.Context()); err != nil {
		http.Error(w, fmt.Sprintf("Failed to capture baseline: %v", err), http.StatusInternalServerError)
		return
	}
	io.WriteString(w, "Baseline captured")
}

func (s *Server) trustHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(s.c.TrustedDevices()); err != nil {
			s.writeJSONError(w, http.StatusInternalServerError, "Failed to write trust roster")
		}

	case http.MethodPost:
		mac := strings.ToLower(strings.TrimSpace(r.FormValue("mac")))
		name := strings.TrimSpace(r.FormValue("name"))
		if mac == "" || name == "" {
			http.Error(w, "Missing mac or name", http.StatusBadRequest)
			return
		}
		if err := s.c.RegisterTrust(mac, name); err != nil {
			http.Error(w, fmt.Sprintf("Failed to register device: %v", err), http.StatusInternalServerError)
			return
		}
		io.WriteString(w, fmt.Sprintf("Registered %s as %q", mac, name))

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) methodsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(s.c.EnabledMethods()); err != nil {
			s.writeJSONError(w, http.StatusInternalServerError, "Failed to write methods")
		}

	case http.MethodPost:
		method := fusion.Method(strings.TrimSpace(r.FormValue("method")))
		enabled, err := strconv.ParseBool(r.FormValue("enabled"))
		if err != nil {
			http.Error(w, "Invalid 'enabled' parameter", http.StatusBadRequest)
			return
		}
		if err := s.c.SetMethod(method, enabled); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		io.WriteString(w, fmt.Sprintf("%s enabled=%t", method, enabled))

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) secureHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]bool{"secure": s.c.Secure()})

	case http.MethodPost:
		on, err := strconv.ParseBool(r.FormValue("enabled"))
		if err != nil {
			http.Error(w, "Invalid 'enabled' parameter", http.StatusBadRequest)
			return
		}
		s.c.SetSecure(on)
		io.WriteString(w, fmt.Sprintf("secure=%t", on))

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) settingsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(s.c.RadioSettings()); err != nil {
			s.writeJSONError(w, http.StatusInternalServerError, "Failed to write settings")
		}

	case http.MethodPost:
		var settings radio.Settings
		if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
			http.Error(w, "Invalid settings payload", http.StatusBadRequest)
			return
		}
		if err := s.c.SetRadioSettings(settings); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		io.WriteString(w, "Settings updated")

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// sinceParam parses the optional ?hours= query parameter, defaulting to 24.
func sinceParam(r *http.Request) (time.Time, error) {
	hours := 24
	if h := r.URL.Query().Get("hours"); h != "" {
		parsed, err := strconv.Atoi(h)
		if err != nil || parsed < 1 {
			return time.Time{}, fmt.Errorf("invalid 'hours' parameter")
		}
		hours = parsed
	}
	return time.Now().Add(-time.Duration(hours) * time.Hour), nil
}

func (s *Server) listSightings(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusNotFound, "History not enabled")
		return
	}

	since, err := sinceParam(r)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	sightings, err := s.db.RecentSightings(since, 1000)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve sightings: %v", err))
		return
	}
	if err := json.NewEncoder(w).Encode(sightings); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write sightings")
	}
}

func (s *Server) listReports(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusNotFound, "History not enabled")
		return
	}

	since, err := sinceParam(r)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	reports, err := s.db.ReportSeries(since)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve reports: %v", err))
		return
	}
	if err := json.NewEncoder(w).Encode(reports); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write reports")
	}
}

// tailHandler issues Server-Sent Events for raw lines coming from the
// sniffer stream.
func (s *Server) tailHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.mux == nil {
		http.Error(w, "Capture tail not enabled", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

	id, c := s.mux.Subscribe()
	defer s.mux.Unsubscribe(id)

	// Send initial ping to establish connection
	w.Write([]byte(": ping\n\n"))
	w.(http.Flusher).Flush()

	for {
		select {
		case payload, ok := <-c:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			w.(http.Flusher).Flush()
		case <-r.Context().Done():
			return
		}
	}
}
