// Package charts renders browser-viewable analysis of the persisted history:
// signal strength per device, free-space trend, device activity, and the
// trusted/untrusted split.
package charts

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/presence.report/internal/db"
)

type Handler struct {
	db *db.DB
}

func NewHandler(database *db.DB) *Handler {
	return &Handler{db: database}
}

// Attach registers the chart routes on the given mux.
func (h *Handler) Attach(mux *http.ServeMux) {
	mux.HandleFunc("/charts", h.handleDashboard)
	mux.HandleFunc("/charts/signal", h.handleSignal)
	mux.HandleFunc("/charts/freespace", h.handleFreeSpace)
	mux.HandleFunc("/charts/activity", h.handleActivity)
	mux.HandleFunc("/charts/trust", h.handleTrust)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	http.Error(w, msg, status)
}

func sinceParam(r *http.Request) time.Time {
	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			hours = parsed
		}
	}
	return time.Now().Add(-time.Duration(hours) * time.Hour)
}

func renderChart(w http.ResponseWriter, renderable interface{ Render(io.Writer) error }) {
	var buf bytes.Buffer
	if err := renderable.Render(&buf); err != nil {
		http.Error(w, fmt.Sprintf("failed to render chart: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

// handleSignal renders signal strength over time for one device
// (?mac=aa:bb:cc:dd:ee:ff).
func (h *Handler) handleSignal(w http.ResponseWriter, r *http.Request) {
	mac := r.URL.Query().Get("mac")
	if mac == "" {
		h.writeError(w, http.StatusBadRequest, "missing 'mac' parameter")
		return
	}

	series, err := h.db.SignalSeries(mac, sinceParam(r))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to query series: %v", err))
		return
	}
	if len(series) == 0 {
		h.writeError(w, http.StatusNotFound, "no sightings for device in window")
		return
	}

	x := make([]string, 0, len(series))
	y := make([]opts.LineData, 0, len(series))
	for _, s := range series {
		x = append(x, s.ObservedAt.Local().Format("15:04:05"))
		y = append(y, opts.LineData{Value: s.SignalDBm})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Signal Strength", Width: "1200px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: "Signal Strength Over Time", Subtitle: fmt.Sprintf("device=%s points=%d", mac, len(series))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "dBm"}),
	)
	line.SetXAxis(x).AddSeries(mac, y)

	renderChart(w, line)
}

// handleFreeSpace renders the per-method and mean free-space trend.
func (h *Handler) handleFreeSpace(w http.ResponseWriter, r *http.Request) {
	reports, err := h.db.ReportSeries(sinceParam(r))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to query reports: %v", err))
		return
	}
	if len(reports) == 0 {
		h.writeError(w, http.StatusNotFound, "no reports in window")
		return
	}

	x := make([]string, 0, len(reports))
	series := map[string][]opts.LineData{
		"Frame Differencing":     nil,
		"Background Subtraction": nil,
		"Contour Detection":      nil,
		"SSIM":                   nil,
		"Mean":                   nil,
	}
	point := func(v *float64) opts.LineData {
		if v == nil {
			return opts.LineData{Value: nil}
		}
		return opts.LineData{Value: *v}
	}
	for _, rep := range reports {
		x = append(x, rep.GeneratedAt.Local().Format("15:04:05"))
		series["Frame Differencing"] = append(series["Frame Differencing"], point(rep.FrameDiff))
		series["Background Subtraction"] = append(series["Background Subtraction"], point(rep.BackgroundSub))
		series["Contour Detection"] = append(series["Contour Detection"], point(rep.Contour))
		series["SSIM"] = append(series["SSIM"], point(rep.SSIM))
		series["Mean"] = append(series["Mean"], point(rep.Mean))
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Free Space", Width: "1200px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: "Free Space Trend", Subtitle: fmt.Sprintf("reports=%d", len(reports))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "% changed", Min: 0, Max: 100}),
	)
	line.SetXAxis(x)
	for _, name := range []string{"Frame Differencing", "Background Subtraction", "Contour Detection", "SSIM", "Mean"} {
		line.AddSeries(name, series[name])
	}

	renderChart(w, line)
}

// handleActivity renders distinct devices per minute.
func (h *Handler) handleActivity(w http.ResponseWriter, r *http.Request) {
	buckets, err := h.db.DeviceCounts(sinceParam(r), time.Minute)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to query counts: %v", err))
		return
	}
	if len(buckets) == 0 {
		h.writeError(w, http.StatusNotFound, "no sightings in window")
		return
	}

	x := make([]string, 0, len(buckets))
	y := make([]opts.BarData, 0, len(buckets))
	for _, b := range buckets {
		x = append(x, b.Bucket.Local().Format("15:04"))
		y = append(y, opts.BarData{Value: b.Devices})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Device Activity", Width: "1200px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: "Distinct Devices Per Minute"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).AddSeries("devices", y,
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
	)

	renderChart(w, bar)
}

// handleTrust renders the trusted/untrusted device split for the window.
func (h *Handler) handleTrust(w http.ResponseWriter, r *http.Request) {
	counts, err := h.db.CountByTrust(sinceParam(r))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to query counts: %v", err))
		return
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Trusted vs Untrusted", Width: "600px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: "Trusted vs Untrusted Devices"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis([]string{"Trusted", "Untrusted"}).AddSeries("devices", []opts.BarData{
		{Value: counts.Trusted},
		{Value: counts.Untrusted},
	}, charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}))

	renderChart(w, bar)
}

// handleDashboard renders all views on one page.
func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	since := sinceParam(r)

	page := components.NewPage()
	page.PageTitle = "Presence Dashboard"

	if reports, err := h.db.ReportSeries(since); err == nil && len(reports) > 0 {
		page.AddCharts(h.freeSpaceChart(reports))
	}
	if buckets, err := h.db.DeviceCounts(since, time.Minute); err == nil && len(buckets) > 0 {
		page.AddCharts(h.activityChart(buckets))
	}
	if counts, err := h.db.CountByTrust(since); err == nil {
		page.AddCharts(h.trustChart(counts))
	}

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		h.writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render dashboard: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

func (h *Handler) freeSpaceChart(reports []db.Report) *charts.Line {
	x := make([]string, 0, len(reports))
	mean := make([]opts.LineData, 0, len(reports))
	for _, rep := range reports {
		x = append(x, rep.GeneratedAt.Local().Format("15:04:05"))
		if rep.Mean != nil {
			mean = append(mean, opts.LineData{Value: *rep.Mean})
		} else {
			mean = append(mean, opts.LineData{Value: nil})
		}
	}
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Free Space Trend"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "% changed", Min: 0, Max: 100}),
	)
	line.SetXAxis(x).AddSeries("Mean", mean)
	return line
}

func (h *Handler) activityChart(buckets []db.DeviceCountBucket) *charts.Bar {
	x := make([]string, 0, len(buckets))
	y := make([]opts.BarData, 0, len(buckets))
	for _, b := range buckets {
		x = append(x, b.Bucket.Local().Format("15:04"))
		y = append(y, opts.BarData{Value: b.Devices})
	}
	bar := charts.NewBar()
	bar.SetGlobalOptions(charts.WithTitleOpts(opts.Title{Title: "Distinct Devices Per Minute"}))
	bar.SetXAxis(x).AddSeries("devices", y)
	return bar
}

func (h *Handler) trustChart(counts db.TrustCounts) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(charts.WithTitleOpts(opts.Title{Title: "Trusted vs Untrusted Devices"}))
	bar.SetXAxis([]string{"Trusted", "Untrusted"}).AddSeries("devices", []opts.BarData{
		{Value: counts.Trusted},
		{Value: counts.Untrusted},
	})
	return bar
}
