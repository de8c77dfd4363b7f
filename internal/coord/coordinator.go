// Package coord owns the run loops that connect the sniffer, the camera, the
// device registry, and the detection engine. All mutable daemon state lives
// behind the Coordinator so HTTP handlers and run loops never race.
package coord

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/banshee-data/presence.report/internal/camera"
	"github.com/banshee-data/presence.report/internal/capture"
	"github.com/banshee-data/presence.report/internal/db"
	"github.com/banshee-data/presence.report/internal/fusion"
	"github.com/banshee-data/presence.report/internal/monitoring"
	"github.com/banshee-data/presence.report/internal/oui"
	"github.com/banshee-data/presence.report/internal/publish"
	"github.com/banshee-data/presence.report/internal/radio"
	"github.com/banshee-data/presence.report/internal/registry"
	"github.com/banshee-data/presence.report/internal/sniff"
	"github.com/banshee-data/presence.report/internal/timeutil"
	"github.com/banshee-data/presence.report/internal/trust"
	"github.com/banshee-data/presence.report/internal/vision"
)

// Options configures a Coordinator. Zero-value fields fall back to sensible
// defaults; only Trust is mandatory.
type Options struct {
	Clock   timeutil.Clock
	Trust   *trust.Store
	Vendors *oui.Table
	Camera  camera.Source
	Sink    publish.Sink
	Store   *db.DB // optional; nil disables persistence

	DeviceTTL           time.Duration
	SampleInterval      time.Duration
	ReportInterval      time.Duration
	SweepInterval       time.Duration
	DiffThreshold       uint8
	BackgroundThreshold uint8
	Radio               radio.Settings
}

// Coordinator is the single writer for the registry, the frame pair, and the
// mode flags. Its exported methods are safe for concurrent use.
type Coordinator struct {
	clock   timeutil.Clock
	devices *registry.Registry
	trust   *trust.Store
	vendors *oui.Table
	camera  camera.Source
	sink    publish.Sink
	store   *db.DB

	sampleInterval time.Duration
	reportInterval time.Duration
	sweepInterval  time.Duration

	mu         sync.Mutex
	engine     *fusion.Engine
	enabled    map[fusion.Method]bool
	secure     bool
	radio      radio.Settings
	baseline   *image.RGBA
	current    *image.RGBA
	lastReport *fusion.Report
}

// New builds a Coordinator from the given options.
func New(opts Options) *Coordinator {
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	vendors := opts.Vendors
	if vendors == nil {
		vendors = oui.NewTable()
	}
	sink := opts.Sink
	if sink == nil {
		sink = publish.LogSink{}
	}
	if opts.DiffThreshold == 0 {
		opts.DiffThreshold = vision.DefaultDiffThreshold
	}
	if opts.BackgroundThreshold == 0 {
		opts.BackgroundThreshold = vision.DefaultBackgroundThreshold
	}
	if !opts.Radio.Valid() {
		opts.Radio = radio.DefaultSettings()
	}
	if opts.SampleInterval <= 0 {
		opts.SampleInterval = time.Second
	}
	if opts.ReportInterval <= 0 {
		opts.ReportInterval = 5 * time.Second
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Second
	}

	enabled := make(map[fusion.Method]bool, len(fusion.Methods))
	for _, m := range fusion.Methods {
		enabled[m] = true
	}

	return &Coordinator{
		clock:          clock,
		devices:        registry.New(clock, opts.DeviceTTL),
		trust:          opts.Trust,
		vendors:        vendors,
		camera:         opts.Camera,
		sink:           sink,
		store:          opts.Store,
		sampleInterval: opts.SampleInterval,
		reportInterval: opts.ReportInterval,
		sweepInterval:  opts.SweepInterval,
		engine:         fusion.NewEngine(opts.DiffThreshold, opts.BackgroundThreshold),
		enabled:        enabled,
		radio:          opts.Radio,
	}
}

// FormatWatchLine renders a device sighting in the secure-mode watch format.
func FormatWatchLine(d registry.Device) string {
	ts := d.LastSeen.Format(time.ANSIC)
	if d.Trusted {
		return fmt.Sprintf("[TRUSTED] MAC: %s, Name: %s, Vendor: %s, Signal: %d dBm, Time: %s",
			d.MAC, d.TrustedName, d.Vendor, d.Signal, ts)
	}
	return fmt.Sprintf("[NOT TRUSTED] MAC: %s, Vendor: %s, Signal: %d dBm, Time: %s",
		d.MAC, d.Vendor, d.Signal, ts)
}

// HandleLine processes one raw capture line. Lines that don't parse as
// probe-request sightings are dropped silently; the capture stream is full
// of noise by design of the tools producing it.
func (c *Coordinator) HandleLine(line string) {
	s, ok := sniff.ParseLine(line, c.clock.Now())
	if !ok {
		return
	}

	name, trusted := c.trust.Lookup(s.MAC)
	vendor := c.vendors.Vendor(s.MAC)
	d := c.devices.Apply(s, vendor, trusted, name)

	if c.store != nil {
		_, err := c.store.RecordSighting(db.Sighting{
			MAC:        d.MAC,
			Vendor:     d.Vendor,
			SignalDBm:  d.Signal,
			Trusted:    d.Trusted,
			Name:       d.TrustedName,
			ObservedAt: s.ObservedAt,
		})
		if err != nil {
			monitoring.Logf("failed to persist sighting for %s: %v", d.MAC, err)
		}
	}

	if c.Secure() {
		if err := c.sink.Publish(FormatWatchLine(d)); err != nil {
			monitoring.Logf("failed to publish watch line: %v", err)
		}
	}
}

// RunCapture subscribes to the mux and feeds every line through HandleLine
// until the context is cancelled or the stream ends.
func (c *Coordinator) RunCapture(ctx context.Context, mux capture.Muxer) error {
	id, lines := mux.Subscribe()
	defer mux.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			c.HandleLine(line)
		}
	}
}

// CaptureBaseline grabs a frame from the camera and installs it as the
// reference for all subsequent evaluations.
func (c *Coordinator) CaptureBaseline(ctx context.Context) error {
	if c.camera == nil {
		return errors.New("no camera source configured")
	}
	frame, err := c.camera.Grab(ctx)
	if err != nil {
		return fmt.Errorf("failed to capture baseline: %w", err)
	}
	c.mu.Lock()
	c.baseline = frame
	c.mu.Unlock()
	return nil
}

// RunSampler refreshes the current frame on the sample cadence. A failed
// grab skips the tick and keeps the previous frame.
func (c *Coordinator) RunSampler(ctx context.Context) error {
	if c.camera == nil {
		return errors.New("no camera source configured")
	}
	ticker := c.clock.NewTicker(c.sampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			frame, err := c.camera.Grab(ctx)
			if err != nil {
				monitoring.Logf("frame grab failed: %v", err)
				continue
			}
			c.mu.Lock()
			c.current = frame
			c.mu.Unlock()
		}
	}
}

// Evaluate runs the enabled detection methods against the stored frame pair
// and records the result as the latest report.
func (c *Coordinator) Evaluate() (*fusion.Report, error) {
	c.mu.Lock()
	baseline, current := c.baseline, c.current
	engine := c.engine
	enabled := make(map[fusion.Method]bool, len(c.enabled))
	for m, on := range c.enabled {
		enabled[m] = on
	}
	c.mu.Unlock()

	report, err := engine.Evaluate(baseline, current, enabled, c.clock.Now())
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.lastReport = report
	c.mu.Unlock()

	if c.store != nil {
		if _, err := c.store.RecordReport(toStoredReport(report)); err != nil {
			monitoring.Logf("failed to persist report: %v", err)
		}
	}
	return report, nil
}

// RunReporter evaluates and publishes a detection block on the report
// cadence. A missing baseline or current frame publishes the explanatory
// message instead of a block, matching what operators see on the console.
func (c *Coordinator) RunReporter(ctx context.Context) error {
	ticker := c.clock.NewTicker(c.reportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			report, err := c.Evaluate()
			if err != nil {
				if errors.Is(err, vision.ErrNoBaseline) || errors.Is(err, vision.ErrNoCurrentFrame) {
					if perr := c.sink.Publish(fusion.NoBaselineMessage); perr != nil {
						monitoring.Logf("failed to publish report: %v", perr)
					}
					continue
				}
				monitoring.Logf("evaluation failed: %v", err)
				continue
			}
			if err := c.sink.Publish(report.Format()); err != nil {
				monitoring.Logf("failed to publish report: %v", err)
			}
		}
	}
}

// RunSweeper evicts expired devices on the sweep cadence.
func (c *Coordinator) RunSweeper(ctx context.Context) error {
	ticker := c.clock.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			for _, d := range c.devices.Sweep() {
				monitoring.Logf("device %s left (last seen %s)", d.DisplayName(), d.LastSeen.Format(time.ANSIC))
			}
		}
	}
}

// Devices returns the devices currently considered present.
func (c *Coordinator) Devices() []registry.Device {
	return c.devices.Snapshot()
}

// Present reports whether the device with the given MAC is currently seen.
func (c *Coordinator) Present(mac string) bool {
	return c.devices.Present(mac)
}

// LastReport returns the most recent evaluation, or nil before the first.
func (c *Coordinator) LastReport() *fusion.Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastReport
}

// SetSecure toggles secure mode. While enabled, every sighting is published
// as a watch line.
func (c *Coordinator) SetSecure(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.secure = on
}

// Secure reports whether secure mode is active.
func (c *Coordinator) Secure() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.secure
}

// SetMethod enables or disables one detection method.
func (c *Coordinator) SetMethod(m fusion.Method, on bool) error {
	if !fusion.Valid(m) {
		return fmt.Errorf("unknown detection method %q", m)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled[m] = on
	return nil
}

// EnabledMethods returns a copy of the current method toggles.
func (c *Coordinator) EnabledMethods() map[fusion.Method]bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[fusion.Method]bool, len(c.enabled))
	for m, on := range c.enabled {
		out[m] = on
	}
	return out
}

// SetThresholds replaces the binary cutoffs used by the difference methods.
func (c *Coordinator) SetThresholds(diff, background uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.engine = fusion.NewEngine(diff, background)
}

// RegisterTrust marks a MAC as trusted under the given name. Takes effect
// on the device's next sighting.
func (c *Coordinator) RegisterTrust(mac, name string) error {
	return c.trust.Register(mac, name)
}

// TrustedDevices returns the current trust roster.
func (c *Coordinator) TrustedDevices() map[string]string {
	return c.trust.Snapshot()
}

// RadioSettings returns the current path-loss calibration.
func (c *Coordinator) RadioSettings() radio.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.radio
}

// SetRadioSettings replaces the path-loss calibration.
func (c *Coordinator) SetRadioSettings(s radio.Settings) error {
	if !s.Valid() {
		return errors.New("invalid radio settings")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.radio = s
	return nil
}

func toStoredReport(r *fusion.Report) db.Report {
	stored := db.Report{GeneratedAt: r.GeneratedAt}
	for _, res := range r.Results {
		if !res.Enabled {
			continue
		}
		pct := res.Percent
		switch res.Method {
		case fusion.FrameDifferencing:
			stored.FrameDiff = &pct
		case fusion.BackgroundSubtraction:
			stored.BackgroundSub = &pct
		case fusion.ContourDetection:
			stored.Contour = &pct
		case fusion.SSIM:
			stored.SSIM = &pct
		}
	}
	stored.Mean = r.Mean
	return stored
}
