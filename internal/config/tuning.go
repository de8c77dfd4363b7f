package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for tuning parameters.
// The schema matches the /api/settings endpoint so the same JSON can be
// used for both startup configuration and runtime updates.
type TuningConfig struct {
	// Registry params
	DeviceTTL *string `json:"device_ttl,omitempty"` // duration string like "5s"

	// Sampling params
	SampleInterval *string `json:"sample_interval,omitempty"` // camera grab cadence
	ReportInterval *string `json:"report_interval,omitempty"` // fusion report cadence
	SweepInterval  *string `json:"sweep_interval,omitempty"`  // registry eviction cadence

	// Vision params
	DiffThreshold       *int `json:"diff_threshold,omitempty"`
	BackgroundThreshold *int `json:"background_threshold,omitempty"`

	// Radio params
	TxPowerDBm       *float64 `json:"tx_power_dbm,omitempty"`
	PathLossExponent *float64 `json:"path_loss_exponent,omitempty"`
	ScanRadiusMeters *float64 `json:"scan_radius_meters,omitempty"`

	// MQTT params
	MQTTBroker *string `json:"mqtt_broker,omitempty"`
	MQTTTopic  *string `json:"mqtt_topic,omitempty"`

	// Trust store params
	TrustedDevicesPath *string `json:"trusted_devices_path,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field populated with
// its stock value.
func DefaultTuningConfig() *TuningConfig {
	return &TuningConfig{
		DeviceTTL:           ptrString("5s"),
		SampleInterval:      ptrString("1s"),
		ReportInterval:      ptrString("5s"),
		SweepInterval:       ptrString("1s"),
		DiffThreshold:       ptrInt(30),
		BackgroundThreshold: ptrInt(50),
		TxPowerDBm:          ptrFloat64(-30),
		PathLossExponent:    ptrFloat64(2.0),
		ScanRadiusMeters:    ptrFloat64(0.1),
		MQTTTopic:           ptrString("iot/detection"),
		TrustedDevicesPath:  ptrString("trusted_devices.txt"),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. Fields omitted
// from the JSON retain their default values, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	for name, field := range map[string]*string{
		"device_ttl":      c.DeviceTTL,
		"sample_interval": c.SampleInterval,
		"report_interval": c.ReportInterval,
		"sweep_interval":  c.SweepInterval,
	} {
		if field != nil && *field != "" {
			if _, err := time.ParseDuration(*field); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", name, *field, err)
			}
		}
	}

	if c.DiffThreshold != nil {
		if *c.DiffThreshold < 0 || *c.DiffThreshold > 255 {
			return fmt.Errorf("diff_threshold must be between 0 and 255, got %d", *c.DiffThreshold)
		}
	}
	if c.BackgroundThreshold != nil {
		if *c.BackgroundThreshold < 0 || *c.BackgroundThreshold > 255 {
			return fmt.Errorf("background_threshold must be between 0 and 255, got %d", *c.BackgroundThreshold)
		}
	}
	if c.PathLossExponent != nil && *c.PathLossExponent <= 0 {
		return fmt.Errorf("path_loss_exponent must be positive, got %f", *c.PathLossExponent)
	}
	if c.ScanRadiusMeters != nil && *c.ScanRadiusMeters < 0 {
		return fmt.Errorf("scan_radius_meters must be non-negative, got %f", *c.ScanRadiusMeters)
	}

	return nil
}

// duration parses a pointer duration field, falling back to def when the
// field is unset or unparsable.
func duration(field *string, def time.Duration) time.Duration {
	if field == nil || *field == "" {
		return def
	}
	d, err := time.ParseDuration(*field)
	if err != nil {
		return def
	}
	return d
}

// GetDeviceTTL returns how long a device stays present without a fresh
// sighting.
func (c *TuningConfig) GetDeviceTTL() time.Duration {
	return duration(c.DeviceTTL, 5*time.Second)
}

// GetSampleInterval returns the camera grab cadence.
func (c *TuningConfig) GetSampleInterval() time.Duration {
	return duration(c.SampleInterval, time.Second)
}

// GetReportInterval returns the fusion report cadence.
func (c *TuningConfig) GetReportInterval() time.Duration {
	return duration(c.ReportInterval, 5*time.Second)
}

// GetSweepInterval returns the registry eviction cadence.
func (c *TuningConfig) GetSweepInterval() time.Duration {
	return duration(c.SweepInterval, time.Second)
}

// GetDiffThreshold returns the frame differencing cutoff or the default.
func (c *TuningConfig) GetDiffThreshold() int {
	if c.DiffThreshold == nil {
		return 30
	}
	return *c.DiffThreshold
}

// GetBackgroundThreshold returns the background subtraction cutoff or the default.
func (c *TuningConfig) GetBackgroundThreshold() int {
	if c.BackgroundThreshold == nil {
		return 50
	}
	return *c.BackgroundThreshold
}

// GetTxPowerDBm returns the tx_power_dbm value or the default.
func (c *TuningConfig) GetTxPowerDBm() float64 {
	if c.TxPowerDBm == nil {
		return -30
	}
	return *c.TxPowerDBm
}

// GetPathLossExponent returns the path_loss_exponent value or the default.
func (c *TuningConfig) GetPathLossExponent() float64 {
	if c.PathLossExponent == nil {
		return 2.0
	}
	return *c.PathLossExponent
}

// GetScanRadiusMeters returns the scan_radius_meters value or the default.
func (c *TuningConfig) GetScanRadiusMeters() float64 {
	if c.ScanRadiusMeters == nil {
		return 0.1
	}
	return *c.ScanRadiusMeters
}

// GetMQTTBroker returns the broker URL, empty when publishing is disabled.
func (c *TuningConfig) GetMQTTBroker() string {
	if c.MQTTBroker == nil {
		return ""
	}
	return *c.MQTTBroker
}

// GetMQTTTopic returns the mqtt_topic value or the default.
func (c *TuningConfig) GetMQTTTopic() string {
	if c.MQTTTopic == nil || *c.MQTTTopic == "" {
		return "iot/detection"
	}
	return *c.MQTTTopic
}

// GetTrustedDevicesPath returns the trusted_devices_path value or the default.
func (c *TuningConfig) GetTrustedDevicesPath() string {
	if c.TrustedDevicesPath == nil || *c.TrustedDevicesPath == "" {
		return "trusted_devices.txt"
	}
	return *c.TrustedDevicesPath
}
