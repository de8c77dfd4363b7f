// Package radio estimates distance from received signal strength using the
// log-distance path loss model. The estimate is rough: useful for a
// within-radius filter, never a guaranteed measurement.
package radio

import "math"

// Default model parameters: measured power at one metre and the indoor
// free-space path loss exponent.
const (
	DefaultTxPowerDBm       = -30.0
	DefaultPathLossExponent = 2.0
	DefaultScanRadiusMeters = 0.1
)

// Settings are the tunable path-loss model parameters. Operators adjust
// them at runtime to calibrate for the site.
type Settings struct {
	TxPowerDBm       float64 `json:"tx_power_dbm"`
	PathLossExponent float64 `json:"path_loss_exponent"`
	ScanRadiusMeters float64 `json:"scan_radius_meters"`
}

// DefaultSettings returns the stock calibration.
func DefaultSettings() Settings {
	return Settings{
		TxPowerDBm:       DefaultTxPowerDBm,
		PathLossExponent: DefaultPathLossExponent,
		ScanRadiusMeters: DefaultScanRadiusMeters,
	}
}

// Valid reports whether the settings are usable; a non-positive path loss
// exponent would blow up the model.
func (s Settings) Valid() bool {
	return s.PathLossExponent > 0 && s.ScanRadiusMeters >= 0
}

// EstimateDistance converts an RSSI reading in dBm to approximate metres.
func EstimateDistance(rssi int, s Settings) float64 {
	return math.Pow(10, (s.TxPowerDBm-float64(rssi))/(10*s.PathLossExponent))
}

// WithinRadius reports whether a reading falls inside the configured scan
// radius.
func WithinRadius(rssi int, s Settings) bool {
	return EstimateDistance(rssi, s) <= s.ScanRadiusMeters
}
